package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"Identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"Opposite vectors", []float32{1, 0}, []float32{-1, 0}, 0},
		{"Orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0.5},
		{"Empty vectors", nil, nil, 0},
		{"Mismatched lengths", []float32{1, 2}, []float32{1}, 0},
		{"Zero vector", []float32{0, 0}, []float32{1, 2}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("cosineSimilarity = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func solidPNG(t *testing.T, c color.RGBA, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestStructuralSimilarity(t *testing.T) {
	gray := solidPNG(t, color.RGBA{R: 128, G: 128, B: 128, A: 255}, 100, 100)
	black := solidPNG(t, color.RGBA{A: 255}, 100, 100)
	white := solidPNG(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 100, 100)

	t.Run("Identical images score 1", func(t *testing.T) {
		got, err := structuralSimilarity(gray, gray)
		if err != nil {
			t.Fatalf("structuralSimilarity failed: %v", err)
		}
		if math.Abs(got-1) > 1e-6 {
			t.Errorf("similarity = %v, expected 1", got)
		}
	})

	t.Run("Resolution differences do not matter", func(t *testing.T) {
		small := solidPNG(t, color.RGBA{R: 128, G: 128, B: 128, A: 255}, 10, 10)
		got, err := structuralSimilarity(gray, small)
		if err != nil {
			t.Fatalf("structuralSimilarity failed: %v", err)
		}
		if math.Abs(got-1) > 1e-6 {
			t.Errorf("similarity = %v, expected 1", got)
		}
	})

	t.Run("Opposite images score near zero", func(t *testing.T) {
		got, err := structuralSimilarity(black, white)
		if err != nil {
			t.Fatalf("structuralSimilarity failed: %v", err)
		}
		if got > 0.1 {
			t.Errorf("similarity = %v, expected near zero", got)
		}
	})

	t.Run("Result stays within bounds", func(t *testing.T) {
		got, err := structuralSimilarity(gray, white)
		if err != nil {
			t.Fatalf("structuralSimilarity failed: %v", err)
		}
		if got < 0 || got > 1 {
			t.Errorf("similarity = %v, expected within [0, 1]", got)
		}
	})

	t.Run("Invalid image data fails", func(t *testing.T) {
		if _, err := structuralSimilarity([]byte("not an image"), gray); err == nil {
			t.Error("expected decode error for invalid data")
		}
	})
}
