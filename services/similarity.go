package services

import (
	"bytes"
	"fmt"
	"image"
	"math"

	_ "image/jpeg"
	_ "image/png"
)

// Edge length both images are scaled to before comparison.
const ssimGridSize = 64

// cosineSimilarity maps two embedding vectors to [0,1].
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Shift from [-1,1] to [0,1].
	return math.Max(0, math.Min(1, (cos+1)/2))
}

// structuralSimilarity computes a global SSIM over the luminance of the two
// encoded images, both resampled to a fixed grid so resolution differences do
// not matter.
func structuralSimilarity(imgA, imgB []byte) (float64, error) {
	lumA, err := decodeLuminance(imgA)
	if err != nil {
		return 0, fmt.Errorf("decode first image: %w", err)
	}
	lumB, err := decodeLuminance(imgB)
	if err != nil {
		return 0, fmt.Errorf("decode second image: %w", err)
	}

	meanA := mean(lumA)
	meanB := mean(lumB)
	varA := variance(lumA, meanA)
	varB := variance(lumB, meanB)
	cov := covariance(lumA, lumB, meanA, meanB)

	// Standard SSIM stabilizers for 8-bit dynamic range.
	const (
		c1 = (0.01 * 255) * (0.01 * 255)
		c2 = (0.03 * 255) * (0.03 * 255)
	)
	ssim := ((2*meanA*meanB + c1) * (2*cov + c2)) /
		((meanA*meanA + meanB*meanB + c1) * (varA + varB + c2))
	return math.Max(0, math.Min(1, ssim)), nil
}

// decodeLuminance decodes an image and resamples its luminance to the
// comparison grid via nearest neighbor.
func decodeLuminance(data []byte) ([]float64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("empty image")
	}

	lum := make([]float64, 0, ssimGridSize*ssimGridSize)
	for gy := 0; gy < ssimGridSize; gy++ {
		for gx := 0; gx < ssimGridSize; gx++ {
			x := bounds.Min.X + gx*width/ssimGridSize
			y := bounds.Min.Y + gy*height/ssimGridSize
			r, g, b, _ := img.At(x, y).RGBA()
			// ITU-R BT.601 luma, scaled to 0..255.
			y601 := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			lum = append(lum, y601)
		}
	}
	return lum, nil
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func variance(v []float64, m float64) float64 {
	var sum float64
	for _, x := range v {
		sum += (x - m) * (x - m)
	}
	return sum / float64(len(v))
}

func covariance(a, b []float64, ma, mb float64) float64 {
	var sum float64
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(len(a))
}
