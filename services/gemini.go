package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/koukarei/Avery-sub001/models"
	"github.com/koukarei/Avery-sub001/repository"

	"google.golang.org/genai"
)

const (
	TextModelName      = "gemini-2.5-flash"
	ImageModelName     = "imagen-3.0-generate-002"
	EmbeddingModelName = "gemini-embedding-001"

	// Only the most recent turns are sent as hint context.
	maxHintTurns = 10
)

// GeminiGateway implements Gateway on top of the Gemini API. Generated images
// are written to the image store and referenced by object key. The gateway is
// injected wherever AI calls are needed; there is no package-level client.
type GeminiGateway struct {
	genaiClient *genai.Client
	images      *repository.ImageStore
}

func NewGeminiGateway(apiKey string, images *repository.ImageStore) (*GeminiGateway, error) {
	genaiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiGateway{
		genaiClient: genaiClient,
		images:      images,
	}, nil
}

// GenerateHint produces the assistant's reply for the hint conversation. The
// original image travels with the prompt so the model can point at details
// the player has not described yet.
func (g *GeminiGateway) GenerateHint(ctx context.Context, transcript []models.ChatMessage, imageKey, question string) (string, error) {
	contents, err := g.buildHintContents(ctx, transcript, imageKey, question)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(hintSystemInstruction, genai.RoleUser),
	}

	result, err := g.genaiClient.Models.GenerateContent(ctx, TextModelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("generate hint: %w", err)
	}

	reply := result.Text()
	slog.Info("Generated hint", "reply_length", len(reply))
	return reply, nil
}

// CorrectSentence normalizes the player's raw sentence to grammatical
// English, preserving the intended meaning.
func (g *GeminiGateway) CorrectSentence(ctx context.Context, raw string) (string, error) {
	prompt := fmt.Sprintf(`Correct the grammar and spelling of the following English sentence written by a language learner. Preserve the meaning and wording as much as possible. Reply with the corrected sentence only, no commentary.

Sentence: %s`, raw)

	result, err := g.genaiClient.Models.GenerateContent(ctx, TextModelName, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("correct sentence: %w", err)
	}

	corrected := strings.TrimSpace(result.Text())
	if corrected == "" {
		corrected = raw
	}
	slog.Info("Sentence corrected", "raw_length", len(raw), "corrected_length", len(corrected))
	return corrected, nil
}

// GenerateImage renders an image from the corrected sentence, stores it and
// returns the object key.
func (g *GeminiGateway) GenerateImage(ctx context.Context, text string) (string, error) {
	result, err := g.genaiClient.Models.GenerateImages(ctx, ImageModelName, text, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	if len(result.GeneratedImages) == 0 || result.GeneratedImages[0].Image == nil {
		return "", fmt.Errorf("generate image: empty response")
	}

	img := result.GeneratedImages[0].Image
	key, err := g.images.Put(ctx, img.ImageBytes, "image/png")
	if err != nil {
		return "", fmt.Errorf("store generated image: %w", err)
	}

	slog.Info("Image generated", "key", key, "prompt_length", len(text))
	return key, nil
}

// ComputeSimilarity compares the candidate pair against the reference pair:
// semantic similarity from text embeddings, structural similarity from the
// image pixels themselves.
func (g *GeminiGateway) ComputeSimilarity(ctx context.Context, reference, candidate ImageText) (Similarity, error) {
	semantic, err := g.embeddingSimilarity(ctx, reference.Text, candidate.Text)
	if err != nil {
		return Similarity{}, err
	}

	refImage, err := g.images.Get(ctx, reference.ImageKey)
	if err != nil {
		return Similarity{}, fmt.Errorf("load reference image: %w", err)
	}
	candImage, err := g.images.Get(ctx, candidate.ImageKey)
	if err != nil {
		return Similarity{}, fmt.Errorf("load candidate image: %w", err)
	}

	structural, err := structuralSimilarity(refImage, candImage)
	if err != nil {
		return Similarity{}, fmt.Errorf("structural similarity: %w", err)
	}

	slog.Info("Similarity computed", "semantic", semantic, "structural", structural)
	return Similarity{Structural: structural, Semantic: semantic}, nil
}

func (g *GeminiGateway) embeddingSimilarity(ctx context.Context, a, b string) (float64, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(a, genai.RoleUser),
		genai.NewContentFromText(b, genai.RoleUser),
	}

	result, err := g.genaiClient.Models.EmbedContent(ctx, EmbeddingModelName, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("embed content: %w", err)
	}
	if len(result.Embeddings) < 2 {
		return 0, fmt.Errorf("embed content: expected 2 embeddings, got %d", len(result.Embeddings))
	}

	return cosineSimilarity(result.Embeddings[0].Values, result.Embeddings[1].Values), nil
}

func (g *GeminiGateway) buildHintContents(ctx context.Context, transcript []models.ChatMessage, imageKey, question string) ([]*genai.Content, error) {
	var contents []*genai.Content

	if imageKey != "" {
		imageData, err := g.images.Get(ctx, imageKey)
		if err != nil {
			return nil, fmt.Errorf("load original image: %w", err)
		}
		parts := []*genai.Part{
			genai.NewPartFromText("This is the picture the player is describing."),
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: imageData}},
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	startIdx := 0
	if len(transcript) > maxHintTurns {
		startIdx = len(transcript) - maxHintTurns
	}
	for _, msg := range transcript[startIdx:] {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		if msg.Sender == models.SenderAssistant {
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		} else {
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	if strings.TrimSpace(question) != "" {
		contents = append(contents, genai.NewContentFromText(question, genai.RoleUser))
	}
	if len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText("Please give me a hint.", genai.RoleUser))
	}
	return contents, nil
}

const hintSystemInstruction = `You are a friendly English tutor inside an image-description game. The player looks at a picture and must write one English sentence describing it.

Your role:
- Answer the player's questions about vocabulary, grammar or the picture
- Nudge the player toward details they have not described yet
- Never write the full answer sentence for the player
- Keep replies short, encouraging and at the player's level
- Reply in English only`
