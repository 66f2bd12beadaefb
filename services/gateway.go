package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/koukarei/Avery-sub001/game"
	"github.com/koukarei/Avery-sub001/models"
)

// Similarity is the tagged result of comparing the player's sentence and
// generated image against the leaderboard's reference pair.
type Similarity struct {
	Structural float64 // 0 to 1, image vs image
	Semantic   float64 // 0 to 1, text vs text
}

// ImageText pairs an image object key with the text that describes it.
type ImageText struct {
	ImageKey string
	Text     string
}

// Gateway abstracts the generative-AI backends behind retryable,
// timeout-bounded calls. Implementations must be safe for concurrent use.
type Gateway interface {
	// GenerateHint produces an assistant reply for the hint conversation,
	// given the round transcript so far and the original image.
	GenerateHint(ctx context.Context, transcript []models.ChatMessage, imageKey, question string) (string, error)

	// CorrectSentence normalizes the player's raw sentence.
	CorrectSentence(ctx context.Context, raw string) (string, error)

	// GenerateImage renders an image from the corrected sentence and returns
	// the stored object key.
	GenerateImage(ctx context.Context, text string) (string, error)

	// ComputeSimilarity compares the generated pair against the reference pair.
	ComputeSimilarity(ctx context.Context, reference, candidate ImageText) (Similarity, error)
}

// retryingGateway bounds every call of the wrapped gateway with a timeout and
// a fixed number of retries. Deadline hits surface as upstream_timeout, other
// failures as upstream_error; there is no unbounded retry.
type retryingGateway struct {
	inner      Gateway
	timeout    time.Duration
	maxRetries int
}

// NewRetryingGateway wraps a gateway with per-call timeouts and bounded
// retries.
func NewRetryingGateway(inner Gateway, timeout time.Duration, maxRetries int) Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retryingGateway{inner: inner, timeout: timeout, maxRetries: maxRetries}
}

func (g *retryingGateway) GenerateHint(ctx context.Context, transcript []models.ChatMessage, imageKey, question string) (string, error) {
	return callWithRetry(ctx, g, "generate_hint", func(ctx context.Context) (string, error) {
		return g.inner.GenerateHint(ctx, transcript, imageKey, question)
	})
}

func (g *retryingGateway) CorrectSentence(ctx context.Context, raw string) (string, error) {
	return callWithRetry(ctx, g, "correct_sentence", func(ctx context.Context) (string, error) {
		return g.inner.CorrectSentence(ctx, raw)
	})
}

func (g *retryingGateway) GenerateImage(ctx context.Context, text string) (string, error) {
	return callWithRetry(ctx, g, "generate_image", func(ctx context.Context) (string, error) {
		return g.inner.GenerateImage(ctx, text)
	})
}

func (g *retryingGateway) ComputeSimilarity(ctx context.Context, reference, candidate ImageText) (Similarity, error) {
	return callWithRetry(ctx, g, "compute_similarity", func(ctx context.Context) (Similarity, error) {
		return g.inner.ComputeSimilarity(ctx, reference, candidate)
	})
}

func callWithRetry[T any](ctx context.Context, g *retryingGateway, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		result, err := fn(callCtx)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			slog.Warn("AI call timed out", "op", op, "attempt", attempt+1)
			lastErr = game.WrapError(game.KindUpstreamTimeout, err)
		} else if ctx.Err() != nil {
			// Caller cancelled; do not retry.
			return zero, game.WrapError(game.KindUpstreamError, ctx.Err())
		} else {
			slog.Warn("AI call failed", "op", op, "attempt", attempt+1, "error", err)
			lastErr = game.WrapError(game.KindUpstreamError, err)
		}
	}

	return zero, lastErr
}
