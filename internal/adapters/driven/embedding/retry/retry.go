// Package retry wraps an embedding service with bounded exponential
// backoff. Transient failures (rate limits, 5xx, timeouts) are retried;
// anything else returns immediately. Once retries are exhausted the last
// error surfaces and the caller decides how to degrade.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	// DefaultMaxRetries is how many times a failed call is retried
	// before the error surfaces.
	DefaultMaxRetries = 5

	baseDelay = 200 * time.Millisecond
	maxDelay  = 5 * time.Second
)

// EmbeddingService decorates another embedding service with retries.
type EmbeddingService struct {
	inner      driven.EmbeddingService
	maxRetries int
	logger     *zap.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEmbeddingService wraps inner with retry behaviour. A non-positive
// maxRetries falls back to the default.
func NewEmbeddingService(inner driven.EmbeddingService, maxRetries int, logger *zap.Logger) *EmbeddingService {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &EmbeddingService{
		inner:      inner,
		maxRetries: maxRetries,
		logger:     logger.Named("embed-retry"),
		sleep:      sleepCtx,
	}
}

// Embed generates a vector embedding for the given text, retrying
// transient failures.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := s.do(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = s.inner.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedBatch generates embeddings for multiple texts, retrying transient
// failures. The whole batch retries as a unit.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := s.do(ctx, "embed_batch", func(ctx context.Context) error {
		var err error
		out, err = s.inner.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.inner.ModelName()
}

// Ping checks the inner service once; health probes are not retried.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close releases the inner service's resources.
func (s *EmbeddingService) Close() error {
	return s.inner.Close()
}

// do runs fn, retrying transient errors with exponential backoff.
func (s *EmbeddingService) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			return err
		}
		if attempt >= s.maxRetries {
			break
		}

		delay := retryDelay(attempt)
		s.logger.Debug("embedding call failed, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%s: retries exhausted after %d attempts: %w", op, s.maxRetries+1, err)
}

// retryDelay doubles per attempt from a 200ms base, capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt > 10 {
		return maxDelay
	}
	delay := baseDelay << attempt
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// sleepCtx waits for d or until the context ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
