package providers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles remote calls with a shared token bucket and bounds each
// call with its own timeout.
type Limiter struct {
	bucket  *rate.Limiter
	timeout time.Duration
}

// NewLimiter allows rps calls per second with the given burst. A zero timeout
// leaves calls bounded only by the caller's context.
func NewLimiter(rps float64, burst int, timeout time.Duration) *Limiter {
	return &Limiter{
		bucket:  rate.NewLimiter(rate.Limit(rps), burst),
		timeout: timeout,
	}
}

// WithTimeout returns a limiter sharing the bucket but using a different timeout.
func (l *Limiter) WithTimeout(timeout time.Duration) *Limiter {
	return &Limiter{bucket: l.bucket, timeout: timeout}
}

// Do waits for a token, then runs fn under the per-call timeout.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return fn(ctx)
}

type limitedEmbedder struct {
	next    Embedder
	limiter *Limiter
}

// LimitEmbedder wraps e so every batch goes through l.
func LimitEmbedder(e Embedder, l *Limiter) Embedder {
	return &limitedEmbedder{next: e, limiter: l}
}

func (e *limitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := e.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.next.Embed(ctx, texts)
		return err
	})
	return out, err
}

type limitedDescriber struct {
	next    ImageDescriber
	limiter *Limiter
}

// LimitDescriber wraps d so every image goes through l.
func LimitDescriber(d ImageDescriber, l *Limiter) ImageDescriber {
	return &limitedDescriber{next: d, limiter: l}
}

func (d *limitedDescriber) DescribeImage(ctx context.Context, image []byte) (string, error) {
	var out string
	err := d.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = d.next.DescribeImage(ctx, image)
		return err
	})
	return out, err
}

type limitedGenerator struct {
	next    Generator
	limiter *Limiter
}

// LimitGenerator wraps g so every answer goes through l.
func LimitGenerator(g Generator, l *Limiter) Generator {
	return &limitedGenerator{next: g, limiter: l}
}

func (g *limitedGenerator) Generate(ctx context.Context, promptContext, question string) (string, error) {
	var out string
	err := g.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = g.next.Generate(ctx, promptContext, question)
		return err
	})
	return out, err
}
