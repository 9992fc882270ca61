package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"
)

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	// MaxConcurrentBuilds caps how many documents are decoded or encoded at
	// the same time (default: 4).
	MaxConcurrentBuilds int64

	Logger hclog.Logger
}

// BuildConfig configures a single document build.
type BuildConfig struct {
	SyncEnabled bool
}

// Builder constructs documents from byte sources and structured data.
type Builder struct {
	sem    *semaphore.Weighted
	logger hclog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.MaxConcurrentBuilds <= 0 {
		cfg.MaxConcurrentBuilds = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Builder{
		sem:    semaphore.NewWeighted(cfg.MaxConcurrentBuilds),
		logger: cfg.Logger.Named("collab-builder"),
	}
}

// CreateDocument decodes src into a live document for objectID. Bytes that
// do not decode to a valid document yield an error wrapping ErrInvalidData.
func (b *Builder) CreateDocument(ctx context.Context, objectID string, src DataSource, cfg BuildConfig) (*Document, error) {
	return bounded(ctx, b, func() (*Document, error) {
		start := time.Now()
		wire, err := decode(objectID, src.DocState)
		if err != nil {
			return nil, err
		}
		b.logger.Trace("decoded document",
			"object_id", objectID,
			"origin", src.Origin.String(),
			"bytes", len(src.DocState),
			"elapsed", time.Since(start),
		)
		return newDocument(objectID, wire.Clock, wire.Data, cfg.SyncEnabled), nil
	})
}

// EncodeDocumentData builds a document from data and returns its encoding.
func (b *Builder) EncodeDocumentData(ctx context.Context, objectID string, data DocumentData) (EncodedCollab, error) {
	doc, err := bounded(ctx, b, func() (*Document, error) {
		if err := data.Validate(); err != nil {
			return nil, err
		}
		copied, err := data.clone()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		return newDocument(objectID, 0, copied, false), nil
	})
	if err != nil {
		return EncodedCollab{}, err
	}
	return doc.EncodeCollab()
}

// bounded runs fn on its own goroutine once a build slot is free. If ctx is
// cancelled first the caller returns early; fn still completes and releases
// its slot.
func bounded[T any](ctx context.Context, b *Builder, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer b.sem.Release(1)
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
