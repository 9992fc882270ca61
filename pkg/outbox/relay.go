package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/collabdocs/pkg/document"
	"github.com/hashicorp-forge/collabdocs/pkg/notify"
)

// Relay polls the replication_outbox table and pushes entries to the remote
// backend.
type Relay struct {
	db           *gorm.DB
	cloud        document.CloudService
	publisher    notify.Publisher
	logger       hclog.Logger
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	newBackOff   func() backoff.BackOff

	stopCh   chan struct{}
	stopOnce sync.Once
}

// RelayConfig holds configuration for the relay.
type RelayConfig struct {
	DB    *gorm.DB
	Cloud document.CloudService

	// Publisher receives a document.replicated event per pushed entry
	// (default: NopPublisher).
	Publisher notify.Publisher

	PollInterval time.Duration // How often to poll the outbox (default: 1s)
	BatchSize    int           // How many entries to process per batch (default: 100)
	MaxAttempts  int           // Push attempts per entry and batch before it is marked failed (default: 5)

	// InitialBackoff and MaxBackoff bound the wait between attempts
	// (defaults: 100ms, 5s).
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger hclog.Logger
}

// Stats contains statistics about the outbox state.
type Stats struct {
	Pending   int64 `json:"pending"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// NewRelay creates a new outbox relay.
func NewRelay(cfg RelayConfig) (*Relay, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Cloud == nil {
		return nil, fmt.Errorf("cloud service is required")
	}

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.Publisher == nil {
		cfg.Publisher = notify.NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	initial, maxInterval := cfg.InitialBackoff, cfg.MaxBackoff
	return &Relay{
		db:           cfg.DB,
		cloud:        cfg.Cloud,
		publisher:    cfg.Publisher,
		logger:       cfg.Logger.Named("outbox-relay"),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = maxInterval
			b.MaxElapsedTime = 0
			return b
		},
		stopCh: make(chan struct{}),
	}, nil
}

// Start runs the polling loop. It blocks until Stop is called or ctx is
// cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting outbox relay",
		"poll_interval", r.pollInterval,
		"batch_size", r.batchSize,
		"max_attempts", r.maxAttempts,
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped by context")
			return ctx.Err()

		case <-r.stopCh:
			r.logger.Info("outbox relay stopped")
			return nil

		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				// Keep polling; failed entries are already marked.
				r.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// Stop stops the polling loop. It is safe to call more than once.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
}

// ProcessBatch pushes one batch of pending entries and returns how many were
// published. Per-entry failures are aggregated into the returned error.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	entries, err := FindPendingEntries(r.db.WithContext(ctx), r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending outbox entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	r.logger.Debug("processing outbox batch", "count", len(entries))

	var result *multierror.Error
	published := 0
	for i := range entries {
		if err := r.process(ctx, &entries[i]); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		published++
	}

	r.logger.Info("processed outbox batch",
		"total", len(entries),
		"success", published,
		"failed", len(entries)-published,
	)
	return published, result.ErrorOrNil()
}

// process pushes one entry and records the outcome on it.
func (r *Relay) process(ctx context.Context, entry *ReplicationOutbox) error {
	attempts, err := r.publishEntry(ctx, entry)
	if err != nil {
		r.logger.Error("failed to publish outbox entry",
			"outbox_id", entry.ID,
			"document_id", entry.DocumentID,
			"attempts", attempts,
			"error", err,
		)
		if markErr := entry.MarkAsFailed(r.db.WithContext(context.WithoutCancel(ctx)), attempts, err); markErr != nil {
			r.logger.Error("failed to mark outbox entry as failed",
				"outbox_id", entry.ID,
				"error", markErr,
			)
		}
		return fmt.Errorf("outbox entry %d (document %s): %w", entry.ID, entry.DocumentID, err)
	}

	if err := entry.MarkAsPublished(r.db.WithContext(ctx), attempts); err != nil {
		r.logger.Error("failed to mark outbox entry as published",
			"outbox_id", entry.ID,
			"error", err,
		)
		return fmt.Errorf("outbox entry %d: %w", entry.ID, err)
	}

	ev := notify.NewEvent(notify.EventDocumentReplicated, entry.DocumentID, map[string]any{
		"outbox_id": entry.ID,
		"attempts":  entry.Attempts,
	})
	ev.WorkspaceID = entry.WorkspaceID
	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.logger.Warn("failed to publish replication event",
			"document_id", entry.DocumentID,
			"error", err,
		)
	}
	return nil
}

// publishEntry pushes an entry to the backend, retrying with exponential
// backoff. It returns the number of attempts made.
func (r *Relay) publishEntry(ctx context.Context, entry *ReplicationOutbox) (int, error) {
	attempts := 0
	operation := func() error {
		attempts++
		err := r.cloud.CreateDocumentCollab(ctx, entry.WorkspaceID, entry.DocumentID, entry.Encoded())
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}
	notifyFn := func(err error, wait time.Duration) {
		r.logger.Debug("retrying outbox entry",
			"outbox_id", entry.ID,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), uint64(r.maxAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, b, notifyFn); err != nil {
		return attempts, err
	}

	r.logger.Debug("replicated document",
		"outbox_id", entry.ID,
		"document_id", entry.DocumentID,
		"attempts", attempts,
	)
	return attempts, nil
}

// CleanupOldEntries removes published entries older than olderThan.
func (r *Relay) CleanupOldEntries(olderThan time.Duration) (int64, error) {
	deleted, err := DeleteOldPublishedEntries(r.db, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old outbox entries: %w", err)
	}

	r.logger.Info("cleaned up old outbox entries",
		"deleted", deleted,
		"older_than", olderThan,
	)
	return deleted, nil
}

// RetryFailed resets up to limit failed entries to pending and pushes them
// again. It returns how many were published.
func (r *Relay) RetryFailed(ctx context.Context, limit int) (int, error) {
	failed, err := GetFailedEntries(r.db.WithContext(ctx), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed outbox entries: %w", err)
	}
	if len(failed) == 0 {
		r.logger.Info("no failed outbox entries to retry")
		return 0, nil
	}

	r.logger.Info("retrying failed outbox entries", "count", len(failed))

	var result *multierror.Error
	published := 0
	for i := range failed {
		entry := &failed[i]
		if err := entry.Retry(r.db.WithContext(ctx)); err != nil {
			r.logger.Error("failed to reset outbox entry to pending",
				"outbox_id", entry.ID,
				"error", err,
			)
			result = multierror.Append(result, err)
			continue
		}
		if err := r.process(ctx, entry); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		published++
	}

	r.logger.Info("retry completed",
		"attempted", len(failed),
		"success", published,
		"failed", len(failed)-published,
	)
	return published, result.ErrorOrNil()
}

// GetStats returns statistics about the outbox state.
func (r *Relay) GetStats() (Stats, error) {
	var stats Stats

	pending, err := CountByStatus(r.db, StatusPending)
	if err != nil {
		return stats, err
	}
	stats.Pending = pending

	published, err := CountByStatus(r.db, StatusPublished)
	if err != nil {
		return stats, err
	}
	stats.Published = published

	failed, err := CountByStatus(r.db, StatusFailed)
	if err != nil {
		return stats, err
	}
	stats.Failed = failed

	return stats, nil
}
