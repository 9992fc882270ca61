package document

import (
	"context"
	"sync"

	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp/go-hclog"
)

// Replicator pushes newly created documents to the remote backend. Replicate
// must not block the caller on the remote call and never reports remote
// failures back to it; a returned error means the request could not even be
// accepted (for example, a durable queue write failed).
type Replicator interface {
	Replicate(ctx context.Context, workspaceID, documentID string, encoded collab.EncodedCollab) error
	Close() error
}

// BestEffortReplicator sends each document once on a background goroutine.
// Failures are logged and dropped: there is no retry and no timeout.
type BestEffortReplicator struct {
	cloud  CloudService
	logger hclog.Logger
	wg     sync.WaitGroup
}

var _ Replicator = (*BestEffortReplicator)(nil)

// NewBestEffortReplicator creates a BestEffortReplicator.
func NewBestEffortReplicator(cloud CloudService, logger hclog.Logger) *BestEffortReplicator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &BestEffortReplicator{
		cloud:  cloud,
		logger: logger.Named("replicator"),
	}
}

// Replicate starts the upload and returns immediately.
func (r *BestEffortReplicator) Replicate(ctx context.Context, workspaceID, documentID string, encoded collab.EncodedCollab) error {
	// Detached from ctx: the caller's request may finish long before the
	// upload does.
	bg := context.WithoutCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.cloud.CreateDocumentCollab(bg, workspaceID, documentID, encoded); err != nil {
			r.logger.Debug("failed to replicate document",
				"document_id", documentID,
				"workspace_id", workspaceID,
				"error", err,
			)
			return
		}
		r.logger.Trace("replicated document", "document_id", documentID)
	}()
	return nil
}

// Wait blocks until every started upload has finished.
func (r *BestEffortReplicator) Wait() {
	r.wg.Wait()
}

// Close waits for in-flight uploads.
func (r *BestEffortReplicator) Close() error {
	r.wg.Wait()
	return nil
}
