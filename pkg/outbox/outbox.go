// Package outbox makes document replication durable. Outbox queues every
// newly created document in the replication_outbox table and Relay pushes
// the queued entries to the remote backend with retries, so a document
// reaches the backend at least once even across restarts.
package outbox

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/document"
)

// Outbox is a document.Replicator that queues documents for the Relay.
type Outbox struct {
	db     *gorm.DB
	logger hclog.Logger
}

var _ document.Replicator = (*Outbox)(nil)

// New creates an Outbox on db.
func New(db *gorm.DB, logger hclog.Logger) *Outbox {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Outbox{
		db:     db,
		logger: logger.Named("outbox"),
	}
}

// Replicate queues a document. Queuing the same state twice is a no-op.
func (o *Outbox) Replicate(ctx context.Context, workspaceID, documentID string, encoded collab.EncodedCollab) error {
	entry := NewEntry(workspaceID, documentID, encoded)
	result := o.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotent_key"}},
			DoNothing: true,
		}).
		Create(entry)
	if result.Error != nil {
		return fmt.Errorf("failed to queue document %s for replication: %w", documentID, result.Error)
	}

	if result.RowsAffected == 0 {
		o.logger.Debug("document already queued",
			"document_id", documentID,
			"idempotent_key", entry.IdempotentKey,
		)
		return nil
	}
	o.logger.Debug("queued document for replication",
		"document_id", documentID,
		"outbox_id", entry.ID,
	)
	return nil
}

// Close is a no-op; queued entries stay in the table for the Relay.
func (o *Outbox) Close() error {
	return nil
}
