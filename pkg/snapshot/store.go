package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/document"
)

// ErrNotFound is returned for an unknown snapshot id. It matches
// document.ErrNotFound.
var ErrNotFound = fmt.Errorf("snapshot: %w", document.ErrNotFound)

// Snapshot statuses reported to the document's snapshot stream.
const (
	StatusWaiting = "waiting"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DocumentSnapshot is one stored snapshot.
type DocumentSnapshot struct {
	SnapshotID  string    `gorm:"primaryKey;size:64"`
	ObjectID    string    `gorm:"size:64;not null"`
	WorkspaceID string    `gorm:"size:64;not null"`
	EncodedV1   []byte    `gorm:"column:encoded_v1;not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName specifies the table name for GORM.
func (DocumentSnapshot) TableName() string {
	return "document_snapshots"
}

// Store keeps document snapshots in the local database.
type Store struct {
	db     *gorm.DB
	logger hclog.Logger

	// now is swapped in tests.
	now func() time.Time
}

var _ document.SnapshotService = (*Store)(nil)

// NewStore creates a snapshot Store.
func NewStore(db *gorm.DB, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		db:     db,
		logger: logger.Named("snapshots"),
		now:    time.Now,
	}
}

// CreateSnapshot stores encoded as a new snapshot of objectID.
func (s *Store) CreateSnapshot(ctx context.Context, workspaceID, objectID string, encoded []byte) (document.SnapshotMeta, error) {
	snap := DocumentSnapshot{
		SnapshotID:  uuid.New().String(),
		ObjectID:    objectID,
		WorkspaceID: workspaceID,
		EncodedV1:   encoded,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&snap).Error; err != nil {
		return document.SnapshotMeta{}, fmt.Errorf("failed to create snapshot of %s: %w", objectID, err)
	}

	s.logger.Debug("created snapshot",
		"snapshot_id", snap.SnapshotID,
		"object_id", objectID,
		"bytes", len(encoded),
	)
	return document.SnapshotMeta{
		SnapshotID: snap.SnapshotID,
		ObjectID:   snap.ObjectID,
		CreatedAt:  snap.CreatedAt,
	}, nil
}

// GetDocumentSnapshotMetas lists the snapshots of documentID, newest first.
func (s *Store) GetDocumentSnapshotMetas(ctx context.Context, documentID, workspaceID string) ([]document.SnapshotMeta, error) {
	var snaps []DocumentSnapshot
	err := s.db.WithContext(ctx).
		Select("snapshot_id", "object_id", "created_at").
		Where("workspace_id = ? AND object_id = ?", workspaceID, documentID).
		Order("created_at DESC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots of %s: %w", documentID, err)
	}

	metas := make([]document.SnapshotMeta, 0, len(snaps))
	for _, snap := range snaps {
		metas = append(metas, document.SnapshotMeta{
			SnapshotID: snap.SnapshotID,
			ObjectID:   snap.ObjectID,
			CreatedAt:  snap.CreatedAt,
		})
	}
	return metas, nil
}

// GetDocumentSnapshot returns one snapshot, or ErrNotFound.
func (s *Store) GetDocumentSnapshot(ctx context.Context, snapshotID string) (document.SnapshotData, error) {
	var snap DocumentSnapshot
	err := s.db.WithContext(ctx).Where("snapshot_id = ?", snapshotID).First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return document.SnapshotData{}, fmt.Errorf("%w: %s", ErrNotFound, snapshotID)
		}
		return document.SnapshotData{}, fmt.Errorf("failed to get snapshot %s: %w", snapshotID, err)
	}
	return document.SnapshotData{
		ObjectID:  snap.ObjectID,
		EncodedV1: snap.EncodedV1,
	}, nil
}

// Capture snapshots the current state of an open document and reports the
// progress on its snapshot stream.
func (s *Store) Capture(ctx context.Context, workspaceID string, h *document.Handle) (document.SnapshotMeta, error) {
	objectID := h.DocumentID().String()
	pending := collab.SnapshotState{SnapshotID: uuid.New().String(), Status: StatusWaiting}
	record := func(state collab.SnapshotState) {
		_ = h.Read(func(doc *collab.Document) error {
			doc.RecordSnapshotState(state)
			return nil
		})
	}
	record(pending)

	encoded, err := h.EncodeCollab()
	if err != nil {
		record(collab.SnapshotState{SnapshotID: pending.SnapshotID, Status: StatusFailed})
		return document.SnapshotMeta{}, fmt.Errorf("failed to encode %s: %w", objectID, err)
	}

	meta, err := s.CreateSnapshot(ctx, workspaceID, objectID, encoded.DocState)
	if err != nil {
		record(collab.SnapshotState{SnapshotID: pending.SnapshotID, Status: StatusFailed})
		return document.SnapshotMeta{}, err
	}
	record(collab.SnapshotState{SnapshotID: meta.SnapshotID, Status: StatusSuccess})
	return meta, nil
}
