package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/document"
)

// ErrNotFound is returned when no document bytes are stored for a key. It
// matches document.ErrNotFound.
var ErrNotFound = fmt.Errorf("collab document: %w", document.ErrNotFound)

// CollabDocument is the stored encoding of one document.
type CollabDocument struct {
	UID            int64  `gorm:"primaryKey;autoIncrement:false"`
	WorkspaceID    string `gorm:"primaryKey;size:64"`
	ObjectID       string `gorm:"primaryKey;size:64;index:idx_collab_documents_object_id"`
	DocState       []byte `gorm:"not null"`
	StateVector    []byte
	EncoderVersion int `gorm:"not null;default:1"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName specifies the table name for GORM.
func (CollabDocument) TableName() string {
	return "collab_documents"
}

// Store is the gorm backed local document store.
type Store struct {
	db     *gorm.DB
	logger hclog.Logger
}

var _ document.CollabPersistence = (*Store)(nil)

// NewStore creates a Store over an opened database.
func NewStore(db *gorm.DB, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		db:     db,
		logger: logger.Named("collab-store"),
	}
}

// IsExist reports whether bytes are stored for the key.
func (s *Store) IsExist(ctx context.Context, uid int64, workspaceID, objectID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&CollabDocument{}).
		Where("uid = ? AND workspace_id = ? AND object_id = ?", uid, workspaceID, objectID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", objectID, err)
	}
	return count > 0, nil
}

// LoadDocState returns the stored bytes, or ErrNotFound.
func (s *Store) LoadDocState(ctx context.Context, uid int64, workspaceID, objectID string) ([]byte, error) {
	var doc CollabDocument
	err := s.db.WithContext(ctx).
		Where("uid = ? AND workspace_id = ? AND object_id = ?", uid, workspaceID, objectID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, objectID)
		}
		return nil, fmt.Errorf("failed to load document %s: %w", objectID, err)
	}
	return doc.DocState, nil
}

// SaveCollab inserts or replaces the stored encoding.
func (s *Store) SaveCollab(ctx context.Context, uid int64, workspaceID, objectID string, encoded collab.EncodedCollab) error {
	now := time.Now().UTC()
	doc := CollabDocument{
		UID:            uid,
		WorkspaceID:    workspaceID,
		ObjectID:       objectID,
		DocState:       encoded.DocState,
		StateVector:    encoded.StateVector,
		EncoderVersion: int(encoded.Version),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "uid"}, {Name: "workspace_id"}, {Name: "object_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"doc_state", "state_vector", "encoder_version", "updated_at",
		}),
	}).Create(&doc).Error
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", objectID, err)
	}

	s.logger.Trace("saved document",
		"object_id", objectID,
		"workspace_id", workspaceID,
		"bytes", len(encoded.DocState),
	)
	return nil
}

// DeleteDoc removes the stored bytes. Deleting a missing key is not an
// error.
func (s *Store) DeleteDoc(ctx context.Context, uid int64, workspaceID, objectID string) error {
	result := s.db.WithContext(ctx).
		Where("uid = ? AND workspace_id = ? AND object_id = ?", uid, workspaceID, objectID).
		Delete(&CollabDocument{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete document %s: %w", objectID, result.Error)
	}

	s.logger.Trace("deleted document",
		"object_id", objectID,
		"rows", result.RowsAffected,
	)
	return nil
}

// ListObjectIDs returns the ids stored for a user and workspace.
func (s *Store) ListObjectIDs(ctx context.Context, uid int64, workspaceID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&CollabDocument{}).
		Where("uid = ? AND workspace_id = ?", uid, workspaceID).
		Order("object_id").
		Pluck("object_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return ids, nil
}
