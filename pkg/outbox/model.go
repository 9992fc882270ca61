package outbox

import (
	"crypto/sha256"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hashicorp-forge/collabdocs/pkg/collab"
)

// Entry statuses.
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// ReplicationOutbox is one document waiting to be pushed to the remote
// backend.
type ReplicationOutbox struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Idempotency key: sha256 of {workspace_id}:{document_id}:{doc_state}
	IdempotentKey string `gorm:"type:varchar(128);not null;uniqueIndex" json:"idempotentKey"`
	DocumentID    string `gorm:"type:varchar(64);not null" json:"documentId"`
	WorkspaceID   string `gorm:"type:varchar(64);not null" json:"workspaceId"`

	StateVector    []byte `json:"-"`
	DocState       []byte `gorm:"not null" json:"-"`
	EncoderVersion int    `gorm:"not null;default:1" json:"encoderVersion"`

	Status      string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"` // 'pending', 'published', 'failed'
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"lastError,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name.
func (ReplicationOutbox) TableName() string {
	return "replication_outbox"
}

// GenerateIdempotentKey derives the key of an outbox entry. Re-queuing the
// same state of the same document yields the same key.
func GenerateIdempotentKey(workspaceID, documentID string, docState []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s:%s:", workspaceID, documentID)
	h.Write(docState)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// NewEntry creates a pending outbox entry for an encoded document.
func NewEntry(workspaceID, documentID string, encoded collab.EncodedCollab) *ReplicationOutbox {
	return &ReplicationOutbox{
		IdempotentKey:  GenerateIdempotentKey(workspaceID, documentID, encoded.DocState),
		DocumentID:     documentID,
		WorkspaceID:    workspaceID,
		StateVector:    encoded.StateVector,
		DocState:       encoded.DocState,
		EncoderVersion: int(encoded.Version),
		Status:         StatusPending,
	}
}

// Encoded rebuilds the encoded document carried by the entry.
func (o *ReplicationOutbox) Encoded() collab.EncodedCollab {
	return collab.EncodedCollab{
		StateVector: o.StateVector,
		DocState:    o.DocState,
		Version:     collab.EncoderVersion(o.EncoderVersion),
	}
}

// BeforeCreate hook to ensure required fields.
func (o *ReplicationOutbox) BeforeCreate(tx *gorm.DB) error {
	if o.DocumentID == "" {
		return fmt.Errorf("document_id is required")
	}
	if o.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if len(o.DocState) == 0 {
		return fmt.Errorf("doc_state is required")
	}
	if o.IdempotentKey == "" {
		o.IdempotentKey = GenerateIdempotentKey(o.WorkspaceID, o.DocumentID, o.DocState)
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	return nil
}

// FindPendingEntries retrieves pending outbox entries, oldest first.
func FindPendingEntries(db *gorm.DB, limit int) ([]ReplicationOutbox, error) {
	var entries []ReplicationOutbox
	err := db.
		Where("status = ?", StatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// MarkAsPublished marks the outbox entry as successfully published.
func (o *ReplicationOutbox) MarkAsPublished(db *gorm.DB, attempts int) error {
	now := time.Now()
	o.Status = StatusPublished
	o.Attempts += attempts
	o.PublishedAt = &now
	return db.Model(o).Updates(map[string]any{
		"status":       StatusPublished,
		"attempts":     o.Attempts,
		"published_at": now,
		"updated_at":   now,
	}).Error
}

// MarkAsFailed marks the outbox entry as failed with error details.
func (o *ReplicationOutbox) MarkAsFailed(db *gorm.DB, attempts int, err error) error {
	o.Status = StatusFailed
	o.Attempts += attempts
	o.LastError = err.Error()
	return db.Model(o).Updates(map[string]any{
		"status":     StatusFailed,
		"attempts":   o.Attempts,
		"last_error": o.LastError,
		"updated_at": time.Now(),
	}).Error
}

// Retry resets the outbox entry status to pending.
func (o *ReplicationOutbox) Retry(db *gorm.DB) error {
	o.Status = StatusPending
	o.LastError = ""
	return db.Model(o).Updates(map[string]any{
		"status":     StatusPending,
		"last_error": "",
		"updated_at": time.Now(),
	}).Error
}

// DeleteOldPublishedEntries removes published entries older than olderThan.
func DeleteOldPublishedEntries(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := db.
		Where("status = ? AND published_at < ?", StatusPublished, cutoff).
		Delete(&ReplicationOutbox{})
	return result.RowsAffected, result.Error
}

// GetByIdempotentKey retrieves an outbox entry by its idempotent key.
func GetByIdempotentKey(db *gorm.DB, key string) (*ReplicationOutbox, error) {
	var entry ReplicationOutbox
	if err := db.Where("idempotent_key = ?", key).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetFailedEntries retrieves failed outbox entries, most recently failed first.
func GetFailedEntries(db *gorm.DB, limit int) ([]ReplicationOutbox, error) {
	var entries []ReplicationOutbox
	err := db.
		Where("status = ?", StatusFailed).
		Order("updated_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// CountByStatus returns the count of entries for a given status.
func CountByStatus(db *gorm.DB, status string) (int64, error) {
	var count int64
	err := db.Model(&ReplicationOutbox{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}
