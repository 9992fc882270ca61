package document

import (
	"context"
	"time"

	"github.com/hashicorp-forge/collabdocs/pkg/capability"
	"github.com/hashicorp-forge/collabdocs/pkg/collab"
)

// UserService resolves the acting user, device and workspace.
type UserService interface {
	UserID() (int64, error)
	DeviceID() (string, error)
	WorkspaceID() (string, error)

	// CollabDB returns the local store for uid. The store may be torn down
	// while the Manager still holds the reference.
	CollabDB(uid int64) (*capability.Ref[CollabPersistence], error)
}

// CollabPersistence is the durable local store of encoded documents. Every
// operation is keyed by (uid, workspace id, object id).
type CollabPersistence interface {
	IsExist(ctx context.Context, uid int64, workspaceID, objectID string) (bool, error)

	// LoadDocState returns the stored bytes, or an error wrapping
	// ErrNotFound when there are none.
	LoadDocState(ctx context.Context, uid int64, workspaceID, objectID string) ([]byte, error)

	SaveCollab(ctx context.Context, uid int64, workspaceID, objectID string, encoded collab.EncodedCollab) error
	DeleteDoc(ctx context.Context, uid int64, workspaceID, objectID string) error
}

// CloudService is the remote backend.
type CloudService interface {
	// GetDocumentDocState returns the remote bytes for a document. A missing
	// document yields an error wrapping ErrNotFound.
	GetDocumentDocState(ctx context.Context, documentID, workspaceID string) ([]byte, error)

	CreateDocumentCollab(ctx context.Context, workspaceID, documentID string, encoded collab.EncodedCollab) error
}

// SnapshotMeta describes one stored snapshot of a document.
type SnapshotMeta struct {
	SnapshotID string    `json:"snapshot_id" yaml:"snapshot_id"`
	ObjectID   string    `json:"object_id" yaml:"object_id"`
	CreatedAt  time.Time `json:"created_at" yaml:"created_at"`
}

// SnapshotData is the encoded content of one snapshot.
type SnapshotData struct {
	ObjectID  string `json:"object_id"`
	EncodedV1 []byte `json:"encoded_v1"`
}

// SnapshotService lists and retrieves snapshots.
type SnapshotService interface {
	// GetDocumentSnapshotMetas returns snapshot metadata, newest first.
	GetDocumentSnapshotMetas(ctx context.Context, documentID, workspaceID string) ([]SnapshotMeta, error)

	// GetDocumentSnapshot returns a snapshot, or an error wrapping
	// ErrNotFound for an unknown id.
	GetDocumentSnapshot(ctx context.Context, snapshotID string) (SnapshotData, error)
}

// CreatedUpload is the ticket returned when an upload is registered.
type CreatedUpload struct {
	URL    string `json:"url"`
	FileID string `json:"file_id"`
}

// StorageService stores binary blobs attached to documents.
type StorageService interface {
	CreateUpload(ctx context.Context, workspaceID, parentDir, localPath string) (CreatedUpload, error)
	DownloadObject(ctx context.Context, url, localPath string) error
	DeleteObject(ctx context.Context, url string) error
}

// CollabBuilder constructs content-model documents. *collab.Builder
// satisfies it.
type CollabBuilder interface {
	CreateDocument(ctx context.Context, objectID string, src collab.DataSource, cfg collab.BuildConfig) (*collab.Document, error)
	EncodeDocumentData(ctx context.Context, objectID string, data collab.DocumentData) (collab.EncodedCollab, error)
}

var _ CollabBuilder = (*collab.Builder)(nil)
