package document

import (
	"context"

	"github.com/hashicorp-forge/collabdocs/pkg/docid"
)

// GetDocumentSnapshotMeta lists the snapshots of a document, newest first.
// A positive limit caps the number returned.
func (m *Manager) GetDocumentSnapshotMeta(ctx context.Context, id docid.UUID, limit int) ([]SnapshotMeta, error) {
	const op = "GetDocumentSnapshotMeta"

	if m.snapshots == nil {
		return nil, newError(op, ErrResourceUnavailable, id.String(), nil, "snapshot service is not configured")
	}
	workspaceID, err := m.user.WorkspaceID()
	if err != nil {
		return nil, newError(op, ErrResourceUnavailable, id.String(), err, "failed to resolve workspace")
	}

	metas, err := m.snapshots.GetDocumentSnapshotMetas(ctx, id.String(), workspaceID)
	if err != nil {
		if IsNotFound(err) {
			return nil, newError(op, ErrNotFound, id.String(), err, "no snapshots")
		}
		return nil, newError(op, nil, id.String(), err, "failed to list snapshots")
	}
	if limit > 0 && len(metas) > limit {
		metas = metas[:limit]
	}
	return metas, nil
}

// GetDocumentSnapshot returns one snapshot. An unknown id fails with
// ErrNotFound.
func (m *Manager) GetDocumentSnapshot(ctx context.Context, snapshotID string) (SnapshotData, error) {
	const op = "GetDocumentSnapshot"

	if m.snapshots == nil {
		return SnapshotData{}, newError(op, ErrResourceUnavailable, "", nil, "snapshot service is not configured")
	}
	snapshot, err := m.snapshots.GetDocumentSnapshot(ctx, snapshotID)
	if err != nil {
		if IsNotFound(err) {
			return SnapshotData{}, newError(op, ErrNotFound, "", err, "snapshot %s not found", snapshotID)
		}
		return SnapshotData{}, newError(op, nil, "", err, "failed to get snapshot %s", snapshotID)
	}
	return snapshot, nil
}
