package document

import (
	"context"

	"github.com/hashicorp-forge/collabdocs/pkg/docid"
)

// UploadFile registers localPath as a blob attached to a document.
func (m *Manager) UploadFile(ctx context.Context, id docid.UUID, localPath string) (CreatedUpload, error) {
	const op = "UploadFile"

	storage, err := m.storageService(op)
	if err != nil {
		return CreatedUpload{}, err
	}
	workspaceID, err := m.user.WorkspaceID()
	if err != nil {
		return CreatedUpload{}, newError(op, ErrResourceUnavailable, id.String(), err, "failed to resolve workspace")
	}

	upload, err := storage.CreateUpload(ctx, workspaceID, id.String(), localPath)
	if err != nil {
		return CreatedUpload{}, classifyRemote(op, id.String(), err, "failed to upload "+localPath)
	}
	m.logger.Debug("uploaded file",
		"document_id", id.String(),
		"url", upload.URL,
	)
	return upload, nil
}

// DownloadFile writes the blob at url to localPath.
func (m *Manager) DownloadFile(ctx context.Context, localPath, url string) error {
	const op = "DownloadFile"

	storage, err := m.storageService(op)
	if err != nil {
		return err
	}
	if err := storage.DownloadObject(ctx, url, localPath); err != nil {
		return classifyRemote(op, "", err, "failed to download "+url)
	}
	return nil
}

// DeleteFile removes the blob at url.
func (m *Manager) DeleteFile(ctx context.Context, url string) error {
	const op = "DeleteFile"

	storage, err := m.storageService(op)
	if err != nil {
		return err
	}
	if err := storage.DeleteObject(ctx, url); err != nil {
		return classifyRemote(op, "", err, "failed to delete "+url)
	}
	return nil
}

func (m *Manager) storageService(op string) (StorageService, error) {
	storage, ok := m.storage.Get()
	if !ok {
		return nil, newError(op, ErrResourceUnavailable, "", nil, "file storage service is already dropped")
	}
	return storage, nil
}
