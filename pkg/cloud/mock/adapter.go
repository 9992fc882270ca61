// Package mock provides an in-memory remote backend for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp-forge/collabdocs/pkg/cloud"
	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/document"
)

// Scheme prefixes the URLs of stored files.
const Scheme = "mock"

// FakeAdapter is a fake remote backend. It stores all data in memory and
// records every call so tests can assert on them.
type FakeAdapter struct {
	mu sync.RWMutex

	// Documents stores encoded documents by "workspace/document".
	Documents map[string]collab.EncodedCollab

	// Files stores uploaded blobs by object key.
	Files map[string][]byte

	// LocalFiles stands in for the local filesystem: uploads read from it and
	// downloads write to it.
	LocalFiles map[string][]byte

	// Calls tracks every operation for testing verification.
	Calls []CallRecord

	// FetchErr and CreateErr, when set, fail the matching operation.
	FetchErr  error
	CreateErr error
}

// CallRecord tracks one call made through the fake adapter.
type CallRecord struct {
	Op         string
	DocumentID string
	URL        string
	At         time.Time
}

// Compile-time interface checks
var (
	_ document.CloudService   = (*FakeAdapter)(nil)
	_ document.StorageService = (*FakeAdapter)(nil)
)

// NewFakeAdapter creates an empty fake adapter.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		Documents:  make(map[string]collab.EncodedCollab),
		Files:      make(map[string][]byte),
		LocalFiles: make(map[string][]byte),
	}
}

func documentKey(workspaceID, documentID string) string {
	return workspaceID + "/" + documentID
}

// record must be called with f.mu held.
func (f *FakeAdapter) record(op, documentID, url string) {
	f.Calls = append(f.Calls, CallRecord{Op: op, DocumentID: documentID, URL: url, At: time.Now()})
}

// GetDocumentDocState returns the stored state of a document.
func (f *FakeAdapter) GetDocumentDocState(ctx context.Context, documentID, workspaceID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetDocumentDocState", documentID, "")

	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	encoded, ok := f.Documents[documentKey(workspaceID, documentID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", document.ErrNotFound, documentID)
	}
	return encoded.DocState, nil
}

// CreateDocumentCollab stores the encoded state of a document.
func (f *FakeAdapter) CreateDocumentCollab(ctx context.Context, workspaceID, documentID string, encoded collab.EncodedCollab) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateDocumentCollab", documentID, "")

	if f.CreateErr != nil {
		return f.CreateErr
	}
	f.Documents[documentKey(workspaceID, documentID)] = encoded
	return nil
}

// CreateUpload copies a LocalFiles entry into Files.
func (f *FakeAdapter) CreateUpload(ctx context.Context, workspaceID, parentDir, localPath string) (document.CreatedUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	content, ok := f.LocalFiles[localPath]
	if !ok {
		return document.CreatedUpload{}, fmt.Errorf("local file not found: %s", localPath)
	}
	fileID := cloud.NewFileID()
	key := cloud.FileKey(workspaceID, parentDir, fileID, localPath)
	f.Files[key] = append([]byte(nil), content...)

	url := cloud.FormatURL(Scheme, key)
	f.record("CreateUpload", parentDir, url)
	return document.CreatedUpload{URL: url, FileID: fileID}, nil
}

// DownloadObject copies a stored file into LocalFiles.
func (f *FakeAdapter) DownloadObject(ctx context.Context, url, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DownloadObject", "", url)

	key, err := cloud.ParseURL(Scheme, url)
	if err != nil {
		return err
	}
	content, ok := f.Files[key]
	if !ok {
		return fmt.Errorf("%w: %s", document.ErrNotFound, url)
	}
	f.LocalFiles[localPath] = append([]byte(nil), content...)
	return nil
}

// DeleteObject removes a stored file.
func (f *FakeAdapter) DeleteObject(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteObject", "", url)

	key, err := cloud.ParseURL(Scheme, url)
	if err != nil {
		return err
	}
	if _, ok := f.Files[key]; !ok {
		return fmt.Errorf("%w: %s", document.ErrNotFound, url)
	}
	delete(f.Files, key)
	return nil
}

// ===================================================================
// Builder methods for test setup
// ===================================================================

// WithDocument seeds a document.
func (f *FakeAdapter) WithDocument(workspaceID, documentID string, encoded collab.EncodedCollab) *FakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Documents[documentKey(workspaceID, documentID)] = encoded
	return f
}

// WithLocalFile seeds a file for CreateUpload.
func (f *FakeAdapter) WithLocalFile(localPath string, content []byte) *FakeAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LocalFiles[localPath] = content
	return f
}

// Document returns a stored document.
func (f *FakeAdapter) Document(workspaceID, documentID string) (collab.EncodedCollab, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	encoded, ok := f.Documents[documentKey(workspaceID, documentID)]
	return encoded, ok
}

// CallCount returns how many times op was called.
func (f *FakeAdapter) CallCount(op string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}
