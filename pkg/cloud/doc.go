// Package cloud holds the remote backends a document Manager can replicate
// to and fetch from. Each sub-package implements both document.CloudService
// and document.StorageService:
//
//   - local: a directory tree on an afero filesystem
//   - s3: an S3-compatible bucket
//   - mock: an in-memory fake for tests
//
// Object URLs are scheme-prefixed ("local://", "s3://", "mock://") so a
// backend rejects URLs it did not hand out.
package cloud

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// DocumentKey is the object key of a document's encoded state.
func DocumentKey(workspaceID, documentID string) string {
	return path.Join("workspaces", workspaceID, "documents", documentID+".collab")
}

// FileKey is the object key of a new upload. The file id keeps uploads of
// the same local name apart.
func FileKey(workspaceID, parentDir, fileID, localPath string) string {
	return path.Join("workspaces", workspaceID, "files", parentDir, fileID+"-"+SanitizeFilename(path.Base(localPath)))
}

// NewFileID returns a fresh upload id.
func NewFileID() string {
	return uuid.New().String()
}

// ParseURL splits a "<scheme>://<key>" URL and checks the scheme.
func ParseURL(scheme, url string) (string, error) {
	prefix := scheme + "://"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("not a %s url: %q", scheme, url)
	}
	key := strings.TrimPrefix(strings.TrimPrefix(url, prefix), "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key in %q", url)
	}
	return key, nil
}

// FormatURL builds the URL of key under scheme.
func FormatURL(scheme, key string) string {
	return scheme + "://" + key
}

// SanitizeFilename removes characters that are problematic in object keys.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "-")
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "",
		"<", "-",
		">", "-",
		"|", "-",
	)
	return replacer.Replace(name)
}
