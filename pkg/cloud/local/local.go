// Package local is a remote backend kept in a directory tree. It is used for
// single-machine setups and for tests.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/collabdocs/pkg/cloud"
	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/document"
)

// Scheme prefixes the URLs of stored files.
const Scheme = "local"

// ErrNotFound is returned for documents and files that do not exist.
var ErrNotFound = fmt.Errorf("local object: %w", document.ErrNotFound)

// Config configures a local backend.
type Config struct {
	// Root is the directory holding all objects.
	Root string `hcl:"root,optional"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root is required")
	}
	return nil
}

// Service stores documents and files below Root on Fs. Local paths passed to
// CreateUpload and DownloadObject are resolved on Host.
type Service struct {
	fs     afero.Fs
	host   afero.Fs
	logger hclog.Logger
}

var (
	_ document.CloudService   = (*Service)(nil)
	_ document.StorageService = (*Service)(nil)
)

// New creates a local backend on the operating system filesystem.
func New(cfg Config, logger hclog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid local backend configuration: %w", err)
	}
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root %s: %w", cfg.Root, err)
	}
	return NewWithFs(afero.NewBasePathFs(osFs, cfg.Root), osFs, logger), nil
}

// NewWithFs creates a local backend storing objects on fs.
func NewWithFs(fs, host afero.Fs, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		fs:     fs,
		host:   host,
		logger: logger.Named("local-cloud"),
	}
}

// GetDocumentDocState returns the stored bytes of a document.
func (s *Service) GetDocumentDocState(ctx context.Context, documentID, workspaceID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := cloud.DocumentKey(workspaceID, documentID)
	data, err := afero.ReadFile(s.fs, key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
		}
		return nil, fmt.Errorf("failed to read document %s: %w", documentID, err)
	}
	return data, nil
}

// CreateDocumentCollab stores the encoded state of a document, replacing
// any previous state.
func (s *Service) CreateDocumentCollab(ctx context.Context, workspaceID, documentID string, encoded collab.EncodedCollab) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := cloud.DocumentKey(workspaceID, documentID)
	if err := s.writeFile(key, encoded.DocState); err != nil {
		return fmt.Errorf("failed to write document %s: %w", documentID, err)
	}
	s.logger.Trace("stored document", "document_id", documentID, "bytes", len(encoded.DocState))
	return nil
}

// CreateUpload copies localPath into the backend.
func (s *Service) CreateUpload(ctx context.Context, workspaceID, parentDir, localPath string) (document.CreatedUpload, error) {
	if err := ctx.Err(); err != nil {
		return document.CreatedUpload{}, err
	}
	src, err := s.host.Open(localPath)
	if err != nil {
		return document.CreatedUpload{}, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	fileID := cloud.NewFileID()
	key := cloud.FileKey(workspaceID, parentDir, fileID, filepath.ToSlash(localPath))
	if err := s.copyTo(s.fs, key, src); err != nil {
		return document.CreatedUpload{}, fmt.Errorf("failed to store %s: %w", localPath, err)
	}

	url := cloud.FormatURL(Scheme, key)
	s.logger.Debug("stored file", "url", url)
	return document.CreatedUpload{URL: url, FileID: fileID}, nil
}

// DownloadObject copies the object at url to localPath.
func (s *Service) DownloadObject(ctx context.Context, url, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := cloud.ParseURL(Scheme, url)
	if err != nil {
		return err
	}
	src, err := s.fs.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	defer src.Close()

	return s.copyTo(s.host, localPath, src)
}

// DeleteObject removes the object at url.
func (s *Service) DeleteObject(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := cloud.ParseURL(Scheme, url)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(key); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return fmt.Errorf("failed to delete %s: %w", url, err)
	}
	return nil
}

// writeFile writes through a temporary file so readers never see a partial
// document.
func (s *Service) writeFile(name string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	tmp := name + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, name)
}

func (s *Service) copyTo(fs afero.Fs, name string, src io.Reader) error {
	if err := fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	dst, err := fs.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
