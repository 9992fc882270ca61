package s3

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/hashicorp-forge/collabdocs/pkg/cloud"
	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/document"
)

// Scheme prefixes the URLs of stored files.
const Scheme = "s3"

// ErrNotFound is returned for missing objects.
var ErrNotFound = fmt.Errorf("s3 object: %w", document.ErrNotFound)

// Metadata keys written on document objects.
const (
	metaStateVector    = "state-vector"
	metaEncoderVersion = "encoder-version"
)

// objectAPI is the part of the S3 client the adapter uses.
type objectAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Adapter stores documents and files in an S3 bucket.
type Adapter struct {
	client objectAPI
	cfg    *Config
	host   afero.Fs
	logger hclog.Logger
}

var (
	_ document.CloudService   = (*Adapter)(nil)
	_ document.StorageService = (*Adapter)(nil)
)

// NewAdapter creates a new S3 backend and verifies the bucket is reachable.
func NewAdapter(ctx context.Context, cfg *Config, logger hclog.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid S3 configuration: %w", err)
	}
	cfg.SetDefaults()

	awsCfg, err := createAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoint for MinIO or other S3-compatible services
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	adapter := newAdapter(client, cfg, afero.NewOsFs(), logger)
	if err := adapter.verifyBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify S3 bucket: %w", err)
	}

	adapter.logger.Info("S3 backend initialized",
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
	)
	return adapter, nil
}

func newAdapter(client objectAPI, cfg *Config, host afero.Fs, logger hclog.Logger) *Adapter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Adapter{
		client: client,
		cfg:    cfg,
		host:   host,
		logger: logger.Named("s3-cloud"),
	}
}

// createAWSConfig creates AWS SDK configuration from S3 config.
func createAWSConfig(ctx context.Context, cfg *Config) (aws.Config, error) {
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
		},
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	return config.LoadDefaultConfig(ctx, opts...)
}

func (a *Adapter) verifyBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s is not accessible: %w", a.cfg.Bucket, err)
	}
	return nil
}

// GetDocumentDocState returns the stored bytes of a document.
func (a *Adapter) GetDocumentDocState(ctx context.Context, documentID, workspaceID string) ([]byte, error) {
	content, err := a.getObject(ctx, a.objectKey(cloud.DocumentKey(workspaceID, documentID)))
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", documentID, err)
	}
	return content, nil
}

// CreateDocumentCollab stores the encoded state of a document.
func (a *Adapter) CreateDocumentCollab(ctx context.Context, workspaceID, documentID string, encoded collab.EncodedCollab) error {
	key := a.objectKey(cloud.DocumentKey(workspaceID, documentID))
	metadata := map[string]string{
		metaStateVector:    fmt.Sprintf("%x", encoded.StateVector),
		metaEncoderVersion: fmt.Sprintf("%d", encoded.Version),
	}
	if err := a.putObject(ctx, key, bytes.NewReader(encoded.DocState), "application/json", metadata); err != nil {
		return fmt.Errorf("failed to store document %s: %w", documentID, err)
	}
	a.logger.Trace("stored document", "document_id", documentID, "key", key)
	return nil
}

// CreateUpload uploads localPath to the bucket.
func (a *Adapter) CreateUpload(ctx context.Context, workspaceID, parentDir, localPath string) (document.CreatedUpload, error) {
	src, err := a.host.Open(localPath)
	if err != nil {
		return document.CreatedUpload{}, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	fileID := cloud.NewFileID()
	key := a.objectKey(cloud.FileKey(workspaceID, parentDir, fileID, filepath.ToSlash(localPath)))
	if err := a.putObject(ctx, key, src, a.contentType(localPath), nil); err != nil {
		return document.CreatedUpload{}, fmt.Errorf("failed to upload %s: %w", localPath, err)
	}

	url := cloud.FormatURL(Scheme, path.Join(a.cfg.Bucket, key))
	a.logger.Debug("uploaded file", "url", url)
	return document.CreatedUpload{URL: url, FileID: fileID}, nil
}

// DownloadObject writes the object at url to localPath.
func (a *Adapter) DownloadObject(ctx context.Context, url, localPath string) error {
	key, err := a.parseURL(url)
	if err != nil {
		return err
	}
	content, err := a.getObject(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	if err := a.host.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", localPath, err)
	}
	if err := afero.WriteFile(a.host, localPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}

// DeleteObject removes the object at url.
func (a *Adapter) DeleteObject(ctx context.Context, url string) error {
	key, err := a.parseURL(url)
	if err != nil {
		return err
	}
	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object from S3: %w", mapError(err))
	}
	return nil
}

// objectKey applies the configured prefix.
func (a *Adapter) objectKey(key string) string {
	if a.cfg.Prefix != "" {
		return path.Join(a.cfg.Prefix, key)
	}
	return key
}

// parseURL extracts the object key from "s3://{bucket}/{key}".
func (a *Adapter) parseURL(url string) (string, error) {
	rest, err := cloud.ParseURL(Scheme, url)
	if err != nil {
		return "", err
	}
	bucketPrefix := a.cfg.Bucket + "/"
	if len(rest) <= len(bucketPrefix) || rest[:len(bucketPrefix)] != bucketPrefix {
		return "", fmt.Errorf("url %q is not in bucket %s", url, a.cfg.Bucket)
	}
	return rest[len(bucketPrefix):], nil
}

func (a *Adapter) contentType(localPath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		return ct
	}
	return a.cfg.DefaultContentType
}

func (a *Adapter) getObject(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from S3: %w", mapError(err))
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object content: %w", err)
	}
	return content, nil
}

func (a *Adapter) putObject(ctx context.Context, key string, body io.Reader, contentType string, metadata map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object to S3: %w", err)
	}
	return nil
}

// mapError marks missing keys with ErrNotFound.
func mapError(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
