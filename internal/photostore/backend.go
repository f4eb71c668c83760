package photostore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Backend abstracts durable photo storage. The in-memory Store (store.go) is
// what the spec requires outright; a Backend is an optional layer beneath it
// so a captured photo survives process restarts instead of only living in
// the bounded recents ring.
type Backend interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) bool
	Type() string
}

// S3Config configures the optional S3-compatible durable backend.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Enabled reports whether S3 backing is configured at all.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// LocalBackend stores photos on the local filesystem, keyed by request ID.
type LocalBackend struct {
	dir string
}

// NewLocalBackend creates a local filesystem photo backend rooted at dir.
func NewLocalBackend(dir string) *LocalBackend {
	return &LocalBackend{dir: dir}
}

func (b *LocalBackend) safePath(key string) (string, error) {
	full := filepath.Join(b.dir, filepath.FromSlash(key))
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	base, err := filepath.Abs(b.dir)
	if err != nil {
		return "", fmt.Errorf("invalid base: %w", err)
	}
	if !strings.HasPrefix(abs, base+string(filepath.Separator)) && abs != base {
		return "", fmt.Errorf("path traversal rejected: %q", key)
	}
	return abs, nil
}

func (b *LocalBackend) Save(_ context.Context, key string, data []byte, _ string) error {
	path, err := b.safePath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".photo-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (b *LocalBackend) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := b.safePath(key)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (b *LocalBackend) Exists(_ context.Context, key string) bool {
	path, err := b.safePath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (b *LocalBackend) Type() string { return "local" }

// S3Backend stores photos in an S3-compatible object store.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewS3Backend creates an S3 photo backend from cfg.
func NewS3Backend(cfg S3Config, log zerolog.Logger) (*S3Backend, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3Backend{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With().Str("component", "photostore-s3").Logger(),
	}, nil
}

func (b *S3Backend) objectKey(key string) string {
	if b.prefix != "" {
		return b.prefix + "/photos/" + key
	}
	return "photos/" + key
}

func (b *S3Backend) Save(ctx context.Context, key string, data []byte, contentType string) error {
	objKey := b.objectKey(key)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &b.bucket,
		Key:         &objKey,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	return err
}

func (b *S3Backend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objKey := b.objectKey(key)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &objKey})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (b *S3Backend) Exists(ctx context.Context, key string) bool {
	objKey := b.objectKey(key)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.bucket, Key: &objKey})
	return err == nil
}

func (b *S3Backend) Type() string { return "s3" }

// TieredBackend writes to local disk first (source of truth for the
// in-process lifetime) and asynchronously mirrors to S3 for durability
// across restarts. Reads prefer local, falling back to S3 with cache-on-read.
type TieredBackend struct {
	local  *LocalBackend
	s3     *S3Backend
	upload chan uploadJob
	log    zerolog.Logger
}

type uploadJob struct {
	key         string
	data        []byte
	contentType string
}

// NewTieredBackend creates a tiered backend and starts its background
// uploader with the given worker count.
func NewTieredBackend(local *LocalBackend, s3b *S3Backend, workers, bufferSize int, log zerolog.Logger) *TieredBackend {
	t := &TieredBackend{
		local:  local,
		s3:     s3b,
		upload: make(chan uploadJob, bufferSize),
		log:    log.With().Str("component", "photostore-tiered").Logger(),
	}
	for i := 0; i < workers; i++ {
		go t.uploadWorker()
	}
	return t
}

func (t *TieredBackend) uploadWorker() {
	for job := range t.upload {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := t.s3.Save(ctx, job.key, job.data, job.contentType); err != nil {
			t.log.Warn().Err(err).Str("key", job.key).Msg("async S3 photo backup failed")
		}
		cancel()
	}
}

func (t *TieredBackend) Save(ctx context.Context, key string, data []byte, contentType string) error {
	if err := t.local.Save(ctx, key, data, contentType); err != nil {
		return err
	}
	select {
	case t.upload <- uploadJob{key: key, data: data, contentType: contentType}:
	default:
		t.log.Warn().Str("key", key).Msg("photo upload queue full, S3 backup skipped")
	}
	return nil
}

func (t *TieredBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if r, err := t.local.Open(ctx, key); err == nil {
		return r, nil
	}
	r, err := t.s3.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, err
	}
	if cacheErr := t.local.Save(ctx, key, data, ""); cacheErr != nil {
		t.log.Warn().Err(cacheErr).Str("key", key).Msg("failed to cache S3 photo locally")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (t *TieredBackend) Exists(ctx context.Context, key string) bool {
	if t.local.Exists(ctx, key) {
		return true
	}
	return t.s3.Exists(ctx, key)
}

func (t *TieredBackend) Type() string { return "tiered" }
