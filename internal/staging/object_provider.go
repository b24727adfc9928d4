package staging

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig configures the MinIO/S3 staging backend.
type ObjectConfig struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string // key prefix inside the bucket (default "staging")
}

// ObjectProvider stages chunk payloads in a MinIO/S3 bucket. Used for runs
// too large for local staging; objects are removed on Discard.
type ObjectProvider struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectProvider connects to the object store and ensures the bucket
// exists, auto-provisioning it when missing.
func NewObjectProvider(ctx context.Context, cfg ObjectConfig) (*ObjectProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object staging: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object staging: bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("object staging: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("object staging: bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("object staging: create bucket %s: %w", cfg.Bucket, err)
		}
	}

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "staging"
	}

	return &ObjectProvider{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

func (p *ObjectProvider) ID() string { return ProviderObject }

func (p *ObjectProvider) key(ref string) string {
	return p.prefix + "/" + ref + ".csv"
}

func (p *ObjectProvider) Put(ctx context.Context, ref string, r io.Reader, size int64) error {
	_, err := p.client.PutObject(ctx, p.bucket, p.key(ref), r, size, minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return fmt.Errorf("stage %s: %w", ref, err)
	}
	return nil
}

func (p *ObjectProvider) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	obj, err := p.client.GetObject(ctx, p.bucket, p.key(ref), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", ref, err)
	}
	return obj, nil
}

func (p *ObjectProvider) Discard(ctx context.Context, ref string) error {
	err := p.client.RemoveObject(ctx, p.bucket, p.key(ref), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("discard %s: %w", ref, err)
	}
	return nil
}
