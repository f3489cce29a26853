// Package archive stores raw feed snapshots in MinIO or any S3-compatible
// object store.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ObjectStore is the subset of *minio.Client used by the archiver.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Config configures the object store connection.
type Config struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// Archiver writes feed snapshots under <prefix>/<yyyy>/<mm>/<dd>/<run-id>.atom.
type Archiver struct {
	client ObjectStore
	bucket string
	region string
	prefix string

	mu          sync.Mutex
	bucketReady bool
}

// New creates an Archiver backed by a MinIO client.
func New(cfg Config) (*Archiver, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, eris.New("archive: endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "archive: create minio client")
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient creates an Archiver over an existing object store client.
func NewWithClient(client ObjectStore, cfg Config) *Archiver {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "feeds"
	}
	return &Archiver{client: client, bucket: cfg.Bucket, region: cfg.Region, prefix: prefix}
}

// Key returns the object key for a snapshot taken at t by run runID.
func (a *Archiver) Key(runID string, t time.Time) string {
	t = t.UTC()
	return path.Join(a.prefix,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()),
		runID+".atom")
}

// Put uploads a raw feed document and returns its object key.
func (a *Archiver) Put(ctx context.Context, runID string, t time.Time, raw []byte) (string, error) {
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}

	key := a.Key(runID, t)
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(raw), int64(len(raw)),
		minio.PutObjectOptions{ContentType: "application/atom+xml"})
	if err != nil {
		return "", eris.Wrapf(err, "archive: put %s", key)
	}

	zap.L().Debug("archive: stored feed snapshot",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(raw)),
	)
	return key, nil
}

// ensureBucket creates the bucket on first use.
func (a *Archiver) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketReady {
		return nil
	}

	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return eris.Wrapf(err, "archive: check bucket %s", a.bucket)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return eris.Wrapf(err, "archive: create bucket %s", a.bucket)
		}
	}
	a.bucketReady = true
	return nil
}
