package mirror

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"appforge/internal/preview"
)

// S3Config points the mirror at an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Store replicates saved artifact trees to object storage so deployed
// apps can be served or downloaded independently of the local output root.
type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string
	initOnce   sync.Once
	initErr    error
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Store{
		client:     client,
		bucketName: bucket,
		region:     region,
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("store is nil")
	}
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// PutTree uploads every file of an artifact under <deployKey>/<path>.
func (s *S3Store) PutTree(ctx context.Context, deployKey string, files map[string][]byte) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	deployKey = strings.TrimSpace(deployKey)
	if deployKey == "" {
		return fmt.Errorf("deploy key is required")
	}
	if len(files) == 0 {
		return fmt.Errorf("file set is empty")
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		content := files[path]
		if content == nil {
			content = []byte{}
		}
		key := objectKey(deployKey, path)
		_, err := s.client.PutObject(ctx, s.bucketName, key,
			bytes.NewReader(content), int64(len(content)),
			minio.PutObjectOptions{ContentType: preview.ContentTypeFor(path)})
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}
	return nil
}

func objectKey(deployKey, path string) string {
	normalized := strings.TrimLeft(strings.TrimSpace(path), "/")
	return strings.TrimSpace(deployKey) + "/" + normalized
}
