package assets

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"sync"

	"git.handmade.network/hmn/forum/src/config"
	"git.handmade.network/hmn/forum/src/oops"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore talks to a MinIO server, for deployments that self-host their
// object storage.
type MinioStore struct {
	client    *minio.Client
	bucket    string
	region    string
	publicUrl string

	bucketOnce sync.Once
	bucketErr  error
}

var _ Store = &MinioStore{}

func NewMinioStore(cfg config.AssetsConfig) (*MinioStore, error) {
	endpoint, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKeyId, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, oops.New(err, "failed to create minio client")
	}

	return &MinioStore{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		publicUrl: strings.TrimRight(cfg.PublicUrl, "/"),
	}, nil
}

// minio wants host:port, not a URL.
func splitEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, false, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, oops.New(err, "invalid assets endpoint '%s'", endpoint)
	}
	return u.Host, u.Scheme == "https", nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	s.bucketOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.bucketErr = oops.New(err, "failed to check for assets bucket")
			return
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				s.bucketErr = oops.New(err, "failed to create assets bucket")
			}
		}
	})
	return s.bucketErr
}

func (s *MinioStore) Put(ctx context.Context, key, contentType string, content []byte) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return oops.New(err, "failed to upload asset")
	}
	return nil
}

func (s *MinioStore) URL(key string) string {
	return s.publicUrl + "/" + key
}
