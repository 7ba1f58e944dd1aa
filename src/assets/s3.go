package assets

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"

	"git.handmade.network/hmn/forum/src/config"
	"git.handmade.network/hmn/forum/src/logging"
	"git.handmade.network/hmn/forum/src/oops"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type S3Store struct {
	client    *s3.Client
	bucket    string
	publicUrl string

	bucketMu      sync.Mutex
	bucketCreated bool
}

var _ Store = &S3Store{}

func NewS3Store(ctx context.Context, cfg config.AssetsConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyId, cfg.SecretKey, ""),
		),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithEndpointResolver(aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL: cfg.Endpoint,
			}, nil
		})),
	)
	if err != nil {
		return nil, oops.New(err, "failed to load S3 config")
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = true
		}),
		bucket:    cfg.Bucket,
		publicUrl: strings.TrimRight(cfg.PublicUrl, "/"),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, content []byte) error {
	upload := func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &s.bucket,
			Key:         &key,
			Body:        bytes.NewReader(content),
			ACL:         types.ObjectCannedACLPublicRead,
			ContentType: &contentType,
		})
		return err
	}

	err := upload()
	if err == nil {
		return nil
	}

	// Fresh dev environments won't have the bucket yet.
	var apiError smithy.APIError
	if !errors.As(err, &apiError) || apiError.ErrorCode() != "NoSuchBucket" {
		return oops.New(err, "failed to upload asset")
	}
	if err := s.createBucket(ctx); err != nil {
		return err
	}
	if err := upload(); err != nil {
		return oops.New(err, "failed to upload asset")
	}
	return nil
}

func (s *S3Store) createBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketCreated {
		return nil
	}

	logging.ExtractLogger(ctx).Info().Str("bucket", s.bucket).Msg("Creating assets bucket")
	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: &s.bucket,
	})
	if err != nil {
		return oops.New(err, "failed to create assets bucket")
	}
	s.bucketCreated = true
	return nil
}

func (s *S3Store) URL(key string) string {
	return s.publicUrl + "/" + key
}
