package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vlinder/social-grant/pkg/application"
)

type s3Uploader interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps documents in a bucket. Document.Path holds the object key.
type S3Store struct {
	client s3Uploader
	bucket string
	prefix string
	limits Limits
	now    func() time.Time
}

func NewS3Store(client s3Uploader, bucket, prefix string, limits Limits) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		limits: limits.normalize(),
		now:    time.Now,
	}
}

// NewS3Client loads the default AWS credential chain for the region.
// A non-empty endpoint switches to path style addressing for S3 compatible stores.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.EndpointResolver = s3.EndpointResolverFromURL(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (s *S3Store) Save(ctx context.Context, file FileInput) (application.Document, error) {
	if err := s.limits.Check(file); err != nil {
		return application.Document{}, err
	}

	// the whole body is read first so oversized files never reach the bucket
	body, err := io.ReadAll(&limitedReader{r: file.Content, max: s.limits.MaxBytes})
	if err != nil {
		return application.Document{}, err
	}

	now := s.now()
	name := generateName(file, now)
	key := s.prefix + name

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Body:          bytes.NewReader(body),
		Key:           aws.String(key),
		Bucket:        aws.String(s.bucket),
		ContentType:   aws.String(file.MimeType),
		ContentLength: int64(len(body)),
	})
	if err != nil {
		return application.Document{}, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return application.Document{
		FileName:     name,
		OriginalName: file.OriginalName,
		MimeType:     file.MimeType,
		Size:         int64(len(body)),
		Path:         key,
		UploadedAt:   now,
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
