package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Enabled reports whether enough is configured to reach a bucket.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// S3Store keeps images as objects in an S3-compatible bucket.
type S3Store struct {
	client s3Client
	bucket string
	prefix string
}

func NewS3Store(cfg S3Config) *S3Store {
	return &S3Store{client: newS3Client(cfg), bucket: cfg.Bucket, prefix: cfg.Prefix}
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (s *S3Store) key(ref string) string {
	return path.Join(s.prefix, ref)
}

func (s *S3Store) Put(ctx context.Context, data []byte, ext string) (string, error) {
	ref := newRef(ext)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(ref)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(ContentTypeFor(ref)),
	})
	if err != nil {
		return "", fmt.Errorf("upload image to s3: %w", err)
	}
	return ref, nil
}

func (s *S3Store) Get(ctx context.Context, ref string) ([]byte, string, error) {
	if !validRef(ref) {
		return nil, "", ErrNotFound
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	})
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("download image from s3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	ct := ContentTypeFor(ref)
	if result.ContentType != nil && *result.ContentType != "" {
		ct = *result.ContentType
	}
	return data, ct, nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	if !validRef(ref) {
		return fmt.Errorf("invalid image ref %q", ref)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(ref)),
	}); err != nil {
		return fmt.Errorf("delete image from s3: %w", err)
	}
	return nil
}
