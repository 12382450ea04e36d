package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 загружает картинки в бакет, публичный адрес строится от PublicBaseURL (CDN)
type S3 struct {
	client  *s3.Client
	bucket  string
	prefix  string
	baseURL string
}

// NewS3 берёт учётные данные из стандартной цепочки AWS (env, профиль, роль)
func NewS3(ctx context.Context, region, bucket, prefix, publicBaseURL string) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return &S3{
		client:  s3.NewFromConfig(awsCfg),
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (s *S3) Put(ctx context.Context, img Image) (Uploaded, error) {
	const op = "storage.S3.Put"

	name, err := objectName(img.Filename)
	if err != nil {
		return Uploaded{}, fmt.Errorf("%s: %w", op, err)
	}
	key := name
	if s.prefix != "" {
		key = s.prefix + "/" + name
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   img.Body,
	}
	if img.ContentType != "" {
		input.ContentType = aws.String(img.ContentType)
	}
	if img.Size > 0 {
		input.ContentLength = aws.Int64(img.Size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Uploaded{}, fmt.Errorf("%s: %w", op, err)
	}
	return Uploaded{Key: key, URL: s.baseURL + "/" + key}, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	const op = "storage.S3.Delete"

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *S3) String() string { return "s3:" + s.bucket + "/" + s.prefix }
