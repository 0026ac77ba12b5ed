package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"vidscribe/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const wavContentType = "audio/wav"

type S3Storage struct {
	client   *s3.Client
	bucket   string
	endpoint string
}

// NewS3Storage creates a new S3 storage client. An empty endpoint means AWS itself.
func NewS3Storage(ctx context.Context, endpoint, region, accessKey, secretKey, bucket string) (*S3Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info("S3 storage initialized",
		zap.String("bucket", bucket),
		zap.String("region", region))

	return &S3Storage{
		client:   client,
		bucket:   bucket,
		endpoint: strings.TrimRight(endpoint, "/"),
	}, nil
}

// UploadFile uploads a file to S3 and returns its object URL
func (s *S3Storage) UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	url := s.ObjectURL(key)
	logger.Info("File uploaded to S3",
		zap.String("key", key),
		zap.String("url", url))

	return url, nil
}

// ArchiveAudio stores the extracted audio of a task under its dated key
func (s *S3Storage) ArchiveAudio(ctx context.Context, taskID string, body io.Reader) (string, error) {
	return s.UploadFile(ctx, GenerateKey(taskID, ".wav", time.Now()), body, wavContentType)
}

// ObjectURL is the path-style URL of key on a custom endpoint, or the s3:// URI otherwise
func (s *S3Storage) ObjectURL(key string) string {
	if s.endpoint == "" {
		return fmt.Sprintf("s3://%s/%s", s.bucket, key)
	}
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
}

// GenerateKey generates the object key audio/YYYY/MM/DD/<task><ext>
func GenerateKey(taskID, extension string, at time.Time) string {
	return path.Join("audio", at.UTC().Format("2006/01/02"), taskID+extension)
}
