package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/harunnryd/voxa/pkg/errorsx"
)

// Config configures an S3-compatible bucket for rendered audio.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3Store uploads objects and hands out presigned GET URLs.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	log     *slog.Logger
}

func NewS3Store(ctx context.Context, cfg Config, log *slog.Logger) (*S3Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errorsx.NotConfigured("providers.object_store")
	}
	if log == nil {
		log = slog.Default()
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		log:     log,
	}, nil
}

// Upload stores data under key and returns a GET URL valid for ttl.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte, contentType string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(fmt.Sprintf("max-age=%d", int(ttl.Seconds()))),
	})
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("s3 put object: %w", err), errorsx.ReasonTTSUpload)
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", errorsx.Wrap(fmt.Errorf("s3 presign: %w", err), errorsx.ReasonTTSUpload)
	}
	s.log.Debug("audio_uploaded", slog.String("key", key), slog.Int("bytes", len(data)))
	return req.URL, nil
}
