package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gocache "github.com/patrickmn/go-cache"

	appconfig "github.com/praxisboard/board-api/internal/config"
)

// ObjectStore is the blob surface the board and intake paths depend on.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, string, error)
	Remove(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// SignedURL returns a time-limited download link for a private object.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	// PublicURL returns the stable unauthenticated link for a public object.
	PublicURL(key string) string
}

type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

type s3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	publicURL string
	urlCache  *gocache.Cache
}

// NewS3Store connects to the configured bucket. Signed URLs are memoized for
// their lifetime so repeated board loads don't re-sign per record.
func NewS3Store(ctx context.Context, cfg appconfig.StorageConfig) (ObjectStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &s3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		// Expire cached links at half their signed lifetime so a handed-out
		// URL is never already stale.
		urlCache: gocache.New(ttl/2, 10*time.Minute),
	}, nil
}

func (s *s3Store) Upload(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}
	return nil
}

func (s *s3Store) Download(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to download object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object %s: %w", key, err)
	}

	contentType := "application/octet-stream"
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return data, contentType, nil
}

func (s *s3Store) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	s.urlCache.Delete(key)
	return nil
}

func (s *s3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}

	infos := make([]ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		info := ObjectInfo{}
		if obj.Key != nil {
			info.Key = *obj.Key
		}
		if obj.Size != nil {
			info.Size = *obj.Size
		}
		if obj.LastModified != nil {
			info.LastModified = *obj.LastModified
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (s *s3Store) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if cached, ok := s.urlCache.Get(key); ok {
		return cached.(string), nil
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", key, err)
	}

	s.urlCache.Set(key, req.URL, gocache.DefaultExpiration)
	return req.URL, nil
}

func (s *s3Store) PublicURL(key string) string {
	if s.publicURL == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	}
	return fmt.Sprintf("%s/%s", s.publicURL, key)
}
