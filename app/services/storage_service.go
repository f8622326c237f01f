package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// AudioStore persists uploaded audio blobs and serves them back by key.
// Keys are opaque to callers; BuildAudioKey produces them.
type AudioStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// BuildAudioKey produces the storage key for one recorded answer.
func BuildAudioKey(surveyUUID string, questionID string, ext string) string {
	if ext == "" {
		ext = ".webm"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s/%s/%s%s", surveyUUID, questionID, uuid.New().String(), ext)
}

// S3AudioStore stores audio in an S3-compatible bucket (AWS S3 or MinIO).
type S3AudioStore struct {
	client *s3.Client
	bucket string
}

// S3Config holds connection settings for the bucket.
type S3Config struct {
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string // set for MinIO, empty for AWS
	UsePathStyle bool
}

// NewS3AudioStore creates a store backed by the configured bucket.
func NewS3AudioStore(ctx context.Context, cfg S3Config) (*S3AudioStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3AudioStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads one audio blob.
func (s *S3AudioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload audio %s: %w", key, err)
	}
	return nil
}

// Get streams one audio blob back.
func (s *S3AudioStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch audio %s: %w", key, err)
	}
	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return out.Body, contentType, nil
}

// Delete removes one audio blob. Missing keys are not an error.
func (s *S3AudioStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete audio %s: %w", key, err)
	}
	return nil
}

// PresignedGetURL returns a time-limited URL for direct playback.
func (s *S3AudioStore) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign audio %s: %w", key, err)
	}
	return req.URL, nil
}

// LocalAudioStore stores audio on the local filesystem. Intended for
// development and tests; production uses S3AudioStore.
type LocalAudioStore struct {
	baseDir string
}

// NewLocalAudioStore creates a disk-backed store rooted at baseDir.
func NewLocalAudioStore(baseDir string) (*LocalAudioStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio dir: %w", err)
	}
	return &LocalAudioStore{baseDir: baseDir}, nil
}

func (s *LocalAudioStore) pathFor(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid audio key: %s", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// Put writes one audio blob to disk.
func (s *LocalAudioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create audio dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}

// Get opens one audio blob from disk. Content type is derived from the key
// extension since disk storage keeps no metadata.
func (s *LocalAudioStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio %s: %w", key, err)
	}
	return f, contentTypeForKey(key), nil
}

// Delete removes one audio blob from disk.
func (s *LocalAudioStore) Delete(ctx context.Context, key string) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete audio %s: %w", key, err)
	}
	return nil
}

// PresignedGetURL is unsupported for disk storage; callers fall back to
// streaming through the API.
func (s *LocalAudioStore) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "", fmt.Errorf("presigned URLs not supported by local storage")
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".webm":
		return "audio/webm"
	case ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
