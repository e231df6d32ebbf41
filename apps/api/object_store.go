package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	storageNameRandomBytes = 16
	diskUploadsURLPrefix   = "/uploads"
)

// ObjectStore stores binary assets and returns the public URL of each one.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// S3PutObjectAPI is the subset of the S3 client used by S3ObjectStore.
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3ObjectStore struct {
	Client        S3PutObjectAPI
	Bucket        string
	PublicBaseURL string
}

func (s *S3ObjectStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.Client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return strings.TrimRight(s.PublicBaseURL, "/") + "/" + key, nil
}

// DiskObjectStore writes objects below Root; the router serves Root at
// diskUploadsURLPrefix.
type DiskObjectStore struct {
	Root string
}

func (s *DiskObjectStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	clean := path.Clean("/" + key)
	fullPath := filepath.Join(s.Root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", err
	}
	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return diskUploadsURLPrefix + clean, nil
}

func newObjectStore(ctx context.Context, cfg *Config) (ObjectStore, error) {
	if cfg.StorageBackend != "s3" {
		root := filepath.Join(cfg.DataRoot, "uploads")
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, err
		}
		return &DiskObjectStore{Root: root}, nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.S3Region, cfg.S3AccessKeyID, cfg.S3SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return &S3ObjectStore{
		Client:        s3.NewFromConfig(awsCfg),
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
	}, nil
}

// loadAWSConfig uses static credentials when both keys are given and the
// default provider chain otherwise.
func loadAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func generateStorageFileName(ext string) (string, error) {
	buffer := make([]byte, storageNameRandomBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer) + ext, nil
}

func tourObjectKey(tourID, slot, ext string) (string, error) {
	name, err := generateStorageFileName(ext)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("tours/%s/%s-%s", tourID, slot, name), nil
}
