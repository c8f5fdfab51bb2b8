package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/crypto/blake2b"
)

// CaptureArchive stores raw capture uploads in S3-compatible storage
type CaptureArchive struct {
	client     *minio.Client
	bucketName string
	region     string
	now        func() time.Time
}

// NewCaptureArchive creates a new S3 capture archive
func NewCaptureArchive(endpoint, accessKey, secretKey, bucketName, region string, useSSL bool) (*CaptureArchive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &CaptureArchive{
		client:     client,
		bucketName: bucketName,
		region:     region,
		now:        time.Now,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *CaptureArchive) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{
			Region: s.region,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Archive uploads one capture and returns its object key. Identical bytes
// uploaded on the same day map to the same key.
func (s *CaptureArchive) Archive(ctx context.Context, data []byte, format string) (string, error) {
	key := ObjectKey(s.now(), data, format)

	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType(format),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload capture: %w", err)
	}

	return key, nil
}

// GetBucketName returns the bucket name
func (s *CaptureArchive) GetBucketName() string {
	return s.bucketName
}

// ObjectKey builds captures/YYYY/MM/DD/<blake2b-256 hex>.<ext> using the UTC date of at.
func ObjectKey(at time.Time, data []byte, format string) string {
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("captures/%s/%s.%s", at.UTC().Format("2006/01/02"), hex.EncodeToString(sum[:]), extension(format))
}

func extension(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "tiff":
		return "tif"
	case "":
		return "bin"
	default:
		return format
	}
}

// ContentType maps a decoder format name to its MIME type
func ContentType(format string) string {
	if format == "" {
		return "application/octet-stream"
	}
	return "image/" + format
}
