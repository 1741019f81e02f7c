package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rateguard/internal/app/policies"
)

// ReceiptArchive keeps execution receipts in an S3-compatible bucket.
type ReceiptArchive struct {
	bucket string
	client *minio.Client
	logger *slog.Logger

	mu          sync.Mutex
	bucketReady bool
}

// NewReceiptArchive configures the archive using the provided endpoint and credentials.
func NewReceiptArchive(endpoint string, useSSL bool, accessKey, secretKey, bucket string, logger *slog.Logger) (*ReceiptArchive, error) {
	cleanEndpoint := strings.TrimSpace(endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	}
	minioClient, err := minio.New(parseEndpoint(cleanEndpoint), opts)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return &ReceiptArchive{bucket: bucket, client: minioClient, logger: logger}, nil
}

// Store uploads the receipt and returns its object key.
func (a *ReceiptArchive) Store(ctx context.Context, r policies.Receipt) (string, error) {
	key, err := receiptKey(r)
	if err != nil {
		return "", err
	}
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}
	contentType := r.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(r.Payload), int64(len(r.Payload)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"proposal-id": r.ProposalID,
			"listing-id":  r.ListingID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3: put object: %w", err)
	}
	if a.logger != nil {
		a.logger.InfoContext(ctx, "execution receipt stored", "bucket", a.bucket, "key", key)
	}
	return key, nil
}

// Ping checks that the bucket is reachable.
func (a *ReceiptArchive) Ping(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.bucket)
	return err
}

// ensureBucket creates the bucket on first use; a failed attempt is retried on the next upload.
func (a *ReceiptArchive) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bucketReady {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("s3: check bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("s3: create bucket: %w", err)
		}
	}
	a.bucketReady = true
	return nil
}

// receiptKey lays receipts out as receipts/<listing>/<proposal>/<attempt>-<time>.json.
func receiptKey(r policies.Receipt) (string, error) {
	listing := pathSegment(r.ListingID)
	proposal := pathSegment(r.ProposalID)
	if listing == "" || proposal == "" {
		return "", errors.New("s3: receipt needs listing and proposal ids")
	}
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	ext := ".bin"
	if strings.HasPrefix(r.ContentType, "application/json") {
		ext = ".json"
	}
	return fmt.Sprintf("receipts/%s/%s/%03d-%s%s", listing, proposal, r.Attempt, at.UTC().Format("20060102T150405Z"), ext), nil
}

func pathSegment(s string) string {
	return url.PathEscape(strings.Trim(strings.TrimSpace(s), "/"))
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ policies.ReceiptArchive = (*ReceiptArchive)(nil)
