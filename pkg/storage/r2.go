// Package storage provides R2 (S3-compatible) object storage via AWS SDK v2.
// Endpoint: https://<ACCOUNT_ID>.r2.cloudflarestorage.com
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned by Download when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// R2Client is an S3-compatible client for Cloudflare R2, bound to one bucket.
type R2Client struct {
	client *s3.Client
	bucket string
}

// NewR2Client creates an R2 client with the given account ID and R2 API credentials.
// Uses endpoint https://<accountID>.r2.cloudflarestorage.com and region "auto".
func NewR2Client(accountID, accessKeyID, secretAccessKey, bucket string) (*R2Client, error) {
	if accountID == "" {
		return nil, fmt.Errorf("accountID, accessKeyID, and secretAccessKey are required")
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID)
	return newR2Client(endpoint, accessKeyID, secretAccessKey, bucket)
}

func newR2Client(endpoint, accessKeyID, secretAccessKey, bucket string, optFns ...func(*s3.Options)) (*R2Client, error) {
	if accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("accessKeyID and secretAccessKey are required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	cfg := aws.Config{
		Region: "auto",
		Credentials: credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		),
	}

	opts := append([]func(*s3.Options){func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}}, optFns...)
	client := s3.NewFromConfig(cfg, opts...)

	return &R2Client{client: client, bucket: bucket}, nil
}

// Bucket returns the bucket this client writes to.
func (c *R2Client) Bucket() string {
	return c.bucket
}

// Upload stores data under key with the given content type.
func (c *R2Client) Upload(ctx context.Context, key, contentType string, data []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// Download returns the object at key, or ErrNotFound.
func (c *R2Client) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s/%s: %w", c.bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s/%s: %w", c.bucket, key, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
