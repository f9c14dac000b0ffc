package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes generated documents and exports to an S3 bucket.
type Uploader struct {
	Client s3API
	Bucket string

	// Prefix is prepended to every key, e.g. "reports".
	Prefix string
}

// Upload stores body under the configured prefix and returns the object's
// storage id (s3://bucket/key) for persistence alongside the record.
func (u *Uploader) Upload(ctx context.Context, filename string, body []byte, contentType string) (string, error) {
	key := filename
	if u.Prefix != "" {
		key = path.Join(u.Prefix, filename)
	}

	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w", u.Bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", u.Bucket, key), nil
}
