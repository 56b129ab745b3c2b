package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Bucket implements Bucket on top of an S3 bucket, using ETags as version
// tokens and S3 conditional writes (If-Match / If-None-Match) for the
// optimistic-concurrency contract.
type S3Bucket struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Bucket creates an S3Bucket. Region and credentials come from the
// environment (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET etc.).
// The prefix may be empty; keys are joined under it.
func NewS3Bucket(ctx context.Context, bucket, prefix string) (*S3Bucket, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Bucket{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (b *S3Bucket) key(key string) string {
	return path.Join(b.prefix, key)
}

func (b *S3Bucket) Get(ctx context.Context, key string) ([]byte, Version, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(key)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", ErrNotExist
		}
		return nil, "", fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("s3 read %s: %w", key, err)
	}
	return data, Version(aws.ToString(out.ETag)), nil
}

func (b *S3Bucket) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	in := &s3.PutObjectInput{
		Bucket:               aws.String(b.bucket),
		Key:                  aws.String(b.key(key)),
		Body:                 bytes.NewReader(data),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if opts.IfAbsent {
		in.IfNoneMatch = aws.String("*")
	} else if opts.ExpectedVersion != "" {
		in.IfMatch = aws.String(string(opts.ExpectedVersion))
	}

	// Uploader retries transient failures; conditional failures come back as
	// API errors and must not be retried blindly, which the SDK honors for
	// 4xx responses.
	if _, err := b.uploader.Upload(ctx, in); err != nil {
		if isPreconditionErr(err) {
			return ErrPreconditionFailed
		}
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func isPreconditionErr(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	// IfNoneMatch("*") against an existing object surfaces as a plain 412 on
	// some S3-compatible stores.
	return strings.Contains(apiErr.ErrorCode(), "Precondition")
}
