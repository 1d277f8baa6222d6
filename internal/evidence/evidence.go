// Package evidence archives committed external sends to object storage.
package evidence

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"casedesk.org/internal/send"
)

// PutObjectAPI is the slice of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes one object per send. Objects are never overwritten by
// the control plane; the bucket is expected to carry versioning or object lock.
type S3Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
}

var _ send.Archiver = (*S3Archiver)(nil)

func NewS3Archiver(client PutObjectAPI, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for s.
func (a *S3Archiver) Key(s send.ExternalSend) string {
	return path.Join(a.prefix, "tenant", s.TenantID, "case", s.CaseID, "send", s.ID+".txt")
}

func (a *S3Archiver) Archive(ctx context.Context, s send.ExternalSend) error {
	if s.ContentHash == "" {
		return fmt.Errorf("evidence: send %s has no content hash", s.ID)
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(s)),
		Body:        strings.NewReader(s.ContentSnapshot),
		ContentType: aws.String("text/plain; charset=utf-8"),
		Metadata: map[string]string{
			"content-hash":   s.ContentHash,
			"send-id":        s.ID,
			"send-type":      string(s.SendType),
			"recipient-type": string(s.RecipientType),
			"sender-id":      s.SenderID,
			"sent-at":        s.SentAt.UTC().Format(time.RFC3339Nano),
		},
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
	}
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("evidence: put %s: %w", aws.ToString(input.Key), err)
	}
	return nil
}

// NewS3Client loads the AWS configuration for region. AWS_ENDPOINT_URL, when
// set, points the client at a local S3 (localstack, minio) with path-style
// addressing.
func NewS3Client(ctx context.Context, region string, getenv func(string) string) (*s3.Client, error) {
	cfg, err := awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("evidence: load aws config: %w", err)
	}
	endpoint := getenv("AWS_ENDPOINT_URL")
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
