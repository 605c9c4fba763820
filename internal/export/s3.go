package export

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yndnr/scrapedelta/internal/core/domain"
)

// S3Config configures an S3 sink. Empty static keys fall back to the default
// AWS credential chain.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// S3 uploads artifacts to an S3-compatible bucket.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 loads AWS configuration and verifies that credentials resolve.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, domain.ErrConfig.WithDetails("s3: bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, domain.ErrConfig.WithDetails("s3: load aws config").WithCause(err)
	}
	if awsCfg.Credentials == nil {
		return nil, domain.ErrConfig.WithDetails("s3: no credentials configured")
	}
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, domain.ErrConfig.WithDetails("s3: credentials unavailable").WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Export implements Sink.
func (s *S3) Export(ctx context.Context, artifactPath, logicalName string) error {
	f, err := os.Open(artifactPath) // #nosec G304 -- path comes from the store.
	if err != nil {
		return fmt.Errorf("s3: open artifact: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("s3: stat artifact: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey(s.prefix, logicalName)),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		ContentType:   aws.String(contentType(logicalName)),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", logicalName, err)
	}
	return nil
}
