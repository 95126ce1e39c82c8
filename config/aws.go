package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// HasStaticCredentials reports whether either half of a static key pair is
// configured.
func (s StorageConfig) HasStaticCredentials() bool {
	return s.AccessKeyID != "" || s.SecretAccessKey != ""
}

// NewAWSConfig creates an AWS config for the storage settings. Static
// credentials are used when configured, even if only half of the pair is
// present; otherwise the default credential chain applies.
func NewAWSConfig(ctx context.Context, s StorageConfig) (aws.Config, error) {
	region := s.Region
	if region == "" {
		region = DefaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if s.HasStaticCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.AccessKeyID,
			s.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awsCfg, nil
}

// S3Options applies the endpoint override and addressing style.
func (s StorageConfig) S3Options(o *s3.Options) {
	if s.Endpoint != "" {
		o.BaseEndpoint = aws.String(s.Endpoint)
	}
	o.UsePathStyle = s.UsePathStyle
}
