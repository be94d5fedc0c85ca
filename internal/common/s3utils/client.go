package s3utils

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	commonconfig "github.com/fogwell/fogwell/internal/common/config"
)

// NewS3Client builds an S3 client from the default credential chain, overriding region and endpoint when set.
func NewS3Client(ctx context.Context, config commonconfig.S3Config) (*s3.Client, error) {
	var loadOptions []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(config.Region))
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return s3.NewFromConfig(awsConfig, clientOptions(config)...), nil
}

func clientOptions(config commonconfig.S3Config) []func(*s3.Options) {
	var options []func(*s3.Options)
	if config.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	if config.UsePathStyle {
		options = append(options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return options
}
