package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"
)

// ClientConfig selects between AWS and a dynamodb-local instance.
type ClientConfig struct {
	Region string
	// Local, when set, points the client at LocalEndpoint with static
	// credentials.
	Local         bool
	LocalEndpoint string
}

func NewClient(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Local {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local_access_id", "local_access_key", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	if !cfg.Local {
		return dynamodb.NewFromConfig(awsCfg), nil
	}

	logger.Info("Using local DynamoDB",
		zap.String("endpoint", cfg.LocalEndpoint), zap.String("region", cfg.Region))
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(cfg.LocalEndpoint)
	}), nil
}
