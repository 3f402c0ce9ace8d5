package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/luxtransfer/booking/pkg/config"
)

type awsProvider struct {
	client *secretsmanager.Client
}

func newAWSProvider(cfg *config.SecretsConfig) (*awsProvider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}

	// Static credentials from env take precedence; otherwise the default
	// chain (instance profile, sso, etc.) applies.
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, os.Getenv("AWS_SECRET_ACCESS_KEY"), ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return &awsProvider{client: secretsmanager.NewFromConfig(awsCfg)}, nil
}

func (p *awsProvider) Name() ProviderType { return ProviderAWS }

func (p *awsProvider) Fetch(ctx context.Context, path string) (map[string]string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &path,
	})
	if err != nil {
		return nil, err
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string payload", path)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &payload); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", path, err)
	}
	return payload, nil
}
