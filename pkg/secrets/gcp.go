package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"

	"github.com/luxtransfer/booking/pkg/config"
)

type gcpProvider struct {
	client  *secretmanager.Client
	project string
}

func newGCPProvider(cfg *config.SecretsConfig) (*gcpProvider, error) {
	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}

	client, err := secretmanager.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("gcp secretmanager client: %w", err)
	}

	return &gcpProvider{client: client, project: cfg.GCPProject}, nil
}

func (p *gcpProvider) Name() ProviderType { return ProviderGCP }

func (p *gcpProvider) Fetch(ctx context.Context, path string) (map[string]string, error) {
	// Secret names cannot contain slashes; logical paths map onto dashes.
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		p.project, strings.ReplaceAll(path, "/", "-"))

	out, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, err
	}

	var payload map[string]string
	if err := json.Unmarshal(out.Payload.Data, &payload); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", path, err)
	}
	return payload, nil
}
