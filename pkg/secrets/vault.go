package secrets

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/luxtransfer/booking/pkg/config"
)

type vaultProvider struct {
	client *vault.Client
	mount  string
}

func newVaultProvider(cfg *config.SecretsConfig) (*vaultProvider, error) {
	vaultCfg := vault.DefaultConfig()
	if cfg.VaultAddr != "" {
		vaultCfg.Address = cfg.VaultAddr
	}

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	if cfg.VaultToken != "" {
		client.SetToken(cfg.VaultToken)
	}

	mount := cfg.VaultMount
	if mount == "" {
		mount = "secret"
	}

	return &vaultProvider{client: client, mount: mount}, nil
}

func (p *vaultProvider) Name() ProviderType { return ProviderVault }

func (p *vaultProvider) Fetch(ctx context.Context, path string) (map[string]string, error) {
	secret, err := p.client.KVv2(p.mount).Get(ctx, path)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		if s, ok := v.(string); ok {
			payload[k] = s
		}
	}
	return payload, nil
}
