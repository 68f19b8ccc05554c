package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
)

// VaultSecretSource reads connection strings from a HashiCorp Vault KV v2 mount.
// The token is taken from the environment (VAULT_TOKEN), as the vault client does by default.
type VaultSecretSource struct {
	client  *api.Client
	address string
	log     *slog.Logger
}

// NewVaultSecretSource creates a Vault client for the given address (e.g. https://vault.example.com:8200).
func NewVaultSecretSource(address string, log *slog.Logger) (*VaultSecretSource, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	return &VaultSecretSource{
		client:  client,
		address: address,
		log:     log,
	}, nil
}

// Read returns one key of a KV v2 secret at {mount}/data/{path}.
func (v *VaultSecretSource) Read(ctx context.Context, mountPath, dataPath, key string) (string, error) {
	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")
	path := fmt.Sprintf("%s/data/%s", mountPath, dataPath)

	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		v.log.Error("Failed to read from Vault",
			slog.String("address", v.address),
			slog.String("path", path),
			"err", err)
		return "", fmt.Errorf("failed to read vault secret %s: %w", path, err)
	}

	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: vault secret %s", ErrSecretNotFound, path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid data format in Vault response for %s", path)
	}

	value, ok := data[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: key %q in vault secret %s", ErrSecretNotFound, key, path)
	}

	v.log.Debug("Read secret from Vault", slog.String("path", path), slog.String("key", key))
	return value, nil
}
