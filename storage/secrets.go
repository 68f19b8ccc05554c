package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

var (
	ErrSecretNotFound       = errors.New("secret not found")
	ErrUnsupportedReference = errors.New("unsupported secret reference")
)

// SecretResolver turns a secret reference into its value.
//
// Supported references:
//   - env://NAME - environment variable NAME
//   - file:///path/to/file - file content, surrounding whitespace trimmed
//   - vault://host:port/mount/path?key=name - KV v2 secret key (add insecure=true for http)
//
// Anything else is returned unchanged, so plain connection strings and service URLs pass through.
type SecretResolver struct {
	log *slog.Logger

	// vaultFor is replaced in tests.
	vaultFor func(address string) (vaultReader, error)
}

type vaultReader interface {
	Read(ctx context.Context, mountPath, dataPath, key string) (string, error)
}

func NewSecretResolver(log *slog.Logger) *SecretResolver {
	r := &SecretResolver{log: log}
	r.vaultFor = func(address string) (vaultReader, error) {
		return NewVaultSecretSource(address, log)
	}
	return r
}

// Resolve returns the value behind ref.
func (r *SecretResolver) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, _, found := strings.Cut(ref, "://")
	if !found {
		return ref, nil
	}

	switch strings.ToLower(scheme) {
	case "env":
		name := strings.TrimPrefix(ref, scheme+"://")
		value, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("%w: environment variable %s", ErrSecretNotFound, name)
		}
		return value, nil
	case "file":
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedReference, err)
		}
		data, err := os.ReadFile(u.Host + u.Path)
		if err != nil {
			return "", fmt.Errorf("failed to read secret file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case "vault":
		return r.resolveVault(ctx, ref)
	default:
		return ref, nil
	}
}

func (r *SecretResolver) resolveVault(ctx context.Context, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedReference, err)
	}

	mountPath, dataPath, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	key := u.Query().Get("key")
	if u.Host == "" || !ok || mountPath == "" || dataPath == "" || key == "" {
		return "", fmt.Errorf("%w: expected vault://host:port/mount/path?key=name, got %s", ErrUnsupportedReference, ref)
	}

	scheme := "https"
	if u.Query().Get("insecure") == "true" {
		scheme = "http"
	}

	source, err := r.vaultFor(scheme + "://" + u.Host)
	if err != nil {
		return "", err
	}
	return source.Read(ctx, mountPath, dataPath, key)
}
