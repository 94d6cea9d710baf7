package clients

import (
	"context"
	"os"
	"strings"
)

// EnvCredentialStore resolves provider API keys from the environment,
// one key per provider for the local operator. Key for provider "acme"
// is read from VEKTER_API_KEY_ACME.
type EnvCredentialStore struct{}

func (EnvCredentialStore) APIKey(ctx context.Context, userID, provider string) (string, error) {
	return os.Getenv(envKeyName(provider)), nil
}

func envKeyName(provider string) string {
	normalized := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(provider))
	return "VEKTER_API_KEY_" + normalized
}
