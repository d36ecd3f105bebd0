package config

import "context"

// SecretProvider resolves secret parameters by path. SSMProvider serves
// deployed environments and EnvVarProvider serves local development.
type SecretProvider interface {
	// GetParametersBatch returns path -> plaintext for every key it could
	// resolve. Missing keys are omitted rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
