package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider resolves credential references of the form "env://VAR_NAME"
// from the process environment. This is the default token source: with no
// configuration at all, OP_SERVICE_ACCOUNT_TOKEN is picked up directly.
type EnvProvider struct{}

// NewEnvProvider creates an environment variable-based secret provider.
func NewEnvProvider() *EnvProvider { return &EnvProvider{} }

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Resolve(_ context.Context, credentialRef string) (*Secret, error) {
	envVar, ok := strings.CutPrefix(credentialRef, "env://")
	if !ok {
		return nil, fmt.Errorf("%w: env provider only handles env:// references, got %q",
			ErrSecretNotFound, credentialRef)
	}
	if envVar == "" {
		return nil, fmt.Errorf("%w: empty environment variable name", ErrSecretNotFound)
	}

	// Pasted exports often pick up stray whitespace; the op CLI would
	// reject the token, so trim here.
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return nil, fmt.Errorf("%w: environment variable %q is not set or empty",
			ErrSecretNotFound, envVar)
	}

	return &Secret{
		Value:    value,
		Metadata: map[string]string{"source": "env", "variable": envVar},
	}, nil
}
