// Package secrets resolves the op service-account token from an opaque
// credential reference at startup. Resolution is deliberately local-only:
// the token comes from the environment or a file, never over the network.
// The resolved value is handed to the op runner and nowhere else.
package secrets

import (
	"context"
	"fmt"
)

// DefaultTokenRef is used when no token reference is configured. It
// matches the variable the op CLI itself reads, so a plain
// OP_SERVICE_ACCOUNT_TOKEN export works with zero configuration.
const DefaultTokenRef = "env://OP_SERVICE_ACCOUNT_TOKEN"

// Secret holds resolved credential material.
// This type MUST NOT be serialized to JSON or written to any log.
type Secret struct {
	Value    string            // The raw token value.
	Metadata map[string]string // Source metadata (never the value).
}

// Provider resolves opaque credential references into secret material.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Resolve takes a credential reference (e.g. "env://MY_VAR" or
	// "file:///etc/mlinzi/token") and returns the raw secret. Returns an
	// error wrapping ErrSecretNotFound if the reference cannot be resolved.
	Resolve(ctx context.Context, credentialRef string) (*Secret, error)

	// Name returns the provider identifier for logging (never secrets).
	Name() string
}

// ErrSecretNotFound is returned when a credential reference cannot be
// resolved.
var ErrSecretNotFound = fmt.Errorf("secret not found")

// CompositeProvider chains multiple providers and tries each in order.
// The first provider that successfully resolves the reference wins.
type CompositeProvider struct {
	providers []Provider
}

// NewCompositeProvider creates a provider that delegates to the given
// providers in order.
func NewCompositeProvider(providers ...Provider) *CompositeProvider {
	return &CompositeProvider{providers: providers}
}

func (p *CompositeProvider) Name() string { return "composite" }

func (p *CompositeProvider) Resolve(ctx context.Context, credentialRef string) (*Secret, error) {
	var lastErr error
	for _, provider := range p.providers {
		secret, err := provider.Resolve(ctx, credentialRef)
		if err == nil {
			return secret, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: no provider could resolve %q", ErrSecretNotFound, credentialRef)
}

// Default returns the provider chain used by the serve command.
func Default() Provider {
	return NewCompositeProvider(NewEnvProvider(), NewFileProvider())
}
