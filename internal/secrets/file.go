package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// FileProvider resolves credential references from local files, for
// tokens provisioned by a secret manager that materializes to disk.
// Reference format: "file:///absolute/path". A single trailing newline is
// trimmed so `echo token > file` provisioning works.
type FileProvider struct{}

// NewFileProvider creates a file-based secret provider.
func NewFileProvider() *FileProvider { return &FileProvider{} }

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Resolve(_ context.Context, credentialRef string) (*Secret, error) {
	const prefix = "file://"
	if !strings.HasPrefix(credentialRef, prefix) {
		return nil, fmt.Errorf("%w: file provider only handles file:// references, got %q",
			ErrSecretNotFound, credentialRef)
	}
	path := strings.TrimPrefix(credentialRef, prefix)
	if path == "" {
		return nil, fmt.Errorf("%w: empty token file path", ErrSecretNotFound)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading token file %s: %v", ErrSecretNotFound, path, err)
	}
	value := strings.TrimRight(string(data), "\r\n")
	if value == "" {
		return nil, fmt.Errorf("%w: token file %s is empty", ErrSecretNotFound, path)
	}

	return &Secret{
		Value:    value,
		Metadata: map[string]string{"source": "file", "path": path},
	}, nil
}
