// Package keyringstore persists token slots in the operating system keychain
// (macOS Keychain, Windows Credential Manager, Secret Service over D-Bus).
package keyringstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/versini-org/auth-client/store"
	"github.com/zalando/go-keyring"
)

// DefaultService is the keychain service name used when none is configured.
const DefaultService = "authclient"

// Backend stores each slot as one keychain item under a fixed service name.
// Keychains offer no multi-item transaction, so it only implements [store.Backend].
type Backend struct {
	service string
}

// New creates a keychain [Backend].
func New(service string) *Backend {
	if service == "" {
		service = DefaultService
	}
	return &Backend{service: service}
}

func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := keyring.Get(b.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return v, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keyring.Set(b.service, key, value); err != nil {
		return fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, key := range keys {
		if err := keyring.Delete(b.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %v", store.ErrBackendUnavailable, err)
		}
	}
	return nil
}
