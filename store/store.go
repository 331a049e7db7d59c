package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by a [Backend] when a key holds no value.
var ErrNotFound = errors.New("store: key not found")

// ErrBackendUnavailable wraps transport or driver failures reported by a backend.
var ErrBackendUnavailable = errors.New("store: backend unavailable")

// DefaultPrefix is the key namespace used when none is configured.
const DefaultPrefix = "@@auth@@"

// Field names one persisted slot.
type Field string

const (
	FieldIDToken      Field = "idToken"
	FieldAccessToken  Field = "accessToken"
	FieldRefreshToken Field = "refreshToken"
	FieldNonce        Field = "nonce"
)

// Fields lists every slot owned by a [TokenStore], in clearing order.
var Fields = []Field{FieldIDToken, FieldAccessToken, FieldRefreshToken, FieldNonce}

// Backend is a namespaced string key/value medium.
//
// Get returns [ErrNotFound] for absent keys. Delete of an absent key is not an error.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// BatchBackend is implemented by backends that can write several keys atomically.
type BatchBackend interface {
	Backend
	SetMany(ctx context.Context, values map[string]string) error
}

// Triple is the identity/access/refresh token set of one session.
type Triple struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
}

// Empty reports whether no token of the triple is present.
func (t Triple) Empty() bool {
	return t.IDToken == "" && t.AccessToken == "" && t.RefreshToken == ""
}

// TokenStore exposes the four session slots of one client over a [Backend].
type TokenStore struct {
	backend  Backend
	prefix   string
	clientID string
}

// New creates a [TokenStore]. An empty prefix selects [DefaultPrefix].
func New(backend Backend, prefix, clientID string) (*TokenStore, error) {
	if backend == nil {
		return nil, errors.New("store: backend required")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("store: client id required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &TokenStore{
		backend:  backend,
		prefix:   prefix,
		clientID: clientID,
	}, nil
}

// Key returns the backend key for a slot.
func (s *TokenStore) Key(field Field) string {
	return s.prefix + "::" + s.clientID + "::" + string(field)
}

// Get reads a slot. The boolean is false when the slot is absent or empty.
func (s *TokenStore) Get(ctx context.Context, field Field) (string, bool, error) {
	value, err := s.backend.Get(ctx, s.Key(field))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// Set writes a slot. Writing an empty value removes the slot.
func (s *TokenStore) Set(ctx context.Context, field Field, value string) error {
	if value == "" {
		return s.Remove(ctx, field)
	}
	return s.backend.Set(ctx, s.Key(field), value)
}

// Remove deletes a slot.
func (s *TokenStore) Remove(ctx context.Context, field Field) error {
	return s.backend.Delete(ctx, s.Key(field))
}

// Triple reads the identity, access and refresh slots.
func (s *TokenStore) Triple(ctx context.Context) (Triple, error) {
	var (
		out Triple
		err error
	)
	if out.IDToken, _, err = s.Get(ctx, FieldIDToken); err != nil {
		return Triple{}, err
	}
	if out.AccessToken, _, err = s.Get(ctx, FieldAccessToken); err != nil {
		return Triple{}, err
	}
	if out.RefreshToken, _, err = s.Get(ctx, FieldRefreshToken); err != nil {
		return Triple{}, err
	}
	return out, nil
}

// SetTriple persists all three tokens, atomically when the backend supports it.
func (s *TokenStore) SetTriple(ctx context.Context, t Triple) error {
	return s.setMany(ctx, map[Field]string{
		FieldIDToken:      t.IDToken,
		FieldAccessToken:  t.AccessToken,
		FieldRefreshToken: t.RefreshToken,
	})
}

// SetPair replaces the access/refresh pair after a rotation.
func (s *TokenStore) SetPair(ctx context.Context, accessToken, refreshToken string) error {
	return s.setMany(ctx, map[Field]string{
		FieldAccessToken:  accessToken,
		FieldRefreshToken: refreshToken,
	})
}

// Clear removes every slot. Clearing an empty store is not an error.
func (s *TokenStore) Clear(ctx context.Context) error {
	keys := make([]string, 0, len(Fields))
	for _, f := range Fields {
		keys = append(keys, s.Key(f))
	}
	return s.backend.Delete(ctx, keys...)
}

func (s *TokenStore) setMany(ctx context.Context, values map[Field]string) error {
	var empty []string
	writes := make(map[string]string, len(values))
	for f, v := range values {
		if v == "" {
			empty = append(empty, s.Key(f))
			continue
		}
		writes[s.Key(f)] = v
	}

	if len(empty) > 0 {
		if err := s.backend.Delete(ctx, empty...); err != nil {
			return err
		}
	}
	if len(writes) == 0 {
		return nil
	}

	if batch, ok := s.backend.(BatchBackend); ok {
		return batch.SetMany(ctx, writes)
	}
	for k, v := range writes {
		if err := s.backend.Set(ctx, k, v); err != nil {
			return fmt.Errorf("store: partial write of %s: %w", k, err)
		}
	}
	return nil
}
