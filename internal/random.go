package internal

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// NewNonce returns a fresh random (version 4) UUID string.
func NewNonce() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return id.String(), nil
}

// PKCEPair is a code verifier and its S256 challenge.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// NewPKCEPair returns a fresh verifier and its base64url SHA-256 challenge.
func NewPKCEPair() (PKCEPair, error) {
	verifier := oauth2.GenerateVerifier()
	if verifier == "" {
		return PKCEPair{}, errors.New("pkce: empty verifier")
	}
	return PKCEPair{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}, nil
}
