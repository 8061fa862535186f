package security

import (
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrMissingSigningKey is returned when no signing secret is configured. The
// process cannot issue or verify credentials without one.
var ErrMissingSigningKey = errors.New("signing key is not configured")

const (
	signingKeySize = 32

	accessKeyInfo  = "lms-session-manager access token v1"
	refreshKeyInfo = "lms-session-manager refresh token v1"
)

// SigningKeys holds the two independent HMAC keys. A token signed with one
// never verifies under the other.
type SigningKeys struct {
	Access  []byte
	Refresh []byte
}

// DeriveSigningKeys derives the access and refresh HMAC keys from the master
// secret using HKDF-SHA256 with distinct info labels. When refreshSecret is
// non-empty the refresh key is derived from it instead of the master secret.
func DeriveSigningKeys(masterSecret, refreshSecret string) (SigningKeys, error) {
	masterSecret = strings.TrimSpace(masterSecret)
	if masterSecret == "" {
		return SigningKeys{}, ErrMissingSigningKey
	}
	refreshSecret = strings.TrimSpace(refreshSecret)
	if refreshSecret == "" {
		refreshSecret = masterSecret
	}
	access, err := deriveKey(masterSecret, accessKeyInfo)
	if err != nil {
		return SigningKeys{}, err
	}
	refresh, err := deriveKey(refreshSecret, refreshKeyInfo)
	if err != nil {
		return SigningKeys{}, err
	}
	return SigningKeys{Access: access, Refresh: refresh}, nil
}

func deriveKey(secret, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	key := make([]byte, signingKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
