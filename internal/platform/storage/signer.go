// Package storage issues V4 signed upload URLs for review media in Cloud Storage.
package storage

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// Signer signs URL payloads on behalf of a service account.
type Signer interface {
	Email() string
	SignBytes(ctx context.Context, payload []byte) ([]byte, error)
}

// ServiceAccountSigner signs with a service account private key.
type ServiceAccountSigner struct {
	email string
	key   *rsa.PrivateKey
}

// NewServiceAccountSignerFromJSON builds a signer from a service account JSON key.
func NewServiceAccountSignerFromJSON(data []byte) (*ServiceAccountSigner, error) {
	var key struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("storage: decode service account json: %w", err)
	}
	email := strings.TrimSpace(key.ClientEmail)
	if email == "" || strings.TrimSpace(key.PrivateKey) == "" {
		return nil, errors.New("storage: client_email and private_key are required")
	}

	block, _ := pem.Decode([]byte(key.PrivateKey))
	if block == nil {
		return nil, errors.New("storage: failed to decode PEM private key")
	}
	var rsaKey *rsa.PrivateKey
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		var ok bool
		if rsaKey, ok = parsed.(*rsa.PrivateKey); !ok {
			return nil, errors.New("storage: private key is not RSA")
		}
	} else if rsaKey, err = x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
		return nil, fmt.Errorf("storage: parse RSA private key: %w", err)
	}
	return &ServiceAccountSigner{email: email, key: rsaKey}, nil
}

// Email returns the service account email used as GoogleAccessID.
func (s *ServiceAccountSigner) Email() string { return s.email }

// SignBytes applies RSA SHA-256 PKCS#1 v1.5 over payload.
func (s *ServiceAccountSigner) SignBytes(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("storage: sign payload: %w", err)
	}
	return sig, nil
}
