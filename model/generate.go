package model

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// GeneratePurchaseID returns a new random transaction identifier in the
// format used by sandbox purchases.
func GeneratePurchaseID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "generating purchase id")
	}
	return id.String(), nil
}

// MustGeneratePurchaseID calls GeneratePurchaseID and panics on failure.
func MustGeneratePurchaseID() string {
	id, err := GeneratePurchaseID()
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateVerificationBlob returns a random opaque blob suitable as
// sandbox local verification data.
func GenerateVerificationBlob() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "generating verification blob")
	}
	return base58.Encode(raw), nil
}

// MustGenerateVerificationBlob calls GenerateVerificationBlob and panics
// on failure.
func MustGenerateVerificationBlob() string {
	blob, err := GenerateVerificationBlob()
	if err != nil {
		panic(err)
	}
	return blob
}
