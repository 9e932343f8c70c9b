// Package id generates identifiers for store documents and session artifacts.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// documentAlphabet mirrors the auto-id alphabet of hosted document stores:
// alphanumeric only, so ids are safe inside "/"-joined store paths.
const documentAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DocumentIDLength is the length of store-assigned document ids.
const DocumentIDLength = 20

// NewDocumentID returns an opaque id for a document created without one.
func NewDocumentID() (string, error) {
	id, err := gonanoid.Generate(documentAlphabet, DocumentIDLength)
	if err != nil {
		return "", fmt.Errorf("generate document id: %w", err)
	}
	return id, nil
}

// Generate creates a prefixed unique ID using NanoID
// Format: prefix-nanoid (e.g., "token-V1StGXR8_Z5jdHi6B-myT")
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}
