package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocumentID_Format(t *testing.T) {
	for range 100 {
		docID, err := NewDocumentID()
		require.NoError(t, err)
		assert.Len(t, docID, DocumentIDLength)
		for _, r := range docID {
			assert.True(t, strings.ContainsRune(documentAlphabet, r), "unexpected rune %q in %s", r, docID)
		}
	}
}

func TestNewDocumentID_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	count := 1000

	for range count {
		docID, err := NewDocumentID()
		require.NoError(t, err)
		assert.False(t, ids[docID], "ID should be unique: %s", docID)
		ids[docID] = true
	}

	assert.Len(t, ids, count)
}

func TestGenerate_Format(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{"token", "token"},
		{"sse client", "sse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generated, err := Generate(tt.prefix)
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(generated, tt.prefix+"-"))

			// NanoID default is 21 characters
			assert.Len(t, strings.TrimPrefix(generated, tt.prefix+"-"), 21)
		})
	}
}
