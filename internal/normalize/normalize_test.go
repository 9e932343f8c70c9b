package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/booknestapp/booknest-server/internal/domain"
)

func TestLanguageCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// ISO 639-1 codes (passthrough)
		{"en", "en"},
		{"de", "de"},
		// ISO 639-2 codes
		{"eng", "en"},
		{"deu", "de"},
		// Locale codes
		{"en-US", "en"},
		{"en_GB", "en"},
		{"de-AT", "de"},
		// Language names
		{"English", "en"},
		{"ENGLISH", "en"},
		{"german", "de"},
		{"French", "fr"},
		// Edge cases
		{"", ""},
		{"  en  ", "en"},
		{"xyz", ""},
		{"not a language", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, LanguageCode(tt.input))
		})
	}
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "German", LanguageName("de"))
	assert.Equal(t, "Japanese", LanguageName("jpn"))
	assert.Empty(t, LanguageName("xyz"))
}

func TestGenreSlug(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Science Fiction", "science-fiction"},
		{"Sci-Fi", "science-fiction"},
		{"LitRPG", "litrpg"},
		{"Mystery/Thriller", "mystery-thriller"},
		{"Café  Noir", "cafe-noir"},
		{"  --Horror--  ", "horror"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, GenreSlug(tt.input))
		})
	}
}

func TestBook(t *testing.T) {
	b := domain.Book{
		Title:    "  The Long Night\x00 ",
		Author:   " Ada ",
		Genre:    "Young Adult",
		Language: "Spanish",
	}
	Book(&b)

	assert.Equal(t, "The Long Night", b.Title)
	assert.Equal(t, "Ada", b.Author)
	assert.Equal(t, "young-adult", b.Genre)
	assert.Equal(t, "es", b.Language)

	b.Language = " Elvish "
	Book(&b)
	assert.Equal(t, "Elvish", b.Language)
}
