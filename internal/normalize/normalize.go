// Package normalize canonicalizes free-form book metadata entered by
// authors: languages become ISO 639-1 codes and genres become slugs.
package normalize

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"golang.org/x/text/unicode/norm"

	"github.com/booknestapp/booknest-server/internal/domain"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// genreAliases maps common spellings to a canonical slug.
var genreAliases = map[string]string{
	"scifi":         "science-fiction",
	"sci-fi":        "science-fiction",
	"sf":            "science-fiction",
	"ya":            "young-adult",
	"non-fiction":   "nonfiction",
	"bio":           "biography",
	"autobiography": "biography",
}

// languageNames maps lowercased English language names to ISO 639-1 codes,
// e.g. "german" -> "de".
var languageNames = sync.OnceValue(func() map[string]string {
	names := make(map[string]string)
	namer := display.English.Languages()
	for a := 'a'; a <= 'z'; a++ {
		for b := 'a'; b <= 'z'; b++ {
			base, err := language.ParseBase(string([]rune{a, b}))
			if err != nil {
				continue
			}
			if name := namer.Name(base); name != "" {
				names[strings.ToLower(name)] = base.String()
			}
		}
	}
	return names
})

// LanguageCode converts a language name, ISO 639 code or locale to an ISO
// 639-1 code where one exists.
// "English" -> "en", "deu" -> "de", "en_GB" -> "en".
// Returns empty string for unrecognized values.
func LanguageCode(raw string) string {
	s := strings.ToLower(strings.TrimSpace(sanitizeString(raw)))
	if s == "" {
		return ""
	}

	if code, ok := languageNames()[s]; ok {
		return code
	}

	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return ""
	}
	base, conf := tag.Base()
	if conf == language.No || base.String() == "und" {
		return ""
	}
	return base.String()
}

// LanguageName returns the English display name for a language.
// "de" -> "German". Returns empty string for unrecognized values.
func LanguageName(raw string) string {
	code := LanguageCode(raw)
	if code == "" {
		return ""
	}
	return display.English.Languages().Name(language.MustParseBase(code))
}

// GenreSlug converts a genre to its URL-safe slug, resolving aliases.
// "Science Fiction" -> "science-fiction".
// "Sci-Fi" -> "science-fiction".
// "Café Noir" -> "cafe-noir".
func GenreSlug(raw string) string {
	// Decompose accented characters, then drop what is not ASCII.
	s := norm.NFKD.String(sanitizeString(raw))
	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)

	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if alias, ok := genreAliases[s]; ok {
		return alias
	}
	return s
}

// Book canonicalizes a book's metadata in place before it is stored.
// Unrecognized languages are kept as entered (trimmed).
func Book(b *domain.Book) {
	b.Title = strings.TrimSpace(sanitizeString(b.Title))
	b.Author = strings.TrimSpace(sanitizeString(b.Author))
	b.Description = sanitizeString(b.Description)
	b.Genre = GenreSlug(b.Genre)

	if code := LanguageCode(b.Language); code != "" {
		b.Language = code
	} else {
		b.Language = strings.TrimSpace(sanitizeString(b.Language))
	}
}

// sanitizeString removes null bytes, which some clients paste in with
// copied text.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
