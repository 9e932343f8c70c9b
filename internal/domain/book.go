// Package domain contains the records exchanged with the document store:
// books, chapters, favorite markers and accounts.
package domain

import "strings"

// Visibility controls who may see a book once published.
type Visibility string

const (
	VisibilityPublic  Visibility = "Public"
	VisibilityPrivate Visibility = "Private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Book is a book shell. Its text lives in its chapters.
//
// A book lives either in its owner's draft area (IsDraft) or in the public
// catalog; publish moves it from the former to the latter keeping its id.
type Book struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	Description string     `json:"description,omitempty"`
	Genre       string     `json:"genre,omitempty"`
	Language    string     `json:"language,omitempty"`
	Visibility  Visibility `json:"visibility"`
	IsDraft     bool       `json:"isDraft"`
	UserID      string     `json:"userId"`
	Timestamp   int64      `json:"timestamp"` // epoch millis of the last write
}

// NewDraftBook returns an unsaved draft owned by userID.
func NewDraftBook(userID string) Book {
	return Book{
		Visibility: VisibilityPublic,
		IsDraft:    true,
		UserID:     userID,
	}
}

// IsNew reports whether the book has never been persisted.
func (b *Book) IsNew() bool {
	return strings.TrimSpace(b.ID) == ""
}

// Normalize fills defaults for fields older records may lack.
func (b *Book) Normalize() {
	if !b.Visibility.Valid() {
		b.Visibility = VisibilityPublic
	}
}
