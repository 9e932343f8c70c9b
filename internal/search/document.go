// Package search keeps a full-text index of the public catalog using Bleve.
// The index lives in memory and is fed from the catalog's live list by an
// Indexer, so it is rebuilt on every start.
package search

import "github.com/booknestapp/booknest-server/internal/domain"

// BookDocument is the indexed form of a published book.
type BookDocument struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Language    string `json:"language,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// NewBookDocument builds the index document for b.
func NewBookDocument(b domain.Book) *BookDocument {
	return &BookDocument{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Description: b.Description,
		Genre:       b.Genre,
		Language:    b.Language,
		UserID:      b.UserID,
		Timestamp:   b.Timestamp,
	}
}

// ToMap converts the document to a map keyed by the mapping's field names.
// Empty optional fields are left out.
func (d *BookDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":        d.ID,
		"title":     d.Title,
		"timestamp": float64(d.Timestamp),
	}
	if d.Author != "" {
		m["author"] = d.Author
	}
	if d.Description != "" {
		m["description"] = d.Description
	}
	if d.Genre != "" {
		m["genre"] = d.Genre
	}
	if d.Language != "" {
		m["language"] = d.Language
	}
	if d.UserID != "" {
		m["user_id"] = d.UserID
	}
	return m
}
