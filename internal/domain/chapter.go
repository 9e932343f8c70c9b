package domain

import (
	"fmt"
	"strings"
)

// Chapter is one ordered unit of a book's text. Chapters are stored under
// their book, so a chapter always lives in the same area as its book.
type Chapter struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	BookID    string `json:"bookId"`
	UserID    string `json:"userId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// DefaultChapterTitle is the title given to the n-th chapter (1-based).
func DefaultChapterTitle(n int) string {
	return fmt.Sprintf("Chapter %d", n)
}

// IsNew reports whether the chapter has never been persisted.
func (c *Chapter) IsNew() bool {
	return strings.TrimSpace(c.ID) == ""
}

// WordCount counts whitespace-delimited words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
