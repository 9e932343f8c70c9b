package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDraftBook(t *testing.T) {
	b := NewDraftBook("user-1")
	assert.True(t, b.IsDraft)
	assert.True(t, b.IsNew())
	assert.Equal(t, "user-1", b.UserID)
	assert.Equal(t, VisibilityPublic, b.Visibility)
}

func TestBook_Normalize(t *testing.T) {
	b := Book{Visibility: ""}
	b.Normalize()
	assert.Equal(t, VisibilityPublic, b.Visibility)

	b = Book{Visibility: VisibilityPrivate}
	b.Normalize()
	assert.Equal(t, VisibilityPrivate, b.Visibility)
}

func TestBook_IsNew_Whitespace(t *testing.T) {
	b := Book{ID: "  "}
	assert.True(t, b.IsNew())
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"one two\tthree\nfour", 4},
		{"  leading and trailing  ", 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WordCount(tt.text), "%q", tt.text)
	}
}

func TestDefaultChapterTitle(t *testing.T) {
	assert.Equal(t, "Chapter 1", DefaultChapterTitle(1))
	assert.Equal(t, "Chapter 12", DefaultChapterTitle(12))
}

func TestClock_NowMillis(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	c := Clock(func() time.Time { return fixed })
	assert.Equal(t, int64(1_700_000_000_000), c.NowMillis())

	var zero Clock
	assert.Positive(t, zero.NowMillis())
}
