package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/docstore"
	"github.com/booknestapp/booknest-server/internal/domain"
	"github.com/booknestapp/booknest-server/internal/repository"
)

// setupTestIndex creates an index for testing.
func setupTestIndex(t *testing.T) *SearchIndex {
	t.Helper()
	index, err := NewSearchIndex(Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	return index
}

func seedIndex(t *testing.T, index *SearchIndex) {
	t.Helper()
	docs := []*BookDocument{
		{ID: "b1", Title: "The Hobbit", Author: "J.R.R. Tolkien", Genre: "fantasy", Language: "en", Timestamp: 1},
		{ID: "b2", Title: "Dune", Author: "Frank Herbert", Genre: "science-fiction", Language: "en", Timestamp: 2},
		{ID: "b3", Title: "Der Hobbit", Author: "J.R.R. Tolkien", Genre: "fantasy", Language: "de", Timestamp: 3},
		{ID: "b4", Title: "Night Garden", Description: "A quiet story about dragons", Genre: "fantasy", Timestamp: 4},
	}
	require.NoError(t, index.Apply(docs, nil))
}

func hitIDs(result *SearchResult) []string {
	ids := make([]string, len(result.Hits))
	for i, h := range result.Hits {
		ids[i] = h.ID
	}
	return ids
}

func TestSearchIndex_IndexAndDelete(t *testing.T) {
	index := setupTestIndex(t)

	require.NoError(t, index.IndexDocument(&BookDocument{ID: "b1", Title: "The Hobbit"}))
	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	require.NoError(t, index.DeleteDocument("b1"))
	count, err = index.DocumentCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSearchIndex_Search(t *testing.T) {
	index := setupTestIndex(t)
	seedIndex(t, index)
	ctx := context.Background()

	tests := []struct {
		name   string
		params SearchParams
		want   []string
	}{
		{"title", SearchParams{Query: "dune"}, []string{"b2"}},
		{"author", SearchParams{Query: "herbert"}, []string{"b2"}},
		{"description", SearchParams{Query: "dragons"}, []string{"b4"}},
		{"typo", SearchParams{Query: "dunr"}, []string{"b2"}},
		{"genre filter", SearchParams{Query: "hobbit", Genre: "fantasy", Language: "de"}, []string{"b3"}},
		{"match all recent", SearchParams{SortBy: SortRecent}, []string{"b4", "b3", "b2", "b1"}},
		{"no match", SearchParams{Query: "zebra"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := index.Search(ctx, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hitIDs(result))
		})
	}
}

func TestSearchIndex_StoredFieldsAndFacets(t *testing.T) {
	index := setupTestIndex(t)
	seedIndex(t, index)

	result, err := index.Search(context.Background(), SearchParams{
		Query:         "hobbit",
		IncludeFacets: true,
		Highlight:     true,
	})
	require.NoError(t, err)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, uint64(2), result.Total)

	hit := result.Hits[0]
	assert.Contains(t, hit.Title, "Hobbit")
	assert.Equal(t, "J.R.R. Tolkien", hit.Author)
	assert.Equal(t, "fantasy", hit.Genre)
	assert.Contains(t, hit.Highlights["title"], "<mark>")

	require.Len(t, result.Facets.Genres, 1)
	assert.Equal(t, FacetCount{Value: "fantasy", Count: 2}, result.Facets.Genres[0])
}

func TestSearchIndex_Pagination(t *testing.T) {
	index := setupTestIndex(t)
	seedIndex(t, index)

	result, err := index.Search(context.Background(), SearchParams{SortBy: SortRecent, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b3", "b2"}, hitIDs(result))
	assert.Equal(t, uint64(4), result.Total)
}

func TestIndexer_FollowsCatalog(t *testing.T) {
	store, err := docstore.Open(docstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	session := auth.NewLocalSession()
	session.SetUser("u1")
	repo := repository.NewBookRepository(store, session, repository.Options{})
	index := setupTestIndex(t)

	indexer := NewIndexer(index, repo, nil)
	ctx := context.Background()
	indexer.Start(ctx)
	defer indexer.Stop()

	book := domain.NewDraftBook("u1")
	book.Title = "The Silent Sea"
	book.Genre = "Literary Fiction"
	id, err := repo.SaveDraft(ctx, "u1", book)
	require.NoError(t, err)
	book.ID = id

	// Drafts are not searchable.
	books, err := indexer.SearchBooks(ctx, SearchParams{Query: "silent"})
	require.NoError(t, err)
	assert.Empty(t, books)

	require.NoError(t, repo.PublishBook(ctx, "u1", book))
	require.Eventually(t, func() bool {
		books, err := indexer.SearchBooks(ctx, SearchParams{Query: "silent", Genre: "literary-fiction"})
		return err == nil && len(books) == 1 && books[0].ID == id
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, repo.DeleteBook(ctx, id))
	require.Eventually(t, func() bool {
		count, err := index.DocumentCount()
		return err == nil && count == 0
	}, 2*time.Second, 10*time.Millisecond)
}
