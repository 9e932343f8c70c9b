package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/booknestapp/booknest-server/internal/docstore"
	"github.com/booknestapp/booknest-server/internal/domain"
	"github.com/booknestapp/booknest-server/internal/stream"
)

// ListFavoriteBooks is a live list of the published books the user marked
// as favorite, newest first.
//
// Each change of the marker set switches to a new resolution and cancels
// the previous one. Marker ids are resolved against the catalog in batches
// of the configured size, each batch its own live query; an empty marker
// set yields an empty list without querying the catalog. Markers of books
// no longer in the catalog are ignored.
func (r *BookRepository) ListFavoriteBooks(userID string) stream.Stream[[]domain.Book] {
	markerIDs := stream.Map(r.favorites(userID).Query().Snapshots(), func(docs []*docstore.Document) []string {
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		return ids
	})
	return stream.SwitchMap(markerIDs, r.resolveFavorites)
}

func (r *BookRepository) resolveFavorites(ids []string) stream.Stream[[]domain.Book] {
	if len(ids) == 0 {
		return stream.Of([]domain.Book{})
	}

	var batches []stream.Stream[[]domain.Book]
	for chunk := range slices.Chunk(ids, r.batchSize) {
		q := r.publicBooks().WhereIDIn(chunk)
		batches = append(batches, stream.Map(q.Snapshots(), r.decodeBooks))
	}

	return stream.Map(stream.CombineLatest(batches), func(parts [][]domain.Book) []domain.Book {
		books := slices.Concat(parts...)
		slices.SortFunc(books, byTimestampDesc)
		return books
	})
}

// ToggleFavorite marks or unmarks a book as favorite for the signed-in
// user. Without a signed-in user it does nothing.
func (r *BookRepository) ToggleFavorite(ctx context.Context, bookID string, isFavorite bool) error {
	userID, ok := r.session.CurrentUserID(ctx)
	if !ok {
		return nil
	}

	ref := r.favorites(userID).Doc(bookID)
	if isFavorite {
		marker := domain.FavoriteMarker{BookID: bookID, FavoritedAt: r.clock.NowMillis()}
		if err := ref.Set(ctx, marker); err != nil {
			return fmt.Errorf("add favorite: %w", err)
		}
		return nil
	}
	if err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	return nil
}

// byTimestampDesc orders books newest first, ties by id.
func byTimestampDesc(a, b domain.Book) int {
	if c := cmp.Compare(b.Timestamp, a.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
