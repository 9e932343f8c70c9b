package domain

// FavoriteMarker records that a user favorited a book. The document id is the
// book id; the favorite list is resolved against the public catalog.
type FavoriteMarker struct {
	BookID      string `json:"-"`
	FavoritedAt int64  `json:"favoritedAt"`
}
