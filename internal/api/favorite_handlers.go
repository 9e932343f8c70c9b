package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/booknestapp/booknest-server/internal/errors"
	"github.com/booknestapp/booknest-server/internal/stream"
)

func (s *Server) registerFavoriteRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listFavorites",
		Method:      http.MethodGet,
		Path:        "/api/v1/favorites",
		Summary:     "List favorites",
		Description: "Returns the published books the signed-in user marked as favorite, newest first",
		Tags:        []string{"Favorites"},
		Security:    bearer,
	}, s.handleListFavorites)

	huma.Register(s.api, huma.Operation{
		OperationID: "addFavorite",
		Method:      http.MethodPut,
		Path:        "/api/v1/favorites/{id}",
		Summary:     "Add favorite",
		Description: "Marks a published book as favorite",
		Tags:        []string{"Favorites"},
		Security:    bearer,
	}, s.handleAddFavorite)

	huma.Register(s.api, huma.Operation{
		OperationID: "removeFavorite",
		Method:      http.MethodDelete,
		Path:        "/api/v1/favorites/{id}",
		Summary:     "Remove favorite",
		Description: "Unmarks a favorite book",
		Tags:        []string{"Favorites"},
		Security:    bearer,
	}, s.handleRemoveFavorite)
}

func (s *Server) handleListFavorites(ctx context.Context, _ *struct{}) (*BookListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	books, err := stream.First(ctx, s.repo.ListFavoriteBooks(userID))
	if err != nil {
		return nil, err
	}
	return &BookListOutput{Body: BookListResponse{Books: books}}, nil
}

func (s *Server) handleAddFavorite(ctx context.Context, input *BookIDInput) (*MessageOutput, error) {
	if _, err := GetUserID(ctx); err != nil {
		return nil, err
	}

	book, err := s.repo.GetPublicBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, domainerrors.NotFoundf("book %s not found", input.ID)
	}

	if err := s.services.Books.ToggleFavorite(ctx, input.ID, true); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Added to favorites"}}, nil
}

// Removing a book that is not a favorite succeeds.
func (s *Server) handleRemoveFavorite(ctx context.Context, input *BookIDInput) (*MessageOutput, error) {
	if _, err := GetUserID(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Books.ToggleFavorite(ctx, input.ID, false); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Removed from favorites"}}, nil
}
