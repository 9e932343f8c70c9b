package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/booknestapp/booknest-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search books",
		Description: "Full-text search over the published catalog",
		Tags:        []string{"Search"},
	}, s.handleSearchBooks)
}

// SearchBooksInput contains the search query parameters.
type SearchBooksInput struct {
	Query    string `query:"q" maxLength:"200" doc:"Search text; empty lists everything"`
	Genre    string `query:"genre" doc:"Genre slug filter"`
	Language string `query:"language" doc:"ISO 639-1 language filter"`
	Sort     string `query:"sort" enum:"relevance,recent,title" default:"relevance" doc:"Sort order"`
	Limit    int    `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Page size"`
	Offset   int    `query:"offset" minimum:"0" default:"0" doc:"Results to skip"`
}

func (s *Server) handleSearchBooks(ctx context.Context, input *SearchBooksInput) (*BookListOutput, error) {
	if s.services.Search == nil {
		return nil, huma.Error503ServiceUnavailable("search is not available")
	}

	books, err := s.services.Search.SearchBooks(ctx, search.SearchParams{
		Query:    input.Query,
		Genre:    input.Genre,
		Language: input.Language,
		SortBy:   input.Sort,
		Limit:    input.Limit,
		Offset:   input.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &BookListOutput{Body: BookListResponse{Books: books}}, nil
}
