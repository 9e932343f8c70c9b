package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/booknestapp/booknest-server/internal/domain"
	domainerrors "github.com/booknestapp/booknest-server/internal/errors"
	"github.com/booknestapp/booknest-server/internal/stream"
)

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "List published books",
		Description: "Returns the public catalog, newest first",
		Tags:        []string{"Books"},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}",
		Summary:     "Get book",
		Description: "Returns a published book with its chapters",
		Tags:        []string{"Books"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "saveBook",
		Method:      http.MethodPost,
		Path:        "/api/v1/books",
		Summary:     "Save book",
		Description: "Creates or updates a book of the signed-in user, as a draft or in the catalog",
		Tags:        []string{"Books"},
		Security:    bearer,
	}, s.handleSaveBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteBook",
		Method:      http.MethodDelete,
		Path:        "/api/v1/books/{id}",
		Summary:     "Delete book",
		Description: "Deletes a draft or published book of the signed-in user with its chapters",
		Tags:        []string{"Books"},
		Security:    bearer,
	}, s.handleDeleteBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "listDrafts",
		Method:      http.MethodGet,
		Path:        "/api/v1/drafts",
		Summary:     "List drafts",
		Description: "Returns the signed-in user's drafts, newest first",
		Tags:        []string{"Drafts"},
		Security:    bearer,
	}, s.handleListDrafts)
}

// === DTOs ===

// BookListResponse contains a list of books.
type BookListResponse struct {
	Books []domain.Book `json:"books" doc:"Books, newest first"`
}

// BookListOutput wraps the book list for Huma.
type BookListOutput struct {
	Body BookListResponse
}

// BookIDInput identifies a book by path.
type BookIDInput struct {
	ID string `path:"id" doc:"Book ID"`
}

// BookDetailResponse is a book with its chapters.
type BookDetailResponse struct {
	domain.Book
	Chapters []domain.Chapter `json:"chapters" doc:"Chapters, oldest first"`
}

// BookDetailOutput wraps the book detail for Huma.
type BookDetailOutput struct {
	Body BookDetailResponse
}

// SaveBookRequest is the request body for saving a book.
type SaveBookRequest struct {
	ID          string            `json:"id,omitempty" doc:"Book ID; omit to create"`
	Title       string            `json:"title" maxLength:"500" doc:"Title"`
	Author      string            `json:"author,omitempty" maxLength:"200" doc:"Author"`
	Description string            `json:"description,omitempty" maxLength:"10000" doc:"Description"`
	Genre       string            `json:"genre,omitempty" maxLength:"100" doc:"Genre"`
	Language    string            `json:"language,omitempty" maxLength:"100" doc:"Language name or code"`
	Visibility  domain.Visibility `json:"visibility,omitempty" enum:"Public,Private" doc:"Visibility once published"`
	IsDraft     bool              `json:"isDraft,omitempty" doc:"Save to the draft area"`
}

// SaveBookInput wraps the save request for Huma.
type SaveBookInput struct {
	Body SaveBookRequest
}

// SaveBookResponse reports the id a save resolved to.
type SaveBookResponse struct {
	ID string `json:"id" doc:"Book ID"`
}

// SaveBookOutput wraps the save response for Huma.
type SaveBookOutput struct {
	Body SaveBookResponse
}

// === Handlers ===

func (s *Server) handleListBooks(ctx context.Context, _ *struct{}) (*BookListOutput, error) {
	books, err := stream.First(ctx, s.repo.ListPublicBooks())
	if err != nil {
		return nil, err
	}
	return &BookListOutput{Body: BookListResponse{Books: books}}, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *BookIDInput) (*BookDetailOutput, error) {
	book, err := s.repo.GetPublicBook(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, domainerrors.NotFoundf("book %s not found", input.ID)
	}

	chapters, err := stream.First(ctx, s.repo.ListPublicChapters(book.ID))
	if err != nil {
		return nil, err
	}
	return &BookDetailOutput{Body: BookDetailResponse{Book: *book, Chapters: chapters}}, nil
}

func (s *Server) handleSaveBook(ctx context.Context, input *SaveBookInput) (*SaveBookOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	req := input.Body
	book := domain.Book{
		ID:          req.ID,
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Genre:       req.Genre,
		Language:    req.Language,
		Visibility:  req.Visibility,
		IsDraft:     req.IsDraft,
		UserID:      userID,
	}
	book.Normalize()

	// Updating someone else's published book is not allowed.
	if !book.IsNew() && !book.IsDraft {
		existing, err := s.repo.GetPublicBook(ctx, book.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.UserID != userID {
			return nil, domainerrors.Forbiddenf("book %s belongs to another user", book.ID)
		}
	}

	bookID, err := s.services.Books.SaveBook(ctx, book)
	if err != nil {
		return nil, err
	}
	return &SaveBookOutput{Body: SaveBookResponse{ID: bookID}}, nil
}

func (s *Server) handleDeleteBook(ctx context.Context, input *BookIDInput) (*MessageOutput, error) {
	if _, err := GetUserID(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Books.DeleteBook(ctx, input.ID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Book deleted"}}, nil
}

func (s *Server) handleListDrafts(ctx context.Context, _ *struct{}) (*BookListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	books, err := stream.First(ctx, s.repo.ListDraftBooks(userID))
	if err != nil {
		return nil, err
	}
	return &BookListOutput{Body: BookListResponse{Books: books}}, nil
}
