package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json/v2"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/docstore"
	"github.com/booknestapp/booknest-server/internal/domain"
	domainerrors "github.com/booknestapp/booknest-server/internal/errors"
	"github.com/booknestapp/booknest-server/internal/repository"
	"github.com/booknestapp/booknest-server/internal/search"
	"github.com/booknestapp/booknest-server/internal/service"
	"github.com/booknestapp/booknest-server/internal/sse"
	"github.com/booknestapp/booknest-server/internal/validation"
)

const testWordLimit = 5

// testServer wraps the API server with the collaborators tests poke at.
type testServer struct {
	*Server
	repo *repository.BookRepository
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	store, err := docstore.Open(docstore.Options{InMemory: true})
	require.NoError(t, err)

	key := bytes.Repeat([]byte{7}, 32)
	tokens, err := auth.NewTokenService(key, time.Hour)
	require.NoError(t, err)
	authSvc := auth.NewService(store, tokens, validation.New(), auth.ServiceOptions{
		HashParams: auth.HashParams{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
	})

	var ticks atomic.Int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := domain.Clock(func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
	})
	repo := repository.NewBookRepository(store, authSvc, repository.Options{Clock: clock})
	drafts := service.NewDraftService(repo, authSvc, service.DraftOptions{WordLimit: testWordLimit})

	index, err := search.NewSearchIndex(search.Options{})
	require.NoError(t, err)
	indexer := search.NewIndexer(index, repo, nil)
	indexer.Start(context.Background())

	manager := sse.NewManager(nil)
	srv := NewServer(Dependencies{
		Store:      store,
		Repository: repo,
		Services: &Services{
			Auth:   authSvc,
			Books:  service.NewBookService(repo, authSvc, nil),
			Drafts: drafts,
			Search: indexer,
		},
		SearchIndex: index,
		SSEManager:  manager,
		SSEHandler:  sse.NewHandler(manager, repo, authSvc, drafts, nil),
	}, opts)

	t.Cleanup(func() {
		srv.Close()
		_ = manager.Shutdown(context.Background())
		_ = drafts.Shutdown()
		_ = indexer.Stop()
		_ = index.Close()
		_ = store.Close()
	})
	return &testServer{Server: srv, repo: repo}
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// call performs a request against the server and decodes the envelope.
func call[T any](t *testing.T, s *testServer, method, path string, body any, token string) (int, envelope[T]) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var env envelope[T]
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

// signUp registers an account and returns an access token for it.
func (s *testServer) signUp(t *testing.T, email string) string {
	t.Helper()
	status, _ := call[UserResponse](t, s, http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		Email: email, Password: "correct horse", DisplayName: "Reader",
	}, "")
	require.Equal(t, http.StatusCreated, status)

	status, env := call[AuthResponse](t, s, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email: email, Password: "correct horse",
	}, "")
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, env.Data.AccessToken)
	return env.Data.AccessToken
}

// publish writes a draft with one chapter through the draft session API and
// publishes it.
func (s *testServer) publish(t *testing.T, token, title string) string {
	t.Helper()
	status, _ := call[service.DraftState](t, s, http.MethodPost, "/api/v1/drafts/session", map[string]string{}, token)
	require.Equal(t, http.StatusOK, status)

	status, saved := call[SaveDraftResponse](t, s, http.MethodPost, "/api/v1/drafts/session/save", map[string]string{
		"title": title, "content": "once upon a time",
	}, token)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, saved.Data.BookID)

	status, _ = call[service.DraftState](t, s, http.MethodPost, "/api/v1/drafts/session/publish", nil, token)
	require.Equal(t, http.StatusOK, status)
	return saved.Data.BookID
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t, Options{})

	status, env := call[HealthResponse](t, s, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
	assert.Equal(t, statusHealthy, env.Data.Status)
	assert.Equal(t, statusHealthy, env.Data.Components["database"].Status)
	assert.Equal(t, "no connected clients", env.Data.Components["sse"].Message)
}

func TestAuth_RegisterLoginMeLogout(t *testing.T) {
	s := setupTestServer(t, Options{})
	token := s.signUp(t, "ada@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ada@example.com")
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	status, _ := call[MessageResponse](t, s, http.MethodPost, "/api/v1/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, status)

	status, env := call[UserResponse](t, s, http.MethodGet, "/api/v1/users/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
	assert.Equal(t, "UNAUTHENTICATED", env.Code)
}

func TestAuth_Errors(t *testing.T) {
	s := setupTestServer(t, Options{})
	s.signUp(t, "ada@example.com")

	status, env := call[UserResponse](t, s, http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		Email: "ADA@example.com", Password: "correct horse", DisplayName: "Again",
	}, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Code)

	status, env2 := call[AuthResponse](t, s, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email: "ada@example.com", Password: "wrong password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIALS", env2.Code)

	status, env3 := call[UserResponse](t, s, http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		Email: "not-an-email", Password: "correct horse", DisplayName: "Bad",
	}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION", env3.Code)
}

func TestAuth_RateLimited(t *testing.T) {
	s := setupTestServer(t, Options{AuthRateLimit: 0.001})

	login := LoginRequest{Email: "nobody@example.com", Password: "whatever"}
	for range 5 {
		status, _ := call[AuthResponse](t, s, http.MethodPost, "/api/v1/auth/login", login, "")
		require.Equal(t, http.StatusUnauthorized, status)
	}

	status, env := call[AuthResponse](t, s, http.MethodPost, "/api/v1/auth/login", login, "")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", env.Code)
}

func TestProtectedRoutesRequireUser(t *testing.T) {
	s := setupTestServer(t, Options{})

	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/books"},
		{http.MethodDelete, "/api/v1/books/b1"},
		{http.MethodGet, "/api/v1/favorites"},
		{http.MethodPut, "/api/v1/favorites/b1"},
		{http.MethodGet, "/api/v1/drafts"},
		{http.MethodPost, "/api/v1/drafts/session"},
		{http.MethodGet, "/api/v1/drafts/session"},
		{http.MethodPost, "/api/v1/drafts/session/publish"},
	}
	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			var body any
			switch r.path {
			case "/api/v1/books":
				body = SaveBookRequest{Title: "Dune"}
			case "/api/v1/drafts/session":
				if r.method == http.MethodPost {
					body = map[string]string{}
				}
			}
			status, env := call[any](t, s, r.method, r.path, body, "")
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, "UNAUTHENTICATED", env.Code)
		})
	}
}

func TestDraftSession_Flow(t *testing.T) {
	s := setupTestServer(t, Options{})
	token := s.signUp(t, "ada@example.com")

	status, env := call[service.DraftState](t, s, http.MethodGet, "/api/v1/drafts/session", nil, token)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Code)

	status, env = call[service.DraftState](t, s, http.MethodPost, "/api/v1/drafts/session", map[string]string{"bookId": "new"}, token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, service.PhaseNew, env.Data.Phase)
	require.Len(t, env.Data.Chapters, 1)
	require.NotNil(t, env.Data.SelectedChapter)
	assert.Equal(t, "Chapter 1", env.Data.SelectedChapter.Title)

	// Adding a chapter before the first save is ignored.
	status, env = call[service.DraftState](t, s, http.MethodPost, "/api/v1/drafts/session/chapters", nil, token)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, env.Data.Chapters, 1)

	// Over the word limit: nothing is written and the flag sticks.
	status, saved := call[SaveDraftResponse](t, s, http.MethodPost, "/api/v1/drafts/session/save", map[string]string{
		"title": "Dune", "content": "one two three four five six",
	}, token)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, saved.Data.BookID)
	assert.True(t, saved.Data.State.WordCountExceeded)
	assert.Equal(t, service.PhaseNew, saved.Data.State.Phase)

	status, env = call[service.DraftState](t, s, http.MethodDelete, "/api/v1/drafts/session/word-count-error", nil, token)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, env.Data.WordCountExceeded)

	status, saved = call[SaveDraftResponse](t, s, http.MethodPost, "/api/v1/drafts/session/save", map[string]string{
		"title": "Dune", "content": "one two three four five",
	}, token)
	require.Equal(t, http.StatusOK, status)
	bookID := saved.Data.BookID
	require.NotEmpty(t, bookID)
	assert.Equal(t, service.PhaseLoaded, saved.Data.State.Phase)

	status, env = call[service.DraftState](t, s, http.MethodPost, "/api/v1/drafts/session/chapters", nil, token)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, env.Data.Chapters, 2)
	assert.True(t, env.Data.NewChapter)
	assert.Equal(t, "Chapter 2", env.Data.SelectedChapter.Title)

	status, env = call[service.DraftState](t, s, http.MethodDelete, "/api/v1/drafts/session/new-chapter", nil, token)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, env.Data.NewChapter)

	first := env.Data.Chapters[0].ID
	status, env = call[service.DraftState](t, s, http.MethodPut, "/api/v1/drafts/session/selection", map[string]string{"chapterId": first}, token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, first, env.Data.SelectedChapter.ID)

	status, drafts := call[BookListResponse](t, s, http.MethodGet, "/api/v1/drafts", nil, token)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, drafts.Data.Books, 1)
	assert.Equal(t, bookID, drafts.Data.Books[0].ID)

	status, env = call[service.DraftState](t, s, http.MethodPost, "/api/v1/drafts/session/publish", nil, token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, service.PhaseNew, env.Data.Phase)
	assert.Empty(t, env.Data.Chapters)

	status, detail := call[BookDetailResponse](t, s, http.MethodGet, "/api/v1/books/"+bookID, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Dune", detail.Data.Title)
	assert.False(t, detail.Data.IsDraft)
	assert.Len(t, detail.Data.Chapters, 2)

	_, drafts = call[BookListResponse](t, s, http.MethodGet, "/api/v1/drafts", nil, token)
	assert.Empty(t, drafts.Data.Books)

	status, _ = call[MessageResponse](t, s, http.MethodDelete, "/api/v1/drafts/session", nil, token)
	require.Equal(t, http.StatusOK, status)
	status, _ = call[service.DraftState](t, s, http.MethodGet, "/api/v1/drafts/session", nil, token)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBooks_ListGetSaveDelete(t *testing.T) {
	s := setupTestServer(t, Options{})
	ada := s.signUp(t, "ada@example.com")
	bob := s.signUp(t, "bob@example.com")

	dune := s.publish(t, ada, "Dune")

	status, saved := call[SaveBookResponse](t, s, http.MethodPost, "/api/v1/books", SaveBookRequest{
		Title: "  Emma ", Genre: "Sci-Fi", Language: "English",
	}, bob)
	require.Equal(t, http.StatusOK, status)
	emma := saved.Data.ID
	require.NotEmpty(t, emma)

	status, list := call[BookListResponse](t, s, http.MethodGet, "/api/v1/books", nil, "")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list.Data.Books, 2)
	assert.Equal(t, emma, list.Data.Books[0].ID, "newest first")
	assert.Equal(t, "Emma", list.Data.Books[0].Title)
	assert.Equal(t, "science-fiction", list.Data.Books[0].Genre)
	assert.Equal(t, "en", list.Data.Books[0].Language)

	status, _ = call[BookDetailResponse](t, s, http.MethodGet, "/api/v1/books/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, status)

	// Neither deleting nor overwriting someone else's book is allowed.
	status, env := call[MessageResponse](t, s, http.MethodDelete, "/api/v1/books/"+dune, nil, bob)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Code)
	status, _ = call[SaveBookResponse](t, s, http.MethodPost, "/api/v1/books", SaveBookRequest{ID: dune, Title: "Mine"}, bob)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = call[MessageResponse](t, s, http.MethodDelete, "/api/v1/books/"+dune, nil, ada)
	require.Equal(t, http.StatusOK, status)
	status, _ = call[BookDetailResponse](t, s, http.MethodGet, "/api/v1/books/"+dune, nil, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call[MessageResponse](t, s, http.MethodDelete, "/api/v1/books/"+dune, nil, ada)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFavorites(t *testing.T) {
	s := setupTestServer(t, Options{})
	token := s.signUp(t, "ada@example.com")
	dune := s.publish(t, token, "Dune")
	s.publish(t, token, "Emma")

	status, _ := call[MessageResponse](t, s, http.MethodPut, "/api/v1/favorites/"+dune, nil, token)
	require.Equal(t, http.StatusOK, status)

	status, _ = call[MessageResponse](t, s, http.MethodPut, "/api/v1/favorites/missing", nil, token)
	assert.Equal(t, http.StatusNotFound, status)

	status, list := call[BookListResponse](t, s, http.MethodGet, "/api/v1/favorites", nil, token)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, list.Data.Books, 1)
	assert.Equal(t, dune, list.Data.Books[0].ID)

	status, _ = call[MessageResponse](t, s, http.MethodDelete, "/api/v1/favorites/"+dune, nil, token)
	require.Equal(t, http.StatusOK, status)

	_, list = call[BookListResponse](t, s, http.MethodGet, "/api/v1/favorites", nil, token)
	assert.Empty(t, list.Data.Books)
}

func TestSearch(t *testing.T) {
	s := setupTestServer(t, Options{})
	token := s.signUp(t, "ada@example.com")
	dune := s.publish(t, token, "Dune Messiah")
	s.publish(t, token, "Emma")

	assert.Eventually(t, func() bool {
		status, env := call[BookListResponse](t, s, http.MethodGet, "/api/v1/search?q=messiah", nil, "")
		return status == http.StatusOK && len(env.Data.Books) == 1 && env.Data.Books[0].ID == dune
	}, 2*time.Second, 10*time.Millisecond)

	status, env := call[BookListResponse](t, s, http.MethodGet, "/api/v1/search?limit=500", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION", env.Code)
}

func TestStream_Views(t *testing.T) {
	s := setupTestServer(t, Options{})
	token := s.signUp(t, "ada@example.com")
	s.publish(t, token, "Dune")

	ts := httptest.NewServer(s)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var event sse.Event
	var views struct {
		Data service.BookViews `json:"data"`
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		if event.Type != sse.EventViews {
			continue
		}
		require.NoError(t, json.Unmarshal([]byte(line), &views))
		if len(views.Data.AllBooks) == 1 {
			break
		}
	}
	require.Len(t, views.Data.AllBooks, 1)
	assert.Equal(t, "Dune", views.Data.AllBooks[0].Title)
}

func TestEnvelopeTransformer(t *testing.T) {
	tests := []struct {
		name   string
		status string
		in     any
		want   envelope[any]
	}{
		{"success", "200", map[string]string{"id": "b1"}, envelope[any]{Success: true, Data: map[string]any{"id": "b1"}}},
		{"api error", "404", &APIError{Code: "NOT_FOUND", Message: "gone"}, envelope[any]{Error: "gone", Code: "NOT_FOUND"}},
		{"domain error", "403", domainerrors.Forbiddenf("not yours"), envelope[any]{Error: "not yours", Code: "FORBIDDEN"}},
		{"client error without details", "422", map[string]string{}, envelope[any]{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := EnvelopeTransformer(nil, tt.status, tt.in)
			require.NoError(t, err)
			raw, err := json.Marshal(out)
			require.NoError(t, err)

			var got envelope[any]
			require.NoError(t, json.Unmarshal(raw, &got))
			assert.Equal(t, tt.want.Success, got.Success)
			assert.Equal(t, tt.want.Code, got.Code)
			assert.Equal(t, tt.want.Error, got.Error)
		})
	}
}
