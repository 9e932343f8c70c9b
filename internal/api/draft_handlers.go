package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/booknestapp/booknest-server/internal/service"
)

func (s *Server) registerDraftRoutes() {
	register := func(op huma.Operation) huma.Operation {
		op.Tags = []string{"Drafts"}
		op.Security = bearer
		return op
	}

	huma.Register(s.api, register(huma.Operation{
		OperationID: "openDraftSession",
		Method:      http.MethodPost,
		Path:        "/api/v1/drafts/session",
		Summary:     "Open draft session",
		Description: "Loads a draft, or a fresh one for an empty id or \"new\", replacing the user's open session",
	}), s.handleOpenDraftSession)

	huma.Register(s.api, register(huma.Operation{
		OperationID: "getDraftSession",
		Method:      http.MethodGet,
		Path:        "/api/v1/drafts/session",
		Summary:     "Get draft session",
	}), s.handleGetDraftSession)

	huma.Register(s.api, register(huma.Operation{
		OperationID: "closeDraftSession",
		Method:      http.MethodDelete,
		Path:        "/api/v1/drafts/session",
		Summary:     "Close draft session",
	}), s.handleCloseDraftSession)

	huma.Register(s.api, register(huma.Operation{
		OperationID: "addDraftChapter",
		Method:      http.MethodPost,
		Path:        "/api/v1/drafts/session/chapters",
		Summary:     "Add chapter",
		Description: "Appends a chapter to a saved draft and selects it. Ignored for drafts never saved.",
	}), s.handleAddDraftChapter)

	huma.Register(s.api, register(huma.Operation{
		OperationID: "selectDraftChapter",
		Method:      http.MethodPut,
		Path:        "/api/v1/drafts/session/selection",
		Summary:     "Select chapter",
	}), s.handleSelectDraftChapter)

	huma.Register(s.api, register(huma.Operation{
		OperationID: "saveDraft",
		Method:      http.MethodPost,
		Path:        "/api/v1/drafts/session/save",
		Summary:     "Save draft",
		Description: "Saves the title and the selected chapter's content. Content over the word limit is rejected and flagged on the session.",
	}), s.handleSaveDraft)

	huma.Register(s.api, register(huma.Operation{
		OperationID: "publishDraft",
		Method:      http.MethodPost,
		Path:        "/api/v1/drafts/session/publish",
		Summary:     "Publish draft",
		Description: "Publishes the draft as last saved and resets the session",
	}), s.handlePublishDraft)

	huma.Register(s.api, register(huma.Operation{
		OperationID: "clearWordCountError",
		Method:      http.MethodDelete,
		Path:        "/api/v1/drafts/session/word-count-error",
		Summary:     "Clear word count error",
	}), s.handleClearWordCountError)

	huma.Register(s.api, register(huma.Operation{
		OperationID: "ackNewChapter",
		Method:      http.MethodDelete,
		Path:        "/api/v1/drafts/session/new-chapter",
		Summary:     "Acknowledge new chapter",
	}), s.handleAckNewChapter)
}

// === DTOs ===

// DraftStateOutput wraps a session snapshot for Huma.
type DraftStateOutput struct {
	Body service.DraftState
}

// OpenDraftSessionInput selects the draft to open.
type OpenDraftSessionInput struct {
	Body struct {
		BookID string `json:"bookId,omitempty" doc:"Draft ID; empty or \"new\" starts a fresh draft"`
	} `required:"false"`
}

// SelectDraftChapterInput selects a chapter.
type SelectDraftChapterInput struct {
	Body struct {
		ChapterID string `json:"chapterId" doc:"Chapter ID"`
	}
}

// SaveDraftInput carries the editor contents.
type SaveDraftInput struct {
	Body struct {
		Title   string `json:"title" maxLength:"500" doc:"Book title"`
		Content string `json:"content" doc:"Text of the selected chapter"`
	}
}

// SaveDraftResponse is the outcome of a save.
type SaveDraftResponse struct {
	BookID string             `json:"bookId" doc:"Saved book ID; empty when the content was over the word limit"`
	State  service.DraftState `json:"state" doc:"Session after the save"`
}

// SaveDraftOutput wraps the save response for Huma.
type SaveDraftOutput struct {
	Body SaveDraftResponse
}

// === Handlers ===

func (s *Server) handleOpenDraftSession(ctx context.Context, input *OpenDraftSessionInput) (*DraftStateOutput, error) {
	ds, err := s.services.Drafts.Open(ctx, input.Body.BookID)
	if err != nil {
		return nil, err
	}
	return &DraftStateOutput{Body: ds.State()}, nil
}

func (s *Server) handleGetDraftSession(ctx context.Context, _ *struct{}) (*DraftStateOutput, error) {
	ds, err := s.services.Drafts.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &DraftStateOutput{Body: ds.State()}, nil
}

func (s *Server) handleCloseDraftSession(ctx context.Context, _ *struct{}) (*MessageOutput, error) {
	if _, err := GetUserID(ctx); err != nil {
		return nil, err
	}
	s.services.Drafts.CloseSession(ctx)
	return &MessageOutput{Body: MessageResponse{Message: "Draft session closed"}}, nil
}

func (s *Server) handleAddDraftChapter(ctx context.Context, _ *struct{}) (*DraftStateOutput, error) {
	ds, err := s.services.Drafts.Get(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := ds.AddChapter(ctx); err != nil {
		return nil, err
	}
	return &DraftStateOutput{Body: ds.State()}, nil
}

func (s *Server) handleSelectDraftChapter(ctx context.Context, input *SelectDraftChapterInput) (*DraftStateOutput, error) {
	ds, err := s.services.Drafts.Get(ctx)
	if err != nil {
		return nil, err
	}
	ds.SelectChapter(input.Body.ChapterID)
	return &DraftStateOutput{Body: ds.State()}, nil
}

func (s *Server) handleSaveDraft(ctx context.Context, input *SaveDraftInput) (*SaveDraftOutput, error) {
	ds, err := s.services.Drafts.Get(ctx)
	if err != nil {
		return nil, err
	}
	bookID, err := ds.Save(ctx, input.Body.Title, input.Body.Content)
	if err != nil {
		return nil, err
	}
	return &SaveDraftOutput{Body: SaveDraftResponse{BookID: bookID, State: ds.State()}}, nil
}

func (s *Server) handlePublishDraft(ctx context.Context, _ *struct{}) (*DraftStateOutput, error) {
	ds, err := s.services.Drafts.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := ds.Publish(ctx); err != nil {
		return nil, err
	}
	return &DraftStateOutput{Body: ds.State()}, nil
}

func (s *Server) handleClearWordCountError(ctx context.Context, _ *struct{}) (*DraftStateOutput, error) {
	ds, err := s.services.Drafts.Get(ctx)
	if err != nil {
		return nil, err
	}
	ds.ClearWordCountError()
	return &DraftStateOutput{Body: ds.State()}, nil
}

func (s *Server) handleAckNewChapter(ctx context.Context, _ *struct{}) (*DraftStateOutput, error) {
	ds, err := s.services.Drafts.Get(ctx)
	if err != nil {
		return nil, err
	}
	ds.AckNewChapter()
	return &DraftStateOutput{Body: ds.State()}, nil
}
