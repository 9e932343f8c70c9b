package providers

import (
	"github.com/samber/do/v2"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/config"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/repository"
	"github.com/booknestapp/booknest-server/internal/service"
)

// ProvideBookService provides the book service used for commands. Live
// views are served by per-connection services owned by the SSE handler.
func ProvideBookService(i do.Injector) (*service.BookService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	repo := do.MustInvoke[*repository.BookRepository](i)
	session := do.MustInvoke[*auth.Service](i)

	return service.NewBookService(repo, session, log.Logger), nil
}

// DraftServiceHandle wraps the draft service with shutdown capability.
type DraftServiceHandle struct {
	*service.DraftService
}

// Shutdown implements do.Shutdownable.
func (h *DraftServiceHandle) Shutdown() error {
	return h.DraftService.Shutdown()
}

// ProvideDraftService provides the per-user draft sessions.
func ProvideDraftService(i do.Injector) (*DraftServiceHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	repo := do.MustInvoke[*repository.BookRepository](i)
	session := do.MustInvoke[*auth.Service](i)

	drafts := service.NewDraftService(repo, session, service.DraftOptions{
		WordLimit: cfg.Library.ChapterWordLimit,
		Logger:    log.Logger,
	})
	return &DraftServiceHandle{DraftService: drafts}, nil
}
