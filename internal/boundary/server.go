// Package boundary is the daemon's REST + websocket front door: a single
// echo.Echo instance bound to 127.0.0.1, authenticated by a shared token,
// serving the JSON API under /api and the browser UI's static assets with
// SPA fallback everywhere else (spec §4.I).
package boundary

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/consultd/consultd/internal/configsvc"
	"github.com/consultd/consultd/internal/conversation"
	"github.com/consultd/consultd/internal/eventhub"
	"github.com/consultd/consultd/internal/model"
	"github.com/consultd/consultd/internal/orchestrator"
	"github.com/consultd/consultd/internal/provider"
	"github.com/consultd/consultd/internal/rag"
)

// Documents is the subset of the store the boundary needs directly, for
// the RAG listing/deletion/chunk-inspection endpoints that don't belong
// in the RAG pipeline's own ingest/retrieve surface. *store.Store
// satisfies this directly.
type Documents interface {
	ListDocuments(ctx context.Context, folder string) ([]model.Document, error)
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ChunksByDocument(ctx context.Context, documentID string) ([]model.Chunk, error)
	ListFolders(ctx context.Context) ([]string, error)
}

// Dependencies are every collaborator the boundary wires into its routes.
type Dependencies struct {
	Token         string
	Config        *configsvc.Service
	Conversations *conversation.Service
	Orchestrator  *orchestrator.Orchestrator
	RAG           *rag.Pipeline
	Documents     Documents
	Hub           *eventhub.Hub
	WSServer      *eventhub.Server
	Provider      *provider.Adapter
	EmbedURL      string
	HTTPClient    *http.Client
	StaticDir     string
	StartedAt     time.Time
	Log           *logrus.Entry
}

// Boundary owns the echo instance and the plain http.Server wrapping it.
type Boundary struct {
	echo *echo.Echo
	deps Dependencies
	srv  *http.Server
}

// New builds a Boundary with every route registered, but does not start
// listening.
func New(deps Dependencies) *Boundary {
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	b := &Boundary{echo: e, deps: deps}
	b.registerMiddleware()
	b.registerRoutes()
	return b
}

// Start listens on addr (127.0.0.1:<port>) and serves until ctx is
// canceled, matching lifecycle.Stage's Run contract.
func (b *Boundary) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	b.srv = &http.Server{
		Handler:      b.echo,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- b.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop gracefully shuts the HTTP server down, matching lifecycle.Stage's
// Stop contract.
func (b *Boundary) Stop(ctx context.Context) error {
	if b.srv == nil {
		return nil
	}
	return b.srv.Shutdown(ctx)
}
