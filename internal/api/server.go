package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dgallion1/notes2anki/internal/ankiconnect"
	"github.com/dgallion1/notes2anki/internal/config"
	"github.com/dgallion1/notes2anki/internal/flashcard"
	"github.com/dgallion1/notes2anki/internal/pipeline"
	"github.com/dgallion1/notes2anki/internal/segment"
	"github.com/dgallion1/notes2anki/internal/stats"
	"github.com/dgallion1/notes2anki/internal/store"
)

// Pusher sends cards to a running Anki. *ankiconnect.Client satisfies it.
type Pusher interface {
	Push(ctx context.Context, cards []flashcard.Card, deckName string) (*ankiconnect.PushResult, error)
}

// DeckLister reads recent deck history. *store.DB satisfies it.
type DeckLister interface {
	ListDecks(ctx context.Context, limit int) ([]store.DeckRecord, error)
}

// Server is the HTTP API server for notes2anki.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	pusher       Pusher
	decks        DeckLister
	stats        *stats.Recorder
	palette      segment.Palette
	log          *slog.Logger
	cfg          config.Config
}

// Option wires an optional collaborator into the server.
type Option func(*Server)

// WithPusher enables /api/push.
func WithPusher(p Pusher) Option {
	return func(s *Server) { s.pusher = p }
}

// WithDeckHistory enables /api/decks.
func WithDeckHistory(d DeckLister) Option {
	return func(s *Server) { s.decks = d }
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, log *slog.Logger, cfg config.Config, opts ...Option) *Server {
	s := &Server{
		orchestrator: orch,
		stats:        orch.Stats(),
		palette:      cfg.Palette(),
		log:          log,
		cfg:          cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	// Public endpoints.
	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/extract", s.handleExtract)
		r.Post("/api/pdf-upload", s.handlePDFUpload)
		r.Post("/api/document-upload", s.handleDocumentUpload)
		r.Post("/api/generate", s.handleGenerate)
		r.Post("/api/push", s.handlePush)

		r.Post("/api/jobs", s.handleSubmitJob)
		r.Get("/api/jobs/{jobID}", s.handleJobStatus)
		r.Get("/api/jobs/{jobID}/deck", s.handleJobDeck)

		r.Get("/api/decks", s.handleListDecks)
		r.Get("/api/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
