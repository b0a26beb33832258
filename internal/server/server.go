package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-cover/internal/api"
	"github.com/joeblew999/plat-cover/internal/api/editor"
	"github.com/joeblew999/plat-cover/internal/auth"
	"github.com/joeblew999/plat-cover/internal/backend"
	"github.com/joeblew999/plat-cover/internal/db"
	"github.com/joeblew999/plat-cover/internal/humastar"
	"github.com/joeblew999/plat-cover/internal/service"
	"github.com/joeblew999/plat-cover/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host          string
	Port          string
	DataDir       string
	WebDir        string // optional web/ directory for static files and fragment overrides
	BackendURL    string
	PlanetAPIKey  string
	RasterTimeout time.Duration
	Logger        *slog.Logger
}

// Server is the cover HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	sessions *service.SessionService
	renderer *templates.Renderer
	logger   *slog.Logger
}

// New creates a new cover server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-cover API", api.Version)
	humaConfig.Info.Description = "Land-cover map sessions: layers, digitizing of training polygons, raster display and dual-map comparison."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	tokens := auth.NewStore(cfg.DataDir)
	client := backend.New(backend.Options{
		BaseURL:        cfg.BackendURL,
		Tokens:         tokens,
		OnUnauthorized: tokens.Logout,
		Logger:         logger,
	})

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		logger:  logger,
	}

	// Drafts live in DuckDB; the server runs without them when it is unavailable.
	var drafts *service.DraftStore
	conn, err := db.Get(db.Config{DataDir: cfg.DataDir, DBName: "cover"})
	if err == nil {
		s.db = conn
		drafts, err = service.NewDraftStore(context.Background(), conn)
	}
	if err != nil {
		logger.Warn("draft store unavailable", slog.Any("error", err))
		drafts = nil
	}

	s.sessions = service.NewSessionService(service.SessionConfig{
		DataDir:      cfg.DataDir,
		Backend:      client,
		Fetcher:      &backend.HTTPFetcher{Base: cfg.BackendURL, Timeout: cfg.RasterTimeout},
		PlanetAPIKey: cfg.PlanetAPIKey,
		Drafts:       drafts,
		Logger:       logger,
	})

	renderer, err := templates.New()
	if err != nil {
		logger.Error("parsing fragment templates failed", slog.Any("error", err))
	} else if cfg.WebDir != "" {
		overrides := filepath.Join(cfg.WebDir, "templates")
		if err := renderer.Reload(os.DirFS(overrides)); err == nil {
			logger.Info("loaded fragment templates", slog.String("dir", overrides))
		}
	}
	s.renderer = renderer

	api.RegisterRoutes(humaAPI, s.sessions, api.Optional{
		Info:     api.NewInfoHandler(cfg.DataDir, client.BaseURL(), drafts != nil, cfg.PlanetAPIKey != ""),
		Auth:     api.NewAuthHandler(client, tokens),
		Projects: api.NewProjectHandler(client),
	})
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the OpenAPI document of the server.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Sessions returns the session service.
func (s *Server) Sessions() *service.SessionService {
	return s.sessions
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

func (s *Server) routes() {
	// Register Editor SSE routes using Huma + Datastar SDK
	if s.renderer != nil {
		editor.NewEditorHandler(s.sessions, s.renderer).RegisterRoutes(s.humaAPI)
	}

	// Static files
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
		s.mux.HandleFunc("/editor", s.handleEditor)
	}

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-cover",
		"status":  "running",
	})
}

func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "editor.html")
	http.ServeFile(w, r, templatePath)
}
