package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mathlens/mathlens/internal/history"
	"github.com/mathlens/mathlens/internal/pipeline"
	"github.com/mathlens/mathlens/internal/render"
)

// Generator runs one question through the pipeline.
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// VideoLocator resolves /video/<folder>/<file> to a path on disk.
type VideoLocator interface {
	Locate(stem, file string) (string, error)
}

// FileServer writes a file with Range support.
type FileServer interface {
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
}

// GenerationReader is the read side of the generation ledger.
type GenerationReader interface {
	Get(ctx context.Context, id string) (*history.Generation, error)
	List(ctx context.Context, limit int) ([]*history.Generation, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host      string
	Port      int
	StaticDir string

	Generator Generator
	Videos    VideoLocator
	Playback  FileServer
	History   GenerationReader
	Probe     *render.CachedProbe

	Provider             string
	CompletionConfigured bool

	CORSOrigins []string
	APIToken    string

	Logger    *slog.Logger
	StartTime time.Time
	Version   string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(cfg.Port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Generation blocks on the model and the renderer; streaming
			// large videos also needs an unbounded write.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
