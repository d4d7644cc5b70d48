package api

import (
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mathlens/mathlens/internal/playback"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.CORSOrigins))
	r.Use(middleware.CleanPath)

	r.Get("/health", healthHandler(cfg))

	r.Get("/video/{folder}/{filename}", videoHandler(cfg))
	r.Head("/video/{folder}/{filename}", videoHandler(cfg))
	r.Get("/static/{filename}", staticHandler(cfg))
	r.Head("/static/{filename}", staticHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIToken, cfg.Logger))

		r.Post("/generate", generateHandler(cfg))
		r.Get("/generations", listGenerationsHandler(cfg))
		r.Get("/generations/{id}", getGenerationHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		resp := HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
			Completion: CompletionStatus{
				Provider:   cfg.Provider,
				Configured: cfg.CompletionConfigured,
			},
		}

		if cfg.Probe != nil {
			caps, err := cfg.Probe.Get(r.Context())
			if err == nil {
				resp.Renderer = CapabilitiesToResponse(caps)
			}
		}
		if !resp.Completion.Configured || (resp.Renderer != nil && !resp.Renderer.Available) {
			resp.Status = "degraded"
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func videoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		folder := chi.URLParam(r, "folder")
		filename := chi.URLParam(r, "filename")
		if !playback.ValidSegment(folder) || !playback.ValidSegment(filename) {
			WriteError(w, http.StatusBadRequest, "invalid video path", "BAD_REQUEST")
			return
		}
		if cfg.Videos == nil {
			WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
			return
		}

		path, err := cfg.Videos.Locate(folder, filename)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
				return
			}
			cfg.Logger.Error("video lookup failed", "error", err, "folder", folder, "filename", filename)
			WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
			return
		}

		if err := cfg.Playback.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("playback error", "error", err, "path", path)
			WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
		}
	}
}

func staticHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		if cfg.StaticDir == "" {
			WriteError(w, http.StatusNotFound, "file not found", "NOT_FOUND")
			return
		}

		path, err := playback.Join(cfg.StaticDir, filename)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid file name", "BAD_REQUEST")
			return
		}

		if err := cfg.Playback.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("playback error", "error", err, "path", path)
			WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
		}
	}
}

func listGenerationsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.History == nil {
			WriteJSON(w, http.StatusOK, GenerationsResponse{Generations: []GenerationResponse{}})
			return
		}

		limit := defaultListLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = min(n, maxListLimit)
		}

		gens, err := cfg.History.List(r.Context(), limit)
		if err != nil {
			cfg.Logger.Error("failed to list generations", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list generations", "INTERNAL_ERROR")
			return
		}

		resp := GenerationsResponse{Generations: make([]GenerationResponse, len(gens))}
		for i, g := range gens {
			resp.Generations[i] = GenerationToResponse(g)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getGenerationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !playback.ValidSegment(id) {
			WriteError(w, http.StatusBadRequest, "invalid generation id", "BAD_REQUEST")
			return
		}
		if cfg.History == nil {
			WriteError(w, http.StatusNotFound, "generation not found", "NOT_FOUND")
			return
		}

		g, err := cfg.History.Get(r.Context(), id)
		if err != nil {
			cfg.Logger.Error("failed to get generation", "error", err, "id", id)
			WriteError(w, http.StatusInternalServerError, "failed to get generation", "INTERNAL_ERROR")
			return
		}
		if g == nil {
			WriteError(w, http.StatusNotFound, "generation not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, GenerationToResponse(g))
	}
}
