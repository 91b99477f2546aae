package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/driveindex/driveindex/internal/cache"
	"github.com/driveindex/driveindex/internal/metrics"
	"github.com/driveindex/driveindex/internal/tree"
)

const (
	defaultFindLimit = 50
	maxFindLimit     = 1000
	shutdownTimeout  = 10 * time.Second
)

// CacheReader is the read side of the cache used by the handlers.
// *cache.Store satisfies it.
type CacheReader interface {
	Counts(ctx context.Context) (cache.Counts, error)
	Search(ctx context.Context, text string, limit int) ([]cache.Row, error)
}

// Handler holds the route handlers.
type Handler struct {
	cache  CacheReader
	state  *State
	logger *slog.Logger
}

// NewRouter builds the status router. When token is non-empty, the /api
// routes require it as a bearer token; health and metrics stay open.
func NewRouter(reader CacheReader, state *State, token string, logger *slog.Logger) chi.Router {
	h := &Handler{cache: reader, state: state, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", h.Live)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(token))
		r.Get("/status", h.Status)
		r.Get("/find", h.Find)
	})

	return r
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.cache.Counts(r.Context())
	if err != nil {
		h.logger.Error("status: counting rows failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))

		return
	}

	metrics.SetCacheRows(counts.Folders, counts.Files)
	writeJSON(w, http.StatusOK, h.state.snapshot(counts))
}

// FindResult is one element of the /api/find response.
type FindResult struct {
	Kind       string     `json:"kind"`
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	Size       int64      `json:"size,omitempty"`
	MediaType  string     `json:"media_type,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

// Find handles GET /api/find?q=text[&kind=file|folder][&limit=N].
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	text := strings.TrimSpace(q.Get("q"))
	if text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing query parameter q"))
		return
	}

	kind, err := parseKind(q.Get("kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	limit := defaultFindLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxFindLimit {
			writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("limit must be 1..%d", maxFindLimit)))
			return
		}
	}

	rows, err := h.cache.Search(r.Context(), text, limit)
	if err != nil {
		h.logger.Error("find: search failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))

		return
	}

	results := make([]FindResult, 0, len(rows))
	for _, row := range rows {
		if kind != tree.KindOther && row.Kind != kind {
			continue
		}

		results = append(results, toFindResult(row))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
	})
}

// parseKind maps "file", "folder" or "" to a tree.Kind; "" yields
// KindOther, meaning no filter.
func parseKind(s string) (tree.Kind, error) {
	switch strings.ToLower(s) {
	case "":
		return tree.KindOther, nil
	case "file":
		return tree.KindFile, nil
	case "folder":
		return tree.KindFolder, nil
	default:
		return tree.KindOther, fmt.Errorf("unknown kind %q", s)
	}
}

func toFindResult(row cache.Row) FindResult {
	res := FindResult{Kind: row.Kind.String(), Path: row.FullPath, Name: row.Name}

	rec, err := tree.DecodeRecord(row.Node)
	if err != nil {
		return res
	}

	res.Size = rec.Size
	res.MediaType = rec.MediaType

	if !rec.ModifiedAt.IsZero() {
		mod := rec.ModifiedAt
		res.ModifiedAt = &mod
	}

	return res
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// Serve runs an HTTP server on addr until ctx is canceled, then shuts it
// down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: shutdownTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("status server listening", slog.String("address", addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("statusapi: serving on %s: %w", addr, err)
			return
		}

		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown error", slog.String("error", err.Error()))
		return fmt.Errorf("statusapi: shutdown: %w", err)
	}

	return <-errCh
}
