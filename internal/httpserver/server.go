package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/blackmichael/mastodon-triage/internal/config"
	"github.com/blackmichael/mastodon-triage/internal/domain"
	"github.com/blackmichael/mastodon-triage/internal/mastodon"
)

// Server is the HTTP boundary consumed by the review UI. The interesting
// state lives behind the triage service; the remote-action endpoints are thin
// authenticated proxies with no state of their own.
type Server struct {
	cfg        *config.Config
	triage     *domain.TriageService
	actions    *mastodon.Client
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server around the triage service.
func NewServer(cfg *config.Config, triage *domain.TriageService, actions *mastodon.Client, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		triage:  triage,
		actions: actions,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/posts", s.handleGetPosts)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/seen", s.handleMarkSeen)
	mux.HandleFunc("POST /api/posts/save", s.handleSave)
	mux.HandleFunc("GET /api/accounts/{id}/tags", s.handleGetAccountTags)
	mux.HandleFunc("POST /api/accounts/{id}/tags", s.handleAddAccountTag)
	mux.HandleFunc("POST /api/follow", s.handleFollow)
	mux.HandleFunc("POST /api/favourite", s.handleFavourite)
	mux.HandleFunc("GET /api/context", s.handleContext)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	server := r.URL.Query().Get("server")
	if server == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "server parameter is required")
		return
	}

	dir, err := domain.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "direction must be newer or older")
		return
	}

	result, err := s.triage.Sync(r.Context(), server, dir)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	server := r.URL.Query().Get("server")
	if err := s.triage.Reset(r.Context(), server); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleGetPosts(w http.ResponseWriter, r *http.Request) {
	server := r.URL.Query().Get("server")
	if server == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "server parameter is required")
		return
	}
	bucket, err := domain.ParseBucket(r.URL.Query().Get("bucket"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "unknown bucket")
		return
	}
	limit, err := intParam(r, "limit", 40)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	posts, err := s.triage.GetPage(r.Context(), server, bucket, limit, offset)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	resp := make([]postResponse, len(posts))
	for i, p := range posts {
		resp[i] = toPostResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": resp})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.triage.Stats(r.Context(), r.URL.Query().Get("server"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": stats})
}

func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	server := r.URL.Query().Get("server")
	if server == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "server parameter is required")
		return
	}
	bucket, err := domain.ParseBucket(r.URL.Query().Get("bucket"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "unknown bucket")
		return
	}
	from, err := timeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	to, err := timeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	updated, err := s.triage.MarkSeen(r.Context(), server, bucket, from, to)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	server := r.URL.Query().Get("server")
	id := r.URL.Query().Get("id")
	if server == "" || id == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "server and id parameters are required")
		return
	}
	saved, err := strconv.ParseBool(r.URL.Query().Get("saved"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "saved must be true or false")
		return
	}

	if err := s.triage.SetSaved(r.Context(), server, id, saved); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetAccountTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.triage.AccountTags(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) handleAddAccountTag(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "tag parameter is required")
		return
	}
	if err := s.triage.TagAccount(r.Context(), r.PathValue("id"), tag); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	base, token, ok := s.actionTarget(w, r)
	if !ok {
		return
	}
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "account_id parameter is required")
		return
	}
	if err := s.actions.Follow(r.Context(), base, token, accountID); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFavourite(w http.ResponseWriter, r *http.Request) {
	base, token, ok := s.actionTarget(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "id parameter is required")
		return
	}
	if err := s.actions.Favourite(r.Context(), base, token, id); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	sc, err := s.triage.Server(r.URL.Query().Get("server"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "id parameter is required")
		return
	}
	statusCtx, err := s.actions.StatusContext(r.Context(), sc.BaseURL, id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusCtx)
}

// actionTarget resolves the server and access token for a remote action.
func (s *Server) actionTarget(w http.ResponseWriter, r *http.Request) (baseURL, token string, ok bool) {
	sc, err := s.triage.Server(r.URL.Query().Get("server"))
	if err != nil {
		s.writeFailure(w, r, err)
		return "", "", false
	}
	if sc.AccessToken == "" {
		s.writeFailure(w, r, fmt.Errorf("%w: %s", domain.ErrNoToken, sc.Slug))
		return "", "", false
	}
	return sc.BaseURL, sc.AccessToken, true
}

// writeFailure maps domain errors to responses: caller-input errors become
// 400/404, everything else is a logged 500.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownServer),
		errors.Is(err, domain.ErrUnknownBucket),
		errors.Is(err, domain.ErrUnknownDirection),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrNoToken):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "InternalError", "request failed")
	}
}

// postResponse is the wire shape of a stored post, including its derived
// bucket for the display layer.
type postResponse struct {
	ID                 string                   `json:"id"`
	Server             string                   `json:"server"`
	CreatedAt          time.Time                `json:"created_at"`
	Content            string                   `json:"content"`
	Language           string                   `json:"language,omitempty"`
	InReplyToID        string                   `json:"in_reply_to_id,omitempty"`
	ParentID           string                   `json:"parent_id,omitempty"`
	URL                string                   `json:"url,omitempty"`
	AccountID          string                   `json:"account_id"`
	AccountUsername    string                   `json:"account_username"`
	AccountDisplayName string                   `json:"account_display_name"`
	AccountURL         string                   `json:"account_url,omitempty"`
	AccountAvatar      string                   `json:"account_avatar,omitempty"`
	AccountBot         bool                     `json:"account_bot"`
	MediaAttachments   []domain.MediaAttachment `json:"media_attachments"`
	Visibility         string                   `json:"visibility,omitempty"`
	FavouritesCount    int                      `json:"favourites_count"`
	ReblogsCount       int                      `json:"reblogs_count"`
	RepliesCount       int                      `json:"replies_count"`
	Seen               bool                     `json:"seen"`
	Saved              bool                     `json:"saved"`
	Bucket             domain.Bucket            `json:"bucket"`
}

func toPostResponse(p *domain.Post) postResponse {
	media := p.MediaAttachments
	if media == nil {
		media = []domain.MediaAttachment{}
	}
	return postResponse{
		ID:                 p.ID,
		Server:             p.ServerSlug,
		CreatedAt:          p.CreatedAt,
		Content:            p.Content,
		Language:           p.Language,
		InReplyToID:        p.InReplyToID,
		ParentID:           p.ParentID,
		URL:                p.URL,
		AccountID:          p.AccountID,
		AccountUsername:    p.AccountUsername,
		AccountDisplayName: p.AccountDisplayName,
		AccountURL:         p.AccountURL,
		AccountAvatar:      p.AccountAvatar,
		AccountBot:         p.AccountBot,
		MediaAttachments:   media,
		Visibility:         p.Visibility,
		FavouritesCount:    p.FavouritesCount,
		ReblogsCount:       p.ReblogsCount,
		RepliesCount:       p.RepliesCount,
		Seen:               p.Seen,
		Saved:              p.Saved,
		Bucket:             domain.Classify(p),
	}
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return parsed, nil
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, fmt.Errorf("%s parameter is required", name)
	}
	parsed, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
