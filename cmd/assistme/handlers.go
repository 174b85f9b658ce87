package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ferro-labs/assistme"
	"github.com/ferro-labs/assistme/internal/contact"
	"github.com/ferro-labs/assistme/internal/github"
	"github.com/ferro-labs/assistme/internal/logging"
	"github.com/ferro-labs/assistme/internal/metrics"
	"github.com/ferro-labs/assistme/internal/stream"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

const internalErrorMessage = "Something went wrong. Please try again."

type handlers struct {
	a *assistme.Assistant
}

// newRouter builds the HTTP router.
func newRouter(a *assistme.Assistant) http.Handler {
	h := &handlers{a: a}
	cfg := a.Config()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(logging.AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.CORSOrigins...))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/", h.index)
		r.Get("/health", h.health)
		r.Post("/chat", h.chat)
		r.Get("/models", h.models)
		r.Post("/typing", h.typing)
		r.Get("/conversation/{id}", h.conversation)
		r.Delete("/conversation/{id}", h.clearConversation)
		r.Get("/resume", h.resume)
		r.Post("/contact", h.contact)
		r.Route("/github", func(r chi.Router) {
			r.Get("/profile", h.githubProfile)
			r.Get("/repos", h.githubRepos)
			r.Get("/summary", h.githubSummary)
		})
	})

	if dir := cfg.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		} else {
			logging.Logger.Warn("static directory not found, serving API only", "dir", dir)
		}
	}
	return r
}

// clientKey identifies a client for rate limiting: the first
// X-Forwarded-For entry, else the remote host.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the error envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

// writeFailure maps err onto a status and the error envelope.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *assistme.ValidationError
		rl  *assistme.RateLimitExceeded
		he  *assistme.UpstreamHTTPError
		te  *assistme.TransientStreamError
		ge  *github.StatusError
		ves validation.Errors
	)
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "invalid_request", ve.Error())
	case errors.As(err, &ves):
		writeError(w, http.StatusBadRequest, "invalid_request", ves.Error())
	case errors.As(err, &rl):
		secs := rl.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": map[string]any{"code": "rate_limited", "message": rl.Error(), "retryAfter": secs},
		})
	case errors.As(err, &he):
		writeError(w, http.StatusBadGateway, "upstream_error", fmt.Sprintf("AI service error (%d)", he.StatusCode()))
	case errors.As(err, &te):
		writeError(w, http.StatusServiceUnavailable, "upstream_unavailable", "AI service unavailable - please try again")
	case errors.As(err, &ge):
		if ge.StatusCode == http.StatusNotFound {
			writeError(w, http.StatusNotFound, "not_found", "GitHub resource not found")
			return
		}
		writeError(w, http.StatusBadGateway, "upstream_error", fmt.Sprintf("GitHub error (%d)", ge.StatusCode))
	case errors.Is(err, contact.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "not_configured", err.Error())
	default:
		logging.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", internalErrorMessage)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return false
	}
	return true
}

// admit applies the rate limit and writes the 429 when the client is over.
func (h *handlers) admit(w http.ResponseWriter, r *http.Request, key string) bool {
	if h.a.Allow(key) {
		return true
	}
	metrics.RateLimitRejections.Inc()
	writeFailure(w, r, &assistme.RateLimitExceeded{RetryAfter: h.a.RetryAfter(key)})
	return false
}

func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	key := clientKey(r)
	if !h.admit(w, r, key) {
		return
	}
	var req assistme.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if !req.Streaming() {
		resp, err := h.a.Chat(r.Context(), req, key)
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		if resp.SessionID != "" {
			w.Header().Set("X-Session-ID", resp.SessionID)
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// The session id travels in a header, so it must exist before the
	// first frame is written.
	if req.SessionID == "" {
		req.SessionID = h.a.NewSessionID(key)
	}
	w.Header().Set("X-Session-ID", req.SessionID)
	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	writer := stream.NewWriter(w)
	started := false
	emit := func(f stream.Frame) error {
		started = true
		return writer.Emit(f)
	}
	if _, err := h.a.ChatStream(r.Context(), req, key, emit); err != nil {
		if !started {
			writeFailure(w, r, err)
			return
		}
		logging.FromContext(r.Context()).Debug("stream ended early", "error", err)
	}
}

func (h *handlers) models(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.a.Models())
}

func (h *handlers) typing(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "received", "session_id": body.SessionID})
}

func (h *handlers) conversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msgs, err := h.a.Conversation(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "messages": msgs, "count": len(msgs)})
}

func (h *handlers) clearConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.a.ClearConversation(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cleared", "session_id": id})
}

func (h *handlers) resume(w http.ResponseWriter, r *http.Request) {
	path := h.a.Config().Server.ResumePath
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not_found", "Resume not found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.a.Health(r.Context()))
}

func (h *handlers) index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Mangesh Raut Portfolio API v2.0",
		"endpoints": map[string]string{
			"chat":         "/api/chat",
			"models":       "/api/models",
			"conversation": "/api/conversation/{id}",
			"resume":       "/api/resume",
			"health":       "/api/health",
			"github":       "/api/github/{profile,repos,summary}",
			"contact":      "/api/contact",
			"docs":         "/api",
		},
	})
}

func (h *handlers) contact(w http.ResponseWriter, r *http.Request) {
	key := clientKey(r)
	if !h.admit(w, r, key) {
		return
	}
	var sub contact.Submission
	if !decodeJSON(w, r, &sub) {
		return
	}
	from := r.Header.Get("Referer")
	if from == "" {
		from = r.Header.Get("Origin")
	}
	res, err := h.a.Contact().Submit(r.Context(), sub, contact.Meta{
		UserAgent:     r.UserAgent(),
		SubmittedFrom: from,
		IP:            key,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) githubClient(w http.ResponseWriter) (*github.Client, bool) {
	gh := h.a.GitHub()
	if gh == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "GitHub integration is not configured")
		return nil, false
	}
	return gh, true
}

func (h *handlers) githubProfile(w http.ResponseWriter, r *http.Request) {
	gh, ok := h.githubClient(w)
	if !ok {
		return
	}
	p, err := gh.Profile(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) githubRepos(w http.ResponseWriter, r *http.Request) {
	gh, ok := h.githubClient(w)
	if !ok {
		return
	}
	sortBy := r.URL.Query().Get("sort")
	if sortBy == "" {
		sortBy = "updated"
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 100")
			return
		}
		limit = n
	}
	repos, err := gh.Repos(r.Context(), sortBy, limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repos": repos, "count": len(repos)})
}

func (h *handlers) githubSummary(w http.ResponseWriter, r *http.Request) {
	gh, ok := h.githubClient(w)
	if !ok {
		return
	}
	s, err := gh.Summary(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
