// Package http exposes the caption ingest and session management API.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"caption-ingress-service/internal/observability"
	"caption-ingress-service/internal/schema"
	"caption-ingress-service/internal/service/session"
)

// msThreshold separates second-based from millisecond-based timestamps:
// any value above it cannot be a plausible Unix time in seconds.
const msThreshold = 1e10

type handler struct {
	manager   *session.Manager
	validator *schema.Validator
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(manager *session.Manager) http.Handler {
	h := &handler{
		manager:   manager,
		validator: schema.New(),
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger())

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/captions", h.postCaption)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.listSessions)
			r.Post("/", h.createSession)
			r.Get("/{id}", h.getSession)
			r.Delete("/{id}", h.closeSession)
			r.Get("/{id}/transcript", h.getTranscript)
			r.Get("/{id}/events", h.streamEvents)
		})
	})

	return r
}

type captionRequest struct {
	MeetingID string  `json:"meetingId"`
	Speaker   string  `json:"speaker"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
}

// postCaption ingests one caption snapshot. The session for the meeting is
// created lazily on the first caption.
func (h *handler) postCaption(w http.ResponseWriter, r *http.Request) {
	var req captionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validator.ValidateCaption(req.Speaker, req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meetingID := req.MeetingID
	if meetingID == "" {
		meetingID = "default"
	}

	s := h.manager.GetOrCreate(meetingID)
	s.Submit(req.Speaker, req.Text, normalizeTimestamp(req.Timestamp))

	writeJSON(w, http.StatusAccepted, map[string]string{
		"sessionId": s.ID,
	})
}

// normalizeTimestamp accepts Unix seconds (possibly fractional) or Unix
// milliseconds, the two formats caption collectors actually send, and a
// missing timestamp means "now".
func normalizeTimestamp(ts float64) time.Time {
	switch {
	case ts <= 0:
		return time.Now()
	case ts > msThreshold:
		return time.UnixMilli(int64(ts))
	default:
		return time.UnixMilli(int64(ts * 1000))
	}
}

type createSessionRequest struct {
	MeetingID string `json:"meetingId"`
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MeetingID == "" {
		writeError(w, http.StatusBadRequest, "meetingId is required")
		return
	}

	s := h.manager.GetOrCreate(req.MeetingID)
	writeJSON(w, http.StatusCreated, sessionInfo(s))
}

func (h *handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": h.manager.List(),
	})
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionInfo(s))
}

func (h *handler) closeSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Close(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		log.Error().Err(err).Str("sessionId", id).Msg("Error closing session")
		writeError(w, http.StatusInternalServerError, "error closing session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	transcript, ok := h.manager.Transcript(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":  id,
		"utterances": transcript,
	})
}

// streamEvents pushes emitted utterances to the client as server-sent
// events until the client disconnects or the session closes.
func (h *handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, cancel := s.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func sessionInfo(s *session.Session) map[string]any {
	return map[string]any{
		"id":            s.ID,
		"meetingId":     s.MeetingID,
		"mode":          s.Mode,
		"startedAt":     s.StartedAt,
		"lastCaptionAt": s.LastCaptionAt(),
		"utterances":    len(s.Transcript()),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
