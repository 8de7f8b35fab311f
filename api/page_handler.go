package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/encoding/json"

	api_internal "github.com/jsbridge/jsbridge/api/internal"
	"github.com/jsbridge/jsbridge/assets"
	"github.com/jsbridge/jsbridge/internal/htmlpage"
	"github.com/jsbridge/jsbridge/internal/sessions"
)

var _ http.Handler = &PageHandler{}

type SessionResponse struct {
	SessionId      string    `json:"session_id"`
	IsActive       bool      `json:"is_active"`
	LastContact    time.Time `json:"last_contact"`
	QueuedCommands int       `json:"queued_commands"`
	PendingCalls   int       `json:"pending_calls"`
	Methods        []string  `json:"methods"`
	Attributes     []string  `json:"attributes"`
	LastError      string    `json:"last_error,omitempty"`
}

// PageHandler serves the app page with the bootstrap script injected, the
// standalone script, and a session status endpoint for operators.
type PageHandler struct {
	chi.Router
	sessions sessions.Service
}

func NewPageHandler(service sessions.Service) *PageHandler {
	h := &PageHandler{
		Router:   chi.NewRouter(),
		sessions: service,
	}
	h.Get("/", h.Home)
	h.Get("/appscript.js", h.Script)
	h.Route("/sessions/{sessionId}", func(r chi.Router) {
		touch := sessions.Middleware{Service: service}
		r.Use(touch.Middleware)
		r.Get("/", h.GetSession)
	})
	return h
}

// Home mints a fresh page instance: a new session id, a new session with
// the app binding, and the page HTML with the identifier and script
// injected so polling starts on load.
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	id := sessions.NewPageID()
	session, err := h.sessions.GetOrCreate(id)
	if err != nil {
		api_internal.EncodeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(htmlpage.Render([]byte(session.Binding().HTML()), id))
}

func (h *PageHandler) Script(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript")
	_, _ = w.Write(assets.AppScript())
}

func (h *PageHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, SessionId)

	session, ok := h.sessions.Find(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	response := SessionResponse{
		SessionId:      session.ID(),
		IsActive:       session.Alive(),
		LastContact:    session.LastContact(),
		QueuedCommands: session.QueuedCommands(),
		PendingCalls:   session.PendingCalls(),
		Methods:        session.Binding().Methods(),
		Attributes:     session.Binding().Attrs(),
		LastError:      session.LastClientError(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

const (
	SessionId = "sessionId"
)
