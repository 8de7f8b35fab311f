package sessions

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware resolves the {sessionId} URL parameter against the registry
// and refreshes the session's contact timestamp, rejecting unknown ids
// before they reach a handler.
type Middleware struct {
	Service
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionId")
		session, ok := m.Find(id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		session.Touch()
		next.ServeHTTP(w, r)
	})
}
