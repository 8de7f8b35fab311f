package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"

	"github.com/jsbridge/jsbridge"
	api_internal "github.com/jsbridge/jsbridge/api/internal"
	"github.com/jsbridge/jsbridge/internal/sessions"
)

var _ http.Handler = &DispatcherHandler{}

// taskRequest is the single inbound wire shape; the task discriminator
// decides which of the optional fields matter.
type taskRequest struct {
	Session    string `json:"session"`
	Task       string `json:"task"`
	Value      any    `json:"value,omitempty"`
	Query      uint64 `json:"query,omitempty"`
	Error      string `json:"error,omitempty"`
	Expr       string `json:"expr,omitempty"`
	Function   string `json:"function,omitempty"`
	Args       []any  `json:"args,omitempty"`
	Block      bool   `json:"block,omitempty"`
	Property   string `json:"property,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// DispatcherHandler is the single inbound entry point for the browser
// bridge: every poll, result, method call and attribute access arrives as a
// POST here and is routed by task kind.
type DispatcherHandler struct {
	chi.Router
	sessions sessions.Service
}

func NewDispatcherHandler(service sessions.Service) *DispatcherHandler {
	h := &DispatcherHandler{
		Router:   chi.NewRouter(),
		sessions: service,
	}
	h.Post("/", h.Process)
	return h
}

func (h *DispatcherHandler) Process(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api_internal.EncodeError(w, r, jsbridge.DispatchError(errors.Wrap(err, "malformed task body")))
		return
	}

	switch req.Task {
	case "next":
		h.next(w, r, req)
	case "state":
		h.state(w, req)
	case "error":
		h.clientError(w, req)
	case "run":
		h.run(w, req)
	case "async":
		h.async(w, req)
	case "get":
		h.get(w, req)
	case "set":
		h.set(w, req)
	case "unload":
		h.unload(w, req)
	default:
		api_internal.EncodeError(w, r, jsbridge.DispatchError(errors.Errorf("unknown task %q", req.Task)))
	}
}

// next holds the browser's poll open until a command is available or the
// session's poll window lapses. An empty response is the benign "nothing
// yet" signal that makes the browser reconnect.
func (h *DispatcherHandler) next(w http.ResponseWriter, r *http.Request, req taskRequest) {
	session, err := h.sessions.GetOrCreate(req.Session)
	if err != nil {
		api_internal.EncodeError(w, r, err)
		return
	}
	session.Touch()

	cmd, ok, err := session.NextCommand(r.Context())
	if err != nil || !ok {
		// closed sessions and timeouts both poll back as a no-op
		return
	}
	w.Header().Set("Content-Type", "text/javascript")
	fmt.Fprint(w, cmd.Stmt)
}

// state routes a browser-produced result back to the caller blocked on its
// query token.
func (h *DispatcherHandler) state(w http.ResponseWriter, req taskRequest) {
	session, ok := h.sessions.Find(req.Session)
	if !ok {
		log.Printf("dispatcher: state for unknown session %s dropped", req.Session)
		return
	}
	session.Touch()
	session.ResolveState(req.Query, req.Value, req.Error)
	fmt.Fprint(w, "ok")
}

// clientError records a browser-side exception that has no waiting caller.
func (h *DispatcherHandler) clientError(w http.ResponseWriter, req taskRequest) {
	session, ok := h.sessions.Find(req.Session)
	if !ok {
		log.Printf("dispatcher: error for unknown session %s dropped: %s", req.Session, req.Error)
		return
	}
	session.Touch()
	session.RecordClientError(req.Error, req.Expr)
}

// run invokes a named server-side method and blocks the response on its
// return value. Method failures cross the wire as structured errors; the
// HTTP exchange itself always succeeds so the browser keeps going.
func (h *DispatcherHandler) run(w http.ResponseWriter, req taskRequest) {
	session, err := h.sessions.GetOrCreate(req.Session)
	if err != nil {
		writeResult(w, nil, err)
		return
	}
	session.Touch()
	result, err := callMethod(session, req.Function, req.Args)
	writeResult(w, result, err)
}

// async fires a named server-side method without holding the response;
// failures are logged out-of-band.
func (h *DispatcherHandler) async(w http.ResponseWriter, req taskRequest) {
	session, err := h.sessions.GetOrCreate(req.Session)
	if err != nil {
		writeResult(w, nil, err)
		return
	}
	session.Touch()
	go func() {
		if _, err := callMethod(session, req.Function, req.Args); err != nil {
			log.Printf("session %s: async %s failed: %v", session.ID(), req.Function, err)
		}
	}()
	fmt.Fprint(w, "{}")
}

// callMethod resolves the target: the reserved _callfxn name dispatches to
// a per-session registered callback by id, everything else to the app
// binding's method registry.
func callMethod(session *sessions.Session, function string, args []any) (any, error) {
	if function == "_callfxn" {
		if len(args) == 0 {
			return nil, jsbridge.DispatchError(errors.New("_callfxn needs a callback id"))
		}
		id, ok := args[0].(float64)
		if !ok {
			return nil, jsbridge.DispatchError(errors.Errorf("bad callback id %v", args[0]))
		}
		fn, ok := session.Callback(uint64(id))
		if !ok {
			return nil, jsbridge.DispatchError(errors.Errorf("unknown callback %d", uint64(id)))
		}
		return fn(args[1:])
	}
	return session.Binding().Call(function, args)
}

// get reads a named server-side attribute. A name bound to a method comes
// back as a callable expression the browser evaluates locally.
func (h *DispatcherHandler) get(w http.ResponseWriter, req taskRequest) {
	session, err := h.sessions.GetOrCreate(req.Session)
	if err != nil {
		writeResult(w, nil, err)
		return
	}
	session.Touch()

	value, isMethod, err := session.Binding().Get(req.Expression)
	if err != nil {
		writeResult(w, nil, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if isMethod {
		expr := fmt.Sprintf("(function(...args) { return handleApp('%s', args) })", req.Expression)
		_ = json.NewEncoder(w).Encode(map[string]any{"type": "expression", "expression": expr})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"type": "value", "value": value})
}

// set writes a named server-side attribute.
func (h *DispatcherHandler) set(w http.ResponseWriter, req taskRequest) {
	session, err := h.sessions.GetOrCreate(req.Session)
	if err != nil {
		writeResult(w, nil, err)
		return
	}
	session.Touch()
	session.Binding().Set(req.Property, req.Value)
}

// unload expires the session immediately: the page navigated away.
func (h *DispatcherHandler) unload(w http.ResponseWriter, req taskRequest) {
	if _, ok := h.sessions.Find(req.Session); ok {
		h.sessions.Remove(req.Session)
	}
}

// writeResult is the wire result shape for run/get: a value or a
// structured error, always on a successful HTTP exchange.
func writeResult(w http.ResponseWriter, result any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"value": result})
}
