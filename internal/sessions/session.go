package sessions

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"

	"github.com/jsbridge/jsbridge/internal/apps"
	"github.com/jsbridge/jsbridge/internal/jschain"
)

// Session is the server-side state for one browser page instance: the
// outbound command queue, the table of in-flight round trips, the mirror of
// last-known browser values, the app binding and the lifecycle flags.
type Session struct {
	id string

	queue *CommandQueue
	calls *PendingCallTable

	mu            sync.Mutex
	mirror        map[string]any
	callbacks     map[uint64]jschain.Func
	nextCallback  uint64
	lastContact   time.Time
	alive         bool
	lastClientErr string

	binding *apps.Binding
	js      *jschain.Root

	pollWindow  time.Duration
	evalTimeout time.Duration

	cancelMain context.CancelFunc
	// onTouch lets the registry keep its idle-expiry index in step with
	// lastContact updates.
	onTouch func(s *Session, old, now time.Time)
}

var _ jschain.Evaluator = &Session{}

func newSession(id string, pollWindow, evalTimeout time.Duration) *Session {
	s := &Session{
		id:          id,
		queue:       NewCommandQueue(),
		calls:       NewPendingCallTable(),
		mirror:      map[string]any{},
		callbacks:   map[uint64]jschain.Func{},
		lastContact: time.Now(),
		alive:       true,
		pollWindow:  pollWindow,
		evalTimeout: evalTimeout,
	}
	s.js = jschain.NewRoot(s)
	return s
}

func (s *Session) ID() string {
	return s.id
}

// JS returns the chain root for driving this session's browser.
func (s *Session) JS() *jschain.Root {
	return s.js
}

func (s *Session) Binding() *apps.Binding {
	return s.binding
}

// Touch records inbound contact; the idle sweep keys off it.
func (s *Session) Touch() {
	s.mu.Lock()
	old := s.lastContact
	s.lastContact = time.Now()
	now := s.lastContact
	hook := s.onTouch
	s.mu.Unlock()
	if hook != nil {
		hook(s, old, now)
	}
}

func (s *Session) LastContact() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastContact
}

func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Expire marks the session dead and wakes every queue waiter and pending
// call with a terminal closed signal. Safe to call more than once.
func (s *Session) Expire() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	cancel := s.cancelMain
	s.mu.Unlock()

	s.queue.Close()
	s.calls.Close()
	if cancel != nil {
		cancel()
	}
	log.Printf("session %s expired", s.id)
}

// EnqueueStatement queues a fire-and-forget statement for the browser.
func (s *Session) EnqueueStatement(stmt string) error {
	return s.queue.Push(Command{Kind: KindStatement, Stmt: stmt})
}

// EnqueueCall queues a fire-and-forget invocation of a browser-exposed
// function by name.
func (s *Session) EnqueueCall(name string, args []any) error {
	out := ""
	for i, arg := range args {
		lit, err := json.Marshal(arg)
		if err != nil {
			return errors.Wrapf(err, "serializing argument %d of %s", i, name)
		}
		if i > 0 {
			out += ","
		}
		out += string(lit)
	}
	return s.queue.Push(Command{Kind: KindCall, Stmt: name + "(" + out + ")"})
}

// Eval runs one blocking round trip: register the pending call, publish the
// wrapped statement to the poll consumer, wait for the matching result.
// The token is registered before the command becomes visible, so the
// browser cannot answer a token nobody waits on.
func (s *Session) Eval(ctx context.Context, stmt string) (any, error) {
	token, err := s.calls.Begin(stmt)
	if err != nil {
		return nil, err
	}
	lit, err := json.Marshal(stmt)
	if err != nil {
		s.calls.evict(token)
		return nil, errors.Wrap(err, "serializing expression")
	}
	cmd := fmt.Sprintf("sendFromBrowserToServer(%s, %d)", lit, token)
	if err := s.queue.Push(Command{Kind: KindStatement, Stmt: cmd}); err != nil {
		s.calls.evict(token)
		return nil, err
	}
	return s.calls.AwaitResult(ctx, token, s.evalTimeout)
}

// NextCommand hands the current long-poll request the next queued command,
// holding it open for up to the session's poll window.
func (s *Session) NextCommand(ctx context.Context) (Command, bool, error) {
	return s.queue.PopBlocking(ctx, s.pollWindow)
}

// ResolveState routes a browser-posted result to the caller blocked on
// token. Successful values also land in the state mirror under the
// expression they answer.
func (s *Session) ResolveState(token uint64, value any, errMsg string) {
	if errMsg != "" {
		s.calls.Fail(token, errMsg)
		return
	}
	expr, ok := s.calls.Resolve(token, value)
	if !ok {
		return
	}
	s.mu.Lock()
	s.mirror[expr] = value
	s.mu.Unlock()
}

// Mirror returns the last-known browser value for expr, if one was ever
// reported.
func (s *Session) Mirror(expr string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.mirror[expr]
	return v, ok
}

// RegisterCallback exposes a server-side function to the browser under a
// numeric id, for handler assignments.
func (s *Session) RegisterCallback(fn jschain.Func) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCallback++
	s.callbacks[s.nextCallback] = fn
	return s.nextCallback
}

func (s *Session) Callback(id uint64) (jschain.Func, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn, ok := s.callbacks[id]
	return fn, ok
}

// RecordClientError keeps the latest unsolicited browser-side exception for
// operator inspection; it is diagnostic state, never a crash.
func (s *Session) RecordClientError(message, expr string) {
	s.mu.Lock()
	s.lastClientErr = message
	s.mu.Unlock()
	log.Printf("session %s: browser error: %s (expr %q)", s.id, message, expr)
}

func (s *Session) LastClientError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastClientErr
}

// bind attaches the per-session app binding and starts its main loop, if
// the app declared one.
func (s *Session) bind(binding *apps.Binding) {
	s.binding = binding
	main := binding.Main()
	if main == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelMain = cancel
	s.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("session %s: main loop panicked: %v", s.id, r)
			}
		}()
		main(ctx, s.js)
	}()
}

// PendingCalls reports the number of in-flight round trips.
func (s *Session) PendingCalls() int {
	return s.calls.Len()
}

// QueuedCommands reports the number of commands awaiting delivery.
func (s *Session) QueuedCommands() int {
	return s.queue.Len()
}
