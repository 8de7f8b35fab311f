// Package apps holds the explicit registry of server-side methods and
// attributes the browser is allowed to reach. Names are registered up
// front; an unknown name is a dispatch error, never a reflective lookup.
package apps

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/jsbridge/jsbridge"
	"github.com/jsbridge/jsbridge/internal/jschain"
)

// Method is a server-side function the browser may invoke through the
// `run` and `async` tasks.
type Method func(args []any) (any, error)

// Main is an app's long-running server loop, started when the session is
// created. ctx is canceled when the session expires.
type Main func(ctx context.Context, js *jschain.Root)

// Factory builds one Binding per session. The session's chain root is
// passed in so registered methods can close over it.
type Factory func(js *jschain.Root) *Binding

// Binding is the per-session surface exposed to the browser: named methods,
// named attributes, page HTML, and the optional main loop.
type Binding struct {
	mu      sync.RWMutex
	methods map[string]Method
	attrs   map[string]any
	html    string
	main    Main
}

func New() *Binding {
	return &Binding{
		methods: map[string]Method{},
		attrs:   map[string]any{},
	}
}

// Register exposes a method to the browser under name.
func (b *Binding) Register(name string, m Method) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.methods[name] = m
}

// RegisterMain installs the app's server loop.
func (b *Binding) RegisterMain(m Main) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.main = m
}

// SetHTML installs the page served for this app.
func (b *Binding) SetHTML(html string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.html = html
}

func (b *Binding) HTML() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.html
}

func (b *Binding) Main() Main {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.main
}

// Call invokes a registered method. A panic inside the method is caught
// here and reported as an ordinary error so it can cross the wire as a
// structured payload instead of killing the handler.
func (b *Binding) Call(name string, args []any) (result any, err error) {
	b.mu.RLock()
	m, ok := b.methods[name]
	b.mu.RUnlock()
	if !ok {
		return nil, jsbridge.DispatchError(errors.Errorf("unknown method %q", name))
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("method %q panicked: %v", name, r)
		}
	}()
	return m(args)
}

// Get reads a named attribute. If name is a registered method instead,
// isMethod is true and the caller is expected to hand the browser a
// callable expression rather than a value.
func (b *Binding) Get(name string) (value any, isMethod bool, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.methods[name]; ok {
		return nil, true, nil
	}
	if v, ok := b.attrs[name]; ok {
		return v, false, nil
	}
	return nil, false, jsbridge.DispatchError(errors.Errorf("unknown attribute %q", name))
}

// Set writes a named attribute.
func (b *Binding) Set(name string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attrs[name] = value
}

// Methods lists the registered method names.
func (b *Binding) Methods() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Keys(b.methods)
}

// Attrs lists the attribute names currently set.
func (b *Binding) Attrs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Keys(b.attrs)
}
