// Package jschain builds lazy descriptions of browser-side expressions.
//
// A Chain accumulates attribute, index and call steps without touching the
// network; the whole accumulated chain is serialized into one statement only
// when it is forced with Eval, executed with Exec, or terminated with an
// assignment. That batching is the point: a dotted path compiles to a single
// round trip instead of one per step.
package jschain

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// Func is a server-side callback assignable to a browser attribute, invoked
// when the browser fires the generated handler.
type Func func(args []any) (any, error)

// Evaluator is the session-side engine a chain dispatches through. It is
// implemented by sessions.Session.
type Evaluator interface {
	// EnqueueStatement queues a fire-and-forget statement for the browser.
	EnqueueStatement(stmt string) error
	// Eval round-trips a value-returning expression through the browser.
	Eval(ctx context.Context, stmt string) (any, error)
	// RegisterCallback exposes fn to the browser and returns its id.
	RegisterCallback(fn Func) uint64
	// Mirror returns the last value the browser reported for expr, if any.
	Mirror(expr string) (any, bool)
}

// Chain is an immutable, unevaluated browser expression. Every step returns
// a new chain; discarding a chain that was never forced costs nothing.
type Chain struct {
	ev Evaluator
	// expr is the serialized prefix accumulated so far.
	expr string
	// domPending is set between seeing the `dom` shorthand step and the
	// attribute that it resolves, which expands to getElementById.
	domPending bool
	err        error
}

func newChain(ev Evaluator) Chain {
	return Chain{ev: ev}
}

func (c Chain) withErr(err error) Chain {
	if c.err == nil {
		c.err = err
	}
	return c
}

func (c Chain) append(frag string, dot bool) Chain {
	if dot && c.expr != "" {
		c.expr += "."
	}
	c.expr += frag
	return c
}

// flushDom emits a literal `dom` step that was never followed by an
// attribute, so the serialized text matches what was written.
func (c Chain) flushDom() Chain {
	if c.domPending {
		c.domPending = false
		c = c.append("dom", true)
	}
	return c
}

// Get extends the chain with an attribute access. The special name `dom`
// combines with the following attribute into
// document.getElementById("<attr>").
func (c Chain) Get(name string) Chain {
	if c.domPending {
		c.domPending = false
		return c.append(fmt.Sprintf("document.getElementById(%q)", name), true)
	}
	if name == "dom" {
		c.domPending = true
		return c
	}
	return c.append(name, true)
}

// Index extends the chain with a subscript access.
func (c Chain) Index(key any) Chain {
	c = c.flushDom()
	lit, err := c.literal(key)
	if err != nil {
		return c.withErr(err)
	}
	return c.append("["+lit+"]", false)
}

// Call extends the chain with an invocation. Arguments are serialized by
// value; an argument that is itself an unforced chain is resolved eagerly
// here so evaluation order stays unambiguous.
func (c Chain) Call(args ...any) Chain {
	c = c.flushDom()
	out := ""
	for i, arg := range args {
		lit, err := c.literal(arg)
		if err != nil {
			return c.withErr(err)
		}
		if i > 0 {
			out += ","
		}
		out += lit
	}
	return c.append("("+out+")", false)
}

// Set terminates the chain with an attribute assignment. The statement is
// queued fire-and-forget: the caller already knows the value, so there is
// nothing to wait for. Assigning a Func registers it as a browser-callable
// handler instead of a value.
func (c Chain) Set(name string, value any) error {
	target := c.Get(name)
	if target.err != nil {
		return target.err
	}
	return target.assign(value)
}

// SetIndex terminates the chain with a subscript assignment.
func (c Chain) SetIndex(key, value any) error {
	target := c.Index(key)
	if target.err != nil {
		return target.err
	}
	return target.assign(value)
}

func (c Chain) assign(value any) error {
	rhs, err := c.rhs(value)
	if err != nil {
		return err
	}
	return c.ev.EnqueueStatement(c.expr + "=" + rhs)
}

func (c Chain) rhs(value any) (string, error) {
	if fn, ok := value.(Func); ok {
		id := c.ev.RegisterCallback(fn)
		return fmt.Sprintf("function(){server._callfxn(%d);}", id), nil
	}
	return c.literal(value)
}

// Eval forces the chain: it serializes the accumulated expression, sends it
// on one round trip and returns the browser's value. The chain stays live;
// calling Eval again re-reads the current browser state.
func (c Chain) Eval(ctx context.Context) (any, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.ev.Eval(ctx, c.Stmt())
}

// Exec queues the chain as a fire-and-forget statement.
func (c Chain) Exec() error {
	if c.err != nil {
		return c.err
	}
	return c.ev.EnqueueStatement(c.Stmt())
}

// Cached returns the last value the browser reported for this exact
// expression, without any network traffic.
func (c Chain) Cached() (any, bool) {
	if c.err != nil {
		return nil, false
	}
	return c.ev.Mirror(c.Stmt())
}

// Stmt returns the serialized expression text.
func (c Chain) Stmt() string {
	return c.flushDom().expr
}

// Err reports a serialization failure recorded while building the chain.
func (c Chain) Err() error {
	return c.err
}

// literal serializes a value into javascript source. Unforced chains are
// resolved to their concrete value first.
func (c Chain) literal(value any) (string, error) {
	if ch, ok := value.(Chain); ok {
		resolved, err := ch.Eval(context.Background())
		if err != nil {
			return "", err
		}
		value = resolved
	}
	out, err := json.Marshal(value)
	if err != nil {
		return "", errors.Wrap(err, "serializing argument")
	}
	return string(out), nil
}
