package jschain

import "context"

// Root is the entry point for building chains against a single session.
// Every chain it hands out dispatches through the same evaluator and never
// outlives its session.
type Root struct {
	ev Evaluator
}

func NewRoot(ev Evaluator) *Root {
	return &Root{ev: ev}
}

// Get starts a new chain at a top-level name.
func (r *Root) Get(name string) Chain {
	return newChain(r.ev).Get(name)
}

// Set assigns a top-level browser name, fire-and-forget.
func (r *Root) Set(name string, value any) error {
	return newChain(r.ev).Set(name, value)
}

// Eval evaluates a raw statement on the browser and returns its value.
func (r *Root) Eval(ctx context.Context, stmt string) (any, error) {
	return r.ev.Eval(ctx, stmt)
}

// Exec queues a raw statement for execution, fire-and-forget.
func (r *Root) Exec(stmt string) error {
	return r.ev.EnqueueStatement(stmt)
}
