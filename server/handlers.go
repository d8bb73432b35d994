package server

import (
	"context"

	"github.com/onnwee/grizzpector/persistence"
	"github.com/onnwee/grizzpector/session"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx      context.Context
	manager  *session.Manager
	store    *session.Store
	editor   ResponseEditor
	runner   *DeferredRunner
	provider persistence.Provider
}

// NewHandlers creates a new Handlers instance with the given dependencies. A missing
// runner is replaced by one bound to ctx.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	runner := deps.Runner
	if runner == nil {
		runner = NewDeferredRunner(ctx)
	}
	return &Handlers{
		ctx:      ctx,
		manager:  deps.Manager,
		store:    deps.Store,
		editor:   deps.Editor,
		runner:   runner,
		provider: deps.Provider,
	}
}
