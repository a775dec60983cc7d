// Package router dispatches one update across the module registry.
//
// Every update gets two independent first-match-wins walks over the same
// module/handler order: the kind pass, restricted to handlers whose capability
// equals the update kind, and the update pass, restricted to catch-all handlers.
// Neither pass short-circuits the other.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tgvisor/pkg/client"
	"tgvisor/pkg/metrics"
	"tgvisor/pkg/module"
	"tgvisor/pkg/update"
)

const (
	PassKind   = "kind"
	PassUpdate = "update"
)

// HandlerError records a handler failure. It never leaves the router.
type HandlerError struct {
	ModuleID  string
	HandlerID string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s/%s: %v", e.ModuleID, e.HandlerID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// PassResult identifies the handler that ended one pass, if any.
type PassResult struct {
	Outcome   module.Outcome
	ModuleID  string
	HandlerID string
	Err       *HandlerError
	// Tried counts handlers actually called during the pass. Handlers whose
	// payload is missing from the update are skipped and not counted.
	Tried int
}

// Result describes one dispatch for observability.
type Result struct {
	DispatchID string
	Kind       update.Kind
	Specific   PassResult
	Generic    PassResult
}

// Router walks a fixed registry. It is safe for concurrent use.
type Router struct {
	registry *module.Registry
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func New(registry *module.Registry, log *slog.Logger, m *metrics.Metrics) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		registry: registry,
		log:      log.With("component", "router"),
		metrics:  m,
	}
}

// Dispatch runs both passes for u. Handler errors and panics are recorded and
// reported in the result, never returned.
func (r *Router) Dispatch(ctx context.Context, conn client.Conn, u *update.Update) Result {
	result := Result{DispatchID: uuid.NewString()}
	if u == nil {
		return result
	}
	result.Kind = u.Kind

	done := r.metrics.DispatchStarted(u.Kind.String())
	defer done()

	log := r.log.With("dispatch_id", result.DispatchID, "update_id", u.ID, "kind", u.Kind.String())

	if capability, ok := module.CapabilityFor(u.Kind); ok {
		result.Specific = r.walk(ctx, log, PassKind, capability, conn, u)
	} else {
		log.Debug("No kind pass for update")
	}
	result.Generic = r.walk(ctx, log, PassUpdate, module.CapabilityUpdate, conn, u)

	return result
}

func (r *Router) walk(ctx context.Context, log *slog.Logger, pass string, capability module.Capability, conn client.Conn, u *update.Update) PassResult {
	var result PassResult

	r.registry.Each(func(m *module.Module, h *module.Handler) bool {
		if h.Process.Capability() != capability || !module.Accepts(h.Process, u) {
			return true
		}

		result.Tried++
		claimed, err := invoke(ctx, h.Process, conn, u)
		switch {
		case err != nil:
			result.Outcome = module.Failed
			result.Err = &HandlerError{ModuleID: m.ID, HandlerID: h.ID, Err: err}
		case claimed:
			result.Outcome = module.Claimed
		default:
			return true
		}

		result.ModuleID = m.ID
		result.HandlerID = h.ID
		return false
	})

	switch result.Outcome {
	case module.Failed:
		log.Error("Handler failed", "pass", pass, "module", result.ModuleID, "handler", result.HandlerID, "error", result.Err.Err)
	case module.Claimed:
		log.Debug("Handler claimed update", "pass", pass, "module", result.ModuleID, "handler", result.HandlerID)
	}
	if result.Outcome != module.NotClaimed {
		r.metrics.DispatchOutcome(pass, result.Outcome.String(), result.ModuleID, result.HandlerID)
	}

	return result
}

// invoke isolates handler panics so a buggy handler only fails its own pass.
func invoke(ctx context.Context, p module.Process, conn client.Conn, u *update.Update) (claimed bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			claimed = false
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()

	return module.Invoke(ctx, p, conn, u)
}
