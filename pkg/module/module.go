// Package module defines feature modules, their handlers and the ordered registry
// the router walks.
package module

import (
	"errors"
	"fmt"
	"strings"
)

// Outcome is the per-call result of one handler invocation.
type Outcome int

const (
	NotClaimed Outcome = iota
	Claimed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NotClaimed:
		return "not_claimed"
	case Claimed:
		return "claimed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Handler is one unit of event-handling logic.
type Handler struct {
	ID      string
	Process Process
}

// Module is a named, ordered group of handlers.
type Module struct {
	ID       string
	Name     string
	Handlers []Handler
}

// Registry is the ordered, immutable set of modules owned by the supervisor.
type Registry struct {
	modules []Module
}

// NewRegistry validates modules and freezes their order.
//
// Module ids must be unique and non-empty; handler ids must be non-empty and unique
// within their module; every handler needs a process with a non-nil handler.
func NewRegistry(modules ...Module) (*Registry, error) {
	seen := make(map[string]struct{}, len(modules))
	frozen := make([]Module, 0, len(modules))

	for i, m := range modules {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return nil, fmt.Errorf("module %d: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("module %q registered twice", id)
		}
		seen[id] = struct{}{}

		handlerIDs := make(map[string]struct{}, len(m.Handlers))
		handlers := make([]Handler, 0, len(m.Handlers))
		for j, h := range m.Handlers {
			hid := strings.TrimSpace(h.ID)
			if hid == "" {
				return nil, fmt.Errorf("module %q handler %d: id is required", id, j)
			}
			if _, dup := handlerIDs[hid]; dup {
				return nil, fmt.Errorf("module %q: handler %q registered twice", id, hid)
			}
			if h.Process == nil || h.Process.empty() {
				return nil, fmt.Errorf("module %q handler %q: %w", id, hid, errMissingProcess)
			}
			handlerIDs[hid] = struct{}{}
			handlers = append(handlers, Handler{ID: hid, Process: h.Process})
		}

		name := strings.TrimSpace(m.Name)
		if name == "" {
			name = id
		}
		frozen = append(frozen, Module{ID: id, Name: name, Handlers: handlers})
	}

	return &Registry{modules: frozen}, nil
}

var errMissingProcess = errors.New("process is required")

// Modules returns the modules in dispatch order. Callers must not mutate the result.
func (r *Registry) Modules() []Module {
	if r == nil {
		return nil
	}
	return r.modules
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.modules)
}

// Each calls fn for every handler in module order, then handler order, until fn returns false.
func (r *Registry) Each(fn func(m *Module, h *Handler) bool) {
	if r == nil {
		return
	}
	for i := range r.modules {
		m := &r.modules[i]
		for j := range m.Handlers {
			if !fn(m, &m.Handlers[j]) {
				return
			}
		}
	}
}
