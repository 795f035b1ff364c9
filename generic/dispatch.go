/*
dispatch.go - Per-tag handler registry for the approval workflow

PURPOSE:
  Maps each EntityType tag to the handler that knows its payload shape and
  its side effect. The registry is owned by one Workflow instance, so tests
  can wire different handler sets side by side.

HOW IT WORKS:
  1. The domain builds a Handler with NewHandler(decode, apply), where
     decode turns raw JSON into a typed payload P and apply performs the
     effect using the transactional store S.
  2. NewHandler erases P behind two closures, so the registry holds one
     uniform signature for every tag.
  3. The workflow calls check() on submit and apply() on approve.

USAGE:
  wf.Register(EntityInstitution, generic.NewHandler(
      factory.JSONDecoder[InstitutionPayload](),
      func(ctx context.Context, s Store, r generic.Resolution, p InstitutionPayload) error {
          ...
      },
  ))

SEE ALSO:
  - approval.go: Workflow that dispatches through this registry
  - factory/payload.go: JSONDecoder used as the decode function
*/
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// HANDLER
// =============================================================================

// Resolution identifies the approval being applied and who resolved it.
type Resolution struct {
	ApprovalID ApprovalID
	EntityID   EntityID
	ResolvedBy ActorID
	ResolvedAt time.Time
}

// Handler is the type-erased side effect for one tag.
type Handler[S any] struct {
	check func(raw json.RawMessage) error
	apply func(ctx context.Context, s S, r Resolution, raw json.RawMessage) error
}

// NewHandler builds a Handler from a payload decoder and a typed effect.
// decode must return a *ValidationError for malformed payloads.
func NewHandler[S any, P any](
	decode func(raw json.RawMessage) (P, error),
	apply func(ctx context.Context, s S, r Resolution, payload P) error,
) Handler[S] {
	return Handler[S]{
		check: func(raw json.RawMessage) error {
			_, err := decode(raw)
			return err
		},
		apply: func(ctx context.Context, s S, r Resolution, raw json.RawMessage) error {
			p, err := decode(raw)
			if err != nil {
				return err
			}
			return apply(ctx, s, r, p)
		},
	}
}

// =============================================================================
// REGISTRY
// =============================================================================

type Registry[S any] struct {
	mu       sync.RWMutex
	handlers map[EntityType]Handler[S]
}

func NewRegistry[S any]() *Registry[S] {
	return &Registry[S]{handlers: make(map[EntityType]Handler[S])}
}

// Register adds a handler. A second registration for the same tag is a
// wiring bug and panics.
func (r *Registry[S]) Register(t EntityType, h Handler[S]) {
	if h.check == nil || h.apply == nil {
		panic(fmt.Sprintf("approval handler for %s must be built with NewHandler", t))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		panic(fmt.Sprintf("approval handler already registered: %s", t))
	}
	r.handlers[t] = h
}

// Lookup finds the handler for a tag.
func (r *Registry[S]) Lookup(t EntityType) (Handler[S], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns the registered tags in lexical order.
func (r *Registry[S]) Types() []EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]EntityType, 0, len(r.handlers))
	for t := range r.handlers {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
