package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
	"github.com/saastenant/orchestrator/internal/tenant"
)

// Func is the dispatch-level shape every registered activity is
// reduced to: type_name -> fn(bytes) -> bytes (spec §9 "dynamic
// dispatch over activity and workflow"). The engine driver only ever
// deals in this shape; strongly-typed wrappers exist solely at the
// call site via Register.
type Func func(ctx Context, quotas QuotaChecker, input []byte) ([]byte, error)

// Registration pairs a dispatchable Func with the Options declared by
// the typed activity it was built from.
type Registration struct {
	Options Options
	Invoke  Func
}

// Registry maps activity_type to its dispatchable registration. It is
// the activity-side half of the engine's "register_activity" contract
// (spec §6).
type Registry struct {
	mu    sync.RWMutex
	byName map[string]Registration
}

func NewRegistry() *Registry { return &Registry{byName: map[string]Registration{}} }

// Register adapts a typed Activity[I,R] into the registry's
// byte-in/byte-out dispatch contract using encoding/json, which is the
// payload format every adapter and store in this repo already uses.
func Register[I any, R any](reg *Registry, a Activity[I, R]) {
	invoke := func(ctx Context, quotas QuotaChecker, raw []byte) ([]byte, error) {
		var input I
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				return nil, cperrors.NewValidation("input", "malformed activity input: "+err.Error())
			}
		}
		result, err := Run(ctx, a, input, quotas)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(result)
		if err != nil {
			return nil, cperrors.NewInternal("", err)
		}
		return out, nil
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.byName[a.Name()] = Registration{Options: a.DefaultOptions(), Invoke: invoke}
}

// RegisterRaw installs a pre-built Registration directly, bypassing the
// typed Register helper. Used by internal/engine when a driver is
// handed a Registration it assembled itself (e.g. from config-driven
// activity wiring) rather than a concrete Activity[I,R] value.
func (r *Registry) RegisterRaw(name string, reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = reg
}

// Lookup returns the registration for name, if any.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byName[name]
	return reg, ok
}

// Dispatch runs the named activity's invoke function. Used by
// internal/engine to execute a scheduled activity task without
// depending on the concrete activity types.
func (r *Registry) Dispatch(parent context.Context, name string, tc tenant.Context, idempotencyKey string, attempt int32, heartbeat func(details ...interface{}), quotas QuotaChecker, raw []byte) ([]byte, error) {
	reg, ok := r.Lookup(name)
	if !ok {
		return nil, cperrors.NewInternal("", fmt.Errorf("activity %q is not registered", name))
	}
	ctx := NewContext(parent, tc, idempotencyKey, attempt, heartbeat)
	return reg.Invoke(ctx, quotas, raw)
}
