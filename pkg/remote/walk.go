package remote

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// ErrProtocolGuard is returned when a value exceeds the configured
// depth limit, function count, or contains a container that references
// itself (a cycle plain JSON-shaped data can never express).
var ErrProtocolGuard = errors.New("remote: value exceeds protocol guard")

// Result is what Serialize returns: Value is the wire-safe graph with
// every Func replaced by a Stub, and Dispose tears down every stub
// handler this walk installed. Call Dispose once the serialized value
// has been sent (or the send failed) — never before, since the stub
// handlers must stay live while the far side might still call them.
type Result struct {
	Value any

	mu       sync.Mutex
	disposed bool
	teardown []func()
	timer    *time.Timer
}

// Dispose unregisters every stub handler, stopping any pending
// cfg.AutoDisposeMs timer. Safe to call more than once.
func (r *Result) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	teardown := r.teardown
	r.teardown = nil
	timer := r.timer
	r.timer = nil
	r.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	for _, fn := range teardown {
		fn()
	}
}

func (r *Result) addTeardown(fn func()) {
	r.mu.Lock()
	r.teardown = append(r.teardown, fn)
	r.mu.Unlock()
}

// Serialize walks v, replacing every remote.Func it finds with a Stub
// wired through cfg.BC, and copying every map[string]any/[]any it walks
// through rather than mutating v in place. With cfg.AutoDisposeMs
// positive, the returned Result disposes itself on that timer unless
// something disposes it sooner.
func Serialize(cfg *Config, v any) (*Result, error) {
	res := &Result{}
	out, err := serializeValue(cfg, res, v, map[uintptr]bool{}, 0)
	if err != nil {
		res.Dispose()
		return nil, err
	}
	res.Value = out

	if cfg.AutoDisposeMs > 0 {
		res.mu.Lock()
		res.timer = time.AfterFunc(time.Duration(cfg.AutoDisposeMs)*time.Millisecond, res.Dispose)
		res.mu.Unlock()
	}

	return res, nil
}

func serializeValue(cfg *Config, res *Result, v any, ancestors map[uintptr]bool, depth int) (any, error) {
	if depth > cfg.MaxDepth {
		return nil, ErrProtocolGuard
	}

	switch val := v.(type) {
	case Func:
		if !cfg.Allow {
			return nil, fmt.Errorf("remote: function values disallowed: %w", ErrProtocolGuard)
		}
		tag := cfg.newTag()
		sub := stubHandler(cfg.BC, tag, val)
		res.addTeardown(sub.Unsubscribe)
		if len(res.teardown) > cfg.MaxFunctions {
			return nil, ErrProtocolGuard
		}
		return newStub(tag), nil

	case map[string]any:
		ptr := reflect.ValueOf(val).Pointer()
		if ancestors[ptr] {
			return nil, ErrProtocolGuard
		}
		ancestors[ptr] = true
		defer delete(ancestors, ptr)

		out := make(map[string]any, len(val))
		for k, item := range val {
			sv, err := serializeValue(cfg, res, item, ancestors, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = sv
		}
		return out, nil

	case []any:
		ptr := reflect.ValueOf(val).Pointer()
		if len(val) > 0 && ancestors[ptr] {
			return nil, ErrProtocolGuard
		}
		if len(val) > 0 {
			ancestors[ptr] = true
			defer delete(ancestors, ptr)
		}

		out := make([]any, len(val))
		for i, item := range val {
			sv, err := serializeValue(cfg, res, item, ancestors, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil

	default:
		return v, nil
	}
}

// Deserialize is Serialize's inverse: every Stub it finds becomes a
// live Func that dials the originating side back through cfg.BC.
func Deserialize(cfg *Config, v any) (any, error) {
	return deserializeValue(cfg, v, map[uintptr]bool{}, 0)
}

// disallowedStub applies cfg.OnDisallowedTag to a stub-shaped node that
// isn't being rehydrated, either because remote methods are off
// entirely (Allow false) or tag lacks the required TagPrefix.
func disallowedStub(cfg *Config, v any, tag string) (any, error) {
	switch cfg.OnDisallowedTag {
	case ThrowDisallowedTag:
		return nil, fmt.Errorf("remote: stub tag %q disallowed: %w", tag, ErrProtocolGuard)
	default:
		return v, nil
	}
}

func deserializeValue(cfg *Config, v any, ancestors map[uintptr]bool, depth int) (any, error) {
	if depth > cfg.MaxDepth {
		return nil, ErrProtocolGuard
	}

	if tag, kind := classifyStubShape(v); kind != notStub {
		switch kind {
		case malformedStub:
			if cfg.Strict {
				return nil, fmt.Errorf("remote: malformed stub descriptor: %w", ErrProtocolGuard)
			}
			return v, nil
		case validStub:
			if !cfg.Allow {
				return disallowedStub(cfg, v, tag)
			}
			if cfg.TagPrefix != "" && !strings.HasPrefix(tag, cfg.TagPrefix) {
				return disallowedStub(cfg, v, tag)
			}
			return stubFunc(cfg, tag), nil
		}
	}

	switch val := v.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(val).Pointer()
		if ancestors[ptr] {
			return nil, ErrProtocolGuard
		}
		ancestors[ptr] = true
		defer delete(ancestors, ptr)

		out := make(map[string]any, len(val))
		for k, item := range val {
			dv, err := deserializeValue(cfg, item, ancestors, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil

	case []any:
		ptr := reflect.ValueOf(val).Pointer()
		if len(val) > 0 && ancestors[ptr] {
			return nil, ErrProtocolGuard
		}
		if len(val) > 0 {
			ancestors[ptr] = true
			defer delete(ancestors, ptr)
		}

		out := make([]any, len(val))
		for i, item := range val {
			dv, err := deserializeValue(cfg, item, ancestors, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil

	default:
		return v, nil
	}
}
