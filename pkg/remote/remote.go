// Package remote marshals function-valued fields across the bus the
// same way the rest of eventkit marshals everything else: a function
// becomes a Stub on the wire, and decoding a Stub back into a callable
// reconnects it to the Invoker/Handler machinery in pkg/invoke rather
// than to some bespoke RPC mechanism.
package remote

import (
	"context"

	"github.com/fgrzl/eventkit/internal/idgen"
	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/eventkit/pkg/invoke"
	"github.com/fgrzl/json/polymorphic"
)

// Func is the shape a value must have to be recognized as a remote
// method by Serialize. JS lets any callable cross the wire; Go has no
// structural equivalent, so eventkit narrows "remote-callable" to this
// one named type — callers adapt an existing method into a Func at the
// call site.
type Func func(ctx context.Context, args any) (any, error)

const stubDiscriminator = "eventkit://remote/v1/stub"

// Stub is the wire placeholder for a Func: Tag identifies the unary
// invoke call (see pkg/invoke.DefineInvoke) that, when dialed, runs the
// original function on whichever side serialized it.
type Stub struct {
	Discriminator string `json:"__eventkit_stub__"`
	Tag           string `json:"tag"`
}

// GetDiscriminator satisfies polymorphic.Polymorphic so a Stub crossing
// the wire as the sole content of a polymorphic.Envelope decodes back
// into *Stub instead of a bare map.
func (s *Stub) GetDiscriminator() string { return stubDiscriminator }

func init() {
	polymorphic.Register(func() *Stub { return &Stub{} })
}

func newStub(tag string) *Stub { return &Stub{Discriminator: stubDiscriminator, Tag: tag} }

// stubShapeKind classifies a value against the Stub wire shape: a node
// either isn't one at all, is a well-formed one, or carries the marker
// key with a missing/empty/wrong-typed tag.
type stubShapeKind int

const (
	notStub stubShapeKind = iota
	validStub
	malformedStub
)

// classifyStubShape recognizes a Stub whether it arrived as a typed
// *Stub (a same-process Serialize/Deserialize round trip) or as a
// map[string]any (decoded generically, e.g. as one element of a JSON
// array with no per-element polymorphic envelope). Any other map,
// including one a caller populated with keys like "__proto__" or
// "constructor", is reported as notStub — those names carry no special
// meaning here, only the exact discriminator pair does.
func classifyStubShape(v any) (tag string, kind stubShapeKind) {
	switch m := v.(type) {
	case *Stub:
		if m.Tag == "" {
			return "", malformedStub
		}
		return m.Tag, validStub
	case map[string]any:
		d, hasDisc := m["__eventkit_stub__"]
		if !hasDisc {
			return "", notStub
		}
		if d != stubDiscriminator {
			return "", malformedStub
		}
		tag, hasTag := m["tag"].(string)
		if !hasTag || tag == "" {
			return "", malformedStub
		}
		return tag, validStub
	default:
		return "", notStub
	}
}

// DisallowedTagPolicy controls Deserialize's behavior when it meets a
// stub-shaped node whose tag doesn't carry the configured TagPrefix
// (or, with Allow false, any stub-shaped node at all).
type DisallowedTagPolicy int

const (
	// IgnoreDisallowedTag leaves the node as plain data instead of
	// rehydrating it into a callable Func.
	IgnoreDisallowedTag DisallowedTagPolicy = iota
	// ThrowDisallowedTag rejects the whole walk with ErrProtocolGuard.
	ThrowDisallowedTag
)

// Config bounds one Serialize/Deserialize walk, and the lifecycle of
// any Factory built from it: BC is the bus context stub calls are
// wired through, MaxDepth/MaxFunctions guard against unbounded or
// maliciously deep/wide input, and IDs generates each stub's
// correlation tag.
type Config struct {
	BC           *bus.Context
	MaxDepth     int
	MaxFunctions int
	IDs          idgen.Generator

	// Allow is the master switch for the whole feature. With it false,
	// a Func anywhere in a Serialize input, or a stub-shaped node
	// anywhere in a Deserialize input, is a protocol-guard error
	// (subject to OnDisallowedTag on the deserialize side) instead of
	// being stubbed or rehydrated.
	Allow bool
	// TagPrefix is prepended to every generated stub tag, and is the
	// prefix Deserialize requires a stub's tag to carry before
	// rehydrating it (when non-empty).
	TagPrefix string
	// OnDisallowedTag selects Deserialize's behavior for a stub-shaped
	// node it won't rehydrate: a tag-prefix mismatch, or (with Allow
	// false) any stub at all.
	OnDisallowedTag DisallowedTagPolicy
	// AutoDisposeMs, when positive, disposes a Result that long after
	// Serialize returns it if nothing disposed it sooner.
	AutoDisposeMs int
	// Strict makes a node that carries the stub discriminator key but
	// a malformed tag (missing, empty, or wrong-typed) a hard error
	// instead of data passed through untouched.
	Strict bool
}

// NewConfig returns a Config with reasonable defaults: the feature
// enabled, a generous depth limit for real-world nested payloads, and
// a function-count cap well above any plausible legitimate
// remote-method surface. TagPrefix, AutoDisposeMs and Strict default
// to their zero values (no prefix requirement, no auto-dispose timer,
// lenient on malformed stub shapes).
func NewConfig(bc *bus.Context) *Config {
	return &Config{BC: bc, MaxDepth: 32, MaxFunctions: 256, IDs: idgen.Default{}, Allow: true}
}

func (c *Config) newTag() string {
	prefix := c.TagPrefix
	if c.IDs == nil {
		return prefix + idgen.Default{}.NewID()
	}
	return prefix + c.IDs.NewID()
}

// stubHandler wires tag to fn via the unary invoke machinery: calling
// the stub on the far side becomes an ordinary DefineInvoke round trip
// back to the side that serialized fn.
func stubHandler(bc *bus.Context, tag string, fn Func) bus.Subscription {
	return invoke.DefineInvokeHandler(bc, tag, func(ctx context.Context, args any) (any, error) {
		return fn(ctx, args)
	})
}

// stubFunc is the mirror image: a Func that dials tag back over cfg.BC.
func stubFunc(cfg *Config, tag string) Func {
	caller := invoke.DefineInvoke[any, any](cfg.BC, tag)
	return func(ctx context.Context, args any) (any, error) {
		return caller.Call(ctx, args)
	}
}
