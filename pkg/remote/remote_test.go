package remote_test

import (
	"context"
	"testing"
	"time"

	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/eventkit/pkg/invoke"
	"github.com/fgrzl/eventkit/pkg/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeRoundTripsPlainValues(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)

	in := map[string]any{
		"name": "ada",
		"tags": []any{"x", "y"},
		"nested": map[string]any{
			"count": float64(3),
		},
	}

	res, err := remote.Serialize(cfg, in)
	require.NoError(t, err)
	defer res.Dispose()

	out, err := remote.Deserialize(cfg, res.Value)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSerializeDeserializeReconnectsFunc(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)

	var gotArgs any
	fn := remote.Func(func(_ context.Context, args any) (any, error) {
		gotArgs = args
		return "pong", nil
	})

	payload := map[string]any{"greeter": fn}

	res, err := remote.Serialize(cfg, payload)
	require.NoError(t, err)
	defer res.Dispose()

	out, err := remote.Deserialize(cfg, res.Value)
	require.NoError(t, err)

	outMap, ok := out.(map[string]any)
	require.True(t, ok)

	reconstructed, ok := outMap["greeter"].(remote.Func)
	require.True(t, ok)

	got, err := reconstructed(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
	assert.Equal(t, "ping", gotArgs)
}

func TestSerializeRejectsValueOverMaxFunctions(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)
	cfg.MaxFunctions = 1

	noop := remote.Func(func(_ context.Context, _ any) (any, error) { return nil, nil })
	payload := map[string]any{
		"a": noop,
		"b": noop,
	}

	_, err := remote.Serialize(cfg, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrProtocolGuard)
}

func TestSerializeRejectsValueOverMaxDepth(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)
	cfg.MaxDepth = 2

	deep := map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "too deep",
			},
		},
	}

	_, err := remote.Serialize(cfg, deep)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrProtocolGuard)
}

func TestSerializeRejectsSelfReferencingMap(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)

	cyclic := map[string]any{"name": "loop"}
	cyclic["self"] = cyclic

	_, err := remote.Serialize(cfg, cyclic)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrProtocolGuard)
}

func TestSerializeAllowsSharedSiblingMap(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)

	shared := map[string]any{"value": float64(1)}
	dag := map[string]any{
		"left":  shared,
		"right": shared,
	}

	res, err := remote.Serialize(cfg, dag)
	require.NoError(t, err)
	defer res.Dispose()

	out, ok := res.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, shared, out["left"])
	assert.Equal(t, shared, out["right"])
}

func TestSerializeDeserializeIgnoresPrototypePollutionKeys(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)

	payload := map[string]any{
		"__proto__":   "not special here",
		"constructor": float64(42),
		"prototype":   []any{"still", "just", "data"},
	}

	res, err := remote.Serialize(cfg, payload)
	require.NoError(t, err)
	defer res.Dispose()

	out, err := remote.Deserialize(cfg, res.Value)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestResultDisposeIsIdempotentAndUnsubscribesStubHandlers(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)

	fn := remote.Func(func(_ context.Context, _ any) (any, error) { return nil, nil })
	res, err := remote.Serialize(cfg, map[string]any{"fn": fn})
	require.NoError(t, err)

	res.Dispose()
	res.Dispose()
}

func TestSerializeRejectsFuncWhenDisallowed(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)
	cfg.Allow = false

	fn := remote.Func(func(_ context.Context, _ any) (any, error) { return nil, nil })
	_, err := remote.Serialize(cfg, map[string]any{"fn": fn})
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrProtocolGuard)
}

func TestDeserializeIgnoresStubWhenDisallowedByDefault(t *testing.T) {
	bc := bus.NewContext()
	serCfg := remote.NewConfig(bc)
	fn := remote.Func(func(_ context.Context, _ any) (any, error) { return nil, nil })
	res, err := remote.Serialize(serCfg, map[string]any{"fn": fn})
	require.NoError(t, err)
	defer res.Dispose()

	deCfg := remote.NewConfig(bc)
	deCfg.Allow = false
	out, err := remote.Deserialize(deCfg, res.Value)
	require.NoError(t, err)

	outMap, ok := out.(map[string]any)
	require.True(t, ok)
	_, isFunc := outMap["fn"].(remote.Func)
	assert.False(t, isFunc, "stub should be left as plain data, not rehydrated")
}

func TestDeserializeThrowsOnDisallowedStubWhenConfigured(t *testing.T) {
	bc := bus.NewContext()
	serCfg := remote.NewConfig(bc)
	fn := remote.Func(func(_ context.Context, _ any) (any, error) { return nil, nil })
	res, err := remote.Serialize(serCfg, map[string]any{"fn": fn})
	require.NoError(t, err)
	defer res.Dispose()

	deCfg := remote.NewConfig(bc)
	deCfg.Allow = false
	deCfg.OnDisallowedTag = remote.ThrowDisallowedTag
	_, err = remote.Deserialize(deCfg, res.Value)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrProtocolGuard)
}

func TestDeserializeEnforcesTagPrefix(t *testing.T) {
	bc := bus.NewContext()
	serCfg := remote.NewConfig(bc)
	serCfg.TagPrefix = "allowed-"
	fn := remote.Func(func(_ context.Context, _ any) (any, error) { return "ok", nil })
	res, err := remote.Serialize(serCfg, map[string]any{"fn": fn})
	require.NoError(t, err)
	defer res.Dispose()

	matching := remote.NewConfig(bc)
	matching.TagPrefix = "allowed-"
	out, err := remote.Deserialize(matching, res.Value)
	require.NoError(t, err)
	outMap, ok := out.(map[string]any)
	require.True(t, ok)
	_, isFunc := outMap["fn"].(remote.Func)
	assert.True(t, isFunc)

	mismatched := remote.NewConfig(bc)
	mismatched.TagPrefix = "other-"
	mismatched.OnDisallowedTag = remote.ThrowDisallowedTag
	_, err = remote.Deserialize(mismatched, res.Value)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrProtocolGuard)
}

func TestDeserializeStrictModeRejectsMalformedStub(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)
	cfg.Strict = true

	malformed := map[string]any{"__eventkit_stub__": "eventkit://remote/v1/stub"}
	_, err := remote.Deserialize(cfg, malformed)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrProtocolGuard)

	cfg.Strict = false
	out, err := remote.Deserialize(cfg, malformed)
	require.NoError(t, err)
	assert.Equal(t, malformed, out)
}

func TestSerializeAutoDisposeTimerReclaimsStubHandlers(t *testing.T) {
	bc := bus.NewContext()
	cfg := remote.NewConfig(bc)
	cfg.AutoDisposeMs = 50

	fn := remote.Func(func(_ context.Context, _ any) (any, error) { return nil, nil })
	res, err := remote.Serialize(cfg, map[string]any{"fn": fn})
	require.NoError(t, err)

	stub, ok := res.Value.(map[string]any)["fn"].(*remote.Stub)
	require.True(t, ok)

	caller := invoke.DefineInvoke[any, any](bc, stub.Tag)
	_, err = caller.Call(context.Background(), nil)
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = caller.Call(ctx, nil)
	require.Error(t, err, "stub handler should have been unregistered by the autoDispose timer")
	assert.ErrorIs(t, err, invoke.ErrAborted)
}
