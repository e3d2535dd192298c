package invoke_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fgrzl/enumerators"
	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/eventkit/pkg/invoke"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStreamInvokeStreamsChunks(t *testing.T) {
	bc := bus.NewContext()

	invoke.DefineServerStreamInvokeHandler(bc, "countdown", func(_ context.Context, from int) enumerators.Enumerator[int] {
		return enumerators.Range(0, from, func(i int) int { return from - i })
	})
	call := invoke.DefineServerStreamInvoke[int, int](bc, "countdown")

	stream := call.Call(context.Background(), 3)
	defer stream.Dispose()

	var got []int
	for stream.MoveNext() {
		v, err := stream.Current()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 2, 1}, got)
}

func TestServerStreamInvokeCallerCancelEndsStreamWithAbort(t *testing.T) {
	bc := bus.NewContext()
	release := make(chan struct{})

	invoke.DefineServerStreamInvokeHandler(bc, "blocked", func(ctx context.Context, _ int) enumerators.Enumerator[int] {
		<-release
		return enumerators.Range(0, 1, func(i int) int { return i })
	})
	call := invoke.DefineServerStreamInvoke[int, int](bc, "blocked")

	ctx, cancel := context.WithCancel(context.Background())
	stream := call.Call(ctx, 1)
	defer stream.Dispose()

	cancel()
	stream.MoveNext()
	_, err := stream.Current()
	require.Error(t, err)
	assert.ErrorIs(t, err, invoke.ErrAborted)
	close(release)
}

func TestServerStreamInvokeProducerErrorSurfacesDistinctFromAbort(t *testing.T) {
	bc := bus.NewContext()
	boom := errors.New("producer boom")

	invoke.DefineServerStreamInvokeHandler(bc, "failing", func(_ context.Context, _ int) enumerators.Enumerator[int] {
		return enumerators.Error[int](boom)
	})
	call := invoke.DefineServerStreamInvoke[int, int](bc, "failing")

	stream := call.Call(context.Background(), 1)
	defer stream.Dispose()

	stream.MoveNext()
	_, err := stream.Current()
	require.Error(t, err)
	assert.ErrorIs(t, err, invoke.ErrHandler)
	assert.NotErrorIs(t, err, invoke.ErrAborted)
}
