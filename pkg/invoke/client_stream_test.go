package invoke_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fgrzl/enumerators"
	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/eventkit/pkg/invoke"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sumResponse struct{ Total int }

var assertErr = errors.New("producer boom")

func TestClientStreamInvokeSumsChunks(t *testing.T) {
	bc := bus.NewContext()

	invoke.DefineClientStreamInvokeHandler(bc, "sum", func(_ context.Context, chunks enumerators.Enumerator[int]) (sumResponse, error) {
		defer chunks.Dispose()
		total := 0
		for chunks.MoveNext() {
			v, err := chunks.Current()
			if err != nil {
				return sumResponse{}, err
			}
			total += v
		}
		return sumResponse{Total: total}, nil
	})
	call := invoke.DefineClientStreamInvoke[int, sumResponse](bc, "sum")

	res, err := call.Call(context.Background(), enumerators.Slice([]int{1, 2, 3, 4}))
	require.NoError(t, err)
	assert.Equal(t, 10, res.Total)
}

func TestClientStreamInvokeProducerErrorFailsCallWithSendProducerError(t *testing.T) {
	bc := bus.NewContext()

	var handlerSawAbort bool
	invoke.DefineClientStreamInvokeHandler(bc, "broken", func(ctx context.Context, chunks enumerators.Enumerator[int]) (sumResponse, error) {
		defer chunks.Dispose()
		for chunks.MoveNext() {
			if _, err := chunks.Current(); err != nil {
				return sumResponse{}, err
			}
		}
		_, err := chunks.Current()
		handlerSawAbort = err != nil
		return sumResponse{}, err
	})
	call := invoke.DefineClientStreamInvoke[int, sumResponse](bc, "broken")

	_, err := call.Call(context.Background(), enumerators.Error[int](assertErr))
	require.Error(t, err)
	assert.ErrorIs(t, err, invoke.ErrSendProducer)
	_ = handlerSawAbort
}

func TestClientStreamInvokeHandlerErrorSurfacesDistinctFromAbort(t *testing.T) {
	bc := bus.NewContext()

	invoke.DefineClientStreamInvokeHandler(bc, "rejecting", func(_ context.Context, chunks enumerators.Enumerator[int]) (sumResponse, error) {
		defer chunks.Dispose()
		for chunks.MoveNext() {
		}
		return sumResponse{}, assertErr
	})
	call := invoke.DefineClientStreamInvoke[int, sumResponse](bc, "rejecting")

	_, err := call.Call(context.Background(), enumerators.Slice([]int{1}))
	require.Error(t, err)
	assert.ErrorIs(t, err, invoke.ErrHandler)
	assert.NotErrorIs(t, err, invoke.ErrAborted)
}

// TestClientStreamInvokeAbortBeforeRequestYieldsEmptyAbortedInput covers
// the out-of-order case a reordering transport can produce: an abort
// frame for an id arriving before that id's request. The handler must
// still start, immediately observing an empty, already-errored input
// stream rather than hanging or silently dropping the abort.
func TestClientStreamInvokeAbortBeforeRequestYieldsEmptyAbortedInput(t *testing.T) {
	bc := bus.NewContext()

	handlerStarted := make(chan struct{})
	var sawAbort bool
	invoke.DefineClientStreamInvokeHandler(bc, "racy", func(_ context.Context, chunks enumerators.Enumerator[int]) (sumResponse, error) {
		defer chunks.Dispose()
		moved := chunks.MoveNext()
		_, err := chunks.Current()
		sawAbort = !moved && err != nil
		close(handlerStarted)
		return sumResponse{}, err
	})

	const id = "racy-id"
	bc.Emit(bus.Descriptor{ID: id, Kind: "racy:abort"}, invoke.AbortBody{Reason: invoke.ErrAborted})
	bc.Emit(bus.Descriptor{ID: id, Kind: "racy:request"}, struct{}{})

	select {
	case <-handlerStarted:
	case <-time.After(time.Second):
		t.Fatal("handler never started despite request arriving")
	}
	assert.True(t, sawAbort, "handler should see an already-aborted, empty input stream")
}
