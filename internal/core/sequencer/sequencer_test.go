package sequencer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue_FIFOOrder(t *testing.T) {
	s := New(Options{Capacity: 8})

	var mu sync.Mutex
	var order []string

	submit := func(id string) SubmitFunc {
		return func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return id, nil
		}
	}

	var handles []*Handle
	for _, id := range []string{"a", "b", "c"} {
		h, err := s.Enqueue(context.Background(), id, submit(id), nil, nil)
		require.NoError(t, err)
		handles = append(handles, h)
	}

	for _, h := range handles {
		_, err := h.Result(context.Background())
		require.NoError(t, err)
		s.Complete(h.RequestID())
	}

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestAtMostOneInFlight(t *testing.T) {
	s := New(Options{Capacity: 8})

	started := make(chan struct{}, 2)
	release := make(chan struct{})

	submit := func(ctx context.Context) (any, error) {
		started <- struct{}{}
		<-release
		return "ok", nil
	}

	h1, err := s.Enqueue(context.Background(), "1", submit, nil, nil)
	require.NoError(t, err)
	h2, err := s.Enqueue(context.Background(), "2", submit, nil, nil)
	require.NoError(t, err)

	<-started // first slot has started submitting

	select {
	case <-started:
		t.Fatal("second slot started before first was completed")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	_, err = h1.Result(context.Background())
	require.NoError(t, err)
	s.Complete(h1.RequestID())

	<-started // now the second slot is allowed to start
	_, err = h2.Result(context.Background())
	require.NoError(t, err)
	s.Complete(h2.RequestID())
}

func TestTryCancel_QueuedSlotNeverSubmits(t *testing.T) {
	s := New(Options{Capacity: 8})

	block := make(chan struct{})
	_, err := s.Enqueue(context.Background(), "blocker", func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	}, nil, nil)
	require.NoError(t, err)

	var submitted bool
	h, err := s.Enqueue(context.Background(), "victim", func(ctx context.Context) (any, error) {
		submitted = true
		return nil, nil
	}, nil, nil)
	require.NoError(t, err)

	ok := s.TryCancel("victim")
	assert.True(t, ok)

	_, resErr := h.Result(context.Background())
	assert.ErrorIs(t, resErr, context.Canceled)

	close(block)
	s.Complete("blocker")

	time.Sleep(20 * time.Millisecond)
	assert.False(t, submitted, "canceled slot must never reach submit")
}

func TestTryCancel_MempooledSlotCannotBeRecalled(t *testing.T) {
	s := New(Options{Capacity: 8})

	h, err := s.Enqueue(context.Background(), "req-1", func(ctx context.Context) (any, error) {
		return "0xhash", nil
	}, nil, nil)
	require.NoError(t, err)

	_, err = h.Result(context.Background())
	require.NoError(t, err)

	ok := s.TryCancel("req-1")
	assert.False(t, ok, "a slot that already reached the mempool cannot be canceled")

	s.Complete("req-1")
}

func TestSubmitFailure_ReleasesQueueWithoutExternalComplete(t *testing.T) {
	s := New(Options{Capacity: 8})

	var onErrCalls []string
	h1, err := s.Enqueue(context.Background(), "failer", func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("boom")
	}, nil, func(err error, requestID string) {
		onErrCalls = append(onErrCalls, requestID)
	})
	require.NoError(t, err)

	_, err = h1.Result(context.Background())
	assert.Error(t, err)

	h2, err := s.Enqueue(context.Background(), "next", func(ctx context.Context) (any, error) {
		return "ok", nil
	}, nil, nil)
	require.NoError(t, err)

	_, err = h2.Result(context.Background())
	require.NoError(t, err)
	s.Complete("next")

	assert.Equal(t, []string{"failer"}, onErrCalls)
}

func TestEnqueue_CanceledBeforeAdmissionHasNoSideEffect(t *testing.T) {
	s := New(Options{Capacity: 1})

	block := make(chan struct{})
	_, err := s.Enqueue(context.Background(), "holder", func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	}, nil, nil)
	require.NoError(t, err)

	// Fill the (now-empty, capacity-1) queue buffer so the next Enqueue's
	// channel send genuinely blocks instead of racing the canceled ctx.
	_, err = s.Enqueue(context.Background(), "filler", func(ctx context.Context) (any, error) {
		return nil, nil
	}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Enqueue(ctx, "late", func(ctx context.Context) (any, error) {
		t.Fatal("canceled-before-admission slot must never submit")
		return nil, nil
	}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
	s.Complete("holder")
	s.Complete("filler")
}
