// Package sequencer serialises transaction submission per signer: a
// bounded FIFO of pending calls, drained by a single worker goroutine, so
// that nonces issued in enqueue order are also submitted in that order.
// Grounded in the design notes' "process-wide sequencer registry" pattern;
// the single-reader-goroutine-over-a-channel shape mirrors the original
// gateway's user-stream read loop (internal/market/user_stream.go).
package sequencer

import (
	"context"
	"sync"
)

// State is where a slot sits in its lifecycle.
type State int

const (
	Queued State = iota
	Submitting
	Mempool
	Completed
	Canceled
	Failed
)

// Options tunes a Sequencer's queue capacity.
type Options struct {
	Capacity int
}

// DefaultCapacity is the bounded queue depth spec.md §4.2 names.
const DefaultCapacity = 16

// SubmitFunc performs the inner submit step (nonce → gas → sign → send) for
// one slot's payload, returning whatever result the caller's payload type
// carries (typically a tx hash).
type SubmitFunc func(ctx context.Context) (result any, err error)

type slot struct {
	requestID string
	submit    SubmitFunc
	onSuccess func(result any, requestID string)
	onError   func(err error, requestID string)

	mu    sync.Mutex
	state State

	resultCh chan slotResult
}

type slotResult struct {
	result any
	err    error
}

// Sequencer is a bounded FIFO of pending calls for one signer, drained by a
// single worker goroutine: at most one slot is Submitting/Mempool at a
// time (P4), and slots resolve in the order they were enqueued (P3).
type Sequencer struct {
	queue chan *slot

	mu      sync.Mutex
	pending map[string]*slot // requestID -> slot, for Queued entries only

	completeCh chan string
}

func New(opts Options) *Sequencer {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Sequencer{
		queue:      make(chan *slot, capacity),
		pending:    make(map[string]*slot),
		completeCh: make(chan string, 1),
	}
	go s.run()
	return s
}

// Enqueue places a new slot at the back of the FIFO, blocking (subject to
// ctx) if the queue is already at capacity. Cancellation while blocked on
// a full queue has no side effect: no slot is created (P5's enqueue half).
func (s *Sequencer) Enqueue(ctx context.Context, requestID string, submit SubmitFunc, onSuccess func(any, string), onError func(error, string)) (*Handle, error) {
	sl := &slot{
		requestID: requestID,
		submit:    submit,
		onSuccess: onSuccess,
		onError:   onError,
		state:     Queued,
		resultCh:  make(chan slotResult, 1),
	}

	s.mu.Lock()
	s.pending[requestID] = sl
	s.mu.Unlock()

	select {
	case s.queue <- sl:
		return &Handle{slot: sl}, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// TryCancel succeeds only if requestID's slot is still Queued (not yet
// pulled off the queue by the worker); a mempooled transaction can't be
// recalled (P5).
func (s *Sequencer) TryCancel(requestID string) bool {
	s.mu.Lock()
	sl, ok := s.pending[requestID]
	if ok {
		delete(s.pending, requestID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	sl.mu.Lock()
	if sl.state != Queued {
		sl.mu.Unlock()
		return false
	}
	sl.state = Canceled
	sl.mu.Unlock()

	sl.resultCh <- slotResult{err: context.Canceled}
	return true
}

// Complete releases the worker to pull the next slot, once the caller
// (typically the tracker, via the queued executor) has resolved the
// mempooled transaction for requestID.
func (s *Sequencer) Complete(requestID string) {
	s.completeCh <- requestID
}

// run pulls slots off the queue one at a time, skipping any that were
// canceled before it got to them, and waits for an explicit Complete
// between submitting one slot and pulling the next.
func (s *Sequencer) run() {
	for sl := range s.queue {
		sl.mu.Lock()
		canceled := sl.state == Canceled
		if !canceled {
			sl.state = Submitting
		}
		sl.mu.Unlock()

		s.mu.Lock()
		delete(s.pending, sl.requestID)
		s.mu.Unlock()

		if canceled {
			continue
		}

		result, err := sl.submit(context.Background())

		sl.mu.Lock()
		if err != nil {
			sl.state = Failed
		} else {
			sl.state = Mempool
		}
		sl.mu.Unlock()

		if err != nil {
			if sl.onError != nil {
				sl.onError(err, sl.requestID)
			}
			sl.resultCh <- slotResult{err: err}
			// Pre-mempool failure: no receipt will ever arrive, so the
			// worker moves on without waiting for an external Complete.
			continue
		}

		if sl.onSuccess != nil {
			sl.onSuccess(result, sl.requestID)
		}
		sl.resultCh <- slotResult{result: result}

		// Hold the worker until the caller observes this tx's outcome
		// (confirmed, or abandoned) and releases the next slot.
		<-s.completeCh
	}
}

// Handle is returned by Enqueue; Result blocks for the slot's mempool
// outcome (it does not wait for confirmation).
type Handle struct {
	slot *slot
}

// Result blocks until the slot is submitted (returning its result,
// typically a tx hash) or fails/cancels before reaching the mempool.
func (h *Handle) Result(ctx context.Context) (any, error) {
	select {
	case r := <-h.slot.resultCh:
		if r.err != nil {
			return nil, r.err
		}
		return r.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestID returns the slot's caller-chosen id.
func (h *Handle) RequestID() string {
	return h.slot.requestID
}
