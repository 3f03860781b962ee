// Package tracker watches mempool transaction hashes for on-chain
// receipts and fans out typed events. Grounded in
// data-preservation-programs-go-synapse's pkg/txutil/confirmation.go
// (WaitForReceiptWithConfig's ticker-plus-consecutive-error-counter
// shape), generalized from a single blocking wait into a background
// watch-set so many hashes can be tracked concurrently (spec.md §4.5).
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/GoPolymarket/polygate/internal/core/events"
	"github.com/GoPolymarket/polygate/internal/pkg/logger"
	"github.com/GoPolymarket/polygate/internal/rpccap"
	"github.com/ethereum/go-ethereum/common"
)

// Clock abstracts wall-clock delay so polling is deterministically
// testable, per spec.md §4.6.
type Clock interface {
	Now() time.Time
	Delay(ctx context.Context, d time.Duration) error
}

// RealClock delays via time.After, subject to ctx cancellation.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Delay(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options configures a Tracker's default polling behavior.
type Options struct {
	PollInterval time.Duration // default polling period, per watched hash
	MaxAttempts  int           // consecutive poll errors tolerated before giving up
}

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 5
)

// Tracker polls RpcCap for receipts of in-flight transactions and routes
// the outcome to a Sink. One Tracker can watch many hashes concurrently;
// there is no ordering between events for different hashes (spec.md §5).
type Tracker struct {
	rpc   rpccap.RpcCap
	clock Clock
	sink  events.Sink
	opts  Options

	mu      sync.Mutex
	watched map[common.Hash]context.CancelFunc

	// onComplete, when set, is invoked once per hash after its terminal
	// outcome (confirmed, failed, or abandoned) — the queued executor
	// uses this hook to call CallSequencer.Complete and release the next
	// slot (spec.md §4.5).
	onComplete func(txHash common.Hash)
}

func New(rpc rpccap.RpcCap, sink events.Sink, opts Options) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Tracker{
		rpc:     rpc,
		clock:   RealClock{},
		sink:    sink,
		opts:    opts,
		watched: make(map[common.Hash]context.CancelFunc),
	}
}

// WithClock overrides the clock (for deterministic tests).
func (t *Tracker) WithClock(c Clock) *Tracker {
	t.clock = c
	return t
}

// OnComplete registers the hook invoked when a watched hash reaches a
// terminal state.
func (t *Tracker) OnComplete(fn func(txHash common.Hash)) {
	t.onComplete = fn
}

// Track begins polling txHash at interval (or the tracker's default if
// interval <= 0) for a receipt, associating it with requestID for event
// routing. Track returns immediately; polling runs on its own goroutine
// until a terminal outcome or ctx is canceled.
func (t *Tracker) Track(ctx context.Context, txHash common.Hash, requestID string, interval time.Duration) {
	if interval <= 0 {
		interval = t.opts.PollInterval
	}
	watchCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.watched[txHash] = cancel
	t.mu.Unlock()

	go t.poll(watchCtx, txHash, requestID, interval)
}

// Abandon stops tracking txHash without emitting any terminal event,
// releasing resources for a hash the caller no longer cares about.
func (t *Tracker) Abandon(txHash common.Hash) {
	t.mu.Lock()
	cancel, ok := t.watched[txHash]
	delete(t.watched, txHash)
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

func (t *Tracker) poll(ctx context.Context, txHash common.Hash, requestID string, interval time.Duration) {
	defer t.finish(txHash)

	consecutiveErrors := 0
	for {
		if err := t.clock.Delay(ctx, interval); err != nil {
			return
		}

		receipt, err := t.rpc.GetReceipt(ctx, txHash)
		if err != nil {
			consecutiveErrors++
			logger.Warn("tracker: poll error", "tx_hash", txHash.Hex(), "attempt", consecutiveErrors, "error", err)
			if consecutiveErrors >= t.opts.MaxAttempts {
				// Per spec.md §6, a tracker failure identifies the tx hash,
				// not the original request id: the caller may have many
				// in-flight hashes and only the hash is certain here.
				t.sink.OnError(events.Error{RequestID: txHash.Hex(), Err: err})
				return
			}
			continue
		}
		consecutiveErrors = 0

		if receipt == nil {
			continue // not yet mined
		}

		t.sink.OnConfirmed(events.Confirmed{RequestID: requestID, Receipt: receipt})
		return
	}
}

func (t *Tracker) finish(txHash common.Hash) {
	t.mu.Lock()
	delete(t.watched, txHash)
	t.mu.Unlock()
	if t.onComplete != nil {
		t.onComplete(txHash)
	}
}

// Watching reports whether txHash currently has an active poll loop —
// exposed for tests and diagnostics, not part of the core contract.
func (t *Tracker) Watching(txHash common.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.watched[txHash]
	return ok
}
