package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/polygate/internal/core/events"
	coretypes "github.com/GoPolymarket/polygate/internal/core/types"
	"github.com/GoPolymarket/polygate/internal/rpccap"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualClock never sleeps in wall-clock time; Delay returns as soon as
// the test calls Advance, or immediately if no one is waiting, keeping
// polling tests fast and deterministic.
type manualClock struct {
	mu      sync.Mutex
	waiters []chan struct{}
}

func (c *manualClock) Now() time.Time { return time.Unix(0, 0) }

func (c *manualClock) Delay(ctx context.Context, d time.Duration) error {
	ch := make(chan struct{})
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *manualClock) Advance() {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

type stubRPC struct {
	mu       sync.Mutex
	receipts map[common.Hash]*coretypes.Receipt
	errs     map[common.Hash]error
}

func (s *stubRPC) GetNonce(ctx context.Context, addr common.Address, tag rpccap.BlockTag) (uint64, error) {
	return 0, nil
}
func (s *stubRPC) EstimateGas(ctx context.Context, tx *coretypes.TxRequest) (uint64, error) {
	return 21000, nil
}
func (s *stubRPC) SendRaw(ctx context.Context, signed *gethtypes.Transaction) (common.Hash, error) {
	return common.Hash{}, nil
}
func (s *stubRPC) GetReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[txHash]; ok {
		return nil, err
	}
	return s.receipts[txHash], nil
}
func (s *stubRPC) SendMany(ctx context.Context, signed []*gethtypes.Transaction) ([]rpccap.SendResult, error) {
	return nil, nil
}

type capturingSink struct {
	mu        sync.Mutex
	confirmed []events.Confirmed
	errored   []events.Error
}

func (s *capturingSink) OnMempooled(events.Mempooled) {}
func (s *capturingSink) OnConfirmed(e events.Confirmed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = append(s.confirmed, e)
}
func (s *capturingSink) OnError(e events.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errored = append(s.errored, e)
}

func TestTrack_EmitsConfirmedOnSuccessfulReceipt(t *testing.T) {
	hash := common.HexToHash("0x1")
	rpc := &stubRPC{receipts: map[common.Hash]*coretypes.Receipt{
		hash: {TxHash: hash, Status: 1, BlockNumber: 100},
	}}
	sink := &capturingSink{}
	clk := &manualClock{}
	tr := New(rpc, sink, Options{PollInterval: time.Millisecond}).WithClock(clk)

	tr.Track(context.Background(), hash, "req-1", 0)
	waitForWaiter(t, clk)
	clk.Advance()

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.confirmed) == 1
	})

	assert.Equal(t, "req-1", sink.confirmed[0].RequestID)
	assert.True(t, sink.confirmed[0].Receipt.Successful())
}

func TestTrack_EmitsConfirmedOnFailedReceipt(t *testing.T) {
	hash := common.HexToHash("0x2")
	rpc := &stubRPC{receipts: map[common.Hash]*coretypes.Receipt{
		hash: {TxHash: hash, Status: 0, BlockNumber: 100},
	}}
	sink := &capturingSink{}
	clk := &manualClock{}
	tr := New(rpc, sink, Options{PollInterval: time.Millisecond}).WithClock(clk)

	tr.Track(context.Background(), hash, "req-2", 0)
	waitForWaiter(t, clk)
	clk.Advance()

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.confirmed) == 1
	})
	assert.False(t, sink.confirmed[0].Receipt.Successful())
}

func TestTrack_NotYetMinedKeepsPolling(t *testing.T) {
	hash := common.HexToHash("0x3")
	rpc := &stubRPC{receipts: map[common.Hash]*coretypes.Receipt{}}
	sink := &capturingSink{}
	clk := &manualClock{}
	tr := New(rpc, sink, Options{PollInterval: time.Millisecond}).WithClock(clk)

	tr.Track(context.Background(), hash, "req-3", 0)

	for i := 0; i < 3; i++ {
		waitForWaiter(t, clk)
		clk.Advance()
	}

	sink.mu.Lock()
	n := len(sink.confirmed)
	sink.mu.Unlock()
	assert.Equal(t, 0, n, "receipt not yet mined must not produce an event")
	assert.True(t, tr.Watching(hash))
}

func TestTrack_GivesUpAfterMaxConsecutiveErrors(t *testing.T) {
	hash := common.HexToHash("0x4")
	rpc := &stubRPC{errs: map[common.Hash]error{hash: fmt.Errorf("rpc down")}}
	sink := &capturingSink{}
	clk := &manualClock{}
	tr := New(rpc, sink, Options{PollInterval: time.Millisecond, MaxAttempts: 3}).WithClock(clk)

	tr.Track(context.Background(), hash, "req-4", 0)

	for i := 0; i < 3; i++ {
		waitForWaiter(t, clk)
		clk.Advance()
	}

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.errored) == 1
	})
	assert.Equal(t, hash.Hex(), sink.errored[0].RequestID)
	assert.False(t, tr.Watching(hash))
}

func TestTrack_OnCompleteFiresOnTerminalOutcome(t *testing.T) {
	hash := common.HexToHash("0x5")
	rpc := &stubRPC{receipts: map[common.Hash]*coretypes.Receipt{
		hash: {TxHash: hash, Status: 1},
	}}
	sink := &capturingSink{}
	clk := &manualClock{}
	tr := New(rpc, sink, Options{PollInterval: time.Millisecond}).WithClock(clk)

	completed := make(chan common.Hash, 1)
	tr.OnComplete(func(h common.Hash) { completed <- h })

	tr.Track(context.Background(), hash, "req-5", 0)
	waitForWaiter(t, clk)
	clk.Advance()

	select {
	case h := <-completed:
		assert.Equal(t, hash, h)
	case <-time.After(time.Second):
		t.Fatal("OnComplete never fired")
	}
}

func TestAbandon_StopsWatching(t *testing.T) {
	hash := common.HexToHash("0x6")
	rpc := &stubRPC{receipts: map[common.Hash]*coretypes.Receipt{}}
	sink := &capturingSink{}
	clk := &manualClock{}
	tr := New(rpc, sink, Options{PollInterval: time.Millisecond}).WithClock(clk)

	tr.Track(context.Background(), hash, "req-6", 0)
	waitForWaiter(t, clk)
	require.True(t, tr.Watching(hash))

	tr.Abandon(hash)
	waitFor(t, func() bool { return !tr.Watching(hash) })
}

func waitForWaiter(t *testing.T, clk *manualClock) {
	t.Helper()
	waitFor(t, func() bool {
		clk.mu.Lock()
		defer clk.mu.Unlock()
		return len(clk.waiters) > 0
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
