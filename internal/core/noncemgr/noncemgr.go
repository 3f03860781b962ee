// Package noncemgr provides per-address exclusive nonce issuance with
// chain refresh and reset-on-failure, grounded in the original gateway's
// internal/manager.NonceManager (which cached a map[address]uint64 behind
// a single RWMutex) generalized to the scoped-lease shape spec.md §4.1
// calls for: a mutex per address, and a Lease whose Release finalizes the
// increment instead of a manual Increment/Reset pair.
package noncemgr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/GoPolymarket/polygate/internal/pkg/logger"
	"github.com/GoPolymarket/polygate/internal/rpccap"
	"github.com/ethereum/go-ethereum/common"
)

// addrState's exclusive lock is a one-token channel rather than
// sync.Mutex so Lock can select on ctx.Done() without leaking a goroutine
// waiting to acquire a mutex that's no longer wanted.
type addrState struct {
	sem chan struct{}

	mu       sync.Mutex
	cursor   uint64
	seeded   bool
	reseeded bool
}

func newAddrState() *addrState {
	st := &addrState{sem: make(chan struct{}, 1)}
	st.sem <- struct{}{}
	return st
}

// Manager issues NonceLeases for addresses, seeding each address's cursor
// from the chain on first use.
type Manager struct {
	rpc rpccap.RpcCap

	mapMu sync.Mutex
	addrs map[common.Address]*addrState
}

func New(rpc rpccap.RpcCap) *Manager {
	return &Manager{
		rpc:   rpc,
		addrs: make(map[common.Address]*addrState),
	}
}

func (m *Manager) stateFor(addr common.Address) *addrState {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()
	st, ok := m.addrs[addr]
	if !ok {
		st = newAddrState()
		m.addrs[addr] = st
	}
	return st
}

// Lock acquires the per-address exclusive lease. Cancellation before the
// lock is acquired has no side effect, per spec.md §5.
func (m *Manager) Lock(ctx context.Context, addr common.Address) (*Lease, error) {
	st := m.stateFor(addr)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-st.sem:
	}

	st.mu.Lock()
	seeded := st.seeded
	st.mu.Unlock()

	if !seeded {
		fetched, err := m.rpc.GetNonce(ctx, addr, rpccap.Pending)
		if err != nil {
			st.sem <- struct{}{}
			return nil, fmt.Errorf("noncemgr: fetch pending nonce for %s: %w", addr.Hex(), err)
		}
		st.mu.Lock()
		st.cursor = fetched
		st.seeded = true
		st.mu.Unlock()
	}

	return &Lease{state: st}, nil
}

// Forget drops the cached cursor for addr so the next Lock re-seeds from
// chain. Called manually, or automatically once per address per
// "nonce too low" send failure (see ReseedOnceOnNonceTooLow). It leaves
// the reseeded flag alone: that flag tracks the failure streak, and is
// only cleared by a lease that completes successfully (Lease.clearReseed),
// not by the act of forgetting the cursor itself.
func (m *Manager) Forget(addr common.Address) {
	m.mapMu.Lock()
	st, ok := m.addrs[addr]
	m.mapMu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	st.seeded = false
	st.mu.Unlock()
	logger.Info("nonce cursor forgotten", "address", addr.Hex())
}

// ReseedOnceOnNonceTooLow implements the "one re-seed per address per
// failure" policy from spec.md §4.1: it forgets the cursor only if this
// address hasn't already been reseeded since its last successful lease.
func (m *Manager) ReseedOnceOnNonceTooLow(addr common.Address) {
	st := m.stateFor(addr)
	st.mu.Lock()
	already := st.reseeded
	st.reseeded = true
	st.mu.Unlock()
	if already {
		return
	}
	m.Forget(addr)
}

// IsNonceTooLow reports whether err is the RPC's "nonce too low" signal.
func IsNonceTooLow(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}

// Lease is a scoped exclusive borrow of one address's nonce cursor. Exactly
// one Lease may be outstanding per address at any instant (P2).
type Lease struct {
	state *addrState

	once sync.Once
}

// NextNonce returns the current cursor and post-increments it.
func (l *Lease) NextNonce() uint64 {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	n := l.state.cursor
	l.state.cursor++
	return n
}

// Reset rolls the cursor back to min(cursor, n), so that a post-nonce
// failure (estimate/sign/send) leaves no hole. After Reset(n) the next
// issuance yields n.
func (l *Lease) Reset(n uint64) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	if n < l.state.cursor {
		l.state.cursor = n
	}
}

// Release drops the per-address lock. Idempotent: only the first call has
// effect, so a caller may safely defer Release() even after calling it
// explicitly on a successful path.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.state.sem <- struct{}{}
	})
}

// ClearReseed resets the "already reseeded" failure-streak flag. Callers
// invoke this once a lease's send has actually succeeded, so the next
// "nonce too low" failure is free to trigger another reseed rather than
// being suppressed by a streak that ended.
func (l *Lease) ClearReseed() {
	l.state.mu.Lock()
	l.state.reseeded = false
	l.state.mu.Unlock()
}
