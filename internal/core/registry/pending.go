package registry

import (
	"sync"

	"github.com/GoPolymarket/polygate/internal/core/sequencer"
	"github.com/ethereum/go-ethereum/common"
)

// PendingEntry is what the registry remembers about one in-flight
// request: the sequencer handle (while the caller may still cancel before
// submission) and, once known, the mempool tx hash (for post-submission
// correlation with tracker events).
type PendingEntry struct {
	RequestID string
	Sequencer *sequencer.Sequencer // nil for a direct-executor submission
	TxHash    common.Hash
	hasHash   bool
}

// PendingRequestRegistry maps caller-provided request ids to (tx hash,
// sequencer slot) so a caller can cancel before submission or correlate
// tracker events with the request that produced them, per spec.md §3's
// PendingRequestRegistry. Entries are one-shot: removed once the request
// reaches a terminal state.
type PendingRequestRegistry struct {
	mu      sync.Mutex
	byReqID map[string]*PendingEntry
	byHash  map[common.Hash]string
}

func NewPendingRequestRegistry() *PendingRequestRegistry {
	return &PendingRequestRegistry{
		byReqID: make(map[string]*PendingEntry),
		byHash:  make(map[common.Hash]string),
	}
}

// Register records a newly-submitted request, before its tx hash is known.
// seq is nil for a direct-executor submission, which has no queue slot to
// cancel.
func (r *PendingRequestRegistry) Register(requestID string, seq *sequencer.Sequencer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byReqID[requestID] = &PendingEntry{RequestID: requestID, Sequencer: seq}
}

// ResolveHash attaches the mempool tx hash to a previously-registered
// request, enabling lookup in either direction.
func (r *PendingRequestRegistry) ResolveHash(requestID string, txHash common.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byReqID[requestID]
	if !ok {
		return
	}
	e.TxHash = txHash
	e.hasHash = true
	r.byHash[txHash] = requestID
}

// RequestIDForHash recovers the caller's request id from a tx hash, used
// by the queued executor's tracker-completion hook.
func (r *PendingRequestRegistry) RequestIDForHash(txHash common.Hash) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byHash[txHash]
	return id, ok
}

// Cancel tries to cancel requestID: if it's still Queued in its sequencer,
// the cancel succeeds and the entry is removed; once a tx hash is attached
// the request has left the queue and cancellation is no longer possible
// (spec.md §4.2).
func (r *PendingRequestRegistry) Cancel(requestID string) bool {
	r.mu.Lock()
	e, ok := r.byReqID[requestID]
	var alreadyHashed bool
	if ok {
		alreadyHashed = e.hasHash
	}
	r.mu.Unlock()
	if !ok || e.Sequencer == nil || alreadyHashed {
		return false
	}

	return e.Sequencer.TryCancel(requestID)
}

// Forget removes requestID's bookkeeping once it reaches a terminal state
// (confirmed, failed, canceled, or abandoned).
func (r *PendingRequestRegistry) Forget(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byReqID[requestID]
	if !ok {
		return
	}
	delete(r.byReqID, requestID)
	if e.hasHash {
		delete(r.byHash, e.TxHash)
	}
}
