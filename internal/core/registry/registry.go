// Package registry memoizes one CallSequencer per (RpcCap, SignerCap)
// identity pair. Per the design notes, this is an explicit,
// dependency-injected registry object rather than a package-level mutable
// map — identity is the pointer identity of the injected capabilities,
// which Go interface equality already gives us for free when the
// concrete implementations are pointer-backed (as rpccap.Client and
// signercap.Signer are).
package registry

import (
	"sync"

	"github.com/GoPolymarket/polygate/internal/core/sequencer"
	"github.com/GoPolymarket/polygate/internal/rpccap"
	"github.com/GoPolymarket/polygate/internal/signercap"
)

type pairKey struct {
	rpc    rpccap.RpcCap
	signer signercap.SignerCap
}

// SequencerRegistry hands out the same *sequencer.Sequencer for repeated
// calls with the same (rpc, signer) pair, and a fresh one otherwise.
type SequencerRegistry struct {
	mu    sync.Mutex
	slots map[pairKey]*sequencer.Sequencer
	opts  sequencer.Options
}

func NewSequencerRegistry(opts sequencer.Options) *SequencerRegistry {
	return &SequencerRegistry{
		slots: make(map[pairKey]*sequencer.Sequencer),
		opts:  opts,
	}
}

// For returns the sequencer for this (rpc, signer) pair, creating and
// starting it on first use.
func (r *SequencerRegistry) For(rpc rpccap.RpcCap, signer signercap.SignerCap) *sequencer.Sequencer {
	key := pairKey{rpc: rpc, signer: signer}

	r.mu.Lock()
	defer r.mu.Unlock()

	if seq, ok := r.slots[key]; ok {
		return seq
	}
	seq := sequencer.New(r.opts)
	r.slots[key] = seq
	return seq
}
