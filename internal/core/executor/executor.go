// Package executor orchestrates the five-step submission pipeline —
// acquire nonce, optionally estimate gas, sign, send, hand off to the
// tracker — in two flavours: direct (runs on the caller's goroutine) and
// queued (serialised through a CallSequencer). Grounded in the original
// gateway's nonce-then-sign-then-send sequence in internal/manager/nonce.go
// and internal/signer/signer.go, generalized into the explicit pipeline
// spec.md §4.3 names.
package executor

import (
	"context"
	"fmt"

	"github.com/GoPolymarket/polygate/internal/core/events"
	"github.com/GoPolymarket/polygate/internal/core/noncemgr"
	"github.com/GoPolymarket/polygate/internal/core/registry"
	"github.com/GoPolymarket/polygate/internal/core/sequencer"
	"github.com/GoPolymarket/polygate/internal/core/tracker"
	coretypes "github.com/GoPolymarket/polygate/internal/core/types"
	"github.com/GoPolymarket/polygate/internal/rpccap"
	"github.com/GoPolymarket/polygate/internal/signercap"
	"github.com/ethereum/go-ethereum/common"
)

// pipeline holds the shared five-step algorithm as a method on an
// unexported struct so both executor variants run identical logic; only
// how a caller reaches pipeline.run differs (inline vs. queued).
type pipeline struct {
	nonces  *noncemgr.Manager
	rpc     rpccap.RpcCap
	signer  signercap.SignerCap
	tracker *tracker.Tracker
	sink    events.Sink
}

// run executes the shared algorithm from spec.md §4.3 for one request and
// returns the accepted tx hash. Tracking is started as a side effect
// before returning; the caller is responsible for eventually observing
// tracker completion (queued executor wires this to sequencer.Complete).
func (p *pipeline) run(ctx context.Context, params *coretypes.TxRequestParams) (common.Hash, error) {
	requestID := params.RequestID
	tx := params.Tx

	lease, err := p.nonces.Lock(ctx, tx.From)
	if err != nil {
		err = coretypes.NewCoreError(coretypes.CodeNonceFetchError, "failed to acquire nonce lease", err)
		p.sink.OnError(events.Error{RequestID: requestID, Err: err})
		return common.Hash{}, err
	}

	nonce := lease.NextNonce()
	tx.Nonce = nonce

	if params.EstimateGas {
		gas, estErr := p.rpc.EstimateGas(ctx, tx)
		if estErr != nil {
			lease.Reset(nonce)
			lease.Release()
			estErr = coretypes.NewCoreError(coretypes.CodeGasEstimateError, "gas estimation failed", estErr)
			p.sink.OnError(events.Error{RequestID: requestID, Err: estErr})
			return common.Hash{}, estErr
		}
		tx.GasLimit = gas + gas*uint64(params.GasReservePercent)/100
	}

	if err := tx.Validate(); err != nil {
		lease.Reset(nonce)
		lease.Release()
		verr := coretypes.NewCoreError(coretypes.CodeTxVerifyError, "tx request failed validation before signing", err)
		p.sink.OnError(events.Error{RequestID: requestID, Err: verr})
		return common.Hash{}, verr
	}

	signed, err := p.signer.SignTx(tx)
	if err != nil {
		lease.Reset(nonce)
		lease.Release()
		serr := coretypes.NewCoreError(coretypes.CodeTxVerifyError, "failed to sign transaction", err)
		p.sink.OnError(events.Error{RequestID: requestID, Err: serr})
		return common.Hash{}, serr
	}
	if !p.signer.VerifyTx(signed, tx.From) {
		lease.Reset(nonce)
		lease.Release()
		verr := coretypes.NewCoreError(coretypes.CodeTxVerifyError, "signed transaction failed self-verification", nil)
		p.sink.OnError(events.Error{RequestID: requestID, Err: verr})
		return common.Hash{}, verr
	}

	txHash, err := p.rpc.SendRaw(ctx, signed)
	if err != nil {
		lease.Reset(nonce)
		lease.Release()
		if noncemgr.IsNonceTooLow(err) {
			p.nonces.ReseedOnceOnNonceTooLow(tx.From)
		}
		serr := coretypes.NewCoreError(coretypes.CodeTxSendError, "failed to send raw transaction", err)
		p.sink.OnError(events.Error{RequestID: requestID, Err: serr})
		return common.Hash{}, serr
	}

	p.sink.OnMempooled(events.Mempooled{RequestID: requestID, TxHash: txHash})
	lease.ClearReseed() // send succeeded: end this address's reseed-failure streak
	lease.Release()     // finalises the nonce increment

	p.tracker.Track(context.Background(), txHash, requestID, 0)

	return txHash, nil
}

// DirectExecutor runs the pipeline on the caller's goroutine: there is no
// inter-request ordering beyond the per-address nonce lock (spec.md §4.4).
type DirectExecutor struct {
	p *pipeline
}

func NewDirectExecutor(nonces *noncemgr.Manager, rpc rpccap.RpcCap, signer signercap.SignerCap, tr *tracker.Tracker, sink events.Sink) *DirectExecutor {
	return &DirectExecutor{p: &pipeline{nonces: nonces, rpc: rpc, signer: signer, tracker: tr, sink: sink}}
}

// Submit runs the pipeline to completion (through mempool acceptance) and
// returns the tx hash.
func (e *DirectExecutor) Submit(ctx context.Context, params *coretypes.TxRequestParams) (common.Hash, error) {
	return e.p.run(ctx, params)
}

// QueuedExecutor places requests into a CallSequencer: strict in-order
// submission and strict per-signer back-pressure (spec.md §4.4). The
// sequencer is obtained from a SequencerRegistry so all callers sharing an
// (RpcCap, SignerCap) pair serialise through the same queue.
type QueuedExecutor struct {
	p        *pipeline
	seq      *sequencer.Sequencer
	pending  *registry.PendingRequestRegistry
}

func NewQueuedExecutor(nonces *noncemgr.Manager, rpc rpccap.RpcCap, signer signercap.SignerCap, tr *tracker.Tracker, sink events.Sink, seqRegistry *registry.SequencerRegistry, pending *registry.PendingRequestRegistry) *QueuedExecutor {
	p := &pipeline{nonces: nonces, rpc: rpc, signer: signer, tracker: tr, sink: sink}
	seq := seqRegistry.For(rpc, signer)
	qe := &QueuedExecutor{p: p, seq: seq, pending: pending}

	// The tracker's completion hook releases the sequencer so the next
	// queued slot can begin submitting — this is what keeps at most one
	// mempool transaction in flight per sequencer (spec.md §4.5).
	tr.OnComplete(func(txHash common.Hash) {
		if requestID, ok := pending.RequestIDForHash(txHash); ok {
			pending.Forget(requestID)
			seq.Complete(requestID)
		}
	})

	return qe
}

// Submit enqueues params on the shared sequencer and returns once the
// request reaches the mempool (or fails/cancels before that point).
func (e *QueuedExecutor) Submit(ctx context.Context, params *coretypes.TxRequestParams) (common.Hash, error) {
	requestID := params.RequestID

	submit := func(ctx context.Context) (any, error) {
		hash, err := e.p.run(ctx, params)
		if err != nil {
			return nil, err
		}
		e.pending.ResolveHash(requestID, hash)
		return hash, nil
	}

	// Register before Enqueue: the sequencer worker may pull this slot and
	// run submit (including ResolveHash) before Enqueue even returns, so
	// the registry entry must already exist or ResolveHash silently no-ops
	// and the request's hash never becomes lookupable by the tracker hook.
	e.pending.Register(requestID, e.seq)

	handle, err := e.seq.Enqueue(ctx, requestID, submit, nil, nil)
	if err != nil {
		e.pending.Forget(requestID)
		cerr := coretypes.NewCoreError(coretypes.CodeQueueFullError, "failed to enqueue request", err)
		e.p.sink.OnError(events.Error{RequestID: requestID, Err: cerr})
		return common.Hash{}, cerr
	}

	result, err := handle.Result(ctx)
	if err != nil {
		e.pending.Forget(requestID)
		return common.Hash{}, err
	}

	hash, ok := result.(common.Hash)
	if !ok {
		return common.Hash{}, fmt.Errorf("executor: unexpected result type %T from sequencer slot", result)
	}
	return hash, nil
}

// TryCancel attempts to cancel a still-queued request; see
// registry.PendingRequestRegistry.Cancel for the exact semantics.
func (e *QueuedExecutor) TryCancel(requestID string) bool {
	return e.pending.Cancel(requestID)
}
