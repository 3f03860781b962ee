package executor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/polygate/internal/core/events"
	"github.com/GoPolymarket/polygate/internal/core/noncemgr"
	"github.com/GoPolymarket/polygate/internal/core/registry"
	"github.com/GoPolymarket/polygate/internal/core/sequencer"
	"github.com/GoPolymarket/polygate/internal/core/tracker"
	coretypes "github.com/GoPolymarket/polygate/internal/core/types"
	"github.com/GoPolymarket/polygate/internal/rpccap"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPC is a minimal in-memory RpcCap double for executor scenario tests.
type fakeRPC struct {
	mu sync.Mutex

	nonceSeed map[common.Address]uint64

	estimateGasErr      error // returned exactly once, then cleared
	estimateGasOverride func(tx *coretypes.TxRequest) (uint64, error)

	sendErr      error // returned exactly once, then cleared
	sendOverride func(signed *gethtypes.Transaction) (common.Hash, error)

	receipts map[common.Hash]*coretypes.Receipt
	sent     []common.Hash
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		nonceSeed: make(map[common.Address]uint64),
		receipts:  make(map[common.Hash]*coretypes.Receipt),
	}
}

func (f *fakeRPC) GetNonce(ctx context.Context, addr common.Address, tag rpccap.BlockTag) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonceSeed[addr], nil
}

func (f *fakeRPC) EstimateGas(ctx context.Context, tx *coretypes.TxRequest) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.estimateGasOverride != nil {
		return f.estimateGasOverride(tx)
	}
	if f.estimateGasErr != nil {
		err := f.estimateGasErr
		f.estimateGasErr = nil
		return 0, err
	}
	return 21000, nil
}

func (f *fakeRPC) SendRaw(ctx context.Context, signed *gethtypes.Transaction) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendOverride != nil {
		return f.sendOverride(signed)
	}
	if f.sendErr != nil {
		err := f.sendErr
		f.sendErr = nil
		return common.Hash{}, err
	}
	hash := nextFakeHash()
	f.sent = append(f.sent, hash)
	return hash, nil
}

func (f *fakeRPC) GetReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[txHash], nil
}

func (f *fakeRPC) SendMany(ctx context.Context, signed []*gethtypes.Transaction) ([]rpccap.SendResult, error) {
	return nil, nil
}

func (f *fakeRPC) setReceipt(hash common.Hash, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = &coretypes.Receipt{TxHash: hash, Status: status, BlockNumber: 1}
}

// nextFakeHash hands out distinct tx hashes across a test run, standing in
// for the real hash a signed transaction would carry.
var fakeHashCounter int64

func nextFakeHash() common.Hash {
	n := atomic.AddInt64(&fakeHashCounter, 1)
	return common.BigToHash(big.NewInt(n))
}

// fakeSigner signs nothing cryptographically real; it just stamps the
// request so VerifyTx can check round-trip identity, matching the shape
// of a cheap self-verification step without pulling in real ECDSA math.
type fakeSigner struct {
	addr        common.Address
	verifyFails bool
}

func (s *fakeSigner) Address() common.Address { return s.addr }

func (s *fakeSigner) SignTx(tx *coretypes.TxRequest) (*gethtypes.Transaction, error) {
	inner := &gethtypes.LegacyTx{
		Nonce:    tx.Nonce,
		To:       &tx.To,
		Value:    tx.Value.ToBig(),
		Gas:      tx.GasLimit,
		GasPrice: mustBig(tx.GasPrice),
		Data:     tx.Data,
	}
	return gethtypes.NewTx(inner), nil
}

func (s *fakeSigner) VerifyTx(signed *gethtypes.Transaction, expected common.Address) bool {
	return !s.verifyFails
}

func mustBig(v *uint256.Int) *big.Int {
	if v == nil {
		return nil
	}
	return v.ToBig()
}

type capturingSink struct {
	mu        sync.Mutex
	mempooled []events.Mempooled
	errored   []events.Error
}

func (s *capturingSink) OnMempooled(e events.Mempooled) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mempooled = append(s.mempooled, e)
}
func (s *capturingSink) OnConfirmed(events.Confirmed) {}
func (s *capturingSink) OnError(e events.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errored = append(s.errored, e)
}

func newTxRequest(from common.Address) *coretypes.TxRequest {
	return &coretypes.TxRequest{
		From:     from,
		To:       common.HexToAddress("0xBEEF"),
		Value:    uint256.NewInt(0),
		Data:     nil,
		ChainID:  uint256.NewInt(1),
		Variant:  coretypes.Legacy,
		GasPrice: uint256.NewInt(1_000_000_000),
	}
}

func TestDirectExecutor_HappyPath(t *testing.T) {
	from := common.HexToAddress("0xA")
	rpc := newFakeRPC()
	rpc.nonceSeed[from] = 42
	signer := &fakeSigner{addr: from}
	sink := &capturingSink{}
	tr := tracker.New(rpc, sink, tracker.Options{PollInterval: time.Millisecond})
	mgr := noncemgr.New(rpc)
	ex := NewDirectExecutor(mgr, rpc, signer, tr, sink)

	params := &coretypes.TxRequestParams{RequestID: "r1", Tx: newTxRequest(from), EstimateGas: true}
	hash, err := ex.Submit(context.Background(), params)
	require.NoError(t, err)

	require.Len(t, sink.mempooled, 1)
	assert.Equal(t, "r1", sink.mempooled[0].RequestID)
	assert.Equal(t, hash, sink.mempooled[0].TxHash)
	assert.Empty(t, sink.errored)

	lease, err := mgr.Lock(context.Background(), from)
	require.NoError(t, err)
	assert.Equal(t, uint64(43), lease.NextNonce())
	lease.Release()
}

func TestDirectExecutor_EstimateFailureResetsNonce(t *testing.T) {
	from := common.HexToAddress("0xB")
	rpc := newFakeRPC()
	rpc.nonceSeed[from] = 7
	rpc.estimateGasErr = fmt.Errorf("estimate_gas: execution reverted")
	signer := &fakeSigner{addr: from}
	sink := &capturingSink{}
	tr := tracker.New(rpc, sink, tracker.Options{PollInterval: time.Millisecond})
	mgr := noncemgr.New(rpc)
	ex := NewDirectExecutor(mgr, rpc, signer, tr, sink)

	_, err := ex.Submit(context.Background(), &coretypes.TxRequestParams{RequestID: "r1", Tx: newTxRequest(from), EstimateGas: true})
	require.Error(t, err)
	var coreErr *coretypes.CoreError
	require.ErrorAs(t, err, &coreErr)
	assert.Equal(t, coretypes.CodeGasEstimateError, coreErr.Code)

	hash, err := ex.Submit(context.Background(), &coretypes.TxRequestParams{RequestID: "r2", Tx: newTxRequest(from), EstimateGas: true})
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	lease, err := mgr.Lock(context.Background(), from)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), lease.NextNonce())
	lease.Release()

	require.Len(t, sink.errored, 1)
	assert.Equal(t, "r1", sink.errored[0].RequestID)
}

func TestQueuedExecutor_BackPressureOrdersCompletionByComplete(t *testing.T) {
	from := common.HexToAddress("0xC")
	rpc := newFakeRPC()
	rpc.nonceSeed[from] = 1
	signer := &fakeSigner{addr: from}
	sink := &capturingSink{}
	tr := tracker.New(rpc, sink, tracker.Options{PollInterval: time.Millisecond})
	mgr := noncemgr.New(rpc)
	seqRegistry := registry.NewSequencerRegistry(sequencer.Options{Capacity: 2})
	pending := registry.NewPendingRequestRegistry()
	ex := NewQueuedExecutor(mgr, rpc, signer, tr, sink, seqRegistry, pending)

	// Simulate a chain that confirms each mempooled tx almost immediately,
	// so the sequencer's wait-for-Complete gate unblocks the next slot —
	// the only way three submissions in a 2-deep queue all drain.
	confirmedUpTo := 0
	stopWatch := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopWatch:
				return
			default:
			}
			sink.mu.Lock()
			for ; confirmedUpTo < len(sink.mempooled); confirmedUpTo++ {
				rpc.setReceipt(sink.mempooled[confirmedUpTo].TxHash, 1)
			}
			sink.mu.Unlock()
			time.Sleep(time.Millisecond)
		}
	}()
	defer close(stopWatch)

	var wg sync.WaitGroup
	results := make([]common.Hash, 3)
	errs := make([]error, 3)
	for i, id := range []string{"r1", "r2", "r3"} {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := ex.Submit(context.Background(), &coretypes.TxRequestParams{RequestID: id, Tx: newTxRequest(from), EstimateGas: true})
			results[i] = h
			errs[i] = err
		}()
		time.Sleep(10 * time.Millisecond) // keep submission order deterministic
	}
	wg.Wait()

	for i, err := range errs {
		require.NoErrorf(t, err, "submission %d", i)
	}

	sink.mu.Lock()
	var order []string
	for _, m := range sink.mempooled {
		order = append(order, m.RequestID)
	}
	sink.mu.Unlock()
	assert.Equal(t, []string{"r1", "r2", "r3"}, order)
}

func TestQueuedExecutor_CancelWhileQueued(t *testing.T) {
	from := common.HexToAddress("0xD")
	rpc := newFakeRPC()
	rpc.nonceSeed[from] = 1
	signer := &fakeSigner{addr: from}
	sink := &capturingSink{}
	tr := tracker.New(rpc, sink, tracker.Options{PollInterval: time.Millisecond})
	mgr := noncemgr.New(rpc)
	seqRegistry := registry.NewSequencerRegistry(sequencer.Options{Capacity: 4})
	pending := registry.NewPendingRequestRegistry()
	ex := NewQueuedExecutor(mgr, rpc, signer, tr, sink, seqRegistry, pending)

	// r1 blocks in "submit" until we let it go, keeping r2 Queued.
	block := make(chan struct{})
	rpc.sendOverride = func(signed *gethtypes.Transaction) (common.Hash, error) {
		<-block
		return nextFakeHash(), nil
	}

	var r1Err error
	go func() {
		_, r1Err = ex.Submit(context.Background(), &coretypes.TxRequestParams{RequestID: "r1", Tx: newTxRequest(from), EstimateGas: true})
	}()
	time.Sleep(20 * time.Millisecond) // let r1 start submitting

	r2Done := make(chan error, 1)
	go func() {
		_, err := ex.Submit(context.Background(), &coretypes.TxRequestParams{RequestID: "r2", Tx: newTxRequest(from), EstimateGas: true})
		r2Done <- err
	}()
	time.Sleep(20 * time.Millisecond) // let r2 enter Queued

	ok := ex.TryCancel("r2")
	assert.True(t, ok)

	select {
	case err := <-r2Done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("canceled request never resolved")
	}

	close(block)
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, r1Err)
}

func TestDirectExecutor_NonceTooLowTriggersReseed(t *testing.T) {
	from := common.HexToAddress("0xE")
	rpc := newFakeRPC()
	rpc.nonceSeed[from] = 5
	rpc.sendErr = fmt.Errorf("nonce too low")
	signer := &fakeSigner{addr: from}
	sink := &capturingSink{}
	tr := tracker.New(rpc, sink, tracker.Options{PollInterval: time.Millisecond})
	mgr := noncemgr.New(rpc)
	ex := NewDirectExecutor(mgr, rpc, signer, tr, sink)

	_, err := ex.Submit(context.Background(), &coretypes.TxRequestParams{RequestID: "r1", Tx: newTxRequest(from), EstimateGas: true})
	require.Error(t, err)

	rpc.nonceSeed[from] = 99 // chain has moved on by the time we re-fetch
	hash, err := ex.Submit(context.Background(), &coretypes.TxRequestParams{RequestID: "r2", Tx: newTxRequest(from), EstimateGas: true})
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	lease, err := mgr.Lock(context.Background(), from)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), lease.NextNonce())
	lease.Release()
}

func TestTracker_FanOutIndependentOfSubmissionOrder(t *testing.T) {
	fromA := common.HexToAddress("0xF1")
	fromB := common.HexToAddress("0xF2")
	rpc := newFakeRPC()
	rpc.nonceSeed[fromA] = 1
	rpc.nonceSeed[fromB] = 1
	sink := &capturingSink{}
	tr := tracker.New(rpc, sink, tracker.Options{PollInterval: time.Millisecond})
	mgrA := noncemgr.New(rpc)
	exA := NewDirectExecutor(mgrA, rpc, &fakeSigner{addr: fromA}, tr, sink)
	exB := NewDirectExecutor(mgrA, rpc, &fakeSigner{addr: fromB}, tr, sink)

	hashA, err := exA.Submit(context.Background(), &coretypes.TxRequestParams{RequestID: "rA", Tx: newTxRequest(fromA), EstimateGas: true})
	require.NoError(t, err)
	hashB, err := exB.Submit(context.Background(), &coretypes.TxRequestParams{RequestID: "rB", Tx: newTxRequest(fromB), EstimateGas: true})
	require.NoError(t, err)

	// Resolve in reverse submission order.
	rpc.setReceipt(hashB, 1)
	rpc.setReceipt(hashA, 1)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !(tr.Watching(hashA) == false && tr.Watching(hashB) == false) {
		time.Sleep(5 * time.Millisecond)
	}

	assert.False(t, tr.Watching(hashA))
	assert.False(t, tr.Watching(hashB))
}
