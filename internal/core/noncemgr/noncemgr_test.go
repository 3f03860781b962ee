package noncemgr

import (
	"context"
	"fmt"
	"sync"
	"testing"

	coretypes "github.com/GoPolymarket/polygate/internal/core/types"
	"github.com/GoPolymarket/polygate/internal/rpccap"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRPC is a minimal rpccap.RpcCap double used for nonce-manager tests.
type stubRPC struct {
	mu   sync.Mutex
	seed uint64
}

func (s *stubRPC) GetNonce(ctx context.Context, addr common.Address, tag rpccap.BlockTag) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed, nil
}
func (s *stubRPC) EstimateGas(ctx context.Context, tx *coretypes.TxRequest) (uint64, error) {
	return 21000, nil
}
func (s *stubRPC) SendRaw(ctx context.Context, signed *gethtypes.Transaction) (common.Hash, error) {
	return common.Hash{}, nil
}
func (s *stubRPC) GetReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	return nil, nil
}
func (s *stubRPC) SendMany(ctx context.Context, signed []*gethtypes.Transaction) ([]rpccap.SendResult, error) {
	return nil, nil
}

func TestLease_MonotoneNoHoles(t *testing.T) {
	addr := common.HexToAddress("0xA")
	mgr := New(&stubRPC{seed: 42})

	var nonces []uint64
	for i := 0; i < 5; i++ {
		lease, err := mgr.Lock(context.Background(), addr)
		require.NoError(t, err)
		nonces = append(nonces, lease.NextNonce())
		lease.Release()
	}

	assert.Equal(t, []uint64{42, 43, 44, 45, 46}, nonces)
}

func TestLease_ResetOnFailure(t *testing.T) {
	addr := common.HexToAddress("0xB")
	mgr := New(&stubRPC{seed: 7})

	lease, err := mgr.Lock(context.Background(), addr)
	require.NoError(t, err)
	failedNonce := lease.NextNonce()
	lease.Reset(failedNonce)
	lease.Release()

	lease2, err := mgr.Lock(context.Background(), addr)
	require.NoError(t, err)
	retryNonce := lease2.NextNonce()
	lease2.Release()

	assert.Equal(t, failedNonce, retryNonce)
}

func TestLease_MutualExclusion(t *testing.T) {
	addr := common.HexToAddress("0xC")
	mgr := New(&stubRPC{seed: 0})

	lease, err := mgr.Lock(context.Background(), addr)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		l2, err := mgr.Lock(context.Background(), addr)
		require.NoError(t, err)
		close(acquired)
		l2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first lease still held")
	default:
	}

	lease.Release()
	<-acquired
}

func TestForget_ReseedsFromChain(t *testing.T) {
	addr := common.HexToAddress("0xD")
	rpcFake := &stubRPC{seed: 10}
	mgr := New(rpcFake)

	lease, err := mgr.Lock(context.Background(), addr)
	require.NoError(t, err)
	lease.NextNonce()
	lease.Release()

	rpcFake.mu.Lock()
	rpcFake.seed = 99 // chain moved on
	rpcFake.mu.Unlock()
	mgr.Forget(addr)

	lease2, err := mgr.Lock(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), lease2.NextNonce())
	lease2.Release()
}

func TestReseedOnceOnNonceTooLow_OnlyOncePerFailure(t *testing.T) {
	addr := common.HexToAddress("0xE")
	rpcFake := &stubRPC{seed: 1}
	mgr := New(rpcFake)

	lease, err := mgr.Lock(context.Background(), addr)
	require.NoError(t, err)
	lease.Release()

	rpcFake.mu.Lock()
	rpcFake.seed = 55
	rpcFake.mu.Unlock()

	mgr.ReseedOnceOnNonceTooLow(addr)
	mgr.ReseedOnceOnNonceTooLow(addr) // second call is a no-op

	lease2, err := mgr.Lock(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(55), lease2.NextNonce())
	lease2.Release()
}

func TestIsNonceTooLow(t *testing.T) {
	assert.True(t, IsNonceTooLow(fmt.Errorf("execution reverted: nonce too low")))
	assert.False(t, IsNonceTooLow(fmt.Errorf("replacement transaction underpriced")))
	assert.False(t, IsNonceTooLow(nil))
}
