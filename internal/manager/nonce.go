package manager

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/GoPolymarket/polygate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// nonceOfSelector is keccak256("nonces(address)")[:4], the CTF Exchange's
// read-only accessor for an order maker's current nonce.
var nonceOfSelector = []byte{0x7e, 0xce, 0xbe, 0x00}

// NonceManager handles both Ethereum Transaction Nonces (for txs) and Exchange Nonces (for orders).
// The tx-nonce half is retained as reference only now that internal/core/noncemgr
// owns tx-nonce assignment for the executor pipeline; GatewayService uses this
// type solely for its exchange-nonce cache.
type NonceManager struct {
	client      *ethclient.Client
	exchangeAddr common.Address

	// Transaction Nonces (Optimistic)
	txNonces map[common.Address]uint64
	txMu     sync.RWMutex

	// Exchange Nonces (Cached, Read-mostly)
	// These are the values stored in the CTF Exchange contract: nonces(user)
	exchangeNonces map[common.Address]*big.Int
	exchangeMu     sync.RWMutex
}

func NewNonceManager(rpcURL string) (*NonceManager, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to eth client: %w", err)
	}

	return &NonceManager{
		client:         client,
		txNonces:       make(map[common.Address]uint64),
		exchangeNonces: make(map[common.Address]*big.Int),
	}, nil
}

// SetExchangeAddress points SyncExchangeNonce's eth_call at the given CTF
// Exchange contract; until called, the cache defaults every address to 0.
func (m *NonceManager) SetExchangeAddress(addr common.Address) {
	m.exchangeMu.Lock()
	defer m.exchangeMu.Unlock()
	m.exchangeAddr = addr
}

// --- Ethereum Transaction Nonce (Optimistic) ---

// GetNextTxNonce returns the next expected nonce for a transaction.
// If it's the first time, it fetches from chain.
func (m *NonceManager) GetNextTxNonce(ctx context.Context, addr common.Address) (uint64, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	nonce, ok := m.txNonces[addr]
	if ok {
		return nonce, nil
	}

	// Fetch from chain (Pending to be safe, or Latest)
	// Using PendingNonceAt to account for mempool
	fetched, err := m.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	m.txNonces[addr] = fetched
	return fetched, nil
}

// IncrementTxNonce manually increments the local nonce. 
// Call this AFTER successfully signing/broadcasting a transaction.
func (m *NonceManager) IncrementTxNonce(addr common.Address) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if _, ok := m.txNonces[addr]; ok {
		m.txNonces[addr]++
	}
}

// ResetTxNonce forces a re-sync from the chain.
// Call this if you get "Nonce too low" or "Replacement transaction underpriced".
func (m *NonceManager) ResetTxNonce(ctx context.Context, addr common.Address) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	fetched, err := m.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return err
	}
	m.txNonces[addr] = fetched
	logger.Info("Reset TX nonce", "address", addr.Hex(), "nonce", fetched)
	return nil
}

// --- CTF Exchange Nonce (Cached) ---

// GetExchangeNonce returns the current valid nonce for Orders.
// For standard CTF Exchange, Order.Nonce must EQUAL the contract's nonces(maker).
func (m *NonceManager) GetExchangeNonce(ctx context.Context, addr common.Address) (*big.Int, error) {
	m.exchangeMu.RLock()
	cached, ok := m.exchangeNonces[addr]
	m.exchangeMu.RUnlock()
	if ok {
		return cached, nil
	}

	return m.SyncExchangeNonce(ctx, addr)
}

// SyncExchangeNonce forces a fetch of the Exchange Nonce from the contract
// via eth_call against nonces(address); with no exchange address configured
// it falls back to 0, correct for a fresh account.
func (m *NonceManager) SyncExchangeNonce(ctx context.Context, addr common.Address) (*big.Int, error) {
	m.exchangeMu.Lock()
	defer m.exchangeMu.Unlock()

	if m.exchangeAddr == (common.Address{}) {
		val := big.NewInt(0)
		m.exchangeNonces[addr] = val
		return val, nil
	}

	data := append(append([]byte{}, nonceOfSelector...), common.LeftPadBytes(addr.Bytes(), 32)...)
	msg := ethereum.CallMsg{To: &m.exchangeAddr, Data: data}
	res, err := m.client.CallContract(ctx, msg, nil)
	if err != nil {
		logger.Warn("failed to fetch exchange nonce, defaulting to 0", "address", addr.Hex(), "error", err)
		val := big.NewInt(0)
		m.exchangeNonces[addr] = val
		return val, nil
	}
	val := new(big.Int).SetBytes(res)
	m.exchangeNonces[addr] = val
	return val, nil
}

// InvalidateExchangeNonce increments the cached exchange nonce.
// Call this when you send a "Cancel All" transaction.
func (m *NonceManager) InvalidateExchangeNonce(addr common.Address) {
	m.exchangeMu.Lock()
	defer m.exchangeMu.Unlock()
	
	if val, ok := m.exchangeNonces[addr]; ok {
		// Incrementing locally so new orders use the new nonce immediately
		// even before the CancelAll tx is mined (Optimistic!)
		m.exchangeNonces[addr] = new(big.Int).Add(val, big.NewInt(1))
	}
}
