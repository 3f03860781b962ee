// Package rpccap exposes the RpcCap capability: the thin outbound contract
// the nonce manager, executor and tracker use to talk to a JSON-RPC node.
// HTTP batching, connection pooling and failover are the JSON-RPC client's
// own concern and stay out of this package, per spec.md §1.
package rpccap

import (
	"context"
	"fmt"
	"math/big"

	coretypes "github.com/GoPolymarket/polygate/internal/core/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
)

// BlockTag mirrors the "pending"/"latest" tags RPC nodes accept.
type BlockTag string

const (
	Pending BlockTag = "pending"
	Latest  BlockTag = "latest"
)

// RpcCap is the capability surface the core depends on.
type RpcCap interface {
	GetNonce(ctx context.Context, addr common.Address, tag BlockTag) (uint64, error)
	EstimateGas(ctx context.Context, tx *coretypes.TxRequest) (uint64, error)
	SendRaw(ctx context.Context, signed *gethtypes.Transaction) (common.Hash, error)
	GetReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
	SendMany(ctx context.Context, signed []*gethtypes.Transaction) ([]SendResult, error)
}

// SendResult is one entry of a batched send, per spec.md §4.6.
type SendResult struct {
	TxHash common.Hash
	Err    error
}

// Client is the concrete RpcCap backed by go-ethereum's ethclient, the same
// client the original gateway's nonce manager dialed directly.
type Client struct {
	eth *ethclient.Client
}

func Dial(rpcURL string) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("rpccap: failed to dial rpc: %w", err)
	}
	return &Client{eth: eth}, nil
}

func NewClient(eth *ethclient.Client) *Client {
	return &Client{eth: eth}
}

func (c *Client) GetNonce(ctx context.Context, addr common.Address, tag BlockTag) (uint64, error) {
	switch tag {
	case Latest:
		return c.eth.NonceAt(ctx, addr, nil)
	default:
		return c.eth.PendingNonceAt(ctx, addr)
	}
}

func (c *Client) EstimateGas(ctx context.Context, tx *coretypes.TxRequest) (uint64, error) {
	msg := ethereum.CallMsg{
		From:  tx.From,
		To:    &tx.To,
		Value: u256ToBig(tx.Value),
		Data:  tx.Data,
	}
	if tx.Variant == coretypes.EIP1559 {
		msg.GasFeeCap = u256ToBig(tx.MaxFeePerGas)
		msg.GasTipCap = u256ToBig(tx.MaxPriorityFeePerGas)
	} else {
		msg.GasPrice = u256ToBig(tx.GasPrice)
	}
	return c.eth.EstimateGas(ctx, msg)
}

func (c *Client) SendRaw(ctx context.Context, signed *gethtypes.Transaction) (common.Hash, error) {
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

func (c *Client) GetReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	r, err := c.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, nil
		}
		return nil, err
	}
	return &coretypes.Receipt{
		TxHash:      r.TxHash,
		Status:      r.Status,
		BlockNumber: r.BlockNumber.Uint64(),
		GasUsed:     r.GasUsed,
		Logs:        r.Logs,
	}, nil
}

// SendMany sends each transaction in sequence and collects per-tx results;
// the underlying JSON-RPC client is responsible for actual request
// batching, this just gives callers a single Vec<Result>-shaped return.
func (c *Client) SendMany(ctx context.Context, signed []*gethtypes.Transaction) ([]SendResult, error) {
	results := make([]SendResult, len(signed))
	for i, tx := range signed {
		hash, err := c.SendRaw(ctx, tx)
		results[i] = SendResult{TxHash: hash, Err: err}
	}
	return results, nil
}

// SuggestedFees reads eth_maxPriorityFeePerGas and the pending block's
// baseFeePerGas, the two inputs an EIP-1559 gas-price poller needs; gas
// price polling itself is an external collaborator's concern per
// spec.md §1, this is the thin RPC surface it would call through.
func (c *Client) SuggestedFees(ctx context.Context) (tip *uint256.Int, baseFee *uint256.Int, err error) {
	tipBig, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("rpccap: suggest tip cap: %w", err)
	}
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("rpccap: header by number: %w", err)
	}
	tip, _ = uint256.FromBig(tipBig)
	if header.BaseFee != nil {
		baseFee, _ = uint256.FromBig(header.BaseFee)
	}
	return tip, baseFee, nil
}

func u256ToBig(v *uint256.Int) *big.Int {
	if v == nil {
		return nil
	}
	return v.ToBig()
}
