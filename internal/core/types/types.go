// Package types holds the data model shared by the nonce manager, sequencer,
// executor and tracker: the pre-signature intent (TxRequest), the unit a
// caller enqueues (TxRequestParams), the on-chain receipt, and the tagged
// error the core propagates across every boundary.
package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Variant tags whether a TxRequest carries legacy gas-price fields or
// EIP-1559 fee fields. Exactly one of the two field groups may be set.
type Variant uint8

const (
	Legacy Variant = iota
	EIP1559
)

// TxRequest is the pre-nonce, pre-signature intent to send a transaction.
// Nonce and GasLimit are filled in by the executor pipeline; everything
// else is supplied by the caller.
type TxRequest struct {
	From    common.Address
	To      common.Address
	Value   *uint256.Int
	Data    []byte
	ChainID *uint256.Int
	Variant Variant

	// Mutable, set by the pipeline.
	Nonce    uint64
	GasLimit uint64

	// Legacy.
	GasPrice *uint256.Int

	// EIP-1559.
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
}

// Validate enforces the send-time invariant from the data model: nonce is
// set (checked by the caller, not here, since zero is a valid nonce),
// gas limit is positive, and legacy/1559 fields are complete but not mixed.
func (t *TxRequest) Validate() error {
	if t.GasLimit == 0 {
		return fmt.Errorf("tx request: gas limit must be set before send")
	}
	switch t.Variant {
	case Legacy:
		if t.GasPrice == nil {
			return fmt.Errorf("tx request: legacy variant requires gas price")
		}
		if t.MaxFeePerGas != nil || t.MaxPriorityFeePerGas != nil {
			return fmt.Errorf("tx request: legacy variant must not carry 1559 fields")
		}
	case EIP1559:
		if t.MaxFeePerGas == nil || t.MaxPriorityFeePerGas == nil {
			return fmt.Errorf("tx request: eip1559 variant requires both fee caps")
		}
		if t.GasPrice != nil {
			return fmt.Errorf("tx request: eip1559 variant must not carry a legacy gas price")
		}
	default:
		return fmt.Errorf("tx request: unknown variant %d", t.Variant)
	}
	return nil
}

// TxRequestParams is the unit a caller enqueues: a TxRequest plus the
// caller-chosen correlation id and gas-estimation policy.
type TxRequestParams struct {
	RequestID         string
	Tx                *TxRequest
	EstimateGas       bool
	GasReservePercent uint32
}

// Receipt is the post-mining record of a transaction. Status is the raw
// on-chain value; per spec any non-zero status is success.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
	Logs        []*types.Log
}

// Successful reports whether the receipt represents a successful execution.
func (r *Receipt) Successful() bool {
	return r.Status != 0
}

// Error codes for CoreError, per spec.md §6/§7.
const (
	CodeTxSendError     int32 = 1
	CodeTxVerifyError   int32 = 2
	CodeNonceFetchError int32 = 3
	CodeGasEstimateError int32 = 4
	CodeTrackerPollError int32 = 5
	CodeQueueFullError   int32 = 6
	CodeCanceledError    int32 = 7
)

// CoreError is the tagged error value propagated across every core
// boundary instead of panics or language-level exceptions.
type CoreError struct {
	Code    int32
	Message string
	Cause   error
}

func NewCoreError(code int32, msg string, cause error) *CoreError {
	return &CoreError{Code: code, Message: msg, Cause: cause}
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Cause
}
