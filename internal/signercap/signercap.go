// Package signercap exposes the SignerCap capability the executor depends
// on: given an unsigned transaction, produce signature bytes and expose an
// address. Private key custody is explicitly out of scope for this
// package's callers — a Signer is constructed once, at startup, from the
// original gateway's key material.
package signercap

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	coretypes "github.com/GoPolymarket/polygate/internal/core/types"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// SignerCap is the capability the executor pipeline depends on.
type SignerCap interface {
	Address() common.Address
	SignTx(tx *coretypes.TxRequest) (*gethtypes.Transaction, error)
	// VerifyTx recomputes the sender from a signed transaction's signature
	// and reports whether it matches the expected from-address; this is the
	// cheap self-verification step the pipeline runs after signing.
	VerifyTx(signed *gethtypes.Transaction, expected common.Address) bool
}

// Signer is the concrete SignerCap backed by an in-process ECDSA key, the
// same key material the original gateway's fast-path signer used.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner builds a Signer from a hex-encoded (no 0x prefix) private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("signercap: private key is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("signercap: invalid private key: %w", err)
	}
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signercap: failed to derive public key")
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(*pub)}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) SignTx(tx *coretypes.TxRequest) (*gethtypes.Transaction, error) {
	chainID := u256ToBig(tx.ChainID)
	var inner gethtypes.TxData
	switch tx.Variant {
	case coretypes.Legacy:
		inner = &gethtypes.LegacyTx{
			Nonce:    tx.Nonce,
			To:       &tx.To,
			Value:    u256ToBig(tx.Value),
			Gas:      tx.GasLimit,
			GasPrice: u256ToBig(tx.GasPrice),
			Data:     tx.Data,
		}
	case coretypes.EIP1559:
		inner = &gethtypes.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     tx.Nonce,
			To:        &tx.To,
			Value:     u256ToBig(tx.Value),
			Gas:       tx.GasLimit,
			GasFeeCap: u256ToBig(tx.MaxFeePerGas),
			GasTipCap: u256ToBig(tx.MaxPriorityFeePerGas),
			Data:      tx.Data,
		}
	default:
		return nil, fmt.Errorf("signercap: unknown tx variant %d", tx.Variant)
	}

	unsigned := gethtypes.NewTx(inner)
	signer := gethtypes.LatestSignerForChainID(chainID)
	signed, err := gethtypes.SignTx(unsigned, signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("signercap: sign failed: %w", err)
	}
	return signed, nil
}

func (s *Signer) VerifyTx(signed *gethtypes.Transaction, expected common.Address) bool {
	signer := gethtypes.LatestSignerForChainID(signed.ChainId())
	recovered, err := gethtypes.Sender(signer, signed)
	if err != nil {
		return false
	}
	return recovered == expected
}

func u256ToBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}
