package signer

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/GoPolymarket/polygate/internal/clob"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// BuildTypedData renders order as the EIP-712 typed data structure a
// wallet (or this package's own signature recovery) hashes, using the
// exact domain and field layout the order's OrderTypeHash commits to.
func BuildTypedData(order *clob.Order, signerAddr common.Address, chainID int64) (apitypes.TypedData, error) {
	if order == nil {
		return apitypes.TypedData{}, fmt.Errorf("order is required")
	}
	domain := apitypes.TypedDataDomain{
		Name:              EIP712DomainName,
		Version:           EIP712DomainVersion,
		ChainId:           (*math.HexOrDecimal256)(big.NewInt(chainID)),
		VerifyingContract: ExchangeContractAddress,
	}
	typesDef := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"Order": {
			{Name: "salt", Type: "uint256"},
			{Name: "maker", Type: "address"},
			{Name: "signer", Type: "address"},
			{Name: "taker", Type: "address"},
			{Name: "tokenId", Type: "uint256"},
			{Name: "makerAmount", Type: "uint256"},
			{Name: "takerAmount", Type: "uint256"},
			{Name: "expiration", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
			{Name: "feeRateBps", Type: "uint256"},
			{Name: "side", Type: "uint8"},
			{Name: "signatureType", Type: "uint8"},
		},
	}

	message := apitypes.TypedDataMessage{
		"salt":          (*math.HexOrDecimal256)(order.Salt.ToBig()),
		"maker":         order.Maker.String(),
		"signer":        signerAddr.String(),
		"taker":         order.Taker.String(),
		"tokenId":       (*math.HexOrDecimal256)(order.TokenID.ToBig()),
		"makerAmount":   (*math.HexOrDecimal256)(decimalToBig(order.MakerAmount)),
		"takerAmount":   (*math.HexOrDecimal256)(decimalToBig(order.TakerAmount)),
		"expiration":    (*math.HexOrDecimal256)(order.Expiration.ToBig()),
		"nonce":         (*math.HexOrDecimal256)(order.Nonce.ToBig()),
		"feeRateBps":    (*math.HexOrDecimal256)(decimalToBig(order.FeeRateBps)),
		"side":          (*math.HexOrDecimal256)(big.NewInt(int64(order.Side))),
		"signatureType": (*math.HexOrDecimal256)(big.NewInt(int64(order.SignatureType))),
	}

	return apitypes.TypedData{
		Types:       typesDef,
		PrimaryType: "Order",
		Domain:      domain,
		Message:     message,
	}, nil
}

// TypedDataHash exposes the EIP-712 digest order would hash to, for
// callers (such as EIP-1271 contract-signature verification) that need
// the raw hash rather than a recovered address.
func TypedDataHash(order *clob.Order, signerAddr common.Address, chainID int64) ([]byte, error) {
	return typedDataHash(order, signerAddr, chainID)
}

func typedDataHash(order *clob.Order, signerAddr common.Address, chainID int64) ([]byte, error) {
	typedData, err := BuildTypedData(order, signerAddr, chainID)
	if err != nil {
		return nil, err
	}
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, err
	}
	return hash, nil
}

// VerifyOrderSignature recovers the signer from signature over order's
// EIP-712 hash and reports whether it matches signerAddr.
func VerifyOrderSignature(order *clob.Order, signature string, signerAddr string, chainID int64) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if signature == "" {
		return fmt.Errorf("signature is required")
	}
	if !common.IsHexAddress(signerAddr) {
		return fmt.Errorf("invalid signer address")
	}
	expected := common.HexToAddress(signerAddr)
	hash, err := typedDataHash(order, expected, chainID)
	if err != nil {
		return fmt.Errorf("failed to hash typed data: %w", err)
	}
	rawSig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding")
	}
	if len(rawSig) != 65 {
		return fmt.Errorf("invalid signature length")
	}
	if rawSig[64] >= 27 {
		rawSig[64] -= 27
	}
	pub, err := crypto.SigToPub(hash, rawSig)
	if err != nil {
		return fmt.Errorf("signature recovery failed")
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != expected {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// SignatureTypeSupported reports whether sigType names one of the two
// signature schemes this deployment currently verifies; Gnosis Safe
// signatures require a contract call this package does not make and are
// rejected up front rather than silently mis-verified.
func SignatureTypeSupported(sigType *int) bool {
	if sigType == nil {
		return true
	}
	switch clob.SignatureType(*sigType) {
	case clob.SignatureEOA, clob.SignatureProxy:
		return true
	default:
		return false
	}
}

func sideFromString(s string) clob.Side {
	if strings.EqualFold(s, "SELL") {
		return clob.Sell
	}
	return clob.Buy
}
