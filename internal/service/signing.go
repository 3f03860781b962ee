package service

import (
	"github.com/GoPolymarket/polygate/internal/clob"
	polysigner "github.com/GoPolymarket/polygate/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// buildTypedData and verifyOrderSignature delegate to the internal/signer
// package, which owns the order's EIP-712 domain and type hash; the
// gateway only needs their results, not the byte-layout details.
func buildTypedData(order *clob.Order, signer common.Address, chainID int64) (apitypes.TypedData, error) {
	return polysigner.BuildTypedData(order, signer, chainID)
}

func verifyOrderSignature(order *clob.Order, signature string, signerAddr string, chainID int64) error {
	return polysigner.VerifyOrderSignature(order, signature, signerAddr, chainID)
}

func signatureTypeSupported(sigType *int) bool {
	return polysigner.SignatureTypeSupported(sigType)
}
