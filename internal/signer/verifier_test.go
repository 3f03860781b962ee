package signer

import (
	"testing"

	"github.com/GoPolymarket/polygate/internal/clob"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestVerifyOrderSignature(t *testing.T) {
	key, _ := crypto.GenerateKey()
	keyBytes := crypto.FromECDSA(key)
	keyHex := hexutil.Encode(keyBytes)[2:]

	s, err := NewSigner(keyHex, 137)
	assert.NoError(t, err)
	signerAddr := s.Address()

	order := &clob.Order{
		Salt:          uint256.NewInt(123),
		Maker:         signerAddr,
		Signer:        signerAddr,
		Taker:         common.Address{},
		TokenID:       uint256.NewInt(999),
		MakerAmount:   decimal.NewFromInt(1000000),
		TakerAmount:   decimal.NewFromInt(500000),
		Expiration:    uint256.NewInt(1800000000),
		Nonce:         uint256.NewInt(1),
		FeeRateBps:    decimal.Zero,
		Side:          clob.Buy,
		SignatureType: clob.SignatureEOA,
	}

	sig, err := s.SignOrder(order)
	assert.NoError(t, err)

	err = VerifyOrderSignature(order, sig, signerAddr.Hex(), 137)
	assert.NoError(t, err)

	wrongAddr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	err = VerifyOrderSignature(order, sig, wrongAddr.Hex(), 137)
	assert.Error(t, err)
}
