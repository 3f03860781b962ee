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

func TestSigner_SignOrder(t *testing.T) {
	key, _ := crypto.GenerateKey()
	keyBytes := crypto.FromECDSA(key)
	keyHex := hexutil.Encode(keyBytes)[2:] // Remove 0x

	s, err := NewSigner(keyHex, 137)
	assert.NoError(t, err)

	order := &clob.Order{
		Salt:          uint256.NewInt(123),
		Maker:         s.Address(),
		Signer:        s.Address(),
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
	assert.NotEmpty(t, sig)
	assert.Equal(t, 132, len(sig)) // 0x + 65 bytes * 2 = 132
}

func BenchmarkSignOrder(b *testing.B) {
	key, _ := crypto.GenerateKey()
	keyBytes := crypto.FromECDSA(key)
	keyHex := hexutil.Encode(keyBytes)[2:]

	s, _ := NewSigner(keyHex, 137)

	order := &clob.Order{
		Salt:          uint256.NewInt(123),
		Maker:         s.Address(),
		Signer:        s.Address(),
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

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.SignOrder(order)
	}
}
