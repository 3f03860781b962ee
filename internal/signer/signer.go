// Package signer computes the EIP-712 order hash and signature for a
// clob.Order — the maker-order analogue of signercap's transaction
// signer, kept as its own package because order signing is off the hot
// tx-submission path and has its own domain separator.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/polygate/internal/clob"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// decimalToBig converts an atomic-unit amount to its integer big.Int form;
// amounts entering the signer are always whole token-unit quantities.
func decimalToBig(d decimal.Decimal) *big.Int {
	return d.BigInt()
}

type Signer struct {
	key             *ecdsa.PrivateKey
	address         common.Address
	chainID         *big.Int
	domainSeparator common.Hash
}

// NewSigner creates a new EIP-712 signer with pre-calculated domain separator
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}

	publicKey := key.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}
	address := crypto.PubkeyToAddress(*publicKeyECDSA)

	// keccak256(abi.encode(EIP712DomainTypeHash, keccak256(name), keccak256(version), chainId, verifyingContract))
	domainNameHash := crypto.Keccak256Hash([]byte(EIP712DomainName))
	versionHash := crypto.Keccak256Hash([]byte(EIP712DomainVersion))

	// Manual ABI encode for the domain separator to avoid reflection overhead;
	// all fields are 32 bytes.
	domainData := make([]byte, 32*5)
	copy(domainData[0:32], EIP712DomainTypeHash.Bytes())
	copy(domainData[32:64], domainNameHash.Bytes())
	copy(domainData[64:96], versionHash.Bytes())
	copy(domainData[96:128], math.U256Bytes(big.NewInt(chainID)))
	verifyingAddr := common.HexToAddress(ExchangeContractAddress)
	copy(domainData[128+12:160], verifyingAddr.Bytes())

	domainSeparator := crypto.Keccak256Hash(domainData)

	return &Signer{
		key:             key,
		address:         address,
		chainID:         big.NewInt(chainID),
		domainSeparator: domainSeparator,
	}, nil
}

// SignOrder computes the EIP-712 hash of order and returns its 65-byte
// signature as a 0x-prefixed hex string.
func (s *Signer) SignOrder(order *clob.Order) (string, error) {
	hashStruct := s.hashOrder(order)

	// EIP-191 hash: keccak256("\x19\x01" + domainSeparator + hashStruct)
	finalHash := crypto.Keccak256([]byte{0x19, 0x01}, s.domainSeparator.Bytes(), hashStruct)

	signature, err := crypto.Sign(finalHash, s.key)
	if err != nil {
		return "", err
	}

	// crypto.Sign returns [R || S || V] with V in {0,1}; EIP-712 verifiers
	// expect the legacy 27/28 recovery id.
	if signature[64] < 27 {
		signature[64] += 27
	}

	return "0x" + common.Bytes2Hex(signature), nil
}

// hashOrder computes hashStruct(order) = keccak256(abi.encode(typeHash, salt, maker, ...)).
func (s *Signer) hashOrder(order *clob.Order) []byte {
	// 12 fields + typeHash = 13 words * 32 bytes = 416 bytes.
	data := make([]byte, 32*13)

	copy(data[0:32], OrderTypeHash.Bytes())

	if order.Salt != nil {
		copy(data[32:64], order.Salt.Bytes32()[:])
	}
	copy(data[64+12:96], order.Maker.Bytes())
	copy(data[96+12:128], order.Signer.Bytes())
	copy(data[128+12:160], order.Taker.Bytes())
	if order.TokenID != nil {
		copy(data[160:192], order.TokenID.Bytes32()[:])
	}
	copy(data[192:224], math.U256Bytes(decimalToBig(order.MakerAmount)))
	copy(data[224:256], math.U256Bytes(decimalToBig(order.TakerAmount)))
	if order.Expiration != nil {
		copy(data[256:288], order.Expiration.Bytes32()[:])
	}
	if order.Nonce != nil {
		copy(data[288:320], order.Nonce.Bytes32()[:])
	}
	copy(data[320:352], math.U256Bytes(decimalToBig(order.FeeRateBps)))
	copy(data[352:384], math.U256Bytes(big.NewInt(int64(order.Side))))
	copy(data[384:416], math.U256Bytes(big.NewInt(int64(order.SignatureType))))

	return crypto.Keccak256(data)
}

func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain this signer's domain separator was built for.
func (s *Signer) ChainID() int64 {
	return s.chainID.Int64()
}
