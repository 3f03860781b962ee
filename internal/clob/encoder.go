package clob

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// exchangeABI covers the handful of exchange-contract selectors this
// module actually calls. Full ABI scaffolding (event decoding, the rest
// of the exchange's surface) is out of scope — these are the calls a
// Request variant can produce.
var exchangeABI = mustParseABI(`[
	{"type":"function","name":"fillOrder","stateMutability":"nonpayable","inputs":[
		{"name":"order","type":"tuple","components":[
			{"name":"salt","type":"uint256"},
			{"name":"maker","type":"address"},
			{"name":"signer","type":"address"},
			{"name":"taker","type":"address"},
			{"name":"tokenId","type":"uint256"},
			{"name":"makerAmount","type":"uint256"},
			{"name":"takerAmount","type":"uint256"},
			{"name":"expiration","type":"uint256"},
			{"name":"nonce","type":"uint256"},
			{"name":"feeRateBps","type":"uint256"},
			{"name":"side","type":"uint8"},
			{"name":"signatureType","type":"uint8"}
		]},
		{"name":"fillAmount","type":"uint256"},
		{"name":"signature","type":"bytes"}
	],"outputs":[]},
	{"type":"function","name":"cancelOrder","stateMutability":"nonpayable","inputs":[
		{"name":"orderHash","type":"bytes32"}
	],"outputs":[]},
	{"type":"function","name":"cancelAll","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[
		{"name":"recipient","type":"address"}
	],"outputs":[]}
]`)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("clob: invalid embedded exchange abi: %v", err))
	}
	return parsed
}

// abiTuple is the Go-side mirror of the exchange's Order tuple, laid out
// in the same field order the type hash commits to.
type abiTuple struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
}

func toAbiTuple(o *Order) abiTuple {
	return abiTuple{
		Salt:          o.Salt.ToBig(),
		Maker:         o.Maker,
		Signer:        o.Signer,
		Taker:         o.Taker,
		TokenID:       o.TokenID.ToBig(),
		MakerAmount:   o.MakerAmount.BigInt(),
		TakerAmount:   o.TakerAmount.BigInt(),
		Expiration:    o.Expiration.ToBig(),
		Nonce:         o.Nonce.ToBig(),
		FeeRateBps:    o.FeeRateBps.BigInt(),
		Side:          uint8(o.Side),
		SignatureType: uint8(o.SignatureType),
	}
}

// OrderEncoder turns a Request into the (to, data, value) calldata the
// executor pipeline needs to submit it as a TxRequest.
type OrderEncoder interface {
	Encode(exchange common.Address, req *Request) (data []byte, value *big.Int, err error)
}

// abiOrderEncoder is the OrderEncoder grounded on go-ethereum's
// accounts/abi package rather than a generated SDK client.
type abiOrderEncoder struct{}

func NewOrderEncoder() OrderEncoder {
	return abiOrderEncoder{}
}

func (abiOrderEncoder) Encode(exchange common.Address, req *Request) ([]byte, *big.Int, error) {
	switch req.Kind {
	case RequestPlace, RequestChange:
		if req.Order == nil {
			return nil, nil, fmt.Errorf("clob: %v request requires a signed order", req.Kind)
		}
		sigBytes := common.FromHex(req.Order.Signature)
		tuple := toAbiTuple(&req.Order.Order)
		fillAmount := req.Order.Order.TakerAmount.BigInt()
		data, err := exchangeABI.Pack("fillOrder", tuple, fillAmount, sigBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("clob: failed to encode fillOrder: %w", err)
		}
		return data, big.NewInt(0), nil
	case RequestClaim:
		if req.ClaimFor == (common.Address{}) {
			return nil, nil, fmt.Errorf("clob: claim requires a recipient address")
		}
		data, err := exchangeABI.Pack("claim", req.ClaimFor)
		if err != nil {
			return nil, nil, fmt.Errorf("clob: failed to encode claim: %w", err)
		}
		return data, big.NewInt(0), nil
	case RequestCancel:
		if len(req.OrderID) != 66 || !strings.HasPrefix(req.OrderID, "0x") {
			return nil, nil, fmt.Errorf("clob: cancel requires a 32-byte order hash")
		}
		data, err := exchangeABI.Pack("cancelOrder", common.HexToHash(req.OrderID))
		if err != nil {
			return nil, nil, fmt.Errorf("clob: failed to encode cancelOrder: %w", err)
		}
		return data, big.NewInt(0), nil
	case RequestCancelAll:
		data, err := exchangeABI.Pack("cancelAll")
		if err != nil {
			return nil, nil, fmt.Errorf("clob: failed to encode cancelAll: %w", err)
		}
		return data, big.NewInt(0), nil
	default:
		return nil, nil, fmt.Errorf("clob: unsupported request kind %v", req.Kind)
	}
}
