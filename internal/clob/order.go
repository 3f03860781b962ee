// Package clob holds the order-domain types and contract-calldata
// encoding that replace the dropped Polymarket off-chain SDK
// (github.com/GoPolymarket/polymarket-go-sdk): an on-chain CLOB's orders,
// expressed as a tagged Request variant per the design notes' guidance to
// model contract-call shapes as tagged variants rather than dynamic
// dispatch, and a minimal OrderEncoder built on go-ethereum's
// accounts/abi instead of a generated SDK client.
package clob

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Side is which side of the book an order rests on.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// SignatureType mirrors the three ways an order's signer can authorize a
// maker address: the EOA itself, a derived proxy wallet, or a Gnosis Safe.
type SignatureType uint8

const (
	SignatureEOA SignatureType = iota
	SignatureProxy
	SignatureGnosisSafe
)

// OrderType is the order's time-in-force.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC"
	OrderTypeGTD OrderType = "GTD"
	OrderTypeFAK OrderType = "FAK"
	OrderTypeFOK OrderType = "FOK"
)

// Order is the on-chain CLOB order struct, the same twelve fields the
// exchange contract's EIP-712 type hash covers (see internal/signer's
// domain-separator construction, which this package's encoder reuses
// unchanged — only the struct feeding it is now local).
type Order struct {
	Salt          *uint256.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *uint256.Int
	MakerAmount   decimal.Decimal
	TakerAmount   decimal.Decimal
	Expiration    *uint256.Int
	Nonce         *uint256.Int
	FeeRateBps    decimal.Decimal
	Side          Side
	SignatureType SignatureType
}

// SignableOrder pairs an Order with the order-book metadata the API
// surface needs but the contract does not: time-in-force and post-only.
type SignableOrder struct {
	Order     *Order
	OrderType OrderType
	PostOnly  bool
}

// SignedOrder is a SignableOrder plus its EIP-712 signature and the API
// credential that owns it.
type SignedOrder struct {
	Order     Order
	Signature string
	Owner     string
	OrderType OrderType
	PostOnly  bool
}

// RequestKind tags the variant a Request carries, per the design notes'
// guidance to model the contract-call shapes as a tagged union instead of
// dynamic dispatch over an interface.
type RequestKind uint8

const (
	RequestPlace RequestKind = iota
	RequestChange
	RequestClaim
	RequestCancel
	RequestCancelAll
)

func (k RequestKind) String() string {
	switch k {
	case RequestPlace:
		return "Place"
	case RequestChange:
		return "Change"
	case RequestClaim:
		return "Claim"
	case RequestCancel:
		return "Cancel"
	case RequestCancelAll:
		return "CancelAll"
	default:
		return "Unknown"
	}
}

// Request is the tagged variant covering every contract call this module
// submits on a trader's behalf. Priority influences queueing only at the
// caller's discretion (the core CallSequencer itself is plain FIFO); it
// is carried here so a caller's own admission logic can use it.
type Request struct {
	Kind     RequestKind
	Priority int
	Order    *SignedOrder // Place, Change
	OrderID  string       // Cancel
	ClaimFor common.Address
}
