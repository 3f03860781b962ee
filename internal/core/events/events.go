// Package events defines the typed notification surface the executor and
// tracker emit. Per the design notes, this is a sink interface rather than
// an ambient "event += handler" pattern, so callers cannot re-enter the
// core without an explicit method call.
package events

import (
	"github.com/GoPolymarket/polygate/internal/core/types"
	"github.com/ethereum/go-ethereum/common"
)

// Mempooled fires once a signed transaction has been accepted by the node.
type Mempooled struct {
	RequestID string
	TxHash    common.Hash
}

// Confirmed fires once the tracker observes a receipt. Sinks map it to
// TxSuccessful or TxFailed based on Receipt.Successful().
type Confirmed struct {
	RequestID string
	Receipt   *types.Receipt
}

// Error fires for any failure before mempool acceptance, or for a tracker
// poll exhaustion after acceptance (in which case RequestID is the tx hash
// per spec.md §6).
type Error struct {
	RequestID string
	Err       error
}

// Sink receives the three event kinds. Implementations must not block or
// re-enter the sequencer/tracker on the calling goroutine without yielding;
// the recommended pattern is to hand off to a channel the caller drains.
type Sink interface {
	OnMempooled(Mempooled)
	OnConfirmed(Confirmed)
	OnError(Error)
}

// ChannelSink is a Sink backed by a buffered channel of a single unified
// event type, for callers that want to drain one stream instead of
// implementing three methods.
type ChannelSink struct {
	ch chan any
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan any, buffer)}
}

func (s *ChannelSink) OnMempooled(e Mempooled) { s.send(e) }
func (s *ChannelSink) OnConfirmed(e Confirmed) { s.send(e) }
func (s *ChannelSink) OnError(e Error)         { s.send(e) }

func (s *ChannelSink) send(e any) {
	select {
	case s.ch <- e:
	default:
		// Drop rather than block the tracker/executor goroutine; a slow
		// consumer must drain faster, not stall the core.
	}
}

// Events returns the channel to range/select over.
func (s *ChannelSink) Events() <-chan any {
	return s.ch
}

// NopSink discards every event; useful in tests that only assert on
// returned errors/results.
type NopSink struct{}

func (NopSink) OnMempooled(Mempooled) {}
func (NopSink) OnConfirmed(Confirmed) {}
func (NopSink) OnError(Error)         {}
