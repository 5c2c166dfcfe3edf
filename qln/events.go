package qln

import (
	"github.com/mit-dci/escapechan/eventbus"
	"github.com/mit-dci/escapechan/lnutil"
)

// Event names, for registering handlers.
const (
	EventChannelActive   = "qln.chan.active"
	EventChannelFailed   = "qln.chan.failed"
	EventUpdateCommitted = "qln.update.committed"
	EventUpdateFailed    = "qln.update.failed"
)

// ChannelActiveEvent fires once both escape paths are signed and the anchor
// went to the gateway.
type ChannelActiveEvent struct {
	ChanID       lnutil.ChanID
	IsServer     bool
	AmountClient int64
	AmountServer int64
}

func (e ChannelActiveEvent) Name() string { return EventChannelActive }

func (e ChannelActiveEvent) Flags() uint8 { return eventbus.EFLAG_UNCANCELLABLE }

// ChannelFailedEvent fires when an establishment handshake dies.
type ChannelFailedEvent struct {
	ChanID lnutil.ChanID
	Kind   ErrorKind
	Reason string
}

func (e ChannelFailedEvent) Name() string { return EventChannelFailed }

func (e ChannelFailedEvent) Flags() uint8 { return eventbus.EFLAG_UNCANCELLABLE }

// UpdateCommittedEvent fires when a channel moves to a new state.
type UpdateCommittedEvent struct {
	ChanID       lnutil.ChanID
	Version      uint64
	AmountClient int64
	AmountServer int64
	Payments     int
}

func (e UpdateCommittedEvent) Name() string { return EventUpdateCommitted }

func (e UpdateCommittedEvent) Flags() uint8 { return eventbus.EFLAG_UNCANCELLABLE }

// UpdateFailedEvent fires when a payment update is dropped.  The channel is
// still at its last committed state.
type UpdateFailedEvent struct {
	ChanID lnutil.ChanID
	Kind   ErrorKind
	Reason string
}

func (e UpdateFailedEvent) Name() string { return EventUpdateFailed }

func (e UpdateFailedEvent) Flags() uint8 { return eventbus.EFLAG_UNCANCELLABLE }

func publish(bus *eventbus.EventBus, ev eventbus.Event) {
	if bus == nil {
		return
	}
	bus.Publish(ev)
}
