package eventbus

// Event is something that happened, routed to handlers by Name.
type Event interface {
	Name() string
	Flags() uint8
}

// Event flags.  A handler can only cancel a cancellable event.
const (
	EFLAG_NORMAL        = 0
	EFLAG_UNCANCELLABLE = 1 << 0
)

func isCancellable(e Event) bool { return e.Flags()&EFLAG_UNCANCELLABLE == 0 }
