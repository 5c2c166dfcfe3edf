// Package eventbus passes events from the channel code to whoever wants to
// hear about them: loggers, persistence, the demo.  Handlers for a name run
// in registration order, and one event of a name is handled at a time.
package eventbus

import (
	"fmt"
	"sync"

	"github.com/mit-dci/escapechan/logging"
)

// EventHandleResult is what a handler says about an event.
type EventHandleResult uint8

const (
	EHANDLE_OK     = 0
	EHANDLE_CANCEL = 1
)

type eventhandler struct {
	mtx sync.Mutex
	fn  func(Event) EventHandleResult
}

// topic is every handler for one event name.
type topic struct {
	publishing sync.Mutex
	handlers   []*eventhandler
}

type EventBus struct {
	mtx    sync.Mutex
	topics map[string]*topic
}

func NewEventBus() *EventBus {
	return &EventBus{topics: make(map[string]*topic)}
}

func (b *EventBus) topic(name string, create bool) *topic {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	tp, ok := b.topics[name]
	if !ok && create {
		tp = &topic{}
		b.topics[name] = tp
	}
	return tp
}

func (b *EventBus) RegisterHandler(name string, fn func(Event) EventHandleResult) {
	tp := b.topic(name, true)
	b.mtx.Lock()
	tp.handlers = append(tp.handlers, &eventhandler{fn: fn})
	b.mtx.Unlock()
	logging.Debugf("eventbus: handler for %s\n", name)
}

// Subscribe gets events of a name on a channel of size buf.  If the channel
// is full the event is dropped for this subscriber.
func (b *EventBus) Subscribe(name string, buf int) <-chan Event {
	c := make(chan Event, buf)
	b.RegisterHandler(name, func(e Event) EventHandleResult {
		select {
		case c <- e:
		default:
			logging.Warnf("eventbus: subscriber to %s full, dropped event\n", name)
		}
		return EHANDLE_OK
	})
	return c
}

func (b *EventBus) CountHandlers(name string) int {
	tp := b.topic(name, false)
	if tp == nil {
		return 0
	}
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(tp.handlers)
}

// Publish runs the handlers for an event.  The bool is false if one of them
// cancelled it.
func (b *EventBus) Publish(e Event) bool {
	tp := b.topic(e.Name(), false)
	if tp == nil {
		return true
	}
	b.mtx.Lock()
	hs := append([]*eventhandler(nil), tp.handlers...)
	b.mtx.Unlock()

	tp.publishing.Lock()
	defer tp.publishing.Unlock()
	logging.Debugf("eventbus: %s to %d handlers\n", e.Name(), len(hs))

	ok := true
	for _, h := range hs {
		res, err := h.call(e)
		if err != nil {
			logging.Warnf("eventbus: handler for %s: %s\n", e.Name(), err.Error())
		}
		if res == EHANDLE_CANCEL && isCancellable(e) {
			ok = false
		}
	}
	return ok
}

// call runs the handler, turning a panic into an error.
func (h *eventhandler) call(e Event) (res EventHandleResult, err error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	defer func() {
		if r := recover(); r != nil {
			res, err = EHANDLE_OK, fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.fn(e), nil
}
