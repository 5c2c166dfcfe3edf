package qln

import (
	"sync"

	"github.com/mit-dci/escapechan/lnutil"
	"github.com/mit-dci/escapechan/logging"
	"github.com/pkg/errors"
)

// Router hands incoming messages to the handshake of the channel they're
// about.  Messages for one channel go one at a time; different channels
// don't wait on each other.
type Router struct {
	cfg ChanConfig // PeerIdx is set per channel

	mtx   sync.Mutex
	chans map[lnutil.ChanID]*chanEntry
}

type chanEntry struct {
	mtx     sync.Mutex
	peerIdx uint32 // only this peer talks about the channel
	est     *Establisher
	pay     *Payer // set once established
}

func NewRouter(cfg ChanConfig) *Router {
	return &Router{cfg: cfg, chans: make(map[lnutil.ChanID]*chanEntry)}
}

func (r *Router) peerConfig(peerIdx uint32) ChanConfig {
	cfg := r.cfg
	cfg.PeerIdx = peerIdx
	return cfg
}

func (r *Router) entry(id lnutil.ChanID) (*chanEntry, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	ent, ok := r.chans[id]
	return ent, ok
}

func (r *Router) drop(id lnutil.ChanID) {
	r.mtx.Lock()
	delete(r.chans, id)
	r.mtx.Unlock()
}

// OpenChannel starts a channel with a peer.  Returns the id and message A.
func (r *Router) OpenChannel(peerIdx uint32, amtClient, amtServer int64) (lnutil.ChanID, lnutil.LitMsg, error) {
	id, err := lnutil.NewChanID()
	if err != nil {
		return id, nil, err
	}
	est := NewOpener(r.peerConfig(peerIdx), id, amtClient, amtServer)
	ent := &chanEntry{peerIdx: peerIdx, est: est}

	r.mtx.Lock()
	if _, ok := r.chans[id]; ok {
		r.mtx.Unlock()
		return id, nil, errors.Errorf("channel %s already exists", id)
	}
	r.chans[id] = ent
	ent.mtx.Lock()
	r.mtx.Unlock()
	defer ent.mtx.Unlock()

	msg, err := est.Start()
	if err != nil {
		r.drop(id)
		return id, nil, err
	}
	return id, msg, nil
}

// HandleMessage routes one message from a peer and returns the reply for
// that peer, if any.
func (r *Router) HandleMessage(msg lnutil.LitMsg) (lnutil.LitMsg, error) {
	cm, ok := msg.(lnutil.ChanMsg)
	if !ok {
		return nil, errors.Errorf("msg %x isn't about a channel", msg.MsgType())
	}
	id := cm.Chan()

	ent, ok := r.entry(id)
	if !ok {
		ent, ok = r.accept(cm)
	}
	if ok && ent.peerIdx != msg.Peer() {
		logging.Warnf("peer %d sent %x about %s, which is with peer %d\n",
			msg.Peer(), msg.MsgType(), id, ent.peerIdx)
		ok = false
	}
	if !ok {
		err := errors.Wrapf(ErrUnknownChannel, "msg %x for %s", msg.MsgType(), id)
		if msg.MsgType() == lnutil.MSGID_FAILURE {
			// no failures about failures
			return nil, err
		}
		return lnutil.NewFailureMsg(msg.Peer(), id, uint8(KindUnknownChannel), err.Error()), err
	}

	ent.mtx.Lock()
	defer ent.mtx.Unlock()

	if ent.pay != nil && !isEstablishMsg(msg) {
		return ent.pay.Handle(msg)
	}
	if ent.est == nil {
		// restored from disk, establishment is long over
		return nil, errors.Wrapf(ErrOutOfOrderMessage, "msg %x on active %s", msg.MsgType(), id)
	}

	reply, err := ent.est.Handle(msg)
	switch ent.est.State() {
	case StateFailed:
		r.drop(id)
	case StateActive:
		if ent.pay == nil {
			ent.pay, err = NewPayer(r.peerConfig(msg.Peer()), ent.est.Channel())
			if err != nil {
				logging.Errorf("%s active but can't update: %s\n", id, err.Error())
			}
		}
	}
	return reply, err
}

// accept makes a new acceptor for an incoming A.
func (r *Router) accept(msg lnutil.ChanMsg) (*chanEntry, bool) {
	if msg.MsgType() != lnutil.MSGID_ESTABLISH_A {
		return nil, false
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	// might have shown up while we weren't looking
	if ent, ok := r.chans[msg.Chan()]; ok {
		return ent, true
	}
	ent := &chanEntry{peerIdx: msg.Peer(), est: NewAcceptor(r.peerConfig(msg.Peer()))}
	r.chans[msg.Chan()] = ent
	return ent, true
}

func isEstablishMsg(msg lnutil.LitMsg) bool {
	t := msg.MsgType()
	return t >= lnutil.MSGID_ESTABLISH_A && t <= lnutil.MSGID_ESTABLISH_D
}

// Restore puts a saved active channel back under the router, ready for
// updates with the peer it was opened with.
func (r *Router) Restore(ch *Channel) error {
	pay, err := NewPayer(r.peerConfig(ch.PeerIdx), ch)
	if err != nil {
		return errors.Wrapf(err, "restore %s", ch.ID)
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, ok := r.chans[ch.ID]; ok {
		return errors.Errorf("channel %s already exists", ch.ID)
	}
	r.chans[ch.ID] = &chanEntry{peerIdx: ch.PeerIdx, pay: pay}
	return nil
}

// Propose starts a payment update on an active channel.
func (r *Router) Propose(id lnutil.ChanID, u lnutil.ChannelUpdate) (lnutil.LitMsg, error) {
	ent, ok := r.entry(id)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownChannel, "propose on %s", id)
	}
	ent.mtx.Lock()
	defer ent.mtx.Unlock()
	if ent.pay == nil {
		return nil, errors.Errorf("channel %s not active", id)
	}
	return ent.pay.Propose(u)
}

// Teardown gives up on whatever handshake a channel has going.  A channel
// that never got established is forgotten; an active one goes back to its
// last committed state.  Returns the failure message for the peer, if any.
func (r *Router) Teardown(id lnutil.ChanID, reason string) lnutil.LitMsg {
	ent, ok := r.entry(id)
	if !ok {
		return nil
	}
	ent.mtx.Lock()
	defer ent.mtx.Unlock()
	if ent.pay != nil {
		return ent.pay.Abort(reason)
	}
	msg := ent.est.Abort(reason)
	r.drop(id)
	return msg
}

// Channel is a copy of the committed state of an active channel.
func (r *Router) Channel(id lnutil.ChanID) (*Channel, bool) {
	ent, ok := r.entry(id)
	if !ok {
		return nil, false
	}
	ent.mtx.Lock()
	defer ent.mtx.Unlock()
	if ent.pay == nil {
		return nil, false
	}
	c, err := ent.pay.Channel().Clone()
	if err != nil {
		logging.Errorf("copy %s: %s\n", id, err.Error())
		return nil, false
	}
	return c, true
}

// Channels lists every channel the router knows, established or not.
func (r *Router) Channels() []lnutil.ChanID {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	ids := make([]lnutil.ChanID, 0, len(r.chans))
	for id := range r.chans {
		ids = append(ids, id)
	}
	return ids
}

// HandleBytes is HandleMessage for a transport that deals in bytes.
func (r *Router) HandleBytes(b []byte, peerIdx uint32) ([]byte, error) {
	msg, err := lnutil.LitMsgFromBytes(b, peerIdx)
	if err != nil {
		return nil, err
	}
	reply, err := r.HandleMessage(msg)
	if reply == nil {
		return nil, err
	}
	return reply.Bytes(), err
}
