package qln

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/mit-dci/escapechan/consts"
	"github.com/mit-dci/escapechan/eventbus"
	"github.com/mit-dci/escapechan/lnutil"
	"github.com/mit-dci/escapechan/logging"
	"github.com/pkg/errors"
)

/*
Channel establishment, 4 messages.

opener (client) -> acceptor (server)
A: escape pub, fast escape pub, revocation hash 0, client and server amounts,
   client funding inputs and change pub

acceptor checks the amounts before doing anything else, then gets keys,
inputs and its own revocation hash 0, and builds the anchor.

acceptor -> opener
B: escape pub, fast escape pub, revocation hash 0, server amount, server
   funding inputs and change pub, anchor txid

opener builds the same anchor, which has to come out with the same txid.

opener -> acceptor
C: anchor txid, sigs for the server's escape and fast escape txs

acceptor -> opener
D: sigs for the client's escape and fast escape txs

Both sides send the anchor to the gateway once they hold good sigs for their
own escape txs.  Nothing is revoked here; the first disclosure of revocation
hash 0 comes with the first payment update.

Any problem and the machine goes to StateFailed and tells the peer with a
failure message.  The wallet gets its inputs back.
*/

// EstablishState is where an establishment handshake is at.
type EstablishState uint8

const (
	StateInit EstablishState = iota
	StateAwaitA
	StateAwaitB
	StateAwaitC
	StateAwaitD
	StateActive
	StateFailed
)

func (s EstablishState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitA:
		return "await A"
	case StateAwaitB:
		return "await B"
	case StateAwaitC:
		return "await C"
	case StateAwaitD:
		return "await D"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ChanConfig is what a channel's handshakes get from the node.
type ChanConfig struct {
	Wallet  Wallet
	Store   RevocationStore
	Gateway BroadcastGateway
	Bus     *eventbus.EventBus // can be nil

	PeerIdx uint32

	// smallest channel we'll take, and most we'll put into one we accept
	MinCapacity int64
	MaxFunding  int64
}

// Establisher runs one side of the establishment handshake for one channel.
// Not safe for concurrent use.
type Establisher struct {
	cfg   ChanConfig
	state EstablishState

	id       lnutil.ChanID
	opener   bool
	reserved bool // wallet inputs frozen for us

	// the channel as built so far.  Replaced, never edited in place.
	ch *Channel

	escPriv, fastPriv *btcec.PrivateKey
}

// NewOpener makes the client side of a new channel.  Call Start to get the
// first message.
func NewOpener(cfg ChanConfig, id lnutil.ChanID, amtClient, amtServer int64) *Establisher {
	return &Establisher{
		cfg:    cfg,
		state:  StateInit,
		id:     id,
		opener: true,
		ch: &Channel{
			ID:           id,
			PeerIdx:      cfg.PeerIdx,
			AmountClient: amtClient,
			AmountServer: amtServer,
		},
	}
}

// NewAcceptor makes the server side.  The channel id comes with message A.
func NewAcceptor(cfg ChanConfig) *Establisher {
	return &Establisher{cfg: cfg, state: StateAwaitA}
}

func (e *Establisher) State() EstablishState { return e.state }

func (e *Establisher) ID() lnutil.ChanID { return e.id }

// Channel is the established channel, or nil before StateActive.
func (e *Establisher) Channel() *Channel {
	if e.state != StateActive {
		return nil
	}
	return e.ch
}

// checkAmounts is the sanity check on amounts both sides run.
func (e *Establisher) checkAmounts(amtClient, amtServer int64) error {
	if amtClient < 0 || amtServer < 0 {
		return errors.Wrapf(ErrInvalidProposal,
			"negative amount client %d server %d", amtClient, amtServer)
	}
	total := amtClient + amtServer
	if total < e.cfg.MinCapacity || total < consts.MinChanCapacity {
		return errors.Wrapf(ErrInvalidProposal, "capacity %d too small", total)
	}
	if total > consts.MaxChanCapacity {
		return errors.Wrapf(ErrInvalidProposal, "capacity %d too big", total)
	}
	return nil
}

// checkSide checks what one side brought: keys, revocation hash 0, and
// inputs that cover its amount.
func checkSide(escPub, fastPub [33]byte, rev lnutil.RevocationHash,
	ins []lnutil.FundingInput, changePub [33]byte, amt int64) error {

	for _, pub := range [][33]byte{escPub, fastPub, changePub} {
		_, err := btcec.ParsePubKey(pub[:], btcec.S256())
		if err != nil {
			return errors.Wrapf(ErrInvalidProposal, "bad pubkey %x", pub)
		}
	}
	if escPub == fastPub {
		return errors.Wrap(ErrInvalidProposal, "escape and fast escape keys are the same")
	}
	if rev.Index != 0 || rev.Disclosed() || rev.SecretHash == [32]byte{} {
		return errors.Wrapf(ErrInvalidProposal, "revocation hash %d", rev.Index)
	}
	if len(ins) == 0 || len(ins) > consts.MaxInputs {
		return errors.Wrapf(ErrInvalidProposal, "%d funding inputs", len(ins))
	}
	if lnutil.SumInputs(ins) < amt+consts.AnchorFeeShare {
		return errors.Wrapf(ErrInvalidProposal,
			"inputs %d don't cover %d", lnutil.SumInputs(ins), amt+consts.AnchorFeeShare)
	}
	return nil
}

// ourSide gets keys, funding and the first revocation hash for this channel.
func (e *Establisher) ourSide(amt int64) (
	esc, fast [33]byte, ins []lnutil.FundingInput, change [33]byte,
	rev lnutil.RevocationHash, err error) {

	e.escPriv, e.fastPriv, err = e.cfg.Wallet.ChannelKeys(e.id)
	if err != nil {
		return
	}
	esc = pubArr(e.escPriv.PubKey())
	fast = pubArr(e.fastPriv.PubKey())

	ins, change, err = e.cfg.Wallet.FundingInputs(e.id, amt+consts.AnchorFeeShare)
	if err != nil {
		return
	}
	e.reserved = true

	rev, err = e.cfg.Store.NextRevocationHash(e.id)
	if err != nil {
		return
	}
	if rev.Index != 0 {
		err = errors.Errorf("store gave revocation %d for new channel %s", rev.Index, e.id)
		return
	}
	rev = rev.Commitment()
	return
}

// Start sends A.  Only for openers.
func (e *Establisher) Start() (lnutil.LitMsg, error) {
	if !e.opener || e.state != StateInit {
		return nil, errors.Wrapf(ErrOutOfOrderMessage, "start in state %s", e.state)
	}
	err := e.checkAmounts(e.ch.AmountClient, e.ch.AmountServer)
	if err != nil {
		e.fail(err)
		return nil, err
	}

	esc, fast, ins, change, rev, err := e.ourSide(e.ch.AmountClient)
	if err != nil {
		e.fail(err)
		return nil, err
	}

	cand := *e.ch
	cand.ClientEscapePub = esc
	cand.ClientFastEscapePub = fast
	cand.ClientInputs = ins
	cand.ClientChangePub = change
	cand.ClientRevocation = rev

	msg := lnutil.EstablishAMsg{
		PeerIdx:       e.cfg.PeerIdx,
		ChanID:        e.id,
		EscapePub:     esc,
		FastEscapePub: fast,
		Revocation:    rev,
		AmountClient:  cand.AmountClient,
		AmountServer:  cand.AmountServer,
		Inputs:        ins,
		ChangePub:     change,
	}

	e.ch = &cand
	e.state = StateAwaitB
	logging.Infof("opening %s with peer %d: client %s server %s\n",
		lnutil.ChanColor(e.id), e.cfg.PeerIdx,
		lnutil.SatoshiColor(cand.AmountClient), lnutil.SatoshiColor(cand.AmountServer))
	return msg, nil
}

// Handle takes the next message from the peer.  Returns the reply, if any.
// On error the reply is a failure message for the peer.
func (e *Establisher) Handle(msg lnutil.LitMsg) (lnutil.LitMsg, error) {
	if e.state == StateActive || e.state == StateFailed {
		// establishment is over; leave everything as is
		return nil, errors.Wrapf(ErrOutOfOrderMessage,
			"msg %x for %s in state %s", msg.MsgType(), e.id, e.state)
	}

	if m, ok := msg.(lnutil.FailureMsg); ok {
		e.fail(errors.Wrapf(ErrPeerFailure, "%s: %s", ErrorKind(m.Kind), m.Reason))
		return nil, errors.Wrap(ErrPeerFailure, m.Reason)
	}

	var reply lnutil.LitMsg
	var err error
	switch m := msg.(type) {
	case lnutil.EstablishAMsg:
		if e.state != StateAwaitA {
			break
		}
		reply, err = e.handleA(m)
		return e.done(reply, err)
	case lnutil.EstablishBMsg:
		if e.state != StateAwaitB {
			break
		}
		reply, err = e.handleB(m)
		return e.done(reply, err)
	case lnutil.EstablishCMsg:
		if e.state != StateAwaitC {
			break
		}
		reply, err = e.handleC(m)
		return e.done(reply, err)
	case lnutil.EstablishDMsg:
		if e.state != StateAwaitD {
			break
		}
		reply, err = e.handleD(m)
		return e.done(reply, err)
	}

	return e.fail(errors.Wrapf(ErrOutOfOrderMessage,
		"msg %x for %s in state %s", msg.MsgType(), e.id, e.state))
}

func (e *Establisher) done(reply lnutil.LitMsg, err error) (lnutil.LitMsg, error) {
	if err != nil {
		return e.fail(err)
	}
	return reply, nil
}

// Abort kills the handshake, for when the peer went quiet.  Returns the
// failure message to send, or nil if the handshake was already over.
func (e *Establisher) Abort(reason string) lnutil.LitMsg {
	if e.state == StateActive || e.state == StateFailed {
		return nil
	}
	msg, _ := e.fail(errors.Errorf("aborted: %s", reason))
	return msg
}

// fail drops everything built so far.
func (e *Establisher) fail(err error) (lnutil.LitMsg, error) {
	logging.Warnf("establish %s failed in state %s: %s\n", e.id, e.state, err.Error())

	e.state = StateFailed
	e.ch = nil
	e.escPriv, e.fastPriv = nil, nil
	if e.reserved {
		e.cfg.Wallet.ReleaseInputs(e.id)
		e.reserved = false
	}

	kind := KindOf(err)
	publish(e.cfg.Bus, ChannelFailedEvent{ChanID: e.id, Kind: kind, Reason: err.Error()})

	if kind == KindPeerFailure {
		return nil, err
	}
	return lnutil.NewFailureMsg(e.cfg.PeerIdx, e.id, uint8(kind), err.Error()), err
}

// handleA is the acceptor getting a channel proposal.
func (e *Establisher) handleA(m lnutil.EstablishAMsg) (lnutil.LitMsg, error) {
	e.id = m.ChanID

	// amounts first; nothing gets reserved for a silly proposal
	err := e.checkAmounts(m.AmountClient, m.AmountServer)
	if err != nil {
		return nil, err
	}
	if m.AmountServer > e.cfg.MaxFunding {
		return nil, errors.Wrapf(ErrInvalidProposal,
			"server amount %d over max %d", m.AmountServer, e.cfg.MaxFunding)
	}
	err = checkSide(m.EscapePub, m.FastEscapePub, m.Revocation,
		m.Inputs, m.ChangePub, m.AmountClient)
	if err != nil {
		return nil, err
	}

	esc, fast, ins, change, rev, err := e.ourSide(m.AmountServer)
	if err != nil {
		return nil, err
	}
	if esc == m.EscapePub || fast == m.FastEscapePub {
		return nil, errors.Wrap(ErrInvalidProposal, "peer is using our keys")
	}

	cand := &Channel{
		ID:                  m.ChanID,
		PeerIdx:             e.cfg.PeerIdx,
		IsServer:            true,
		ClientEscapePub:     m.EscapePub,
		ClientFastEscapePub: m.FastEscapePub,
		ServerEscapePub:     esc,
		ServerFastEscapePub: fast,
		ClientInputs:        m.Inputs,
		ServerInputs:        ins,
		ClientChangePub:     m.ChangePub,
		ServerChangePub:     change,
		AmountClient:        m.AmountClient,
		AmountServer:        m.AmountServer,
		ClientRevocation:    m.Revocation,
		ServerRevocation:    rev,
		TheirHashes:         []lnutil.RevocationHash{m.Revocation},
	}
	err = cand.BuildAnchor()
	if err != nil {
		return nil, errors.Wrap(ErrInvalidProposal, err.Error())
	}

	reply := lnutil.EstablishBMsg{
		PeerIdx:       e.cfg.PeerIdx,
		ChanID:        e.id,
		EscapePub:     esc,
		FastEscapePub: fast,
		Revocation:    rev,
		AmountServer:  m.AmountServer,
		Inputs:        ins,
		ChangePub:     change,
		AnchorHash:    cand.AnchorTx.TxHash(),
	}

	e.ch = cand
	e.state = StateAwaitC
	logging.Infof("accepted %s from peer %d, anchor %s\n",
		lnutil.ChanColor(e.id), e.cfg.PeerIdx, cand.AnchorTx.TxHash().String())
	return reply, nil
}

// handleB is the opener checking the acceptor's anchor and signing its
// escape txs.
func (e *Establisher) handleB(m lnutil.EstablishBMsg) (lnutil.LitMsg, error) {
	if m.ChanID != e.id {
		return nil, errors.Wrapf(ErrUnknownChannel, "B for %s", m.ChanID)
	}
	if m.AmountServer != e.ch.AmountServer {
		return nil, errors.Wrapf(ErrInvalidProposal,
			"server amount %d, proposed %d", m.AmountServer, e.ch.AmountServer)
	}
	err := checkSide(m.EscapePub, m.FastEscapePub, m.Revocation,
		m.Inputs, m.ChangePub, m.AmountServer)
	if err != nil {
		return nil, err
	}

	cand, err := e.ch.Clone()
	if err != nil {
		return nil, err
	}
	cand.ServerEscapePub = m.EscapePub
	cand.ServerFastEscapePub = m.FastEscapePub
	cand.ServerInputs = m.Inputs
	cand.ServerChangePub = m.ChangePub
	cand.ServerRevocation = m.Revocation
	cand.TheirHashes = []lnutil.RevocationHash{m.Revocation}

	err = cand.BuildAnchor()
	if err != nil {
		return nil, errors.Wrap(ErrInvalidProposal, err.Error())
	}
	anchorHash := cand.AnchorTx.TxHash()
	if anchorHash != m.AnchorHash {
		return nil, errors.Wrapf(ErrTransactionMismatch,
			"anchor %s, peer says %x", anchorHash.String(), m.AnchorHash)
	}

	sigs, err := cand.signTheirs(e.escPriv, e.fastPriv)
	if err != nil {
		return nil, err
	}

	e.ch = cand
	e.state = StateAwaitD
	return lnutil.EstablishCMsg{
		PeerIdx:       e.cfg.PeerIdx,
		ChanID:        e.id,
		AnchorHash:    anchorHash,
		SigEscape:     sigs.Escape,
		SigFastEscape: sigs.FastEscape,
	}, nil
}

// handleC is the acceptor checking the opener's sigs.  After this the
// acceptor is done.
func (e *Establisher) handleC(m lnutil.EstablishCMsg) (lnutil.LitMsg, error) {
	if m.ChanID != e.id {
		return nil, errors.Wrapf(ErrUnknownChannel, "C for %s", m.ChanID)
	}
	anchorHash := e.ch.AnchorTx.TxHash()
	if anchorHash != m.AnchorHash {
		return nil, errors.Wrapf(ErrTransactionMismatch,
			"anchor %s, peer says %x", anchorHash.String(), m.AnchorHash)
	}

	cand, err := e.ch.Clone()
	if err != nil {
		return nil, err
	}
	err = cand.verifyMine(escapeSigSet{Escape: m.SigEscape, FastEscape: m.SigFastEscape})
	if err != nil {
		return nil, err
	}
	sigs, err := cand.signTheirs(e.escPriv, e.fastPriv)
	if err != nil {
		return nil, err
	}

	e.ch = cand
	e.activate()
	return lnutil.EstablishDMsg{
		PeerIdx:       e.cfg.PeerIdx,
		ChanID:        e.id,
		SigEscape:     sigs.Escape,
		SigFastEscape: sigs.FastEscape,
	}, nil
}

// handleD is the opener checking the acceptor's sigs.
func (e *Establisher) handleD(m lnutil.EstablishDMsg) (lnutil.LitMsg, error) {
	if m.ChanID != e.id {
		return nil, errors.Wrapf(ErrUnknownChannel, "D for %s", m.ChanID)
	}
	cand, err := e.ch.Clone()
	if err != nil {
		return nil, err
	}
	err = cand.verifyMine(escapeSigSet{Escape: m.SigEscape, FastEscape: m.SigFastEscape})
	if err != nil {
		return nil, err
	}

	e.ch = cand
	e.activate()
	return nil, nil
}

// activate sends out the anchor and marks the channel open.
func (e *Establisher) activate() {
	err := e.cfg.Gateway.Submit(e.ch.AnchorTx)
	if err != nil {
		// the gateway retries, or the user escapes.  Either way we're open.
		logging.Errorf("anchor %s for %s: %s\n",
			e.ch.AnchorTx.TxHash().String(), e.id, err.Error())
	}
	e.state = StateActive
	// inputs are in the anchor now
	e.reserved = false
	e.escPriv, e.fastPriv = nil, nil

	logging.Infof("%s active\n", e.ch.String())
	publish(e.cfg.Bus, ChannelActiveEvent{
		ChanID:       e.id,
		IsServer:     e.ch.IsServer,
		AmountClient: e.ch.AmountClient,
		AmountServer: e.ch.AmountServer,
	})
}
