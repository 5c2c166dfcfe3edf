package qln

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/mit-dci/escapechan/consts"
	"github.com/mit-dci/escapechan/lnutil"
	"github.com/mit-dci/escapechan/logging"
	"github.com/pkg/errors"
)

/*
Payment update, 4 messages.  Either side can start one.

initiator -> responder
A: next channel state, initiator's next revocation hash, and any old
   initiator secrets that are safe to give out

responder -> initiator
B: responder's next revocation hash, and its own safe old secrets

initiator -> responder
C: sigs for the responder's escape, fast escape and payment path txs of the
   next state

responder -> initiator
D: responder's secrets up to the new state, and sigs for the initiator's
   txs of the next state

A secret only goes out once the side giving it holds signed txs for a newer
state.  The responder has that when it gets C, so its old secret is in D.
The initiator has it when it gets D, but there's no 5th message, so its old
secret goes out with whatever it sends next, A or B.
*/

type payStage uint8

const (
	stageIdle payStage = iota
	stageAwaitB           // initiator sent A
	stageAwaitC           // responder sent B
	stageAwaitD           // initiator sent C
)

func (s payStage) String() string {
	switch s {
	case stageIdle:
		return "idle"
	case stageAwaitB:
		return "await B"
	case stageAwaitC:
		return "await C"
	case stageAwaitD:
		return "await D"
	}
	return "unknown"
}

// Payer runs payment updates on an active channel.  One update at a time.
// Not safe for concurrent use.
type Payer struct {
	cfg ChanConfig
	ch  *Channel // last committed state

	escPriv, fastPriv *btcec.PrivateKey

	stage payStage
	// the update in flight
	update    lnutil.ChannelUpdate
	myNext    lnutil.RevocationHash
	theirNext lnutil.RevocationHash
	sentUpTo  uint64   // our secrets below this went out in A or B
	cand      *Channel // next state, built as the update goes
}

// NewPayer takes over an active channel.
func NewPayer(cfg ChanConfig, ch *Channel) (*Payer, error) {
	if ch == nil || ch.AnchorTx == nil {
		return nil, errors.New("channel not established")
	}
	esc, fast, err := cfg.Wallet.ChannelKeys(ch.ID)
	if err != nil {
		return nil, err
	}
	if pubArr(esc.PubKey()) != ch.myEscapePub() || pubArr(fast.PubKey()) != ch.myFastEscapePub() {
		return nil, errors.Errorf("wallet keys don't match channel %s", ch.ID)
	}
	return &Payer{cfg: cfg, ch: ch, escPriv: esc, fastPriv: fast}, nil
}

// Channel is the last committed state.
func (p *Payer) Channel() *Channel { return p.ch }

// Pending is true while an update is in flight.
func (p *Payer) Pending() bool { return p.stage != stageIdle }

func (c *Channel) myEscapePub() [33]byte {
	mine, _ := c.escapeKeys(c.IsServer, false)
	return mine
}

func (c *Channel) myFastEscapePub() [33]byte {
	mine, _ := c.escapeKeys(c.IsServer, true)
	return mine
}

// CheckUpdate makes sure a proposed state is something the channel can move
// to: same capacity, nothing negative or bigger than the channel, payments
// above dust.
func (c *Channel) CheckUpdate(u lnutil.ChannelUpdate) error {
	capacity := c.Capacity()
	if u.AmountClient < 0 || u.AmountServer < 0 {
		return errors.Wrapf(ErrInvalidProposal,
			"negative amount client %d server %d", u.AmountClient, u.AmountServer)
	}
	if u.AmountClient > capacity || u.AmountServer > capacity {
		return errors.Wrapf(ErrInvalidProposal,
			"amount client %d server %d over capacity %d",
			u.AmountClient, u.AmountServer, capacity)
	}
	if len(u.Payments) > consts.MaxPayments {
		return errors.Wrapf(ErrInvalidProposal, "%d payments, max %d",
			len(u.Payments), consts.MaxPayments)
	}
	// every term is in [0, capacity], so the sum can't wrap before it's caught
	total := u.AmountClient + u.AmountServer
	seen := make(map[[32]byte]bool, len(u.Payments))
	for i, pay := range u.Payments {
		if pay.Amount < consts.MinOutput+consts.PaymentPathFee {
			return errors.Wrapf(ErrInvalidProposal, "payment %d of %d too small", i, pay.Amount)
		}
		if pay.Amount > capacity {
			return errors.Wrapf(ErrInvalidProposal,
				"payment %d of %d over capacity %d", i, pay.Amount, capacity)
		}
		if pay.Timeout == 0 {
			return errors.Wrapf(ErrInvalidProposal, "payment %d has no timeout", i)
		}
		if seen[pay.Hash] {
			return errors.Wrapf(ErrInvalidProposal, "payment %d hash %x repeated", i, pay.Hash)
		}
		seen[pay.Hash] = true
		total += pay.Amount
		if total > capacity {
			return errors.Wrapf(ErrInvalidProposal,
				"update totals over %d, capacity %d", total, capacity)
		}
	}
	if total != capacity {
		return errors.Wrapf(ErrInvalidProposal,
			"update totals %d, capacity %d", total, capacity)
	}
	return nil
}

// checkNext makes sure a new revocation hash from the peer moves forward.
func (c *Channel) checkNext(rev lnutil.RevocationHash) error {
	cur := c.TheirRevocation()
	if rev.Index <= cur.Index || rev.Disclosed() || rev.SecretHash == [32]byte{} {
		return errors.Wrapf(ErrInvalidProposal,
			"revocation hash %d after %d", rev.Index, cur.Index)
	}
	return nil
}

// safeDisclosures are our secrets older than our committed state that the
// peer doesn't have yet.
func (p *Payer) safeDisclosures() ([]lnutil.RevocationHash, uint64, error) {
	upTo := p.ch.Version()
	if upTo <= p.ch.DisclosedUpTo {
		return nil, p.ch.DisclosedUpTo, nil
	}
	return p.priorFrom(p.ch.DisclosedUpTo, upTo)
}

func (p *Payer) priorFrom(from, upTo uint64) ([]lnutil.RevocationHash, uint64, error) {
	all, err := p.cfg.Store.PriorHashes(p.ch.ID, upTo)
	if err != nil {
		return nil, from, err
	}
	var out []lnutil.RevocationHash
	for _, rev := range all {
		if rev.Index >= from && rev.Index < upTo {
			out = append(out, rev)
		}
	}
	return out, upTo, nil
}

// nextState is the committed channel moved to the update in flight.
func (p *Payer) nextState(disclosed []lnutil.RevocationHash) (*Channel, error) {
	cand, err := p.ch.Clone()
	if err != nil {
		return nil, err
	}
	err = cand.ingestDisclosed(disclosed)
	if err != nil {
		return nil, errors.Wrap(ErrRevocationMismatch, err.Error())
	}
	cand.applyUpdate(p.update)
	cand.setRevocations(p.myNext, p.theirNext)
	cand.TheirHashes = append(cand.TheirHashes, p.theirNext)
	if p.sentUpTo > cand.DisclosedUpTo {
		cand.DisclosedUpTo = p.sentUpTo
	}
	// sigs for the old state are no good for this one
	cand.TheirEscapeSig, cand.TheirFastEscapeSig, cand.TheirPaymentSigs = nil, nil, nil
	return cand, nil
}

// Propose starts an update to u.  Returns message A.
func (p *Payer) Propose(u lnutil.ChannelUpdate) (lnutil.LitMsg, error) {
	if p.stage != stageIdle {
		// ours or theirs, one at a time
		return nil, errors.Wrapf(ErrOutOfOrderMessage, "update already in progress on %s", p.ch.ID)
	}
	err := p.ch.CheckUpdate(u)
	if err != nil {
		p.publishFailed(err)
		return nil, err
	}

	next, err := p.cfg.Store.NextRevocationHash(p.ch.ID)
	if err != nil {
		p.publishFailed(err)
		return nil, err
	}
	disclosed, upTo, err := p.safeDisclosures()
	if err != nil {
		p.publishFailed(err)
		return nil, err
	}

	p.update = u
	p.myNext = next.Commitment()
	p.sentUpTo = upTo
	p.stage = stageAwaitB

	logging.Infof("propose %s: client %s server %s payments %d\n",
		lnutil.ChanColor(p.ch.ID), lnutil.SatoshiColor(u.AmountClient),
		lnutil.SatoshiColor(u.AmountServer), len(u.Payments))
	return lnutil.UpdateAMsg{
		PeerIdx:    p.cfg.PeerIdx,
		ChanID:     p.ch.ID,
		Update:     u,
		Revocation: p.myNext,
		Disclosed:  disclosed,
	}, nil
}

// Handle takes an update message from the peer.  Returns the reply, if
// any.  On error the update is dropped and the reply is a failure message.
func (p *Payer) Handle(msg lnutil.LitMsg) (lnutil.LitMsg, error) {
	if m, ok := msg.(lnutil.FailureMsg); ok {
		err := errors.Wrapf(ErrPeerFailure, "%s: %s", ErrorKind(m.Kind), m.Reason)
		if p.stage == stageIdle {
			logging.Warnf("%s: peer failure with no update: %s\n", p.ch.ID, m.Reason)
			return nil, err
		}
		return p.abort(err)
	}

	var reply lnutil.LitMsg
	var err error
	switch m := msg.(type) {
	case lnutil.UpdateAMsg:
		if p.stage != stageIdle {
			break
		}
		reply, err = p.handleA(m)
		return p.done(reply, err)
	case lnutil.UpdateBMsg:
		if p.stage != stageAwaitB {
			break
		}
		reply, err = p.handleB(m)
		return p.done(reply, err)
	case lnutil.UpdateCMsg:
		if p.stage != stageAwaitC {
			break
		}
		reply, err = p.handleC(m)
		return p.done(reply, err)
	case lnutil.UpdateDMsg:
		if p.stage != stageAwaitD {
			break
		}
		reply, err = p.handleD(m)
		return p.done(reply, err)
	}
	return p.abort(errors.Wrapf(ErrOutOfOrderMessage,
		"msg %x for %s in stage %s", msg.MsgType(), p.ch.ID, p.stage))
}

func (p *Payer) done(reply lnutil.LitMsg, err error) (lnutil.LitMsg, error) {
	if err != nil {
		return p.abort(err)
	}
	return reply, nil
}

// Abort drops the update in flight, if there is one, and returns the
// failure message for the peer.
func (p *Payer) Abort(reason string) lnutil.LitMsg {
	if p.stage == stageIdle {
		return nil
	}
	msg, _ := p.abort(errors.Errorf("aborted: %s", reason))
	return msg
}

func (p *Payer) abort(err error) (lnutil.LitMsg, error) {
	logging.Warnf("update on %s dropped in stage %s: %s\n", p.ch.ID, p.stage, err.Error())
	p.reset()
	p.publishFailed(err)
	if KindOf(err) == KindPeerFailure {
		return nil, err
	}
	return lnutil.NewFailureMsg(p.cfg.PeerIdx, p.ch.ID, uint8(KindOf(err)), err.Error()), err
}

func (p *Payer) reset() {
	p.stage = stageIdle
	p.update = lnutil.ChannelUpdate{}
	p.myNext = lnutil.RevocationHash{}
	p.theirNext = lnutil.RevocationHash{}
	p.sentUpTo = 0
	p.cand = nil
}

func (p *Payer) publishFailed(err error) {
	publish(p.cfg.Bus, UpdateFailedEvent{ChanID: p.ch.ID, Kind: KindOf(err), Reason: err.Error()})
}

// commit makes the candidate the channel's state.  Anyone holding the
// channel pointer sees the new state.
func (p *Payer) commit() {
	*p.ch = *p.cand
	p.reset()

	logging.Infof("%s committed\n", p.ch.String())
	publish(p.cfg.Bus, UpdateCommittedEvent{
		ChanID:       p.ch.ID,
		Version:      p.ch.Version(),
		AmountClient: p.ch.AmountClient,
		AmountServer: p.ch.AmountServer,
		Payments:     len(p.ch.Payments),
	})
}

// handleA is the responder getting a proposal.
func (p *Payer) handleA(m lnutil.UpdateAMsg) (lnutil.LitMsg, error) {
	err := p.ch.CheckUpdate(m.Update)
	if err != nil {
		return nil, err
	}
	err = p.ch.checkNext(m.Revocation)
	if err != nil {
		return nil, err
	}
	// check their secrets before handing out anything of ours
	chk, err := p.ch.Clone()
	if err != nil {
		return nil, err
	}
	err = chk.ingestDisclosed(m.Disclosed)
	if err != nil {
		return nil, errors.Wrap(ErrRevocationMismatch, err.Error())
	}

	next, err := p.cfg.Store.NextRevocationHash(p.ch.ID)
	if err != nil {
		return nil, err
	}
	disclosed, upTo, err := p.safeDisclosures()
	if err != nil {
		return nil, err
	}

	p.update = m.Update
	p.myNext = next.Commitment()
	p.theirNext = m.Revocation
	p.sentUpTo = upTo
	p.cand, err = p.nextState(m.Disclosed)
	if err != nil {
		return nil, err
	}
	p.stage = stageAwaitC

	return lnutil.UpdateBMsg{
		PeerIdx:    p.cfg.PeerIdx,
		ChanID:     p.ch.ID,
		Revocation: p.myNext,
		Disclosed:  disclosed,
	}, nil
}

// handleB is the initiator signing the responder's next state.
func (p *Payer) handleB(m lnutil.UpdateBMsg) (lnutil.LitMsg, error) {
	err := p.ch.checkNext(m.Revocation)
	if err != nil {
		return nil, err
	}
	p.theirNext = m.Revocation
	cand, err := p.nextState(m.Disclosed)
	if err != nil {
		return nil, err
	}

	sigs, err := cand.signTheirs(p.escPriv, p.fastPriv)
	if err != nil {
		return nil, err
	}

	p.cand = cand
	p.stage = stageAwaitD
	return lnutil.UpdateCMsg{
		PeerIdx:       p.cfg.PeerIdx,
		ChanID:        p.ch.ID,
		SigEscape:     sigs.Escape,
		SigFastEscape: sigs.FastEscape,
		PaymentSigs:   sigs.Payments,
	}, nil
}

// handleC is the responder checking sigs for its next state.  Once they're
// good the old state can go.
func (p *Payer) handleC(m lnutil.UpdateCMsg) (lnutil.LitMsg, error) {
	err := p.cand.verifyMine(escapeSigSet{
		Escape:     m.SigEscape,
		FastEscape: m.SigFastEscape,
		Payments:   m.PaymentSigs,
	})
	if err != nil {
		return nil, err
	}
	sigs, err := p.cand.signTheirs(p.escPriv, p.fastPriv)
	if err != nil {
		return nil, err
	}

	// we hold a signed newer state, so everything below it can go
	disclosed, upTo, err := p.priorFrom(p.cand.DisclosedUpTo, p.cand.Version())
	if err != nil {
		return nil, err
	}
	p.cand.DisclosedUpTo = upTo

	reply := lnutil.UpdateDMsg{
		PeerIdx:       p.cfg.PeerIdx,
		ChanID:        p.ch.ID,
		Disclosed:     disclosed,
		SigEscape:     sigs.Escape,
		SigFastEscape: sigs.FastEscape,
		PaymentSigs:   sigs.Payments,
	}
	p.commit()
	return reply, nil
}

// handleD is the initiator checking the responder's sigs and revocation.
func (p *Payer) handleD(m lnutil.UpdateDMsg) (lnutil.LitMsg, error) {
	err := p.cand.verifyMine(escapeSigSet{
		Escape:     m.SigEscape,
		FastEscape: m.SigFastEscape,
		Payments:   m.PaymentSigs,
	})
	if err != nil {
		return nil, err
	}

	err = p.cand.ingestDisclosed(m.Disclosed)
	if err != nil {
		return nil, errors.Wrap(ErrRevocationMismatch, err.Error())
	}
	// the state they just left has to be revoked
	prev := p.ch.TheirRevocation().Index
	if p.cand.TheirSecrets.Next() <= prev {
		return nil, errors.Wrapf(ErrRevocationMismatch,
			"state %d not revoked, have secrets below %d", prev, p.cand.TheirSecrets.Next())
	}

	p.commit()
	return nil, nil
}
