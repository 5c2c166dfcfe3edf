package lnutil

import (
	"bytes"
	"fmt"
	"io"

	"github.com/mit-dci/escapechan/consts"
)

//id numbers for messages, semi-arbitrary
const (
	MSGID_FAILURE = 0x0f // handshake aborted, don't wait for me

	//Channel establishment messages
	MSGID_ESTABLISH_A = 0x10 // keys, secret hash, proposed amounts
	MSGID_ESTABLISH_B = 0x11 // keys, secret hash, anchor hash
	MSGID_ESTABLISH_C = 0x12 // anchor hash, escape sigs
	MSGID_ESTABLISH_D = 0x13 // escape sigs

	//Payment update messages
	MSGID_UPDATE_A = 0x30 // channel update, new revocation hash
	MSGID_UPDATE_B = 0x31 // new revocation hash
	MSGID_UPDATE_C = 0x32 // sigs for the new state
	MSGID_UPDATE_D = 0x33 // old revocation secrets and sigs for the new state
)

//interface that all messages follow, for easy use
type LitMsg interface {
	Peer() uint32   //return PeerIdx
	MsgType() uint8 //returns Message Type (see constants above)
	Bytes() []byte  //returns data of message as []byte with the MsgType() preceding it
}

// ChanMsg is a message about a single channel.  Every handshake message is.
type ChanMsg interface {
	LitMsg
	Chan() ChanID
}

func LitMsgEqual(msg LitMsg, msg2 LitMsg) bool {
	if msg.Peer() != msg2.Peer() || msg.MsgType() != msg2.MsgType() || !bytes.Equal(msg.Bytes(), msg2.Bytes()) {
		return false
	}
	return true
}

//method for finding what type of message a generic []byte is
func LitMsgFromBytes(b []byte, peerid uint32) (LitMsg, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("The byte slice sent is empty")
	}
	msgType := b[0] // first byte signifies what type of message is

	switch msgType {
	case MSGID_FAILURE:
		return NewFailureMsgFromBytes(b, peerid)

	case MSGID_ESTABLISH_A:
		return NewEstablishAMsgFromBytes(b, peerid)
	case MSGID_ESTABLISH_B:
		return NewEstablishBMsgFromBytes(b, peerid)
	case MSGID_ESTABLISH_C:
		return NewEstablishCMsgFromBytes(b, peerid)
	case MSGID_ESTABLISH_D:
		return NewEstablishDMsgFromBytes(b, peerid)

	case MSGID_UPDATE_A:
		return NewUpdateAMsgFromBytes(b, peerid)
	case MSGID_UPDATE_B:
		return NewUpdateBMsgFromBytes(b, peerid)
	case MSGID_UPDATE_C:
		return NewUpdateCMsgFromBytes(b, peerid)
	case MSGID_UPDATE_D:
		return NewUpdateDMsgFromBytes(b, peerid)

	default:
		return nil, fmt.Errorf("Unknown message of type %d ", msgType)
	}
}

// msgReader strips the type byte and reads the channel id every message
// starts with.
func msgReader(b []byte, want uint8) (*bytes.Reader, ChanID, error) {
	var id ChanID
	if len(b) < 33 {
		return nil, id, fmt.Errorf("msg type %x: got %d bytes, expect 33 or more", want, len(b))
	}
	if b[0] != want {
		return nil, id, fmt.Errorf("msg type %x, expect %x", b[0], want)
	}
	copy(id[:], b[1:33])
	return bytes.NewReader(b[33:]), id, nil
}

func msgHeader(msgType uint8, id ChanID) *bytes.Buffer {
	var buf bytes.Buffer
	buf.WriteByte(msgType)
	buf.Write(id[:])
	return &buf
}

func readPub(r io.Reader) ([33]byte, error) {
	var pub [33]byte
	_, err := io.ReadFull(r, pub[:])
	return pub, err
}

//----------

// FailureMsg tells the peer the handshake for a channel is dead.
type FailureMsg struct {
	PeerIdx uint32
	ChanID  ChanID
	Kind    uint8
	Reason  string
}

func NewFailureMsg(peerid uint32, id ChanID, kind uint8, reason string) FailureMsg {
	return FailureMsg{PeerIdx: peerid, ChanID: id, Kind: kind, Reason: reason}
}

func NewFailureMsgFromBytes(b []byte, peerid uint32) (FailureMsg, error) {
	fm := FailureMsg{PeerIdx: peerid}
	r, id, err := msgReader(b, MSGID_FAILURE)
	if err != nil {
		return fm, err
	}
	fm.ChanID = id
	fm.Kind, err = r.ReadByte()
	if err != nil {
		return fm, err
	}
	reason, err := readVarBytes(r, "reason")
	if err != nil {
		return fm, err
	}
	fm.Reason = string(reason)
	return fm, nil
}

func (self FailureMsg) Bytes() []byte {
	buf := msgHeader(self.MsgType(), self.ChanID)
	buf.WriteByte(self.Kind)
	writeVarBytes(buf, []byte(self.Reason))
	return buf.Bytes()
}

func (self FailureMsg) Peer() uint32   { return self.PeerIdx }
func (self FailureMsg) MsgType() uint8 { return MSGID_FAILURE }
func (self FailureMsg) Chan() ChanID   { return self.ChanID }

//----------

// EstablishAMsg is the opener's channel proposal.
type EstablishAMsg struct {
	PeerIdx       uint32
	ChanID        ChanID
	EscapePub     [33]byte
	FastEscapePub [33]byte
	Revocation    RevocationHash // secret blank

	AmountClient int64
	AmountServer int64

	Inputs    []FundingInput
	ChangePub [33]byte
}

func NewEstablishAMsgFromBytes(b []byte, peerid uint32) (EstablishAMsg, error) {
	m := EstablishAMsg{PeerIdx: peerid}
	r, id, err := msgReader(b, MSGID_ESTABLISH_A)
	if err != nil {
		return m, err
	}
	m.ChanID = id
	if m.EscapePub, err = readPub(r); err != nil {
		return m, err
	}
	if m.FastEscapePub, err = readPub(r); err != nil {
		return m, err
	}
	if m.Revocation, err = readRevocation(r); err != nil {
		return m, err
	}
	var amts [16]byte
	if _, err = io.ReadFull(r, amts[:]); err != nil {
		return m, err
	}
	m.AmountClient = BtI64(amts[:8])
	m.AmountServer = BtI64(amts[8:])
	if m.Inputs, err = readInputs(r, consts.MaxInputs); err != nil {
		return m, err
	}
	m.ChangePub, err = readPub(r)
	return m, err
}

func (self EstablishAMsg) Bytes() []byte {
	buf := msgHeader(self.MsgType(), self.ChanID)
	buf.Write(self.EscapePub[:])
	buf.Write(self.FastEscapePub[:])
	writeRevocation(buf, self.Revocation)
	buf.Write(I64tB(self.AmountClient))
	buf.Write(I64tB(self.AmountServer))
	writeInputs(buf, self.Inputs)
	buf.Write(self.ChangePub[:])
	return buf.Bytes()
}

func (self EstablishAMsg) Peer() uint32   { return self.PeerIdx }
func (self EstablishAMsg) MsgType() uint8 { return MSGID_ESTABLISH_A }
func (self EstablishAMsg) Chan() ChanID   { return self.ChanID }

// EstablishBMsg is the acceptor's reply, with the hash of the anchor it built.
type EstablishBMsg struct {
	PeerIdx       uint32
	ChanID        ChanID
	EscapePub     [33]byte
	FastEscapePub [33]byte
	Revocation    RevocationHash

	AmountServer int64

	Inputs    []FundingInput
	ChangePub [33]byte

	AnchorHash [32]byte
}

func NewEstablishBMsgFromBytes(b []byte, peerid uint32) (EstablishBMsg, error) {
	m := EstablishBMsg{PeerIdx: peerid}
	r, id, err := msgReader(b, MSGID_ESTABLISH_B)
	if err != nil {
		return m, err
	}
	m.ChanID = id
	if m.EscapePub, err = readPub(r); err != nil {
		return m, err
	}
	if m.FastEscapePub, err = readPub(r); err != nil {
		return m, err
	}
	if m.Revocation, err = readRevocation(r); err != nil {
		return m, err
	}
	var amt [8]byte
	if _, err = io.ReadFull(r, amt[:]); err != nil {
		return m, err
	}
	m.AmountServer = BtI64(amt[:])
	if m.Inputs, err = readInputs(r, consts.MaxInputs); err != nil {
		return m, err
	}
	if m.ChangePub, err = readPub(r); err != nil {
		return m, err
	}
	_, err = io.ReadFull(r, m.AnchorHash[:])
	return m, err
}

func (self EstablishBMsg) Bytes() []byte {
	buf := msgHeader(self.MsgType(), self.ChanID)
	buf.Write(self.EscapePub[:])
	buf.Write(self.FastEscapePub[:])
	writeRevocation(buf, self.Revocation)
	buf.Write(I64tB(self.AmountServer))
	writeInputs(buf, self.Inputs)
	buf.Write(self.ChangePub[:])
	buf.Write(self.AnchorHash[:])
	return buf.Bytes()
}

func (self EstablishBMsg) Peer() uint32   { return self.PeerIdx }
func (self EstablishBMsg) MsgType() uint8 { return MSGID_ESTABLISH_B }
func (self EstablishBMsg) Chan() ChanID   { return self.ChanID }

// EstablishCMsg carries the opener's anchor hash and its signatures for the
// acceptor's escape and fast escape txs.
type EstablishCMsg struct {
	PeerIdx       uint32
	ChanID        ChanID
	AnchorHash    [32]byte
	SigEscape     []byte
	SigFastEscape []byte
}

func NewEstablishCMsgFromBytes(b []byte, peerid uint32) (EstablishCMsg, error) {
	m := EstablishCMsg{PeerIdx: peerid}
	r, id, err := msgReader(b, MSGID_ESTABLISH_C)
	if err != nil {
		return m, err
	}
	m.ChanID = id
	if _, err = io.ReadFull(r, m.AnchorHash[:]); err != nil {
		return m, err
	}
	if m.SigEscape, err = readVarBytes(r, "sigescape"); err != nil {
		return m, err
	}
	m.SigFastEscape, err = readVarBytes(r, "sigfastescape")
	return m, err
}

func (self EstablishCMsg) Bytes() []byte {
	buf := msgHeader(self.MsgType(), self.ChanID)
	buf.Write(self.AnchorHash[:])
	writeVarBytes(buf, self.SigEscape)
	writeVarBytes(buf, self.SigFastEscape)
	return buf.Bytes()
}

func (self EstablishCMsg) Peer() uint32   { return self.PeerIdx }
func (self EstablishCMsg) MsgType() uint8 { return MSGID_ESTABLISH_C }
func (self EstablishCMsg) Chan() ChanID   { return self.ChanID }

// EstablishDMsg carries the acceptor's signatures for the opener's txs.
type EstablishDMsg struct {
	PeerIdx       uint32
	ChanID        ChanID
	SigEscape     []byte
	SigFastEscape []byte
}

func NewEstablishDMsgFromBytes(b []byte, peerid uint32) (EstablishDMsg, error) {
	m := EstablishDMsg{PeerIdx: peerid}
	r, id, err := msgReader(b, MSGID_ESTABLISH_D)
	if err != nil {
		return m, err
	}
	m.ChanID = id
	if m.SigEscape, err = readVarBytes(r, "sigescape"); err != nil {
		return m, err
	}
	m.SigFastEscape, err = readVarBytes(r, "sigfastescape")
	return m, err
}

func (self EstablishDMsg) Bytes() []byte {
	buf := msgHeader(self.MsgType(), self.ChanID)
	writeVarBytes(buf, self.SigEscape)
	writeVarBytes(buf, self.SigFastEscape)
	return buf.Bytes()
}

func (self EstablishDMsg) Peer() uint32   { return self.PeerIdx }
func (self EstablishDMsg) MsgType() uint8 { return MSGID_ESTABLISH_D }
func (self EstablishDMsg) Chan() ChanID   { return self.ChanID }

//----------

// UpdateAMsg proposes the next channel state.  Disclosed carries any old
// revocation secrets of the sender that are safe to give out.
type UpdateAMsg struct {
	PeerIdx    uint32
	ChanID     ChanID
	Update     ChannelUpdate
	Revocation RevocationHash
	Disclosed  []RevocationHash
}

func NewUpdateAMsgFromBytes(b []byte, peerid uint32) (UpdateAMsg, error) {
	m := UpdateAMsg{PeerIdx: peerid}
	r, id, err := msgReader(b, MSGID_UPDATE_A)
	if err != nil {
		return m, err
	}
	m.ChanID = id
	if m.Update, err = readUpdate(r, consts.MaxPayments); err != nil {
		return m, err
	}
	if m.Revocation, err = readRevocation(r); err != nil {
		return m, err
	}
	m.Disclosed, err = readRevocations(r)
	return m, err
}

func (self UpdateAMsg) Bytes() []byte {
	buf := msgHeader(self.MsgType(), self.ChanID)
	writeUpdate(buf, self.Update)
	writeRevocation(buf, self.Revocation)
	writeRevocations(buf, self.Disclosed)
	return buf.Bytes()
}

func (self UpdateAMsg) Peer() uint32   { return self.PeerIdx }
func (self UpdateAMsg) MsgType() uint8 { return MSGID_UPDATE_A }
func (self UpdateAMsg) Chan() ChanID   { return self.ChanID }

// UpdateBMsg is the responder's next revocation hash.
type UpdateBMsg struct {
	PeerIdx    uint32
	ChanID     ChanID
	Revocation RevocationHash
	Disclosed  []RevocationHash
}

func NewUpdateBMsgFromBytes(b []byte, peerid uint32) (UpdateBMsg, error) {
	m := UpdateBMsg{PeerIdx: peerid}
	r, id, err := msgReader(b, MSGID_UPDATE_B)
	if err != nil {
		return m, err
	}
	m.ChanID = id
	if m.Revocation, err = readRevocation(r); err != nil {
		return m, err
	}
	m.Disclosed, err = readRevocations(r)
	return m, err
}

func (self UpdateBMsg) Bytes() []byte {
	buf := msgHeader(self.MsgType(), self.ChanID)
	writeRevocation(buf, self.Revocation)
	writeRevocations(buf, self.Disclosed)
	return buf.Bytes()
}

func (self UpdateBMsg) Peer() uint32   { return self.PeerIdx }
func (self UpdateBMsg) MsgType() uint8 { return MSGID_UPDATE_B }
func (self UpdateBMsg) Chan() ChanID   { return self.ChanID }

// UpdateCMsg has the initiator's sigs for the responder's new txs.
type UpdateCMsg struct {
	PeerIdx       uint32
	ChanID        ChanID
	SigEscape     []byte
	SigFastEscape []byte
	PaymentSigs   [][]byte
}

func NewUpdateCMsgFromBytes(b []byte, peerid uint32) (UpdateCMsg, error) {
	m := UpdateCMsg{PeerIdx: peerid}
	r, id, err := msgReader(b, MSGID_UPDATE_C)
	if err != nil {
		return m, err
	}
	m.ChanID = id
	if m.SigEscape, err = readVarBytes(r, "sigescape"); err != nil {
		return m, err
	}
	if m.SigFastEscape, err = readVarBytes(r, "sigfastescape"); err != nil {
		return m, err
	}
	m.PaymentSigs, err = readSigList(r, consts.MaxPayments*consts.PathTxsPerPayment)
	return m, err
}

func (self UpdateCMsg) Bytes() []byte {
	buf := msgHeader(self.MsgType(), self.ChanID)
	writeVarBytes(buf, self.SigEscape)
	writeVarBytes(buf, self.SigFastEscape)
	writeSigList(buf, self.PaymentSigs)
	return buf.Bytes()
}

func (self UpdateCMsg) Peer() uint32   { return self.PeerIdx }
func (self UpdateCMsg) MsgType() uint8 { return MSGID_UPDATE_C }
func (self UpdateCMsg) Chan() ChanID   { return self.ChanID }

// UpdateDMsg finishes an update: the responder's old secrets and its sigs
// for the initiator's new txs.
type UpdateDMsg struct {
	PeerIdx       uint32
	ChanID        ChanID
	Disclosed     []RevocationHash
	SigEscape     []byte
	SigFastEscape []byte
	PaymentSigs   [][]byte
}

func NewUpdateDMsgFromBytes(b []byte, peerid uint32) (UpdateDMsg, error) {
	m := UpdateDMsg{PeerIdx: peerid}
	r, id, err := msgReader(b, MSGID_UPDATE_D)
	if err != nil {
		return m, err
	}
	m.ChanID = id
	if m.Disclosed, err = readRevocations(r); err != nil {
		return m, err
	}
	if m.SigEscape, err = readVarBytes(r, "sigescape"); err != nil {
		return m, err
	}
	if m.SigFastEscape, err = readVarBytes(r, "sigfastescape"); err != nil {
		return m, err
	}
	m.PaymentSigs, err = readSigList(r, consts.MaxPayments*consts.PathTxsPerPayment)
	return m, err
}

func (self UpdateDMsg) Bytes() []byte {
	buf := msgHeader(self.MsgType(), self.ChanID)
	writeRevocations(buf, self.Disclosed)
	writeVarBytes(buf, self.SigEscape)
	writeVarBytes(buf, self.SigFastEscape)
	writeSigList(buf, self.PaymentSigs)
	return buf.Bytes()
}

func (self UpdateDMsg) Peer() uint32   { return self.PeerIdx }
func (self UpdateDMsg) MsgType() uint8 { return MSGID_UPDATE_D }
func (self UpdateDMsg) Chan() ChanID   { return self.ChanID }
