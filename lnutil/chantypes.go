package lnutil

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ChanID identifies a channel.  The opener picks it at random.
type ChanID [32]byte

// NewChanID makes a random channel id.
func NewChanID() (ChanID, error) {
	var id ChanID
	_, err := rand.Read(id[:])
	return id, err
}

func (id ChanID) String() string {
	return hex.EncodeToString(id[:8])
}

// FundingInput is a wallet utxo going into the anchor transaction.
type FundingInput struct {
	Op    wire.OutPoint
	Value int64
}

// SumInputs adds up the value of a set of funding inputs.
func SumInputs(ins []FundingInput) int64 {
	var sum int64
	for _, in := range ins {
		sum += in.Value
	}
	return sum
}

// RevocationHash is one entry of a party's revocation chain.  Secret is zero
// until the party discloses it; SecretHash is sha256(Secret).
type RevocationHash struct {
	Index      uint64
	SecretHash [32]byte
	Secret     [32]byte
}

// NewRevocationHash makes a disclosed entry from a secret.
func NewRevocationHash(idx uint64, secret [32]byte) RevocationHash {
	return RevocationHash{
		Index:      idx,
		SecretHash: chainhash.HashH(secret[:]),
		Secret:     secret,
	}
}

// Commitment is the entry with the secret blanked out.
func (r RevocationHash) Commitment() RevocationHash {
	return RevocationHash{Index: r.Index, SecretHash: r.SecretHash}
}

// Disclosed is true if the entry carries a secret.
func (r RevocationHash) Disclosed() bool {
	return r.Secret != [32]byte{}
}

// Check makes sure the secret matches the hash.
func (r RevocationHash) Check() bool {
	h := chainhash.HashH(r.Secret[:])
	return r.Disclosed() && bytes.Equal(h[:], r.SecretHash[:])
}

// Payment is an open, hash locked payment inside the channel.
type Payment struct {
	Amount     int64
	Hash       [32]byte
	Timeout    uint32 // absolute locktime of the refund path
	FromClient bool   // true if the client is paying the server
}

// ChannelUpdate describes the next channel state: the new balance split and
// the set of payments still open in it.
type ChannelUpdate struct {
	AmountClient int64
	AmountServer int64
	Payments     []Payment
}

// Total is everything the update accounts for.  Wraps on hostile amounts;
// bound each term before trusting it.
func (u ChannelUpdate) Total() int64 {
	total := u.AmountClient + u.AmountServer
	for _, p := range u.Payments {
		total += p.Amount
	}
	return total
}

/* ---- serialization helpers shared by the messages ---- */

func writeVarBytes(w io.Writer, b []byte) error {
	return wire.WriteVarBytes(w, 0, b)
}

func readVarBytes(r io.Reader, field string) ([]byte, error) {
	return wire.ReadVarBytes(r, 0, 1<<16, field)
}

func writeInputs(w io.Writer, ins []FundingInput) error {
	err := wire.WriteVarInt(w, 0, uint64(len(ins)))
	if err != nil {
		return err
	}
	for _, in := range ins {
		opArr := OutPointToBytes(in.Op)
		_, err = w.Write(opArr[:])
		if err != nil {
			return err
		}
		_, err = w.Write(I64tB(in.Value))
		if err != nil {
			return err
		}
	}
	return nil
}

func readInputs(r io.Reader, max int) ([]FundingInput, error) {
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if n > uint64(max) {
		return nil, fmt.Errorf("%d inputs, max %d", n, max)
	}
	ins := make([]FundingInput, n)
	for i := range ins {
		var opArr [36]byte
		_, err = io.ReadFull(r, opArr[:])
		if err != nil {
			return nil, err
		}
		var amt [8]byte
		_, err = io.ReadFull(r, amt[:])
		if err != nil {
			return nil, err
		}
		ins[i].Op = *OutPointFromBytes(opArr)
		ins[i].Value = BtI64(amt[:])
	}
	return ins, nil
}

func writeRevocations(w io.Writer, revs []RevocationHash) error {
	err := wire.WriteVarInt(w, 0, uint64(len(revs)))
	if err != nil {
		return err
	}
	for _, rev := range revs {
		err = writeRevocation(w, rev)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeRevocation(w io.Writer, rev RevocationHash) error {
	_, err := w.Write(U64tB(rev.Index))
	if err != nil {
		return err
	}
	_, err = w.Write(rev.SecretHash[:])
	if err != nil {
		return err
	}
	_, err = w.Write(rev.Secret[:])
	return err
}

func readRevocation(r io.Reader) (RevocationHash, error) {
	var rev RevocationHash
	var idx [8]byte
	_, err := io.ReadFull(r, idx[:])
	if err != nil {
		return rev, err
	}
	rev.Index = BtU64(idx[:])
	_, err = io.ReadFull(r, rev.SecretHash[:])
	if err != nil {
		return rev, err
	}
	_, err = io.ReadFull(r, rev.Secret[:])
	return rev, err
}

func readRevocations(r io.Reader) ([]RevocationHash, error) {
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if n > 1<<16 {
		return nil, fmt.Errorf("%d revocations is too many", n)
	}
	revs := make([]RevocationHash, n)
	for i := range revs {
		revs[i], err = readRevocation(r)
		if err != nil {
			return nil, err
		}
	}
	return revs, nil
}

func writeSigList(w io.Writer, sigs [][]byte) error {
	err := wire.WriteVarInt(w, 0, uint64(len(sigs)))
	if err != nil {
		return err
	}
	for _, sig := range sigs {
		err = writeVarBytes(w, sig)
		if err != nil {
			return err
		}
	}
	return nil
}

func readSigList(r io.Reader, max int) ([][]byte, error) {
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if n > uint64(max) {
		return nil, fmt.Errorf("%d signatures, max %d", n, max)
	}
	sigs := make([][]byte, n)
	for i := range sigs {
		sigs[i], err = readVarBytes(r, "paymentsig")
		if err != nil {
			return nil, err
		}
	}
	return sigs, nil
}

func writeUpdate(w io.Writer, u ChannelUpdate) error {
	_, err := w.Write(I64tB(u.AmountClient))
	if err != nil {
		return err
	}
	_, err = w.Write(I64tB(u.AmountServer))
	if err != nil {
		return err
	}
	err = wire.WriteVarInt(w, 0, uint64(len(u.Payments)))
	if err != nil {
		return err
	}
	for _, p := range u.Payments {
		var flag byte
		if p.FromClient {
			flag = 1
		}
		var b []byte
		b = append(b, I64tB(p.Amount)...)
		b = append(b, p.Hash[:]...)
		b = append(b, U32tB(p.Timeout)...)
		b = append(b, flag)
		_, err = w.Write(b)
		if err != nil {
			return err
		}
	}
	return nil
}

func readUpdate(r io.Reader, max int) (ChannelUpdate, error) {
	var u ChannelUpdate
	var amts [16]byte
	_, err := io.ReadFull(r, amts[:])
	if err != nil {
		return u, err
	}
	u.AmountClient = BtI64(amts[:8])
	u.AmountServer = BtI64(amts[8:])
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return u, err
	}
	if n > uint64(max) {
		return u, fmt.Errorf("%d payments, max %d", n, max)
	}
	if n == 0 {
		return u, nil
	}
	u.Payments = make([]Payment, n)
	for i := range u.Payments {
		var b [45]byte
		_, err = io.ReadFull(r, b[:])
		if err != nil {
			return u, err
		}
		u.Payments[i].Amount = BtI64(b[:8])
		copy(u.Payments[i].Hash[:], b[8:40])
		u.Payments[i].Timeout = BtU32(b[40:44])
		u.Payments[i].FromClient = b[44] == 1
	}
	return u, nil
}
