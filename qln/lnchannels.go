package qln

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/getlantern/deepcopy"
	"github.com/mit-dci/escapechan/elkrem"
	"github.com/mit-dci/escapechan/lnutil"
)

// Channel is one two party channel.  The opener is the client and the
// acceptor is the server, on both nodes, so amounts read the same on both
// sides.
type Channel struct {
	ID       lnutil.ChanID
	PeerIdx  uint32
	IsServer bool // we accepted this channel

	ClientEscapePub     [33]byte
	ClientFastEscapePub [33]byte
	ServerEscapePub     [33]byte
	ServerFastEscapePub [33]byte

	ClientInputs    []lnutil.FundingInput
	ServerInputs    []lnutil.FundingInput
	ClientChangePub [33]byte
	ServerChangePub [33]byte

	// current balance split.  Capacity minus these is in open payments.
	AmountClient int64
	AmountServer int64
	Payments     []lnutil.Payment

	// current (undisclosed) revocation hash of each side
	ClientRevocation lnutil.RevocationHash
	ServerRevocation lnutil.RevocationHash

	AnchorTx     *wire.MsgTx
	AnchorScript []byte

	// counterparty sigs for our own escape txs of the current state
	TheirEscapeSig     []byte
	TheirFastEscapeSig []byte
	// and for every payment path tx, ours first (see allPaths)
	TheirPaymentSigs [][]byte

	// our secrets below this index have been sent
	DisclosedUpTo uint64
	// their disclosed secrets
	TheirSecrets *elkrem.Receiver
	// their revocation hashes for every state we co-signed, by index
	TheirHashes []lnutil.RevocationHash
}

// Capacity is what the anchor output holds.
func (c *Channel) Capacity() int64 {
	return c.AmountClient + c.AmountServer + c.paymentTotal()
}

func (c *Channel) paymentTotal() int64 {
	var sum int64
	for _, p := range c.Payments {
		sum += p.Amount
	}
	return sum
}

// Version is the commitment version, which is our current revocation index.
func (c *Channel) Version() uint64 {
	return c.MyRevocation().Index
}

func (c *Channel) MyRevocation() lnutil.RevocationHash {
	if c.IsServer {
		return c.ServerRevocation
	}
	return c.ClientRevocation
}

func (c *Channel) TheirRevocation() lnutil.RevocationHash {
	if c.IsServer {
		return c.ClientRevocation
	}
	return c.ServerRevocation
}

func (c *Channel) setRevocations(mine, theirs lnutil.RevocationHash) {
	if c.IsServer {
		c.ServerRevocation, c.ClientRevocation = mine, theirs
	} else {
		c.ClientRevocation, c.ServerRevocation = mine, theirs
	}
}

// Balances returns my amount and their amount.
func (c *Channel) Balances() (int64, int64) {
	if c.IsServer {
		return c.AmountServer, c.AmountClient
	}
	return c.AmountClient, c.AmountServer
}

// Update is the current state as a channel update.
func (c *Channel) Update() lnutil.ChannelUpdate {
	return lnutil.ChannelUpdate{
		AmountClient: c.AmountClient,
		AmountServer: c.AmountServer,
		Payments:     c.Payments,
	}
}

func (c *Channel) applyUpdate(u lnutil.ChannelUpdate) {
	c.AmountClient = u.AmountClient
	c.AmountServer = u.AmountServer
	c.Payments = append([]lnutil.Payment(nil), u.Payments...)
}

// AnchorOutPoint is where the channel's money sits.
func (c *Channel) AnchorOutPoint() (wire.OutPoint, error) {
	if c.AnchorTx == nil {
		return wire.OutPoint{}, fmt.Errorf("channel %s has no anchor", c.ID)
	}
	idx := lnutil.FindOutput(c.AnchorTx, lnutil.P2WSHify(c.AnchorScript))
	if idx < 0 {
		return wire.OutPoint{}, fmt.Errorf("channel %s anchor output missing", c.ID)
	}
	return wire.OutPoint{Hash: c.AnchorTx.TxHash(), Index: uint32(idx)}, nil
}

// theirHash finds the counterparty's committed hash at idx.
func (c *Channel) theirHash(idx uint64) (lnutil.RevocationHash, bool) {
	for _, h := range c.TheirHashes {
		if h.Index == idx {
			return h, true
		}
	}
	return lnutil.RevocationHash{}, false
}

// ingestDisclosed checks and stores revocation secrets the peer sent.
func (c *Channel) ingestDisclosed(revs []lnutil.RevocationHash) error {
	if c.TheirSecrets == nil {
		c.TheirSecrets = elkrem.NewReceiver()
	}
	cur := c.TheirRevocation()
	for _, rev := range revs {
		if rev.Index >= cur.Index {
			return fmt.Errorf("secret %d disclosed but current state is %d", rev.Index, cur.Index)
		}
		h, ok := c.theirHash(rev.Index)
		if ok && h.SecretHash != rev.SecretHash {
			return fmt.Errorf("secret %d is for a hash we never got", rev.Index)
		}
		err := c.TheirSecrets.Ingest(rev)
		if err != nil {
			return err
		}
	}
	return nil
}

// Clone makes a deep copy to build a candidate state on.
func (c *Channel) Clone() (*Channel, error) {
	c2 := new(Channel)
	err := deepcopy.Copy(c2, c)
	if err != nil {
		return nil, err
	}
	return c2, nil
}

func (c *Channel) String() string {
	return fmt.Sprintf("chan %s v%d client %s server %s payments %d",
		lnutil.ChanColor(c.ID), c.Version(),
		lnutil.SatoshiColor(c.AmountClient), lnutil.SatoshiColor(c.AmountServer),
		len(c.Payments))
}
