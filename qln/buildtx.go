package qln

import (
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil/txsort"
	"github.com/mit-dci/escapechan/consts"
	"github.com/mit-dci/escapechan/lnutil"
)

// payment path txs have to wait for their locktime
const pathSequence = wire.MaxTxInSequenceNum - 1

// PathTx is a payment path tx along with what's needed to sign its input.
type PathTx struct {
	Tx     *wire.MsgTx
	Script []byte // witness script of the spent payment output
	Amt    int64  // value of the spent payment output
}

// BuildAnchor sets the anchor script and builds the anchor tx from the
// channel's keys, amounts and funding inputs.  Both sides get the same
// bytes out of this.
func (c *Channel) BuildAnchor() error {
	script, err := lnutil.AnchorScript(
		c.ClientEscapePub, c.ServerEscapePub,
		c.ClientFastEscapePub, c.ServerFastEscapePub)
	if err != nil {
		return err
	}

	anchorOut, err := lnutil.ScriptTxOut(script, c.Capacity())
	if err != nil {
		return err
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxOut(anchorOut)

	err = addFunding(tx, c.ClientInputs, c.AmountClient, c.ClientChangePub)
	if err != nil {
		return fmt.Errorf("client funding: %s", err.Error())
	}
	err = addFunding(tx, c.ServerInputs, c.AmountServer, c.ServerChangePub)
	if err != nil {
		return fmt.Errorf("server funding: %s", err.Error())
	}

	// sort and we're done
	txsort.InPlaceSort(tx)

	c.AnchorScript = script
	c.AnchorTx = tx
	return nil
}

// addFunding puts one side's inputs in the anchor, and change if it's worth it.
func addFunding(tx *wire.MsgTx, ins []lnutil.FundingInput, amt int64, changePub [33]byte) error {
	change := lnutil.SumInputs(ins) - amt - consts.AnchorFeeShare
	if change < 0 {
		return fmt.Errorf("inputs %s short of %s plus fee",
			lnutil.SatoshiColor(lnutil.SumInputs(ins)), lnutil.SatoshiColor(amt))
	}
	for _, in := range ins {
		op := in.Op
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	// below dust, give to miners
	if change >= consts.MinOutput {
		tx.AddTxOut(wire.NewTxOut(change, lnutil.DirectWPKHScript(changePub)))
	}
	return nil
}

// escapeKeys returns the holder's and the counterparty's keys for one
// flavor of escape tx.
func (c *Channel) escapeKeys(server, fast bool) (holder, other [33]byte) {
	switch {
	case server && fast:
		return c.ServerFastEscapePub, c.ClientFastEscapePub
	case server:
		return c.ServerEscapePub, c.ClientEscapePub
	case fast:
		return c.ClientFastEscapePub, c.ServerFastEscapePub
	}
	return c.ClientEscapePub, c.ServerEscapePub
}

func (c *Channel) holderParts(server bool) (holderAmt, otherAmt int64, holderHash [32]byte) {
	if server {
		return c.AmountServer, c.AmountClient, c.ServerRevocation.SecretHash
	}
	return c.AmountClient, c.AmountServer, c.ClientRevocation.SecretHash
}

// paymentScript is the output script of payment p on the holder's tx.
func (c *Channel) paymentScript(p lnutil.Payment, server, fast bool) ([]byte, error) {
	holderKey, otherKey := c.escapeKeys(server, fast)
	_, _, holderHash := c.holderParts(server)
	// payee is server if the client pays
	payee, _ := c.escapeKeys(p.FromClient, fast)
	return lnutil.PaymentScript(p.Hash, holderHash, payee, holderKey, otherKey)
}

func (c *Channel) buildEscape(server, fast bool) (*wire.MsgTx, error) {
	anchorOp, err := c.AnchorOutPoint()
	if err != nil {
		return nil, err
	}
	holderKey, otherKey := c.escapeKeys(server, fast)
	holderAmt, otherAmt, holderHash := c.holderParts(server)

	delay := consts.EscapeDelay
	if fast {
		delay = consts.FastEscapeDelay
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(&anchorOp, nil, nil))

	// holder pays the fee.  Anything under MinOutput is left out.
	holderAmt -= consts.EscapeFee
	if holderAmt >= consts.MinOutput {
		script := lnutil.RevocableScript(holderHash, otherKey, holderKey, delay)
		out, err := lnutil.ScriptTxOut(script, holderAmt)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(out)
	}
	if otherAmt >= consts.MinOutput {
		tx.AddTxOut(wire.NewTxOut(otherAmt, lnutil.DirectWPKHScript(otherKey)))
	}
	for _, p := range c.Payments {
		script, err := c.paymentScript(p, server, fast)
		if err != nil {
			return nil, err
		}
		out, err := lnutil.ScriptTxOut(script, p.Amount)
		if err != nil {
			return nil, err
		}
		tx.AddTxOut(out)
	}
	if len(tx.TxOut) == 0 {
		return nil, fmt.Errorf("escape tx for %s has no outputs", c.ID)
	}

	txsort.InPlaceSort(tx)
	return tx, nil
}

// EscapeTx builds the escape tx held by the server (or client).
func (c *Channel) EscapeTx(server bool) (*wire.MsgTx, error) {
	return c.buildEscape(server, false)
}

// FastEscapeTx builds the fast escape tx held by the server (or client).
func (c *Channel) FastEscapeTx(server bool) (*wire.MsgTx, error) {
	return c.buildEscape(server, true)
}

// PaymentPathTxs builds the refund tx for each open payment on the holder's
// escape tx, in payment order.
func (c *Channel) PaymentPathTxs(server bool) ([]PathTx, error) {
	return c.paymentPaths(server, false)
}

// FastPaymentPathTxs is PaymentPathTxs for the holder's fast escape tx.
func (c *Channel) FastPaymentPathTxs(server bool) ([]PathTx, error) {
	return c.paymentPaths(server, true)
}

func (c *Channel) paymentPaths(server, fast bool) ([]PathTx, error) {
	if len(c.Payments) == 0 {
		return nil, nil
	}
	esc, err := c.buildEscape(server, fast)
	if err != nil {
		return nil, err
	}
	escHash := esc.TxHash()

	paths := make([]PathTx, len(c.Payments))
	for i, p := range c.Payments {
		script, err := c.paymentScript(p, server, fast)
		if err != nil {
			return nil, err
		}
		idx := lnutil.FindOutput(esc, lnutil.P2WSHify(script))
		if idx < 0 {
			return nil, fmt.Errorf("payment %d output missing", i)
		}
		// payer gets it back
		payer, _ := c.escapeKeys(!p.FromClient, fast)

		tx := wire.NewMsgTx(2)
		in := wire.NewTxIn(wire.NewOutPoint(&escHash, uint32(idx)), nil, nil)
		in.Sequence = pathSequence
		tx.AddTxIn(in)
		tx.AddTxOut(wire.NewTxOut(
			p.Amount-consts.PaymentPathFee, lnutil.DirectWPKHScript(payer)))
		tx.LockTime = p.Timeout

		paths[i] = PathTx{Tx: tx, Script: script, Amt: p.Amount}
	}
	return paths, nil
}

// pathSlot is where the path tx of payment i, on the escape (or fast
// escape) tx of the first holder (or the other one), sits in allPaths.
func pathSlot(i int, firstHolder, fast bool) int {
	slot := i * consts.PathTxsPerPayment
	if !firstHolder {
		slot += 2
	}
	if fast {
		slot++
	}
	return slot
}

// allPaths is every payment path tx of the state.  Per payment: the first
// holder's escape and fast escape paths, then the other holder's.
func (c *Channel) allPaths(firstServer bool) ([]PathTx, error) {
	if len(c.Payments) == 0 {
		return nil, nil
	}
	all := make([]PathTx, len(c.Payments)*consts.PathTxsPerPayment)
	for _, first := range []bool{true, false} {
		for _, fast := range []bool{false, true} {
			paths, err := c.paymentPaths(firstServer == first, fast)
			if err != nil {
				return nil, err
			}
			for i, p := range paths {
				all[pathSlot(i, first, fast)] = p
			}
		}
	}
	return all, nil
}
