package qln

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/mit-dci/escapechan/consts"
	"github.com/mit-dci/escapechan/lnutil"
	"github.com/mit-dci/escapechan/logging"
	"github.com/pkg/errors"
)

// TxSigHash is the BIP143 digest of input idx spending script worth amt.
// Always sighash all.
func TxSigHash(tx *wire.MsgTx, idx int, script []byte, amt int64) ([]byte, error) {
	hCache := txscript.NewTxSigHashes(tx)
	return txscript.CalcWitnessSigHash(
		script, hCache, txscript.SigHashAll, tx, idx, amt)
}

// SignTx signs input idx.  The sig has the sighash byte on the end.
func SignTx(tx *wire.MsgTx, idx int, script []byte, amt int64, priv *btcec.PrivateKey) ([]byte, error) {
	hCache := txscript.NewTxSigHashes(tx)
	return txscript.RawTxInWitnessSignature(
		tx, hCache, idx, amt, script, txscript.SigHashAll, priv)
}

// VerifyTxSig checks a sig from SignTx against pub.
func VerifyTxSig(tx *wire.MsgTx, idx int, script []byte, amt int64, sig []byte, pub [33]byte) bool {
	if len(sig) < 2 || sig[len(sig)-1] != byte(txscript.SigHashAll) {
		return false
	}
	hash, err := TxSigHash(tx, idx, script, amt)
	if err != nil {
		return false
	}
	// last byte is sighash type
	pSig, err := btcec.ParseDERSignature(sig[:len(sig)-1], btcec.S256())
	if err != nil {
		return false
	}
	pubKey, err := btcec.ParsePubKey(pub[:], btcec.S256())
	if err != nil {
		return false
	}
	return pSig.Verify(hash, pubKey)
}

// escapeSigSet is everything one side signs for the other in a handshake.
// Payments covers every payment path tx, in allPaths order with the
// receiver's txs first, so whichever side paid can get its refund off
// either side's escape txs.
type escapeSigSet struct {
	Escape     []byte
	FastEscape []byte
	Payments   [][]byte
}

// signTheirs signs the counterparty's escape and fast escape txs of the
// channel's current state, and all the payment path txs.
func (c *Channel) signTheirs(escPriv, fastPriv *btcec.PrivateKey) (escapeSigSet, error) {
	var sigs escapeSigSet
	theirs := !c.IsServer

	esc, err := c.EscapeTx(theirs)
	if err != nil {
		return sigs, err
	}
	sigs.Escape, err = SignTx(esc, 0, c.AnchorScript, c.Capacity(), escPriv)
	if err != nil {
		return sigs, err
	}

	fast, err := c.FastEscapeTx(theirs)
	if err != nil {
		return sigs, err
	}
	sigs.FastEscape, err = SignTx(fast, 0, c.AnchorScript, c.Capacity(), fastPriv)
	if err != nil {
		return sigs, err
	}

	paths, err := c.allPaths(theirs)
	if err != nil {
		return sigs, err
	}
	for k, p := range paths {
		priv := escPriv
		if k%2 == 1 {
			priv = fastPriv
		}
		sig, err := SignTx(p.Tx, 0, p.Script, p.Amt, priv)
		if err != nil {
			return sigs, err
		}
		sigs.Payments = append(sigs.Payments, sig)
	}

	logging.Debugf("signed escape txs of %s for state %d\n",
		lnutil.ChanColor(c.ID), c.TheirRevocation().Index)
	return sigs, nil
}

// verifyMine checks the counterparty's sigs on my own escape txs and on the
// payment path txs of the channel's current state.  Saves them if they're
// good.
func (c *Channel) verifyMine(sigs escapeSigSet) error {
	mine := c.IsServer
	_, theirEsc := c.escapeKeys(mine, false)
	_, theirFast := c.escapeKeys(mine, true)

	esc, err := c.EscapeTx(mine)
	if err != nil {
		return err
	}
	if !VerifyTxSig(esc, 0, c.AnchorScript, c.Capacity(), sigs.Escape, theirEsc) {
		return errors.Wrap(ErrSignatureInvalid, "escape tx")
	}

	fast, err := c.FastEscapeTx(mine)
	if err != nil {
		return err
	}
	if !VerifyTxSig(fast, 0, c.AnchorScript, c.Capacity(), sigs.FastEscape, theirFast) {
		return errors.Wrap(ErrSignatureInvalid, "fast escape tx")
	}

	paths, err := c.allPaths(mine)
	if err != nil {
		return err
	}
	if len(paths) != len(sigs.Payments) {
		return errors.Wrapf(ErrSignatureInvalid,
			"%d payment sigs for %d payments", len(sigs.Payments), len(c.Payments))
	}
	for k, p := range paths {
		pub := theirEsc
		if k%2 == 1 {
			pub = theirFast
		}
		if !VerifyTxSig(p.Tx, 0, p.Script, p.Amt, sigs.Payments[k], pub) {
			return errors.Wrapf(ErrSignatureInvalid,
				"payment path %d of payment %d", k, k/consts.PathTxsPerPayment)
		}
	}

	c.TheirEscapeSig = sigs.Escape
	c.TheirFastEscapeSig = sigs.FastEscape
	c.TheirPaymentSigs = sigs.Payments
	return nil
}

// SpendMultiSigWitStack builds a witness stack for one branch of a script
// with a 2 of 2 in each branch.  Sigs go in the order of the pubkeys in the
// script, which is bigger pubkey first.
func SpendMultiSigWitStack(pre, selector, sigA, sigB []byte) [][]byte {
	witStack := make([][]byte, 5)
	// OP_CHECKMULTISIG eats an extra item
	witStack[0] = nil
	witStack[1] = sigA
	witStack[2] = sigB
	witStack[3] = selector
	witStack[4] = pre
	return witStack
}

// SpendPaymentPathWitStack spends the 2 of 2 at the bottom of a payment
// script: false for the preimage branch, false for the revoked branch.
func SpendPaymentPathWitStack(pre, sigA, sigB []byte) [][]byte {
	return [][]byte{nil, sigA, sigB, nil, nil, pre}
}

// sigOrder puts my sig and theirs in script order.
func sigOrder(myPub, theirPub [33]byte, mySig, theirSig []byte) ([]byte, []byte) {
	if bytes.Compare(myPub[:], theirPub[:]) == -1 {
		return theirSig, mySig
	}
	return mySig, theirSig
}

// SignedEscapeTx is my escape (or fast escape) tx with both sigs in, ready to
// broadcast.
func (c *Channel) SignedEscapeTx(fast bool, priv *btcec.PrivateKey) (*wire.MsgTx, error) {
	mine := c.IsServer
	tx, err := c.buildEscape(mine, fast)
	if err != nil {
		return nil, err
	}
	theirSig := c.TheirEscapeSig
	// IF branch is escape, ELSE is fast
	selector := []byte{0x01}
	if fast {
		theirSig = c.TheirFastEscapeSig
		selector = nil
	}
	if len(theirSig) == 0 {
		return nil, errors.Errorf("no counterparty sig for %s", c.ID)
	}
	mySig, err := SignTx(tx, 0, c.AnchorScript, c.Capacity(), priv)
	if err != nil {
		return nil, err
	}

	myPub, theirPub := c.escapeKeys(mine, fast)
	sigA, sigB := sigOrder(myPub, theirPub, mySig, theirSig)
	tx.TxIn[0].Witness = SpendMultiSigWitStack(c.AnchorScript, selector, sigA, sigB)
	return tx, nil
}

// SignedPaymentPathTx is the refund of payment i off my (or their) escape or
// fast escape tx, with both sigs in.  Only the payer can use it, and not
// before the payment's timeout.
func (c *Channel) SignedPaymentPathTx(i int, theirs, fast bool, priv *btcec.PrivateKey) (*wire.MsgTx, error) {
	if i < 0 || i >= len(c.Payments) {
		return nil, errors.Errorf("%s has no payment %d", c.ID, i)
	}
	if c.Payments[i].FromClient == c.IsServer {
		return nil, errors.Errorf("payment %d of %s isn't ours to refund", i, c.ID)
	}
	paths, err := c.paymentPaths(c.IsServer != theirs, fast)
	if err != nil {
		return nil, err
	}
	slot := pathSlot(i, !theirs, fast)
	if slot >= len(c.TheirPaymentSigs) || len(c.TheirPaymentSigs[slot]) == 0 {
		return nil, errors.Errorf("no counterparty sig for payment %d of %s", i, c.ID)
	}
	path := paths[i]
	mySig, err := SignTx(path.Tx, 0, path.Script, path.Amt, priv)
	if err != nil {
		return nil, err
	}

	myPub, theirPub := c.escapeKeys(c.IsServer, fast)
	sigA, sigB := sigOrder(myPub, theirPub, mySig, c.TheirPaymentSigs[slot])
	path.Tx.TxIn[0].Witness = SpendPaymentPathWitStack(path.Script, sigA, sigB)
	return path.Tx, nil
}
