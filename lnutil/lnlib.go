package lnutil

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// RevocableScript is the holder's output on an escape tx.  The holder can
// take it after the delay; the counterparty can take it right away if they
// know the preimage of the holder's secret hash, which only happens once the
// holder has revoked that state.
func RevocableScript(secretHash [32]byte, revokePub, timeoutPub [33]byte, delay uint16) []byte {
	builder := txscript.NewScriptBuilder()

	// 1 for revoked, 0 for timeout
	builder.AddOp(txscript.OP_IF)

	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(secretHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(revokePub[:])

	builder.AddOp(txscript.OP_ELSE)

	builder.AddInt64(int64(delay))
	// fails here if too early
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(timeoutPub[:])

	builder.AddOp(txscript.OP_ENDIF)

	// check whatever pubkey is left on the stack
	builder.AddOp(txscript.OP_CHECKSIG)

	// never any errors we care about here.
	s, _ := builder.Script()
	return s
}

// sortPubs puts the bigger pubkey first.  Returns true if it had to swap.
func sortPubs(aPub, bPub [33]byte) ([33]byte, [33]byte, bool) {
	if bytes.Compare(aPub[:], bPub[:]) == -1 {
		return bPub, aPub, true
	}
	return aPub, bPub, false
}

func addMultiSig(bldr *txscript.ScriptBuilder, aPub, bPub [33]byte) {
	aPub, bPub, _ = sortPubs(aPub, bPub)
	bldr.AddOp(txscript.OP_2)
	bldr.AddData(aPub[:])
	bldr.AddData(bPub[:])
	bldr.AddOp(txscript.OP_2)
	// Good ol OP_CHECKMULTISIG.  Don't forget the zero!
	bldr.AddOp(txscript.OP_CHECKMULTISIG)
}

// MultiSigScript generates the 2 of 2 multisig script for the given pubkeys.
// returns a bool which is true if swapping occurs.
func MultiSigScript(aPub, bPub [33]byte) ([]byte, bool, error) {
	_, _, swapped := sortPubs(aPub, bPub)
	bldr := txscript.NewScriptBuilder()
	addMultiSig(bldr, aPub, bPub)
	pre, err := bldr.Script()
	return pre, swapped, err
}

// AnchorScript is the witness script of the anchor output.  The IF branch is
// the 2 of 2 of escape keys, the ELSE branch the 2 of 2 of fast escape keys.
// Order of the two parties doesn't matter.
func AnchorScript(escA, escB, fastA, fastB [33]byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_IF)
	addMultiSig(bldr, escA, escB)
	bldr.AddOp(txscript.OP_ELSE)
	addMultiSig(bldr, fastA, fastB)
	bldr.AddOp(txscript.OP_ENDIF)
	return bldr.Script()
}

// PaymentScript locks an open payment on the holder's escape tx.  The payee
// takes it with the payment preimage.  Once the holder has revoked the state,
// the counterparty takes it with the holder's secret.  Otherwise both channel
// parties have signed the payment path tx that refunds the payer after the
// timeout.
//
//	IF SHA256 <payhash> EQUALVERIFY <payee> CHECKSIG
//	ELSE IF SHA256 <secrethash> EQUALVERIFY <other> CHECKSIG
//	ELSE 2 <holder> <other> 2 CHECKMULTISIG ENDIF ENDIF
func PaymentScript(payHash, secretHash [32]byte, payeePub, holderPub, otherPub [33]byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_IF)
	bldr.AddOp(txscript.OP_SHA256)
	bldr.AddData(payHash[:])
	bldr.AddOp(txscript.OP_EQUALVERIFY)
	bldr.AddData(payeePub[:])
	bldr.AddOp(txscript.OP_CHECKSIG)
	bldr.AddOp(txscript.OP_ELSE)

	// revoked
	bldr.AddOp(txscript.OP_IF)
	bldr.AddOp(txscript.OP_SHA256)
	bldr.AddData(secretHash[:])
	bldr.AddOp(txscript.OP_EQUALVERIFY)
	bldr.AddData(otherPub[:])
	bldr.AddOp(txscript.OP_CHECKSIG)
	bldr.AddOp(txscript.OP_ELSE)
	addMultiSig(bldr, holderPub, otherPub)
	bldr.AddOp(txscript.OP_ENDIF)

	bldr.AddOp(txscript.OP_ENDIF)
	return bldr.Script()
}

// ScriptTxOut creates a p2wsh'd TxOut for the given witness script.
func ScriptTxOut(script []byte, amt int64) (*wire.TxOut, error) {
	if amt < 0 {
		return nil, fmt.Errorf("Can't create txout with negative coins")
	}
	return wire.NewTxOut(amt, P2WSHify(script)), nil
}
