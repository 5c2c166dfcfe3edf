package lnutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil"
)

// OutPointToBytes is txid then big endian index, 36 bytes.
func OutPointToBytes(op wire.OutPoint) (b [36]byte) {
	copy(b[:32], op.Hash[:])
	binary.BigEndian.PutUint32(b[32:], op.Index)
	return
}

func OutPointFromBytes(b [36]byte) *wire.OutPoint {
	var hash chainhash.Hash
	copy(hash[:], b[:32])
	return wire.NewOutPoint(&hash, BtU32(b[32:]))
}

// P2WSHify is the version 0 witness program paying to script.
func P2WSHify(script []byte) []byte {
	pk, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).AddData(chainhash.HashB(script)).Script()
	return pk
}

// DirectWPKHScript pays straight to a key, P2WPKH.
func DirectWPKHScript(pub [33]byte) []byte {
	pk, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).AddData(btcutil.Hash160(pub[:])).Script()
	return pk
}

// FindOutput returns the index of the first output paying to pkScript,
// or -1 if there isn't one.
func FindOutput(tx *wire.MsgTx, pkScript []byte) int {
	for i, out := range tx.TxOut {
		if out != nil && bytes.Equal(out.PkScript, pkScript) {
			return i
		}
	}
	return -1
}

// TxBytes serializes a tx, witnesses included.  Nil on failure.
func TxBytes(tx *wire.MsgTx) []byte {
	var buf bytes.Buffer
	if tx.Serialize(&buf) != nil {
		return nil
	}
	return buf.Bytes()
}

// TxVSize is the virtual size of a tx, weight over 4 rounded up.
func TxVSize(tx *wire.MsgTx) int64 {
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
	return (weight + blockchain.WitnessScaleFactor - 1) / blockchain.WitnessScaleFactor
}

// TxToString is a multi line dump of a tx for debug logs.
func TxToString(tx *wire.MsgTx) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "tx %s v%d locktime %d vsize %d\n", tx.TxHash().String(),
		tx.Version, tx.LockTime, TxVSize(tx))
	for i, in := range tx.TxIn {
		fmt.Fprintf(&sb, " in %d %s seq %x\n", i, in.PreviousOutPoint.String(), in.Sequence)
		for j, wit := range in.Witness {
			fmt.Fprintf(&sb, "  wit %d %x\n", j, wit)
		}
	}
	for i, out := range tx.TxOut {
		if out == nil {
			fmt.Fprintf(&sb, " out %d missing\n", i)
			continue
		}
		fmt.Fprintf(&sb, " out %d %s %x\n", i, SatoshiColor(out.Value), out.PkScript)
	}
	return sb.String()
}
