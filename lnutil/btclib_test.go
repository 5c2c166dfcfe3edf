package lnutil

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// OutPointToBytes / OutPointFromBytes
// the outpoint has to come back the same, index in big endian at the end
func TestOutPointBytes(t *testing.T) {
	var hash chainhash.Hash
	hash[0] = 0xaa
	hash[31] = 0x01
	op := wire.OutPoint{Hash: hash, Index: 3}

	b := OutPointToBytes(op)
	if !bytes.Equal(b[32:], []byte{0x00, 0x00, 0x00, 0x03}) {
		t.Fatalf("index bytes %x", b[32:])
	}
	op2 := OutPointFromBytes(b)
	if *op2 != op {
		t.Fatalf("outpoint mismatch:\n%s\n%s", op.String(), op2.String())
	}
}

// P2WSHify
// version 0, push 32, sha256 of the script
func TestP2WSHify(t *testing.T) {
	script := []byte{0x51}
	out := P2WSHify(script)
	if len(out) != 34 || out[0] != 0x00 || out[1] != 0x20 {
		t.Fatalf("bad p2wsh script %x", out)
	}
	if !bytes.Equal(out[2:], chainhash.HashB(script)) {
		t.Fatalf("p2wsh hash mismatch")
	}
}

// DirectWPKHScript
// version 0, push 20
func TestDirectWPKHScript(t *testing.T) {
	out := DirectWPKHScript(pubKeyCmpd0)
	if len(out) != 22 || out[0] != 0x00 || out[1] != 0x14 {
		t.Fatalf("bad p2wpkh script %x", out)
	}
}

func TestFindOutput(t *testing.T) {
	tx := wire.NewMsgTx(2)
	tx.AddTxOut(wire.NewTxOut(1, []byte{0x01}))
	tx.AddTxOut(wire.NewTxOut(2, []byte{0x02}))
	if FindOutput(tx, []byte{0x02}) != 1 {
		t.Fatalf("didn't find output 1")
	}
	if FindOutput(tx, []byte{0x03}) != -1 {
		t.Fatalf("found an output that isn't there")
	}
}

func TestTxVSize(t *testing.T) {
	tx := wire.NewMsgTx(2)
	op := wire.NewOutPoint(&chainhash.Hash{0x01}, 3)
	tx.AddTxIn(wire.NewTxIn(op, nil, nil))
	tx.AddTxOut(wire.NewTxOut(50000, DirectWPKHScript([33]byte{0x02})))

	// no witness, vsize is the plain size
	if got, want := TxVSize(tx), int64(tx.SerializeSize()); got != want {
		t.Fatalf("vsize %d, expect %d", got, want)
	}

	tx.TxIn[0].Witness = [][]byte{bytes.Repeat([]byte{0x30}, 71), bytes.Repeat([]byte{0x02}, 33)}
	stripped, full := int64(tx.SerializeSizeStripped()), int64(tx.SerializeSize())
	want := (stripped*3 + full + 3) / 4
	if got := TxVSize(tx); got != want {
		t.Fatalf("vsize %d, expect %d", got, want)
	}
	if !strings.Contains(TxToString(tx), fmt.Sprintf("vsize %d", want)) {
		t.Fatalf("dump doesn't show vsize:\n%s", TxToString(tx))
	}
}
