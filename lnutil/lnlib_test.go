package lnutil

import (
	"bytes"
	"testing"
)

var (
	// pubkey from bitcoin blockchain tx
	// adfa661e05b2221a1425190265f2ab397ff5e00380b33c35b57142575defff14
	pubKeyCmpd0 = [33]byte{
		0x03, 0x70, 0xed, 0xd2, 0xa2, 0x47, 0x90, 0x76,
		0x6d, 0xdc, 0xbc, 0x25, 0x98, 0x00, 0xd6, 0x7e,
		0x83, 0x6d, 0x5b, 0xed, 0xd0, 0xa2, 0x74, 0x3c,
		0x5f, 0x8c, 0x67, 0xd2, 0x6c, 0x9d, 0x90, 0xf6,
		0x35}
	// pubkey from bitcoin blockchain tx
	// 23df526af42b7546987ebe7c2dd712faa146f78c7ae2162b3515fd861c7b045f
	pubKeyCmpd1 = [33]byte{
		0x03, 0xc1, 0xa3, 0xb5, 0xdc, 0x62, 0x60, 0xff,
		0xdd, 0xd0, 0x6c, 0x6e, 0x52, 0x8c, 0x34, 0x40,
		0x84, 0xe6, 0x96, 0xb2, 0x11, 0x14, 0x3f, 0xac,
		0x15, 0xf6, 0x1f, 0x85, 0xe2, 0x45, 0x89, 0x29,
		0x5a}
)

// RevocableScript
func TestRevocableScript(t *testing.T) {
	// blackbox test
	var inHash [32]byte
	inHash[31] = 0x07
	inRKey := [33]byte{0x02}
	inTKey := [33]byte{0x03}
	var inDelay uint16 = 2

	wantB := []byte{0x63, 0xa8, 0x20}
	wantB = append(wantB, inHash[:]...)
	wantB = append(wantB, 0x88, 0x21)
	wantB = append(wantB, inRKey[:]...)
	wantB = append(wantB, 0x67)
	wantB = append(wantB, 0x52) // it is related to inDelay
	wantB = append(wantB, []byte{0xb2, 0x75, 0x21}...)
	wantB = append(wantB, inTKey[:]...)
	wantB = append(wantB, []byte{0x68, 0xac}...)

	if !bytes.Equal(RevocableScript(inHash, inRKey, inTKey, inDelay), wantB) {
		t.Fatalf("it needs to be equal")
	}
}

// MultiSigScript
// this tests three patterns, normal-order, inverse-order and the same
func TestMultiSigScript(t *testing.T) {
	s0, swappedTrue, _ := MultiSigScript(pubKeyCmpd0, pubKeyCmpd1)
	if swappedTrue != true {
		t.Fatalf("wrong swapped value")
	}

	s1, swappedFalse, _ := MultiSigScript(pubKeyCmpd1, pubKeyCmpd0)
	if swappedFalse != false {
		t.Fatalf("wrong swapped value")
	}

	_, swappedSame, _ := MultiSigScript(pubKeyCmpd0, pubKeyCmpd0)
	if swappedSame != false {
		t.Fatalf("wrong swapped value")
	}

	// key order in doesn't change the script
	if !bytes.Equal(s0, s1) {
		t.Fatalf("scripts differ by argument order:\n%x\n%x", s0, s1)
	}
	// OP_2 <bigger> <smaller> OP_2 OP_CHECKMULTISIG
	if s0[0] != 0x52 || !bytes.Equal(s0[2:35], pubKeyCmpd1[:]) ||
		s0[len(s0)-2] != 0x52 || s0[len(s0)-1] != 0xae {
		t.Fatalf("bad multisig script %x", s0)
	}
}

// AnchorScript doesn't care which side is which
func TestAnchorScriptOrder(t *testing.T) {
	k2 := [33]byte{0x02, 0x11}
	k3 := [33]byte{0x02, 0x22}
	a, err := AnchorScript(pubKeyCmpd0, pubKeyCmpd1, k2, k3)
	if err != nil {
		t.Fatal(err)
	}
	b, err := AnchorScript(pubKeyCmpd1, pubKeyCmpd0, k3, k2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("anchor script depends on party order")
	}
	if a[0] != 0x63 || a[len(a)-1] != 0x68 {
		t.Fatalf("anchor script should be IF ... ENDIF, got %x", a)
	}
}

// PaymentScript: preimage branch, then revoked branch, then the 2 of 2
func TestPaymentScript(t *testing.T) {
	payHash := [32]byte{0x11}
	secretHash := [32]byte{0x22}
	payee := [33]byte{0x02, 0x33}

	s, err := PaymentScript(payHash, secretHash, payee, pubKeyCmpd0, pubKeyCmpd1)
	if err != nil {
		t.Fatal(err)
	}

	wantB := []byte{0x63, 0xa8, 0x20}
	wantB = append(wantB, payHash[:]...)
	wantB = append(wantB, 0x88, 0x21)
	wantB = append(wantB, payee[:]...)
	wantB = append(wantB, 0xac, 0x67)
	wantB = append(wantB, 0x63, 0xa8, 0x20)
	wantB = append(wantB, secretHash[:]...)
	wantB = append(wantB, 0x88, 0x21)
	// revoked branch pays the non-holder
	wantB = append(wantB, pubKeyCmpd1[:]...)
	wantB = append(wantB, 0xac, 0x67)
	ms, _, _ := MultiSigScript(pubKeyCmpd0, pubKeyCmpd1)
	wantB = append(wantB, ms...)
	wantB = append(wantB, 0x68, 0x68)

	if !bytes.Equal(s, wantB) {
		t.Fatalf("payment script\n%x\nexpect\n%x", s, wantB)
	}

	// swapping holder and other changes who can take a revoked output
	s2, err := PaymentScript(payHash, secretHash, payee, pubKeyCmpd1, pubKeyCmpd0)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(s, s2) {
		t.Fatalf("holder and other are interchangeable")
	}
}

// ScriptTxOut
func TestScriptTxOut(t *testing.T) {
	_, err := ScriptTxOut([]byte{0x51}, -1)
	if err == nil {
		t.Fatalf("negative amount should fail")
	}
	out, err := ScriptTxOut([]byte{0x51}, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if out.Value != 5000 || !bytes.Equal(out.PkScript, P2WSHify([]byte{0x51})) {
		t.Fatalf("bad txout")
	}
}
