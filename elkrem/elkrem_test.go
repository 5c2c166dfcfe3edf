package elkrem

import (
	"encoding/json"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func fill(t *testing.T, s *Sender, r *Receiver, upTo uint64) {
	for n := r.Next(); n < upTo; n++ {
		sha, err := s.AtIndex(n)
		if err != nil {
			t.Fatal(err)
		}
		err = r.AddNext(sha)
		if err != nil {
			t.Fatalf("add %d: %s", n, err.Error())
		}
	}
}

// everything the receiver got, it can give back, from few nodes
func TestReceiverMatchesSender(t *testing.T) {
	s := NewSender(chainhash.DoubleHashH([]byte("tree")))
	r := NewReceiver()
	fill(t, s, r, 10000)

	if len(r.Nodes) > int(rootHeight)+1 {
		t.Fatalf("receiver holds %d nodes", len(r.Nodes))
	}
	for n := uint64(0); n < 10000; n += 37 {
		want, _ := s.AtIndex(n)
		got, err := r.AtIndex(n)
		if err != nil {
			t.Fatal(err)
		}
		if !got.IsEqual(want) {
			t.Fatalf("index %d: sender %s receiver %s", n, want.String(), got.String())
		}
	}
	if _, err := r.AtIndex(10000); err == nil {
		t.Fatalf("gave out an index it never got")
	}
}

// 7 leaves in: 0 1 [2] 3 4 [5] [6], one node left
func TestReceiverFolds(t *testing.T) {
	s := NewSender(chainhash.DoubleHashH([]byte("small")))
	r := NewReceiver()
	fill(t, s, r, 6)
	if len(r.Nodes) != 2 || r.Nodes[0].I != 2 || r.Nodes[1].I != 5 {
		t.Fatalf("after 6 have %v", r.Nodes)
	}
	fill(t, s, r, 7)
	if len(r.Nodes) != 1 || r.Nodes[0].H != 2 {
		t.Fatalf("after 7 have %v", r.Nodes)
	}
}

// a wrong secret is only caught once its parent shows up, and then it's the
// parent that gets refused
func TestBadChild(t *testing.T) {
	for _, bad := range []uint64{31, 32} {
		s := NewSender(chainhash.DoubleHashH([]byte("bad child")))
		r := NewReceiver()
		fill(t, s, r, bad)

		sha, _ := s.AtIndex(bad)
		sha[0] ^= 0xff
		if err := r.AddNext(sha); err != nil {
			t.Fatalf("leaf %d refused early: %s", bad, err.Error())
		}
		if bad == 31 {
			sha, _ = s.AtIndex(32)
			if err := r.AddNext(sha); err != nil {
				t.Fatal(err)
			}
		}
		before := len(r.Nodes)
		parent, _ := s.AtIndex(33)
		if r.AddNext(parent) == nil {
			t.Fatalf("bad child %d not caught", bad)
		}
		if len(r.Nodes) != before {
			t.Fatalf("refused parent changed the receiver")
		}
	}
}

func TestSenderBounds(t *testing.T) {
	s := NewSender(chainhash.Hash{})
	if _, err := s.AtIndex(maxIndex); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AtIndex(maxIndex + 1); err == nil {
		t.Fatalf("index past root")
	}
	var nilRcv *Receiver
	if nilRcv.Next() != 0 {
		t.Fatalf("nil receiver next %d", nilRcv.Next())
	}
}

// secrets are fixed for a given root
func TestFixedVector(t *testing.T) {
	root, _ := chainhash.NewHashFromStr(
		"b43614f251760d689adf84211148a40d7dee13967b7109e13c8d1437a4966d58")
	zero, _ := chainhash.NewHashFromStr(
		"2a124935e0713149b71ff17cb43465e9828bacd1e833f0dc08460783a6a42cb4")
	sha, err := NewSender(*root).AtIndex(0)
	if err != nil {
		t.Fatal(err)
	}
	if !sha.IsEqual(zero) {
		t.Fatalf("secret 0 is %s", sha.String())
	}
}

func TestReceiverJSON(t *testing.T) {
	s := NewSender(chainhash.DoubleHashH([]byte("json")))
	r := NewReceiver()
	fill(t, s, r, 20)

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	r2 := new(Receiver)
	err = json.Unmarshal(b, r2)
	if err != nil {
		t.Fatal(err)
	}
	fill(t, s, r2, 40)
	got, err := r2.AtIndex(7)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := s.AtIndex(7)
	if !got.IsEqual(want) {
		t.Fatalf("index 7 wrong after reload")
	}
}

// revocation entries the way a channel gets them: in order, with repeats
func TestIngest(t *testing.T) {
	root, err := RootFromSeed([]byte("seed"), [32]byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	s := NewSender(root)
	r := NewReceiver()

	for n := uint64(0); n < 40; n++ {
		rev, err := s.Revocation(n)
		if err != nil {
			t.Fatal(err)
		}
		if err = r.Ingest(rev); err != nil {
			t.Fatal(err)
		}
		if err = r.Ingest(rev); err != nil {
			t.Fatalf("repeat %d: %s", n, err.Error())
		}
		if r.Next() != n+1 {
			t.Fatalf("next %d, expect %d", r.Next(), n+1)
		}
	}

	// gaps
	rev, _ := s.Revocation(45)
	if r.Ingest(rev) == nil {
		t.Fatalf("gap accepted")
	}
	// old index, other secret
	bad, _ := NewSender(chainhash.DoubleHashH([]byte("other"))).Revocation(3)
	if r.Ingest(bad) == nil {
		t.Fatalf("conflicting old secret accepted")
	}
	// hash doesn't match secret
	rev, _ = s.Revocation(40)
	rev.SecretHash[0] ^= 1
	if r.Ingest(rev) == nil {
		t.Fatalf("bad hash accepted")
	}
	if r.Next() != 40 {
		t.Fatalf("failed ingest moved the receiver")
	}
}

func TestRootFromSeed(t *testing.T) {
	a, err := RootFromSeed([]byte("seed"), [32]byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := RootFromSeed([]byte("seed"), [32]byte{0x02})
	a2, _ := RootFromSeed([]byte("seed"), [32]byte{0x01})
	if a.IsEqual(&b) {
		t.Fatalf("same root for different channels")
	}
	if !a.IsEqual(&a2) {
		t.Fatalf("root derivation not deterministic")
	}
}
