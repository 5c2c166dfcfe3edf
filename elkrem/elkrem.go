// Package elkrem makes a channel's revocation secrets.  Secret N is a node
// of a binary hash tree, so the sender keeps only the root and the receiver
// keeps at most one node per tree level, yet either side can get back any
// secret the receiver has been given.
//
// Nodes are numbered in post-order: both children of a node come before it.
// A node at height h and index i has its left child at i-2^h and its right
// child at i-1, each of height h-1.  Leaves are height 0.
//
//	            6
//	      2           5
//	   0     1     3     4
//
// The receiver gets the nodes in index order.  Whenever it holds two nodes of
// equal height, the next node it gets is their parent, and it checks that the
// parent hashes down to both before dropping them.
package elkrem

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	rootHeight = uint8(47)
	// index of the root, the last usable index
	maxIndex = uint64(1)<<(rootHeight+1) - 2
)

func leftChild(parent chainhash.Hash) chainhash.Hash {
	return chainhash.DoubleHashH(append(parent[:], 0x00))
}

func rightChild(parent chainhash.Hash) chainhash.Hash {
	return chainhash.DoubleHashH(append(parent[:], 0x01))
}

// derive walks down from node (at, h) to node want.
func derive(want, at uint64, h uint8, sha chainhash.Hash) (chainhash.Hash, error) {
	for want < at && h > 0 {
		left := at - uint64(1)<<h
		if want <= left {
			sha, at = leftChild(sha), left
		} else {
			sha, at = rightChild(sha), at-1
		}
		h--
	}
	if want != at {
		return sha, fmt.Errorf("index %d isn't under node %d", want, at)
	}
	return sha, nil
}

// Sender makes secrets from the root.
type Sender struct {
	root chainhash.Hash
}

func NewSender(root chainhash.Hash) *Sender {
	return &Sender{root: root}
}

// AtIndex is secret idx.  At most rootHeight hashes.
func (s *Sender) AtIndex(idx uint64) (*chainhash.Hash, error) {
	if idx > maxIndex {
		return nil, fmt.Errorf("index %d past the end of the tree", idx)
	}
	sha, err := derive(idx, maxIndex, rootHeight, s.root)
	if err != nil {
		return nil, err
	}
	return &sha, nil
}

// Node is a secret the receiver holds on to.  JSON tags since receivers are
// saved along with their channels.
type Node struct {
	H   uint8           `json:"h"`
	I   uint64          `json:"i"`
	Sha *chainhash.Hash `json:"hash"`
}

// Receiver keeps the secrets it's been given, folded into the fewest nodes.
type Receiver struct {
	Nodes []Node `json:"nodes"`
}

func NewReceiver() *Receiver {
	return &Receiver{Nodes: []Node{}}
}

// AddNext takes the secret after the last one added.  If it doesn't hash
// down to the nodes it replaces, it's refused and nothing changes.
func (r *Receiver) AddNext(sha *chainhash.Hash) error {
	n := Node{Sha: sha}
	top := len(r.Nodes)
	if top > 0 {
		n.I = r.Nodes[top-1].I + 1
	}
	if top > 1 && r.Nodes[top-2].H == r.Nodes[top-1].H {
		l, rt := r.Nodes[top-2], r.Nodes[top-1]
		if want := leftChild(*sha); !l.Sha.IsEqual(&want) {
			return fmt.Errorf("index %d: left child %d is %s, secret gives %s",
				n.I, l.I, l.Sha.String(), want.String())
		}
		if want := rightChild(*sha); !rt.Sha.IsEqual(&want) {
			return fmt.Errorf("index %d: right child %d is %s, secret gives %s",
				n.I, rt.I, rt.Sha.String(), want.String())
		}
		n.H = l.H + 1
		r.Nodes = r.Nodes[:top-2]
	}
	r.Nodes = append(r.Nodes, n)
	return nil
}

// AtIndex gets back secret idx from whichever node covers it.
func (r *Receiver) AtIndex(idx uint64) (*chainhash.Hash, error) {
	if r == nil || len(r.Nodes) == 0 {
		return nil, fmt.Errorf("no secrets received")
	}
	for _, n := range r.Nodes {
		if idx > n.I {
			continue
		}
		sha, err := derive(idx, n.I, n.H, *n.Sha)
		if err != nil {
			return nil, err
		}
		return &sha, nil
	}
	return nil, fmt.Errorf("index %d not received, have up to %d",
		idx, r.Nodes[len(r.Nodes)-1].I)
}
