package elkrem

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mit-dci/escapechan/lnutil"
	"golang.org/x/crypto/hkdf"
)

// RootFromSeed derives the elkrem root of a channel from a node seed, so only
// the seed has to be backed up.
func RootFromSeed(seed []byte, id lnutil.ChanID) (chainhash.Hash, error) {
	var root chainhash.Hash
	kdf := hkdf.New(sha256.New, seed, id[:], []byte("escapechan elkrem root"))
	_, err := io.ReadFull(kdf, root[:])
	return root, err
}

// Revocation gives the disclosed revocation entry for commitment version idx.
func (s *Sender) Revocation(idx uint64) (lnutil.RevocationHash, error) {
	sha, err := s.AtIndex(idx)
	if err != nil {
		return lnutil.RevocationHash{}, err
	}
	return lnutil.NewRevocationHash(idx, *sha), nil
}

// Next is the index the receiver expects next.
func (r *Receiver) Next() uint64 {
	if r == nil || len(r.Nodes) == 0 {
		return 0
	}
	return r.Nodes[len(r.Nodes)-1].I + 1
}

// Ingest takes a disclosed revocation entry.  Entries below Next() are
// checked against what we can already derive; the entry at Next() is added
// to the tree.  Anything further ahead is a gap and is refused.
func (r *Receiver) Ingest(rev lnutil.RevocationHash) error {
	if !rev.Check() {
		return fmt.Errorf("revocation %d: secret doesn't match hash", rev.Index)
	}
	next := r.Next()
	if rev.Index > next {
		return fmt.Errorf("revocation %d: expect %d first", rev.Index, next)
	}
	if rev.Index < next {
		have, err := r.AtIndex(rev.Index)
		if err != nil {
			return err
		}
		if *have != chainhash.Hash(rev.Secret) {
			return fmt.Errorf("revocation %d: differs from earlier disclosure", rev.Index)
		}
		return nil
	}
	sha := chainhash.Hash(rev.Secret)
	return r.AddNext(&sha)
}
