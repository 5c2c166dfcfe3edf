package lnbolt

import (
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/mit-dci/escapechan/elkrem"
	"github.com/mit-dci/escapechan/lnutil"
	"github.com/mit-dci/escapechan/logging"
)

var (
	revLabel  = []byte(`revocations`)
	chanLabel = []byte(`channels`)
	buckets   = [][]byte{
		revLabel,
		chanLabel,
	}
)

// revRecord is what we keep per channel.  Secrets aren't stored; they come
// back out of the elkrem tree, whose root comes from the seed.
type revRecord struct {
	Count uint64 `json:"count"` // entries handed out
}

// RevStore hands out revocation hashes and remembers how many it has handed
// out in a bolt db.  Safe for concurrent use.
type RevStore struct {
	db   *bolt.DB
	seed []byte
}

// NewRevStore sets up the buckets it needs in db.
func NewRevStore(db *bolt.DB, seed []byte) (*RevStore, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("empty revocation seed")
	}
	err := initBuckets(db)
	if err != nil {
		return nil, err
	}
	return &RevStore{db: db, seed: append([]byte(nil), seed...)}, nil
}

func initBuckets(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		for _, n := range buckets {
			_, err := tx.CreateBucketIfNotExists(n)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *RevStore) sender(id lnutil.ChanID) (*elkrem.Sender, error) {
	root, err := elkrem.RootFromSeed(s.seed, id)
	if err != nil {
		return nil, err
	}
	return elkrem.NewSender(root), nil
}

func getRecord(b *bolt.Bucket, id lnutil.ChanID) (revRecord, error) {
	var rec revRecord
	raw := b.Get(id[:])
	if raw == nil {
		return rec, nil
	}
	err := json.Unmarshal(raw, &rec)
	return rec, err
}

// NextRevocationHash writes out the new count before returning the hash.
func (s *RevStore) NextRevocationHash(id lnutil.ChanID) (lnutil.RevocationHash, error) {
	var idx uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(revLabel)
		rec, err := getRecord(b, id)
		if err != nil {
			return err
		}
		idx = rec.Count
		rec.Count++
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(id[:], raw)
	})
	if err != nil {
		return lnutil.RevocationHash{}, err
	}

	snd, err := s.sender(id)
	if err != nil {
		return lnutil.RevocationHash{}, err
	}
	rev, err := snd.Revocation(idx)
	if err != nil {
		return lnutil.RevocationHash{}, err
	}
	logging.Debugf("revocation %d for %s\n", idx, id)
	return rev.Commitment(), nil
}

// PriorHashes gives every entry handed out below upTo, with secrets.
func (s *RevStore) PriorHashes(id lnutil.ChanID, upTo uint64) ([]lnutil.RevocationHash, error) {
	var rec revRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx.Bucket(revLabel), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return priorHashes(s, id, rec.Count, upTo)
}

// Count is how many entries the channel has had.
func (s *RevStore) Count(id lnutil.ChanID) (uint64, error) {
	var rec revRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx.Bucket(revLabel), id)
		return err
	})
	return rec.Count, err
}

type senderSource interface {
	sender(id lnutil.ChanID) (*elkrem.Sender, error)
}

func priorHashes(src senderSource, id lnutil.ChanID, count, upTo uint64) ([]lnutil.RevocationHash, error) {
	if upTo > count {
		upTo = count
	}
	if upTo == 0 {
		return nil, nil
	}
	snd, err := src.sender(id)
	if err != nil {
		return nil, err
	}
	out := make([]lnutil.RevocationHash, 0, upTo)
	for i := uint64(0); i < upTo; i++ {
		rev, err := snd.Revocation(i)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	return out, nil
}
