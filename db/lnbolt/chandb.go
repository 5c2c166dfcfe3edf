package lnbolt

import (
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"
	"github.com/mit-dci/escapechan/lnutil"
)

// ChanStore keeps committed channel states as json, one per channel id.
// It doesn't know what's in them.
type ChanStore struct {
	db *bolt.DB
}

func NewChanStore(db *bolt.DB) (*ChanStore, error) {
	err := initBuckets(db)
	if err != nil {
		return nil, err
	}
	return &ChanStore{db: db}, nil
}

// SaveChannel overwrites whatever was there for id.
func (cs *ChanStore) SaveChannel(id lnutil.ChanID, ch interface{}) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return cs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chanLabel).Put(id[:], raw)
	})
}

// LoadChannel fills in ch.  Returns false if there's no such channel.
func (cs *ChanStore) LoadChannel(id lnutil.ChanID, ch interface{}) (bool, error) {
	var raw []byte
	err := cs.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chanLabel).Get(id[:])
		if v != nil {
			// only good for the life of the tx
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return false, err
	}
	return true, json.Unmarshal(raw, ch)
}

// ChannelIDs lists every saved channel.
func (cs *ChanStore) ChannelIDs() ([]lnutil.ChanID, error) {
	ids := make([]lnutil.ChanID, 0)
	err := cs.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(chanLabel).Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			if len(k) != 32 {
				return fmt.Errorf("bad channel key %x", k)
			}
			var id lnutil.ChanID
			copy(id[:], k)
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteChannel forgets a channel.
func (cs *ChanStore) DeleteChannel(id lnutil.ChanID) error {
	return cs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chanLabel).Delete(id[:])
	})
}
