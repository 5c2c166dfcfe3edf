package lnbolt

import (
	"fmt"
	"sync"

	"github.com/mit-dci/escapechan/elkrem"
	"github.com/mit-dci/escapechan/lnutil"
)

// MemRevStore is RevStore without the disk, for tests and throwaway nodes.
type MemRevStore struct {
	mtx    sync.Mutex
	seed   []byte
	counts map[lnutil.ChanID]uint64
}

func NewMemRevStore(seed []byte) *MemRevStore {
	return &MemRevStore{
		seed:   append([]byte(nil), seed...),
		counts: make(map[lnutil.ChanID]uint64),
	}
}

func (s *MemRevStore) sender(id lnutil.ChanID) (*elkrem.Sender, error) {
	if len(s.seed) == 0 {
		return nil, fmt.Errorf("empty revocation seed")
	}
	root, err := elkrem.RootFromSeed(s.seed, id)
	if err != nil {
		return nil, err
	}
	return elkrem.NewSender(root), nil
}

func (s *MemRevStore) NextRevocationHash(id lnutil.ChanID) (lnutil.RevocationHash, error) {
	s.mtx.Lock()
	idx := s.counts[id]
	s.counts[id] = idx + 1
	s.mtx.Unlock()

	snd, err := s.sender(id)
	if err != nil {
		return lnutil.RevocationHash{}, err
	}
	rev, err := snd.Revocation(idx)
	if err != nil {
		return lnutil.RevocationHash{}, err
	}
	return rev.Commitment(), nil
}

func (s *MemRevStore) PriorHashes(id lnutil.ChanID, upTo uint64) ([]lnutil.RevocationHash, error) {
	s.mtx.Lock()
	count := s.counts[id]
	s.mtx.Unlock()
	return priorHashes(s, id, count, upTo)
}
