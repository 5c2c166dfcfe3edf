package wallit

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/mit-dci/escapechan/lnutil"
)

// Utxo is a coin the keyring can put into a channel anchor.
type Utxo struct {
	Op    wire.OutPoint
	Value int64
}

// Keyring is a small HD wallet that hands out channel keys and funding coins.
// It keeps its coins in memory; whatever feeds it coins keeps track of the
// chain.  Safe for concurrent use.
type Keyring struct {
	mtx sync.Mutex

	// Params live here...
	Param *chaincfg.Params

	utxos []Utxo
	// coins promised to a channel that isn't open yet
	FreezeSet map[lnutil.ChanID][]Utxo

	changeIdx uint32

	// From here, comes everything. It's a secret to everybody.
	rootPrivKey *hdkeychain.ExtendedKey
}

// NewKeyring makes a keyring from a seed.
func NewKeyring(seed []byte, p *chaincfg.Params) (*Keyring, error) {
	root, err := hdkeychain.NewMaster(seed, p)
	if err != nil {
		return nil, err
	}
	return &Keyring{
		Param:       p,
		FreezeSet:   make(map[lnutil.ChanID][]Utxo),
		rootPrivKey: root,
	}, nil
}

// GainUtxo adds a spendable coin.
func (k *Keyring) GainUtxo(u Utxo) error {
	if u.Value < 1 {
		return fmt.Errorf("utxo %s has value %d", u.Op.String(), u.Value)
	}
	k.mtx.Lock()
	defer k.mtx.Unlock()
	for _, have := range k.utxos {
		if have.Op == u.Op {
			return fmt.Errorf("already have utxo %s", u.Op.String())
		}
	}
	k.utxos = append(k.utxos, u)
	return nil
}

// SpendFrozen is for when a channel's anchor made it; its coins are gone.
func (k *Keyring) SpendFrozen(id lnutil.ChanID) {
	k.mtx.Lock()
	delete(k.FreezeSet, id)
	k.mtx.Unlock()
}

// Balance is what's free to spend and what's frozen for channels.
func (k *Keyring) Balance() (free, frozen int64) {
	k.mtx.Lock()
	defer k.mtx.Unlock()
	for _, u := range k.utxos {
		free += u.Value
	}
	for _, us := range k.FreezeSet {
		for _, u := range us {
			frozen += u.Value
		}
	}
	return
}
