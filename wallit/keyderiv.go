package wallit

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/mit-dci/escapechan/lnutil"
)

/*
Key derivation has 3 levels under m/44'/0': use case, index, and key.
Change addresses are use 3, index 0, and then a linear key index.
Channel keys are use 2, an index taken from the channel id, and key 0 for
the escape key, 1 for the fast escape key.
Everything is hardened.
*/

const (
	UseChange  = 3
	UseChannel = 2

	keyEscape     = 0
	keyFastEscape = 1
)

// PathPrivkey returns a private key by descending the given path.  All steps
// are hardened.
func (k *Keyring) PathPrivkey(path ...uint32) (*btcec.PrivateKey, error) {
	key := k.rootPrivKey
	var err error
	for _, step := range append([]uint32{44, 0}, path...) {
		key, err = key.Child(step | hdkeychain.HardenedKeyStart)
		if err != nil {
			return nil, err
		}
	}
	return key.ECPrivKey()
}

// PathPubHash160 returns a 20 byte pubkey hash for the given path.
func (k *Keyring) PathPubHash160(path ...uint32) ([]byte, error) {
	priv, err := k.PathPrivkey(path...)
	if err != nil {
		return nil, err
	}
	return btcutil.Hash160(priv.PubKey().SerializeCompressed()), nil
}

// chanIndex is where under the channel use a channel's keys are.
func chanIndex(id lnutil.ChanID) uint32 {
	return lnutil.BtU32(id[:4]) &^ hdkeychain.HardenedKeyStart
}

// ChannelKeys gives the escape and fast escape keys for a channel.
func (k *Keyring) ChannelKeys(id lnutil.ChanID) (*btcec.PrivateKey, *btcec.PrivateKey, error) {
	idx := chanIndex(id)
	esc, err := k.PathPrivkey(UseChannel, idx, keyEscape)
	if err != nil {
		return nil, nil, err
	}
	fast, err := k.PathPrivkey(UseChannel, idx, keyFastEscape)
	if err != nil {
		return nil, nil, err
	}
	return esc, fast, nil
}

// NewChangePub gives a fresh pubkey for change.
func (k *Keyring) NewChangePub() ([33]byte, error) {
	var arr [33]byte
	k.mtx.Lock()
	idx := k.changeIdx
	k.changeIdx++
	k.mtx.Unlock()

	priv, err := k.PathPrivkey(UseChange, 0, idx)
	if err != nil {
		return arr, err
	}
	copy(arr[:], priv.PubKey().SerializeCompressed())
	return arr, nil
}

// GetWalletAddress gives the p2wpkh address of a change key.
func (k *Keyring) GetWalletAddress(idx uint32) (*btcutil.AddressWitnessPubKeyHash, error) {
	pkh, err := k.PathPubHash160(UseChange, 0, idx)
	if err != nil {
		return nil, err
	}
	return btcutil.NewAddressWitnessPubKeyHash(pkh, k.Param)
}
