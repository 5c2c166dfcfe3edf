package qln

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/wire"
	"github.com/mit-dci/escapechan/lnutil"
)

// The Wallet interface is what the handshakes need from key management.
// Verbs are from the perspective of the channel, not the underlying wallet.
type Wallet interface {
	// ChannelKeys gives the escape and fast escape keys for a channel.
	// Same channel id, same keys.
	ChannelKeys(id lnutil.ChanID) (escape, fastEscape *btcec.PrivateKey, err error)

	// FundingInputs picks inputs worth at least amt for the anchor and a
	// pubkey for change.  The inputs are "frozen" until ReleaseInputs or
	// the anchor confirms.
	FundingInputs(id lnutil.ChanID, amt int64) ([]lnutil.FundingInput, [33]byte, error)

	// ReleaseInputs unfreezes inputs picked for a channel that didn't open.
	ReleaseInputs(id lnutil.ChanID)
}

// RevocationStore hands out this node's revocation hashes.  It has to have
// written a hash to disk before returning it.  Safe for concurrent use.
type RevocationStore interface {
	// NextRevocationHash appends a new entry to the channel's chain and
	// returns it with the secret blanked.
	NextRevocationHash(id lnutil.ChanID) (lnutil.RevocationHash, error)

	// PriorHashes returns every entry below upTo, secrets included, oldest
	// first.
	PriorHashes(id lnutil.ChanID, upTo uint64) ([]lnutil.RevocationHash, error)
}

// BroadcastGateway puts fully built transactions on chain.  Submitting the
// same tx twice is fine.  Safe for concurrent use.
type BroadcastGateway interface {
	Submit(tx *wire.MsgTx) error
}

// pubArr serializes a pubkey the way channels store them.
func pubArr(pub *btcec.PublicKey) (arr [33]byte) {
	copy(arr[:], pub.SerializeCompressed())
	return
}
