package wallit

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/mit-dci/escapechan/lnutil"
	"github.com/stretchr/testify/require"
)

var testSeed = []byte("thirty two bytes of keyring seed")

func testUtxo(n byte, val int64) Utxo {
	return Utxo{Op: wire.OutPoint{Hash: chainhash.Hash{n}, Index: uint32(n)}, Value: val}
}

func newTestKeyring(t *testing.T, vals ...int64) *Keyring {
	k, err := NewKeyring(testSeed, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	for i, v := range vals {
		require.NoError(t, k.GainUtxo(testUtxo(byte(i+1), v)))
	}
	return k
}

func TestChannelKeysStable(t *testing.T) {
	k := newTestKeyring(t)
	id := lnutil.ChanID{1, 2, 3, 4}

	esc, fast, err := k.ChannelKeys(id)
	require.NoError(t, err)
	esc2, fast2, err := k.ChannelKeys(id)
	require.NoError(t, err)
	require.Equal(t, esc.Serialize(), esc2.Serialize())
	require.Equal(t, fast.Serialize(), fast2.Serialize())
	require.NotEqual(t, esc.Serialize(), fast.Serialize())

	other, _, err := k.ChannelKeys(lnutil.ChanID{4, 3, 2, 1})
	require.NoError(t, err)
	require.NotEqual(t, esc.Serialize(), other.Serialize())

	// same seed, same keys
	k2 := newTestKeyring(t)
	esc3, _, err := k2.ChannelKeys(id)
	require.NoError(t, err)
	require.Equal(t, esc.Serialize(), esc3.Serialize())
}

func TestPickUtxos(t *testing.T) {
	all := []Utxo{testUtxo(1, 1000), testUtxo(2, 50000), testUtxo(3, 200000)}

	picked, over, err := PickUtxos(all, 40000)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	require.Equal(t, int64(50000), picked[0].Value)
	require.Equal(t, int64(10000), over)

	picked, over, err = PickUtxos(all, 240000)
	require.NoError(t, err)
	require.Len(t, picked, 2)
	require.Equal(t, int64(10000), over)

	_, _, err = PickUtxos(all, 300000)
	require.Error(t, err)
}

func TestFundingInputsFreeze(t *testing.T) {
	k := newTestKeyring(t, 100000, 300000)
	id := lnutil.ChanID{9}

	ins, change, err := k.FundingInputs(id, 150000)
	require.NoError(t, err)
	require.True(t, lnutil.SumInputs(ins) >= 150000)
	require.NotEqual(t, [33]byte{}, change)

	free, frozen := k.Balance()
	require.Equal(t, int64(400000), free+frozen)
	require.Equal(t, lnutil.SumInputs(ins), frozen)

	// frozen coins aren't picked again
	_, _, err = k.FundingInputs(lnutil.ChanID{10}, 150000)
	require.Error(t, err)

	// twice for one channel isn't allowed
	_, _, err = k.FundingInputs(id, 1)
	require.Error(t, err)

	k.ReleaseInputs(id)
	free, frozen = k.Balance()
	require.Equal(t, int64(400000), free)
	require.Zero(t, frozen)

	// releasing twice is fine
	k.ReleaseInputs(id)
}

func TestSpendFrozen(t *testing.T) {
	k := newTestKeyring(t, 100000)
	id := lnutil.ChanID{1}
	_, _, err := k.FundingInputs(id, 50000)
	require.NoError(t, err)
	k.SpendFrozen(id)
	free, frozen := k.Balance()
	require.Zero(t, free)
	require.Zero(t, frozen)
}

func TestGainUtxoDup(t *testing.T) {
	k := newTestKeyring(t, 5000)
	require.Error(t, k.GainUtxo(testUtxo(1, 5000)))
	require.Error(t, k.GainUtxo(testUtxo(7, 0)))
}

func TestWalletAddress(t *testing.T) {
	k := newTestKeyring(t)
	adr, err := k.GetWalletAddress(0)
	require.NoError(t, err)
	require.True(t, adr.IsForNet(&chaincfg.RegressionNetParams))
}
