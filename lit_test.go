package main

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/mit-dci/escapechan/config"
	"github.com/mit-dci/escapechan/lnutil"
	"github.com/stretchr/testify/require"
)

func TestDemoRun(t *testing.T) {
	dir, err := ioutil.TempDir("", "escapechan")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	conf := config.Default()
	conf.HomeDir = dir
	conf.Params = &chaincfg.RegressionNetParams
	key := &[32]byte{1, 2, 3}

	alice, err := newNode(conf, key, "alice", 1)
	require.NoError(t, err)
	bob, err := newNode(conf, key, "bob", 0)
	require.NoError(t, err)

	require.NoError(t, run(conf, alice, bob))

	// both wrote the channel out after the payment
	for _, n := range []*node{alice, bob} {
		ids, err := n.chans.ChannelIDs()
		require.NoError(t, err)
		require.Len(t, ids, 1)

		var saved struct {
			AmountClient int64
			AmountServer int64
		}
		ok, err := n.chans.LoadChannel(ids[0], &saved)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, conf.Capacity-conf.Push-conf.Pay, saved.AmountClient)
		require.Equal(t, conf.Push+conf.Pay, saved.AmountServer)
	}

	ids, err := alice.chans.ChannelIDs()
	require.NoError(t, err)
	id := ids[0]
	alice.close()
	bob.close()

	// start both back up and keep using the channel
	alice, err = newNode(conf, key, "alice", 1)
	require.NoError(t, err)
	defer alice.close()
	bob, err = newNode(conf, key, "bob", 0)
	require.NoError(t, err)
	defer bob.close()

	ch, ok := alice.router.Channel(id)
	require.True(t, ok)
	require.Equal(t, conf.Capacity-conf.Push-conf.Pay, ch.AmountClient)
	_, ok = bob.router.Channel(id)
	require.True(t, ok)

	msg, err := alice.router.Propose(id, lnutil.ChannelUpdate{
		AmountClient: ch.AmountClient - conf.Pay,
		AmountServer: ch.AmountServer + conf.Pay,
	})
	require.NoError(t, err)
	require.NoError(t, exchange(alice, bob, msg))
	require.NoError(t, bob.persist())
	ch, ok = bob.router.Channel(id)
	require.True(t, ok)
	require.Equal(t, conf.Push+2*conf.Pay, ch.AmountServer)
	require.Equal(t, uint64(2), ch.Version())
}
