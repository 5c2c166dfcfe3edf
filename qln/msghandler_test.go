package qln

import (
	"testing"

	"github.com/mit-dci/escapechan/lnutil"
	"github.com/stretchr/testify/require"
)

// pump passes messages back and forth as bytes until one side has nothing
// more to say.
func pump(t *testing.T, first lnutil.LitMsg, from, to *Router) error {
	b := first.Bytes()
	for b != nil {
		reply, err := to.HandleBytes(b, 1)
		if err != nil {
			return err
		}
		b = reply
		from, to = to, from
	}
	return nil
}

func TestRouterEstablishAndPay(t *testing.T) {
	client, server := newTestPair(t)
	cr := NewRouter(client.cfg)
	sr := NewRouter(server.cfg)

	id, a, err := cr.OpenChannel(1, 100000, 50000)
	require.NoError(t, err)
	require.Equal(t, []lnutil.ChanID{id}, cr.Channels())

	// not open yet
	_, ok := cr.Channel(id)
	require.False(t, ok)
	_, err = cr.Propose(id, lnutil.ChannelUpdate{})
	require.Error(t, err)

	require.NoError(t, pump(t, a, cr, sr))

	cc, ok := cr.Channel(id)
	require.True(t, ok)
	sc, ok := sr.Channel(id)
	require.True(t, ok)
	require.True(t, sc.IsServer)
	require.Equal(t, cc.AnchorTx.TxHash(), sc.AnchorTx.TxHash())
	require.Len(t, client.gateway.submitted(), 1)
	require.Len(t, server.gateway.submitted(), 1)

	msg, err := cr.Propose(id, move(cc, 30000))
	require.NoError(t, err)
	require.NoError(t, pump(t, msg, cr, sr))

	cc, _ = cr.Channel(id)
	sc, _ = sr.Channel(id)
	require.Equal(t, int64(80000), sc.AmountServer)
	require.Equal(t, int64(70000), cc.AmountClient)
	require.Equal(t, uint64(1), cc.Version())

	// server pays back through its router
	msg, err = sr.Propose(id, move(sc, -10000))
	require.NoError(t, err)
	require.NoError(t, pump(t, msg, sr, cr))
	cc, _ = cr.Channel(id)
	require.Equal(t, int64(80000), cc.AmountClient)

	// copies only
	cc.AmountClient = 0
	again, _ := cr.Channel(id)
	require.Equal(t, int64(80000), again.AmountClient)

	// a late establishment message doesn't hurt anything
	_, err = sr.HandleBytes(a.Bytes(), 1)
	requireKind(t, KindOutOfOrderMessage, err)
	sc, ok = sr.Channel(id)
	require.True(t, ok)
	require.Equal(t, uint64(2), sc.Version())
}

func TestRouterUnknownChannel(t *testing.T) {
	_, server := newTestPair(t)
	sr := NewRouter(server.cfg)

	reply, err := sr.HandleMessage(lnutil.UpdateAMsg{PeerIdx: 3, ChanID: lnutil.ChanID{9}})
	requireKind(t, KindUnknownChannel, err)
	requireFailureMsg(t, KindUnknownChannel, reply)
	require.Equal(t, uint32(3), reply.Peer())

	// and no reply to a failure
	reply, err = sr.HandleMessage(lnutil.NewFailureMsg(3, lnutil.ChanID{9}, 0, "bye"))
	requireKind(t, KindUnknownChannel, err)
	require.Nil(t, reply)

	_, err = sr.Propose(lnutil.ChanID{9}, lnutil.ChannelUpdate{})
	requireKind(t, KindUnknownChannel, err)
	require.Empty(t, sr.Channels())
}

func TestRouterFailedChannelDropped(t *testing.T) {
	client, server := newTestPair(t)
	cr := NewRouter(client.cfg)
	sr := NewRouter(server.cfg)

	id, a, err := cr.OpenChannel(1, 100000, 50000)
	require.NoError(t, err)
	b, err := sr.HandleMessage(a)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Len(t, sr.Channels(), 1)

	// client gives up, server forgets it
	fail := cr.Teardown(id, "changed my mind")
	requireFailureMsg(t, KindUnknown, fail)
	require.Empty(t, cr.Channels())
	require.Equal(t, 1, client.wallet.released)

	reply, err := sr.HandleMessage(fail)
	requireKind(t, KindPeerFailure, err)
	require.Nil(t, reply)
	require.Empty(t, sr.Channels())
	require.Equal(t, 1, server.wallet.released)

	// B now goes nowhere
	reply, err = cr.HandleMessage(b)
	requireKind(t, KindUnknownChannel, err)
	requireFailureMsg(t, KindUnknownChannel, reply)

	require.Nil(t, cr.Teardown(id, "again"))
}

func TestRouterBadOpen(t *testing.T) {
	client, _ := newTestPair(t)
	cr := NewRouter(client.cfg)
	_, msg, err := cr.OpenChannel(1, 10, 10)
	requireKind(t, KindInvalidProposal, err)
	require.Nil(t, msg)
	require.Empty(t, cr.Channels())
}

func TestRouterTeardownActive(t *testing.T) {
	client, server := newTestPair(t)
	cr := NewRouter(client.cfg)
	sr := NewRouter(server.cfg)
	id, a, err := cr.OpenChannel(1, 100000, 50000)
	require.NoError(t, err)
	require.NoError(t, pump(t, a, cr, sr))

	// nothing in flight
	require.Nil(t, cr.Teardown(id, "idle"))

	msg, err := cr.Propose(id, move(mustChannel(t, cr, id), 1000))
	require.NoError(t, err)
	require.NotNil(t, msg)
	fail := cr.Teardown(id, "peer quiet")
	requireFailureMsg(t, KindUnknown, fail)

	// still open, old state
	cc := mustChannel(t, cr, id)
	require.Equal(t, int64(100000), cc.AmountClient)

	// a fresh update goes through
	msg, err = cr.Propose(id, move(cc, 1000))
	require.NoError(t, err)
	require.NoError(t, pump(t, msg, cr, sr))
	require.Equal(t, int64(51000), mustChannel(t, sr, id).AmountServer)
}

func mustChannel(t *testing.T, r *Router, id lnutil.ChanID) *Channel {
	c, ok := r.Channel(id)
	require.True(t, ok)
	return c
}

func TestRouterWrongPeer(t *testing.T) {
	client, server := newTestPair(t)
	cr := NewRouter(client.cfg)
	sr := NewRouter(server.cfg)

	id, a, err := cr.OpenChannel(1, 100000, 50000)
	require.NoError(t, err)
	b, err := sr.HandleMessage(a)
	require.NoError(t, err)

	// someone else can't kill the handshake
	reply, err := sr.HandleBytes(lnutil.NewFailureMsg(1, id, 0, "die").Bytes(), 7)
	requireKind(t, KindUnknownChannel, err)
	require.Nil(t, reply)
	require.Len(t, sr.Channels(), 1)

	require.NoError(t, pump(t, b, sr, cr))
	mustChannel(t, sr, id)

	// or start an update on the channel
	msg, err := cr.Propose(id, move(mustChannel(t, cr, id), 1000))
	require.NoError(t, err)
	out, err := sr.HandleBytes(msg.Bytes(), 7)
	requireKind(t, KindUnknownChannel, err)
	fail, err := lnutil.LitMsgFromBytes(out, 7)
	require.NoError(t, err)
	requireFailureMsg(t, KindUnknownChannel, fail)
	require.Equal(t, uint64(0), mustChannel(t, sr, id).Version())

	// the real peer still gets through
	require.NoError(t, pump(t, msg, cr, sr))
	require.Equal(t, int64(51000), mustChannel(t, sr, id).AmountServer)
}

func TestRouterRestore(t *testing.T) {
	client, server := newTestPair(t)
	cr := NewRouter(client.cfg)
	sr := NewRouter(server.cfg)
	id, a, err := cr.OpenChannel(1, 100000, 50000)
	require.NoError(t, err)
	require.NoError(t, pump(t, a, cr, sr))
	msg, err := cr.Propose(id, move(mustChannel(t, cr, id), 5000))
	require.NoError(t, err)
	require.NoError(t, pump(t, msg, cr, sr))

	// server comes back up with what it saved
	saved := mustChannel(t, sr, id)
	again := NewRouter(server.cfg)
	require.NoError(t, again.Restore(saved))
	require.Error(t, again.Restore(saved))
	require.Equal(t, []lnutil.ChanID{id}, again.Channels())
	require.Equal(t, int64(55000), mustChannel(t, again, id).AmountServer)

	msg, err = cr.Propose(id, move(mustChannel(t, cr, id), 5000))
	require.NoError(t, err)
	require.NoError(t, pump(t, msg, cr, again))
	require.Equal(t, int64(60000), mustChannel(t, again, id).AmountServer)
	require.Equal(t, int64(90000), mustChannel(t, cr, id).AmountClient)

	// establishment is over for a restored channel
	_, err = again.HandleBytes(a.Bytes(), 1)
	requireKind(t, KindOutOfOrderMessage, err)
	require.Nil(t, again.Teardown(id, "idle"))

	// somebody else's channel doesn't go with this wallet
	require.Error(t, NewRouter(server.cfg).Restore(mustChannel(t, cr, id)))
}
