package qln

import (
	"flag"
	"os"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/mit-dci/escapechan/db/lnbolt"
	"github.com/mit-dci/escapechan/eventbus"
	"github.com/mit-dci/escapechan/lnutil"
	"github.com/mit-dci/escapechan/logging"
	"github.com/mit-dci/escapechan/wallit"
	"github.com/stretchr/testify/require"
)

var testChanID = lnutil.ChanID{0xaa, 0xbb, 0xcc, 0x01}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Verbose() {
		logging.SetupTestLogs()
	}
	os.Exit(m.Run())
}

// countingWallet is a keyring that remembers what it was asked.
type countingWallet struct {
	*wallit.Keyring
	mtx      sync.Mutex
	keyCalls int
	released int
}

func (w *countingWallet) ChannelKeys(id lnutil.ChanID) (*btcec.PrivateKey, *btcec.PrivateKey, error) {
	w.mtx.Lock()
	w.keyCalls++
	w.mtx.Unlock()
	return w.Keyring.ChannelKeys(id)
}

func (w *countingWallet) ReleaseInputs(id lnutil.ChanID) {
	w.mtx.Lock()
	w.released++
	w.mtx.Unlock()
	w.Keyring.ReleaseInputs(id)
}

// memGateway keeps whatever is submitted.
type memGateway struct {
	mtx sync.Mutex
	txs []*wire.MsgTx
}

func (g *memGateway) Submit(tx *wire.MsgTx) error {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	g.txs = append(g.txs, tx)
	return nil
}

func (g *memGateway) submitted() []*wire.MsgTx {
	g.mtx.Lock()
	defer g.mtx.Unlock()
	return append([]*wire.MsgTx(nil), g.txs...)
}

// testNode is everything one side needs.
type testNode struct {
	cfg     ChanConfig
	wallet  *countingWallet
	gateway *memGateway
	bus     *eventbus.EventBus
	events  map[string][]eventbus.Event
	evMtx   sync.Mutex
}

func newTestNode(t *testing.T, seed string, peerIdx uint32, coin int64) *testNode {
	kr, err := wallit.NewKeyring([]byte(seed), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	op := wire.OutPoint{Hash: chainhash.HashH([]byte(seed)), Index: 1}
	require.NoError(t, kr.GainUtxo(wallit.Utxo{Op: op, Value: coin}))

	n := &testNode{
		wallet:  &countingWallet{Keyring: kr},
		gateway: &memGateway{},
		bus:     eventbus.NewEventBus(),
		events:  make(map[string][]eventbus.Event),
	}
	for _, name := range []string{EventChannelActive, EventChannelFailed,
		EventUpdateCommitted, EventUpdateFailed} {
		name := name
		n.bus.RegisterHandler(name, func(e eventbus.Event) eventbus.EventHandleResult {
			n.evMtx.Lock()
			n.events[name] = append(n.events[name], e)
			n.evMtx.Unlock()
			return eventbus.EHANDLE_OK
		})
	}
	n.cfg = ChanConfig{
		Wallet:      n.wallet,
		Store:       lnbolt.NewMemRevStore([]byte(seed + " revocations")),
		Gateway:     n.gateway,
		Bus:         n.bus,
		PeerIdx:     peerIdx,
		MinCapacity: 100000,
		MaxFunding:  500000,
	}
	return n
}

func (n *testNode) count(name string) int {
	n.evMtx.Lock()
	defer n.evMtx.Unlock()
	return len(n.events[name])
}

func newTestPair(t *testing.T) (client, server *testNode) {
	return newTestNode(t, "client node seed, 32 bytes long!", 2, 500000),
		newTestNode(t, "server node seed, 32 bytes long!", 1, 300000)
}

// establish runs a whole establishment and returns both machines.
func establish(t *testing.T, client, server *testNode, amtClient, amtServer int64) (*Establisher, *Establisher) {
	opener := NewOpener(client.cfg, testChanID, amtClient, amtServer)
	acceptor := NewAcceptor(server.cfg)

	a, err := opener.Start()
	require.NoError(t, err)
	b, err := acceptor.Handle(a)
	require.NoError(t, err)
	c, err := opener.Handle(b)
	require.NoError(t, err)
	d, err := acceptor.Handle(c)
	require.NoError(t, err)
	last, err := opener.Handle(d)
	require.NoError(t, err)
	require.Nil(t, last)

	require.Equal(t, StateActive, opener.State())
	require.Equal(t, StateActive, acceptor.State())
	return opener, acceptor
}

// payers establishes a channel and hands back payers for both sides.
func payers(t *testing.T, amtClient, amtServer int64) (cp, sp *Payer, client, server *testNode) {
	client, server = newTestPair(t)
	opener, acceptor := establish(t, client, server, amtClient, amtServer)
	var err error
	cp, err = NewPayer(client.cfg, opener.Channel())
	require.NoError(t, err)
	sp, err = NewPayer(server.cfg, acceptor.Channel())
	require.NoError(t, err)
	return
}

// runUpdate goes through A to D and returns the 4 messages.
func runUpdate(t *testing.T, from, to *Payer, u lnutil.ChannelUpdate) (
	lnutil.UpdateAMsg, lnutil.UpdateBMsg, lnutil.UpdateCMsg, lnutil.UpdateDMsg) {

	a, err := from.Propose(u)
	require.NoError(t, err)
	b, err := to.Handle(a)
	require.NoError(t, err)
	c, err := from.Handle(b)
	require.NoError(t, err)
	d, err := to.Handle(c)
	require.NoError(t, err)
	last, err := from.Handle(d)
	require.NoError(t, err)
	require.Nil(t, last)
	return a.(lnutil.UpdateAMsg), b.(lnutil.UpdateBMsg), c.(lnutil.UpdateCMsg), d.(lnutil.UpdateDMsg)
}

func requireKind(t *testing.T, kind ErrorKind, err error) {
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "error: %v", err)
}

func requireFailureMsg(t *testing.T, kind ErrorKind, msg lnutil.LitMsg) {
	require.NotNil(t, msg)
	fm, ok := msg.(lnutil.FailureMsg)
	require.True(t, ok, "reply is %T", msg)
	require.Equal(t, uint8(kind), fm.Kind)
}
