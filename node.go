package main

import (
	"path/filepath"

	"github.com/boltdb/bolt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/mit-dci/escapechan/config"
	"github.com/mit-dci/escapechan/consts"
	"github.com/mit-dci/escapechan/db/lnbolt"
	"github.com/mit-dci/escapechan/eventbus"
	"github.com/mit-dci/escapechan/lnutil"
	"github.com/mit-dci/escapechan/logging"
	"github.com/mit-dci/escapechan/qln"
	"github.com/mit-dci/escapechan/wallit"
	"github.com/pkg/errors"
)

// node is one side of the demo: its own db, keys and router.
type node struct {
	name string
	peer uint32 // index of the other node

	db     *bolt.DB
	chans  *lnbolt.ChanStore
	wallet *wallit.Keyring
	router *qln.Router

	// channels to write out
	changed []<-chan eventbus.Event
}

// logGateway doesn't talk to a chain, it just says what it would send.
type logGateway struct {
	name string
	sent []*wire.MsgTx
}

func (g *logGateway) Submit(tx *wire.MsgTx) error {
	logging.Infof("%s broadcast %s\n", g.name, tx.TxHash().String())
	if logging.Level() >= logging.LogLevelDebug {
		logging.Debugf("%s", lnutil.TxToString(tx))
	}
	g.sent = append(g.sent, tx)
	return nil
}

func nodeSeed(key *[32]byte, name, use string) []byte {
	return chainhash.DoubleHashB(append(append(key[:], name...), use...))
}

func newNode(conf config.Config, key *[32]byte, name string, peer uint32) (*node, error) {
	dbPath := filepath.Join(conf.HomeDir, name+"-"+conf.DBFile)
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, dbPath)
	}
	n := &node{name: name, peer: peer, db: db}

	revs, err := lnbolt.NewRevStore(db, nodeSeed(key, name, "revocation"))
	if err != nil {
		db.Close()
		return nil, err
	}
	n.chans, err = lnbolt.NewChanStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	n.wallet, err = wallit.NewKeyring(nodeSeed(key, name, "wallet"), conf.Params)
	if err != nil {
		db.Close()
		return nil, err
	}
	// pretend we have a coin big enough for either side of the channel
	coin := wallit.Utxo{
		Op:    wire.OutPoint{Hash: chainhash.HashH([]byte(name + " coin")), Index: 0},
		Value: conf.Capacity + consts.AnchorFeeShare,
	}
	err = n.wallet.GainUtxo(coin)
	if err != nil {
		db.Close()
		return nil, err
	}

	bus := eventbus.NewEventBus()
	bus.RegisterHandler(qln.EventChannelFailed, func(e eventbus.Event) eventbus.EventHandleResult {
		ev := e.(qln.ChannelFailedEvent)
		logging.Warnf("%s: channel %s failed (%s)\n", name, ev.ChanID, ev.Kind)
		return eventbus.EHANDLE_OK
	})
	bus.RegisterHandler(qln.EventUpdateFailed, func(e eventbus.Event) eventbus.EventHandleResult {
		ev := e.(qln.UpdateFailedEvent)
		logging.Warnf("%s: update on %s failed (%s)\n", name, ev.ChanID, ev.Kind)
		return eventbus.EHANDLE_OK
	})
	n.changed = []<-chan eventbus.Event{
		bus.Subscribe(qln.EventChannelActive, 16),
		bus.Subscribe(qln.EventUpdateCommitted, 16),
	}

	n.router = qln.NewRouter(qln.ChanConfig{
		Wallet:      n.wallet,
		Store:       revs,
		Gateway:     &logGateway{name: name},
		Bus:         bus,
		MinCapacity: conf.MinCapacity,
		MaxFunding:  conf.MaxFunding,
	})

	restored, err := n.restore()
	if err != nil {
		db.Close()
		return nil, err
	}
	logging.Infof("%s up, %d channels restored, %s in wallet\n",
		name, restored, lnutil.SatoshiColor(coin.Value))
	return n, nil
}

// restore hands every saved channel back to the router.  A channel the
// wallet has no keys for is skipped.
func (n *node) restore() (int, error) {
	ids, err := n.chans.ChannelIDs()
	if err != nil {
		return 0, err
	}
	var count int
	for _, id := range ids {
		ch := new(qln.Channel)
		found, err := n.chans.LoadChannel(id, ch)
		if err != nil {
			return count, errors.Wrapf(err, "load %s", id)
		}
		if !found {
			continue
		}
		err = n.router.Restore(ch)
		if err != nil {
			logging.Warnf("%s: %s\n", n.name, err.Error())
			continue
		}
		logging.Debugf("%s restored %s\n", n.name, ch.String())
		count++
	}
	return count, nil
}

// persist writes out every channel that changed since last time.  Has to
// run outside of message handling since it asks the router for channels.
func (n *node) persist() error {
	for _, c := range n.changed {
	drain:
		for {
			select {
			case e := <-c:
				var id lnutil.ChanID
				switch ev := e.(type) {
				case qln.ChannelActiveEvent:
					id = ev.ChanID
				case qln.UpdateCommittedEvent:
					id = ev.ChanID
				}
				ch, ok := n.router.Channel(id)
				if !ok {
					continue
				}
				err := n.chans.SaveChannel(id, ch)
				if err != nil {
					return err
				}
				logging.Debugf("%s saved %s\n", n.name, ch.String())
			default:
				break drain
			}
		}
	}
	return nil
}

func (n *node) close() {
	err := n.db.Close()
	if err != nil {
		logging.Errorf("%s db close: %s\n", n.name, err.Error())
	}
}
