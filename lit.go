package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/mit-dci/escapechan/config"
	"github.com/mit-dci/escapechan/lnutil"
	"github.com/mit-dci/escapechan/logging"
	"github.com/mit-dci/escapechan/qln"
	"github.com/pkg/errors"
)

// exchange hands messages back and forth between two nodes, through the
// wire format, until one of them has nothing to say.
func exchange(from, to *node, msg lnutil.LitMsg) error {
	b := msg.Bytes()
	for b != nil {
		reply, err := to.router.HandleBytes(b, to.peer)
		if err != nil {
			return errors.Wrapf(err, "%s", to.name)
		}
		b = reply
		from, to = to, from
	}
	return nil
}

func showBalances(id lnutil.ChanID, nodes ...*node) {
	for _, n := range nodes {
		ch, ok := n.router.Channel(id)
		if !ok {
			fmt.Printf("%s: no channel %s\n", n.name, id)
			continue
		}
		mine, theirs := ch.Balances()
		fmt.Printf("%s: %s mine %s theirs %s\n", n.name, ch.String(),
			lnutil.SatoshiColor(mine), lnutil.SatoshiColor(theirs))
	}
}

func run(conf config.Config, alice, bob *node) error {
	id, msg, err := alice.router.OpenChannel(alice.peer, conf.Capacity-conf.Push, conf.Push)
	if err != nil {
		return err
	}
	err = exchange(alice, bob, msg)
	if err != nil {
		return err
	}
	for _, n := range []*node{alice, bob} {
		err = n.persist()
		if err != nil {
			return err
		}
	}
	showBalances(id, alice, bob)

	ch, ok := alice.router.Channel(id)
	if !ok {
		return errors.Errorf("channel %s didn't open", id)
	}
	msg, err = alice.router.Propose(id, lnutil.ChannelUpdate{
		AmountClient: ch.AmountClient - conf.Pay,
		AmountServer: ch.AmountServer + conf.Pay,
	})
	if err != nil {
		return err
	}
	err = exchange(alice, bob, msg)
	if err != nil {
		return err
	}
	for _, n := range []*node{alice, bob} {
		err = n.persist()
		if err != nil {
			return err
		}
	}
	showBalances(id, alice, bob)
	return nil
}

func main() {
	conf := config.Default()
	key, logFile, err := config.Setup(&conf, os.Args[1:])
	if err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			config.NewConfigParser(&conf, flags.Default).WriteHelp(os.Stdout)
			return
		}
		logging.Fatal(err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	fmt.Printf("escapechan demo on %s\n", conf.Params.Name)
	fmt.Printf("-h for list of options.\n")

	alice, err := newNode(conf, key, "alice", 1)
	if err != nil {
		logging.Fatalf("alice: %s\n", err.Error())
	}
	defer alice.close()
	bob, err := newNode(conf, key, "bob", 0)
	if err != nil {
		logging.Fatalf("bob: %s\n", err.Error())
	}
	defer bob.close()

	err = run(conf, alice, bob)
	if err != nil {
		logging.Errorf("%s: %s\n", qln.KindOf(err), err.Error())
		return
	}
}
