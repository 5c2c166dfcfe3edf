package wallit

import (
	"fmt"
	"sort"

	"github.com/mit-dci/escapechan/lnutil"
	"github.com/mit-dci/escapechan/logging"
)

type utxoSliceByAmt []Utxo

func (s utxoSliceByAmt) Len() int           { return len(s) }
func (s utxoSliceByAmt) Less(i, j int) bool { return s[i].Value < s[j].Value }
func (s utxoSliceByAmt) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// PickUtxos picks coins worth at least amtWanted, and returns them with the
// overshoot.  Doesn't freeze anything.
func PickUtxos(all []Utxo, amtWanted int64) ([]Utxo, int64, error) {
	avail := make(utxoSliceByAmt, len(all))
	copy(avail, all)

	// biggest first
	sort.Sort(sort.Reverse(avail))

	// if the next one is enough on its own, drop the one on top.  Tends to
	// give 1 or 2 inputs with small change.
	for len(avail) > 1 && avail[1].Value >= amtWanted {
		avail = avail[1:]
	}

	var picked []Utxo
	remaining := amtWanted
	for _, u := range avail {
		if remaining <= 0 {
			break
		}
		picked = append(picked, u)
		remaining -= u.Value
	}
	if remaining > 0 {
		return nil, 0, fmt.Errorf("wanted %d but only %d available",
			amtWanted, amtWanted-remaining)
	}
	return picked, -remaining, nil
}

// FundingInputs picks and freezes coins for a channel anchor.
func (k *Keyring) FundingInputs(id lnutil.ChanID, amt int64) ([]lnutil.FundingInput, [33]byte, error) {
	var change [33]byte
	k.mtx.Lock()
	if _, ok := k.FreezeSet[id]; ok {
		k.mtx.Unlock()
		return nil, change, fmt.Errorf("already funding channel %s", id)
	}
	picked, overshoot, err := PickUtxos(k.utxos, amt)
	if err != nil {
		k.mtx.Unlock()
		return nil, change, err
	}
	k.FreezeSet[id] = picked
	k.utxos = without(k.utxos, picked)
	k.mtx.Unlock()

	change, err = k.NewChangePub()
	if err != nil {
		k.ReleaseInputs(id)
		return nil, change, err
	}

	ins := make([]lnutil.FundingInput, len(picked))
	for i, u := range picked {
		ins[i] = lnutil.FundingInput{Op: u.Op, Value: u.Value}
	}
	logging.Debugf("froze %d coins for %s, change %s\n",
		len(ins), id, lnutil.SatoshiColor(overshoot))
	return ins, change, nil
}

// ReleaseInputs unfreezes a channel's coins.
func (k *Keyring) ReleaseInputs(id lnutil.ChanID) {
	k.mtx.Lock()
	defer k.mtx.Unlock()
	frozen, ok := k.FreezeSet[id]
	if !ok {
		return
	}
	delete(k.FreezeSet, id)
	k.utxos = append(k.utxos, frozen...)
	logging.Debugf("released %d coins of %s\n", len(frozen), id)
}

func without(all, drop []Utxo) []Utxo {
	out := make([]Utxo, 0, len(all))
	for _, u := range all {
		keep := true
		for _, d := range drop {
			if u.Op == d.Op {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, u)
		}
	}
	return out
}
