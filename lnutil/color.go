package lnutil

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	chanStyle = color.New(color.FgYellow).SprintFunc()
	coinStyle = color.New(color.FgHiWhite, color.Underline).SprintFunc()
	satStyle  = color.New(color.Faint).SprintFunc()
)

// ChanColor prints a channel id the way the logs show it.
func ChanColor(id ChanID) string {
	return chanStyle(id.String())
}

// SatoshiColor prints an amount with whole coins underlined and the last
// 5 digits faint, so 150000 reads as 1 50000.  Without color it's just the
// number.
func SatoshiColor(value int64) string {
	if value < 0 {
		return "-" + SatoshiColor(-value)
	}
	coins, rest := value/100000000, value%100000000
	milli, sats := rest/100000, rest%100000
	switch {
	case coins > 0:
		return fmt.Sprintf("%s%03d%s", coinStyle(coins), milli, satStyle(fmt.Sprintf("%05d", sats)))
	case milli > 0:
		return fmt.Sprintf("%d%s", milli, satStyle(fmt.Sprintf("%05d", sats)))
	}
	return satStyle(sats)
}
