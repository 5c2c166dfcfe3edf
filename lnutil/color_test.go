package lnutil

import (
	"testing"

	"github.com/fatih/color"
)

func TestSatoshiColor(t *testing.T) {
	color.NoColor = true
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{99999, "99999"},
		{150000, "150000"},
		{100000000, "100000000"},
		{-50000, "-50000"},
	}
	for _, tt := range tests {
		if got := SatoshiColor(tt.in); got != tt.want {
			t.Fatalf("SatoshiColor(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
