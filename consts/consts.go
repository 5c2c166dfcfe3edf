package consts

// commonly used constants that can be used anywhere, without ambiguity
const (
	MinChanCapacity = int64(100000)    // minimum channel capacity (client + server)
	MaxChanCapacity = int64(100000000) // maximum channel capacity (at 1 coin now)
	MaxFunding      = int64(50000000)  // most an acceptor will put in by default
	MinOutput       = int64(1000)      // below this, give to miners
	AnchorFeeShare  = int64(5000)      // each side pays this much of the anchor fee
	EscapeFee       = int64(5000)      // fee of escape / fast escape txs, paid by the holder
	PaymentPathFee  = int64(1000)      // fee of a payment path tx, paid by the payer
	EscapeDelay     = uint16(144)      // CSV delay on the holder's escape output
	FastEscapeDelay = uint16(6)        // CSV delay on the holder's fast escape output
	MaxPayments     = 64               // max open payments per channel state
	MaxInputs       = 256              // max funding inputs per side

	// escape and fast escape path of each holder
	PathTxsPerPayment = 4
)
