package qln

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// ErrorKind says what went wrong in a handshake.  It goes over the wire in
// failure messages.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindInvalidProposal
	KindTransactionMismatch
	KindSignatureInvalid
	KindOutOfOrderMessage
	KindUnknownChannel
	KindRevocationMismatch
	KindPeerFailure
)

var (
	ErrInvalidProposal     = errors.New("invalid proposal")
	ErrTransactionMismatch = errors.New("transaction mismatch")
	ErrSignatureInvalid    = errors.New("signature invalid")
	ErrOutOfOrderMessage   = errors.New("out of order message")
	ErrUnknownChannel      = errors.New("unknown channel")
	ErrRevocationMismatch  = errors.New("revocation mismatch")
	ErrPeerFailure         = errors.New("peer reported failure")
)

var kinds = []struct {
	kind ErrorKind
	err  error
}{
	{KindInvalidProposal, ErrInvalidProposal},
	{KindTransactionMismatch, ErrTransactionMismatch},
	{KindSignatureInvalid, ErrSignatureInvalid},
	{KindOutOfOrderMessage, ErrOutOfOrderMessage},
	{KindUnknownChannel, ErrUnknownChannel},
	{KindRevocationMismatch, ErrRevocationMismatch},
	{KindPeerFailure, ErrPeerFailure},
}

// KindOf maps an error back to its kind.  Errors that aren't handshake
// errors (store, wallet) are KindUnknown.
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		if stderrors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

func (k ErrorKind) String() string {
	for _, kk := range kinds {
		if kk.kind == k {
			return kk.err.Error()
		}
	}
	return "unknown error"
}
