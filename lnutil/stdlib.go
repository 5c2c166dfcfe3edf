package lnutil

import (
	"encoding/binary"

	"github.com/mit-dci/escapechan/logging"
)

// Fixed width big endian ints for the message codec.  The decoders log and
// return an all-ones value on a bad length; message readers check lengths
// before they get here, so that only shows up on programming errors.

func U32tB(i uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, i)
	return b
}

func BtU32(b []byte) uint32 {
	if len(b) != 4 {
		logging.Errorf("BtU32 wants 4 bytes, got %d (%x)\n", len(b), b)
		return 0xffffffff
	}
	return binary.BigEndian.Uint32(b)
}

func U64tB(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

func BtU64(b []byte) uint64 {
	if len(b) != 8 {
		logging.Errorf("BtU64 wants 8 bytes, got %d (%x)\n", len(b), b)
		return 0xffffffffffffffff
	}
	return binary.BigEndian.Uint64(b)
}

// I64tB is for amounts, which go out two's complement so a negative
// proposal arrives intact and gets refused on the other side.
func I64tB(i int64) []byte {
	return U64tB(uint64(i))
}

func BtI64(b []byte) int64 {
	if len(b) != 8 {
		logging.Errorf("BtI64 wants 8 bytes, got %d (%x)\n", len(b), b)
		return 0x7fffffffffffffff
	}
	return int64(binary.BigEndian.Uint64(b))
}
