package common

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashSize is the expected length of the hash (in bytes).
const HashSize = 32

// Hash represents the 32-byte hash of arbitrary data. It doubles as the
// storage slot key type: slot keys are either ordinal (Uint64ToHash) or
// derived (KeccakHash for mapping entries).
type Hash [HashSize]byte

var EmptyHash = Hash{}

// BytesToHash returns Hash with value b.
// If b is larger than len(h), b will be cropped from the left.
func BytesToHash(b []byte) Hash {
	var h Hash
	h.SetBytes(b)
	return h
}

// HexToHash returns Hash with byte values of s.
func HexToHash(s string) Hash {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}
	}
	return BytesToHash(b)
}

// Uint64ToHash returns the big-endian representation of v as a Hash.
func Uint64ToHash(v uint64) Hash {
	var h Hash
	binary.BigEndian.PutUint64(h[HashSize-8:], v)
	return h
}

// KeccakHash computes the keccak256 digest of the concatenation of data.
func KeccakHash(data ...[]byte) Hash {
	return Hash(crypto.Keccak256Hash(data...))
}

// SetBytes sets the hash to the value of b.
// If b is larger than len(h), b will be cropped from the left.
func (h *Hash) SetBytes(b []byte) {
	if len(b) > len(h) {
		b = b[len(b)-HashSize:]
	}
	copy(h[HashSize-len(b):], b)
}

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) Hex() string { return hexutil.Encode(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) Empty() bool { return h == EmptyHash }

// Uint64 interprets the low 8 bytes as a big-endian integer.
func (h Hash) Uint64() uint64 {
	return binary.BigEndian.Uint64(h[HashSize-8:])
}

// MarshalText returns the hex representation of h.
func (h Hash) MarshalText() ([]byte, error) {
	return hexutil.Bytes(h[:]).MarshalText()
}

func (h *Hash) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("Hash", input, h[:])
}

// Format implements fmt.Formatter.
// Hash supports the %v, %s, %q, %x and %X format verbs.
func (h Hash) Format(s fmt.State, c rune) {
	hexb := make([]byte, 2+len(h)*2)
	copy(hexb, "0x")
	hex.Encode(hexb[2:], h[:])

	switch c {
	case 'x', 'X':
		if !s.Flag('#') {
			hexb = hexb[2:]
		}
		if c == 'X' {
			hexb = bytes.ToUpper(hexb)
		}
		fallthrough
	case 'v', 's':
		_, _ = s.Write(hexb)
	case 'q':
		q := []byte{'"'}
		_, _ = s.Write(q)
		_, _ = s.Write(hexb)
		_, _ = s.Write(q)
	default:
		fmt.Fprintf(s, "%%!%c(hash=%x)", c, h)
	}
}
