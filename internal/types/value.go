package types

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Value is a 256-bit unsigned amount of the native unit of account. The
// zero Value is usable and equal to NewValueFromUint64(0).
type Value struct {
	*uint256.Int
}

func NewValue(val *uint256.Int) Value {
	return Value{val}
}

func NewValueFromUint64(val uint64) Value {
	return Value{uint256.NewInt(val)}
}

func NewValueFromBig(val *big.Int) (Value, bool) {
	res, overflow := uint256.FromBig(val)
	if overflow {
		return Value{}, false
	}
	return Value{res}, true
}

func NewValueFromBytes(input []byte) Value {
	return Value{new(uint256.Int).SetBytes(input)}
}

func NewZeroValue() Value {
	return Value{uint256.NewInt(0)}
}

// int returns the underlying integer, treating the nil pointer as zero.
func (v Value) int() *uint256.Int {
	if v.Int == nil {
		return uint256.NewInt(0)
	}
	return v.Int
}

func (v Value) IsZero() bool {
	return v.Int == nil || v.Int.IsZero()
}

func (v Value) Add(other Value) Value {
	return Value{new(uint256.Int).Add(v.int(), other.int())}
}

func (v Value) Sub(other Value) Value {
	return Value{new(uint256.Int).Sub(v.int(), other.int())}
}

// AddOverflow reports whether the sum wrapped around.
func (v Value) AddOverflow(other Value) (Value, bool) {
	res, overflow := new(uint256.Int).AddOverflow(v.int(), other.int())
	return Value{res}, overflow
}

// SubOverflow reports whether the difference went below zero.
func (v Value) SubOverflow(other Value) (Value, bool) {
	res, underflow := new(uint256.Int).SubOverflow(v.int(), other.int())
	return Value{res}, underflow
}

func (v Value) Add64(other uint64) Value {
	return v.Add(NewValueFromUint64(other))
}

func (v Value) Sub64(other uint64) Value {
	return v.Sub(NewValueFromUint64(other))
}

func (v Value) Cmp(other Value) int {
	return v.int().Cmp(other.int())
}

func (v Value) Lt(other Value) bool {
	return v.Cmp(other) < 0
}

func (v Value) Eq(other Value) bool {
	return v.Cmp(other) == 0
}

func (v Value) ToBig() *big.Int {
	return v.int().ToBig()
}

// Uint256 returns a copy of the underlying integer.
func (v Value) Uint256() *uint256.Int {
	return new(uint256.Int).Set(v.int())
}

func (v Value) Uint64() uint64 {
	return v.int().Uint64()
}

func (v Value) String() string {
	return v.int().Dec()
}

// EncodeRLP encodes the value as a bare integer rather than as a
// single-field struct.
func (v Value) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, v.int())
}

// DecodeRLP decodes a bare integer into the value.
func (v *Value) DecodeRLP(s *rlp.Stream) error {
	i := new(uint256.Int)
	if err := s.Decode(i); err != nil {
		return err
	}
	v.Int = i
	return nil
}

func (v Value) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Value) UnmarshalText(input []byte) error {
	return v.Set(string(input))
}

// Set implements pflag.Value.
func (v *Value) Set(input string) error {
	res, err := uint256.FromDecimal(input)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", input, err)
	}
	v.Int = res
	return nil
}

// Type implements pflag.Value.
func (Value) Type() string {
	return "Value"
}

// MarshalJSON renders the value as a decimal string.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

func (v *Value) UnmarshalJSON(input []byte) error {
	if len(input) < 2 || input[0] != '"' || input[len(input)-1] != '"' {
		return errors.New("value must be a decimal string")
	}
	return v.Set(string(input[1 : len(input)-1]))
}
