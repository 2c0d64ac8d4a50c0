package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Gas counts units of execution cost. All metering arithmetic happens in
// this type; conversion to uint64 stays at package boundaries.
type Gas uint64

func (g Gas) Uint64() uint64 {
	return uint64(g)
}

func (g Gas) Add(other Gas) Gas {
	return Gas(g.Uint64() + other.Uint64())
}

func (g Gas) Sub(other Gas) Gas {
	return Gas(g.Uint64() - other.Uint64())
}

func (g Gas) Lt(other Gas) bool {
	return g.Uint64() < other.Uint64()
}

func (g Gas) String() string {
	return strconv.FormatUint(g.Uint64(), 10)
}

func (g Gas) Hex() string {
	return fmt.Sprintf("0x%x", uint64(g))
}

func GasFromHex(s string) (Gas, error) {
	if !strings.HasPrefix(s, "0x") {
		return 0, fmt.Errorf("invalid hex format: %s", s)
	}
	gas, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, err
	}
	return Gas(gas), nil
}

func (g Gas) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Gas) UnmarshalText(input []byte) error {
	res, err := strconv.ParseUint(string(input), 10, 64)
	if err != nil {
		return err
	}
	*g = Gas(res)
	return nil
}

// Set implements pflag.Value.
func (g *Gas) Set(value string) error {
	res, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return err
	}
	*g = Gas(res)
	return nil
}

// Type implements pflag.Value.
func (Gas) Type() string {
	return "Gas"
}
