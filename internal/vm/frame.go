package vm

import (
	"github.com/holiman/uint256"

	"github.com/hearthvm/hearth/internal/types"
)

// callKind selects the child-call flavor inside the shared call path.
type callKind int

const (
	kindCall callKind = iota
	kindTryCall
	kindSend
	kindDelegate
)

// frame is one function activation. self is the storage and balance
// namespace the code runs against; under DELEGATECALL it stays the
// calling contract while code comes from the call target.
type frame struct {
	caller types.Address
	self   types.Address
	code   *Code
	fn     *Function
	args   []*uint256.Int
	value  types.Value
	depth  int

	// readOnly forbids state writes, noState additionally forbids state
	// reads. Both stick for the rest of the call subtree.
	readOnly bool
	noState  bool
	inCtor   bool

	meter *GasMeter
	stack *stack

	pc     int
	ret    uint256.Int
	halted bool
}

// wordToAddress truncates a stack word to the 20 low-order bytes.
func wordToAddress(w *uint256.Int) types.Address {
	return types.Address(w.Bytes20())
}
