package vm

import (
	"fmt"

	"github.com/hearthvm/hearth/internal/types"
	"github.com/holiman/uint256"
)

// Visibility controls who may invoke a function.
type Visibility uint8

const (
	// External functions accept calls from other contracts and from outside
	// the engine, never from within their own contract.
	External Visibility = iota
	// Public functions accept both external and internal calls.
	Public
	// Internal functions accept calls only from code of the same contract,
	// including inherited units.
	Internal
	// Private functions accept calls only from the unit that defines them.
	Private
)

var visibilityNames = [...]string{
	External: "external",
	Public:   "public",
	Internal: "internal",
	Private:  "private",
}

func (v Visibility) String() string {
	if int(v) < len(visibilityNames) {
		return visibilityNames[v]
	}
	return fmt.Sprintf("visibility(%d)", uint8(v))
}

// Mutability restricts what a function may do to state.
type Mutability uint8

const (
	// NonPayable mutates state but rejects attached value.
	NonPayable Mutability = iota
	// Payable mutates state and accepts attached value.
	Payable
	// View reads state but performs no writes, emits or transfers. The
	// restriction is inherited by everything the frame calls.
	View
	// Pure touches no state at all, not even reads.
	Pure
)

var mutabilityNames = [...]string{
	NonPayable: "nonpayable",
	Payable:    "payable",
	View:       "view",
	Pure:       "pure",
}

func (m Mutability) String() string {
	if int(m) < len(mutabilityNames) {
		return mutabilityNames[m]
	}
	return fmt.Sprintf("mutability(%d)", uint8(m))
}

// ParamKind is the declared type of a function parameter. All values travel
// as 256-bit words; the kind constrains the accepted range at binding.
type ParamKind uint8

const (
	KindUint ParamKind = iota
	KindBool
	KindAddress
)

var paramKindNames = [...]string{
	KindUint:    "uint",
	KindBool:    "bool",
	KindAddress: "address",
}

func (k ParamKind) String() string {
	if int(k) < len(paramKindNames) {
		return paramKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type Param struct {
	Name string
	Kind ParamKind
}

// EventFieldDef declares one field of an event. At most MaxIndexedFields
// fields per event may be indexed.
type EventFieldDef struct {
	Name    string
	Indexed bool
}

type EventDef struct {
	Name   string
	Fields []EventFieldDef
}

// IndexedCount returns the number of indexed fields.
func (d *EventDef) IndexedCount() int {
	n := 0
	for _, f := range d.Fields {
		if f.Indexed {
			n++
		}
	}
	return n
}

// Function is one callable member of a contract. Guarded functions hold the
// contract's reentrancy lock for the duration of the frame. Unit names the
// defining code unit and is stamped during flattening.
type Function struct {
	Name       string
	Visibility Visibility
	Mutability Mutability
	Params     []Param
	Guarded    bool
	Virtual    bool
	Override   bool
	Body       Program
	Unit       string
}

// Payable reports whether the function accepts attached value.
func (f *Function) Payable() bool {
	return f.Mutability == Payable
}

// ReadOnly reports whether the function may not mutate state.
func (f *Function) ReadOnly() bool {
	return f.Mutability == View || f.Mutability == Pure
}

// BindArgs validates an argument list against the parameter declarations.
// Arity and per-kind range violations fail with InvalidArgument.
func (f *Function) BindArgs(args []*uint256.Int) error {
	if len(args) != len(f.Params) {
		return types.NewVerboseError(types.ErrorInvalidArgument,
			fmt.Sprintf("%s expects %d arguments, got %d", f.Name, len(f.Params), len(args)))
	}
	for i, arg := range args {
		if arg == nil {
			return types.NewVerboseError(types.ErrorInvalidArgument,
				fmt.Sprintf("argument %q is nil", f.Params[i].Name))
		}
		switch f.Params[i].Kind {
		case KindBool:
			if arg.GtUint64(1) {
				return types.NewVerboseError(types.ErrorInvalidArgument,
					fmt.Sprintf("argument %q is not a bool", f.Params[i].Name))
			}
		case KindAddress:
			if arg.BitLen() > types.AddrSize*8 {
				return types.NewVerboseError(types.ErrorInvalidArgument,
					fmt.Sprintf("argument %q is not an address", f.Params[i].Name))
			}
		case KindUint:
		}
	}
	return nil
}

// callableExternally reports whether visibility admits a caller from outside
// the contract (another contract or the host).
func (f *Function) callableExternally() bool {
	return f.Visibility == External || f.Visibility == Public
}

// callableInternally reports whether visibility admits a same-contract
// caller defined in fromUnit.
func (f *Function) callableInternally(fromUnit string) bool {
	switch f.Visibility {
	case Public, Internal:
		return true
	case Private:
		return f.Unit == fromUnit
	default:
		return false
	}
}
