package vm

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Instruction is one executable step. Immediates ride on the instruction:
// Val carries PUSH words, Name carries slot/function/event/reason names and
// N carries counts and positions. Flattening rewrites Name-addressed slots
// into ordinals (kept in N) against the deployed unit's layout.
type Instruction struct {
	Op   OpCode
	Val  *uint256.Int
	Name string
	N    int
}

// Program is an instruction sequence executed top to bottom. Running past
// the end halts the frame successfully, like a trailing STOP.
type Program []Instruction

func (in Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	switch in.Op {
	case PUSH:
		fmt.Fprintf(&sb, " %s", in.Val)
	case DUP, SWAP, ARG:
		fmt.Fprintf(&sb, " %d", in.N)
	case SLOT, MAPSLOT:
		fmt.Fprintf(&sb, " %s", in.Name)
	case REQUIRE, REVERT:
		fmt.Fprintf(&sb, " %q", in.Name)
	case EMIT:
		fmt.Fprintf(&sb, " %s", in.Name)
	case CALL, DELEGATECALL, TRYCALL, INTCALL:
		fmt.Fprintf(&sb, " %s/%d", in.Name, in.N)
	}
	return sb.String()
}

func (p Program) String() string {
	lines := make([]string, len(p))
	for i, in := range p {
		lines[i] = fmt.Sprintf("%04d: %s", i, in.String())
	}
	return strings.Join(lines, "\n")
}

// Builder helpers keep hand-written programs close to assembler notation.

func Push(v uint64) Instruction { return Instruction{Op: PUSH, Val: uint256.NewInt(v)} }

func PushWord(v *uint256.Int) Instruction {
	return Instruction{Op: PUSH, Val: new(uint256.Int).Set(v)}
}

func Pop() Instruction { return Instruction{Op: POP} }
func Dup(n int) Instruction { return Instruction{Op: DUP, N: n} }
func Swap(n int) Instruction { return Instruction{Op: SWAP, N: n} }
func Arg(n int) Instruction { return Instruction{Op: ARG, N: n} }

func Caller() Instruction { return Instruction{Op: CALLER} }
func Origin() Instruction { return Instruction{Op: ORIGIN} }
func Self() Instruction { return Instruction{Op: ADDRESS} }
func CallValue() Instruction { return Instruction{Op: CALLVALUE} }
func Timestamp() Instruction { return Instruction{Op: TIMESTAMP} }
func GasLeft() Instruction { return Instruction{Op: GASLEFT} }
func Balance() Instruction { return Instruction{Op: BALANCE} }
func SelfBalance() Instruction { return Instruction{Op: SELFBALANCE} }

func Add() Instruction { return Instruction{Op: ADD} }
func Sub() Instruction { return Instruction{Op: SUB} }
func Mul() Instruction { return Instruction{Op: MUL} }
func Div() Instruction { return Instruction{Op: DIV} }
func Mod() Instruction { return Instruction{Op: MOD} }
func Lt() Instruction { return Instruction{Op: LT} }
func Gt() Instruction { return Instruction{Op: GT} }
func Eq() Instruction { return Instruction{Op: EQ} }
func IsZero() Instruction { return Instruction{Op: ISZERO} }
func And() Instruction { return Instruction{Op: AND} }
func Or() Instruction { return Instruction{Op: OR} }
func Not() Instruction { return Instruction{Op: NOT} }

func Slot(name string) Instruction { return Instruction{Op: SLOT, Name: name} }
func MapSlot(name string) Instruction { return Instruction{Op: MAPSLOT, Name: name} }
func SLoad() Instruction { return Instruction{Op: SLOAD} }
func SStore() Instruction { return Instruction{Op: SSTORE} }

func Require(reason string) Instruction { return Instruction{Op: REQUIRE, Name: reason} }
func Assert() Instruction { return Instruction{Op: ASSERT} }
func Revert(reason string) Instruction { return Instruction{Op: REVERT, Name: reason} }
func Stop() Instruction { return Instruction{Op: STOP} }
func StopIf() Instruction { return Instruction{Op: STOPIF} }
func Return() Instruction { return Instruction{Op: RETURN} }

func Emit(event string) Instruction { return Instruction{Op: EMIT, Name: event} }

func Call(function string, argc int) Instruction {
	return Instruction{Op: CALL, Name: function, N: argc}
}

func DelegateCall(function string, argc int) Instruction {
	return Instruction{Op: DELEGATECALL, Name: function, N: argc}
}

func TryCall(function string, argc int) Instruction {
	return Instruction{Op: TRYCALL, Name: function, N: argc}
}

func Send() Instruction { return Instruction{Op: SEND} }

func IntCall(function string, argc int) Instruction {
	return Instruction{Op: INTCALL, Name: function, N: argc}
}

func SelfDestruct() Instruction { return Instruction{Op: SELFDESTRUCT} }
