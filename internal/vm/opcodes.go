package vm

import "fmt"

// OpCode is a single instruction mnemonic. Unlike EVM bytecode, operands
// that identify names (slots, functions, events) travel as instruction
// immediates, so programs stay readable without a compiler.
type OpCode byte

const (
	// STOP halts the frame successfully without a return value.
	STOP OpCode = iota

	ADD
	SUB
	MUL
	DIV
	MOD

	LT
	GT
	EQ
	ISZERO
	AND
	OR
	NOT

	// PUSH places its immediate word on the stack.
	PUSH
	POP
	// DUP duplicates the N-th stack word (1 = top).
	DUP
	// SWAP exchanges the top with the N-th stack word below it.
	SWAP
	// ARG places the N-th bound call argument on the stack.
	ARG

	CALLER
	ORIGIN
	ADDRESS
	CALLVALUE
	TIMESTAMP
	GASLEFT
	BALANCE
	SELFBALANCE

	// SLOT pushes the key of the named state variable. The name resolves to
	// an ordinal of the defining unit's layout when code is flattened.
	SLOT
	// MAPSLOT pops a key word and pushes the derived slot of the named
	// mapping entry.
	MAPSLOT
	SLOAD
	SSTORE

	// REQUIRE pops a condition and fails the frame with RequireFailed and the
	// immediate reason when the condition is zero. Remaining gas is kept.
	REQUIRE
	// ASSERT pops a condition and fails the frame with AssertFailed when the
	// condition is zero. Remaining gas is burned.
	ASSERT
	// REVERT unconditionally fails the frame with the immediate reason.
	REVERT
	// STOPIF pops a condition and halts the frame successfully when it is
	// non-zero.
	STOPIF
	// RETURN pops the frame's return value and halts successfully.
	RETURN

	// EMIT pops one word per field of the named event definition and buffers
	// the event; it is discarded unless the transaction commits.
	EMIT

	// CALL pops target address, attached value and N arguments, and invokes
	// the named function on the target in a child frame.
	CALL
	// DELEGATECALL pops target address and N arguments, and runs the target's
	// code against the calling contract's storage, balance and value.
	DELEGATECALL
	// TRYCALL behaves like CALL but converts child failure into a pushed
	// success flag instead of propagating it.
	TRYCALL
	// SEND pops target address and value, transfers with only the fixed gas
	// stipend forwarded, and pushes a success flag.
	SEND
	// INTCALL pops N arguments and dispatches the named function inside the
	// current frame context.
	INTCALL

	// SELFDESTRUCT pops a beneficiary address, sweeps the contract's balance
	// to it, terminates the contract and halts the frame.
	SELFDESTRUCT
)

var opCodeNames = [...]string{
	STOP:         "STOP",
	ADD:          "ADD",
	SUB:          "SUB",
	MUL:          "MUL",
	DIV:          "DIV",
	MOD:          "MOD",
	LT:           "LT",
	GT:           "GT",
	EQ:           "EQ",
	ISZERO:       "ISZERO",
	AND:          "AND",
	OR:           "OR",
	NOT:          "NOT",
	PUSH:         "PUSH",
	POP:          "POP",
	DUP:          "DUP",
	SWAP:         "SWAP",
	ARG:          "ARG",
	CALLER:       "CALLER",
	ORIGIN:       "ORIGIN",
	ADDRESS:      "ADDRESS",
	CALLVALUE:    "CALLVALUE",
	TIMESTAMP:    "TIMESTAMP",
	GASLEFT:      "GASLEFT",
	BALANCE:      "BALANCE",
	SELFBALANCE:  "SELFBALANCE",
	SLOT:         "SLOT",
	MAPSLOT:      "MAPSLOT",
	SLOAD:        "SLOAD",
	SSTORE:       "SSTORE",
	REQUIRE:      "REQUIRE",
	ASSERT:       "ASSERT",
	REVERT:       "REVERT",
	STOPIF:       "STOPIF",
	RETURN:       "RETURN",
	EMIT:         "EMIT",
	CALL:         "CALL",
	DELEGATECALL: "DELEGATECALL",
	TRYCALL:      "TRYCALL",
	SEND:         "SEND",
	INTCALL:      "INTCALL",
	SELFDESTRUCT: "SELFDESTRUCT",
}

func (op OpCode) String() string {
	if int(op) < len(opCodeNames) && opCodeNames[op] != "" {
		return opCodeNames[op]
	}
	return fmt.Sprintf("opcode %#x not defined", int(op))
}

// IsValid reports whether op names a defined instruction.
func (op OpCode) IsValid() bool {
	return int(op) < len(opCodeNames) && opCodeNames[op] != ""
}

// stringToOp supports the assembler and scenario loader.
var stringToOp = func() map[string]OpCode {
	m := make(map[string]OpCode, len(opCodeNames))
	for op, name := range opCodeNames {
		if name != "" {
			m[name] = OpCode(op)
		}
	}
	return m
}()

// OpCodeFromString returns the opcode for a mnemonic.
func OpCodeFromString(name string) (OpCode, bool) {
	op, ok := stringToOp[name]
	return op, ok
}
