package vm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/internal/types"
)

type executionFunc func(e *Engine, fr *frame, in *Instruction) error

// operation describes one opcode for the dispatch loop: its handler, the
// flat gas charged before the handler runs, the stack words it consumes
// and produces, and whether it touches state. Ops with dynamic costs or
// dynamic stack effects carry zeros here and meter themselves.
type operation struct {
	execute     executionFunc
	constantGas types.Gas
	numPop      int
	numPush     int
	writes      bool
	reads       bool
}

var jumpTable [SELFDESTRUCT + 1]operation

func init() {
	jumpTable = [SELFDESTRUCT + 1]operation{
		STOP: {execute: opStop},

		ADD: {execute: opAdd, constantGas: GasFastestStep, numPop: 2, numPush: 1},
		SUB: {execute: opSub, constantGas: GasFastestStep, numPop: 2, numPush: 1},
		MUL: {execute: opMul, constantGas: GasFastStep, numPop: 2, numPush: 1},
		DIV: {execute: opDiv, constantGas: GasFastStep, numPop: 2, numPush: 1},
		MOD: {execute: opMod, constantGas: GasFastStep, numPop: 2, numPush: 1},

		LT:     {execute: opLt, constantGas: GasFastestStep, numPop: 2, numPush: 1},
		GT:     {execute: opGt, constantGas: GasFastestStep, numPop: 2, numPush: 1},
		EQ:     {execute: opEq, constantGas: GasFastestStep, numPop: 2, numPush: 1},
		ISZERO: {execute: opIsZero, constantGas: GasFastestStep, numPop: 1, numPush: 1},
		AND:    {execute: opAnd, constantGas: GasFastestStep, numPop: 2, numPush: 1},
		OR:     {execute: opOr, constantGas: GasFastestStep, numPop: 2, numPush: 1},
		NOT:    {execute: opNot, constantGas: GasFastestStep, numPop: 1, numPush: 1},

		PUSH: {execute: opPush, constantGas: GasFastestStep, numPush: 1},
		POP:  {execute: opPop, constantGas: GasQuickStep, numPop: 1},
		DUP:  {execute: opDup, constantGas: GasFastestStep},
		SWAP: {execute: opSwap, constantGas: GasFastestStep},
		ARG:  {execute: opArg, constantGas: GasQuickStep, numPush: 1},

		CALLER:      {execute: opCaller, constantGas: GasQuickStep, numPush: 1},
		ORIGIN:      {execute: opOrigin, constantGas: GasQuickStep, numPush: 1},
		ADDRESS:     {execute: opAddress, constantGas: GasQuickStep, numPush: 1},
		CALLVALUE:   {execute: opCallValue, constantGas: GasQuickStep, numPush: 1},
		TIMESTAMP:   {execute: opTimestamp, constantGas: GasQuickStep, numPush: 1},
		GASLEFT:     {execute: opGasLeft, constantGas: GasQuickStep, numPush: 1},
		BALANCE:     {execute: opBalance, constantGas: GasExtStep, numPop: 1, numPush: 1, reads: true},
		SELFBALANCE: {execute: opSelfBalance, constantGas: GasFastStep, numPush: 1, reads: true},

		SLOT:    {execute: opSlot, constantGas: GasQuickStep, numPush: 1},
		MAPSLOT: {execute: opMapSlot, constantGas: KeccakGas, numPop: 1, numPush: 1},
		SLOAD:   {execute: opSLoad, constantGas: SloadGas, numPop: 1, numPush: 1, reads: true},
		SSTORE:  {execute: opSStore, numPop: 2, writes: true},

		REQUIRE: {execute: opRequire, constantGas: GasQuickStep, numPop: 1},
		ASSERT:  {execute: opAssert, constantGas: GasQuickStep, numPop: 1},
		REVERT:  {execute: opRevert, constantGas: GasQuickStep},
		STOPIF:  {execute: opStopIf, constantGas: GasQuickStep, numPop: 1},
		RETURN:  {execute: opReturn, constantGas: GasQuickStep, numPop: 1},

		EMIT: {execute: opEmit, writes: true},

		CALL:         {execute: opCall},
		DELEGATECALL: {execute: opDelegateCall},
		TRYCALL:      {execute: opTryCall},
		SEND:         {execute: opSend},
		INTCALL:      {execute: opIntCall},

		SELFDESTRUCT: {execute: opSelfDestruct, constantGas: SelfdestructGas, numPop: 1, writes: true},
	}
}

func underflowErr(op OpCode, have, want int) error {
	return types.NewVmVerboseError(types.ErrorStackUnderflow,
		fmt.Sprintf("%s needs %d stack words, have %d", op, want, have))
}

func overflowErr(op OpCode) error {
	return types.NewVmVerboseError(types.ErrorStackOverflow,
		fmt.Sprintf("%s exceeds the stack limit of %d", op, StackLimit))
}

// run executes the frame's function body until it halts, fails or falls
// off the end. Gas policy for failures is applied by the caller.
func (e *Engine) run(fr *frame) error {
	body := fr.fn.Body
	for fr.pc = 0; fr.pc < len(body); fr.pc++ {
		in := &body[fr.pc]
		if !in.Op.IsValid() || jumpTable[in.Op].execute == nil {
			return types.NewVmVerboseError(types.ErrorInvalidOpcode, fmt.Sprintf("opcode %d", in.Op))
		}
		op := &jumpTable[in.Op]

		if have := fr.stack.len(); have < op.numPop {
			return underflowErr(in.Op, have, op.numPop)
		}
		if fr.stack.len()-op.numPop+op.numPush > StackLimit {
			return overflowErr(in.Op)
		}
		if op.writes && fr.readOnly {
			return ErrWriteProtection
		}
		if op.reads && fr.noState {
			return ErrWriteProtection
		}
		if op.constantGas > 0 {
			if err := fr.meter.Charge(op.constantGas); err != nil {
				return err
			}
		}
		if err := op.execute(e, fr, in); err != nil {
			return err
		}
		if fr.halted {
			return nil
		}
	}
	return nil
}

func opStop(e *Engine, fr *frame, in *Instruction) error {
	fr.halted = true
	return nil
}

func opAdd(e *Engine, fr *frame, in *Instruction) error {
	x := fr.stack.pop()
	y := fr.stack.peek()
	y.Add(y, &x)
	return nil
}

func opSub(e *Engine, fr *frame, in *Instruction) error {
	x := fr.stack.pop()
	y := fr.stack.peek()
	y.Sub(y, &x)
	return nil
}

func opMul(e *Engine, fr *frame, in *Instruction) error {
	x := fr.stack.pop()
	y := fr.stack.peek()
	y.Mul(y, &x)
	return nil
}

func opDiv(e *Engine, fr *frame, in *Instruction) error {
	x := fr.stack.pop()
	y := fr.stack.peek()
	y.Div(y, &x)
	return nil
}

func opMod(e *Engine, fr *frame, in *Instruction) error {
	x := fr.stack.pop()
	y := fr.stack.peek()
	y.Mod(y, &x)
	return nil
}

func opLt(e *Engine, fr *frame, in *Instruction) error {
	x := fr.stack.pop()
	y := fr.stack.peek()
	if y.Lt(&x) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil
}

func opGt(e *Engine, fr *frame, in *Instruction) error {
	x := fr.stack.pop()
	y := fr.stack.peek()
	if y.Gt(&x) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil
}

func opEq(e *Engine, fr *frame, in *Instruction) error {
	x := fr.stack.pop()
	y := fr.stack.peek()
	if y.Eq(&x) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil
}

func opIsZero(e *Engine, fr *frame, in *Instruction) error {
	y := fr.stack.peek()
	if y.IsZero() {
		y.SetOne()
	} else {
		y.Clear()
	}
	return nil
}

func opAnd(e *Engine, fr *frame, in *Instruction) error {
	x := fr.stack.pop()
	y := fr.stack.peek()
	y.And(y, &x)
	return nil
}

func opOr(e *Engine, fr *frame, in *Instruction) error {
	x := fr.stack.pop()
	y := fr.stack.peek()
	y.Or(y, &x)
	return nil
}

func opNot(e *Engine, fr *frame, in *Instruction) error {
	y := fr.stack.peek()
	y.Not(y)
	return nil
}

func opPush(e *Engine, fr *frame, in *Instruction) error {
	fr.stack.push(in.Val)
	return nil
}

func opPop(e *Engine, fr *frame, in *Instruction) error {
	fr.stack.pop()
	return nil
}

func opDup(e *Engine, fr *frame, in *Instruction) error {
	if have := fr.stack.len(); have < in.N {
		return underflowErr(DUP, have, in.N)
	}
	if fr.stack.len()+1 > StackLimit {
		return overflowErr(DUP)
	}
	fr.stack.dup(in.N)
	return nil
}

func opSwap(e *Engine, fr *frame, in *Instruction) error {
	if have := fr.stack.len(); have < in.N+1 {
		return underflowErr(SWAP, have, in.N+1)
	}
	fr.stack.swap(in.N + 1)
	return nil
}

func opArg(e *Engine, fr *frame, in *Instruction) error {
	fr.stack.push(fr.args[in.N])
	return nil
}

func opCaller(e *Engine, fr *frame, in *Instruction) error {
	fr.stack.push(new(uint256.Int).SetBytes(fr.caller.Bytes()))
	return nil
}

func opOrigin(e *Engine, fr *frame, in *Instruction) error {
	fr.stack.push(new(uint256.Int).SetBytes(e.origin.Bytes()))
	return nil
}

func opAddress(e *Engine, fr *frame, in *Instruction) error {
	fr.stack.push(new(uint256.Int).SetBytes(fr.self.Bytes()))
	return nil
}

func opCallValue(e *Engine, fr *frame, in *Instruction) error {
	fr.stack.push(fr.value.Uint256())
	return nil
}

func opTimestamp(e *Engine, fr *frame, in *Instruction) error {
	fr.stack.push(uint256.NewInt(e.timestamp))
	return nil
}

func opGasLeft(e *Engine, fr *frame, in *Instruction) error {
	fr.stack.push(uint256.NewInt(fr.meter.Remaining().Uint64()))
	return nil
}

func opBalance(e *Engine, fr *frame, in *Instruction) error {
	slot := fr.stack.peek()
	bal, err := e.state.GetBalance(wordToAddress(slot))
	if err != nil {
		return err
	}
	slot.Set(bal.Uint256())
	return nil
}

func opSelfBalance(e *Engine, fr *frame, in *Instruction) error {
	bal, err := e.state.GetBalance(fr.self)
	if err != nil {
		return err
	}
	fr.stack.push(bal.Uint256())
	return nil
}

func opSlot(e *Engine, fr *frame, in *Instruction) error {
	fr.stack.push(uint256.NewInt(uint64(in.N)))
	return nil
}

func opMapSlot(e *Engine, fr *frame, in *Instruction) error {
	key := fr.stack.peek()
	keyBytes := key.Bytes32()
	base := common.Uint64ToHash(uint64(in.N))

	var buf [2 * common.HashSize]byte
	copy(buf[:common.HashSize], keyBytes[:])
	copy(buf[common.HashSize:], base[:])

	derived := common.KeccakHash(buf[:])
	key.SetBytes(derived[:])
	return nil
}

func opSLoad(e *Engine, fr *frame, in *Instruction) error {
	slot := fr.stack.peek()
	val, err := e.state.GetState(fr.self, common.Hash(slot.Bytes32()))
	if err != nil {
		return err
	}
	slot.SetBytes(val[:])
	return nil
}

func opSStore(e *Engine, fr *frame, in *Instruction) error {
	key := fr.stack.pop()
	val := fr.stack.pop()

	slot := common.Hash(key.Bytes32())
	prev, err := e.state.GetState(fr.self, slot)
	if err != nil {
		return err
	}

	cost := SstoreResetGas
	if prev.Empty() && !val.IsZero() {
		cost = SstoreSetGas
	}
	if err := fr.meter.Charge(cost); err != nil {
		return err
	}
	return e.state.SetState(fr.self, slot, common.Hash(val.Bytes32()))
}

func opRequire(e *Engine, fr *frame, in *Instruction) error {
	cond := fr.stack.pop()
	if !cond.IsZero() {
		return nil
	}
	if in.Name == "" {
		return types.NewVmError(types.ErrorRequireFailed)
	}
	return types.NewVmVerboseError(types.ErrorRequireFailed, in.Name)
}

func opAssert(e *Engine, fr *frame, in *Instruction) error {
	cond := fr.stack.pop()
	if !cond.IsZero() {
		return nil
	}
	return types.NewVmError(types.ErrorAssertFailed)
}

func opRevert(e *Engine, fr *frame, in *Instruction) error {
	if in.Name == "" {
		return ErrExecutionReverted
	}
	return types.NewVmVerboseError(types.ErrorExecutionReverted, in.Name)
}

func opStopIf(e *Engine, fr *frame, in *Instruction) error {
	cond := fr.stack.pop()
	if !cond.IsZero() {
		fr.halted = true
	}
	return nil
}

func opReturn(e *Engine, fr *frame, in *Instruction) error {
	fr.ret = fr.stack.pop()
	fr.halted = true
	return nil
}

func opEmit(e *Engine, fr *frame, in *Instruction) error {
	def := fr.code.EventDef(in.Name)
	if def == nil {
		return types.NewVmVerboseError(types.ErrorInvalidOpcode, fmt.Sprintf("unknown event %q", in.Name))
	}
	if have := fr.stack.len(); have < len(def.Fields) {
		return underflowErr(EMIT, have, len(def.Fields))
	}
	if err := fr.meter.Charge(emitGas(def)); err != nil {
		return err
	}

	fields := make([]types.EventField, len(def.Fields))
	for i := len(def.Fields) - 1; i >= 0; i-- {
		v := fr.stack.pop()
		fields[i] = types.EventField{
			Name:    def.Fields[i].Name,
			Value:   types.NewValue(new(uint256.Int).Set(&v)),
			Indexed: def.Fields[i].Indexed,
		}
	}

	e.state.AddEvent(&types.Event{
		Address: fr.self,
		Name:    def.Name,
		Fields:  fields,
	})
	return nil
}
