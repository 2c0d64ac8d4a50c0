package vm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hearthvm/hearth/common/logging"
	"github.com/hearthvm/hearth/internal/types"
)

var logger = logging.NewLogger("vm")

// Engine executes calls against a StateDB. One engine serves one
// outermost call: origin and timestamp are fixed for its lifetime.
type Engine struct {
	state     StateDB
	origin    types.Address
	timestamp uint64
	maxDepth  int
}

func NewEngine(state StateDB, origin types.Address, timestamp uint64) *Engine {
	return &Engine{
		state:     state,
		origin:    origin,
		timestamp: timestamp,
	}
}

// MaxDepth reports the deepest frame reached since the engine was created.
func (e *Engine) MaxDepth() int {
	return e.maxDepth
}

// ExecutionResult carries the outcome of one outermost call: the return
// word, metered gas and the failure, split into execution errors and
// fatal backend errors.
type ExecutionResult struct {
	ReturnValue uint256.Int
	GasLimit    types.Gas
	GasUsed     types.Gas
	Error       error
	FatalError  error
}

func NewExecutionResult() *ExecutionResult {
	return &ExecutionResult{}
}

// SetFailure files err as an execution error when it carries a known
// error code and as fatal otherwise.
func (r *ExecutionResult) SetFailure(err error) *ExecutionResult {
	if types.IsValidError(err) {
		r.Error = err
	} else {
		r.FatalError = err
	}
	return r
}

func (r *ExecutionResult) SetReturn(v uint256.Int) *ExecutionResult {
	r.ReturnValue = v
	return r
}

func (r *ExecutionResult) SetGas(m *GasMeter) *ExecutionResult {
	r.GasLimit = m.Limit()
	r.GasUsed = m.Used()
	return r
}

func (r *ExecutionResult) Failed() bool {
	return r.Error != nil || r.FatalError != nil
}

func (r *ExecutionResult) IsFatal() bool {
	return r.FatalError != nil
}

func (r *ExecutionResult) GetError() error {
	if r.FatalError != nil {
		return r.FatalError
	}
	return r.Error
}

// applyGasPolicy settles a failed meter: error classes that burn consume
// everything left, the rest keep the unconsumed remainder.
func applyGasPolicy(m *GasMeter, err error) {
	if err == nil {
		return
	}
	if types.GetErrorCode(err).BurnsRemainingGas() {
		m.BurnRemaining()
	}
}

// fatal reports backend errors that must abort execution unclassified.
func fatal(err error) bool {
	return err != nil && !types.IsValidError(err)
}

// Call runs fnName on the contract with the attached value, metered by
// gasLimit. An empty fnName dispatches the receive function. The caller
// owns the surrounding snapshot: on a failed result the state must be
// reverted and nothing committed.
func (e *Engine) Call(caller, contract types.Address, fnName string, args []*uint256.Int,
	value types.Value, gasLimit types.Gas,
) *ExecutionResult {
	res := NewExecutionResult()
	meter := NewGasMeter(gasLimit)

	ret, err := e.outerCall(meter, caller, contract, fnName, args, value)
	applyGasPolicy(meter, err)
	res.SetGas(meter)
	if err != nil {
		res.SetFailure(err)
		logger.Debug().
			Err(err).
			Stringer(logging.FieldContract, contract).
			Str(logging.FieldFunction, fnName).
			Uint64(logging.FieldGasUsed, res.GasUsed.Uint64()).
			Msg("Call failed")
		return res
	}
	return res.SetReturn(ret)
}

func (e *Engine) outerCall(meter *GasMeter, caller, contract types.Address, fnName string,
	args []*uint256.Int, value types.Value,
) (uint256.Int, error) {
	if err := meter.Charge(BaseTxGas); err != nil {
		return uint256.Int{}, err
	}

	code, err := e.state.GetCode(contract)
	if err != nil {
		return uint256.Int{}, err
	}
	if code == nil {
		return uint256.Int{}, types.NewVmVerboseError(types.ErrorContractDoesNotExist, contract.Hex())
	}

	fn, err := resolveFunction(code, fnName)
	if err != nil {
		return uint256.Int{}, err
	}
	if fn.Guarded && e.state.GuardHeld(contract) {
		return uint256.Int{}, types.NewVmVerboseError(types.ErrorReentrancyBlocked, fn.Name)
	}
	if err := fn.BindArgs(args); err != nil {
		return uint256.Int{}, err
	}
	if err := e.checkTransfer(caller, fn, value); err != nil {
		return uint256.Int{}, err
	}
	if err := e.transfer(caller, contract, value); err != nil {
		return uint256.Int{}, err
	}
	if fn.Guarded {
		e.state.SetGuard(contract, true)
	}

	fr := &frame{
		caller:   caller,
		self:     contract,
		code:     code,
		fn:       fn,
		args:     args,
		value:    value,
		readOnly: fn.ReadOnly(),
		noState:  fn.Mutability == Pure,
		meter:    meter,
	}
	ret, err := e.execFrame(fr)
	if err != nil {
		return uint256.Int{}, err
	}
	if fn.Guarded {
		e.state.SetGuard(contract, false)
	}
	return ret, nil
}

// Deploy runs the constructor of freshly created code at addr. The
// contract account must already exist in the state; the caller owns the
// surrounding snapshot and reverts the creation if the result failed.
func (e *Engine) Deploy(deployer, addr types.Address, args []*uint256.Int,
	value types.Value, gasLimit types.Gas,
) *ExecutionResult {
	res := NewExecutionResult()
	meter := NewGasMeter(gasLimit)

	ret, err := e.runConstructor(meter, deployer, addr, args, value)
	applyGasPolicy(meter, err)
	res.SetGas(meter)
	if err != nil {
		return res.SetFailure(err)
	}
	return res.SetReturn(ret)
}

func (e *Engine) runConstructor(meter *GasMeter, deployer, addr types.Address,
	args []*uint256.Int, value types.Value,
) (uint256.Int, error) {
	if err := meter.Charge(BaseTxGas + DeployBaseGas); err != nil {
		return uint256.Int{}, err
	}

	code, err := e.state.GetCode(addr)
	if err != nil {
		return uint256.Int{}, err
	}
	if code == nil {
		return uint256.Int{}, types.NewVmVerboseError(types.ErrorContractDoesNotExist, addr.Hex())
	}

	ctor := code.Constructor
	if ctor == nil {
		if len(args) != 0 {
			return uint256.Int{}, types.NewVerboseError(types.ErrorInvalidArgument,
				fmt.Sprintf("%s has no constructor, got %d arguments", code.UnitName, len(args)))
		}
		if !value.IsZero() {
			return uint256.Int{}, types.NewVmVerboseError(types.ErrorPayableViolation,
				fmt.Sprintf("%s has no payable constructor", code.UnitName))
		}
		return uint256.Int{}, nil
	}

	if err := ctor.BindArgs(args); err != nil {
		return uint256.Int{}, err
	}
	if err := e.checkTransfer(deployer, ctor, value); err != nil {
		return uint256.Int{}, err
	}
	if err := e.transfer(deployer, addr, value); err != nil {
		return uint256.Int{}, err
	}

	fr := &frame{
		caller: deployer,
		self:   addr,
		code:   code,
		fn:     ctor,
		args:   args,
		value:  value,
		inCtor: true,
		meter:  meter,
	}
	return e.execFrame(fr)
}

// resolveFunction picks the externally dispatched function: the named
// entry of the dispatch table, or the receive function for a plain
// transfer.
func resolveFunction(code *Code, fnName string) (*Function, error) {
	if fnName == "" {
		if code.Receive == nil {
			return nil, types.NewVmVerboseError(types.ErrorPayableViolation,
				fmt.Sprintf("%s has no receive function", code.UnitName))
		}
		return code.Receive, nil
	}
	fn := code.Function(fnName)
	if fn == nil {
		return nil, types.NewVmVerboseError(types.ErrorUnknownFunction,
			fmt.Sprintf("%s.%s", code.UnitName, fnName))
	}
	if !fn.callableExternally() {
		return nil, types.NewVmVerboseError(types.ErrorVisibilityViolation,
			fmt.Sprintf("%s.%s is %s", code.UnitName, fn.Name, fn.Visibility))
	}
	return fn, nil
}

// checkTransfer validates the payability of fn and the payer's funds
// before any state is touched.
func (e *Engine) checkTransfer(payer types.Address, fn *Function, value types.Value) error {
	if value.IsZero() {
		return nil
	}
	if !fn.Payable() {
		return types.NewVmVerboseError(types.ErrorPayableViolation,
			fmt.Sprintf("%s is not payable", fn.Name))
	}
	bal, err := e.state.GetBalance(payer)
	if err != nil {
		return err
	}
	if bal.Lt(value) {
		return types.NewVmVerboseError(types.ErrorInsufficientBalance,
			fmt.Sprintf("balance %s, need %s", bal, value))
	}
	return nil
}

func (e *Engine) transfer(from, to types.Address, value types.Value) error {
	if value.IsZero() {
		return nil
	}
	if err := e.state.SubBalance(from, value); err != nil {
		return err
	}
	return e.state.AddBalance(to, value)
}

// execFrame runs the frame body on a fresh stack and yields the return
// word, zero unless a RETURN executed.
func (e *Engine) execFrame(fr *frame) (uint256.Int, error) {
	if fr.depth > e.maxDepth {
		e.maxDepth = fr.depth
	}
	logger.Debug().
		Stringer(logging.FieldContract, fr.self).
		Str(logging.FieldFunction, fr.fn.Name).
		Int(logging.FieldDepth, fr.depth).
		Uint64(logging.FieldGasLimit, fr.meter.Remaining().Uint64()).
		Msg("Frame entered")
	fr.stack = newstack()
	defer returnStack(fr.stack)

	if err := e.run(fr); err != nil {
		return uint256.Int{}, err
	}
	return fr.ret, nil
}

// childCall is the shared path of the CALL, TRYCALL and SEND ops: fee
// charging, target resolution, the guard gate, the value transfer and a
// sub-metered child frame with its own snapshot.
func (e *Engine) childCall(fr *frame, kind callKind, target types.Address, fnName string,
	args []*uint256.Int, value types.Value,
) (uint256.Int, error) {
	if fr.inCtor {
		return uint256.Int{}, types.NewVmError(types.ErrorExternalCallInConstructor)
	}
	if fr.noState {
		return uint256.Int{}, ErrWriteProtection
	}
	if fr.depth+1 > MaxCallDepth {
		return uint256.Int{}, ErrCallDepthExceeded
	}
	if fr.readOnly && !value.IsZero() {
		return uint256.Int{}, ErrWriteProtection
	}

	flatFee := CallGas
	if kind == kindSend {
		flatFee = CallValueTransferGas
	}
	if err := fr.meter.Charge(flatFee); err != nil {
		return uint256.Int{}, err
	}

	code, err := e.state.GetCode(target)
	if err != nil {
		return uint256.Int{}, err
	}
	if code == nil {
		return uint256.Int{}, types.NewVmVerboseError(types.ErrorContractDoesNotExist, target.Hex())
	}

	// Under DELEGATECALL the target's code runs in the calling contract's
	// namespace: storage, balance, caller and value all stay put.
	self := target
	caller := fr.self
	if kind == kindDelegate {
		self = fr.self
		caller = fr.caller
		value = fr.value
	}

	fn, err := resolveFunction(code, fnName)
	if err != nil {
		return uint256.Int{}, err
	}
	if fn.Guarded && e.state.GuardHeld(self) {
		return uint256.Int{}, types.NewVmVerboseError(types.ErrorReentrancyBlocked, fn.Name)
	}
	if err := fn.BindArgs(args); err != nil {
		return uint256.Int{}, err
	}

	transferring := kind != kindDelegate && !value.IsZero()
	if transferring {
		if err := e.checkTransfer(fr.self, fn, value); err != nil {
			return uint256.Int{}, err
		}
		if kind != kindSend {
			if err := fr.meter.Charge(CallValueTransferGas); err != nil {
				return uint256.Int{}, err
			}
		}
	}

	// The child budget: a stipend only for SEND, otherwise all but one
	// 64th of the remainder, with the stipend granted on top when value
	// is attached. Only the non-stipend part is charged to the parent.
	var budget types.Gas
	if kind == kindSend {
		budget = CallStipend
	} else {
		budget = childCallGas(fr.meter.Remaining())
		if err := fr.meter.Charge(budget); err != nil {
			return uint256.Int{}, err
		}
		if transferring {
			budget += CallStipend
		}
	}
	childMeter := NewGasMeter(budget)

	snapshot := e.state.Snapshot()
	if transferring {
		if err := e.transfer(fr.self, self, value); err != nil {
			return uint256.Int{}, err
		}
	}
	if fn.Guarded {
		e.state.SetGuard(self, true)
	}

	child := &frame{
		caller:   caller,
		self:     self,
		code:     code,
		fn:       fn,
		args:     args,
		value:    value,
		depth:    fr.depth + 1,
		readOnly: fr.readOnly || fn.ReadOnly(),
		noState:  fn.Mutability == Pure,
		meter:    childMeter,
	}

	ret, err := e.execFrame(child)
	if fatal(err) {
		return uint256.Int{}, err
	}
	if err != nil {
		applyGasPolicy(childMeter, err)
		e.state.RevertToSnapshot(snapshot)
		fr.meter.Refund(childMeter.Remaining())
		return uint256.Int{}, err
	}

	if fn.Guarded {
		e.state.SetGuard(self, false)
	}
	fr.meter.Refund(childMeter.Remaining())
	return ret, nil
}

// internalCall dispatches a function of the running code inside the
// current frame context: same meter, same caller, value and namespace,
// no snapshot of its own.
func (e *Engine) internalCall(fr *frame, fnName string, args []*uint256.Int) (uint256.Int, error) {
	if fr.depth+1 > MaxCallDepth {
		return uint256.Int{}, ErrCallDepthExceeded
	}
	if err := fr.meter.Charge(GasMidStep); err != nil {
		return uint256.Int{}, err
	}

	fn := fr.code.Function(fnName)
	if fn == nil {
		return uint256.Int{}, types.NewVmVerboseError(types.ErrorUnknownFunction,
			fmt.Sprintf("%s.%s", fr.code.UnitName, fnName))
	}
	if !fn.callableInternally(fr.fn.Unit) {
		return uint256.Int{}, types.NewVmVerboseError(types.ErrorVisibilityViolation,
			fmt.Sprintf("%s.%s is %s", fr.code.UnitName, fn.Name, fn.Visibility))
	}
	if fn.Guarded && e.state.GuardHeld(fr.self) {
		return uint256.Int{}, types.NewVmVerboseError(types.ErrorReentrancyBlocked, fn.Name)
	}
	if err := fn.BindArgs(args); err != nil {
		return uint256.Int{}, err
	}
	if fn.Guarded {
		e.state.SetGuard(fr.self, true)
	}

	child := &frame{
		caller:   fr.caller,
		self:     fr.self,
		code:     fr.code,
		fn:       fn,
		args:     args,
		value:    fr.value,
		depth:    fr.depth + 1,
		readOnly: fr.readOnly || fn.ReadOnly(),
		noState:  fr.noState || fn.Mutability == Pure,
		inCtor:   fr.inCtor,
		meter:    fr.meter,
	}

	ret, err := e.execFrame(child)
	if err != nil {
		return uint256.Int{}, err
	}
	if fn.Guarded {
		e.state.SetGuard(fr.self, false)
	}
	return ret, nil
}

// popArgs pops argc call arguments, restoring their push order.
func popArgs(fr *frame, argc int) []*uint256.Int {
	args := make([]*uint256.Int, argc)
	for i := argc - 1; i >= 0; i-- {
		v := fr.stack.pop()
		args[i] = new(uint256.Int).Set(&v)
	}
	return args
}

func opCall(e *Engine, fr *frame, in *Instruction) error {
	if have := fr.stack.len(); have < in.N+2 {
		return underflowErr(CALL, have, in.N+2)
	}
	addr := fr.stack.pop()
	val := fr.stack.pop()
	args := popArgs(fr, in.N)

	ret, err := e.childCall(fr, kindCall, wordToAddress(&addr), in.Name, args,
		types.NewValue(new(uint256.Int).Set(&val)))
	if err != nil {
		return err
	}
	fr.stack.push(&ret)
	return nil
}

func opDelegateCall(e *Engine, fr *frame, in *Instruction) error {
	if have := fr.stack.len(); have < in.N+1 {
		return underflowErr(DELEGATECALL, have, in.N+1)
	}
	addr := fr.stack.pop()
	args := popArgs(fr, in.N)

	ret, err := e.childCall(fr, kindDelegate, wordToAddress(&addr), in.Name, args, types.Value{})
	if err != nil {
		return err
	}
	fr.stack.push(&ret)
	return nil
}

func opTryCall(e *Engine, fr *frame, in *Instruction) error {
	if have := fr.stack.len(); have < in.N+2 {
		return underflowErr(TRYCALL, have, in.N+2)
	}
	addr := fr.stack.pop()
	val := fr.stack.pop()
	args := popArgs(fr, in.N)

	ret, err := e.childCall(fr, kindTryCall, wordToAddress(&addr), in.Name, args,
		types.NewValue(new(uint256.Int).Set(&val)))
	if fatal(err) {
		return err
	}
	if err != nil {
		logger.Debug().
			Err(err).
			Stringer(logging.FieldContract, fr.self).
			Msg("TRYCALL caught child failure")
		fr.stack.push(new(uint256.Int))
		fr.stack.push(new(uint256.Int))
		return nil
	}
	fr.stack.push(&ret)
	fr.stack.push(uint256.NewInt(1))
	return nil
}

func opSend(e *Engine, fr *frame, in *Instruction) error {
	if have := fr.stack.len(); have < 2 {
		return underflowErr(SEND, have, 2)
	}
	addr := fr.stack.pop()
	val := fr.stack.pop()

	_, err := e.childCall(fr, kindSend, wordToAddress(&addr), "", nil,
		types.NewValue(new(uint256.Int).Set(&val)))
	if fatal(err) {
		return err
	}
	if err != nil {
		fr.stack.push(new(uint256.Int))
		return nil
	}
	fr.stack.push(uint256.NewInt(1))
	return nil
}

func opIntCall(e *Engine, fr *frame, in *Instruction) error {
	if have := fr.stack.len(); have < in.N {
		return underflowErr(INTCALL, have, in.N)
	}
	if fr.stack.len()-in.N+1 > StackLimit {
		return overflowErr(INTCALL)
	}
	args := popArgs(fr, in.N)

	ret, err := e.internalCall(fr, in.Name, args)
	if err != nil {
		return err
	}
	fr.stack.push(&ret)
	return nil
}

func opSelfDestruct(e *Engine, fr *frame, in *Instruction) error {
	beneficiary := fr.stack.pop()
	if err := e.state.Terminate(fr.self, wordToAddress(&beneficiary)); err != nil {
		return err
	}
	fr.halted = true
	return nil
}
