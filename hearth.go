// Package hearth is the embedding surface of the engine: a host that owns
// the database and serializes every deploy, call and query against it.
// Each top-level operation is one atomic transaction; a failed call leaves
// nothing behind but its receipt.
package hearth

import (
	"context"
	"sync"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/common/logging"
	"github.com/hearthvm/hearth/internal/db"
	"github.com/hearthvm/hearth/internal/eventlog"
	"github.com/hearthvm/hearth/internal/execution"
	"github.com/hearthvm/hearth/internal/telemetry"
	"github.com/hearthvm/hearth/internal/types"
	"github.com/hearthvm/hearth/internal/vm"
)

type (
	Address   = types.Address
	Value     = types.Value
	Gas       = types.Gas
	Hash      = common.Hash
	Event     = types.Event
	ErrorCode = types.ErrorCode

	Unit = vm.Unit

	Filter       = eventlog.Filter
	Match        = eventlog.Match
	ReplayReport = execution.ReplayReport
)

// Receipt reports the outcome of one top-level transaction. A failed
// transaction leaves no state behind; the receipt is its only record.
type Receipt struct {
	Success       bool      `json:"success"`
	Status        ErrorCode `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`

	ContractAddress Address  `json:"contractAddress"`
	Function        string   `json:"function,omitempty"`
	ReturnValue     Value    `json:"returnValue"`
	GasUsed         Gas      `json:"gasUsed"`
	Events          []*Event `json:"events,omitempty"`

	// CommitSeq is the position of this transaction in the commit journal,
	// valid only when Success is set.
	CommitSeq uint64 `json:"commitSeq"`
	Timestamp uint64 `json:"timestamp"`
}

// Engine is the host. Writes are serialized by an exclusive lock; reads
// share the database and the caches behind a read lock.
type Engine struct {
	cfg      Config
	database db.DB
	accessor *execution.StateAccessor
	timer    common.Timer
	logger   zerolog.Logger
	metrics  *metricsHandler

	mu sync.RWMutex
}

// New opens an engine over database, stamping a fresh one with the current
// scheme version. The engine owns the database from here on: Close closes it.
func New(ctx context.Context, cfg Config, database db.DB) (*Engine, error) {
	cfg = cfg.withDefaults()

	if err := telemetry.Init(ctx, cfg.Telemetry); err != nil {
		return nil, err
	}
	metrics, err := newMetricsHandler("github.com/hearthvm/hearth")
	if err != nil {
		return nil, err
	}

	tx, err := database.CreateRwTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := db.EnsureSchemeVersion(tx); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logger := logging.NewLogger("hearth")
	logger.Info().
		Uint64(logging.FieldGasLimit, cfg.GasLimit.Uint64()).
		Msg("Engine started")

	return &Engine{
		cfg:      cfg,
		database: database,
		accessor: execution.NewStateAccessor(),
		timer:    cfg.Timer,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	telemetry.Shutdown(context.Background())
	e.database.Close()
	e.logger.Info().Msg("Engine stopped")
}

// GasLimit returns the configured per-transaction budget.
func (e *Engine) GasLimit() Gas {
	return e.cfg.GasLimit
}

func wordArgs(args []Value) []*uint256.Int {
	if len(args) == 0 {
		return nil
	}
	words := make([]*uint256.Int, len(args))
	for i, a := range args {
		words[i] = a.Uint256()
	}
	return words
}

func failedReceipt(contract Address, function string, ts uint64, res *vm.ExecutionResult) *Receipt {
	return &Receipt{
		Status:          types.GetErrorCode(res.Error),
		FailureReason:   types.FailureReason(res.Error),
		ContractAddress: contract,
		Function:        function,
		GasUsed:         res.GasUsed,
		Timestamp:       ts,
	}
}

// Deploy flattens unit, derives its address from the deployer and the
// registry nonce, runs the constructor under the configured gas limit and
// commits. Flattening and constructor failures are reported in the receipt;
// the nonce is consumed only by a successful deployment.
func (e *Engine) Deploy(ctx context.Context, deployer Address, unit *Unit,
	args []Value, value Value,
) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.timer.Now()

	code, err := vm.Flatten(unit)
	if err != nil {
		return &Receipt{
			Status:        types.GetErrorCode(err),
			FailureReason: types.FailureReason(err),
			Timestamp:     ts,
		}, nil
	}

	tx, err := e.database.CreateRwTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	nonce, err := db.GetUint64(tx, db.DeploySeqKey)
	if err != nil {
		return nil, err
	}
	addr := types.CreateAddress(deployer, nonce)
	if err := db.PutUint64(tx, db.DeploySeqKey, nonce+1); err != nil {
		return nil, err
	}

	es := execution.NewExecutionState(tx, e.accessor)
	if err := es.CreateContract(addr, code); err != nil {
		if !types.IsValidError(err) {
			return nil, err
		}
		e.metrics.RecordRevert(ctx, types.GetErrorCode(err))
		return &Receipt{
			Status:          types.GetErrorCode(err),
			FailureReason:   types.FailureReason(err),
			ContractAddress: addr,
			Timestamp:       ts,
		}, nil
	}

	engine := vm.NewEngine(es, deployer, ts)
	res := engine.Deploy(deployer, addr, wordArgs(args), value, e.cfg.GasLimit)
	if res.IsFatal() {
		return nil, res.FatalError
	}
	if res.Failed() {
		e.metrics.RecordRevert(ctx, types.GetErrorCode(res.Error))
		return failedReceipt(addr, vm.CtorName, ts, res), nil
	}

	seq, err := e.commit(ctx, tx, es)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordDeploy(ctx, res.GasUsed)

	return &Receipt{
		Success:         true,
		ContractAddress: addr,
		Function:        vm.CtorName,
		GasUsed:         res.GasUsed,
		Events:          es.Events,
		CommitSeq:       seq,
		Timestamp:       ts,
	}, nil
}

// Call runs function on contract with the attached value. Zero gas selects
// the configured limit. Execution failures are reported in the receipt with
// the state untouched; the error return is reserved for host faults.
func (e *Engine) Call(ctx context.Context, caller, contract Address, function string,
	args []Value, value Value, gas Gas,
) (*Receipt, error) {
	if gas == 0 {
		gas = e.cfg.GasLimit
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ts := e.timer.Now()

	tx, err := e.database.CreateRwTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	es := execution.NewExecutionState(tx, e.accessor)
	engine := vm.NewEngine(es, caller, ts)

	res := engine.Call(caller, contract, function, wordArgs(args), value, gas)
	if res.IsFatal() {
		return nil, res.FatalError
	}
	if res.Failed() {
		e.metrics.RecordRevert(ctx, types.GetErrorCode(res.Error))
		return failedReceipt(contract, function, ts, res), nil
	}

	seq, err := e.commit(ctx, tx, es)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordCall(ctx, res.GasUsed, engine.MaxDepth())

	return &Receipt{
		Success:         true,
		ContractAddress: contract,
		Function:        function,
		ReturnValue:     types.NewValue(new(uint256.Int).Set(&res.ReturnValue)),
		GasUsed:         res.GasUsed,
		Events:          es.Events,
		CommitSeq:       seq,
		Timestamp:       ts,
	}, nil
}

// commit persists the execution state and the enclosing transaction. The
// accessor caches are purged if either step fails half-way.
func (e *Engine) commit(ctx context.Context, tx db.RwTx, es *execution.ExecutionState) (uint64, error) {
	e.metrics.StartCommitMeasurement()

	cres, err := es.Commit()
	if err != nil {
		e.accessor.Purge()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		e.accessor.Purge()
		return 0, err
	}

	e.metrics.EndCommitMeasurement(ctx)
	return cres.Seq, nil
}

// Credit mints amount onto addr outside any contract execution. It exists
// for funding accounts in scenarios and tests; there is no matching debit.
func (e *Engine) Credit(ctx context.Context, addr Address, amount Value) error {
	if amount.IsZero() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.database.CreateRwTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	es := execution.NewExecutionState(tx, e.accessor)
	if err := es.AddBalance(addr, amount); err != nil {
		return err
	}
	_, err = e.commit(ctx, tx, es)
	return err
}

// Terminate tombstones the contract from the host, sweeping its balance to
// the beneficiary. The in-contract path is the SELFDESTRUCT instruction.
func (e *Engine) Terminate(ctx context.Context, contract, beneficiary Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.database.CreateRwTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	es := execution.NewExecutionState(tx, e.accessor)
	alive, err := es.Exists(contract)
	if err != nil {
		return err
	}
	if !alive {
		return types.NewVerboseError(types.ErrorContractDoesNotExist, contract.Hex())
	}
	if err := es.Terminate(contract, beneficiary); err != nil {
		return err
	}
	_, err = e.commit(ctx, tx, es)
	return err
}

// ReadStorage returns the committed word of one slot. It is free: no gas,
// no transaction, no visibility of uncommitted state.
func (e *Engine) ReadStorage(ctx context.Context, contract Address, key Hash) (Hash, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tx, err := e.database.CreateRoTx(ctx)
	if err != nil {
		return common.EmptyHash, err
	}
	defer tx.Rollback()

	rec, err := e.accessor.GetContract(tx, contract)
	if err != nil {
		return common.EmptyHash, err
	}
	if rec == nil || rec.Terminated || !rec.HasCode() {
		return common.EmptyHash, types.NewVerboseError(types.ErrorContractDoesNotExist, contract.Hex())
	}
	return e.accessor.GetSlot(tx, contract, key)
}

// ResolveSlot maps a named state variable of the deployed contract to its
// storage key.
func (e *Engine) ResolveSlot(ctx context.Context, contract Address, variable string) (Hash, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tx, err := e.database.CreateRoTx(ctx)
	if err != nil {
		return common.EmptyHash, err
	}
	defer tx.Rollback()

	code, err := e.loadCode(tx, contract)
	if err != nil {
		return common.EmptyHash, err
	}
	slot, ok := code.SlotOf(variable)
	if !ok {
		return common.EmptyHash, types.NewVerboseError(types.ErrorInvalidArgument,
			"unknown state variable "+variable)
	}
	return slot, nil
}

func (e *Engine) GetBalance(ctx context.Context, addr Address) (Value, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tx, err := e.database.CreateRoTx(ctx)
	if err != nil {
		return Value{}, err
	}
	defer tx.Rollback()

	rec, err := e.accessor.GetContract(tx, addr)
	if err != nil {
		return Value{}, err
	}
	if rec == nil {
		return types.NewZeroValue(), nil
	}
	return rec.Balance, nil
}

// QueryEvents returns the committed events matching the filter, in emission
// order. Filtering on a field the event does not declare indexed is an
// InvalidArgument error.
func (e *Engine) QueryEvents(ctx context.Context, filter *Filter) ([]*Event, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tx, err := e.database.CreateRoTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	code, err := e.loadCode(tx, filter.Contract)
	if err != nil {
		return nil, err
	}
	def := code.EventDef(filter.Event)
	if def == nil {
		return nil, types.NewVerboseError(types.ErrorInvalidArgument,
			"unknown event "+filter.Event)
	}
	for _, m := range filter.Matches {
		if !indexedField(def, m.Field) {
			return nil, types.NewVerboseError(types.ErrorInvalidArgument,
				"field "+m.Field+" of event "+def.Name+" is not indexed")
		}
	}

	return eventlog.Query(tx, filter)
}

func indexedField(def *vm.EventDef, name string) bool {
	for _, f := range def.Fields {
		if f.Name == name {
			return f.Indexed
		}
	}
	return false
}

// loadCode resolves the deployed code of a contract. Termination keeps the
// code reachable so that event queries against a dead contract still work.
func (e *Engine) loadCode(tx db.RoTx, contract Address) (*vm.Code, error) {
	rec, err := e.accessor.GetContract(tx, contract)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.HasCode() {
		return nil, types.NewVerboseError(types.ErrorContractDoesNotExist, contract.Hex())
	}
	return e.accessor.GetCode(tx, rec.CodeHash)
}

// Replay folds the commit journal over a fresh state and verifies that it
// reproduces the materialized tables.
func (e *Engine) Replay(ctx context.Context) (*ReplayReport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return execution.Replay(ctx, e.database)
}
