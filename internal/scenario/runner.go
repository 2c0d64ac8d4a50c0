package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hearthvm/hearth"
	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/common/logging"
	"github.com/hearthvm/hearth/internal/types"
	"github.com/hearthvm/hearth/internal/vm"
)

// Result records the outcome of one scenario step. Receipt is nil for the
// kinds that do not execute code (credit, terminate).
type Result struct {
	Index    int
	Kind     string
	Label    string
	Function string
	Receipt  *hearth.Receipt
}

// Runner executes a scenario step by step against an engine. Account names
// and deployment labels share one namespace, so @label arguments resolve
// without the caller spelling out which kind of address they mean.
type Runner struct {
	engine *hearth.Engine
	logger zerolog.Logger
	units  map[string]*vm.Unit
	labels map[string]types.Address
}

func NewRunner(engine *hearth.Engine) *Runner {
	return &Runner{
		engine: engine,
		logger: logging.NewLogger("scenario"),
		labels: make(map[string]types.Address),
	}
}

// DeriveAddress maps an account name onto a stable address. Scenarios that
// omit explicit account addresses replay identically because of it.
func DeriveAddress(name string) types.Address {
	return types.BytesToAddress(common.KeccakHash([]byte(name)).Bytes())
}

// Run executes the scenario: funds the accounts, then applies every
// transaction in order. It stops at the first step whose outcome does not
// match its expectation, returning the results gathered so far.
func (r *Runner) Run(ctx context.Context, s *Scenario) ([]Result, error) {
	units, err := s.Units()
	if err != nil {
		return nil, err
	}
	r.units = units

	for _, acc := range s.Accounts {
		addr := acc.Address
		if addr.IsEmpty() {
			addr = DeriveAddress(acc.Name)
		}
		if err := r.bind(acc.Name, addr); err != nil {
			return nil, err
		}
		if !acc.Balance.IsZero() {
			if err := r.engine.Credit(ctx, addr, acc.Balance); err != nil {
				return nil, fmt.Errorf("funding account %q: %w", acc.Name, err)
			}
		}
	}

	r.logger.Info().
		Str(logging.FieldScenario, s.Name).
		Int("accounts", len(s.Accounts)).
		Int("transactions", len(s.Transactions)).
		Msg("Scenario started")

	results := make([]Result, 0, len(s.Transactions))
	for i := range s.Transactions {
		res, err := r.step(ctx, i, &s.Transactions[i])
		if err != nil {
			return results, fmt.Errorf("transaction %d: %w", i, err)
		}
		results = append(results, *res)
	}
	return results, nil
}

func (r *Runner) step(ctx context.Context, index int, tx *Transaction) (*Result, error) {
	res := &Result{Index: index, Kind: tx.Kind, Function: tx.Function}

	switch tx.Kind {
	case KindDeploy:
		if err := r.deploy(ctx, tx, res); err != nil {
			return nil, err
		}
	case KindCall:
		if err := r.call(ctx, tx, res); err != nil {
			return nil, err
		}
	case KindCredit:
		if err := r.credit(ctx, tx, res); err != nil {
			return nil, err
		}
	case KindTerminate:
		if err := r.terminate(ctx, tx, res); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown transaction kind %q", tx.Kind)
	}

	ev := r.logger.Info().
		Int("index", index).
		Str("kind", tx.Kind).
		Str("label", res.Label)
	if res.Receipt != nil {
		ev = ev.Bool("success", res.Receipt.Success).
			Uint64(logging.FieldGasUsed, uint64(res.Receipt.GasUsed))
	}
	ev.Msg("Transaction applied")
	return res, nil
}

func (r *Runner) deploy(ctx context.Context, tx *Transaction, res *Result) error {
	unit, ok := r.units[tx.Contract]
	if !ok {
		return fmt.Errorf("unknown contract %q", tx.Contract)
	}
	caller, err := r.resolve(tx.Caller)
	if err != nil {
		return err
	}
	args, err := r.resolveArgs(tx.Args)
	if err != nil {
		return err
	}

	receipt, err := r.engine.Deploy(ctx, caller, unit, args, tx.Value)
	if err != nil {
		return err
	}
	label := tx.Label
	if label == "" {
		label = tx.Contract
	}
	if receipt.Success {
		if err := r.bind(label, receipt.ContractAddress); err != nil {
			return err
		}
	}
	res.Label = label
	res.Function = vm.CtorName
	res.Receipt = receipt
	return r.checkExpect(tx, receipt)
}

func (r *Runner) call(ctx context.Context, tx *Transaction, res *Result) error {
	caller, err := r.resolve(tx.Caller)
	if err != nil {
		return err
	}
	contract, err := r.resolve(tx.Contract)
	if err != nil {
		return err
	}
	args, err := r.resolveArgs(tx.Args)
	if err != nil {
		return err
	}

	receipt, err := r.engine.Call(ctx, caller, contract, tx.Function, args, tx.Value, tx.Gas)
	if err != nil {
		return err
	}
	res.Label = tx.Contract
	res.Receipt = receipt
	return r.checkExpect(tx, receipt)
}

func (r *Runner) credit(ctx context.Context, tx *Transaction, res *Result) error {
	if tx.Expect != "" {
		return fmt.Errorf("credit does not produce an error code")
	}
	target, err := r.resolve(tx.Account)
	if err != nil {
		return err
	}
	if err := r.engine.Credit(ctx, target, tx.Value); err != nil {
		return err
	}
	res.Label = tx.Account
	return nil
}

func (r *Runner) terminate(ctx context.Context, tx *Transaction, res *Result) error {
	contract, err := r.resolve(tx.Contract)
	if err != nil {
		return err
	}
	beneficiary, err := r.resolve(tx.Beneficiary)
	if err != nil {
		return err
	}
	res.Label = tx.Contract

	err = r.engine.Terminate(ctx, contract, beneficiary)
	if err != nil {
		if tx.Expect != "" && types.IsValidError(err) {
			if code := types.GetErrorCode(err); code.String() == tx.Expect {
				return nil
			}
			return fmt.Errorf("expected %s, got %w", tx.Expect, err)
		}
		return err
	}
	if tx.Expect != "" {
		return fmt.Errorf("expected %s, termination succeeded", tx.Expect)
	}
	return nil
}

// checkExpect compares the receipt against the step's expectation: an empty
// expectation demands success, anything else names the exact error code the
// step must fail with.
func (r *Runner) checkExpect(tx *Transaction, receipt *hearth.Receipt) error {
	if tx.Expect == "" {
		if !receipt.Success {
			return fmt.Errorf("failed with %s: %s", receipt.Status, receipt.FailureReason)
		}
		return nil
	}
	if receipt.Success {
		return fmt.Errorf("expected %s, transaction succeeded", tx.Expect)
	}
	if receipt.Status.String() != tx.Expect {
		return fmt.Errorf("expected %s, got %s", tx.Expect, receipt.Status)
	}
	return nil
}

func (r *Runner) bind(label string, addr types.Address) error {
	if label == "" {
		return fmt.Errorf("empty label")
	}
	if _, dup := r.labels[label]; dup {
		return fmt.Errorf("label %q already bound", label)
	}
	r.labels[label] = addr
	return nil
}

func (r *Runner) resolve(label string) (types.Address, error) {
	addr, ok := r.labels[label]
	if !ok {
		return types.EmptyAddress, fmt.Errorf("unknown label %q", label)
	}
	return addr, nil
}

func (r *Runner) resolveArgs(raw []string) ([]hearth.Value, error) {
	args := make([]hearth.Value, 0, len(raw))
	for _, s := range raw {
		v, err := r.resolveArg(s)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", s, err)
		}
		args = append(args, v)
	}
	return args, nil
}

// resolveArg turns one textual argument into a word: @label takes the
// address bound to the label, everything else parses as a decimal or
// 0x-prefixed number.
func (r *Runner) resolveArg(s string) (hearth.Value, error) {
	if name, ok := strings.CutPrefix(s, "@"); ok {
		addr, err := r.resolve(name)
		if err != nil {
			return hearth.Value{}, err
		}
		return types.NewValueFromBytes(addr.Bytes()), nil
	}
	word, err := parseWord(s)
	if err != nil {
		return hearth.Value{}, err
	}
	return types.NewValue(word), nil
}
