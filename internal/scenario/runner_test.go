package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthvm/hearth"
	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/internal/db"
	"github.com/hearthvm/hearth/internal/types"
)

const bankScenario = `
name: bank
accounts:
  - name: alice
    balance: "1000"
  - name: bob
contracts:
  - name: Bank
    vars: [balances, total]
    events:
      - name: Deposited
        fields:
          - name: who
            indexed: true
          - name: amount
    functions:
      - name: deposit
        mutability: payable
        body: |
          CALLER
          MAPSLOT balances
          SLOAD
          CALLVALUE
          ADD
          CALLER
          MAPSLOT balances
          SSTORE
          SLOT total
          SLOAD
          CALLVALUE
          ADD
          SLOT total
          SSTORE
          CALLER
          CALLVALUE
          EMIT Deposited
      - name: totalDeposits
        mutability: view
        body: |
          SLOT total
          SLOAD
          RETURN
transactions:
  - kind: deploy
    caller: alice
    contract: Bank
    label: bank
  - kind: credit
    account: bob
    value: "500"
  - kind: call
    caller: alice
    contract: bank
    function: deposit
    value: "300"
  - kind: call
    caller: bob
    contract: bank
    function: deposit
    value: "200"
  - kind: call
    caller: alice
    contract: bank
    function: totalDeposits
  - kind: call
    caller: alice
    contract: bank
    function: deposit
    value: "9999"
    expect: InsufficientBalance
`

func newTestEngine(t *testing.T) *hearth.Engine {
	t.Helper()

	database, err := db.NewBadgerDbInMemory()
	require.NoError(t, err)

	engine, err := hearth.New(context.Background(), hearth.Config{
		Timer: common.NewTestTimer(1700000000),
	}, database)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	t.Parallel()

	s, err := Load(writeScenario(t, bankScenario))
	require.NoError(t, err)

	require.Equal(t, "bank", s.Name)
	require.Len(t, s.Accounts, 2)
	require.Equal(t, "alice", s.Accounts[0].Name)
	require.True(t, s.Accounts[0].Address.IsEmpty())
	require.True(t, s.Accounts[0].Balance.Eq(types.NewValueFromUint64(1000)))

	require.Len(t, s.Contracts, 1)
	require.Equal(t, []string{"balances", "total"}, s.Contracts[0].Vars)
	require.True(t, s.Contracts[0].Events[0].Fields[0].Indexed)

	require.Len(t, s.Transactions, 6)
	require.Equal(t, KindDeploy, s.Transactions[0].Kind)
	require.Equal(t, "bank", s.Transactions[0].Label)
	require.Equal(t, KindCredit, s.Transactions[1].Kind)
	require.True(t, s.Transactions[1].Value.Eq(types.NewValueFromUint64(500)))
	require.Equal(t, "InsufficientBalance", s.Transactions[5].Expect)
}

func TestLoadRejectsBadScenarios(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorContains(t, err, "failed to read scenario file")
	})

	t.Run("no transactions", func(t *testing.T) {
		t.Parallel()

		_, err := Load(writeScenario(t, "name: empty\n"))
		require.ErrorContains(t, err, "has no transactions")
	})

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()

		_, err := Load(writeScenario(t, "transactions:\n  - kind: teleport\n"))
		require.ErrorContains(t, err, `unknown kind "teleport"`)
	})

	t.Run("bad address", func(t *testing.T) {
		t.Parallel()

		src := "accounts:\n  - name: a\n    address: nope\ntransactions:\n  - kind: credit\n    account: a\n"
		_, err := Load(writeScenario(t, src))
		require.ErrorContains(t, err, "unable to decode scenario")
	})
}

func TestRunnerEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, err := Load(writeScenario(t, bankScenario))
	require.NoError(t, err)

	engine := newTestEngine(t)
	runner := NewRunner(engine)

	results, err := runner.Run(ctx, s)
	require.NoError(t, err)
	require.Len(t, results, 6)

	alice := DeriveAddress("alice")
	bob := DeriveAddress("bob")
	bank := results[0].Receipt.ContractAddress
	require.False(t, bank.IsEmpty())
	require.True(t, results[0].Receipt.Success)

	// Deposits moved value from the callers into the contract.
	aliceBal, err := engine.GetBalance(ctx, alice)
	require.NoError(t, err)
	require.True(t, aliceBal.Eq(types.NewValueFromUint64(700)))
	bobBal, err := engine.GetBalance(ctx, bob)
	require.NoError(t, err)
	require.True(t, bobBal.Eq(types.NewValueFromUint64(300)))
	bankBal, err := engine.GetBalance(ctx, bank)
	require.NoError(t, err)
	require.True(t, bankBal.Eq(types.NewValueFromUint64(500)))

	// The view call returned the running total.
	require.True(t, results[4].Receipt.Success)
	require.EqualValues(t, 500, results[4].Receipt.ReturnValue.Uint64())

	// The overdrawn deposit failed with the expected code and no effects.
	last := results[5].Receipt
	require.False(t, last.Success)
	require.Equal(t, "InsufficientBalance", last.Status.String())

	events, err := engine.QueryEvents(ctx, &hearth.Filter{Contract: bank, Event: "Deposited"})
	require.NoError(t, err)
	require.Len(t, events, 2)

	mine, err := engine.QueryEvents(ctx, &hearth.Filter{
		Contract: bank,
		Event:    "Deposited",
		Matches:  []hearth.Match{{Field: "who", Value: types.NewValueFromBytes(alice.Bytes())}},
	})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	amount, ok := mine[0].Field("amount")
	require.True(t, ok)
	require.EqualValues(t, 300, amount.Uint64())
}

func TestRunnerStopsOnExpectationMismatch(t *testing.T) {
	t.Parallel()

	src := `
accounts:
  - name: alice
    balance: "10"
contracts:
  - name: Noop
    functions:
      - name: ping
        body: STOP
transactions:
  - kind: deploy
    caller: alice
    contract: Noop
  - kind: call
    caller: alice
    contract: Noop
    function: ping
    expect: OutOfGas
`
	s, err := Load(writeScenario(t, src))
	require.NoError(t, err)

	runner := NewRunner(newTestEngine(t))
	results, err := runner.Run(context.Background(), s)
	require.ErrorContains(t, err, "transaction 1: expected OutOfGas, transaction succeeded")
	require.Len(t, results, 1)
}

func TestRunnerRejectsUnknownLabels(t *testing.T) {
	t.Parallel()

	src := `
accounts:
  - name: alice
contracts:
  - name: Noop
    functions:
      - name: ping
        body: STOP
transactions:
  - kind: call
    caller: mallory
    contract: Noop
    function: ping
`
	s, err := Load(writeScenario(t, src))
	require.NoError(t, err)

	runner := NewRunner(newTestEngine(t))
	_, err = runner.Run(context.Background(), s)
	require.ErrorContains(t, err, `unknown label "mallory"`)
}
