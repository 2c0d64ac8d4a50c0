package execution

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/internal/db"
	"github.com/hearthvm/hearth/internal/eventlog"
	"github.com/hearthvm/hearth/internal/types"
	"github.com/hearthvm/hearth/internal/vm"
)

var (
	holderAddr = types.BytesToAddress([]byte{0xA1})
	boxAddr    = types.BytesToAddress([]byte{0xB1})
	heirAddr   = types.BytesToAddress([]byte{0xB2})
)

func newTestDb(t *testing.T) db.DB {
	t.Helper()
	database, err := db.NewBadgerDbInMemory()
	require.NoError(t, err)
	t.Cleanup(database.Close)
	return database
}

func newRwTx(t *testing.T, database db.DB) db.RwTx {
	t.Helper()
	tx, err := database.CreateRwTx(context.Background())
	require.NoError(t, err)
	t.Cleanup(tx.Rollback)
	return tx
}

func boxCode(t *testing.T) *vm.Code {
	t.Helper()
	code, err := vm.Flatten(&vm.Unit{
		Name: "Box",
		Vars: []string{"stored"},
		Functions: []*vm.Function{
			{
				Name:   "set",
				Params: []vm.Param{{Name: "v", Kind: vm.KindUint}},
				Body:   vm.Program{vm.Arg(0), vm.Slot("stored"), vm.SStore()},
			},
		},
	})
	require.NoError(t, err)
	return code
}

func TestStateSnapshotRevert(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)
	es := NewExecutionState(newRwTx(t, database), NewStateAccessor())

	require.NoError(t, es.AddBalance(holderAddr, types.NewValueFromUint64(100)))
	require.NoError(t, es.CreateContract(boxAddr, boxCode(t)))

	key := common.Uint64ToHash(0)
	require.NoError(t, es.SetState(boxAddr, key, common.Uint64ToHash(7)))
	es.SetGuard(boxAddr, true)
	es.AddEvent(&types.Event{Address: boxAddr, Name: "Ping"})

	snap := es.Snapshot()

	require.NoError(t, es.SetState(boxAddr, key, common.Uint64ToHash(8)))
	require.NoError(t, es.SetState(boxAddr, common.Uint64ToHash(1), common.Uint64ToHash(9)))
	require.NoError(t, es.SubBalance(holderAddr, types.NewValueFromUint64(40)))
	es.SetGuard(boxAddr, false)
	es.AddEvent(&types.Event{Address: boxAddr, Name: "Pong"})

	es.RevertToSnapshot(snap)

	val, err := es.GetState(boxAddr, key)
	require.NoError(t, err)
	require.Equal(t, common.Uint64ToHash(7), val)

	val, err = es.GetState(boxAddr, common.Uint64ToHash(1))
	require.NoError(t, err)
	require.Equal(t, common.EmptyHash, val)

	bal, err := es.GetBalance(holderAddr)
	require.NoError(t, err)
	require.EqualValues(t, 100, bal.Uint64())

	require.True(t, es.GuardHeld(boxAddr))
	require.Len(t, es.Events, 1)
	require.Equal(t, "Ping", es.Events[0].Name)
}

func TestStateRevertRemovesCreatedAccounts(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)
	es := NewExecutionState(newRwTx(t, database), NewStateAccessor())

	snap := es.Snapshot()
	require.NoError(t, es.AddBalance(holderAddr, types.NewValueFromUint64(10)))
	require.NoError(t, es.CreateContract(boxAddr, boxCode(t)))
	es.RevertToSnapshot(snap)

	bal, err := es.GetBalance(holderAddr)
	require.NoError(t, err)
	require.True(t, bal.IsZero())

	exists, err := es.Exists(boxAddr)
	require.NoError(t, err)
	require.False(t, exists)

	require.Panics(t, func() { es.RevertToSnapshot(snap) })
}

func TestStateCreateContract(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)
	es := NewExecutionState(newRwTx(t, database), NewStateAccessor())
	code := boxCode(t)

	// A plain balance holder is upgraded in place.
	require.NoError(t, es.AddBalance(boxAddr, types.NewValueFromUint64(33)))
	require.NoError(t, es.CreateContract(boxAddr, code))

	exists, err := es.Exists(boxAddr)
	require.NoError(t, err)
	require.True(t, exists)

	bal, err := es.GetBalance(boxAddr)
	require.NoError(t, err)
	require.EqualValues(t, 33, bal.Uint64())

	got, err := es.GetCode(boxAddr)
	require.NoError(t, err)
	require.Equal(t, code.Hash, got.Hash)

	err = es.CreateContract(boxAddr, code)
	require.Error(t, err)
	require.Equal(t, types.ErrorContractAlreadyExists, types.GetErrorCode(err))
}

func TestStateCommitPersists(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)
	code := boxCode(t)

	tx := newRwTx(t, database)
	es := NewExecutionState(tx, NewStateAccessor())
	require.NoError(t, es.CreateContract(boxAddr, code))
	require.NoError(t, es.AddBalance(boxAddr, types.NewValueFromUint64(12)))
	require.NoError(t, es.SetState(boxAddr, common.Uint64ToHash(0), common.Uint64ToHash(41)))
	require.NoError(t, es.SetState(boxAddr, common.Uint64ToHash(0), common.Uint64ToHash(42)))
	es.AddEvent(&types.Event{
		Address: boxAddr,
		Name:    "Set",
		Fields:  []types.EventField{{Name: "v", Value: types.NewValueFromUint64(42), Indexed: true}},
	})

	res, err := es.Commit()
	require.NoError(t, err)
	require.EqualValues(t, 0, res.Seq)
	require.EqualValues(t, 0, res.FirstEventSeq)
	require.Equal(t, 1, res.EventCount)
	require.NoError(t, tx.Commit())

	// A cold accessor must see everything through the committed tables.
	tx2 := newRwTx(t, database)
	es2 := NewExecutionState(tx2, NewStateAccessor())

	got, err := es2.GetCode(boxAddr)
	require.NoError(t, err)
	require.Equal(t, code.Hash, got.Hash)
	require.Equal(t, code.Layout, got.Layout)

	val, err := es2.GetState(boxAddr, common.Uint64ToHash(0))
	require.NoError(t, err)
	require.Equal(t, common.Uint64ToHash(42), val)

	bal, err := es2.GetBalance(boxAddr)
	require.NoError(t, err)
	require.EqualValues(t, 12, bal.Uint64())

	ev, err := eventlog.Load(tx2, 0)
	require.NoError(t, err)
	require.Equal(t, "Set", ev.Name)
	require.Equal(t, boxAddr, ev.Address)

	seq, err := db.GetUint64(tx2, db.CommitSeqKey)
	require.NoError(t, err)
	require.EqualValues(t, 1, seq)
}

func TestStateCommittedViewIgnoresDirtyWrites(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)
	accessor := NewStateAccessor()

	tx := newRwTx(t, database)
	es := NewExecutionState(tx, accessor)
	require.NoError(t, es.CreateContract(boxAddr, boxCode(t)))
	require.NoError(t, es.SetState(boxAddr, common.Uint64ToHash(0), common.Uint64ToHash(4)))
	_, err := es.Commit()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2 := newRwTx(t, database)
	es2 := NewExecutionState(tx2, accessor)
	require.NoError(t, es2.SetState(boxAddr, common.Uint64ToHash(0), common.Uint64ToHash(5)))

	cur, err := es2.GetState(boxAddr, common.Uint64ToHash(0))
	require.NoError(t, err)
	require.Equal(t, common.Uint64ToHash(5), cur)

	committed, err := es2.GetCommittedState(boxAddr, common.Uint64ToHash(0))
	require.NoError(t, err)
	require.Equal(t, common.Uint64ToHash(4), committed)
}

func TestStateCommitSkipsUntouchedAccounts(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)

	tx := newRwTx(t, database)
	es := NewExecutionState(tx, NewStateAccessor())
	require.NoError(t, es.CreateContract(boxAddr, boxCode(t)))
	_, err := es.Commit()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	// A read-only touch must not append a commit record delta.
	tx2 := newRwTx(t, database)
	es2 := NewExecutionState(tx2, NewStateAccessor())
	_, err = es2.GetBalance(boxAddr)
	require.NoError(t, err)
	res, err := es2.Commit()
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())

	tx3 := newRwTx(t, database)
	data, err := tx3.Get(db.CommitTable, db.SeqKey(res.Seq))
	require.NoError(t, err)
	record, err := decodeCommitRecord(data)
	require.NoError(t, err)
	require.Empty(t, record.Balances)
	require.Empty(t, record.Slots)
}

func TestStateTerminate(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)
	code := boxCode(t)

	tx := newRwTx(t, database)
	es := NewExecutionState(tx, NewStateAccessor())
	require.NoError(t, es.CreateContract(boxAddr, code))
	require.NoError(t, es.AddBalance(boxAddr, types.NewValueFromUint64(50)))
	require.NoError(t, es.SetState(boxAddr, common.Uint64ToHash(0), common.Uint64ToHash(1)))
	_, err := es.Commit()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2 := newRwTx(t, database)
	es2 := NewExecutionState(tx2, NewStateAccessor())
	require.NoError(t, es2.Terminate(boxAddr, heirAddr))

	bal, err := es2.GetBalance(heirAddr)
	require.NoError(t, err)
	require.EqualValues(t, 50, bal.Uint64())

	codeAfter, err := es2.GetCode(boxAddr)
	require.NoError(t, err)
	require.Nil(t, codeAfter)

	_, err = es2.Commit()
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())

	tx3 := newRwTx(t, database)
	es3 := NewExecutionState(tx3, NewStateAccessor())

	// The namespace is cleared and the address stays occupied.
	_, err = tx3.Get(db.StorageTable, db.StorageKey(boxAddr, common.Uint64ToHash(0)))
	require.True(t, errors.Is(err, db.ErrKeyNotFound))

	val, err := es3.GetState(boxAddr, common.Uint64ToHash(0))
	require.NoError(t, err)
	require.Equal(t, common.EmptyHash, val)

	err = es3.CreateContract(boxAddr, code)
	require.Error(t, err)
	require.Equal(t, types.ErrorContractAlreadyExists, types.GetErrorCode(err))
}

func TestStateTerminateSelfBeneficiaryBurns(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)
	es := NewExecutionState(newRwTx(t, database), NewStateAccessor())
	require.NoError(t, es.CreateContract(boxAddr, boxCode(t)))
	require.NoError(t, es.AddBalance(boxAddr, types.NewValueFromUint64(9)))

	require.NoError(t, es.Terminate(boxAddr, boxAddr))

	bal, err := es.GetBalance(boxAddr)
	require.NoError(t, err)
	require.True(t, bal.IsZero())
}

func TestStateReplay(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)
	code := boxCode(t)
	accessor := NewStateAccessor()

	tx := newRwTx(t, database)
	es := NewExecutionState(tx, accessor)
	require.NoError(t, es.CreateContract(boxAddr, code))
	require.NoError(t, es.SetState(boxAddr, common.Uint64ToHash(0), common.Uint64ToHash(5)))
	es.AddEvent(&types.Event{Address: boxAddr, Name: "Set"})
	_, err := es.Commit()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2 := newRwTx(t, database)
	es2 := NewExecutionState(tx2, accessor)
	require.NoError(t, es2.AddBalance(holderAddr, types.NewValueFromUint64(77)))
	require.NoError(t, es2.SetState(boxAddr, common.Uint64ToHash(0), common.Uint64ToHash(6)))
	_, err = es2.Commit()
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())

	tx3 := newRwTx(t, database)
	es3 := NewExecutionState(tx3, accessor)
	require.NoError(t, es3.Terminate(boxAddr, holderAddr))
	_, err = es3.Commit()
	require.NoError(t, err)
	require.NoError(t, tx3.Commit())

	report, err := Replay(context.Background(), database)
	require.NoError(t, err)
	require.True(t, report.OK(), "mismatches: %v", report.Mismatches)
	require.Equal(t, 3, report.Commits)
	require.Equal(t, 1, report.Deploys)
	require.Equal(t, 1, report.Terminations)
	require.EqualValues(t, 1, report.Events)
}

func TestStateReplayDetectsTampering(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)

	tx := newRwTx(t, database)
	es := NewExecutionState(tx, NewStateAccessor())
	require.NoError(t, es.CreateContract(boxAddr, boxCode(t)))
	require.NoError(t, es.SetState(boxAddr, common.Uint64ToHash(0), common.Uint64ToHash(5)))
	_, err := es.Commit()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	report, err := Replay(context.Background(), database)
	require.NoError(t, err)
	require.True(t, report.OK())

	// Flip a committed slot behind the journal's back.
	tx2 := newRwTx(t, database)
	require.NoError(t, tx2.Put(db.StorageTable,
		db.StorageKey(boxAddr, common.Uint64ToHash(0)), common.Uint64ToHash(999).Bytes()))
	require.NoError(t, tx2.Commit())

	report, err = Replay(context.Background(), database)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Contains(t, report.Mismatches[0], "slot")
}

// stateView is the observable surface compared by the revert property.
type stateView struct {
	balances map[types.Address]uint64
	slots    map[common.Hash]uint64
	guard    bool
	events   int
}

func captureView(t *rapid.T, es *ExecutionState, addrs []types.Address, keys []common.Hash) stateView {
	view := stateView{
		balances: make(map[types.Address]uint64),
		slots:    make(map[common.Hash]uint64),
		guard:    es.GuardHeld(boxAddr),
		events:   len(es.Events),
	}
	for _, addr := range addrs {
		bal, err := es.GetBalance(addr)
		if err != nil {
			t.Fatal(err)
		}
		view.balances[addr] = bal.Uint64()
	}
	for _, key := range keys {
		val, err := es.GetState(boxAddr, key)
		if err != nil {
			t.Fatal(err)
		}
		view.slots[key] = val.Uint64()
	}
	return view
}

func TestStateRevertIsExact(t *testing.T) {
	t.Parallel()

	database := newTestDb(t)
	code := boxCode(t)

	addrs := []types.Address{holderAddr, heirAddr}
	keys := []common.Hash{common.Uint64ToHash(0), common.Uint64ToHash(1), common.Uint64ToHash(2)}

	rapid.Check(t, func(rt *rapid.T) {
		tx, err := database.CreateRwTx(context.Background())
		if err != nil {
			rt.Fatal(err)
		}
		defer tx.Rollback()

		es := NewExecutionState(tx, NewStateAccessor())
		if err := es.CreateContract(boxAddr, code); err != nil {
			rt.Fatal(err)
		}

		applyOp := func(label string) {
			switch rapid.SampledFrom([]string{"credit", "debit", "store", "guard", "event"}).Draw(rt, label) {
			case "credit":
				addr := rapid.SampledFrom(addrs).Draw(rt, label+"Addr")
				amount := rapid.Uint64Range(0, 1000).Draw(rt, label+"Amount")
				if err := es.AddBalance(addr, types.NewValueFromUint64(amount)); err != nil {
					rt.Fatal(err)
				}
			case "debit":
				addr := rapid.SampledFrom(addrs).Draw(rt, label+"Addr")
				bal, err := es.GetBalance(addr)
				if err != nil {
					rt.Fatal(err)
				}
				if bal.IsZero() {
					return
				}
				if err := es.SubBalance(addr, types.NewValueFromUint64(1)); err != nil {
					rt.Fatal(err)
				}
			case "store":
				key := rapid.SampledFrom(keys).Draw(rt, label+"Key")
				val := rapid.Uint64Range(0, 9).Draw(rt, label+"Val")
				if err := es.SetState(boxAddr, key, common.Uint64ToHash(val)); err != nil {
					rt.Fatal(err)
				}
			case "guard":
				es.SetGuard(boxAddr, !es.GuardHeld(boxAddr))
			case "event":
				es.AddEvent(&types.Event{Address: boxAddr, Name: "E"})
			}
		}

		before := rapid.IntRange(0, 8).Draw(rt, "before")
		for i := range before {
			applyOp(fmt.Sprintf("pre%d", i))
		}

		want := captureView(rt, es, addrs, keys)
		snap := es.Snapshot()

		after := rapid.IntRange(1, 12).Draw(rt, "after")
		for i := range after {
			applyOp(fmt.Sprintf("post%d", i))
		}

		es.RevertToSnapshot(snap)
		got := captureView(rt, es, addrs, keys)

		if !reflect.DeepEqual(want, got) {
			rt.Fatalf("revert not exact:\nwant %+v\ngot  %+v", want, got)
		}
	})
}
