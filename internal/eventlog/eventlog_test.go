package eventlog

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/hearthvm/hearth/internal/db"
	"github.com/hearthvm/hearth/internal/types"
)

var (
	tokenAddr = types.BytesToAddress([]byte{0x01})
	otherAddr = types.BytesToAddress([]byte{0x02})
)

func newTestTx(t *testing.T) db.RwTx {
	t.Helper()
	database, err := db.NewBadgerDbInMemory()
	require.NoError(t, err)
	t.Cleanup(database.Close)

	tx, err := database.CreateRwTx(context.Background())
	require.NoError(t, err)
	t.Cleanup(tx.Rollback)
	return tx
}

func transfer(from, to, amount uint64) *types.Event {
	return &types.Event{
		Address: tokenAddr,
		Name:    "Transfer",
		Fields: []types.EventField{
			{Name: "from", Value: types.NewValueFromUint64(from), Indexed: true},
			{Name: "to", Value: types.NewValueFromUint64(to), Indexed: true},
			{Name: "amount", Value: types.NewValueFromUint64(amount)},
		},
	}
}

func TestFlushAssignsSequence(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)

	first, count, err := Flush(tx, []*types.Event{transfer(1, 2, 10), transfer(2, 3, 20)})
	require.NoError(t, err)
	require.EqualValues(t, 0, first)
	require.Equal(t, 2, count)

	first, count, err = Flush(tx, []*types.Event{transfer(3, 1, 30)})
	require.NoError(t, err)
	require.EqualValues(t, 2, first)
	require.Equal(t, 1, count)

	ev, err := Load(tx, 1)
	require.NoError(t, err)
	require.Equal(t, tokenAddr, ev.Address)
	require.Equal(t, "Transfer", ev.Name)
	require.EqualValues(t, 1, ev.Seq)

	from, ok := ev.IndexedField("from")
	require.True(t, ok)
	require.EqualValues(t, 2, from.Uint64())

	amount, ok := ev.Field("amount")
	require.True(t, ok)
	require.EqualValues(t, 20, amount.Uint64())

	_, ok = ev.IndexedField("amount")
	require.False(t, ok, "amount is not indexed")
}

func TestQueryByEventName(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)
	approval := &types.Event{Address: tokenAddr, Name: "Approval"}
	foreign := &types.Event{Address: otherAddr, Name: "Transfer"}

	_, _, err := Flush(tx, []*types.Event{
		transfer(1, 2, 10), approval, transfer(2, 3, 20), foreign, transfer(1, 3, 30),
	})
	require.NoError(t, err)

	got, err := Query(tx, &Filter{Contract: tokenAddr, Event: "Transfer"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, want := range []uint64{0, 2, 4} {
		require.Equal(t, want, got[i].Seq, "emission order")
	}

	got, err = Query(tx, &Filter{Contract: otherAddr, Event: "Transfer"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, otherAddr, got[0].Address)

	got, err = Query(tx, &Filter{Contract: tokenAddr, Event: "Burn"})
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = Query(tx, &Filter{Contract: tokenAddr})
	require.Error(t, err)
}

func TestQueryByIndexedField(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)
	_, _, err := Flush(tx, []*types.Event{
		transfer(1, 2, 10), transfer(1, 3, 20), transfer(2, 1, 30), transfer(1, 2, 40),
	})
	require.NoError(t, err)

	got, err := Query(tx, &Filter{
		Contract: tokenAddr,
		Event:    "Transfer",
		Matches:  []Match{{Field: "from", Value: types.NewValueFromUint64(1)}},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, want := range []uint64{0, 1, 3} {
		require.Equal(t, want, got[i].Seq)
	}

	// Additional matches intersect.
	got, err = Query(tx, &Filter{
		Contract: tokenAddr,
		Event:    "Transfer",
		Matches: []Match{
			{Field: "from", Value: types.NewValueFromUint64(1)},
			{Field: "to", Value: types.NewValueFromUint64(2)},
		},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.EqualValues(t, 0, got[0].Seq)
	require.EqualValues(t, 3, got[1].Seq)

	got, err = Query(tx, &Filter{
		Contract: tokenAddr,
		Event:    "Transfer",
		Matches:  []Match{{Field: "from", Value: types.NewValueFromUint64(9)}},
	})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestQueryLimit(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)
	_, _, err := Flush(tx, []*types.Event{
		transfer(1, 2, 10), transfer(1, 2, 20), transfer(1, 2, 30),
	})
	require.NoError(t, err)

	got, err := Query(tx, &Filter{Contract: tokenAddr, Event: "Transfer", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.EqualValues(t, 0, got[0].Seq)
	require.EqualValues(t, 1, got[1].Seq)
}

func TestQuerySequenceWindow(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)
	_, _, err := Flush(tx, []*types.Event{
		transfer(1, 2, 10), transfer(1, 2, 20), transfer(1, 2, 30), transfer(1, 2, 40),
	})
	require.NoError(t, err)

	got, err := Query(tx, &Filter{Contract: tokenAddr, Event: "Transfer", From: 1, To: 3})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.EqualValues(t, 1, got[0].Seq)
	require.EqualValues(t, 2, got[1].Seq)

	// The window composes with an index match.
	got, err = Query(tx, &Filter{
		Contract: tokenAddr,
		Event:    "Transfer",
		Matches:  []Match{{Field: "from", Value: types.NewValueFromUint64(1)}},
		From:     2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.EqualValues(t, 2, got[0].Seq)

	got, err = Query(tx, &Filter{Contract: tokenAddr, Event: "Transfer", From: 3, To: 3})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestQueryMaxValueWord(t *testing.T) {
	t.Parallel()

	tx := newTestTx(t)
	max := types.NewValue(new(uint256.Int).Not(uint256.NewInt(0)))
	ev := &types.Event{
		Address: tokenAddr,
		Name:    "Mark",
		Fields:  []types.EventField{{Name: "tag", Value: max, Indexed: true}},
	}
	_, _, err := Flush(tx, []*types.Event{ev})
	require.NoError(t, err)

	got, err := Query(tx, &Filter{
		Contract: tokenAddr,
		Event:    "Mark",
		Matches:  []Match{{Field: "tag", Value: max}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
