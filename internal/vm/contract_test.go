package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthvm/hearth/internal/types"
)

func requireDeployErr(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, types.ErrorDeploymentFailed, types.GetErrorCode(err))
	require.Contains(t, err.Error(), contains)
}

func TestFlattenAssignsLayoutOrdinals(t *testing.T) {
	t.Parallel()

	base := &Unit{
		Name: "Base",
		Vars: []string{"a", "b"},
	}
	derived := &Unit{
		Name:    "Derived",
		Extends: []*Unit{base},
		Vars:    []string{"c"},
		Functions: []*Function{
			{Name: "touch", Body: Program{Push(1), Slot("c"), SStore()}},
		},
	}

	code, err := Flatten(derived)
	require.NoError(t, err)
	require.Equal(t, "Derived", code.UnitName)
	require.Equal(t, []string{"a", "b", "c"}, code.Layout)
	require.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2}, code.Slots)

	// The slot name resolves to its layout ordinal at flatten time.
	body := code.Functions["touch"].Body
	require.Equal(t, SLOT, body[1].Op)
	require.Equal(t, 2, body[1].N)

	slot, ok := code.SlotOf("b")
	require.True(t, ok)
	require.EqualValues(t, 1, slot.Uint64())
	_, ok = code.SlotOf("nope")
	require.False(t, ok)
}

func TestFlattenDiamondKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	a := &Unit{Name: "A", Vars: []string{"x"}}
	b := &Unit{Name: "B", Extends: []*Unit{a}, Vars: []string{"y"}}
	c := &Unit{Name: "C", Extends: []*Unit{a}, Vars: []string{"z"}}
	d := &Unit{Name: "D", Extends: []*Unit{b, c}}

	code, err := Flatten(d)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y", "z"}, code.Layout)
}

func TestFlattenInheritanceCycle(t *testing.T) {
	t.Parallel()

	a := &Unit{Name: "A"}
	b := &Unit{Name: "B", Extends: []*Unit{a}}
	a.Extends = []*Unit{b}

	_, err := Flatten(a)
	requireDeployErr(t, err, "cycle")
}

func TestFlattenDuplicateStateVariable(t *testing.T) {
	t.Parallel()

	base := &Unit{Name: "Base", Vars: []string{"total"}}
	derived := &Unit{Name: "Derived", Extends: []*Unit{base}, Vars: []string{"total"}}

	_, err := Flatten(derived)
	requireDeployErr(t, err, "total")
	require.Contains(t, err.Error(), "Base")
	require.Contains(t, err.Error(), "Derived")
}

func TestFlattenOverride(t *testing.T) {
	t.Parallel()

	base := &Unit{
		Name: "Base",
		Functions: []*Function{
			{Name: "ping", Virtual: true, Body: Program{Push(1), Return()}},
		},
	}
	derived := &Unit{
		Name:    "Derived",
		Extends: []*Unit{base},
		Functions: []*Function{
			{Name: "ping", Override: true, Body: Program{Push(2), Return()}},
		},
	}

	code, err := Flatten(derived)
	require.NoError(t, err)
	require.Equal(t, "Derived", code.Functions["ping"].Unit)
}

func TestFlattenOverrideViolations(t *testing.T) {
	t.Parallel()

	t.Run("base not virtual", func(t *testing.T) {
		t.Parallel()
		base := &Unit{Name: "Base", Functions: []*Function{{Name: "f"}}}
		derived := &Unit{
			Name: "Derived", Extends: []*Unit{base},
			Functions: []*Function{{Name: "f", Override: true}},
		}
		_, err := Flatten(derived)
		requireDeployErr(t, err, "not virtual")
	})

	t.Run("missing override marker", func(t *testing.T) {
		t.Parallel()
		base := &Unit{Name: "Base", Functions: []*Function{{Name: "f", Virtual: true}}}
		derived := &Unit{
			Name: "Derived", Extends: []*Unit{base},
			Functions: []*Function{{Name: "f"}},
		}
		_, err := Flatten(derived)
		requireDeployErr(t, err, "override marker")
	})

	t.Run("override without base", func(t *testing.T) {
		t.Parallel()
		unit := &Unit{Name: "Solo", Functions: []*Function{{Name: "f", Override: true}}}
		_, err := Flatten(unit)
		requireDeployErr(t, err, "overrides nothing")
	})

	t.Run("signature change", func(t *testing.T) {
		t.Parallel()
		base := &Unit{Name: "Base", Functions: []*Function{
			{Name: "f", Virtual: true, Params: []Param{{Name: "a", Kind: KindUint}}},
		}}
		derived := &Unit{
			Name: "Derived", Extends: []*Unit{base},
			Functions: []*Function{
				{Name: "f", Override: true, Params: []Param{{Name: "a", Kind: KindAddress}}},
			},
		}
		_, err := Flatten(derived)
		requireDeployErr(t, err, "signature")
	})

	t.Run("declared twice in one unit", func(t *testing.T) {
		t.Parallel()
		unit := &Unit{Name: "Twice", Functions: []*Function{{Name: "f"}, {Name: "f"}}}
		_, err := Flatten(unit)
		requireDeployErr(t, err, "twice")
	})
}

func TestFlattenConstructorSelection(t *testing.T) {
	t.Parallel()

	base := &Unit{
		Name: "Base",
		Functions: []*Function{
			{Name: CtorName, Body: Program{Push(1), Slot("x"), SStore()}},
		},
		Vars: []string{"x"},
	}
	derived := &Unit{
		Name:    "Derived",
		Extends: []*Unit{base},
		Functions: []*Function{
			{Name: CtorName, Body: Program{Push(2), Slot("x"), SStore()}},
		},
	}

	code, err := Flatten(derived)
	require.NoError(t, err)
	require.NotNil(t, code.Constructor)
	require.Equal(t, "Derived", code.Constructor.Unit)
	require.Nil(t, code.Functions[CtorName])
}

func TestFlattenSpecialFunctionValidation(t *testing.T) {
	t.Parallel()

	t.Run("view constructor", func(t *testing.T) {
		t.Parallel()
		unit := &Unit{Name: "U", Functions: []*Function{{Name: CtorName, Mutability: View}}}
		_, err := Flatten(unit)
		requireDeployErr(t, err, "constructor")
	})

	t.Run("non-payable receive", func(t *testing.T) {
		t.Parallel()
		unit := &Unit{Name: "U", Functions: []*Function{{Name: ReceiveName}}}
		_, err := Flatten(unit)
		requireDeployErr(t, err, "payable")
	})

	t.Run("receive with parameters", func(t *testing.T) {
		t.Parallel()
		unit := &Unit{Name: "U", Functions: []*Function{{
			Name:       ReceiveName,
			Mutability: Payable,
			Params:     []Param{{Name: "a", Kind: KindUint}},
		}}}
		_, err := Flatten(unit)
		requireDeployErr(t, err, "parameters")
	})
}

func TestFlattenEventRules(t *testing.T) {
	t.Parallel()

	t.Run("too many indexed fields", func(t *testing.T) {
		t.Parallel()
		unit := &Unit{Name: "U", Events: []EventDef{{
			Name: "E",
			Fields: []EventFieldDef{
				{Name: "a", Indexed: true}, {Name: "b", Indexed: true},
				{Name: "c", Indexed: true}, {Name: "d", Indexed: true},
			},
		}}}
		_, err := Flatten(unit)
		requireDeployErr(t, err, "indexed")
	})

	t.Run("identical redeclaration merges", func(t *testing.T) {
		t.Parallel()
		def := EventDef{Name: "Ping", Fields: []EventFieldDef{{Name: "who", Indexed: true}}}
		base := &Unit{Name: "Base", Events: []EventDef{def}}
		derived := &Unit{Name: "Derived", Extends: []*Unit{base}, Events: []EventDef{def}}
		code, err := Flatten(derived)
		require.NoError(t, err)
		require.NotNil(t, code.EventDef("Ping"))
	})

	t.Run("conflicting redeclaration", func(t *testing.T) {
		t.Parallel()
		base := &Unit{Name: "Base", Events: []EventDef{
			{Name: "Ping", Fields: []EventFieldDef{{Name: "who"}}},
		}}
		derived := &Unit{Name: "Derived", Extends: []*Unit{base}, Events: []EventDef{
			{Name: "Ping", Fields: []EventFieldDef{{Name: "who", Indexed: true}}},
		}}
		_, err := Flatten(derived)
		requireDeployErr(t, err, "different shape")
	})

	t.Run("emit resolves field count", func(t *testing.T) {
		t.Parallel()
		unit := &Unit{
			Name: "U",
			Events: []EventDef{
				{Name: "Pair", Fields: []EventFieldDef{{Name: "a"}, {Name: "b"}}},
			},
			Functions: []*Function{
				{Name: "go", Body: Program{Push(1), Push(2), Emit("Pair")}},
			},
		}
		code, err := Flatten(unit)
		require.NoError(t, err)
		require.Equal(t, 2, code.Functions["go"].Body[2].N)
	})

	t.Run("unknown event", func(t *testing.T) {
		t.Parallel()
		unit := &Unit{Name: "U", Functions: []*Function{
			{Name: "go", Body: Program{Emit("Missing")}},
		}}
		_, err := Flatten(unit)
		requireDeployErr(t, err, "unknown event")
	})
}

func TestFlattenBodyValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		fn       *Function
		contains string
	}{
		{"push without immediate", &Function{Name: "f", Body: Program{{Op: PUSH}}}, "PUSH"},
		{"dup out of range", &Function{Name: "f", Body: Program{Push(1), Dup(17)}}, "out of range"},
		{"swap zero", &Function{Name: "f", Body: Program{Swap(0)}}, "out of range"},
		{"arg out of range", &Function{Name: "f", Body: Program{Arg(0)}}, "ARG"},
		{"unknown state variable", &Function{Name: "f", Body: Program{Slot("ghost")}}, "ghost"},
		{"invalid opcode", &Function{Name: "f", Body: Program{{Op: OpCode(200)}}}, "invalid opcode"},
		{"intcall without name", &Function{Name: "f", Body: Program{{Op: INTCALL}}}, "INTCALL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Flatten(&Unit{Name: "U", Functions: []*Function{tc.fn}})
			requireDeployErr(t, err, tc.contains)
		})
	}
}

func TestCodecRoundtrip(t *testing.T) {
	t.Parallel()

	unit := &Unit{
		Name: "Token",
		Vars: []string{"owner", "total"},
		Events: []EventDef{
			{Name: "Transfer", Fields: []EventFieldDef{
				{Name: "from", Indexed: true}, {Name: "to", Indexed: true}, {Name: "amount"},
			}},
		},
		Functions: []*Function{
			{Name: CtorName, Params: []Param{{Name: "supply", Kind: KindUint}}, Body: Program{
				Arg(0), Slot("total"), SStore(),
			}},
			{Name: ReceiveName, Visibility: External, Mutability: Payable, Body: Program{Stop()}},
			{
				Name:       "transfer",
				Visibility: Public,
				Guarded:    true,
				Params:     []Param{{Name: "to", Kind: KindAddress}, {Name: "amount", Kind: KindUint}},
				Body: Program{
					Arg(1), Arg(0), MapSlot("total"), SStore(),
					Arg(0), Arg(1), Push(0), Emit("Transfer"),
					Push(1), Return(),
				},
			},
			{Name: "helper", Visibility: Private, Mutability: Pure, Body: Program{Push(7), Return()}},
		},
	}

	code, err := Flatten(unit)
	require.NoError(t, err)

	encoded, err := EncodeCode(code)
	require.NoError(t, err)

	again, err := EncodeCode(code)
	require.NoError(t, err)
	require.Equal(t, encoded, again, "encoding must be deterministic")

	decoded, err := DecodeCode(encoded)
	require.NoError(t, err)

	require.Equal(t, code.UnitName, decoded.UnitName)
	require.Equal(t, code.Hash, decoded.Hash)
	require.Equal(t, code.Layout, decoded.Layout)
	require.Equal(t, code.Slots, decoded.Slots)

	require.NotNil(t, decoded.Constructor)
	require.Nil(t, decoded.Functions[CtorName])
	require.NotNil(t, decoded.Receive)
	require.Equal(t, Payable, decoded.Receive.Mutability)

	fn := decoded.Functions["transfer"]
	require.NotNil(t, fn)
	require.True(t, fn.Guarded)
	require.Equal(t, Public, fn.Visibility)
	require.Len(t, fn.Params, 2)
	require.Equal(t, KindAddress, fn.Params[0].Kind)
	require.Equal(t, code.Functions["transfer"].Body, fn.Body)

	helper := decoded.Functions["helper"]
	require.NotNil(t, helper)
	require.Equal(t, Private, helper.Visibility)
	require.Equal(t, Pure, helper.Mutability)
}

func TestCodeHashDistinguishesUnits(t *testing.T) {
	t.Parallel()

	a, err := Flatten(&Unit{Name: "A", Vars: []string{"x"}})
	require.NoError(t, err)
	b, err := Flatten(&Unit{Name: "B", Vars: []string{"x"}})
	require.NoError(t, err)
	require.NotEqual(t, a.Hash, b.Hash)
}

func TestDecodeCodeRejectsCorrupt(t *testing.T) {
	t.Parallel()

	_, err := DecodeCode([]byte{0xff, 0x00, 0x13})
	require.Error(t, err)
}
