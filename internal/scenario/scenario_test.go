package scenario

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthvm/hearth/internal/vm"
)

func TestUnitsBuildsInheritanceGraph(t *testing.T) {
	t.Parallel()

	s := &Scenario{
		Contracts: []ContractDef{
			{
				Name: "Ownable",
				Vars: []string{"owner"},
				Functions: []FunctionDef{
					{Name: "onlyOwner", Visibility: "internal", Body: "CALLER\nSLOT owner\nSLOAD\nEQ\nREQUIRE \"not owner\""},
				},
			},
			{
				Name:    "Vault",
				Extends: []string{"Ownable"},
				Vars:    []string{"total"},
				Events: []EventDef{
					{Name: "Deposited", Fields: []FieldDef{
						{Name: "who", Indexed: true},
						{Name: "amount"},
					}},
				},
				Functions: []FunctionDef{
					{
						Name:       "deposit",
						Mutability: "payable",
						Body:       "CALLVALUE\nSLOT total\nSLOAD\nADD\nSLOT total\nSSTORE",
					},
				},
			},
		},
	}

	units, err := s.Units()
	require.NoError(t, err)
	require.Len(t, units, 2)

	vault := units["Vault"]
	require.NotNil(t, vault)
	require.Equal(t, []string{"total"}, vault.Vars)
	require.Len(t, vault.Extends, 1)
	require.Same(t, units["Ownable"], vault.Extends[0])

	require.Len(t, vault.Events, 1)
	require.Equal(t, vm.EventDef{Name: "Deposited", Fields: []vm.EventFieldDef{
		{Name: "who", Indexed: true},
		{Name: "amount"},
	}}, vault.Events[0])

	require.Len(t, vault.Functions, 1)
	deposit := vault.Functions[0]
	require.Equal(t, "deposit", deposit.Name)
	require.Equal(t, vm.Public, deposit.Visibility)
	require.Equal(t, vm.Payable, deposit.Mutability)
	require.Len(t, deposit.Body, 6)

	// Flattening proves the units wire together end to end.
	code, err := vm.Flatten(vault)
	require.NoError(t, err)
	require.Equal(t, []string{"owner", "total"}, code.Layout)
	require.Contains(t, code.Functions, "onlyOwner")
	require.Contains(t, code.Functions, "deposit")
}

func TestUnitsFunctionAttributes(t *testing.T) {
	t.Parallel()

	s := &Scenario{
		Contracts: []ContractDef{{
			Name: "Token",
			Functions: []FunctionDef{{
				Name:       "transfer",
				Visibility: "external",
				Guarded:    true,
				Params: []ParamDef{
					{Name: "to", Kind: "address"},
					{Name: "amount"},
				},
				Body: "STOP",
			}},
		}},
	}

	units, err := s.Units()
	require.NoError(t, err)

	fn := units["Token"].Functions[0]
	require.Equal(t, vm.External, fn.Visibility)
	require.True(t, fn.Guarded)
	require.Equal(t, []vm.Param{
		{Name: "to", Kind: vm.KindAddress},
		{Name: "amount", Kind: vm.KindUint},
	}, fn.Params)
}

func TestUnitsErrors(t *testing.T) {
	t.Parallel()

	t.Run("duplicate contract", func(t *testing.T) {
		t.Parallel()

		s := &Scenario{Contracts: []ContractDef{{Name: "A"}, {Name: "A"}}}
		_, err := s.Units()
		require.ErrorContains(t, err, `contract "A" defined twice`)
	})

	t.Run("unknown parent", func(t *testing.T) {
		t.Parallel()

		s := &Scenario{Contracts: []ContractDef{{Name: "A", Extends: []string{"Ghost"}}}}
		_, err := s.Units()
		require.ErrorContains(t, err, `unknown contract "Ghost"`)
	})

	t.Run("inheritance cycle", func(t *testing.T) {
		t.Parallel()

		s := &Scenario{Contracts: []ContractDef{
			{Name: "A", Extends: []string{"B"}},
			{Name: "B", Extends: []string{"A"}},
		}}
		_, err := s.Units()
		require.ErrorContains(t, err, "inheritance cycle")
	})

	t.Run("bad function body", func(t *testing.T) {
		t.Parallel()

		s := &Scenario{Contracts: []ContractDef{{
			Name:      "A",
			Functions: []FunctionDef{{Name: "f", Body: "NOPE"}},
		}}}
		_, err := s.Units()
		require.ErrorContains(t, err, "A.f:")
	})

	t.Run("bad visibility", func(t *testing.T) {
		t.Parallel()

		s := &Scenario{Contracts: []ContractDef{{
			Name:      "A",
			Functions: []FunctionDef{{Name: "f", Visibility: "secret", Body: "STOP"}},
		}}}
		_, err := s.Units()
		require.ErrorContains(t, err, `unknown visibility "secret"`)
	})
}
