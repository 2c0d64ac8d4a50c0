// Package scenario loads and runs YAML scenario files: contract units in
// assembler notation plus an ordered transaction list. Scenarios are how
// the command line exercises the engine without a compiler.
package scenario

import (
	"fmt"

	"github.com/hearthvm/hearth/internal/types"
	"github.com/hearthvm/hearth/internal/vm"
)

type Scenario struct {
	Name         string        `mapstructure:"name"`
	Accounts     []Account     `mapstructure:"accounts"`
	Contracts    []ContractDef `mapstructure:"contracts"`
	Transactions []Transaction `mapstructure:"transactions"`
}

// Account is an externally owned caller. A missing address derives
// deterministically from the account name, so scenarios replay identically.
type Account struct {
	Name    string        `mapstructure:"name"`
	Address types.Address `mapstructure:"address"`
	Balance types.Value   `mapstructure:"balance"`
}

type ContractDef struct {
	Name      string        `mapstructure:"name"`
	Extends   []string      `mapstructure:"extends"`
	Vars      []string      `mapstructure:"vars"`
	Events    []EventDef    `mapstructure:"events"`
	Functions []FunctionDef `mapstructure:"functions"`
}

type EventDef struct {
	Name   string     `mapstructure:"name"`
	Fields []FieldDef `mapstructure:"fields"`
}

type FieldDef struct {
	Name    string `mapstructure:"name"`
	Indexed bool   `mapstructure:"indexed"`
}

type FunctionDef struct {
	Name       string     `mapstructure:"name"`
	Visibility string     `mapstructure:"visibility"`
	Mutability string     `mapstructure:"mutability"`
	Params     []ParamDef `mapstructure:"params"`
	Guarded    bool       `mapstructure:"guarded"`
	Virtual    bool       `mapstructure:"virtual"`
	Override   bool       `mapstructure:"override"`
	Body       string     `mapstructure:"body"`
}

type ParamDef struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`
}

// Transaction is one step of the scenario. Args are resolved by the runner:
// decimal or 0x-hex words, or @label references to accounts and deployed
// contracts. Expect names the error code a step is supposed to fail with;
// empty means the step must succeed.
type Transaction struct {
	Kind        string      `mapstructure:"kind"`
	Caller      string      `mapstructure:"caller"`
	Contract    string      `mapstructure:"contract"`
	Label       string      `mapstructure:"label"`
	Function    string      `mapstructure:"function"`
	Args        []string    `mapstructure:"args"`
	Value       types.Value `mapstructure:"value"`
	Gas         types.Gas   `mapstructure:"gas"`
	Account     string      `mapstructure:"account"`
	Beneficiary string      `mapstructure:"beneficiary"`
	Expect      string      `mapstructure:"expect"`
}

const (
	KindDeploy    = "deploy"
	KindCall      = "call"
	KindCredit    = "credit"
	KindTerminate = "terminate"
)

func parseVisibility(s string) (vm.Visibility, error) {
	switch s {
	case "", "public":
		return vm.Public, nil
	case "external":
		return vm.External, nil
	case "internal":
		return vm.Internal, nil
	case "private":
		return vm.Private, nil
	}
	return 0, fmt.Errorf("unknown visibility %q", s)
}

func parseMutability(s string) (vm.Mutability, error) {
	switch s {
	case "", "nonpayable":
		return vm.NonPayable, nil
	case "payable":
		return vm.Payable, nil
	case "view":
		return vm.View, nil
	case "pure":
		return vm.Pure, nil
	}
	return 0, fmt.Errorf("unknown mutability %q", s)
}

func parseKind(s string) (vm.ParamKind, error) {
	switch s {
	case "", "uint":
		return vm.KindUint, nil
	case "bool":
		return vm.KindBool, nil
	case "address":
		return vm.KindAddress, nil
	}
	return 0, fmt.Errorf("unknown parameter kind %q", s)
}

func (d *ContractDef) function(fd *FunctionDef) (*vm.Function, error) {
	visibility, err := parseVisibility(fd.Visibility)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.Name, fd.Name, err)
	}
	mutability, err := parseMutability(fd.Mutability)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.Name, fd.Name, err)
	}
	params := make([]vm.Param, len(fd.Params))
	for i, p := range fd.Params {
		kind, err := parseKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.Name, fd.Name, err)
		}
		params[i] = vm.Param{Name: p.Name, Kind: kind}
	}
	body, err := Assemble(fd.Body)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.Name, fd.Name, err)
	}
	return &vm.Function{
		Name:       fd.Name,
		Visibility: visibility,
		Mutability: mutability,
		Params:     params,
		Guarded:    fd.Guarded,
		Virtual:    fd.Virtual,
		Override:   fd.Override,
		Body:       body,
	}, nil
}

// Units assembles every contract of the scenario into vm units, resolving
// extends references between them.
func (s *Scenario) Units() (map[string]*vm.Unit, error) {
	defs := make(map[string]*ContractDef, len(s.Contracts))
	for i := range s.Contracts {
		d := &s.Contracts[i]
		if _, dup := defs[d.Name]; dup {
			return nil, fmt.Errorf("contract %q defined twice", d.Name)
		}
		defs[d.Name] = d
	}

	units := make(map[string]*vm.Unit, len(defs))
	building := make(map[string]bool)

	var build func(name string) (*vm.Unit, error)
	build = func(name string) (*vm.Unit, error) {
		if u, ok := units[name]; ok {
			return u, nil
		}
		if building[name] {
			return nil, fmt.Errorf("inheritance cycle through %q", name)
		}
		d, ok := defs[name]
		if !ok {
			return nil, fmt.Errorf("unknown contract %q", name)
		}
		building[name] = true
		defer delete(building, name)

		unit := &vm.Unit{Name: d.Name, Vars: d.Vars}
		for _, parent := range d.Extends {
			p, err := build(parent)
			if err != nil {
				return nil, err
			}
			unit.Extends = append(unit.Extends, p)
		}
		for _, e := range d.Events {
			def := vm.EventDef{Name: e.Name}
			for _, f := range e.Fields {
				def.Fields = append(def.Fields, vm.EventFieldDef{Name: f.Name, Indexed: f.Indexed})
			}
			unit.Events = append(unit.Events, def)
		}
		for i := range d.Functions {
			fn, err := d.function(&d.Functions[i])
			if err != nil {
				return nil, err
			}
			unit.Functions = append(unit.Functions, fn)
		}
		units[name] = unit
		return unit, nil
	}

	for name := range defs {
		if _, err := build(name); err != nil {
			return nil, err
		}
	}
	return units, nil
}
