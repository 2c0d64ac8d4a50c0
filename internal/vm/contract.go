package vm

import (
	"fmt"

	"github.com/hearthvm/hearth/common"
	"github.com/hearthvm/hearth/internal/types"
)

const (
	// CtorName is the reserved function name of the constructor. It runs
	// exactly once, at deployment, and is never dispatchable afterwards.
	CtorName = "constructor"
	// ReceiveName is the reserved function name invoked by plain value
	// transfers. It must be external payable with no parameters.
	ReceiveName = "receive"
)

// Unit is one contract source unit before deployment: an ordered state
// variable layout, event definitions, functions and direct parents.
// Deployment flattens the unit and its ancestry into a Code.
type Unit struct {
	Name      string
	Extends   []*Unit
	Vars      []string
	Events    []EventDef
	Functions []*Function
}

// Code is a flattened, validated unit as deployed: the final dispatch
// table, the merged storage layout with ordinal slots assigned, and the
// merged event definitions. Code is immutable after flattening.
type Code struct {
	UnitName    string
	Hash        common.Hash
	Layout      []string
	Slots       map[string]int
	Functions   map[string]*Function
	Events      map[string]*EventDef
	Constructor *Function
	Receive     *Function
}

// Function returns the dispatchable function with the given name, or nil.
// The constructor and receive function are not dispatchable by name.
func (c *Code) Function(name string) *Function {
	return c.Functions[name]
}

// SlotOf returns the ordinal slot key of a named state variable.
func (c *Code) SlotOf(name string) (common.Hash, bool) {
	ordinal, ok := c.Slots[name]
	if !ok {
		return common.EmptyHash, false
	}
	return common.Uint64ToHash(uint64(ordinal)), true
}

// EventDef returns the merged definition of the named event, or nil.
func (c *Code) EventDef(name string) *EventDef {
	return c.Events[name]
}

func deployErr(format string, args ...any) error {
	return types.NewVerboseError(types.ErrorDeploymentFailed, fmt.Sprintf(format, args...))
}

// Flatten merges a unit with its ancestry into deployable code: layout
// ordinals are assigned base-most-first, overrides are resolved, event
// definitions merged, and every function body statically validated with
// slot and event names rewritten to their resolved form.
func Flatten(unit *Unit) (*Code, error) {
	if unit == nil || unit.Name == "" {
		return nil, deployErr("unit has no name")
	}

	order, err := linearize(unit)
	if err != nil {
		return nil, err
	}

	code := &Code{
		UnitName:  unit.Name,
		Slots:     make(map[string]int),
		Functions: make(map[string]*Function),
		Events:    make(map[string]*EventDef),
	}

	varOwner := make(map[string]string)
	for _, u := range order {
		for _, v := range u.Vars {
			if owner, dup := varOwner[v]; dup {
				return nil, deployErr("state variable %q declared in both %s and %s", v, owner, u.Name)
			}
			varOwner[v] = u.Name
			code.Slots[v] = len(code.Layout)
			code.Layout = append(code.Layout, v)
		}

		for i := range u.Events {
			if err := mergeEvent(code, u.Name, &u.Events[i]); err != nil {
				return nil, err
			}
		}

		for _, fn := range u.Functions {
			if err := mergeFunction(code, u.Name, fn); err != nil {
				return nil, err
			}
		}
	}

	if err := validateSpecials(code); err != nil {
		return nil, err
	}

	for _, fn := range code.Functions {
		if err := resolveBody(code, fn); err != nil {
			return nil, err
		}
	}
	if code.Constructor != nil {
		if err := resolveBody(code, code.Constructor); err != nil {
			return nil, err
		}
	}
	if code.Receive != nil {
		if err := resolveBody(code, code.Receive); err != nil {
			return nil, err
		}
	}

	encoded, err := encodeCode(code)
	if err != nil {
		return nil, deployErr("code not encodable: %v", err)
	}
	code.Hash = common.KeccakHash(encoded)
	return code, nil
}

// linearize returns the ancestry parents-first, left to right, with the
// unit itself last. Revisiting a unit through a diamond keeps the first
// occurrence; a cycle is a deployment error.
func linearize(unit *Unit) ([]*Unit, error) {
	var order []*Unit
	seen := make(map[*Unit]bool)
	visiting := make(map[*Unit]bool)

	var visit func(u *Unit) error
	visit = func(u *Unit) error {
		if seen[u] {
			return nil
		}
		if visiting[u] {
			return deployErr("inheritance cycle through %s", u.Name)
		}
		visiting[u] = true
		for _, parent := range u.Extends {
			if parent == nil {
				return deployErr("%s extends a nil unit", u.Name)
			}
			if err := visit(parent); err != nil {
				return err
			}
		}
		visiting[u] = false
		seen[u] = true
		order = append(order, u)
		return nil
	}

	if err := visit(unit); err != nil {
		return nil, err
	}
	return order, nil
}

func mergeEvent(code *Code, unitName string, def *EventDef) error {
	if def.Name == "" {
		return deployErr("%s declares an unnamed event", unitName)
	}
	if def.IndexedCount() > types.MaxIndexedFields {
		return deployErr("event %s has %d indexed fields, at most %d allowed",
			def.Name, def.IndexedCount(), types.MaxIndexedFields)
	}
	fieldNames := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		if f.Name == "" {
			return deployErr("event %s has an unnamed field", def.Name)
		}
		if fieldNames[f.Name] {
			return deployErr("event %s declares field %q twice", def.Name, f.Name)
		}
		fieldNames[f.Name] = true
	}

	if existing, ok := code.Events[def.Name]; ok {
		if !sameEventDef(existing, def) {
			return deployErr("event %s redeclared with a different shape in %s", def.Name, unitName)
		}
		return nil
	}
	defCopy := *def
	code.Events[def.Name] = &defCopy
	return nil
}

func sameEventDef(a, b *EventDef) bool {
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if a.Fields[i] != b.Fields[i] {
			return false
		}
	}
	return true
}

func mergeFunction(code *Code, unitName string, fn *Function) error {
	if fn.Name == "" {
		return deployErr("%s declares an unnamed function", unitName)
	}

	cp := *fn
	cp.Unit = unitName

	switch fn.Name {
	case CtorName:
		// The most derived constructor wins; base constructors do not run.
		code.Constructor = &cp
		return nil
	case ReceiveName:
		code.Receive = &cp
		return nil
	}

	existing, ok := code.Functions[fn.Name]
	if ok {
		if existing.Unit == unitName {
			return deployErr("%s declares function %s twice", unitName, fn.Name)
		}
		if !existing.Virtual {
			return deployErr("function %s of %s is not virtual, %s cannot override it",
				fn.Name, existing.Unit, unitName)
		}
		if !fn.Override {
			return deployErr("function %s of %s hides %s's without the override marker",
				fn.Name, unitName, existing.Unit)
		}
		if !sameSignature(existing, fn) {
			return deployErr("override of %s in %s changes the signature", fn.Name, unitName)
		}
	} else if fn.Override {
		return deployErr("function %s of %s overrides nothing", fn.Name, unitName)
	}

	code.Functions[fn.Name] = &cp
	return nil
}

func sameSignature(a, b *Function) bool {
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if a.Params[i].Kind != b.Params[i].Kind {
			return false
		}
	}
	return true
}

func validateSpecials(code *Code) error {
	if ctor := code.Constructor; ctor != nil {
		if ctor.ReadOnly() {
			return deployErr("constructor of %s cannot be %s", code.UnitName, ctor.Mutability)
		}
	}
	if recv := code.Receive; recv != nil {
		if recv.Mutability != Payable {
			return deployErr("receive of %s must be payable", code.UnitName)
		}
		if len(recv.Params) != 0 {
			return deployErr("receive of %s must take no parameters", code.UnitName)
		}
		if recv.Visibility != External {
			return deployErr("receive of %s must be external", code.UnitName)
		}
	}
	return nil
}

// resolveBody statically validates a function body and rewrites slot and
// event names into their resolved ordinals and field counts. The body is
// copied, never mutated in place.
func resolveBody(code *Code, fn *Function) error {
	resolved := make(Program, len(fn.Body))
	for i, in := range fn.Body {
		if !in.Op.IsValid() {
			return deployErr("%s.%s: invalid opcode at %d", code.UnitName, fn.Name, i)
		}
		switch in.Op {
		case PUSH:
			if in.Val == nil {
				return deployErr("%s.%s: PUSH without immediate at %d", code.UnitName, fn.Name, i)
			}
		case DUP, SWAP:
			if in.N < 1 || in.N > 16 {
				return deployErr("%s.%s: %s position %d out of range at %d",
					code.UnitName, fn.Name, in.Op, in.N, i)
			}
		case ARG:
			if in.N < 0 || in.N >= len(fn.Params) {
				return deployErr("%s.%s: ARG %d out of range, %d parameters at %d",
					code.UnitName, fn.Name, in.N, len(fn.Params), i)
			}
		case SLOT, MAPSLOT:
			ordinal, ok := code.Slots[in.Name]
			if !ok {
				return deployErr("%s.%s: unknown state variable %q at %d",
					code.UnitName, fn.Name, in.Name, i)
			}
			in.N = ordinal
		case EMIT:
			def, ok := code.Events[in.Name]
			if !ok {
				return deployErr("%s.%s: unknown event %q at %d", code.UnitName, fn.Name, in.Name, i)
			}
			in.N = len(def.Fields)
		case INTCALL:
			if in.Name == "" {
				return deployErr("%s.%s: INTCALL without function name at %d", code.UnitName, fn.Name, i)
			}
			if in.N < 0 {
				return deployErr("%s.%s: negative argument count at %d", code.UnitName, fn.Name, i)
			}
		case CALL, DELEGATECALL, TRYCALL:
			if in.N < 0 {
				return deployErr("%s.%s: negative argument count at %d", code.UnitName, fn.Name, i)
			}
		}
		resolved[i] = in
	}
	fn.Body = resolved
	return nil
}
