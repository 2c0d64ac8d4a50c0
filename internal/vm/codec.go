package vm

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/hearthvm/hearth/common"
)

// Wire mirrors of the code model. Maps are flattened into name-sorted
// slices so the encoding is deterministic and the code hash stable.

type wireInstruction struct {
	Op   uint8
	Val  []byte // 32-byte immediate, empty when the op carries none
	Name string
	N    uint32
}

type wireParam struct {
	Name string
	Kind uint8
}

type wireFunction struct {
	Name       string
	Visibility uint8
	Mutability uint8
	Params     []wireParam
	Guarded    bool
	Virtual    bool
	Override   bool
	Unit       string
	Body       []wireInstruction
}

type wireEventField struct {
	Name    string
	Indexed bool
}

type wireEvent struct {
	Name   string
	Fields []wireEventField
}

type wireCode struct {
	UnitName    string
	Layout      []string
	Functions   []wireFunction
	Events      []wireEvent
	Constructor *wireFunction `rlp:"nil"`
	Receive     *wireFunction `rlp:"nil"`
}

// EncodeCode serializes flattened code for persistence. The encoding is
// deterministic, so keccak over it serves as the code hash.
func EncodeCode(c *Code) ([]byte, error) {
	w := wireCode{
		UnitName: c.UnitName,
		Layout:   c.Layout,
	}
	for _, name := range slices.Sorted(maps.Keys(c.Functions)) {
		w.Functions = append(w.Functions, functionToWire(c.Functions[name]))
	}
	for _, name := range slices.Sorted(maps.Keys(c.Events)) {
		w.Events = append(w.Events, eventToWire(c.Events[name]))
	}
	if c.Constructor != nil {
		ctor := functionToWire(c.Constructor)
		w.Constructor = &ctor
	}
	if c.Receive != nil {
		recv := functionToWire(c.Receive)
		w.Receive = &recv
	}
	return rlp.EncodeToBytes(&w)
}

// DecodeCode restores flattened code from its persisted form. The slot
// table is rebuilt from the layout and the hash recomputed from the raw
// encoding.
func DecodeCode(data []byte) (*Code, error) {
	var w wireCode
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return nil, fmt.Errorf("code decode: %w", err)
	}

	c := &Code{
		UnitName:  w.UnitName,
		Hash:      common.KeccakHash(data),
		Layout:    w.Layout,
		Slots:     make(map[string]int, len(w.Layout)),
		Functions: make(map[string]*Function, len(w.Functions)),
		Events:    make(map[string]*EventDef, len(w.Events)),
	}
	for i, name := range w.Layout {
		c.Slots[name] = i
	}
	for i := range w.Functions {
		fn, err := functionFromWire(&w.Functions[i])
		if err != nil {
			return nil, err
		}
		c.Functions[fn.Name] = fn
	}
	for i := range w.Events {
		c.Events[w.Events[i].Name] = eventFromWire(&w.Events[i])
	}
	if w.Constructor != nil {
		ctor, err := functionFromWire(w.Constructor)
		if err != nil {
			return nil, err
		}
		c.Constructor = ctor
	}
	if w.Receive != nil {
		recv, err := functionFromWire(w.Receive)
		if err != nil {
			return nil, err
		}
		c.Receive = recv
	}
	return c, nil
}

func functionToWire(fn *Function) wireFunction {
	w := wireFunction{
		Name:       fn.Name,
		Visibility: uint8(fn.Visibility),
		Mutability: uint8(fn.Mutability),
		Guarded:    fn.Guarded,
		Virtual:    fn.Virtual,
		Override:   fn.Override,
		Unit:       fn.Unit,
	}
	for _, p := range fn.Params {
		w.Params = append(w.Params, wireParam{Name: p.Name, Kind: uint8(p.Kind)})
	}
	for _, in := range fn.Body {
		wi := wireInstruction{Op: uint8(in.Op), Name: in.Name, N: uint32(in.N)}
		if in.Val != nil {
			val := in.Val.Bytes32()
			wi.Val = val[:]
		}
		w.Body = append(w.Body, wi)
	}
	return w
}

func functionFromWire(w *wireFunction) (*Function, error) {
	if w.Visibility > uint8(Private) {
		return nil, fmt.Errorf("code decode: function %s has visibility %d", w.Name, w.Visibility)
	}
	if w.Mutability > uint8(Pure) {
		return nil, fmt.Errorf("code decode: function %s has mutability %d", w.Name, w.Mutability)
	}
	fn := &Function{
		Name:       w.Name,
		Visibility: Visibility(w.Visibility),
		Mutability: Mutability(w.Mutability),
		Guarded:    w.Guarded,
		Virtual:    w.Virtual,
		Override:   w.Override,
		Unit:       w.Unit,
	}
	for _, p := range w.Params {
		if p.Kind > uint8(KindAddress) {
			return nil, fmt.Errorf("code decode: parameter %s has kind %d", p.Name, p.Kind)
		}
		fn.Params = append(fn.Params, Param{Name: p.Name, Kind: ParamKind(p.Kind)})
	}
	for i := range w.Body {
		wi := &w.Body[i]
		if !OpCode(wi.Op).IsValid() {
			return nil, fmt.Errorf("code decode: function %s has opcode %d", w.Name, wi.Op)
		}
		in := Instruction{Op: OpCode(wi.Op), Name: wi.Name, N: int(wi.N)}
		if len(wi.Val) > 0 {
			if len(wi.Val) != 32 {
				return nil, fmt.Errorf("code decode: function %s has a %d-byte immediate", w.Name, len(wi.Val))
			}
			in.Val = new(uint256.Int).SetBytes(wi.Val)
		}
		fn.Body = append(fn.Body, in)
	}
	return fn, nil
}

func eventToWire(def *EventDef) wireEvent {
	w := wireEvent{Name: def.Name}
	for _, f := range def.Fields {
		w.Fields = append(w.Fields, wireEventField{Name: f.Name, Indexed: f.Indexed})
	}
	return w
}

func eventFromWire(w *wireEvent) *EventDef {
	def := &EventDef{Name: w.Name}
	for _, f := range w.Fields {
		def.Fields = append(def.Fields, EventFieldDef{Name: f.Name, Indexed: f.Indexed})
	}
	return def
}

// encodeCode is the flatten-time hashing hook.
func encodeCode(c *Code) ([]byte, error) {
	return EncodeCode(c)
}
