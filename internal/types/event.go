package types

import (
	"fmt"
	"strings"
)

// MaxIndexedFields bounds the number of indexed fields per event definition.
const MaxIndexedFields = 3

// EventField is one named payload word of an emitted event. Indexed fields
// participate in event-log queries; non-indexed fields are payload only.
type EventField struct {
	Name    string `json:"name"`
	Value   Value  `json:"value"`
	Indexed bool   `json:"indexed,omitempty"`
}

// Event is one emitted log record. Events exist only if the transaction that
// emitted them committed; the Seq number is assigned at flush time and orders
// all persisted events globally.
type Event struct {
	Address Address      `json:"address"`
	Name    string       `json:"name"`
	Fields  []EventField `json:"fields"`
	Seq     uint64       `json:"seq"`
}

// Field returns the value of the named field and whether it exists.
func (e *Event) Field(name string) (Value, bool) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return e.Fields[i].Value, true
		}
	}
	return Value{}, false
}

// IndexedField returns the value of the named field only if it is indexed.
func (e *Event) IndexedField(name string) (Value, bool) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			if !e.Fields[i].Indexed {
				return Value{}, false
			}
			return e.Fields[i].Value, true
		}
	}
	return Value{}, false
}

func (e *Event) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s.%s(", e.Address, e.Name)
	for i := range e.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		if e.Fields[i].Indexed {
			sb.WriteString("indexed ")
		}
		fmt.Fprintf(&sb, "%s=%s", e.Fields[i].Name, e.Fields[i].Value)
	}
	sb.WriteString(")")
	return sb.String()
}
