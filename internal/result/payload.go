// Package result decodes task result payloads and flattens them into records.
//
// The service answers in one of three shapes, tagged by a "type" field:
//
//	{"type": "table",  "data": [{...}, {...}]}
//	{"type": "scalar", "data": {...}}
//	{"type": "group",  "artifacts": [{"data": {...}}, ...]}
//
// A bare JSON array of objects is read as a table.
package result

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"sheetrow/internal/records"
)

// Shape identifies which variant a Payload holds.
type Shape string

const (
	ShapeTable  Shape = "table"
	ShapeScalar Shape = "scalar"
	ShapeGroup  Shape = "group"
)

var (
	// ErrMalformed is returned for payloads that match none of the known shapes.
	ErrMalformed = errors.New("malformed result payload")

	// ErrNoPayload is returned when the body is absent or JSON null.
	ErrNoPayload = fmt.Errorf("%w: empty body", ErrMalformed)
)

// Payload is the decoded form of a task result. Exactly one of Rows, Row or
// Children is meaningful, according to Shape.
type Payload struct {
	Shape    Shape
	Rows     []records.Record // ShapeTable
	Row      *records.Record  // ShapeScalar
	Children []Child          // ShapeGroup
}

// Child is one artifact inside a group. Record is nil when the artifact
// carried no data.
type Child struct {
	ID     string
	Record *records.Record
}

type envelope struct {
	Type      Shape           `json:"type"`
	Data      json.RawMessage `json:"data"`
	Artifacts []childWire     `json:"artifacts"`
}

type childWire struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

var decoders = map[Shape]func(envelope) (Payload, error){
	ShapeTable:  decodeTable,
	ShapeScalar: decodeScalar,
	ShapeGroup:  decodeGroup,
}

// Decode parses a raw payload into its tagged variant.
func Decode(raw json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Payload{}, ErrNoPayload
	}

	if trimmed[0] == '[' {
		return decodeTable(envelope{Type: ShapeTable, Data: trimmed})
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	decode, ok := decoders[env.Type]
	if !ok {
		return Payload{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
	return decode(env)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeTable(env envelope) (Payload, error) {
	if isNull(env.Data) {
		return Payload{Shape: ShapeTable}, nil
	}
	var rows []records.Record
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return Payload{}, fmt.Errorf("%w: table data: %v", ErrMalformed, err)
	}
	return Payload{Shape: ShapeTable, Rows: rows}, nil
}

func decodeScalar(env envelope) (Payload, error) {
	if isNull(env.Data) {
		return Payload{}, fmt.Errorf("%w: scalar without data", ErrMalformed)
	}
	var row records.Record
	if err := json.Unmarshal(env.Data, &row); err != nil {
		return Payload{}, fmt.Errorf("%w: scalar data: %v", ErrMalformed, err)
	}
	return Payload{Shape: ShapeScalar, Row: &row}, nil
}

func decodeGroup(env envelope) (Payload, error) {
	children := make([]Child, 0, len(env.Artifacts))
	for _, a := range env.Artifacts {
		child := Child{ID: a.ID}
		trimmed := bytes.TrimSpace(a.Data)
		// Children whose data is not an object are kept as gaps.
		if len(trimmed) > 0 && trimmed[0] == '{' {
			var row records.Record
			if err := json.Unmarshal(trimmed, &row); err == nil {
				child.Record = &row
			}
		}
		children = append(children, child)
	}
	return Payload{Shape: ShapeGroup, Children: children}, nil
}

// Flatten returns the payload's rows: a table as-is, a scalar as a single
// row, and a group as its children's records in order, skipping gaps.
func Flatten(p Payload) []records.Record {
	switch p.Shape {
	case ShapeTable:
		return p.Rows
	case ShapeScalar:
		if p.Row == nil {
			return nil
		}
		return []records.Record{*p.Row}
	case ShapeGroup:
		var out []records.Record
		for _, c := range p.Children {
			if c.Record != nil {
				out = append(out, *c.Record)
			}
		}
		return out
	default:
		return nil
	}
}

// Normalize decodes and flattens raw. It always returns a usable (possibly
// empty) slice; a non-nil error tells the caller the payload was malformed
// rather than legitimately empty.
func Normalize(raw json.RawMessage) ([]records.Record, error) {
	p, err := Decode(raw)
	if err != nil {
		return []records.Record{}, err
	}
	out := Flatten(p)
	if out == nil {
		out = []records.Record{}
	}
	return out, nil
}
