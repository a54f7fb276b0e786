// Package operations builds the requests for each batch operation and drives
// them from submission to a result grid.
package operations

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"sheetrow/internal/records"
	"sheetrow/internal/result"
	"sheetrow/internal/service"
)

// Kind names an operation. The value is sent to the service as-is.
type Kind string

const (
	KindRank   Kind = "rank"
	KindScreen Kind = "screen"
	KindDedupe Kind = "dedupe"
	KindMerge  Kind = "merge"
	KindAgent  Kind = "agent"
)

// ErrInvalidParams is returned when an operation is missing required input.
// It is a validation error: nothing is sent to the service.
var ErrInvalidParams = fmt.Errorf("%w: invalid operation parameters", records.ErrValidation)

// Operation builds the submit request for one kind of task.
type Operation interface {
	Kind() Kind
	Build(input []records.Record) (service.SubmitRequest, error)
}

// OutputName is the base sheet name results of kind are written to.
func OutputName(kind string) string {
	switch Kind(kind) {
	case KindRank:
		return "Ranked"
	case KindScreen:
		return "Screened"
	case KindDedupe:
		return "Deduplicated"
	case KindMerge:
		return "Merged"
	case KindAgent:
		return "Agent results"
	default:
		return "Results"
	}
}

// PostProcess applies the kind-specific clean-up to normalized records.
func PostProcess(kind string, recs []records.Record) []records.Record {
	switch Kind(kind) {
	case KindScreen:
		return result.PromoteReason(recs)
	case KindDedupe:
		return result.SelectedOnly(recs)
	default:
		return recs
	}
}

func requireText(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidParams, name)
	}
	return nil
}

// Rank scores every row against Task and sorts by the score field.
type Rank struct {
	Task      string
	Field     string // defaults to "score"
	Ascending bool
}

func (r Rank) Kind() Kind { return KindRank }

func (r Rank) field() string {
	if f := strings.TrimSpace(r.Field); f != "" {
		return f
	}
	return "score"
}

func (r Rank) Build(input []records.Record) (service.SubmitRequest, error) {
	if err := requireText("task", r.Task); err != nil {
		return service.SubmitRequest{}, err
	}
	field := r.field()
	if err := checkNewColumns(input, field); err != nil {
		return service.SubmitRequest{}, err
	}
	return service.SubmitRequest{
		Operation:   string(KindRank),
		Instruction: r.Task,
		Input:       input,
		ResponseSchema: objectSchema(schemaField{
			Name:        field,
			Type:        "number",
			Description: "Score assigned to the row for the ranking task",
		}),
		Options: map[string]any{
			"field_name": field,
			"ascending":  r.Ascending,
		},
	}, nil
}

// Screen keeps or rejects every row against Task, with a reason.
type Screen struct {
	Task string
}

type screenResponse struct {
	Passes bool `json:"passes" jsonschema_description:"Whether the row meets the screening criteria"`
}

var screenSchema = generateSchema[screenResponse]()

func (s Screen) Kind() Kind { return KindScreen }

func (s Screen) Build(input []records.Record) (service.SubmitRequest, error) {
	if err := requireText("task", s.Task); err != nil {
		return service.SubmitRequest{}, err
	}
	return service.SubmitRequest{
		Operation:      string(KindScreen),
		Instruction:    s.Task,
		Input:          input,
		ResponseSchema: screenSchema,
	}, nil
}

// Dedupe groups equivalent rows and keeps one representative per group.
type Dedupe struct {
	EquivalenceRelation string
}

func (d Dedupe) Kind() Kind { return KindDedupe }

func (d Dedupe) Build(input []records.Record) (service.SubmitRequest, error) {
	if err := requireText("equivalence relation", d.EquivalenceRelation); err != nil {
		return service.SubmitRequest{}, err
	}
	return service.SubmitRequest{
		Operation:   string(KindDedupe),
		Instruction: d.EquivalenceRelation,
		Input:       input,
	}, nil
}

// Merge joins the selection (left) with Right, matching rows per Task.
// LeftKey and RightKey are optional hints naming the columns to match on.
type Merge struct {
	Task     string
	Right    []records.Record
	LeftKey  string
	RightKey string
}

func (m Merge) Kind() Kind { return KindMerge }

func (m Merge) Build(input []records.Record) (service.SubmitRequest, error) {
	if err := requireText("task", m.Task); err != nil {
		return service.SubmitRequest{}, err
	}
	if len(m.Right) == 0 {
		return service.SubmitRequest{}, fmt.Errorf("%w: right table is empty", ErrInvalidParams)
	}
	if m.LeftKey != "" && !hasColumn(input, m.LeftKey) {
		return service.SubmitRequest{}, fmt.Errorf("%w: left table has no column %q", ErrInvalidParams, m.LeftKey)
	}
	if m.RightKey != "" && !hasColumn(m.Right, m.RightKey) {
		return service.SubmitRequest{}, fmt.Errorf("%w: right table has no column %q", ErrInvalidParams, m.RightKey)
	}
	opts := map[string]any{"right_table": m.Right}
	if m.LeftKey != "" {
		opts["merge_on_left"] = m.LeftKey
	}
	if m.RightKey != "" {
		opts["merge_on_right"] = m.RightKey
	}
	return service.SubmitRequest{
		Operation:   string(KindMerge),
		Instruction: m.Task,
		Input:       input,
		Options:     opts,
	}, nil
}

// Agent researches every row and fills in Fields.
type Agent struct {
	Task   string
	Fields []string // defaults to ["answer"]
}

func (a Agent) Kind() Kind { return KindAgent }

func (a Agent) fields() []string {
	var out []string
	for _, f := range a.Fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return []string{"answer"}
	}
	return out
}

func (a Agent) Build(input []records.Record) (service.SubmitRequest, error) {
	if err := requireText("task", a.Task); err != nil {
		return service.SubmitRequest{}, err
	}
	names := a.fields()
	if err := checkNewColumns(input, names...); err != nil {
		return service.SubmitRequest{}, err
	}
	fields := make([]schemaField, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return service.SubmitRequest{}, fmt.Errorf("%w: output field %q listed twice", ErrInvalidParams, n)
		}
		seen[n] = true
		fields = append(fields, schemaField{Name: n, Type: "string"})
	}
	return service.SubmitRequest{
		Operation:      string(KindAgent),
		Instruction:    a.Task,
		Input:          input,
		ResponseSchema: objectSchema(fields...),
	}, nil
}

func hasColumn(recs []records.Record, name string) bool {
	for _, h := range records.Headers(recs) {
		if h == name {
			return true
		}
	}
	return false
}

// checkNewColumns rejects output fields that would overwrite an input column.
func checkNewColumns(input []records.Record, names ...string) error {
	var clash []string
	for _, n := range names {
		if hasColumn(input, n) {
			clash = append(clash, n)
		}
	}
	if len(clash) > 0 {
		return fmt.Errorf("%w: output column %s already exists in the input", ErrInvalidParams, strings.Join(clash, ", "))
	}
	return nil
}

type schemaField struct {
	Name        string
	Type        string
	Description string
}

func objectSchema(fields ...schemaField) *jsonschema.Schema {
	props := orderedmap.New[string, *jsonschema.Schema]()
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props.Set(f.Name, &jsonschema.Schema{Type: f.Type, Description: f.Description})
		required = append(required, f.Name)
	}
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
