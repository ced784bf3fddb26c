// Package extraction locates metric values inside heterogeneous generator
// output trees using ordered fallback paths with a fuzzy deep-search of last
// resort.
package extraction

import (
	"fmt"
	"strings"

	"github.com/jonathan/diligence-engine/internal/types"
)

// StepKind identifies one traversal instruction.
type StepKind int

const (
	// StepKey descends into an object field by literal key.
	StepKey StepKind = iota
	// StepByID selects the array element whose "id" field matches.
	StepByID
	// StepByName selects the array element whose "name" field matches
	// (case-insensitive).
	StepByName
	// StepIndex selects an array element by position.
	StepIndex
)

// Step is a single traversal instruction.
type Step struct {
	Kind  StepKind
	Key   string
	Index int
}

// Key returns a literal-key step.
func Key(k string) Step { return Step{Kind: StepKey, Key: k} }

// ByID returns an array-search step matching on the "id" field.
func ByID(id string) Step { return Step{Kind: StepByID, Key: id} }

// ByName returns an array-search step matching on the "name" field.
func ByName(name string) Step { return Step{Kind: StepByName, Key: name} }

// Index returns a positional array step.
func Index(i int) Step { return Step{Kind: StepIndex, Index: i} }

// Path is an ordered traversal recipe.
type Path []Step

// String renders the path in dotted form, e.g. "metrics.items[id=capex].value".
func (p Path) String() string {
	var sb strings.Builder
	for i, step := range p {
		switch step.Kind {
		case StepKey:
			if i > 0 {
				sb.WriteString(".")
			}
			sb.WriteString(step.Key)
		case StepByID:
			sb.WriteString(fmt.Sprintf("[id=%s]", step.Key))
		case StepByName:
			sb.WriteString(fmt.Sprintf("[name=%s]", step.Key))
		case StepIndex:
			sb.WriteString(fmt.Sprintf("[%d]", step.Index))
		}
	}
	return sb.String()
}

// Spec declares how to find and sanity-screen one metric.
type Spec struct {
	Unit      string
	Paths     []Path
	Validate  func(*types.Value) bool
	Transform func(*types.Value) *types.Value
	Default   *types.Value
	// DeepSearch enables the fuzzy fallback scan when no path resolves.
	DeepSearch bool
}

// Table maps (stageID, metricID) to extraction specs. A plain data-driven
// mapping, not per-stage dispatch.
type Table map[string]map[string]Spec

// Result is the outcome of one extraction.
type Result struct {
	Value   *types.Value
	FoundAt string
	Raw     *types.Value
	Success bool
}

// Attempt records one extraction for the debug sink.
type Attempt struct {
	StageID    string   `json:"stage_id"`
	MetricID   string   `json:"metric_id"`
	PathsTried []string `json:"paths_tried"`
	FoundAt    string   `json:"found_at,omitempty"`
	Raw        any      `json:"raw,omitempty"`
	Value      any      `json:"value,omitempty"`
	Success    bool     `json:"success"`
}

// Extractor resolves metrics against a path table. OnAttempt, when set,
// receives a record of every extraction for telemetry.
type Extractor struct {
	Table     Table
	OnAttempt func(Attempt)
	// MaxDepth bounds the deep-search recursion. Zero means DefaultMaxDepth.
	MaxDepth int
}

// DefaultMaxDepth bounds deep-search recursion; generator trees are acyclic
// but the bound keeps a malformed response from blowing the stack.
const DefaultMaxDepth = 8

// NewExtractor returns an extractor over the given table.
func NewExtractor(table Table) *Extractor {
	return &Extractor{Table: table}
}

// Extract tries each candidate path in order and returns the first value that
// resolves and validates. A candidate that resolves to an invalid value does
// not win; later candidates are still tried. When every path misses, an
// optional deep search scans the tree for fuzzy key matches. A total miss
// returns the metric spec's default (or null) with Success=false.
func (e *Extractor) Extract(stageID, metricID string, output *types.Value) Result {
	spec, ok := e.lookup(stageID, metricID)
	if !ok {
		res := Result{Value: types.Null()}
		e.record(stageID, metricID, nil, res)
		return res
	}

	tried := make([]string, 0, len(spec.Paths))
	for _, path := range spec.Paths {
		tried = append(tried, path.String())
		raw := resolve(output, path)
		if raw.IsNull() {
			continue
		}
		value := raw
		if spec.Transform != nil {
			value = spec.Transform(raw)
		}
		if spec.Validate != nil && !spec.Validate(value) {
			continue
		}
		res := Result{Value: value, FoundAt: path.String(), Raw: raw, Success: true}
		e.record(stageID, metricID, tried, res)
		return res
	}

	if spec.DeepSearch {
		if raw, at := e.deepSearch(output, metricID, spec); raw != nil {
			value := raw
			if spec.Transform != nil {
				value = spec.Transform(raw)
			}
			tried = append(tried, "deep:"+at)
			res := Result{Value: value, FoundAt: "deep:" + at, Raw: raw, Success: true}
			e.record(stageID, metricID, tried, res)
			return res
		}
	}

	fallback := spec.Default
	if fallback == nil {
		fallback = types.Null()
	}
	res := Result{Value: fallback, Success: false}
	e.record(stageID, metricID, tried, res)
	return res
}

// ExtractFloat is a convenience wrapper returning the numeric value.
func (e *Extractor) ExtractFloat(stageID, metricID string, output *types.Value) (float64, bool) {
	res := e.Extract(stageID, metricID, output)
	if !res.Success {
		return 0, false
	}
	return res.Value.AsFloat()
}

// ExtractString is a convenience wrapper returning the string value.
func (e *Extractor) ExtractString(stageID, metricID string, output *types.Value) (string, bool) {
	res := e.Extract(stageID, metricID, output)
	if !res.Success {
		return "", false
	}
	return res.Value.AsString()
}

func (e *Extractor) lookup(stageID, metricID string) (Spec, bool) {
	stage, ok := e.Table[stageID]
	if !ok {
		return Spec{}, false
	}
	spec, ok := stage[metricID]
	return spec, ok
}

func (e *Extractor) record(stageID, metricID string, tried []string, res Result) {
	if e.OnAttempt == nil {
		return
	}
	attempt := Attempt{
		StageID:    stageID,
		MetricID:   metricID,
		PathsTried: tried,
		FoundAt:    res.FoundAt,
		Success:    res.Success,
	}
	if res.Raw != nil {
		attempt.Raw = res.Raw.ToAny()
	}
	if res.Value != nil {
		attempt.Value = res.Value.ToAny()
	}
	e.OnAttempt(attempt)
}

// resolve walks a value tree following the path, returning null on any miss.
func resolve(v *types.Value, path Path) *types.Value {
	current := v
	for _, step := range path {
		if current.IsNull() {
			return types.Null()
		}
		switch step.Kind {
		case StepKey:
			current = current.Field(step.Key)
		case StepIndex:
			current = current.Index(step.Index)
		case StepByID:
			current = findInArray(current, "id", step.Key)
		case StepByName:
			current = findInArray(current, "name", step.Key)
		}
		if current == nil {
			return types.Null()
		}
	}
	if current == nil {
		return types.Null()
	}
	return current
}

// findInArray returns the first array element whose field matches the wanted
// value, comparing case-insensitively.
func findInArray(v *types.Value, field, want string) *types.Value {
	if v == nil || v.Kind != types.KindArray {
		return nil
	}
	for _, item := range v.Arr {
		got, ok := item.Field(field).AsString()
		if ok && strings.EqualFold(got, want) {
			return item
		}
	}
	return nil
}
