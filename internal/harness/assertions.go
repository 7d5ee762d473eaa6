package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Trace for context, when relevant
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i := 0; i < len(e.Trace); i++ {
			event := e.Trace[i]
			if event.Type != "invocation" {
				continue
			}
			fmt.Fprintf(&buf, "  [%d] %s by %s at %d %v -> %s\n",
				event.Seq, event.Op, event.Caller, event.Tick, event.Args, outcomeAt(e.Trace, i))
		}
	}
	return buf.String()
}

// outcomeAt returns the output case of the completion following the
// invocation at index i.
func outcomeAt(trace []TraceEvent, i int) string {
	if i+1 < len(trace) && trace[i+1].Type == "completion" {
		return trace[i+1].OutputCase
	}
	return ""
}

// invocationMatches reports whether trace[i] is an invocation of op whose
// outcome is wantCase (any outcome when wantCase is empty).
func invocationMatches(trace []TraceEvent, i int, op, wantCase string) bool {
	event := trace[i]
	if event.Type != "invocation" || event.Op != op {
		return false
	}
	return wantCase == "" || outcomeAt(trace, i) == wantCase
}

// assertTraceContains checks that the trace contains an invocation of the
// operation with matching args (subset match).
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for i := range trace {
		if invocationMatches(trace, i, a.Op, a.Case) && matchArgs(trace[i].Args, a.Args) {
			return nil
		}
	}
	expected := fmt.Sprintf("op %s with args %v", a.Op, a.Args)
	if a.Case != "" {
		expected += " completing with " + a.Case
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that operations first appear in the given order.
// Intervening operations are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != "invocation" {
			continue
		}
		if _, seen := positions[event.Op]; !seen {
			positions[event.Op] = i + 1
		}
	}

	for _, op := range a.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Ops); i++ {
		prev, curr := a.Ops[i-1], a.Ops[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", a.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the operation appears exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for i := range trace {
		if invocationMatches(trace, i, a.Op, a.Case) {
			count++
		}
	}
	if count != a.Count {
		what := a.Op
		if a.Case != "" {
			what += " completing with " + a.Case
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// stateReader loads one record, identified by where, and renders it the way
// operation results are rendered.
type stateReader func(ctx context.Context, h *Harness, where map[string]any) (map[string]any, error)

var stateReaders = map[string]stateReader{
	string(ir.KindRegistryConfig): func(ctx context.Context, h *Harness, _ map[string]any) (map[string]any, error) {
		cfg, err := h.registry.Config(ctx)
		if err != nil {
			return nil, err
		}
		return h.renderConfig(cfg), nil
	},
	string(ir.KindQuorumAuthority): func(ctx context.Context, h *Harness, _ map[string]any) (map[string]any, error) {
		qa, err := h.quorum.QuorumAuthority(ctx)
		if err != nil {
			return nil, err
		}
		return h.renderQuorumAuthority(qa), nil
	},
	string(ir.KindVerifierSet): func(ctx context.Context, h *Harness, where map[string]any) (map[string]any, error) {
		epochID, err := uintArg(where, "epoch_id")
		if err != nil {
			return nil, err
		}
		vs, err := h.quorum.VerifierSet(ctx, epochID)
		if err != nil {
			return nil, err
		}
		return h.renderVerifierSet(vs), nil
	},
	string(ir.KindStakeSnapshot): func(ctx context.Context, h *Harness, where map[string]any) (map[string]any, error) {
		epochID, err := uintArg(where, "epoch_id")
		if err != nil {
			return nil, err
		}
		snap, err := h.quorum.StakeSnapshot(ctx, epochID)
		if err != nil {
			return nil, err
		}
		return h.renderSnapshot(snap), nil
	},
	string(ir.KindAggregate): func(ctx context.Context, h *Harness, where map[string]any) (map[string]any, error) {
		epochID, err := uintArg(where, "epoch_id")
		if err != nil {
			return nil, err
		}
		name, err := h.nameArg(where, "name")
		if err != nil {
			return nil, err
		}
		submitter, err := stringArg(where, "submitter")
		if err != nil {
			return nil, err
		}
		agg, err := h.quorum.Aggregate(ctx, epochID, name, h.keys.Identity(submitter))
		if err != nil {
			return nil, err
		}
		return h.renderAggregate(agg), nil
	},
	string(ir.KindCanonicalRoute): func(ctx context.Context, h *Harness, where map[string]any) (map[string]any, error) {
		name, err := h.nameArg(where, "name")
		if err != nil {
			return nil, err
		}
		route, err := h.registry.Route(ctx, name)
		if err != nil {
			return nil, err
		}
		return h.renderRoute(route), nil
	},
}

// assertFinalState loads the record named by the assertion and checks the
// expected fields (subset match).
func assertFinalState(ctx context.Context, h *Harness, a Assertion) error {
	where, err := normalizeArgs(a.Where)
	if err != nil {
		return fmt.Errorf("final_state where: %w", err)
	}
	record, err := stateReaders[a.Table](ctx, h, where)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record in %s where %s", a.Table, formatWhere(a.Where)),
			Actual:   err.Error(),
		}
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		actual, exists := record[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s", key, a.Table),
			}
		}
		if !valuesEqual(actual, a.Expect[key]) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v", key, a.Expect[key]),
				Actual:   fmt.Sprintf("field %q = %v", key, actual),
			}
		}
	}
	return nil
}

// formatWhere renders where conditions deterministically.
func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// matchArgs checks if actual contains all expected keys with equal values
// (subset match). Extra keys in actual are ignored.
func matchArgs(actual map[string]any, expected map[string]any) bool {
	for key, want := range expected {
		got, exists := actual[key]
		if !exists || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// number is an integer in decimal form, so values decoded from YAML as int
// compare equal to results rendered as uint32 or uint64.
type number string

// canonicalValue normalizes integer types and list types for comparison.
func canonicalValue(v any) any {
	switch val := v.(type) {
	case int:
		return number(strconv.FormatInt(int64(val), 10))
	case int64:
		return number(strconv.FormatInt(val, 10))
	case uint32:
		return number(strconv.FormatUint(uint64(val), 10))
	case uint64:
		return number(strconv.FormatUint(val, 10))
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = canonicalValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = canonicalValue(elem)
		}
		return out
	default:
		return v
	}
}

// valuesEqual compares two values after normalizing numeric types.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	return reflect.DeepEqual(canonicalValue(actual), canonicalValue(expected))
}

// EvaluateAssertions evaluates all assertions against the result and the
// harness's final state. Returns one message per failed assertion.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			if h == nil {
				err = fmt.Errorf("final_state requires a harness")
			} else {
				err = assertFinalState(ctx, h, a)
			}
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion[%d]: %s", i, err.Error()))
		}
	}
	return failures
}
