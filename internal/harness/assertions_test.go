package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: "invocation", Op: "init_config", Caller: "admin", Args: map[string]any{"epoch_len": 100}, Seq: 1},
		{Type: "completion", OutputCase: "Success", Seq: 2},
		{Type: "invocation", Op: "submit_aggregate", Caller: "v1", Args: map[string]any{"epoch_id": 5, "name": "example.dns"}, Seq: 3},
		{Type: "completion", OutputCase: "WRONG_EPOCH", Seq: 4},
		{Type: "invocation", Op: "submit_aggregate", Caller: "v1", Args: map[string]any{"epoch_id": 6, "name": "example.dns"}, Seq: 5},
		{Type: "completion", OutputCase: "Success", Seq: 6},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	require.NoError(t, assertTraceContains(trace, Assertion{Op: "submit_aggregate", Args: map[string]any{"epoch_id": 6}}))
	require.NoError(t, assertTraceContains(trace, Assertion{Op: "submit_aggregate", Case: "WRONG_EPOCH", Args: map[string]any{"epoch_id": 5}}))
	require.NoError(t, assertTraceContains(trace, Assertion{Op: "init_config"}))

	err := assertTraceContains(trace, Assertion{Op: "submit_aggregate", Case: "Success", Args: map[string]any{"epoch_id": 5}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "Full trace")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	require.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{"init_config", "submit_aggregate"}}))

	err := assertTraceOrder(trace, Assertion{Ops: []string{"submit_aggregate", "init_config"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Ops: []string{"init_config", "finalize_route"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing op: finalize_route")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	require.NoError(t, assertTraceCount(trace, Assertion{Op: "submit_aggregate", Count: 2}))
	require.NoError(t, assertTraceCount(trace, Assertion{Op: "submit_aggregate", Case: "Success", Count: 1}))
	require.NoError(t, assertTraceCount(trace, Assertion{Op: "finalize_route", Count: 0}))

	err := assertTraceCount(trace, Assertion{Op: "submit_aggregate", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences")
}

func TestAssertFinalState(t *testing.T) {
	s := mustParse(t, baseScenario+`
flow:
  - op: init_quorum_authority
    caller: gate
assertions:
  - type: final_state
    table: registry_config
    expect: { authority: admin, epoch_len: 100 }
  - type: final_state
    table: registry_config
    expect: { epoch_len: 200 }
  - type: final_state
    table: registry_config
    expect: { colour: blue }
  - type: final_state
    table: canonical_route
    where: { name: example.dns }
    expect: { version: 1 }
  - type: final_state
    table: verifier_set
    expect: { admin: admin }
`)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "assertion[1]")
	assert.Contains(t, result.Errors[0], `field "epoch_len" = 200`)
	assert.Contains(t, result.Errors[1], `field "colour" not present`)
	assert.Contains(t, result.Errors[2], "NOT_FOUND")
	assert.Contains(t, result.Errors[3], `arg "epoch_id" is required`)
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"uint64 vs int", uint64(7), 7, true},
		{"uint32 vs int", uint32(300), 300, true},
		{"different numbers", uint64(7), 8, false},
		{"string", "v1", "v1", true},
		{"number vs string", uint64(7), "7", false},
		{"lists", []any{"v1", "v2"}, []any{"v1", "v2"}, true},
		{"string slice", []string{"v1"}, []any{"v1"}, true},
		{"list order", []any{"v1", "v2"}, []any{"v2", "v1"}, false},
		{"nested", map[string]any{"a": uint64(1)}, map[string]any{"a": 1}, true},
		{"nil", nil, nil, true},
		{"nil vs value", nil, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestMatchArgs(t *testing.T) {
	actual := map[string]any{"epoch_id": uint64(5), "name": "example.dns"}
	assert.True(t, matchArgs(actual, nil))
	assert.True(t, matchArgs(actual, map[string]any{"epoch_id": 5}))
	assert.False(t, matchArgs(actual, map[string]any{"epoch_id": 6}))
	assert.False(t, matchArgs(actual, map[string]any{"dest": "d"}))
	assert.False(t, matchArgs(nil, map[string]any{"epoch_id": 5}))
}
