package harness

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/epoch"
	"github.com/roach88/ddnsquorum/internal/ir"
	"github.com/roach88/ddnsquorum/internal/keyring"
	"github.com/roach88/ddnsquorum/internal/logging"
	"github.com/roach88/ddnsquorum/internal/quorum"
	"github.com/roach88/ddnsquorum/internal/registry"
	"github.com/roach88/ddnsquorum/internal/store"
)

// DefaultGate is the alias whose key signs finalize capabilities when a
// scenario names none.
const DefaultGate = "gate"

// Harness holds the services a single scenario runs against.
type Harness struct {
	store    *store.Store
	clock    *epoch.ManualClock
	keys     *keyring.Keyring
	registry *registry.Registry
	quorum   *quorum.Service
	labels   map[string]string
	seq      int64
	log      *zap.Logger
}

// Option configures a run.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger routes service logs to l. Runs are silent by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// Run executes a scenario and returns its result.
//
// Each scenario runs in a fresh in-memory database with a manual clock
// starting at StartTick. Expectation and assertion failures are recorded in
// the result; the returned error is reserved for scenarios that cannot run
// at all (a failing setup step, malformed args, a broken store).
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.OrNop(o.log).Named("harness").With(zap.String("scenario", scenario.Name))

	tokens, err := capability.NewVerifier(0)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	gate := scenario.Gate
	if gate == "" {
		gate = DefaultGate
	}

	clock := epoch.NewManualClock(scenario.StartTick)
	keys := keyring.New()
	reg := registry.New(st, clock, tokens, registry.WithLogger(log))
	svc := quorum.New(st, clock, reg, quorum.WithGate(keys.Signer(gate)), quorum.WithLogger(log))

	h := &Harness{
		store:    st,
		clock:    clock,
		keys:     keys,
		registry: reg,
		quorum:   svc,
		labels:   map[string]string{},
		log:      log,
	}

	result := NewResult(scenario.Name)

	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// RunAll runs scenarios concurrently on a pool of workers and returns their
// results in input order. workers <= 0 uses GOMAXPROCS. A scenario that could
// not run gets a failed result carrying the error, and all such errors are
// also joined into the returned error.
func RunAll(ctx context.Context, scenarios []*Scenario, workers int, opts ...Option) ([]*Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pool := pond.NewPool(workers)
	defer pool.StopAndWait()

	results := make([]*Result, len(scenarios))
	errs := make([]error, len(scenarios))
	group := pool.NewGroupContext(ctx)
	for i, s := range scenarios {
		group.Submit(func() {
			res, err := Run(ctx, s, opts...)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name, err)
				res = NewResult(s.Name)
				res.AddError("execution failed: " + err.Error())
			}
			results[i] = res
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return results, err
	}
	return results, errors.Join(errs...)
}

// executeSetup runs setup steps. Every setup step must succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		outcome, _, err := h.execute(ctx, step, result)
		if err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		if outcome != CaseSuccess {
			return fmt.Errorf("setup step %d (%s): got %s", i, step.Op, outcome)
		}
	}
	return nil
}

// executeFlow runs flow steps and checks their expect clauses. A step
// without an expect clause must succeed.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		outcome, rendered, err := h.execute(ctx, step, result)
		if err != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
		}

		want := CaseSuccess
		if step.Expect != nil {
			want = step.Expect.Case
		}
		if outcome != want {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected %s, got %s", i, step.Op, want, outcome))
			continue
		}
		if step.Expect != nil && len(step.Expect.Result) > 0 && !matchArgs(rendered, step.Expect.Result) {
			result.AddError(fmt.Sprintf("flow[%d] %s: result %v does not match %v", i, step.Op, rendered, step.Expect.Result))
		}
	}
	return nil
}

// execute moves the clock, invokes one operation and traces it. It returns
// the outcome case and rendered result. Protocol errors are outcomes; any
// other error aborts the run.
func (h *Harness) execute(ctx context.Context, step Step, result *Result) (string, map[string]any, error) {
	switch {
	case step.Tick != nil:
		h.clock.Set(*step.Tick)
	case step.Advance > 0:
		h.clock.Advance(step.Advance)
	}
	tick := h.clock.Tick()

	args, err := normalizeArgs(step.Args)
	if err != nil {
		return "", nil, err
	}
	h.seq++
	result.AddInvocationTrace(step.Op, step.Caller, tick, args, h.seq)

	rendered, err := operations[step.Op](ctx, h, step.Caller, args)
	outcome := CaseSuccess
	if err != nil {
		code := ir.CodeOf(err)
		if code == "" {
			return "", nil, err
		}
		outcome = string(code)
		rendered = nil
		h.log.Debug("step rejected", zap.String("op", step.Op), zap.Error(err))
	}

	h.seq++
	result.AddCompletionTrace(outcome, tick, rendered, h.seq)
	return outcome, rendered, nil
}
