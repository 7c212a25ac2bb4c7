package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/setcode/internal/engine"
	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/programs"
	"github.com/roach88/setcode/internal/registry"
	"github.com/roach88/setcode/internal/store"
	"github.com/roach88/setcode/internal/testutil"
	"github.com/roach88/setcode/internal/upgrade"
)

// unregistered names a code hash the scenario never deployed.
const unregistered = "unregistered"

// Harness is the scenario execution engine.
// It runs one scenario against a real engine and registry with
// deterministic instance ids.
type Harness struct {
	engine *engine.Engine

	hashes map[string]ir.CodeHash // "name@version" -> hash
	names  map[ir.CodeHash]string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database, registry, and engine
// 2. Deploy the scenario's images
// 3. Instantiate the instance
// 4. Execute steps with expect validation
// 5. Rebuild the trace from the journal and evaluate assertions
//
// A returned error means the scenario could not be executed at all.
// Failed expectations and assertions are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in scenarios

	policy, err := registry.ParsePolicy(scenario.Policy)
	if err != nil {
		return nil, err
	}
	auth, err := upgrade.ParseAuthorizer(scenario.Authorizer, scenario.Permission)
	if err != nil {
		return nil, err
	}
	capability, err := upgrade.New(auth, upgrade.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	catalog, err := programs.NewCatalog(capability)
	if err != nil {
		return nil, err
	}
	reg := registry.New(st, catalog, registry.WithPolicy(policy), registry.WithLogger(logger))
	eng, err := engine.New(ctx, st, reg, catalog,
		engine.WithIDGenerator(testutil.NewSequentialIDs("inst")),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		engine: eng,
		hashes: make(map[string]ir.CodeHash),
		names:  make(map[ir.CodeHash]string),
	}

	if err := h.deploy(ctx, scenario.Images); err != nil {
		return nil, err
	}
	inst, err := h.instantiate(ctx, scenario.Instance)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.executeSteps(ctx, inst, scenario.Steps, result); err != nil {
		return nil, err
	}
	if err := h.collect(ctx, inst.ID, result); err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// RunFile loads and runs a scenario file.
func RunFile(ctx context.Context, path string) (*Scenario, *Result, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := Run(ctx, scenario)
	if err != nil {
		return scenario, nil, fmt.Errorf("%s: %w", scenario.Name, err)
	}
	return scenario, result, nil
}

func (h *Harness) deploy(ctx context.Context, paths []string) error {
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		img, err := h.engine.Deploy(ctx, filepath.Base(path), src)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		key := img.Manifest.Key()
		if prev, ok := h.hashes[key]; ok && prev != img.Hash {
			return fmt.Errorf("%s: two different images claim %s", path, key)
		}
		h.hashes[key] = img.Hash
		h.names[img.Hash] = key
	}
	return nil
}

func (h *Harness) instantiate(ctx context.Context, spec InstanceSpec) (ir.Instance, error) {
	hash, ok := h.hashes[spec.Image]
	if !ok {
		return ir.Instance{}, fmt.Errorf("instance: image %s is not deployed", spec.Image)
	}
	args, err := ir.ObjectFromGo(spec.Args)
	if err != nil {
		return ir.Instance{}, fmt.Errorf("instance: failed to convert args: %w", err)
	}
	inst, err := h.engine.Instantiate(ctx, hash, ir.Caller{Identity: spec.Owner}, args)
	if err != nil {
		return ir.Instance{}, fmt.Errorf("instance: %w", err)
	}
	return inst, nil
}

// executeSteps runs all steps in order. Handler failures are expected
// material for scenarios and only fail the step's expectation; host
// failures abort the run.
func (h *Harness) executeSteps(ctx context.Context, inst ir.Instance, steps []Step, result *Result) error {
	for i, step := range steps {
		args, err := h.stepArgs(step)
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}

		caller := ir.Caller{Identity: step.As, Permissions: step.Permissions}
		if caller.Identity == "" {
			caller.Identity = inst.Owner
		}

		res, err := h.engine.Call(ctx, engine.Request{
			InstanceID: inst.ID,
			Message:    step.Call,
			Args:       args,
			Caller:     caller,
		})
		if res.Call.ID == "" {
			return fmt.Errorf("steps[%d] %s: %w", i, step.Call, err)
		}

		for _, msg := range checkExpect(i, step, res.Receipt) {
			result.AddError(msg)
		}
	}
	return nil
}

func (h *Harness) stepArgs(step Step) (ir.Object, error) {
	args, err := ir.ObjectFromGo(step.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to convert args: %w", err)
	}
	switch {
	case step.UpgradeTo != "":
		hash, ok := h.hashes[step.UpgradeTo]
		if !ok {
			return nil, fmt.Errorf("upgrade_to: image %s is not deployed", step.UpgradeTo)
		}
		args[upgrade.Arg] = ir.String(hash.String())
	case step.UpgradeToHash != "":
		args[upgrade.Arg] = ir.String(step.UpgradeToHash)
	}
	return args, nil
}

// checkExpect compares a receipt against the step's expectation. A step
// without an expect clause must succeed.
func checkExpect(index int, step Step, receipt ir.Receipt) []string {
	want := ExpectClause{Case: ir.OutcomeSuccess}
	if step.Expect != nil {
		want = *step.Expect
	}

	var errs []string
	if receipt.Outcome != want.Case {
		msg := fmt.Sprintf("steps[%d] %s: expected case %q, got %q", index, step.Call, want.Case, receipt.Outcome)
		if receipt.Error != "" {
			msg += ": " + receipt.Error
		}
		errs = append(errs, msg)
	}
	for key, expected := range want.Result {
		if !valueMatches(receipt.Result[key], expected) {
			errs = append(errs, fmt.Sprintf("steps[%d] %s: result.%s: expected %v, got %v",
				index, step.Call, key, expected, receipt.Result[key]))
		}
	}
	return errs
}

// collect rebuilds the trace from the journal and records the final
// instance.
func (h *Harness) collect(ctx context.Context, instanceID string, result *Result) error {
	history, err := h.engine.History(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	for _, entry := range history {
		c, r := entry.Call, entry.Receipt
		result.AddCallTrace(c.Message, h.renderArgs(c.Args), c.Caller.Identity, h.name(c.CodeHash), c.Seq)
		result.AddReceiptTrace(c.Message, r.Outcome, r.Result, h.name(r.CodeHash), r.Seq)
	}

	snap, err := h.engine.Inspect(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	result.State = snap.Instance.State
	result.Code = h.name(snap.Instance.CodeHash)
	return nil
}

func (h *Harness) name(hash ir.CodeHash) string {
	if key, ok := h.names[hash]; ok {
		return key
	}
	return unregistered
}

// renderArgs replaces a code_hash naming a deployed image with its
// "name@version" key. Other values are left as the caller sent them.
func (h *Harness) renderArgs(args ir.Object) ir.Object {
	s, ok := args[upgrade.Arg].(ir.String)
	if !ok {
		return args
	}
	hash, err := ir.ParseCodeHash(string(s))
	if err != nil {
		return args
	}
	key, ok := h.names[hash]
	if !ok {
		return args
	}
	out := args.Clone()
	out[upgrade.Arg] = ir.String(key)
	return out
}
