package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/setcode/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution,
// plus where the instance ended up.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
	State        ir.Object    `json:"state"`
	Code         string       `json:"code"`
}

// toCanonical converts a TraceSnapshot to an ir.Object for canonical JSON
// serialization. Calls always carry args and receipts always carry a
// result, even when empty.
func (s *TraceSnapshot) toCanonical() ir.Object {
	trace := make(ir.List, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.Object{
			"type":    ir.String(event.Type),
			"message": ir.String(event.Message),
			"code":    ir.String(event.Code),
			"seq":     ir.Int(event.Seq),
		}
		switch event.Type {
		case EventCall:
			obj["args"] = orEmpty(event.Args)
			obj["caller"] = ir.String(event.Caller)
		case EventReceipt:
			obj["outcome"] = ir.String(event.Outcome)
			obj["result"] = orEmpty(event.Result)
		}
		trace[i] = obj
	}

	return ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"trace":         trace,
		"state":         orEmpty(s.State),
		"code":          ir.String(s.Code),
	}
}

func orEmpty(obj ir.Object) ir.Object {
	if obj == nil {
		return ir.Object{}
	}
	return obj
}

// Snapshot returns the canonical JSON golden form of a result.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		State:        result.State,
		Code:         result.Code,
	}
	return ir.MarshalCanonical(snapshot.toCanonical())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The result is returned so callers can also check Pass. A returned
// error means the scenario could not be executed.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
