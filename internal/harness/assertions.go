package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/setcode/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			switch event.Type {
			case EventCall:
				fmt.Fprintf(&buf, "  [%d] %s %v by %s on %s\n", i+1, event.Message, event.Args, event.Caller, event.Code)
			case EventReceipt:
				fmt.Fprintf(&buf, "  [%d]   -> %s, code %s\n", i+1, event.Outcome, event.Code)
			}
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains a call matching
// the specified message and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type == EventCall && event.Message == assertion.Message && matchArgs(event.Args, assertion.Args) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("message %s with args %v", assertion.Message, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that calls to the listed messages appear as a
// subsequence of the trace. Intervening calls are allowed and a message
// may be listed more than once.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	lastPos := 0
	for i, event := range trace {
		if next == len(assertion.Messages) {
			break
		}
		if event.Type == EventCall && event.Message == assertion.Messages[next] {
			next++
			lastPos = i + 1 // 1-indexed for readability
		}
	}

	if next < len(assertion.Messages) {
		actual := fmt.Sprintf("missing message: %s", assertion.Messages[next])
		if next > 0 {
			actual = fmt.Sprintf("no %s after %s (pos %d)", assertion.Messages[next], assertion.Messages[next-1], lastPos)
		}
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("messages in order: %v", assertion.Messages),
			Actual:   actual,
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks if the message appears exactly the specified
// number of times. With an outcome, receipts with that outcome are
// counted instead of calls.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Message != assertion.Message {
			continue
		}
		switch {
		case assertion.Outcome == "" && event.Type == EventCall:
			count++
		case assertion.Outcome != "" && event.Type == EventReceipt && event.Outcome == assertion.Outcome:
			count++
		}
	}

	if count != assertion.Count {
		what := assertion.Message
		if assertion.Outcome != "" {
			what += " with outcome " + assertion.Outcome
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertState checks the final instance state using subset semantics:
// only keys in Expect are compared.
func assertState(state ir.Object, assertion Assertion) error {
	for _, key := range slices.Sorted(maps.Keys(assertion.Expect)) {
		expected := assertion.Expect[key]
		actual, exists := state[key]
		if !exists {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("field %q = %v", key, expected),
				Actual:   fmt.Sprintf("field %q not present in state: %v", key, state),
			}
		}
		if !valueMatches(actual, expected) {
			return &AssertionError{
				Type:     AssertState,
				Expected: fmt.Sprintf("field %q = %v", key, expected),
				Actual:   fmt.Sprintf("field %q = %v", key, actual),
			}
		}
	}
	return nil
}

// assertCode checks the image the instance points at after the last step.
func assertCode(code string, assertion Assertion) error {
	if code != assertion.Image {
		return &AssertionError{
			Type:     AssertCode,
			Expected: fmt.Sprintf("instance running %s", assertion.Image),
			Actual:   fmt.Sprintf("instance running %s", code),
		}
	}
	return nil
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual ir.Object, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists || !valueMatches(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valueMatches compares a recorded value with one decoded from YAML.
func valueMatches(actual ir.Value, expected any) bool {
	want, err := ir.FromGo(expected)
	if err != nil {
		return false
	}
	return ir.Equal(actual, want)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertState:
			err = assertState(result.State, assertion)
		case AssertCode:
			err = assertCode(result.Code, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
