package harness

import "github.com/roach88/setcode/internal/ir"

// Trace event types.
const (
	EventCall    = "call"
	EventReceipt = "receipt"
)

// TraceEvent is one journaled call or receipt. Code hashes are rendered
// as "name@version" so traces stay stable when image bytes change.
type TraceEvent struct {
	Type    string    `json:"type"` // "call" or "receipt"
	Message string    `json:"message,omitempty"`
	Args    ir.Object `json:"args,omitempty"`
	Caller  string    `json:"caller,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Result  ir.Object `json:"result,omitempty"`
	Code    string    `json:"code"` // Executing image for calls, pointer after for receipts
	Seq     int64     `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains all calls and receipts in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the instance state after the last step.
	State ir.Object `json:"state"`

	// Code is the image the instance points at after the last step.
	Code string `json:"code"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  ir.Object{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddCallTrace adds a call to the trace.
func (r *Result) AddCallTrace(message string, args ir.Object, caller, code string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventCall,
		Message: message,
		Args:    args,
		Caller:  caller,
		Code:    code,
		Seq:     seq,
	})
}

// AddReceiptTrace adds a receipt to the trace. message is the call's
// message, kept so receipts can be counted per message.
func (r *Result) AddReceiptTrace(message, outcome string, result ir.Object, code string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventReceipt,
		Message: message,
		Outcome: outcome,
		Result:  result,
		Code:    code,
		Seq:     seq,
	})
}
