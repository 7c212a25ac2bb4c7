package registry

import "fmt"

// ReturnCode is the status a registry host function reports.
// Zero is success; everything else is a refusal.
type ReturnCode uint32

const (
	Success          ReturnCode = 0
	CodeRejected     ReturnCode = 1
	CodeNotFound     ReturnCode = 7
	InstanceNotFound ReturnCode = 8
)

func (c ReturnCode) String() string {
	switch c {
	case Success:
		return "Success"
	case CodeRejected:
		return "CodeRejected"
	case CodeNotFound:
		return "CodeNotFound"
	case InstanceNotFound:
		return "InstanceNotFound"
	default:
		return fmt.Sprintf("ReturnCode(%d)", uint32(c))
	}
}

// Err converts c into nil for Success and a *StatusError otherwise.
func (c ReturnCode) Err() error {
	if c == Success {
		return nil
	}
	return &StatusError{Code: c}
}

// StatusError is a non-zero registry status.
type StatusError struct {
	Code ReturnCode
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry status %d (%s)", uint32(e.Code), e.Code)
}
