// File: internal/tools/errors.go
package tools

import "fmt"

// ToolExecutionError wraps a tool failure with the tool's name. The failure is
// reported back to the model as a tool result rather than aborting the run.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
