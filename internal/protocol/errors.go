// File: internal/protocol/errors.go
package protocol

import (
	"fmt"

	"github.com/xkilldash9x/loom/api/schemas"
)

// DecodeError reports raw model text that does not conform to the expected
// directive shape for the current node. Decoding never guesses intent: the
// offending raw text travels with the error for diagnostics.
type DecodeError struct {
	Node   schemas.NodeKind
	Reason string
	Raw    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("directive decode failed for node %s: %s (raw: %s)", e.Node, e.Reason, truncate(e.Raw, 500))
}

func newDecodeError(node schemas.NodeKind, raw, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Node: node, Reason: fmt.Sprintf(format, args...), Raw: raw}
}

// truncate shortens a string for error messages. Byte-based truncation is
// sufficient for diagnostics.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
