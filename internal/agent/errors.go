// File: internal/agent/errors.go
package agent

import "errors"

// ErrRunInProgress is returned when a second run is requested for a thread
// that already has one executing. Callers should reject the request; runs on
// the same thread never queue.
var ErrRunInProgress = errors.New("a run is already in progress for this thread")

// decodeFallbackMessage is shown to the user when the model's output cannot
// be decoded for the current phase. The turn ends; nothing is guessed.
const decodeFallbackMessage = "I hit a snag putting that response together. Could you rephrase or try again?"
