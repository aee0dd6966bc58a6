package command

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOperationTimeout is the cause attached to a handler context whose
	// command timeout elapsed. Handlers may also return it directly.
	ErrOperationTimeout = errors.New("operation timed out")

	// ErrFrameworkCancelled is the cancellation cause used when the
	// framework itself stops an invocation, for example because its message
	// was edited.
	ErrFrameworkCancelled = errors.New("cancelled by framework")
)

// SafeCancellation is returned by handlers to stop a command deliberately.
// Message is shown to the user when non-empty; Detail is only logged.
type SafeCancellation struct {
	Kind    string
	Message string
	Detail  string
}

func (e *SafeCancellation) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return e.Kind
}

// Cancel builds a SafeCancellation. An empty detail defaults to the message.
func Cancel(message, detail string) *SafeCancellation {
	return newCancellation("SafeCancellation", message, detail)
}

// UserCancelled reports that the user abandoned an interactive command.
func UserCancelled(detail string) *SafeCancellation {
	return newCancellation("UserCancelled", "User cancelled the session!", detail)
}

// ResponseTimedOut reports that the user did not answer a prompt in time.
func ResponseTimedOut(detail string) *SafeCancellation {
	return newCancellation("ResponseTimedOut", "Session timed out waiting for user response!", detail)
}

func newCancellation(kind, message, detail string) *SafeCancellation {
	if detail == "" {
		detail = message
	}
	return &SafeCancellation{Kind: kind, Message: message, Detail: detail}
}

// IsSafeCancellation checks if an error is a deliberate cancellation.
func IsSafeCancellation(err error) bool {
	var sc *SafeCancellation
	return errors.As(err, &sc)
}

// PanicError wraps a value recovered from a panicking handler or hook.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a panicked error value to errors.Is and errors.As.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// summarise renders err on a single line for user-facing replies.
func summarise(err error) string {
	line, _, _ := strings.Cut(err.Error(), "\n")
	return line
}
