package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/Hweary/cmdClient/internal/invocation"
)

// Predicate is the test a check applies to an invocation. A non-nil error
// aborts evaluation and is treated as an unexpected fault.
type Predicate func(ctx context.Context, inv *invocation.Invocation) (bool, error)

// Check is a named, immutable gating predicate.
type Check struct {
	name      string
	message   string
	predicate Predicate
	parents   []*Check
	requires  []*Check
}

// Option configures a Check at construction.
type Option func(*Check)

// WithMessage sets the text shown to the user when the check fails.
func WithMessage(msg string) Option {
	return func(c *Check) { c.message = msg }
}

// WithParents adds superseding checks. Any passing parent passes the check.
func WithParents(parents ...*Check) Option {
	return func(c *Check) { c.parents = append(c.parents, nonNil(parents)...) }
}

// WithRequires adds prerequisite checks. All must pass before the predicate
// is evaluated.
func WithRequires(requires ...*Check) Option {
	return func(c *Check) { c.requires = append(c.requires, nonNil(requires)...) }
}

func nonNil(checks []*Check) []*Check {
	out := make([]*Check, 0, len(checks))
	for _, c := range checks {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// New builds a check. predicate may be nil, in which case the check's result
// is decided by its parents and requires alone.
func New(name string, predicate Predicate, opts ...Option) *Check {
	c := &Check{name: name, predicate: predicate}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the check's name.
func (c *Check) Name() string { return c.name }

// Message returns the failure text, which may be empty.
func (c *Check) Message() string { return c.message }

// Parents returns a copy of the superseding checks.
func (c *Check) Parents() []*Check { return append([]*Check(nil), c.parents...) }

// Requires returns a copy of the prerequisite checks.
func (c *Check) Requires() []*Check { return append([]*Check(nil), c.requires...) }

// Evaluate runs the check against inv.
func (c *Check) Evaluate(ctx context.Context, inv *invocation.Invocation) (bool, error) {
	for _, parent := range c.parents {
		ok, err := parent.Evaluate(ctx, inv)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	for _, req := range c.requires {
		ok, err := req.Evaluate(ctx, inv)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if c.predicate == nil {
		return true, nil
	}
	ok, err := c.predicate(ctx, inv)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", c.name, err)
	}
	return ok, nil
}

// Gate evaluates the check and returns a *FailedError naming c when it does
// not pass. Predicate errors are returned as they are.
func (c *Check) Gate(ctx context.Context, inv *invocation.Invocation) error {
	ok, err := c.Evaluate(ctx, inv)
	if err != nil {
		return err
	}
	if !ok {
		return &FailedError{Check: c}
	}
	return nil
}

// All gates every check in order and stops at the first failure.
func All(ctx context.Context, inv *invocation.Invocation, checks []*Check) error {
	for _, c := range checks {
		if err := c.Gate(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}

// FailedError is returned when a command's check does not pass.
type FailedError struct {
	Check *Check
}

func (e *FailedError) Error() string {
	if e.Check.message != "" {
		return fmt.Sprintf("check %s failed: %s", e.Check.name, e.Check.message)
	}
	return fmt.Sprintf("check %s failed", e.Check.name)
}

// IsFailedError checks if an error is a failed check.
func IsFailedError(err error) bool {
	var failed *FailedError
	return errors.As(err, &failed)
}
