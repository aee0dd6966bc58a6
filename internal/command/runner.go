package command

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Hweary/cmdClient/internal/check"
	"github.com/Hweary/cmdClient/internal/flags"
	"github.com/Hweary/cmdClient/internal/invocation"
	"github.com/Hweary/cmdClient/internal/logging"
)

const meterScope = "github.com/Hweary/cmdClient/command"

// Outcome is the terminal state of one command run.
type Outcome int

const (
	Completed Outcome = iota
	GatingFailed
	Cancelled
	TimedOut
	Faulted
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case GatingFailed:
		return "gating_failed"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed_out"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TimeoutReply is sent when a command times out.
const TimeoutReply = "Operation timed out."

// FaultReply prefixes the one-line error sent when a command faults.
const FaultReply = "An unexpected internal error occurred while running your command! " +
	"Please report the following error to the developer:"

// Runner executes command invocations and maps their result to replies and
// log entries.
type Runner struct {
	log            zerolog.Logger
	outcomes       metric.Int64Counter
	duration       metric.Float64Histogram
	defaultTimeout time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDefaultTimeout bounds handlers of commands that set no timeout of
// their own. Zero leaves them unbounded.
func WithDefaultTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.defaultTimeout = d }
}

// NewRunner creates a runner that logs to logger and records metrics with
// the global OpenTelemetry meter provider.
func NewRunner(logger zerolog.Logger, opts ...RunnerOption) *Runner {
	m := otel.Meter(meterScope)
	outcomes, _ := m.Int64Counter("cmdclient.command.outcomes",
		metric.WithDescription("Command runs by terminal outcome"),
	)
	duration, _ := m.Float64Histogram("cmdclient.command.duration",
		metric.WithDescription("Command run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	r := &Runner{log: logger, outcomes: outcomes, duration: duration}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd for inv and returns how it ended. The run is tracked as a
// task of inv, so inv.Cancel stops it. Run never panics on behalf of the
// command and never returns before the command has stopped.
func (r *Runner) Run(ctx context.Context, cmd *Command, inv *invocation.Invocation) Outcome {
	start := time.Now()
	log := logging.ForMessage(r.log, inv.MessageID).With().Str("command", cmd.Name).Logger()

	taskCtx, cancel := context.WithCancelCause(ctx)
	release := inv.Track(cancel)
	err := r.exec(taskCtx, cmd, inv)
	release()
	cause := context.Cause(taskCtx)
	cancel(nil)

	outcome := r.settle(ctx, log, inv, err, cause)

	attrs := metric.WithAttributes(
		attribute.String("command", cmd.Name),
		attribute.String("module", cmd.module.name),
		attribute.String("outcome", outcome.String()),
	)
	r.outcomes.Add(ctx, 1, attrs)
	r.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	return outcome
}

// exec runs the command body and routes any error or panic through the
// module's error hook.
func (r *Runner) exec(ctx context.Context, cmd *Command, inv *invocation.Invocation) error {
	m := cmd.module
	err := protect(func() error { return r.body(ctx, cmd, inv) })
	if err == nil {
		return nil
	}
	return protect(func() error { return m.onError(ctx, inv, err) })
}

func (r *Runner) body(ctx context.Context, cmd *Command, inv *invocation.Invocation) error {
	m := cmd.module
	if err := m.preCommand(ctx, inv); err != nil {
		return err
	}
	if err := check.All(ctx, inv, cmd.checks); err != nil {
		return err
	}

	var values flags.Values
	if len(cmd.Flags) > 0 {
		values, inv.Args = flags.Parse(inv.ArgStr, cmd.Flags)
		inv.Flags = values
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	handlerCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithTimeoutCause(ctx, timeout, ErrOperationTimeout)
		defer cancel()
	}
	if err := cmd.handler(handlerCtx, inv, values); err != nil {
		return err
	}
	return m.postCommand(ctx, inv)
}

// protect converts a panic in fn into a *PanicError.
func protect(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// settle maps the result of a run onto exactly one outcome, logging it and
// sending any reply. Replies use ctx, not the run's own context, which may
// already be cancelled.
func (r *Runner) settle(ctx context.Context, log zerolog.Logger, inv *invocation.Invocation, err, cause error) Outcome {
	if err == nil {
		log.Debug().Msg("Command completed execution without error")
		return Completed
	}

	var failed *check.FailedError
	var safe *SafeCancellation
	switch {
	case errors.As(err, &failed):
		log.Debug().Str("check", failed.Check.Name()).Msg("Command failed check")
		if msg := failed.Check.Message(); msg != "" {
			r.reply(ctx, log, inv, msg)
		}
		return GatingFailed

	case errors.As(err, &safe):
		log.Debug().Str("kind", safe.Kind).Str("detail", safe.Detail).Msg("Caught a safe command cancellation")
		if safe.Message != "" {
			r.reply(ctx, log, inv, safe.Message)
		}
		return Cancelled

	case errors.Is(cause, ErrFrameworkCancelled) || (cause != nil && errors.Is(err, context.Canceled)):
		log.Debug().AnErr("cause", cause).Msg("Command was cancelled, probably due to a message edit")
		return Cancelled

	case errors.Is(err, ErrOperationTimeout) || errors.Is(err, context.DeadlineExceeded):
		log.Warn().Err(err).Msg("Command timed out")
		r.reply(ctx, log, inv, TimeoutReply)
		return TimedOut
	}

	event := log.Error().Err(err)
	var pe *PanicError
	if errors.As(err, &pe) {
		event = event.Bytes("stack", pe.Stack)
	}
	event.Str("content", inv.Content).Msg("Caught an unexpected error while running command")

	if _, sendErr := inv.Reply(ctx, fmt.Sprintf("%s\n`%s`", FaultReply, summarise(err))); sendErr != nil {
		log.Warn().Err(sendErr).Msg("Failed to report error to user")
	}
	return Faulted
}

func (r *Runner) reply(ctx context.Context, log zerolog.Logger, inv *invocation.Invocation, msg string) {
	if _, err := inv.ErrorReply(ctx, msg); err != nil {
		log.Warn().Err(err).Msg("Failed to send error reply")
	}
}
