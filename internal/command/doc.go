// Package command defines chat commands, the modules that group them, the
// registry that resolves command names, and the runner that executes a
// single invocation.
//
// # Commands and modules
//
// Every command belongs to a Module. A module carries lifecycle hooks shared
// by its commands and can be enabled or disabled as a unit:
//
//	mod := command.NewModule("fun")
//	mod.Add("roll", rollHandler,
//		command.WithAliases("dice"),
//		command.WithFlags("sides="),
//		command.WithChecks(check.InGuild()),
//		command.WithShortHelp("Roll a die"),
//	)
//	registry.AddModule(mod)
//
// # Name index
//
// The Registry keeps a case-insensitive index of command names and aliases
// for enabled modules. The index is rebuilt from scratch on every change and
// swapped in atomically, so lookups never block and may briefly observe the
// previous index.
//
// # Lifecycle
//
// Runner.Run executes one invocation: the module pre-hook (which waits for
// the module to be launched), the command's checks, flag parsing, the
// handler, and the post-hook. Errors and panics pass through the module's
// error hook and are then mapped to exactly one Outcome:
//
//   - *check.FailedError: GatingFailed. The check's message, if any, is sent
//     as an error reply.
//   - *SafeCancellation: Cancelled. Its user message, if any, is sent.
//   - framework cancellation (ErrFrameworkCancelled): Cancelled, silently.
//   - ErrOperationTimeout or context.DeadlineExceeded: TimedOut.
//   - anything else: Faulted, with a short rendering of the error sent back.
//
// Only Faulted is logged at error level.
package command
