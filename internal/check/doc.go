// Package check provides composable gating predicates for commands.
//
// # Evaluation
//
// A Check combines three sources of truth, evaluated in this order:
//
//   - Parents: superseding checks. If any parent passes, the check passes
//     immediately and nothing else is evaluated.
//   - Requires: prerequisite checks. If any of them fails, the check fails
//     immediately and its own predicate is not evaluated.
//   - Predicate: the check's own test. A nil predicate passes.
//
// Evaluation is lazy, so predicates later in the order never run once the
// result is known. This matters for predicates with side effects or cost,
// such as permission lookups against the chat platform.
//
//	admin := check.New("admin", isAdmin, check.WithMessage("Admins only."))
//	owner := check.IsOwner("1234")
//	modOrOwner := check.New("mod", isModerator,
//		check.WithParents(owner),
//		check.WithRequires(check.InGuild()),
//	)
//
// # Gating
//
// Gate evaluates a check and turns a false result into a *FailedError that
// names the check, so the command runner can reply with its message:
//
//	if err := modOrOwner.Gate(ctx, inv); err != nil {
//		var failed *check.FailedError
//		if errors.As(err, &failed) {
//			// failed.Check.Message()
//		}
//	}
//
// # Immutability
//
// Checks are immutable once built and can only reference checks that
// already exist, so a chain of parents and requires can never form a cycle.
package check
