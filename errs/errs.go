// Package errs defines the four error kinds of §7's error handling design.
// Every fallible operation in vmtable and policy returns one of
// these (wrapped with fmt.Errorf("%w: ...", ...)) instead of throwing; the
// Event Adapter is the only place that inspects kind via errors.Is and
// decides log level vs. fatal abort.
package errs

import "errors"

// ErrPrecondition covers PreconditionViolation: attach to a non-S0
// machine, add a task to a migrating VM, CPU/OS mismatch. Recovered
// locally by falling back to the policy's next candidate.
var ErrPrecondition = errors.New("precondition violation")

// ErrCapacityExhausted covers CapacityExhausted: no compatible machine, no
// free memory. The task is logged and counted as an SLA violation; it is
// not queued for another placement attempt.
var ErrCapacityExhausted = errors.New("capacity exhausted")

// ErrInvariantBroken covers InternalInvariantBroken: the engine's shadow
// state disagrees with the simulator. Fatal — the adapter aborts with a
// diagnostic, mirroring original_source/Interfaces.h's ThrowException,
// which "stops simulation".
var ErrInvariantBroken = errors.New("internal invariant broken")

// ErrOvercommit covers SimulatorReportedOvercommit (a MemoryWarning
// upcall): informational, logged and recorded in the audit log; no
// migration is started, and it never panics.
var ErrOvercommit = errors.New("simulator reported overcommit")
