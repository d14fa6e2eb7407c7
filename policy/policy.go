package policy

import (
	"fmt"

	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/placement"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// Outcome is the result of a placement attempt.
type Outcome int

const (
	// Placed means the task was admitted immediately.
	Placed Outcome = iota
	// Deferred means a machine is being woken and the placement will
	// complete in the StateChangeComplete handler; the caller has
	// already enqueued a PendingAttachment on ctx.Pending.
	Deferred
	// Unplaceable means no running machine could admit the task and no
	// sleeping one could be woken for it. The engine logs it and counts it
	// as an SLA violation; the task is not queued for another attempt.
	Unplaceable
)

// Result is what Policy.Place returns.
type Result struct {
	Outcome  Outcome
	VM       *vmtable.VM
	Machine  cluster.MachineID
	Priority vmtable.Priority
}

// Policy is the decision core's capability interface (§4.5): place a task,
// react to completion, run periodic maintenance, react to an SLA warning,
// and react to a completed migration. Follows the shape of the
// InstanceScheduler interface (sim/scheduler.go), generalized from
// queue-reordering to the full placement/consolidation/tiering/DVFS
// surface this engine needs.
type Policy interface {
	// Name identifies the strategy for logging and config binding.
	Name() string

	// UtilizationProxy declares which metric this policy ranks machines
	// by (§9 open question 3).
	UtilizationProxy() placement.UtilizationProxy

	// Init sets up any initial VMs/tiers/wake requests at InitScheduler.
	Init(ctx *Context) error

	// Place decides how to host a newly arrived task.
	Place(ctx *Context, task registry.TaskInfo) (Result, error)

	// OnComplete reacts to a task finishing (consolidation, power-off). vm
	// is the VM the task was running on, resolved by the Event Adapter from
	// its own assignment map (§4.4) — policies never scan the simulator to
	// find it.
	OnComplete(ctx *Context, task registry.TaskInfo, vm *vmtable.VM)

	// Tick runs periodic maintenance (tier reconciliation, DVFS sweeps).
	Tick(ctx *Context, now int64)

	// OnSLAWarning reacts to a task at risk of missing its deadline. vm is
	// resolved the same way as in OnComplete.
	OnSLAWarning(ctx *Context, task registry.TaskInfo, vm *vmtable.VM)

	// OnMigrationDone reacts to a migration completing.
	OnMigrationDone(ctx *Context, vm *vmtable.VM)
}

// derivePriority derives a task's admission priority from its SLA class,
// per §4.3, with the optional id-based override of §9 open question 1
// (off by default — Config.PriorityOverrideIDs is empty unless the
// operator opts in).
func derivePriority(cfg Config, task registry.TaskInfo) vmtable.Priority {
	for _, id := range cfg.PriorityOverrideIDs {
		if int(task.ID) == id {
			return vmtable.HIGH
		}
	}
	return vmtable.PriorityFor(task.SLA)
}

// New constructs a concrete Policy by kind. Mirrors the
// sim.NewScheduler(name) constructor switch (sim/scheduler.go).
func New(cfg Config) (Policy, error) {
	switch cfg.Policy {
	case Greedy, "":
		return newGreedyPolicy(cfg), nil
	case Tier:
		return newTierPolicy(cfg), nil
	case Predictive:
		return newPredictivePolicy(cfg), nil
	case FirstFit:
		return newFirstFitPolicy(cfg), nil
	case UtilSort:
		return newUtilSortPolicy(cfg), nil
	default:
		return nil, fmt.Errorf("policy: unknown kind %q", cfg.Policy)
	}
}
