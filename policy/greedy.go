package policy

import (
	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/placement"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// greedyPolicy is the Greedy-consolidate strategy (§4.5): pack tasks onto
// the first running machine that fits rather than spreading load, and on
// each task completion drain and power off the least-loaded machines once
// enough are active. Follows the simplest scheduler in sim/scheduler.go's FCFS
// routing, generalized from queue selection to machine selection.
type greedyPolicy struct {
	cfg Config
}

func newGreedyPolicy(cfg Config) *greedyPolicy { return &greedyPolicy{cfg: cfg} }

func (p *greedyPolicy) Name() string { return "greedy" }

func (p *greedyPolicy) UtilizationProxy() placement.UtilizationProxy { return placement.ProxyMemory }

func (p *greedyPolicy) Init(ctx *Context) error { return nil }

// Place scans machines of the task's CPU family in ascending id order and
// takes the first one already in S0 with enough free memory that admitting
// the task would not exceed its memory capacity. Failing that, it
// wakes the lowest-id compatible sleeping machine and defers.
func (p *greedyPolicy) Place(ctx *Context, task registry.TaskInfo) (Result, error) {
	priority := derivePriority(p.cfg, task)
	candidates := ctx.Index.ByCPU(task.RequiredCPU)
	if len(candidates) == 0 {
		return Result{Outcome: Unplaceable}, nil
	}

	var sleeping cluster.MachineID
	haveSleeping := false
	for _, id := range candidates {
		info, ok := ctx.Fleet.Info(id)
		if !ok {
			continue
		}
		if !info.SState.Running() {
			if !haveSleeping {
				sleeping = id
				haveSleeping = true
			}
			continue
		}
		projected := info.MemoryUsed + task.RequiredMemory
		if projected > info.MemoryCap {
			continue
		}
		vm, _, err := ctx.FindOrCreateVM(id, task.RequiredOS, task.RequiredCPU)
		if err != nil {
			return Result{}, err
		}
		if !vm.Attached {
			if err := ctx.AttachAndAdmit(vm, id, task, priority); err != nil {
				return Result{}, err
			}
		} else if err := ctx.AdmitExisting(vm, task, priority); err != nil {
			return Result{}, err
		}
		ctx.Recorder.Record(ctx.Now, "place", "greedy: admitted onto running machine")
		return Result{Outcome: Placed, VM: vm, Machine: id, Priority: priority}, nil
	}

	if !haveSleeping {
		return Result{Outcome: Unplaceable}, nil
	}
	return p.deferOnSleeping(ctx, sleeping, task, priority)
}

func (p *greedyPolicy) deferOnSleeping(ctx *Context, machine cluster.MachineID, task registry.TaskInfo, priority vmtable.Priority) (Result, error) {
	vm, err := ctx.VMs.Create(task.RequiredOS, task.RequiredCPU)
	if err != nil {
		return Result{}, err
	}
	ctx.Fleet.RequestState(machine, cluster.S0)
	ctx.Pending.Enqueue(PendingAttachment{VM: vm, Machine: machine, Task: task.ID, Priority: priority})
	ctx.Recorder.Record(ctx.Now, "place", "greedy: woke sleeping machine")
	return Result{Outcome: Deferred, VM: vm, Machine: machine, Priority: priority}, nil
}

// OnComplete consolidates once at least ConsolidationFloor machines are
// active: it finds the least-utilized non-empty machine and tries to move
// its lightest task onto the most-utilized machine that still has room,
// shutting the source down if it ends up empty.
func (p *greedyPolicy) OnComplete(ctx *Context, task registry.TaskInfo, vm *vmtable.VM) {
	active := activeMachines(ctx, task.RequiredCPU)
	if len(active) < p.cfg.ConsolidationFloor {
		return
	}
	sorted := ctx.Index.SortedByUtilization(task.RequiredCPU, placement.ProxyMemory, nil)
	source, ok := leastUtilizedNonEmpty(ctx, sorted)
	if !ok {
		return
	}
	lightest, srcVM, ok := lightestTask(ctx, source)
	if !ok {
		return
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		dest := sorted[i]
		if dest == source {
			continue
		}
		info, ok := ctx.Fleet.Info(dest)
		if !ok || !info.SState.Running() {
			continue
		}
		if info.MemoryUsed+lightest.RequiredMemory > info.MemoryCap {
			continue
		}
		destVM, _, err := ctx.FindOrCreateVM(dest, lightest.RequiredOS, lightest.RequiredCPU)
		if err != nil {
			continue
		}
		priority := vmtable.PriorityFor(lightest.SLA)
		if !destVM.Attached {
			if err := ctx.AttachAndAdmit(destVM, dest, lightest, priority); err != nil {
				continue
			}
		} else if err := ctx.AdmitExisting(destVM, lightest, priority); err != nil {
			continue
		}
		if err := ctx.Evict(srcVM, lightest); err != nil {
			continue
		}
		ctx.Recorder.Record(ctx.Now, "migrate", "greedy: consolidated task off least-utilized machine")
		shutdownIfEmpty(ctx, source)
		return
	}
}

func (p *greedyPolicy) Tick(ctx *Context, now int64) {}

func (p *greedyPolicy) OnSLAWarning(ctx *Context, task registry.TaskInfo, vm *vmtable.VM) {
	ctx.Recorder.Record(ctx.Now, "sla", "greedy: no proactive migration for this strategy")
}

func (p *greedyPolicy) OnMigrationDone(ctx *Context, vm *vmtable.VM) {}
