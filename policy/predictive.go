package policy

import (
	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/placement"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// predictivePolicy is the Predictive (response-time) strategy (§4.5): place
// on the attached VM with the lowest mean response time (falling back to
// first-fit over running machines, then to waking a sleeping one), then
// every DVFSCheckPeriod completions inspect each VM's
// response-time window and raise or lower its host's P-state depending on
// the trend, and every ConsolidatePeriod completions attempt one
// consolidation pass. Follows the queueing-delay feedback controller in
// sim/scheduler.go's latency-based routing decisions, generalized from
// per-request routing to per-VM DVFS.
type predictivePolicy struct {
	cfg         Config
	completions int
}

func newPredictivePolicy(cfg Config) *predictivePolicy { return &predictivePolicy{cfg: cfg} }

func (p *predictivePolicy) Name() string { return "predictive" }

func (p *predictivePolicy) UtilizationProxy() placement.UtilizationProxy {
	return placement.ProxyMIPS
}

func (p *predictivePolicy) Init(ctx *Context) error { return nil }

// Place favors the compatible attached VM with the lowest current mean
// response time (§4.5); only once no such VM has room does it fall back to
// spinning up a fresh VM on a running machine, then to waking a sleeping
// one.
func (p *predictivePolicy) Place(ctx *Context, task registry.TaskInfo) (Result, error) {
	priority := derivePriority(p.cfg, task)
	demand := InstructionsPerTick(task)

	if vm, ok := p.bestAttachedVM(ctx, task, demand); ok {
		if err := ctx.AdmitExisting(vm, task, priority); err != nil {
			return Result{}, err
		}
		return Result{Outcome: Placed, VM: vm, Machine: vm.Machine, Priority: priority}, nil
	}

	for _, id := range ctx.Index.ByCPU(task.RequiredCPU) {
		info, ok := ctx.Fleet.Info(id)
		if !ok || !info.SState.Running() {
			continue
		}
		if info.MemoryUsed+task.RequiredMemory > info.MemoryCap {
			continue
		}
		if ctx.Shadow.MIPS(id)+demand > info.MIPS() {
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
		return Result{Outcome: Placed, VM: vm, Machine: id, Priority: priority}, nil
	}

	for _, id := range ctx.Index.ByCPU(task.RequiredCPU) {
		info, ok := ctx.Fleet.Info(id)
		if !ok || info.SState.Running() {
			continue
		}
		vm, err := ctx.VMs.Create(task.RequiredOS, task.RequiredCPU)
		if err != nil {
			return Result{}, err
		}
		ctx.Fleet.RequestState(id, cluster.S0)
		ctx.Pending.Enqueue(PendingAttachment{VM: vm, Machine: id, Task: task.ID, Priority: priority})
		return Result{Outcome: Deferred, VM: vm, Machine: id, Priority: priority}, nil
	}
	return Result{Outcome: Unplaceable}, nil
}

// bestAttachedVM scans every attached, non-migrating VM matching the
// task's (OS, CPU) with room for it on its host, and returns the one with
// the lowest RTWindow mean response time, tie-broken by lower machine id.
func (p *predictivePolicy) bestAttachedVM(ctx *Context, task registry.TaskInfo, demand float64) (*vmtable.VM, bool) {
	var best *vmtable.VM
	var bestMean float64
	for _, vm := range ctx.VMs.All() {
		if !vm.Attached || vm.Migrating || vm.OS != task.RequiredOS || vm.CPU != task.RequiredCPU {
			continue
		}
		info, ok := ctx.Fleet.Info(vm.Machine)
		if !ok || !info.SState.Running() {
			continue
		}
		if info.MemoryUsed+task.RequiredMemory > info.MemoryCap {
			continue
		}
		if ctx.Shadow.MIPS(vm.Machine)+demand > info.MIPS() {
			continue
		}
		mean := vm.RTWindow.Mean()
		switch {
		case best == nil:
			best, bestMean = vm, mean
		case mean < bestMean:
			best, bestMean = vm, mean
		case mean == bestMean && vm.Machine < best.Machine:
			best, bestMean = vm, mean
		}
	}
	return best, best != nil
}

// OnComplete runs every DVFSCheckPeriod completions' DVFS sweep and every
// ConsolidatePeriod completions' consolidation pass. The realized response
// time itself is recorded against the VM's window by Context.CompleteTask,
// ahead of this call.
func (p *predictivePolicy) OnComplete(ctx *Context, task registry.TaskInfo, vm *vmtable.VM) {
	p.completions++
	if p.cfg.DVFSCheckPeriod > 0 && p.completions%p.cfg.DVFSCheckPeriod == 0 {
		p.sweepDVFS(ctx)
	}
	if p.cfg.ConsolidatePeriod > 0 && p.completions%p.cfg.ConsolidatePeriod == 0 {
		p.consolidate(ctx, task.RequiredCPU)
	}
}

// sweepDVFS raises a VM's host to a faster P-state when its response-time
// trend is climbing by more than SlopeRaiseThreshold, and lowers it when
// the trend is falling by more than SlopeLowerThreshold, adjusting VM.Size
// in lockstep so later sizing decisions see the change.
func (p *predictivePolicy) sweepDVFS(ctx *Context) {
	for _, vm := range ctx.VMs.All() {
		if !vm.Attached || !vm.RTWindow.Full() {
			continue
		}
		slope := vm.RTWindow.Slope()
		info, ok := ctx.Fleet.Info(vm.Machine)
		if !ok {
			continue
		}
		switch {
		case slope > p.cfg.SlopeRaiseThreshold && info.PStateActive > cluster.P0:
			ctx.Fleet.SetCorePerformance(vm.Machine, info.PStateActive-1)
			if vm.Size < 3 {
				vm.Size++
			}
			ctx.Recorder.Record(ctx.Now, "dvfs", "predictive: raised p-state, response time trending up")
		case slope < p.cfg.SlopeLowerThreshold && info.PStateActive < cluster.P3:
			ctx.Fleet.SetCorePerformance(vm.Machine, info.PStateActive+1)
			if vm.Size > 0 {
				vm.Size--
			}
			ctx.Recorder.Record(ctx.Now, "dvfs", "predictive: lowered p-state, response time trending down")
		}
	}
}

// consolidate mirrors the greedy strategy's drain step but is gated by
// completion count instead of a standing active-machine floor, matching
// the "periodic consolidation pass" framing of the predictive controller.
func (p *predictivePolicy) consolidate(ctx *Context, cpu cluster.CPUType) {
	sorted := ctx.Index.SortedByUtilization(cpu, placement.ProxyMIPS, p.mipsDemand(ctx, cpu))
	source, ok := leastUtilizedNonEmpty(ctx, sorted)
	if !ok {
		return
	}
	lightest, srcVM, ok := lightestTask(ctx, source)
	if !ok {
		return
	}
	demand := InstructionsPerTick(lightest)
	for i := len(sorted) - 1; i >= 0; i-- {
		dest := sorted[i]
		if dest == source {
			continue
		}
		info, ok := ctx.Fleet.Info(dest)
		if !ok || !info.SState.Running() {
			continue
		}
		if ctx.Shadow.MIPS(dest)+demand > info.MIPS() {
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
		ctx.Recorder.Record(ctx.Now, "migrate", "predictive: consolidated during periodic pass")
		shutdownIfEmpty(ctx, source)
		return
	}
}

func (p *predictivePolicy) mipsDemand(ctx *Context, cpu cluster.CPUType) map[cluster.MachineID]float64 {
	out := make(map[cluster.MachineID]float64)
	for _, id := range ctx.Index.ByCPU(cpu) {
		out[id] = ctx.Shadow.MIPS(id)
	}
	return out
}

func (p *predictivePolicy) Tick(ctx *Context, now int64) {}

// OnSLAWarning immediately raises the offending VM's host to its fastest
// P-state, ahead of the next periodic DVFS sweep.
func (p *predictivePolicy) OnSLAWarning(ctx *Context, task registry.TaskInfo, vm *vmtable.VM) {
	if vm == nil {
		return
	}
	info, ok := ctx.Fleet.Info(vm.Machine)
	if !ok || info.PStateActive == cluster.P0 {
		return
	}
	ctx.Fleet.SetCorePerformance(vm.Machine, cluster.P0)
	ctx.Recorder.Record(ctx.Now, "sla", "predictive: forced p0 in response to sla warning")
}

func (p *predictivePolicy) OnMigrationDone(ctx *Context, vm *vmtable.VM) {}
