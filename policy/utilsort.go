package policy

import (
	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/placement"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// utilSortPolicy is the Sort-by-utilization-with-DVFS strategy (§4.5):
// always place on the least-utilized compatible running machine, and
// proactively migrate a VM off any machine whose utilization crosses
// MigrateThreshold onto the least-utilized running machine whose
// utilization is at least MigrateHeadroom below the source's. Utilization
// here is memory utilization only; MIPS commitments are not considered.
// Follows the utilization-sorted
// worker selection in sim/routing.go's least-loaded routing, extended
// with a VM-level Migrate/MigrationDone handshake instead of instant
// request reassignment.
type utilSortPolicy struct {
	cfg Config
}

func newUtilSortPolicy(cfg Config) *utilSortPolicy { return &utilSortPolicy{cfg: cfg} }

func (p *utilSortPolicy) Name() string { return "utilsort" }

func (p *utilSortPolicy) UtilizationProxy() placement.UtilizationProxy { return placement.ProxyMemory }

func (p *utilSortPolicy) Init(ctx *Context) error { return nil }

func (p *utilSortPolicy) Place(ctx *Context, task registry.TaskInfo) (Result, error) {
	priority := derivePriority(p.cfg, task)
	sorted := ctx.Index.SortedByUtilization(task.RequiredCPU, placement.ProxyMemory, nil)

	for _, id := range sorted {
		info, ok := ctx.Fleet.Info(id)
		if !ok || !info.SState.Running() {
			continue
		}
		if info.MemoryUsed+task.RequiredMemory > info.MemoryCap {
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

	// No running machine had room: wake the sleeping machine that has
	// consumed the least energy so far, spreading wake cycles across the
	// fleet instead of always reaching for the same low-id machine.
	for _, id := range ctx.Index.SortedByEnergy(task.RequiredCPU) {
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

// OnComplete shuts the VM down and, if that drains its host to zero load,
// powers the machine off (§4.5: "power off machines that drop to zero
// load"). Otherwise it re-checks the machine the just-finished task ran
// on: if it's now under MigrateThreshold nothing to do, but if it's still
// over and a less-loaded destination exists with room, migrate the VM
// wholesale.
func (p *utilSortPolicy) OnComplete(ctx *Context, task registry.TaskInfo, vm *vmtable.VM) {
	if vm == nil || !vm.Attached {
		return
	}
	if len(vm.ActiveTasks) == 0 {
		if err := ctx.VMs.Shutdown(vm); err == nil {
			shutdownIfEmpty(ctx, vm.Machine)
			return
		}
	}
	p.maybeMigrate(ctx, vm)
}

func (p *utilSortPolicy) Tick(ctx *Context, now int64) {
	for _, vm := range ctx.VMs.All() {
		if vm.Attached && !vm.Migrating {
			p.maybeMigrate(ctx, vm)
		}
	}
}

func (p *utilSortPolicy) maybeMigrate(ctx *Context, vm *vmtable.VM) {
	info, ok := ctx.Fleet.Info(vm.Machine)
	if !ok {
		return
	}
	util := placement.Utilization(info, placement.ProxyMemory, 0)
	if util < p.cfg.MigrateThreshold {
		return
	}
	sorted := ctx.Index.SortedByUtilization(vm.CPU, placement.ProxyMemory, nil)
	for _, dest := range sorted {
		if dest == vm.Machine {
			continue
		}
		destInfo, ok := ctx.Fleet.Info(dest)
		if !ok || !destInfo.SState.Running() {
			continue
		}
		destUtil := placement.Utilization(destInfo, placement.ProxyMemory, 0)
		if util-destUtil < p.cfg.MigrateHeadroom {
			continue
		}
		if err := ctx.VMs.Migrate(vm, dest, destInfo); err != nil {
			continue
		}
		ctx.Recorder.Record(ctx.Now, "migrate", "utilsort: migrating overloaded vm to less-utilized machine")
		return
	}
}

func (p *utilSortPolicy) OnSLAWarning(ctx *Context, task registry.TaskInfo, vm *vmtable.VM) {
	if vm == nil {
		return
	}
	p.maybeMigrate(ctx, vm)
}

// OnMigrationDone requests the destination machine's fastest P-state for a
// freshly landed VM. This strategy never lowers the P-state again.
func (p *utilSortPolicy) OnMigrationDone(ctx *Context, vm *vmtable.VM) {
	ctx.Fleet.SetCorePerformance(vm.Machine, cluster.P0)
	ctx.Recorder.Record(ctx.Now, "dvfs", "utilsort: p0 after migration settle")
}
