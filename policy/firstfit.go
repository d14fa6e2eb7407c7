package policy

import (
	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/placement"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// firstFitPolicy is the First-fit-with-OS-spread strategy (§4.5): eagerly
// create one VM per (supported guest OS, machine) pair at Init, then place
// each task on the lowest-id compatible running machine that has room,
// preferring a machine that does not already host a VM of a different
// guest OS — spreading OS families across machines rather than packing
// them densely, trading consolidation for guest isolation. Grounded on the
// simplest first-fit assignment in sim/scheduler.go, extended with the
// OS-affinity tie-break the source's IsMachineSuitable never needed
// because it only ever created LINUX VMs.
type firstFitPolicy struct {
	cfg   Config
	vmFor map[cluster.MachineID]map[registry.VMType]*vmtable.VM
}

func newFirstFitPolicy(cfg Config) *firstFitPolicy {
	return &firstFitPolicy{cfg: cfg, vmFor: make(map[cluster.MachineID]map[registry.VMType]*vmtable.VM)}
}

func (p *firstFitPolicy) Name() string { return "firstfit" }

func (p *firstFitPolicy) UtilizationProxy() placement.UtilizationProxy { return placement.ProxyMemory }

// everyGuestOS enumerates VMType for Init's eager-creation sweep.
var everyGuestOS = [...]registry.VMType{registry.LINUX, registry.LINUX_RT, registry.WIN, registry.AIX}

// Init eagerly creates one VM per (supported guest OS, machine) pair,
// attaching it immediately on machines already running (§4.5). Machines
// still asleep get detached VMs that Place attaches on demand.
func (p *firstFitPolicy) Init(ctx *Context) error {
	for _, id := range ctx.Fleet.Machines() {
		info, ok := ctx.Fleet.Info(id)
		if !ok {
			continue
		}
		byOS := make(map[registry.VMType]*vmtable.VM)
		for _, os := range everyGuestOS {
			if !registry.LegalPairing(os, info.CPU) {
				continue
			}
			vm, err := ctx.VMs.Create(os, info.CPU)
			if err != nil {
				return err
			}
			if info.SState.Running() {
				if err := ctx.VMs.Attach(vm, id, info); err != nil {
					return err
				}
			}
			byOS[os] = vm
		}
		p.vmFor[id] = byOS
	}
	return nil
}

// vmForMachine returns the VM Init eagerly created for (machine, os),
// recreating one if it was since torn down or Init never ran (defensive;
// every legal pairing is covered by Init).
func (p *firstFitPolicy) vmForMachine(ctx *Context, id cluster.MachineID, os registry.VMType, cpu cluster.CPUType) (*vmtable.VM, error) {
	if byOS, ok := p.vmFor[id]; ok {
		if vm, ok := byOS[os]; ok && ctx.VMs.Get(vm.ID) != nil {
			return vm, nil
		}
	}
	if !registry.LegalPairing(os, cpu) {
		return nil, nil
	}
	vm, err := ctx.VMs.Create(os, cpu)
	if err != nil {
		return nil, err
	}
	if p.vmFor[id] == nil {
		p.vmFor[id] = make(map[registry.VMType]*vmtable.VM)
	}
	p.vmFor[id][os] = vm
	return vm, nil
}

func (p *firstFitPolicy) Place(ctx *Context, task registry.TaskInfo) (Result, error) {
	priority := derivePriority(p.cfg, task)
	candidates := ctx.Index.ByCPU(task.RequiredCPU)

	// First pass: a running machine with room that hosts no VM of a
	// different guest OS (a fresh machine or one already running this OS).
	if res, ok, err := p.tryPlace(ctx, candidates, task, priority, true); err != nil {
		return Result{}, err
	} else if ok {
		return res, nil
	}
	// Second pass: relax the OS-spread preference, any running machine
	// with room and a matching-OS VM (or room to create one) will do.
	if res, ok, err := p.tryPlace(ctx, candidates, task, priority, false); err != nil {
		return Result{}, err
	} else if ok {
		return res, nil
	}

	for _, id := range candidates {
		info, ok := ctx.Fleet.Info(id)
		if !ok || info.SState.Running() {
			continue
		}
		vm, err := p.vmForMachine(ctx, id, task.RequiredOS, task.RequiredCPU)
		if err != nil {
			return Result{}, err
		}
		if vm == nil {
			continue
		}
		ctx.Fleet.RequestState(id, cluster.S0)
		ctx.Pending.Enqueue(PendingAttachment{VM: vm, Machine: id, Task: task.ID, Priority: priority})
		ctx.Recorder.Record(ctx.Now, "place", "firstfit: woke machine, no running candidate had room")
		return Result{Outcome: Deferred, VM: vm, Machine: id, Priority: priority}, nil
	}
	return Result{Outcome: Unplaceable}, nil
}

func (p *firstFitPolicy) tryPlace(ctx *Context, candidates []cluster.MachineID, task registry.TaskInfo, priority vmtable.Priority, requireOSSpread bool) (Result, bool, error) {
	for _, id := range candidates {
		info, ok := ctx.Fleet.Info(id)
		if !ok || !info.SState.Running() {
			continue
		}
		if info.MemoryUsed+task.RequiredMemory > info.MemoryCap {
			continue
		}
		if requireOSSpread && hostsOtherOS(ctx, id, task.RequiredOS) {
			continue
		}
		vm, err := p.vmForMachine(ctx, id, task.RequiredOS, task.RequiredCPU)
		if err != nil {
			return Result{}, false, err
		}
		if vm == nil {
			continue
		}
		if !vm.Attached {
			if err := ctx.AttachAndAdmit(vm, id, task, priority); err != nil {
				return Result{}, false, err
			}
		} else if err := ctx.AdmitExisting(vm, task, priority); err != nil {
			return Result{}, false, err
		}
		ctx.Recorder.Record(ctx.Now, "place", "firstfit: admitted")
		return Result{Outcome: Placed, VM: vm, Machine: id, Priority: priority}, true, nil
	}
	return Result{}, false, nil
}

func hostsOtherOS(ctx *Context, m cluster.MachineID, os registry.VMType) bool {
	for _, vm := range ctx.VMs.OnMachine(m) {
		if vm.OS != os {
			return true
		}
	}
	return false
}

func (p *firstFitPolicy) OnComplete(ctx *Context, task registry.TaskInfo, vm *vmtable.VM) {
	if vm == nil || len(vm.ActiveTasks) > 0 {
		return
	}
	if err := ctx.VMs.Shutdown(vm); err == nil {
		shutdownIfEmpty(ctx, vm.Machine)
	}
}

func (p *firstFitPolicy) Tick(ctx *Context, now int64) {}

func (p *firstFitPolicy) OnSLAWarning(ctx *Context, task registry.TaskInfo, vm *vmtable.VM) {
	ctx.Recorder.Record(ctx.Now, "sla", "firstfit: no proactive migration for this strategy")
}

func (p *firstFitPolicy) OnMigrationDone(ctx *Context, vm *vmtable.VM) {}
