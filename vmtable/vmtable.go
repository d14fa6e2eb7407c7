// Package vmtable owns VM ownership and lifecycle: each VM is pinned to at
// most one machine, has a fixed (OS, CPU) type, and tracks its active task
// set and per-VM statistics (§4.3).
package vmtable

import (
	"fmt"

	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/errs"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/trace"
)

// VMID identifies a VM. Assigned by the simulator on Create.
type VMID int

// Priority is the scheduling priority a task is admitted with.
type Priority int

const (
	HIGH Priority = iota
	MID
	LOW
)

func (p Priority) String() string {
	names := [...]string{"HIGH", "MID", "LOW"}
	if int(p) < 0 || int(p) >= len(names) {
		return "Priority(?)"
	}
	return names[p]
}

// PriorityFor derives priority from SLA class per §4.3: SLA0 → HIGH,
// SLA1 → MID, SLA2/SLA3 → LOW.
func PriorityFor(sla registry.SLAType) Priority {
	switch sla {
	case registry.SLA0:
		return HIGH
	case registry.SLA1:
		return MID
	default:
		return LOW
	}
}

// VM is the engine's view of a virtual machine.
type VM struct {
	ID          VMID
	OS          registry.VMType
	CPU         cluster.CPUType
	Machine     cluster.MachineID
	Attached    bool
	Migrating   bool
	MigratingTo cluster.MachineID
	ActiveTasks map[registry.TaskID]struct{}
	Size        int // 0..3, maps to a PState hint on the host's cores
	RTWindow    *trace.Window
}

func newVM(id VMID, os registry.VMType, cpu cluster.CPUType) *VM {
	return &VM{
		ID:          id,
		OS:          os,
		CPU:         cpu,
		ActiveTasks: make(map[registry.TaskID]struct{}),
		RTWindow:    trace.NewWindow(),
	}
}

// Downcalls is the subset of the simulator surface the VM Table needs.
type Downcalls interface {
	CreateVM(os registry.VMType, cpu cluster.CPUType) VMID
	AttachVM(v VMID, m cluster.MachineID)
	AddTask(v VMID, t registry.TaskID, priority Priority)
	RemoveTask(v VMID, t registry.TaskID)
	MigrateVM(v VMID, m cluster.MachineID)
	ShutdownVM(v VMID)
}

// Table tracks every VM the engine has created.
type Table struct {
	sim Downcalls
	vms map[VMID]*VM
}

// New returns an empty VM table bound to a downcall surface.
func New(sim Downcalls) *Table {
	return &Table{sim: sim, vms: make(map[VMID]*VM)}
}

// Get returns a VM by ID, or nil if unknown.
func (t *Table) Get(id VMID) *VM { return t.vms[id] }

// All returns every tracked VM, no particular order guaranteed.
func (t *Table) All() []*VM {
	out := make([]*VM, 0, len(t.vms))
	for _, v := range t.vms {
		out = append(out, v)
	}
	return out
}

// Create allocates a detached VM. Fails if (os, cpu) is not a legal
// pairing (§4.3).
func (t *Table) Create(os registry.VMType, cpu cluster.CPUType) (*VM, error) {
	if !registry.LegalPairing(os, cpu) {
		return nil, fmt.Errorf("%w: illegal (os=%s, cpu=%s) pairing", errs.ErrPrecondition, os, cpu)
	}
	id := t.sim.CreateVM(os, cpu)
	vm := newVM(id, os, cpu)
	t.vms[id] = vm
	return vm, nil
}

// Attach binds a detached VM to a machine. Pre: v detached, m in S0,
// v.CPU == machine CPU (§4.3). On violation returns errs.ErrPrecondition; the
// caller (Event Adapter) is responsible for queuing a pending attachment.
func (t *Table) Attach(v *VM, m cluster.MachineID, machineInfo cluster.MachineInfo) error {
	if v.Attached {
		return fmt.Errorf("%w: vm %d already attached", errs.ErrPrecondition, v.ID)
	}
	if !machineInfo.SState.Running() {
		return fmt.Errorf("%w: machine %d not in S0", errs.ErrPrecondition, m)
	}
	if v.CPU != machineInfo.CPU {
		return fmt.Errorf("%w: vm %d cpu %s != machine %d cpu %s", errs.ErrPrecondition, v.ID, v.CPU, m, machineInfo.CPU)
	}
	t.sim.AttachVM(v.ID, m)
	v.Machine = m
	v.Attached = true
	return nil
}

// AddTask admits a task onto an attached, non-migrating VM with sufficient
// free memory (§4.3). priority is derived from the task's SLA class unless
// the caller overrides it.
func (t *Table) AddTask(v *VM, task registry.TaskInfo, machineInfo cluster.MachineInfo, priority Priority) error {
	switch {
	case !v.Attached:
		return fmt.Errorf("%w: vm %d not attached", errs.ErrPrecondition, v.ID)
	case v.Migrating:
		return fmt.Errorf("%w: vm %d is migrating", errs.ErrPrecondition, v.ID)
	case !machineInfo.SState.Running():
		return fmt.Errorf("%w: machine %d not in S0", errs.ErrPrecondition, v.Machine)
	case task.RequiredCPU != v.CPU:
		return fmt.Errorf("%w: task %d cpu %s != vm %d cpu %s", errs.ErrPrecondition, task.ID, task.RequiredCPU, v.ID, v.CPU)
	case task.RequiredOS != v.OS:
		return fmt.Errorf("%w: task %d os %s != vm %d os %s", errs.ErrPrecondition, task.ID, task.RequiredOS, v.ID, v.OS)
	case machineInfo.MemoryUsed+task.RequiredMemory > machineInfo.MemoryCap:
		return fmt.Errorf("%w: task %d needs %d bytes, machine %d has %d free", errs.ErrCapacityExhausted, task.ID, task.RequiredMemory, v.Machine, machineInfo.FreeMemory())
	}
	t.sim.AddTask(v.ID, task.ID, priority)
	v.ActiveTasks[task.ID] = struct{}{}
	return nil
}

// RemoveTask takes a task off a VM. Used only during task-level migration;
// the task moves to another VM atomically from the simulator's perspective.
func (t *Table) RemoveTask(v *VM, task registry.TaskID) error {
	if _, ok := v.ActiveTasks[task]; !ok {
		return fmt.Errorf("%w: task %d not on vm %d", errs.ErrPrecondition, task, v.ID)
	}
	t.sim.RemoveTask(v.ID, task)
	delete(v.ActiveTasks, task)
	return nil
}

// Migrate begins migrating a VM to another machine. Pre: destination in
// S0, CPU compatible, VM not already migrating (§4.3). Sets v.Migrating;
// the caller must wait for MigrationDone before treating the VM as bound
// to its new machine.
func (t *Table) Migrate(v *VM, dest cluster.MachineID, destInfo cluster.MachineInfo) error {
	switch {
	case v.Migrating:
		return fmt.Errorf("%w: vm %d already migrating", errs.ErrPrecondition, v.ID)
	case !destInfo.SState.Running():
		return fmt.Errorf("%w: destination machine %d not in S0", errs.ErrPrecondition, dest)
	case v.CPU != destInfo.CPU:
		return fmt.Errorf("%w: vm %d cpu %s != destination cpu %s", errs.ErrPrecondition, v.ID, v.CPU, destInfo.CPU)
	}
	t.sim.MigrateVM(v.ID, dest)
	v.Migrating = true
	v.MigratingTo = dest
	return nil
}

// CompleteMigration is invoked by the Event Adapter on MigrationDone: it
// clears the migrating flag and rebinds the VM to the destination recorded
// by Migrate.
func (t *Table) CompleteMigration(v *VM) {
	v.Migrating = false
	v.Machine = v.MigratingTo
}

// AbortMigration clears the migrating flag, leaving the VM bound to its
// source machine (§4.5 failure semantics). Nothing in the engine or the
// policies calls it; Migrate rejects a non-S0 or CPU-mismatched
// destination before issuing the downcall.
func (t *Table) AbortMigration(v *VM) {
	v.Migrating = false
}

// Shutdown tears down a VM. Pre: no active tasks (§4.3, invariant 5).
func (t *Table) Shutdown(v *VM) error {
	if len(v.ActiveTasks) > 0 {
		return fmt.Errorf("%w: vm %d has %d active tasks", errs.ErrPrecondition, v.ID, len(v.ActiveTasks))
	}
	if v.Migrating {
		return fmt.Errorf("%w: vm %d is migrating", errs.ErrPrecondition, v.ID)
	}
	t.sim.ShutdownVM(v.ID)
	delete(t.vms, v.ID)
	return nil
}

// OnMachine returns every VM currently attached to a machine.
func (t *Table) OnMachine(m cluster.MachineID) []*VM {
	var out []*VM
	for _, v := range t.vms {
		if v.Attached && v.Machine == m {
			out = append(out, v)
		}
	}
	return out
}
