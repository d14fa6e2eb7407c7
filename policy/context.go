// Package policy implements the Policy Engine (§4.5): the decision core
// that drives placement, migration, tier transitions, and DVFS. A Policy
// is a capability installed once at construction (§9); five concrete
// strategies are provided.
package policy

import (
	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/placement"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/trace"
	"github.com/cloudsched/cloudsched/vmtable"
)

// PendingAttachment is a deferred (VM, machine, task, priority) tuple
// awaiting StateChangeComplete for the machine (§9 glossary). Recorded
// when a policy wakes a sleeping machine to host a task it cannot place
// immediately.
type PendingAttachment struct {
	VM       *vmtable.VM
	Machine  cluster.MachineID
	Task     registry.TaskID
	Priority vmtable.Priority
	// AttachOnly is set when the wake-up has no specific task riding along
	// (e.g. the tier policy pre-warming a VM on an activated machine) — the
	// Event Adapter attaches the VM without an AddTask call.
	AttachOnly bool
}

// PendingQueue holds pending attachments keyed by the machine they're
// waiting on. Owned by the Event Adapter, drained on StateChangeComplete.
type PendingQueue struct {
	byMachine map[cluster.MachineID][]PendingAttachment
}

// NewPendingQueue returns an empty pending-attachment queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{byMachine: make(map[cluster.MachineID][]PendingAttachment)}
}

// Enqueue defers an attachment until the machine reaches S0.
func (q *PendingQueue) Enqueue(p PendingAttachment) {
	q.byMachine[p.Machine] = append(q.byMachine[p.Machine], p)
}

// Drain removes and returns every pending attachment queued for a
// machine, in FIFO order.
func (q *PendingQueue) Drain(m cluster.MachineID) []PendingAttachment {
	items := q.byMachine[m]
	delete(q.byMachine, m)
	return items
}

// ShadowCounters mirrors the simulator's per-machine memory and MIPS
// commitments so policies can reason about capacity without round-
// tripping through the simulator on every decision (§5). The simulator's
// own MachineInfo remains the ground truth used for validation.
type ShadowCounters struct {
	memory map[cluster.MachineID]uint64
	mips   map[cluster.MachineID]float64
}

// NewShadowCounters returns an empty set of shadow counters.
func NewShadowCounters() *ShadowCounters {
	return &ShadowCounters{memory: make(map[cluster.MachineID]uint64), mips: make(map[cluster.MachineID]float64)}
}

// Memory returns the memory this engine believes is reserved on a machine.
func (s *ShadowCounters) Memory(m cluster.MachineID) uint64 { return s.memory[m] }

// MIPS returns the MIPS this engine believes is committed on a machine.
func (s *ShadowCounters) MIPS(m cluster.MachineID) float64 { return s.mips[m] }

func (s *ShadowCounters) addMemory(m cluster.MachineID, delta uint64) { s.memory[m] += delta }

func (s *ShadowCounters) subMemory(m cluster.MachineID, delta uint64) {
	if s.memory[m] < delta {
		s.memory[m] = 0
		return
	}
	s.memory[m] -= delta
}

func (s *ShadowCounters) addMIPS(m cluster.MachineID, delta float64) { s.mips[m] += delta }
func (s *ShadowCounters) subMIPS(m cluster.MachineID, delta float64) {
	s.mips[m] -= delta
	if s.mips[m] < 0 {
		s.mips[m] = 0
	}
}

// Context bundles every collaborator a Policy needs, refreshed by the
// Event Adapter before each call. Policies never talk to the simulator
// directly — only through Context's helpers, so bookkeeping (shadow
// counters, pending attachments) stays consistent across strategies.
type Context struct {
	Fleet    *cluster.Fleet
	Index    *placement.Index
	VMs      *vmtable.Table
	Tasks    *registry.Registry
	Recorder *trace.Recorder
	Pending  *PendingQueue
	Shadow   *ShadowCounters
	Config   Config
	Now      int64
}

// InstructionsPerTick estimates MIPS demand for a task: total instructions
// divided by the slack between arrival and target completion. Used by the
// MIPS-utilization-proxy policies to commit a MIPS estimate at admission
// time (the simulator's true consumption model lives outside this engine).
func InstructionsPerTick(task registry.TaskInfo) float64 {
	slack := task.TargetCompletion - task.ArrivalTime
	if slack <= 0 {
		return float64(task.TotalInstructions)
	}
	return float64(task.TotalInstructions) / float64(slack)
}

// AdmitExisting places a task onto an already-attached VM: adds the task
// via the VM Table and updates shadow counters and the fleet cache in
// lockstep. Returns errs.ErrPrecondition / errs.ErrCapacityExhausted on
// failure, unchanged.
func (c *Context) AdmitExisting(vm *vmtable.VM, task registry.TaskInfo, priority vmtable.Priority) error {
	info, ok := c.Fleet.Info(vm.Machine)
	if !ok {
		info = c.Fleet.Refresh(vm.Machine)
	}
	if err := c.VMs.AddTask(vm, task, info, priority); err != nil {
		return err
	}
	c.Shadow.addMemory(vm.Machine, task.RequiredMemory)
	c.Shadow.addMIPS(vm.Machine, InstructionsPerTick(task))
	c.Fleet.Refresh(vm.Machine)
	return nil
}

// Evict removes a task from a VM and reverses the shadow accounting.
func (c *Context) Evict(vm *vmtable.VM, task registry.TaskInfo) error {
	if err := c.VMs.RemoveTask(vm, task.ID); err != nil {
		return err
	}
	c.Shadow.subMemory(vm.Machine, task.RequiredMemory)
	c.Shadow.subMIPS(vm.Machine, InstructionsPerTick(task))
	c.Fleet.Refresh(vm.Machine)
	return nil
}

// CompleteTask reconciles bookkeeping after the simulator reports a task
// finished on its own: unlike Evict, it issues no RemoveTask downcall
// (the simulator has already retired the task) but still reverses the
// shadow counters and refreshes the fleet cache.
func (c *Context) CompleteTask(vm *vmtable.VM, task registry.TaskInfo) {
	if vm == nil {
		return
	}
	vm.RTWindow.Add(float64(task.CurrentCompletionAt - task.ArrivalTime))
	delete(vm.ActiveTasks, task.ID)
	c.Shadow.subMemory(vm.Machine, task.RequiredMemory)
	c.Shadow.subMIPS(vm.Machine, InstructionsPerTick(task))
	c.Fleet.Refresh(vm.Machine)
}

// AttachAndAdmit attaches a detached VM to a running machine and admits a
// task onto it in one step — the common case once a candidate machine and
// VM have been chosen.
func (c *Context) AttachAndAdmit(vm *vmtable.VM, machine cluster.MachineID, task registry.TaskInfo, priority vmtable.Priority) error {
	info, ok := c.Fleet.Info(machine)
	if !ok {
		info = c.Fleet.Refresh(machine)
	}
	if err := c.VMs.Attach(vm, machine, info); err != nil {
		return err
	}
	return c.AdmitExisting(vm, task, priority)
}

// CompleteMigration finalizes a whole-VM migration: every active task's
// shadow memory/MIPS commitment moves from the source machine to the
// destination before the VM Table rebinds the VM, keeping both machines'
// shadow counters in lockstep with the simulator's real state.
func (c *Context) CompleteMigration(vm *vmtable.VM) {
	src, dest := vm.Machine, vm.MigratingTo
	for taskID := range vm.ActiveTasks {
		task := c.Tasks.GetTaskInfo(taskID)
		c.Shadow.subMemory(src, task.RequiredMemory)
		c.Shadow.subMIPS(src, InstructionsPerTick(task))
		c.Shadow.addMemory(dest, task.RequiredMemory)
		c.Shadow.addMIPS(dest, InstructionsPerTick(task))
	}
	c.VMs.CompleteMigration(vm)
	c.Fleet.Refresh(src)
	c.Fleet.Refresh(dest)
}

// FindOrCreateVM returns an existing attached VM on the machine matching
// (os, cpu), or creates a fresh detached one. Implements the "prefer
// attached existing VM over creating a new one" tie-break (§4.5).
func (c *Context) FindOrCreateVM(machine cluster.MachineID, os registry.VMType, cpu cluster.CPUType) (*vmtable.VM, bool, error) {
	for _, vm := range c.VMs.OnMachine(machine) {
		if vm.OS == os && vm.CPU == cpu && !vm.Migrating {
			return vm, false, nil
		}
	}
	vm, err := c.VMs.Create(os, cpu)
	if err != nil {
		return nil, false, err
	}
	return vm, true, nil
}
