// Package enginetest provides a deterministic, in-memory Simulator
// implementation used by the engine tests and by the reference CLI driver
// (the policy package's tests use their own in-package fake). It follows the cluster.InstanceSimulator/EventHeap pairing in
// sim/cluster/simulator.go and sim/cluster/event_heap.go, which plays the
// same "own every piece of state, drive it through a deterministic event
// queue" role for LLM-inference requests that this package plays here for
// tasks, machines, and VMs.
package enginetest

import (
	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// stateChangeDelayTicks and migrationDelayTicks are the fixed durations
// this harness takes to honor an S-state or migration request. A real
// simulator would derive these from hardware models; this one just needs
// to be deterministic and non-instant so pending-attachment logic has
// something to wait on.
const (
	stateChangeDelayTicks = 50
	migrationDelayTicks   = 200
)

// MachineSpec is the static description of one machine, independent of
// runtime state (memory used, current S/P-state).
type MachineSpec struct {
	CPU       cluster.CPUType
	Cores     int
	MemoryCap uint64
	GPU       bool
	MIPS      cluster.PStateTable
	Power     cluster.SStatePower
}

type vmState struct {
	id        vmtable.VMID
	os        registry.VMType
	cpu       cluster.CPUType
	machine   cluster.MachineID
	migrateTo cluster.MachineID
}

type taskState struct {
	info registry.TaskInfo
}

// FakeSimulator is a self-contained downcall target: it tracks machine
// occupancy, VM-to-machine bindings, and task completion state, and
// schedules its own follow-up events (task completion, state-change
// completion, migration completion, SLA-risk warnings) onto the bound
// Driver's event queue. It never calls back into the engine directly —
// only the Driver dispatches upcalls, matching the "simulator drives, engine
// reacts" contract (§4.4).
type FakeSimulator struct {
	driver *Driver
	now    int64

	machines []cluster.MachineInfo
	vms      map[vmtable.VMID]*vmState
	tasks    map[registry.TaskID]*taskState
	nextVM   vmtable.VMID
}

// NewFakeSimulator builds the initial machine snapshot from specs and the
// task registry from the given task list. Every machine starts at S0/P0
// with zero memory used and zero energy.
func NewFakeSimulator(specs []MachineSpec, tasks []registry.TaskInfo) *FakeSimulator {
	sim := &FakeSimulator{
		machines: make([]cluster.MachineInfo, len(specs)),
		vms:      make(map[vmtable.VMID]*vmState),
		tasks:    make(map[registry.TaskID]*taskState, len(tasks)),
	}
	for i, spec := range specs {
		sim.machines[i] = cluster.MachineInfo{
			ID:           cluster.MachineID(i),
			CPU:          spec.CPU,
			NumCores:     spec.Cores,
			MemoryCap:    spec.MemoryCap,
			GPU:          spec.GPU,
			PStates:      spec.MIPS,
			SStates:      spec.Power,
			SState:       cluster.S0,
			PStateActive: cluster.P0,
		}
	}
	for _, t := range tasks {
		sim.tasks[t.ID] = &taskState{info: t}
	}
	return sim
}

func (s *FakeSimulator) bindDriver(d *Driver) { s.driver = d }

// --- cluster.MachineSource ---

func (s *FakeSimulator) GetMachineTotal() int { return len(s.machines) }

func (s *FakeSimulator) GetMachineInfo(id cluster.MachineID) cluster.MachineInfo {
	if int(id) < 0 || int(id) >= len(s.machines) {
		return cluster.MachineInfo{}
	}
	return s.machines[id]
}

func (s *FakeSimulator) SetMachineState(id cluster.MachineID, state cluster.MachineState) {
	if int(id) < 0 || int(id) >= len(s.machines) {
		return
	}
	s.machines[id].SState = state
	s.driver.scheduleMachine(stateChangeDelayTicks, evStateChangeComplete, id)
}

func (s *FakeSimulator) SetCorePerformance(id cluster.MachineID, core int, pstate cluster.PState) {
	if int(id) < 0 || int(id) >= len(s.machines) {
		return
	}
	s.machines[id].PStateActive = pstate
}

func (s *FakeSimulator) GetMachineEnergy(id cluster.MachineID) uint64 {
	if int(id) < 0 || int(id) >= len(s.machines) {
		return 0
	}
	return s.machines[id].Energy
}

func (s *FakeSimulator) GetClusterEnergy() uint64 {
	var total uint64
	for _, m := range s.machines {
		total += m.Energy
	}
	return total
}

// --- registry.Source ---

func (s *FakeSimulator) GetNumTasks() int { return len(s.tasks) }

func (s *FakeSimulator) GetTaskInfo(id registry.TaskID) registry.TaskInfo {
	if t, ok := s.tasks[id]; ok {
		return t.info
	}
	return registry.TaskInfo{}
}

func (s *FakeSimulator) IsSLAViolation(id registry.TaskID) bool {
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	if t.info.Completed {
		return t.info.CurrentCompletionAt > t.info.TargetCompletion
	}
	return s.now > t.info.TargetCompletion
}

func (s *FakeSimulator) IsTaskCompleted(id registry.TaskID) bool {
	t, ok := s.tasks[id]
	return ok && t.info.Completed
}

// --- vmtable.Downcalls ---

func (s *FakeSimulator) CreateVM(os registry.VMType, cpu cluster.CPUType) vmtable.VMID {
	id := s.nextVM
	s.nextVM++
	s.vms[id] = &vmState{id: id, os: os, cpu: cpu}
	return id
}

func (s *FakeSimulator) AttachVM(v vmtable.VMID, m cluster.MachineID) {
	if vs, ok := s.vms[v]; ok {
		vs.machine = m
	}
}

func (s *FakeSimulator) AddTask(v vmtable.VMID, t registry.TaskID, priority vmtable.Priority) {
	vs, ok := s.vms[v]
	task, tok := s.tasks[t]
	if !ok || !tok {
		return
	}
	machine := &s.machines[vs.machine]
	machine.MemoryUsed += task.info.RequiredMemory

	duration := estimateDuration(task.info, *machine)
	s.driver.scheduleTask(duration, evTaskCompletion, t)

	completesAt := s.now + duration
	if completesAt > task.info.TargetCompletion {
		warnDelay := duration / 2
		if warnDelay < 1 {
			warnDelay = 1
		}
		s.driver.scheduleTask(warnDelay, evSLAWarning, t)
	}
}

func (s *FakeSimulator) RemoveTask(v vmtable.VMID, t registry.TaskID) {
	vs, ok := s.vms[v]
	task, tok := s.tasks[t]
	if !ok || !tok {
		return
	}
	machine := &s.machines[vs.machine]
	if machine.MemoryUsed >= task.info.RequiredMemory {
		machine.MemoryUsed -= task.info.RequiredMemory
	} else {
		machine.MemoryUsed = 0
	}
	// The completion event already scheduled by AddTask still fires on its
	// original timeline; this harness approximates a moved task as
	// continuing to completion rather than modeling partial progress.
}

func (s *FakeSimulator) MigrateVM(v vmtable.VMID, m cluster.MachineID) {
	vs, ok := s.vms[v]
	if !ok {
		return
	}
	vs.migrateTo = m
	s.driver.scheduleVM(migrationDelayTicks, evMigrationDone, v)
}

func (s *FakeSimulator) ShutdownVM(v vmtable.VMID) {
	delete(s.vms, v)
}

func (s *FakeSimulator) completeMigration(v vmtable.VMID) {
	vs, ok := s.vms[v]
	if !ok {
		return
	}
	vs.machine = vs.migrateTo
}

func (s *FakeSimulator) completeTask(id registry.TaskID) {
	t, ok := s.tasks[id]
	if !ok {
		return
	}
	t.info.Completed = true
	t.info.CurrentCompletionAt = s.now
}

// estimateDuration converts a task's instruction count into a tick count
// at the machine's currently active P-state, floored at one tick.
func estimateDuration(task registry.TaskInfo, machine cluster.MachineInfo) int64 {
	mips := machine.PStates[machine.PStateActive]
	if mips <= 0 {
		mips = 1
	}
	ticks := int64(float64(task.TotalInstructions) / mips)
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}
