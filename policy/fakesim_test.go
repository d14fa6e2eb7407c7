package policy

import (
	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/placement"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/trace"
	"github.com/cloudsched/cloudsched/vmtable"
)

// fakeSim is a synchronous simulator stand-in for policy tests: it
// satisfies cluster.MachineSource, vmtable.Downcalls, and registry.Source
// without ever scheduling a follow-up event — tests drive every step by
// calling policy methods directly, so nothing here needs to fire
// StateChangeComplete/MigrationDone on its own.
type fakeSim struct {
	machines []cluster.MachineInfo
	tasks    map[registry.TaskID]registry.TaskInfo
	nextVM   vmtable.VMID
	vmMachine map[vmtable.VMID]cluster.MachineID
}

func newFakeSim(machines []cluster.MachineInfo, tasks []registry.TaskInfo) *fakeSim {
	s := &fakeSim{
		machines:  machines,
		tasks:     make(map[registry.TaskID]registry.TaskInfo, len(tasks)),
		vmMachine: make(map[vmtable.VMID]cluster.MachineID),
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *fakeSim) GetMachineTotal() int { return len(s.machines) }

func (s *fakeSim) GetMachineInfo(id cluster.MachineID) cluster.MachineInfo { return s.machines[id] }

func (s *fakeSim) SetMachineState(id cluster.MachineID, state cluster.MachineState) {
	s.machines[id].SState = state
}

func (s *fakeSim) SetCorePerformance(id cluster.MachineID, core int, pstate cluster.PState) {
	s.machines[id].PStateActive = pstate
}

func (s *fakeSim) GetMachineEnergy(id cluster.MachineID) uint64 { return s.machines[id].Energy }

func (s *fakeSim) GetClusterEnergy() uint64 {
	var total uint64
	for _, m := range s.machines {
		total += m.Energy
	}
	return total
}

func (s *fakeSim) GetNumTasks() int { return len(s.tasks) }

func (s *fakeSim) GetTaskInfo(id registry.TaskID) registry.TaskInfo { return s.tasks[id] }

func (s *fakeSim) IsSLAViolation(id registry.TaskID) bool { return false }

func (s *fakeSim) IsTaskCompleted(id registry.TaskID) bool { return s.tasks[id].Completed }

func (s *fakeSim) CreateVM(os registry.VMType, cpu cluster.CPUType) vmtable.VMID {
	id := s.nextVM
	s.nextVM++
	return id
}

func (s *fakeSim) AttachVM(v vmtable.VMID, m cluster.MachineID) { s.vmMachine[v] = m }

func (s *fakeSim) AddTask(v vmtable.VMID, t registry.TaskID, priority vmtable.Priority) {
	m := s.vmMachine[v]
	s.machines[m].MemoryUsed += s.tasks[t].RequiredMemory
}

func (s *fakeSim) RemoveTask(v vmtable.VMID, t registry.TaskID) {
	m := s.vmMachine[v]
	if s.machines[m].MemoryUsed >= s.tasks[t].RequiredMemory {
		s.machines[m].MemoryUsed -= s.tasks[t].RequiredMemory
	}
}

func (s *fakeSim) MigrateVM(v vmtable.VMID, m cluster.MachineID) { s.vmMachine[v] = m }

func (s *fakeSim) ShutdownVM(v vmtable.VMID) { delete(s.vmMachine, v) }

// testContext builds a fully wired Context around a fakeSim, matching what
// engine.context(now) assembles in production.
func testContext(sim *fakeSim, cfg Config) *Context {
	fleet := cluster.NewFleet(sim)
	return &Context{
		Fleet:    fleet,
		Index:    placement.NewIndex(fleet),
		VMs:      vmtable.New(sim),
		Tasks:    registry.New(sim),
		Recorder: trace.NewRecorder(),
		Pending:  NewPendingQueue(),
		Shadow:   NewShadowCounters(),
		Config:   cfg,
	}
}
