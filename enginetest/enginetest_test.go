package enginetest

import (
	"container/heap"
	"testing"

	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// TestEstimateDuration tests the instructions-to-ticks conversion and its
// floor-at-one and divide-by-zero guards.
func TestEstimateDuration(t *testing.T) {
	machine := cluster.MachineInfo{PStates: cluster.PStateTable{100, 50, 25, 10}, PStateActive: cluster.P0}
	task := registry.TaskInfo{TotalInstructions: 250}
	if got := estimateDuration(task, machine); got != 2 {
		t.Errorf("estimateDuration = %d, want 2 (250/100)", got)
	}

	tiny := registry.TaskInfo{TotalInstructions: 1}
	if got := estimateDuration(tiny, machine); got != 1 {
		t.Errorf("estimateDuration(tiny) = %d, want floor of 1", got)
	}

	zeroMIPS := cluster.MachineInfo{PStates: cluster.PStateTable{0, 0, 0, 0}, PStateActive: cluster.P0}
	if got := estimateDuration(task, zeroMIPS); got < 1 {
		t.Errorf("estimateDuration with zero-rated P-state = %d, want >= 1 (no divide by zero)", got)
	}
}

// TestFakeSimulator_AddTaskSchedulesCompletionAndSLAWarning tests that
// admitting a task that will miss its deadline schedules both a
// completion event and an SLA-warning event.
func TestFakeSimulator_AddTaskSchedulesCompletionAndSLAWarning(t *testing.T) {
	specs := []MachineSpec{{CPU: cluster.X86, Cores: 1, MemoryCap: 100, MIPS: cluster.PStateTable{10, 5, 2, 1}}}
	task := registry.TaskInfo{ID: 1, RequiredCPU: cluster.X86, RequiredOS: registry.LINUX, RequiredMemory: 10, TotalInstructions: 100, ArrivalTime: 0, TargetCompletion: 5}
	sim := NewFakeSimulator(specs, []registry.TaskInfo{task})
	driver := NewDriver(sim, 100, 0)

	vmID := sim.CreateVM(registry.LINUX, cluster.X86)
	sim.AttachVM(vmID, 0)
	sim.AddTask(vmID, task.ID, vmtable.MID)

	if driver.queue.Len() != 2 {
		t.Fatalf("queue.Len() = %d, want 2 (completion + sla warning)", driver.queue.Len())
	}
	if got := sim.machines[0].MemoryUsed; got != 10 {
		t.Errorf("MemoryUsed = %d, want 10", got)
	}
}

// TestFakeSimulator_AddTaskNoWarningWhenOnTime tests that a task that
// completes within its deadline schedules only the completion event.
func TestFakeSimulator_AddTaskNoWarningWhenOnTime(t *testing.T) {
	specs := []MachineSpec{{CPU: cluster.X86, Cores: 1, MemoryCap: 100, MIPS: cluster.PStateTable{100, 50, 25, 10}}}
	task := registry.TaskInfo{ID: 1, RequiredCPU: cluster.X86, RequiredOS: registry.LINUX, RequiredMemory: 10, TotalInstructions: 100, ArrivalTime: 0, TargetCompletion: 1000}
	sim := NewFakeSimulator(specs, []registry.TaskInfo{task})
	driver := NewDriver(sim, 1000, 0)

	vmID := sim.CreateVM(registry.LINUX, cluster.X86)
	sim.AttachVM(vmID, 0)
	sim.AddTask(vmID, task.ID, vmtable.MID)

	if driver.queue.Len() != 1 {
		t.Fatalf("queue.Len() = %d, want 1 (completion only, no sla risk)", driver.queue.Len())
	}
}

// TestDriver_DeterministicOrdering tests that same-tick events fire in
// event-type-priority order regardless of push order.
func TestDriver_DeterministicOrdering(t *testing.T) {
	sim := NewFakeSimulator(nil, nil)
	d := NewDriver(sim, 0, 0)

	d.push(event{at: 0, kind: evTaskArrival, taskID: 1})
	d.push(event{at: 0, kind: evMigrationDone, vmID: 2})
	d.push(event{at: 0, kind: evStateChangeComplete, machineID: 3})

	var order []eventKind
	for d.queue.Len() > 0 {
		e := heap.Pop(&d.queue).(event)
		order = append(order, e.kind)
	}
	want := []eventKind{evStateChangeComplete, evMigrationDone, evTaskArrival}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %v, want %v", i, order[i], want[i])
		}
	}
}

// TestDriver_SameTypeSameTickPreservesInsertionOrder tests the final
// tie-break (sequence number) once timestamp and type both match.
func TestDriver_SameTypeSameTickPreservesInsertionOrder(t *testing.T) {
	sim := NewFakeSimulator(nil, nil)
	d := NewDriver(sim, 0, 0)

	d.push(event{at: 0, kind: evTaskArrival, taskID: 1})
	d.push(event{at: 0, kind: evTaskArrival, taskID: 2})
	d.push(event{at: 0, kind: evTaskArrival, taskID: 3})

	var ids []registry.TaskID
	for d.queue.Len() > 0 {
		ids = append(ids, heap.Pop(&d.queue).(event).taskID)
	}
	if ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("ids = %v, want [1 2 3] (fifo within same tick and type)", ids)
	}
}
