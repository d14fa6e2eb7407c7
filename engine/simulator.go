// Package engine is the Event Adapter (§4.4): the only component that
// talks to the simulator directly. It turns upcalls into Policy method
// calls and Policy decisions into downcalls, keeping the task→VM
// assignment map, the pending-attachment queue, and the shadow counters
// consistent across handler invocations.
package engine

import (
	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

// Simulator is the full downcall surface (engine → simulator), satisfied
// structurally by whatever concrete simulator hosts this engine — a real
// discrete-event core or the enginetest fake used in tests. Composed from
// the narrower interfaces each collaborator package already declares, so
// this file is the single place the whole downcall contract is visible.
type Simulator interface {
	cluster.MachineSource
	registry.Source
	vmtable.Downcalls
}

// Handlers is the full upcall surface (simulator → engine), invoked
// synchronously and never concurrently (§5).
type Handlers interface {
	// InitScheduler is called once before the first event, with the
	// simulator fully populated (machines, tasks known in advance).
	InitScheduler() error

	// HandleNewTask is called when a task arrives.
	HandleNewTask(now int64, task registry.TaskID) error

	// HandleTaskCompletion is called when a task finishes.
	HandleTaskCompletion(now int64, task registry.TaskID)

	// MemoryWarning is called when the simulator reports a machine
	// overcommitted beyond what the engine's shadow accounting predicted.
	MemoryWarning(now int64, machine cluster.MachineID)

	// MigrationDone is called when a VM migration completes.
	MigrationDone(now int64, vm vmtable.VMID)

	// SchedulerCheck is called periodically for maintenance independent of
	// any single event.
	SchedulerCheck(now int64)

	// SimulationComplete is called once, after the last event, to finalize
	// bookkeeping and emit the report.
	SimulationComplete(now int64)

	// SLAWarning is called when a task is at risk of missing its deadline.
	SLAWarning(now int64, task registry.TaskID)

	// StateChangeComplete is called when a requested S-state transition
	// finishes, draining any attachments pending on that machine.
	StateChangeComplete(now int64, machine cluster.MachineID)
}
