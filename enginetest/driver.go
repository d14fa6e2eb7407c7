package enginetest

import (
	"container/heap"

	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/engine"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/vmtable"
)

type eventKind int

const (
	evStateChangeComplete eventKind = iota
	evMigrationDone
	evTaskCompletion
	evSLAWarning
	evMemoryWarning
	evPeriodicCheck
	evTaskArrival
	evSimulationComplete
)

// eventTypePriority breaks same-tick ties: completions and state changes
// settle before new arrivals, mirroring the EventHeap ordering in
// sim/cluster/event_heap.go, adapted to this domain's event vocabulary.
var eventTypePriority = map[eventKind]int{
	evStateChangeComplete: 0,
	evMigrationDone:       1,
	evTaskCompletion:      2,
	evSLAWarning:          3,
	evMemoryWarning:       4,
	evPeriodicCheck:       5,
	evTaskArrival:         6,
	evSimulationComplete:  7,
}

type event struct {
	at        int64
	seq       uint64
	kind      eventKind
	taskID    registry.TaskID
	machineID cluster.MachineID
	vmID      vmtable.VMID
}

// eventQueue implements container/heap.Interface with deterministic
// ordering: timestamp, then event-type priority, then insertion sequence.
type eventQueue []event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	pi, pj := eventTypePriority[q[i].kind], eventTypePriority[q[j].kind]
	if pi != pj {
		return pi < pj
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x interface{}) { *q = append(*q, x.(event)) }

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Driver is the minimal event-loop harness satisfying the "simulator
// drives, engine reacts" contract of §4.4: it owns a FakeSimulator and a
// deterministic event queue, feeds task arrivals at their configured
// times, and dispatches every upcall to a bound engine.Handlers. Follows
// ClusterSimulator.Run (sim/cluster/simulator.go), which plays the same
// role for request/instance events.
type Driver struct {
	sim            *FakeSimulator
	handlers       engine.Handlers
	queue          eventQueue
	now            int64
	horizon        int64
	periodicPeriod int64
	seq            uint64
}

// NewDriver builds a Driver around a FakeSimulator, binding it so the
// simulator's downcalls can schedule their own follow-up events.
func NewDriver(sim *FakeSimulator, horizon, periodicPeriod int64) *Driver {
	d := &Driver{sim: sim, horizon: horizon, periodicPeriod: periodicPeriod}
	sim.bindDriver(d)
	heap.Init(&d.queue)
	return d
}

// Bind attaches the engine.Handlers implementation (normally an
// *engine.Engine) that will receive every dispatched upcall.
func (d *Driver) Bind(h engine.Handlers) { d.handlers = h }

func (d *Driver) push(e event) {
	d.seq++
	e.seq = d.seq
	heap.Push(&d.queue, e)
}

func (d *Driver) scheduleMachine(delay int64, kind eventKind, id cluster.MachineID) {
	d.push(event{at: d.now + delay, kind: kind, machineID: id})
}

func (d *Driver) scheduleVM(delay int64, kind eventKind, id vmtable.VMID) {
	d.push(event{at: d.now + delay, kind: kind, vmID: id})
}

func (d *Driver) scheduleTask(delay int64, kind eventKind, id registry.TaskID) {
	d.push(event{at: d.now + delay, kind: kind, taskID: id})
}

// Run drains the event queue to completion, dispatching every upcall in
// deterministic order. It seeds task-arrival events from the tasks the
// bound FakeSimulator was constructed with, and a single periodic-check
// cadence if periodicPeriod > 0.
func (d *Driver) Run() {
	for _, t := range d.sim.tasks {
		d.push(event{at: t.info.ArrivalTime, kind: evTaskArrival, taskID: t.info.ID})
	}
	if d.periodicPeriod > 0 {
		d.push(event{at: 0, kind: evPeriodicCheck})
	}
	d.push(event{at: d.horizon, kind: evSimulationComplete})

	for d.queue.Len() > 0 {
		e := heap.Pop(&d.queue).(event)
		if e.at > d.horizon {
			continue
		}
		d.now = e.at
		d.sim.now = e.at

		switch e.kind {
		case evTaskArrival:
			d.handlers.HandleNewTask(d.now, e.taskID)
		case evTaskCompletion:
			d.sim.completeTask(e.taskID)
			d.handlers.HandleTaskCompletion(d.now, e.taskID)
		case evStateChangeComplete:
			d.handlers.StateChangeComplete(d.now, e.machineID)
		case evMigrationDone:
			d.sim.completeMigration(e.vmID)
			d.handlers.MigrationDone(d.now, e.vmID)
		case evSLAWarning:
			if t, ok := d.sim.tasks[e.taskID]; ok && !t.info.Completed {
				d.handlers.SLAWarning(d.now, e.taskID)
			}
		case evMemoryWarning:
			d.handlers.MemoryWarning(d.now, e.machineID)
		case evPeriodicCheck:
			d.handlers.SchedulerCheck(d.now)
			if d.now+d.periodicPeriod <= d.horizon {
				d.push(event{at: d.now + d.periodicPeriod, kind: evPeriodicCheck})
			}
		case evSimulationComplete:
			d.handlers.SimulationComplete(d.now)
			return
		}
	}
}
