package engine

import (
	"errors"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/errs"
	"github.com/cloudsched/cloudsched/placement"
	"github.com/cloudsched/cloudsched/policy"
	"github.com/cloudsched/cloudsched/registry"
	"github.com/cloudsched/cloudsched/trace"
	"github.com/cloudsched/cloudsched/vmtable"
)

// Engine wires the Cluster Model, Task Registry, VM Table, Placement
// Index, a Policy, and the Instrumentation recorder into the single
// stateful object that implements Handlers. Follows ClusterSimulator
// (sim/cluster/simulator.go), which plays the same "owns every
// collaborator, dispatches upcalls to handler methods" role
// for LLM-inference events that Engine plays here for cluster events.
type Engine struct {
	sim Simulator
	pol policy.Policy
	cfg policy.Config

	fleet    *cluster.Fleet
	tasks    *registry.Registry
	vms      *vmtable.Table
	index    *placement.Index
	recorder *trace.Recorder
	pending  *policy.PendingQueue
	shadow   *policy.ShadowCounters

	assign map[registry.TaskID]*vmtable.VM

	out io.Writer
	log *logrus.Entry
}

// New constructs an Engine bound to a Simulator and a chosen Policy. Call
// InitScheduler once the simulator is ready to answer downcalls.
func New(sim Simulator, pol policy.Policy, cfg policy.Config) *Engine {
	fleet := cluster.NewFleet(sim)
	return &Engine{
		sim:      sim,
		pol:      pol,
		cfg:      cfg,
		fleet:    fleet,
		tasks:    registry.New(sim),
		vms:      vmtable.New(sim),
		index:    placement.NewIndex(fleet),
		recorder: trace.NewRecorder(),
		pending:  policy.NewPendingQueue(),
		shadow:   policy.NewShadowCounters(),
		assign:   make(map[registry.TaskID]*vmtable.VM),
		out:      os.Stdout,
		log:      logrus.WithField("component", "engine"),
	}
}

// SetOutput redirects the final report away from stdout, for tests and
// embedding.
func (e *Engine) SetOutput(w io.Writer) { e.out = w }

// Recorder exposes the Instrumentation component for tests and the CLI.
func (e *Engine) Recorder() *trace.Recorder { return e.recorder }

func (e *Engine) context(now int64) *policy.Context {
	return &policy.Context{
		Fleet:    e.fleet,
		Index:    e.index,
		VMs:      e.vms,
		Tasks:    e.tasks,
		Recorder: e.recorder,
		Pending:  e.pending,
		Shadow:   e.shadow,
		Config:   e.cfg,
		Now:      now,
	}
}

func (e *Engine) InitScheduler() error {
	e.log.WithField("policy", e.pol.Name()).Info("initializing scheduler")
	if err := e.pol.Init(e.context(0)); err != nil {
		return e.handleErr(0, "init", err)
	}
	return nil
}

func (e *Engine) HandleNewTask(now int64, taskID registry.TaskID) error {
	task := e.tasks.GetTaskInfo(taskID)
	ctx := e.context(now)
	result, err := e.pol.Place(ctx, task)
	if err != nil {
		return e.handleErr(now, "place", err)
	}
	switch result.Outcome {
	case policy.Placed:
		e.assign[taskID] = result.VM
		e.log.WithFields(logrus.Fields{"task": taskID, "vm": result.VM.ID, "machine": result.Machine}).Debug("task placed")
	case policy.Deferred:
		e.log.WithFields(logrus.Fields{"task": taskID, "machine": result.Machine}).Debug("task deferred pending state change")
	case policy.Unplaceable:
		e.recorder.Record(now, "unplaceable", "no compatible machine for task")
		e.recorder.RecordCompletion(task.SLA, true)
		e.log.WithField("task", taskID).Warn("task unplaceable")
	}
	return nil
}

func (e *Engine) HandleTaskCompletion(now int64, taskID registry.TaskID) {
	task := e.tasks.GetTaskInfo(taskID)
	vm := e.assign[taskID]
	ctx := e.context(now)
	ctx.CompleteTask(vm, task)
	e.pol.OnComplete(ctx, task, vm)
	e.recorder.RecordCompletion(task.SLA, e.tasks.IsSLAViolation(taskID))
	delete(e.assign, taskID)
	if err := e.checkInvariants(); err != nil {
		e.fatal(now, err)
	}
}

func (e *Engine) MemoryWarning(now int64, machine cluster.MachineID) {
	e.fleet.Refresh(machine)
	e.log.WithError(errs.ErrOvercommit).WithField("machine", machine).Warn("simulator reported overcommit")
	e.recorder.Record(now, "overcommit", "memory warning reported by simulator")
}

func (e *Engine) MigrationDone(now int64, vmID vmtable.VMID) {
	vm := e.vms.Get(vmID)
	if vm == nil {
		e.log.WithField("vm", vmID).Warn("migration done for unknown vm")
		return
	}
	ctx := e.context(now)
	ctx.CompleteMigration(vm)
	e.pol.OnMigrationDone(ctx, vm)
}

func (e *Engine) SchedulerCheck(now int64) {
	e.index.Refresh()
	e.pol.Tick(e.context(now), now)
}

func (e *Engine) SimulationComplete(now int64) {
	for _, vm := range e.vms.All() {
		if len(vm.ActiveTasks) == 0 && !vm.Migrating {
			e.vms.Shutdown(vm)
		}
	}
	e.recorder.Report(e.out, e.sim.GetClusterEnergy(), now)
	e.log.Info("simulation complete")
}

func (e *Engine) SLAWarning(now int64, taskID registry.TaskID) {
	task := e.tasks.GetTaskInfo(taskID)
	vm := e.assign[taskID]
	e.pol.OnSLAWarning(e.context(now), task, vm)
	e.recorder.Record(now, "sla_warning", "task at risk of missing deadline")
}

func (e *Engine) StateChangeComplete(now int64, machine cluster.MachineID) {
	info := e.fleet.Refresh(machine)
	if info.SState == cluster.S5 {
		if attached := e.vms.OnMachine(machine); len(attached) > 0 {
			e.fatal(now, errs.ErrInvariantBroken, "machine reached S5 with attached VMs still on it")
			return
		}
	}
	items := e.pending.Drain(machine)
	if len(items) == 0 {
		return
	}
	if !info.SState.Running() {
		e.fatal(now, errs.ErrInvariantBroken, "machine did not reach S0 after a requested wake")
		return
	}
	ctx := e.context(now)
	for _, p := range items {
		if p.AttachOnly {
			if !p.VM.Attached {
				if err := e.vms.Attach(p.VM, machine, info); err != nil {
					e.log.WithError(err).WithField("vm", p.VM.ID).Warn("pending attach-only failed")
				}
			}
			continue
		}
		task := e.tasks.GetTaskInfo(p.Task)
		var err error
		if !p.VM.Attached {
			err = ctx.AttachAndAdmit(p.VM, machine, task, p.Priority)
		} else {
			err = ctx.AdmitExisting(p.VM, task, p.Priority)
		}
		if err != nil {
			e.log.WithError(err).WithField("task", p.Task).Warn("pending attachment failed")
			continue
		}
		e.assign[p.Task] = p.VM
		e.log.WithFields(logrus.Fields{"task": p.Task, "vm": p.VM.ID, "machine": machine}).Debug("deferred task placed")
	}
}

// handleErr classifies an error from a Policy or VM Table call: fatal
// invariant breaks abort the run, everything else is logged and treated
// as a soft failure for the current upcall.
func (e *Engine) handleErr(now int64, op string, err error) error {
	if errors.Is(err, errs.ErrInvariantBroken) {
		e.fatal(now, err)
		return err
	}
	e.log.WithError(err).WithField("op", op).Warn("policy operation failed")
	return err
}

func (e *Engine) fatal(now int64, err error, context ...string) {
	entry := e.log.WithError(err).WithField("now", now)
	if len(context) > 0 {
		entry = entry.WithField("detail", context[0])
	}
	entry.Fatal("internal invariant broken")
}
