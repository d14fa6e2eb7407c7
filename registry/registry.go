// Package registry provides read-only, side-effect-free access to task
// metadata. It never mutates simulator or engine state — every method is a
// pure lookup, matching §4.2's contract.
package registry

import "github.com/cloudsched/cloudsched/cluster"

// TaskID identifies a task. Assigned by the simulator.
type TaskID int

// VMType is the guest OS a task requires and a VM provides.
type VMType int

const (
	LINUX VMType = iota
	LINUX_RT
	WIN
	AIX
)

func (v VMType) String() string {
	names := [...]string{"LINUX", "LINUX_RT", "WIN", "AIX"}
	if int(v) < 0 || int(v) >= len(names) {
		return "VMType(?)"
	}
	return names[v]
}

// SLAType is the target fraction of tasks of this class that must meet
// their deadline.
type SLAType int

const (
	SLA0 SLAType = iota // 95%
	SLA1                // 90%
	SLA2                // 80%
	SLA3                // best-effort
)

func (s SLAType) String() string {
	names := [...]string{"SLA0", "SLA1", "SLA2", "SLA3"}
	if int(s) < 0 || int(s) >= len(names) {
		return "SLAType(?)"
	}
	return names[s]
}

// TaskInfo is a point-in-time snapshot of a task's metadata, valid only for
// the duration of the upcall that requested it.
type TaskInfo struct {
	ID                  TaskID
	RequiredCPU         cluster.CPUType
	RequiredOS          VMType
	RequiredMemory      uint64
	SLA                 SLAType
	ArrivalTime         int64
	TargetCompletion    int64
	TotalInstructions   uint64
	GPUCapable          bool
	Completed           bool
	CurrentCompletionAt int64 // set once the task completes; 0 until then
}

// Source is the subset of the simulator downcall surface the Task
// Registry needs. Satisfied structurally by engine.Simulator.
type Source interface {
	GetNumTasks() int
	GetTaskInfo(id TaskID) TaskInfo
	IsSLAViolation(id TaskID) bool
	IsTaskCompleted(id TaskID) bool
}

// Registry wraps a Source with the named single-field accessors §4.2 lists.
type Registry struct {
	sim Source
}

// New wraps a simulator downcall source.
func New(sim Source) *Registry { return &Registry{sim: sim} }

// GetTaskInfo returns the full snapshot for a task.
func (r *Registry) GetTaskInfo(id TaskID) TaskInfo { return r.sim.GetTaskInfo(id) }

// RequiredCPU returns the CPU family a task requires.
func (r *Registry) RequiredCPU(id TaskID) cluster.CPUType { return r.sim.GetTaskInfo(id).RequiredCPU }

// RequiredOS returns the guest OS a task requires.
func (r *Registry) RequiredOS(id TaskID) VMType { return r.sim.GetTaskInfo(id).RequiredOS }

// RequiredSLA returns the task's SLA class.
func (r *Registry) RequiredSLA(id TaskID) SLAType { return r.sim.GetTaskInfo(id).SLA }

// GetTaskMemory returns the task's required memory footprint.
func (r *Registry) GetTaskMemory(id TaskID) uint64 { return r.sim.GetTaskInfo(id).RequiredMemory }

// IsSLAViolation reports whether the task is at risk of/has missed its
// target completion time.
func (r *Registry) IsSLAViolation(id TaskID) bool { return r.sim.IsSLAViolation(id) }

// IsTaskCompleted reports whether the task has finished.
func (r *Registry) IsTaskCompleted(id TaskID) bool { return r.sim.IsTaskCompleted(id) }

// NumTasks returns the total number of tasks known to the simulator,
// including ones that haven't arrived yet and ones already completed.
func (r *Registry) NumTasks() int { return r.sim.GetNumTasks() }

// LegalPairing reports whether (os, cpu) is a valid guest-OS/CPU-family
// combination per §6: AIX only on POWER, WIN only on ARM and X86, LINUX
// and LINUX_RT on any family.
func LegalPairing(os VMType, cpu cluster.CPUType) bool {
	switch os {
	case AIX:
		return cpu == cluster.POWER
	case WIN:
		return cpu == cluster.ARM || cpu == cluster.X86
	case LINUX, LINUX_RT:
		return true
	default:
		return false
	}
}
