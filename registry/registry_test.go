package registry

import (
	"testing"

	"github.com/cloudsched/cloudsched/cluster"
)

// fakeSource is a minimal Source stand-in for Registry tests.
type fakeSource struct {
	tasks map[TaskID]TaskInfo
	sla   map[TaskID]bool
}

func (f *fakeSource) GetNumTasks() int { return len(f.tasks) }

func (f *fakeSource) GetTaskInfo(id TaskID) TaskInfo { return f.tasks[id] }

func (f *fakeSource) IsSLAViolation(id TaskID) bool { return f.sla[id] }

func (f *fakeSource) IsTaskCompleted(id TaskID) bool { return f.tasks[id].Completed }

// TestRegistry_Accessors tests that the named single-field accessors
// delegate correctly to the underlying task snapshot.
func TestRegistry_Accessors(t *testing.T) {
	src := &fakeSource{tasks: map[TaskID]TaskInfo{
		1: {ID: 1, RequiredCPU: cluster.ARM, RequiredOS: WIN, RequiredMemory: 512, SLA: SLA1},
	}}
	reg := New(src)

	if got := reg.RequiredCPU(1); got != cluster.ARM {
		t.Errorf("RequiredCPU = %s, want ARM", got)
	}
	if got := reg.RequiredOS(1); got != WIN {
		t.Errorf("RequiredOS = %s, want WIN", got)
	}
	if got := reg.RequiredSLA(1); got != SLA1 {
		t.Errorf("RequiredSLA = %s, want SLA1", got)
	}
	if got := reg.GetTaskMemory(1); got != 512 {
		t.Errorf("GetTaskMemory = %d, want 512", got)
	}
}

// TestRegistry_IsSLAViolation tests the pass-through to the simulator.
func TestRegistry_IsSLAViolation(t *testing.T) {
	src := &fakeSource{
		tasks: map[TaskID]TaskInfo{1: {ID: 1}},
		sla:   map[TaskID]bool{1: true},
	}
	reg := New(src)

	if !reg.IsSLAViolation(1) {
		t.Error("IsSLAViolation(1) = false, want true")
	}
}

// TestRegistry_NumTasks tests the total-count pass-through.
func TestRegistry_NumTasks(t *testing.T) {
	src := &fakeSource{tasks: map[TaskID]TaskInfo{1: {}, 2: {}, 3: {}}}
	reg := New(src)

	if got := reg.NumTasks(); got != 3 {
		t.Errorf("NumTasks() = %d, want 3", got)
	}
}

// TestLegalPairing tests every (OS, CPU) combination named in §6.
func TestLegalPairing(t *testing.T) {
	cases := []struct {
		os   VMType
		cpu  cluster.CPUType
		want bool
	}{
		{AIX, cluster.POWER, true},
		{AIX, cluster.X86, false},
		{AIX, cluster.ARM, false},
		{WIN, cluster.ARM, true},
		{WIN, cluster.X86, true},
		{WIN, cluster.POWER, false},
		{LINUX, cluster.X86, true},
		{LINUX, cluster.POWER, true},
		{LINUX_RT, cluster.RISCV, true},
	}
	for _, c := range cases {
		if got := LegalPairing(c.os, c.cpu); got != c.want {
			t.Errorf("LegalPairing(%s, %s) = %v, want %v", c.os, c.cpu, got, c.want)
		}
	}
}
