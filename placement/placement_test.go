package placement

import (
	"testing"

	"github.com/cloudsched/cloudsched/cluster"
)

// TestUtilization_Memory tests the memory-proxy utilization formula,
// including the zero-capacity edge case.
func TestUtilization_Memory(t *testing.T) {
	info := cluster.MachineInfo{MemoryCap: 100, MemoryUsed: 25}
	if got := Utilization(info, ProxyMemory, 0); got != 0.25 {
		t.Errorf("Utilization(memory) = %v, want 0.25", got)
	}

	zero := cluster.MachineInfo{}
	if got := Utilization(zero, ProxyMemory, 0); got != 0 {
		t.Errorf("Utilization(zero-cap memory) = %v, want 0", got)
	}
}

// TestUtilization_MIPS tests the MIPS-proxy formula, which uses the
// caller-supplied committed-demand figure rather than machine state.
func TestUtilization_MIPS(t *testing.T) {
	info := cluster.MachineInfo{
		PStates:      cluster.PStateTable{1000, 800, 600, 400},
		PStateActive: cluster.P0,
	}
	if got := Utilization(info, ProxyMIPS, 500); got != 0.5 {
		t.Errorf("Utilization(mips) = %v, want 0.5", got)
	}
}

func newTestIndex() *Index {
	src := &fakeMachineSource{infos: []cluster.MachineInfo{
		{ID: 0, CPU: cluster.X86, MemoryCap: 100, MemoryUsed: 80},
		{ID: 1, CPU: cluster.X86, MemoryCap: 100, MemoryUsed: 10},
		{ID: 2, CPU: cluster.ARM, MemoryCap: 100, MemoryUsed: 50},
		{ID: 3, CPU: cluster.X86, MemoryCap: 100, MemoryUsed: 10},
	}}
	return NewIndex(cluster.NewFleet(src))
}

// fakeMachineSource mirrors cluster's own test helper; duplicated here
// (rather than exported from cluster) since it's test-only wiring.
type fakeMachineSource struct{ infos []cluster.MachineInfo }

func (f *fakeMachineSource) GetMachineTotal() int { return len(f.infos) }
func (f *fakeMachineSource) GetMachineInfo(id cluster.MachineID) cluster.MachineInfo {
	return f.infos[id]
}
func (f *fakeMachineSource) SetMachineState(id cluster.MachineID, state cluster.MachineState) {}
func (f *fakeMachineSource) SetCorePerformance(id cluster.MachineID, core int, pstate cluster.PState) {
}
func (f *fakeMachineSource) GetMachineEnergy(id cluster.MachineID) uint64 { return 0 }
func (f *fakeMachineSource) GetClusterEnergy() uint64                    { return 0 }

// TestIndex_ByCPU tests that buckets only contain machines of the
// requested family, ascending by id.
func TestIndex_ByCPU(t *testing.T) {
	idx := newTestIndex()

	got := idx.ByCPU(cluster.X86)
	want := []cluster.MachineID{0, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("ByCPU(X86) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ByCPU(X86)[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

// TestIndex_SortedByUtilization tests ascending order by memory
// utilization with the lowest-id tie-break for equal utilization.
func TestIndex_SortedByUtilization(t *testing.T) {
	idx := newTestIndex()

	got := idx.SortedByUtilization(cluster.X86, ProxyMemory, nil)
	want := []cluster.MachineID{1, 3, 0} // 10%, 10% (tie->lower id), 80%
	if len(got) != len(want) {
		t.Fatalf("SortedByUtilization = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SortedByUtilization[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

// TestIndex_Refresh tests that a membership-preserving refresh keeps
// buckets consistent (machines are never destroyed, only relabeled).
func TestIndex_Refresh(t *testing.T) {
	idx := newTestIndex()
	idx.Refresh()

	if got := len(idx.ByCPU(cluster.X86)); got != 3 {
		t.Errorf("ByCPU(X86) after Refresh has %d machines, want 3", got)
	}
}
