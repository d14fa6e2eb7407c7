package cluster

import "testing"

// fakeMachineSource is a minimal MachineSource stand-in for Fleet tests.
type fakeMachineSource struct {
	infos  []MachineInfo
	energy uint64
}

func (f *fakeMachineSource) GetMachineTotal() int { return len(f.infos) }

func (f *fakeMachineSource) GetMachineInfo(id MachineID) MachineInfo {
	return f.infos[id]
}

func (f *fakeMachineSource) SetMachineState(id MachineID, state MachineState) {
	f.infos[id].SState = state
}

func (f *fakeMachineSource) SetCorePerformance(id MachineID, core int, pstate PState) {
	f.infos[id].PStateActive = pstate
}

func (f *fakeMachineSource) GetMachineEnergy(id MachineID) uint64 { return f.infos[id].Energy }

func (f *fakeMachineSource) GetClusterEnergy() uint64 { return f.energy }

func newTestFleet() (*Fleet, *fakeMachineSource) {
	src := &fakeMachineSource{infos: []MachineInfo{
		{ID: 0, CPU: X86, NumCores: 2, MemoryCap: 100, SState: S0, PStates: PStateTable{1000, 800, 600, 400}},
		{ID: 1, CPU: X86, NumCores: 4, MemoryCap: 200, SState: S3, PStates: PStateTable{2000, 1600, 1200, 800}},
	}}
	return NewFleet(src), src
}

// TestNewFleet_SnapshotsEveryMachine tests that construction pulls every
// machine's info once and preserves ascending id order.
func TestNewFleet_SnapshotsEveryMachine(t *testing.T) {
	fleet, _ := newTestFleet()

	if got := fleet.Machines(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("Machines() = %v, want [0 1]", got)
	}
	info, ok := fleet.Info(0)
	if !ok || info.MemoryCap != 100 {
		t.Errorf("Info(0) = %+v, ok=%v, want MemoryCap=100", info, ok)
	}
}

// TestFleet_RequestState tests that a state request is forwarded to the
// simulator and optimistically reflected in the cache.
func TestFleet_RequestState(t *testing.T) {
	fleet, src := newTestFleet()

	fleet.RequestState(1, S0)

	if src.infos[1].SState != S0 {
		t.Errorf("simulator SState = %s, want S0", src.infos[1].SState)
	}
	info, _ := fleet.Info(1)
	if info.SState != S0 {
		t.Errorf("cached SState = %s, want S0", info.SState)
	}
}

// TestFleet_SetCorePerformance tests that every core on the machine
// receives the P-state change and the cache reflects it.
func TestFleet_SetCorePerformance(t *testing.T) {
	fleet, src := newTestFleet()

	fleet.SetCorePerformance(1, P2)

	if src.infos[1].PStateActive != P2 {
		t.Errorf("simulator PStateActive = %s, want P2", src.infos[1].PStateActive)
	}
	info, _ := fleet.Info(1)
	if info.PStateActive != P2 {
		t.Errorf("cached PStateActive = %s, want P2", info.PStateActive)
	}
}

// TestFleet_Refresh tests that Refresh re-pulls the machine snapshot,
// picking up changes the cache doesn't know about yet.
func TestFleet_Refresh(t *testing.T) {
	fleet, src := newTestFleet()
	src.infos[0].MemoryUsed = 55 // simulate an out-of-band change

	info := fleet.Refresh(0)

	if info.MemoryUsed != 55 {
		t.Errorf("Refresh() MemoryUsed = %d, want 55", info.MemoryUsed)
	}
	cached, _ := fleet.Info(0)
	if cached.MemoryUsed != 55 {
		t.Errorf("cached MemoryUsed after Refresh = %d, want 55", cached.MemoryUsed)
	}
}

// TestFleet_ClusterEnergyKWh tests the delegation to the simulator's
// cumulative joule counter plus the unit conversion.
func TestFleet_ClusterEnergyKWh(t *testing.T) {
	fleet, src := newTestFleet()
	src.energy = 7.2e6

	if got := fleet.ClusterEnergyKWh(); got != 2.0 {
		t.Errorf("ClusterEnergyKWh() = %v, want 2.0", got)
	}
}
