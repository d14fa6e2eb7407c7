package policy

import (
	"testing"

	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/registry"
)

func twelveX86Machines() []cluster.MachineInfo {
	out := make([]cluster.MachineInfo, 12)
	for i := range out {
		out[i] = cluster.MachineInfo{ID: cluster.MachineID(i), CPU: cluster.X86, MemoryCap: 100, SState: cluster.S5}
	}
	return out
}

// TestTierPolicy_InitSplitsIntoThirdsAndSixths tests the exact 1/3
// Running, 1/6 Intermediate split (floors 4/2) for a 12-machine fleet.
func TestTierPolicy_InitSplitsIntoThirdsAndSixths(t *testing.T) {
	sim := newFakeSim(twelveX86Machines(), nil)
	ctx := testContext(sim, DefaultConfig(Tier))
	pol := newTierPolicy(ctx.Config)

	if err := pol.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	running, intermediate, off := 0, 0, 0
	for _, tr := range pol.tierOf {
		switch tr {
		case tierRunning:
			running++
		case tierIntermediate:
			intermediate++
		case tierOff:
			off++
		}
	}
	if running != 4 {
		t.Errorf("running tier = %d, want 4 (12/3)", running)
	}
	if intermediate != 2 {
		t.Errorf("intermediate tier = %d, want 2 (12/6)", intermediate)
	}
	if off != 6 {
		t.Errorf("off tier = %d, want 6", off)
	}
}

// TestTierPolicy_InitFloorsOnSmallFleets tests that a fleet too small for
// a clean 1/3 split still gets the floor of 4 Running, 2 Intermediate.
func TestTierPolicy_InitFloorsOnSmallFleets(t *testing.T) {
	machines := make([]cluster.MachineInfo, 6)
	for i := range machines {
		machines[i] = cluster.MachineInfo{ID: cluster.MachineID(i), CPU: cluster.X86, MemoryCap: 100, SState: cluster.S5}
	}
	sim := newFakeSim(machines, nil)
	ctx := testContext(sim, DefaultConfig(Tier))
	pol := newTierPolicy(ctx.Config)

	if err := pol.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	running := 0
	for _, tr := range pol.tierOf {
		if tr == tierRunning {
			running++
		}
	}
	if running != 4 {
		t.Errorf("running tier on a 6-machine fleet = %d, want floor of 4", running)
	}
}

// TestTierPolicy_PlacePrefersRunningTier tests that Place fills a
// Running-tier machine with room before touching Intermediate/Off.
func TestTierPolicy_PlacePrefersRunningTier(t *testing.T) {
	sim := newFakeSim(twelveX86Machines(), nil)
	ctx := testContext(sim, DefaultConfig(Tier))
	pol := newTierPolicy(ctx.Config)
	if err := pol.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	task := registry.TaskInfo{ID: 1, RequiredCPU: cluster.X86, RequiredOS: registry.LINUX, RequiredMemory: 20}
	result, err := pol.Place(ctx, task)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if result.Outcome != Placed {
		t.Fatalf("Place = %+v, want Placed", result)
	}
	if pol.tierOf[result.Machine] != tierRunning {
		t.Errorf("Place landed on a machine in tier %v, want tierRunning", pol.tierOf[result.Machine])
	}
}

// TestTierPolicy_AdjustTiersActivatesLowestIDFirst tests that when more
// Running machines are needed, the lowest-id Intermediate machine is
// always among those activated, deterministically, rather than in
// map-iteration order.
func TestTierPolicy_AdjustTiersActivatesLowestIDFirst(t *testing.T) {
	sim := newFakeSim(twelveX86Machines(), nil)
	ctx := testContext(sim, DefaultConfig(Tier))
	pol := newTierPolicy(ctx.Config)
	if err := pol.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// Force every machine but id 0 into Intermediate, well below the
	// fleet's desired Running count, then let adjustTiers pick who to
	// activate.
	for id := range pol.tierOf {
		pol.tierOf[id] = tierIntermediate
	}
	pol.tierOf[0] = tierRunning

	pol.adjustTiers(ctx)

	if pol.tierOf[1] != tierRunning {
		t.Errorf("lowest-id Intermediate machine (1) ended up in tier %v, want tierRunning", pol.tierOf[1])
	}
}

// TestTierPolicy_PlaceActivatesIntermediateWhenRunningIsFull tests the
// escalation from Running to Intermediate once no Running machine fits.
func TestTierPolicy_PlaceActivatesIntermediateWhenRunningIsFull(t *testing.T) {
	sim := newFakeSim(twelveX86Machines(), nil)
	ctx := testContext(sim, DefaultConfig(Tier))
	pol := newTierPolicy(ctx.Config)
	if err := pol.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// Fill every Running machine to capacity.
	for id, tr := range pol.tierOf {
		if tr != tierRunning {
			continue
		}
		sim.machines[id].MemoryUsed = sim.machines[id].MemoryCap
		ctx.Fleet.Refresh(id)
	}

	task := registry.TaskInfo{ID: 1, RequiredCPU: cluster.X86, RequiredOS: registry.LINUX, RequiredMemory: 20}
	result, err := pol.Place(ctx, task)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if result.Outcome != Deferred {
		t.Fatalf("Place = %+v, want Deferred (activating an Intermediate machine)", result)
	}
	if pol.tierOf[result.Machine] != tierRunning {
		t.Errorf("activated machine tier = %v, want tierRunning after activation", pol.tierOf[result.Machine])
	}
}
