package cluster

// MachineSource is the subset of the simulator downcall surface the
// Cluster Model needs. Satisfied structurally by engine.Simulator — this
// package never imports engine, avoiding a cycle (mirrors sim/cluster
// depending only downward on sim, never the reverse).
type MachineSource interface {
	GetMachineTotal() int
	GetMachineInfo(id MachineID) MachineInfo
	SetMachineState(id MachineID, state MachineState)
	SetCorePerformance(id MachineID, core int, pstate PState)
	GetMachineEnergy(id MachineID) uint64
	GetClusterEnergy() uint64
}

// Fleet is the engine's read-mostly cache of machine snapshots. It is
// refreshed at Init and after any downcall that can change a MachineInfo;
// operations that read stale data only ever do so within a single upcall,
// matching §5's "snapshot valid only for the duration of that upcall" rule.
type Fleet struct {
	sim      MachineSource
	machines map[MachineID]MachineInfo
	order    []MachineID // ascending id, fixed at construction
}

// NewFleet enumerates every machine known to the simulator and builds the
// initial snapshot cache.
func NewFleet(sim MachineSource) *Fleet {
	total := sim.GetMachineTotal()
	f := &Fleet{
		sim:      sim,
		machines: make(map[MachineID]MachineInfo, total),
		order:    make([]MachineID, 0, total),
	}
	for i := 0; i < total; i++ {
		id := MachineID(i)
		f.machines[id] = sim.GetMachineInfo(id)
		f.order = append(f.order, id)
	}
	return f
}

// Machines returns every machine ID in ascending order (stable iteration
// order needed for the "prefer lower machine id" tie-break, §4.5).
func (f *Fleet) Machines() []MachineID {
	return f.order
}

// Info returns the cached snapshot for a machine. Callers that need a
// guaranteed-fresh view should call Refresh first.
func (f *Fleet) Info(id MachineID) (MachineInfo, bool) {
	info, ok := f.machines[id]
	return info, ok
}

// Refresh re-reads one machine's snapshot from the simulator.
func (f *Fleet) Refresh(id MachineID) MachineInfo {
	info := f.sim.GetMachineInfo(id)
	f.machines[id] = info
	return info
}

// RequestState asks the simulator to transition a machine's S-state. This
// is fire-and-forget (§4.1): the cached snapshot's SState is optimistically
// updated to the target so pending-attachment logic can reason about
// "in-flight" transitions, but callers requiring the real state must wait
// for StateChangeComplete before treating the machine as usable.
func (f *Fleet) RequestState(id MachineID, target MachineState) {
	f.sim.SetMachineState(id, target)
	if info, ok := f.machines[id]; ok {
		info.SState = target
		f.machines[id] = info
	}
}

// SetCorePerformance requests a P-state change on every core of the
// machine (the simulator ignores the core index — DVFS is machine-wide,
// §5). The cache is updated optimistically like RequestState.
func (f *Fleet) SetCorePerformance(id MachineID, pstate PState) {
	info, ok := f.machines[id]
	if !ok {
		return
	}
	for core := 0; core < info.NumCores; core++ {
		f.sim.SetCorePerformance(id, core, pstate)
	}
	info.PStateActive = pstate
	f.machines[id] = info
}

// ClusterEnergyKWh returns the cluster-wide cumulative energy counter
// converted to kilowatt-hours for the final report.
func (f *Fleet) ClusterEnergyKWh() float64 {
	return KWhFromJoules(f.sim.GetClusterEnergy())
}
