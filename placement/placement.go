// Package placement provides the secondary indices over the cluster that
// policies use to pick candidate machines quickly: buckets by CPU family
// and interchangeable sort keys (§4.6).
package placement

import (
	"sort"

	"github.com/cloudsched/cloudsched/cluster"
)

// UtilizationProxy is the metric a policy declares it ranks machines by
// (§9 open question 3: memory-vs-MIPS is used inconsistently in the
// source, so every policy must declare which one it uses).
type UtilizationProxy int

const (
	ProxyMemory UtilizationProxy = iota
	ProxyMIPS
)

// Utilization returns a machine's utilization under the given proxy.
// Memory utilization is memory_used / memory_capacity. MIPS utilization is
// committed MIPS demand / MIPS capacity at the machine's current P-state;
// since the index doesn't track per-machine committed MIPS itself (that's
// a policy-owned shadow counter, §5), callers pass it in explicitly via
// mipsDemand for the MIPS proxy and it is ignored for the memory proxy.
func Utilization(info cluster.MachineInfo, proxy UtilizationProxy, mipsDemand float64) float64 {
	switch proxy {
	case ProxyMIPS:
		mips := info.MIPS()
		if mips == 0 {
			return 0
		}
		return mipsDemand / mips
	default:
		if info.MemoryCap == 0 {
			return 0
		}
		return float64(info.MemoryUsed) / float64(info.MemoryCap)
	}
}

// Index is the Placement Index component: machines grouped by CPU family
// and sorted by a policy-chosen key.
type Index struct {
	fleet *cluster.Fleet
	byCPU map[cluster.CPUType][]cluster.MachineID
}

// NewIndex builds the CPU-family buckets from the fleet's current
// membership. Buckets are rebuilt lazily on Refresh; membership is static
// (machines are never destroyed, §3) so only ordering needs upkeep.
func NewIndex(fleet *cluster.Fleet) *Index {
	idx := &Index{fleet: fleet, byCPU: make(map[cluster.CPUType][]cluster.MachineID)}
	idx.Refresh()
	return idx
}

// Refresh rebuilds the CPU-family buckets from the fleet's current
// snapshot cache. Cheap (O(N)) and safe to call every tick.
func (idx *Index) Refresh() {
	for k := range idx.byCPU {
		delete(idx.byCPU, k)
	}
	for _, id := range idx.fleet.Machines() {
		info, ok := idx.fleet.Info(id)
		if !ok {
			continue
		}
		idx.byCPU[info.CPU] = append(idx.byCPU[info.CPU], id)
	}
}

// ByCPU returns every machine of a given CPU family, ascending by ID.
func (idx *Index) ByCPU(cpu cluster.CPUType) []cluster.MachineID {
	ids := idx.byCPU[cpu]
	out := make([]cluster.MachineID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortKey ranks a candidate machine by some scalar; lower sorts first.
// SortedByUtilization and SortedByEnergy build one internally and share the
// tie-break logic through sortedBy.
type SortKey func(id cluster.MachineID) float64

// sortedBy orders ids ascending by key, with the standard "lower machine id
// wins ties" rule (§4.5) as the final comparison key.
func (idx *Index) sortedBy(ids []cluster.MachineID, key SortKey) []cluster.MachineID {
	sort.SliceStable(ids, func(i, j int) bool {
		ki, kj := key(ids[i]), key(ids[j])
		if ki != kj {
			return ki < kj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// SortedByUtilization returns machines of a CPU family sorted ascending by
// utilization under the given proxy. mipsDemand is a per-machine
// committed-MIPS lookup used only when proxy == ProxyMIPS.
func (idx *Index) SortedByUtilization(cpu cluster.CPUType, proxy UtilizationProxy, mipsDemand map[cluster.MachineID]float64) []cluster.MachineID {
	return idx.sortedBy(idx.ByCPU(cpu), func(id cluster.MachineID) float64 {
		return Utilization(idx.mustInfo(id), proxy, mipsDemand[id])
	})
}

// SortedByEnergy returns machines of a CPU family sorted ascending by
// cumulative energy consumed.
func (idx *Index) SortedByEnergy(cpu cluster.CPUType) []cluster.MachineID {
	return idx.sortedBy(idx.ByCPU(cpu), func(id cluster.MachineID) float64 {
		return float64(idx.mustInfo(id).Energy)
	})
}

func (idx *Index) mustInfo(id cluster.MachineID) cluster.MachineInfo {
	info, _ := idx.fleet.Info(id)
	return info
}
