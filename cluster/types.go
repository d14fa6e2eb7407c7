// Package cluster provides the read-mostly view of physical machines and
// their capabilities that the policy engine consults and mutates through
// S-state/P-state requests.
package cluster

import "fmt"

// MachineID identifies a physical machine. Assigned by the simulator.
type MachineID int

// CPUType is the architecture family of a machine or VM.
type CPUType int

const (
	X86 CPUType = iota
	POWER
	ARM
	RISCV
)

func (c CPUType) String() string {
	switch c {
	case X86:
		return "X86"
	case POWER:
		return "POWER"
	case ARM:
		return "ARM"
	case RISCV:
		return "RISCV"
	default:
		return fmt.Sprintf("CPUType(%d)", int(c))
	}
}

// MachineState is the machine-wide sleep/power level (S-state).
type MachineState int

const (
	S0 MachineState = iota
	S0i1
	S1
	S2
	S3
	S4
	S5
)

func (s MachineState) String() string {
	names := [...]string{"S0", "S0i1", "S1", "S2", "S3", "S4", "S5"}
	if int(s) < 0 || int(s) >= len(names) {
		return fmt.Sprintf("MachineState(%d)", int(s))
	}
	return names[s]
}

// Running reports whether the state can host attached VMs and tasks.
func (s MachineState) Running() bool { return s == S0 }

// PState is the per-core performance level. P0 is fastest/hottest.
type PState int

const (
	P0 PState = iota
	P1
	P2
	P3
)

func (p PState) String() string {
	names := [...]string{"P0", "P1", "P2", "P3"}
	if int(p) < 0 || int(p) >= len(names) {
		return fmt.Sprintf("PState(%d)", int(p))
	}
	return names[p]
}

// CPUState is reported by the simulator on MachineInfo for informational
// purposes. The engine never requests a CPUState transition directly —
// only PState (via SetCorePerformance) and MachineState (via SetState).
type CPUState int

const (
	C0 CPUState = iota
	C1
	C2
	C4
)

// PStateTable gives the MIPS rating of each P-state for one machine.
type PStateTable [4]float64

// SStatePower gives the power draw (informational) of each S-state.
type SStatePower [7]float64

// MachineInfo is a point-in-time snapshot returned by GetMachineInfo. It
// is only valid for the duration of the upcall that requested it — the
// engine must not cache it across handler invocations.
type MachineInfo struct {
	ID           MachineID
	CPU          CPUType
	NumCores     int
	MemoryCap    uint64
	MemoryUsed   uint64
	GPU          bool
	PStates      PStateTable
	SStates      SStatePower
	SState       MachineState
	PStateActive PState
	CPUState     CPUState
	Energy       uint64 // joules, cumulative
}

// FreeMemory returns the memory currently unreserved on the machine.
func (m MachineInfo) FreeMemory() uint64 {
	if m.MemoryUsed >= m.MemoryCap {
		return 0
	}
	return m.MemoryCap - m.MemoryUsed
}

// MIPS returns the machine's instruction rate at its currently active P-state.
func (m MachineInfo) MIPS() float64 {
	return m.PStates[m.PStateActive]
}

// KWhFromJoules converts a cumulative joule counter into kilowatt-hours for
// the final SLA/energy report (§6). Pure unit conversion, no power model.
func KWhFromJoules(joules uint64) float64 {
	const joulesPerKWh = 3.6e6
	return float64(joules) / joulesPerKWh
}
