package trace

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/registry"
)

// DecisionRecord captures one policy decision for the audit log —
// placement, migration, tier change, or DVFS adjustment. Grounded on the
// teacher's sim/trace/record.go plain-data trace types; unlike the
// teacher's package this one carries a synthetic ID (uuid) since decision
// records, unlike simulator-assigned task/VM/machine IDs, are purely an
// engine-side observability artifact.
type DecisionRecord struct {
	ID     string
	Clock  int64
	Kind   string // e.g. "place", "migrate", "tier", "dvfs", "power", "unplaceable", "overcommit", "sla_warning"
	Detail string
}

// Recorder is the Instrumentation component (§2): SLA counters and the
// decision audit log; the aggregate energy figure is passed in to Report.
// Per-VM response-time windows live on vmtable.VM and are not part of the
// recorder or its report.
type Recorder struct {
	slaTotal     map[registry.SLAType]int
	slaViolation map[registry.SLAType]int
	log          []DecisionRecord
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		slaTotal:     make(map[registry.SLAType]int),
		slaViolation: make(map[registry.SLAType]int),
	}
}

// RecordCompletion tallies one completed (or permanently unplaceable) task
// against its SLA class for the final report.
func (r *Recorder) RecordCompletion(sla registry.SLAType, violated bool) {
	r.slaTotal[sla]++
	if violated {
		r.slaViolation[sla]++
	}
}

// SLAPercent returns the percentage of tasks of this class that violated
// their SLA, matching GetSLAReport's semantics (§6).
func (r *Recorder) SLAPercent(sla registry.SLAType) float64 {
	total := r.slaTotal[sla]
	if total == 0 {
		return 0
	}
	return 100.0 * float64(r.slaViolation[sla]) / float64(total)
}

// Record appends a decision to the audit log with a fresh synthetic ID.
func (r *Recorder) Record(clock int64, kind, detail string) {
	r.log = append(r.log, DecisionRecord{
		ID:     uuid.NewString(),
		Clock:  clock,
		Kind:   kind,
		Detail: detail,
	})
}

// Log returns the full decision audit log, oldest first.
func (r *Recorder) Log() []DecisionRecord { return r.log }

// RecordTierSnapshot logs the current tier population counts. Called by
// the tier policy's Tick whenever now is a multiple of Config.TierLogPeriod
// (1,000,000 simulated ticks by default) — the compatibility-critical behavior original_source/Scheduler.cpp
// performed inline in its own PeriodicCheck (SPEC_FULL §4.5).
func (r *Recorder) RecordTierSnapshot(now int64, running, intermediate, off int) {
	r.Record(now, "tier", fmt.Sprintf("running=%d intermediate=%d off=%d", running, intermediate, off))
}

// Report writes the final SimulationComplete report in the exact format
// required by §6.
func (r *Recorder) Report(w io.Writer, clusterEnergyJoules uint64, finishedAt int64) {
	fmt.Fprintln(w, "SLA violation report")
	fmt.Fprintf(w, "SLA0: %g%%\n", r.SLAPercent(registry.SLA0))
	fmt.Fprintf(w, "SLA1: %g%%\n", r.SLAPercent(registry.SLA1))
	fmt.Fprintf(w, "SLA2: %g%%\n", r.SLAPercent(registry.SLA2))
	fmt.Fprintf(w, "Total Energy %g KW-Hour\n", cluster.KWhFromJoules(clusterEnergyJoules))
	fmt.Fprintf(w, "Simulation run finished in %g seconds\n", float64(finishedAt)/1e6)
}
