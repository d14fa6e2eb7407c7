package policy

// Kind names one of the five concrete strategies of §4.5.
type Kind string

const (
	Greedy    Kind = "greedy"
	Tier      Kind = "tier"
	Predictive Kind = "predictive"
	FirstFit  Kind = "firstfit"
	UtilSort  Kind = "utilsort"
)

// Config carries every tunable §4.5 names, defaulted to fixed baseline
// numbers but overridable via config.SchedulerConfig (§6/§10).
type Config struct {
	Policy Kind `mapstructure:"policy" yaml:"policy"`

	// Greedy-consolidate
	ConsolidationFloor int `mapstructure:"consolidation_floor" yaml:"consolidation_floor"` // min active machines before consolidating

	// Three-tier ("eco")
	HighLoadThreshold float64 `mapstructure:"high_load_threshold" yaml:"high_load_threshold"`
	LowLoadThreshold  float64 `mapstructure:"low_load_threshold" yaml:"low_load_threshold"`
	TasksPerMachine   int     `mapstructure:"tasks_per_machine" yaml:"tasks_per_machine"`
	TierLogPeriod     int64   `mapstructure:"tier_log_period" yaml:"tier_log_period"` // ticks between tier population log samples

	// Predictive (response-time)
	DVFSCheckPeriod    int     `mapstructure:"dvfs_check_period" yaml:"dvfs_check_period"`   // completions between DVFS checks
	ConsolidatePeriod  int     `mapstructure:"consolidate_period" yaml:"consolidate_period"` // completions between consolidation passes
	SlopeRaiseThreshold float64 `mapstructure:"slope_raise_threshold" yaml:"slope_raise_threshold"`
	SlopeLowerThreshold float64 `mapstructure:"slope_lower_threshold" yaml:"slope_lower_threshold"`

	// Sort-by-utilization with DVFS
	MigrateThreshold  float64 `mapstructure:"migrate_threshold" yaml:"migrate_threshold"`
	MigrateHeadroom   float64 `mapstructure:"migrate_headroom" yaml:"migrate_headroom"`

	// §9 open question 1: id-based priority override, off by default.
	PriorityOverrideIDs []int `mapstructure:"priority_override_ids" yaml:"priority_override_ids"`
}

// DefaultConfig returns the baseline tuning numbers (§4.5, §8 scenario 4/6).
func DefaultConfig(kind Kind) Config {
	return Config{
		Policy:             kind,
		ConsolidationFloor: 4,
		HighLoadThreshold:  0.7,
		LowLoadThreshold:   0.3,
		TasksPerMachine:    4,
		TierLogPeriod:      1_000_000,
		DVFSCheckPeriod:    10,
		ConsolidatePeriod:  50,
		SlopeRaiseThreshold: 0.10,
		SlopeLowerThreshold: -0.10,
		MigrateThreshold:   0.9,
		MigrateHeadroom:    0.1,
	}
}
