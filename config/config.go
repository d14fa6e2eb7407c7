// Package config loads the cluster topology and policy selection that
// drive a run: a YAML topology fixture plus a policy name and its
// tunables, overridable via environment variables. The topology format
// follows the style of sim/workload/spec.go and sim/bundle.go; the
// loader's viper + mapstructure `SchedulerConfig` pattern follows
// Galev01-LimiQuantix/backend/internal/config/config.go, adopted because
// plain YAML structs alone don't cover env-var overlays.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cloudsched/cloudsched/cluster"
	"github.com/cloudsched/cloudsched/policy"
	"github.com/cloudsched/cloudsched/registry"
)

// MachineFixture is one machine's static description in a topology file.
type MachineFixture struct {
	CPU      string     `yaml:"cpu" mapstructure:"cpu"`
	Cores    int        `yaml:"cores" mapstructure:"cores"`
	MemoryGB float64    `yaml:"memory_gb" mapstructure:"memory_gb"`
	GPU      bool       `yaml:"gpu" mapstructure:"gpu"`
	MIPS     [4]float64 `yaml:"mips" mapstructure:"mips"`               // one per P-state, P0..P3
	PowerW   [7]float64 `yaml:"power_watts" mapstructure:"power_watts"` // one per S-state, S0..S5
	Count    int        `yaml:"count" mapstructure:"count"`             // how many identical machines this fixture describes
}

// Topology is the whole-cluster fixture: a list of machine fixtures, each
// possibly repeated Count times.
type Topology struct {
	Machines []MachineFixture `yaml:"machines" mapstructure:"machines"`
}

// LoadTopology reads a YAML topology fixture from disk.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read topology: %w", err)
	}
	var top Topology
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("config: parse topology: %w", err)
	}
	return &top, nil
}

// parseCPU maps a fixture's CPU string onto cluster.CPUType.
func parseCPU(name string) (cluster.CPUType, error) {
	switch name {
	case "X86", "x86":
		return cluster.X86, nil
	case "POWER", "power":
		return cluster.POWER, nil
	case "ARM", "arm":
		return cluster.ARM, nil
	case "RISCV", "riscv":
		return cluster.RISCV, nil
	default:
		return 0, fmt.Errorf("config: unknown cpu family %q", name)
	}
}

// ResolvedMachine is one machine, fully typed and with Count expanded —
// ready to hand to a Fleet/FakeSimulator constructor.
type ResolvedMachine struct {
	CPU       cluster.CPUType
	Cores     int
	MemoryCap uint64
	GPU       bool
	MIPS      [4]float64
	Power     [7]float64
}

// Resolve expands every fixture's Count into individual ResolvedMachine
// entries with its CPU family parsed and memory converted to bytes.
func (t *Topology) Resolve() ([]ResolvedMachine, error) {
	var out []ResolvedMachine
	for _, fixture := range t.Machines {
		cpu, err := parseCPU(fixture.CPU)
		if err != nil {
			return nil, err
		}
		count := fixture.Count
		if count <= 0 {
			count = 1
		}
		for i := 0; i < count; i++ {
			out = append(out, ResolvedMachine{
				CPU:       cpu,
				Cores:     fixture.Cores,
				MemoryCap: uint64(fixture.MemoryGB * 1e9),
				GPU:       fixture.GPU,
				MIPS:      fixture.MIPS,
				Power:     fixture.PowerW,
			})
		}
	}
	return out, nil
}

// TaskFixture is one task's static description in a workload file.
type TaskFixture struct {
	RequiredCPU       string `yaml:"cpu" mapstructure:"cpu"`
	RequiredOS        string `yaml:"os" mapstructure:"os"`
	RequiredMemoryGB  float64 `yaml:"memory_gb" mapstructure:"memory_gb"`
	SLA               string `yaml:"sla" mapstructure:"sla"`
	ArrivalTime       int64  `yaml:"arrival_time" mapstructure:"arrival_time"`
	TargetCompletion  int64  `yaml:"target_completion" mapstructure:"target_completion"`
	TotalInstructions uint64 `yaml:"total_instructions" mapstructure:"total_instructions"`
	GPUCapable        bool   `yaml:"gpu_capable" mapstructure:"gpu_capable"`
}

// Workload is an ordered list of task fixtures; TaskIDs are assigned by
// position, matching the simulator convention that task IDs are dense and
// simulator-assigned (§3).
type Workload struct {
	Tasks []TaskFixture `yaml:"tasks" mapstructure:"tasks"`
}

// LoadWorkload reads a YAML workload fixture from disk.
func LoadWorkload(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read workload: %w", err)
	}
	var w Workload
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("config: parse workload: %w", err)
	}
	return &w, nil
}

func parseOS(name string) (registry.VMType, error) {
	switch name {
	case "LINUX", "linux":
		return registry.LINUX, nil
	case "LINUX_RT", "linux_rt":
		return registry.LINUX_RT, nil
	case "WIN", "win":
		return registry.WIN, nil
	case "AIX", "aix":
		return registry.AIX, nil
	default:
		return 0, fmt.Errorf("config: unknown guest os %q", name)
	}
}

func parseSLA(name string) (registry.SLAType, error) {
	switch name {
	case "SLA0", "sla0":
		return registry.SLA0, nil
	case "SLA1", "sla1":
		return registry.SLA1, nil
	case "SLA2", "sla2":
		return registry.SLA2, nil
	case "SLA3", "sla3":
		return registry.SLA3, nil
	default:
		return 0, fmt.Errorf("config: unknown sla class %q", name)
	}
}

// Resolve converts every task fixture into a registry.TaskInfo, assigning
// dense TaskIDs by position.
func (w *Workload) Resolve() ([]registry.TaskInfo, error) {
	out := make([]registry.TaskInfo, 0, len(w.Tasks))
	for i, fixture := range w.Tasks {
		cpu, err := parseCPU(fixture.RequiredCPU)
		if err != nil {
			return nil, err
		}
		os, err := parseOS(fixture.RequiredOS)
		if err != nil {
			return nil, err
		}
		sla, err := parseSLA(fixture.SLA)
		if err != nil {
			return nil, err
		}
		out = append(out, registry.TaskInfo{
			ID:                registry.TaskID(i),
			RequiredCPU:       cpu,
			RequiredOS:        os,
			RequiredMemory:    uint64(fixture.RequiredMemoryGB * 1e9),
			SLA:               sla,
			ArrivalTime:       fixture.ArrivalTime,
			TargetCompletion:  fixture.TargetCompletion,
			TotalInstructions: fixture.TotalInstructions,
			GPUCapable:        fixture.GPUCapable,
		})
	}
	return out, nil
}

// SchedulerConfig is the top-level configuration for a run: which policy
// to install and its tunables, plus the topology file to build the fleet
// from and the simulation horizon.
type SchedulerConfig struct {
	TopologyFile   string       `mapstructure:"topology_file"`
	Horizon        int64        `mapstructure:"horizon"`
	PeriodicPeriod int64        `mapstructure:"periodic_period"`
	LogLevel       string       `mapstructure:"log_level"`
	Policy         policy.Config `mapstructure:"policy"`
}

// DefaultSchedulerConfig returns a runnable configuration for a policy
// kind, using that policy's own spec-mandated defaults.
func DefaultSchedulerConfig(kind policy.Kind) SchedulerConfig {
	return SchedulerConfig{
		Horizon:        10_000_000,
		PeriodicPeriod: 1000,
		LogLevel:       "info",
		Policy:         policy.DefaultConfig(kind),
	}
}

// Load reads a SchedulerConfig from a file (any format viper supports —
// YAML, JSON, TOML), overlaying any CLOUDSCHED_-prefixed environment
// variable that names a field.
func Load(path string, defaults SchedulerConfig) (SchedulerConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("CLOUDSCHED")
	v.AutomaticEnv()
	v.SetConfigFile(path)

	v.SetDefault("horizon", defaults.Horizon)
	v.SetDefault("periodic_period", defaults.PeriodicPeriod)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("policy", defaults.Policy)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return SchedulerConfig{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg SchedulerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SchedulerConfig{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
