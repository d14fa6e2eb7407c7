package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cloudsched/cloudsched/config"
	"github.com/cloudsched/cloudsched/engine"
	"github.com/cloudsched/cloudsched/enginetest"
	"github.com/cloudsched/cloudsched/policy"
)

var (
	topologyFile   string
	workloadFile   string
	configFile     string
	policyName     string
	logLevel       string
	horizon        int64
	periodicPeriod int64
)

// runCmd drives a full simulation run using the reference in-memory
// harness (enginetest.FakeSimulator + enginetest.Driver) instead of a
// real cluster: it loads a topology and a workload, installs the chosen
// Policy, wires an Engine over the fake simulator, and runs it to
// completion, printing the final SLA/energy report.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scheduling policy against a cluster topology and workload",
	RunE: func(cmd *cobra.Command, args []string) error {
		setLogLevel(logLevel)

		defaults := config.DefaultSchedulerConfig(policy.Kind(policyName))
		cfg, err := config.Load(configFile, defaults)
		if err != nil && configFile != "" {
			return err
		}
		if configFile == "" {
			cfg = defaults
		}
		if horizon > 0 {
			cfg.Horizon = horizon
		}
		if periodicPeriod > 0 {
			cfg.PeriodicPeriod = periodicPeriod
		}

		topology, err := config.LoadTopology(topologyFile)
		if err != nil {
			return err
		}
		machines, err := topology.Resolve()
		if err != nil {
			return err
		}
		specs := make([]enginetest.MachineSpec, len(machines))
		for i, m := range machines {
			specs[i] = enginetest.MachineSpec{
				CPU:       m.CPU,
				Cores:     m.Cores,
				MemoryCap: m.MemoryCap,
				GPU:       m.GPU,
				MIPS:      m.MIPS,
				Power:     m.Power,
			}
		}

		workload, err := config.LoadWorkload(workloadFile)
		if err != nil {
			return err
		}
		tasks, err := workload.Resolve()
		if err != nil {
			return err
		}

		pol, err := policy.New(cfg.Policy)
		if err != nil {
			return err
		}

		sim := enginetest.NewFakeSimulator(specs, tasks)
		driver := enginetest.NewDriver(sim, cfg.Horizon, cfg.PeriodicPeriod)
		eng := engine.New(sim, pol, cfg.Policy)
		driver.Bind(eng)

		logrus.WithFields(logrus.Fields{
			"policy":   pol.Name(),
			"machines": len(specs),
			"tasks":    len(tasks),
			"horizon":  cfg.Horizon,
		}).Info("starting run")

		if err := eng.InitScheduler(); err != nil {
			return fmt.Errorf("scheduler init: %w", err)
		}
		driver.Run()
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&topologyFile, "topology", "", "path to a cluster topology YAML fixture")
	runCmd.Flags().StringVar(&workloadFile, "workload", "", "path to a task workload YAML fixture")
	runCmd.Flags().StringVar(&configFile, "config", "", "path to a scheduler config file (policy tunables)")
	runCmd.Flags().StringVar(&policyName, "policy", string(policy.Greedy), "policy: greedy, tier, predictive, firstfit, utilsort")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().Int64Var(&horizon, "horizon", 0, "simulation horizon in ticks (0: use config default)")
	runCmd.Flags().Int64Var(&periodicPeriod, "periodic-period", 0, "ticks between periodic scheduler checks (0: use config default)")

	runCmd.MarkFlagRequired("topology")
	runCmd.MarkFlagRequired("workload")
}
