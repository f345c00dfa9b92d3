// Demo workloads: configurable kernel threads for the simulator runner.

package kernsim_internal

import (
	"strconv"
)

const (
	BUSY_WORKLOAD_COUNT_DEFAULT = 2
	BUSY_WORKLOAD_STEPS_DEFAULT = uint64(0) // run forever

	SLEEPER_WORKLOAD_COUNT_DEFAULT       = 1
	SLEEPER_WORKLOAD_RUN_TICKS_DEFAULT   = 3
	SLEEPER_WORKLOAD_SLEEP_TICKS_DEFAULT = 10
	SLEEPER_WORKLOAD_CYCLES_DEFAULT      = 0 // run forever
)

// A busy workload consumes every tick it is given, exiting after a number
// of body steps (0 meaning never).
type BusyWorkloadConfig struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
	Steps uint64 `yaml:"steps"`
}

// A sleeper workload alternates run_ticks steps of work with a sleep_ticks
// nap on the tick timer, for a number of cycles (0 meaning forever). It
// exercises the wait object protocol.
type SleeperWorkloadConfig struct {
	Name       string `yaml:"name"`
	Count      int    `yaml:"count"`
	RunTicks   int    `yaml:"run_ticks"`
	SleepTicks int    `yaml:"sleep_ticks"`
	Cycles     int    `yaml:"cycles"`
}

type WorkloadsConfig struct {
	Busy     []*BusyWorkloadConfig    `yaml:"busy"`
	Sleepers []*SleeperWorkloadConfig `yaml:"sleepers"`
}

func DefaultWorkloadsConfig() *WorkloadsConfig {
	return &WorkloadsConfig{
		Busy: []*BusyWorkloadConfig{
			{
				Name:  "busy",
				Count: BUSY_WORKLOAD_COUNT_DEFAULT,
				Steps: BUSY_WORKLOAD_STEPS_DEFAULT,
			},
		},
		Sleepers: []*SleeperWorkloadConfig{
			{
				Name:       "sleeper",
				Count:      SLEEPER_WORKLOAD_COUNT_DEFAULT,
				RunTicks:   SLEEPER_WORKLOAD_RUN_TICKS_DEFAULT,
				SleepTicks: SLEEPER_WORKLOAD_SLEEP_TICKS_DEFAULT,
				Cycles:     SLEEPER_WORKLOAD_CYCLES_DEFAULT,
			},
		},
	}
}

var workloadLog = NewCompLogger("workload")

func busyBody(steps uint64) KthreadBody {
	var done uint64
	burn := 0
	return func(ti *TaskInfo) bool {
		for i := 0; i < 1000; i++ {
			burn += i
		}
		done++
		return steps == 0 || done < steps
	}
}

func sleeperBody(m *Machine, cfg *SleeperWorkloadConfig) KthreadBody {
	runLeft := cfg.RunTicks
	cycles := 0
	return func(ti *TaskInfo) bool {
		runLeft--
		if runLeft > 0 {
			return true
		}
		cycles++
		if cfg.Cycles > 0 && cycles >= cfg.Cycles {
			return false
		}
		runLeft = cfg.RunTicks
		m.SleepCurrentTicks(cfg.SleepTicks)
		return true
	}
}

// SpawnWorkloads creates the configured demo kernel threads; called during
// boot, before the machine starts.
func SpawnWorkloads(k *Kernel, m *Machine, workloadsConfig *WorkloadsConfig) error {
	if workloadsConfig == nil {
		return nil
	}

	for _, busyCfg := range workloadsConfig.Busy {
		for i := 0; i < busyCfg.Count; i++ {
			name := workloadInstanceName(busyCfg.Name, i, busyCfg.Count)
			ti, err := k.KthreadCreate(name, busyBody(busyCfg.Steps))
			if err != nil {
				return err
			}
			workloadLog.Infof("spawned %s, tid=%d", name, ti.Tid)
		}
	}

	for _, sleeperCfg := range workloadsConfig.Sleepers {
		cfg := sleeperCfg
		if cfg.RunTicks <= 0 {
			cfg.RunTicks = SLEEPER_WORKLOAD_RUN_TICKS_DEFAULT
		}
		if cfg.SleepTicks <= 0 {
			cfg.SleepTicks = SLEEPER_WORKLOAD_SLEEP_TICKS_DEFAULT
		}
		for i := 0; i < cfg.Count; i++ {
			name := workloadInstanceName(cfg.Name, i, cfg.Count)
			ti, err := k.KthreadCreate(name, sleeperBody(m, cfg))
			if err != nil {
				return err
			}
			workloadLog.Infof("spawned %s, tid=%d", name, ti.Tid)
		}
	}

	return nil
}

func workloadInstanceName(name string, i, count int) string {
	if count <= 1 {
		return name
	}
	return name + "#" + strconv.Itoa(i)
}
