package kernsim_internal

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bgp59/logrusx"
	"github.com/docker/go-units"
)

// The runner is the main entry point for a simulator instance.
//
// It is responsible for loading the configuration, setting up the logger,
// booting the simulated kernel (bootstrap task, scheduler, idle task,
// configured workloads) and running the machine either for a fixed number
// of ticks or until a signal is received.
//
// Some of the configuration parameters may be overridden via command line
// arguments. The latter must be parsed by the main function *before*
// calling the runner.

const (
	CONFIG_FLAG_NAME = "config"
	INSTANCE_DEFAULT = "kernsim"
)

var (
	// The hostname, based on OS or command line arg.
	Hostname string

	// The instance should be primed w/ the desired default *before*
	// invoking the runner, most likely from an init(). Its value may be
	// modified via config and command line args.
	Instance string = INSTANCE_DEFAULT

	// Build info, normally set via init() by the user of this package.
	Version string
	GitInfo string
)

// Command line args; they should be defined at package scope since the
// flags are parsed in main.
var (
	versionArg = flag.Bool(
		"version",
		false,
		FormatFlagUsage(
			`Print the version and exit`,
		),
	)

	configFileArg = flag.String(
		CONFIG_FLAG_NAME,
		fmt.Sprintf("%s-config.yaml", INSTANCE_DEFAULT),
		`Config file to load`,
	)

	hostnameArg = flag.String(
		"hostname",
		"",
		FormatFlagUsage(
			`Override the the value returned by hostname syscall`,
		),
	)

	instanceArg = flag.String(
		"instance",
		"",
		FormatFlagUsage(
			`Override the "kernsim_config.instance" config setting`,
		),
	)

	runTicksArg = flag.Uint64(
		"run-ticks",
		0,
		FormatFlagUsage(
			`Override the "kernsim_config.machine_config.run_ticks" config
			setting; the machine halts after that many timer ticks`,
		),
	)

	turboArg = flag.Bool(
		"turbo",
		false,
		FormatFlagUsage(
			`Override the "kernsim_config.machine_config.turbo" config
			setting: run simulated ticks back to back instead of in real
			time`,
		),
	)
)

func init() {
	logrusx.EnableLoggerArgs()
}

var runnerLog = NewCompLogger("runner")

// Run is the entry point for an actual simulator instance. It should be
// called with the workloads configuration primed with default values. The
// return value is the exit code of the executable.
func Run(workloadsConfig *WorkloadsConfig) int {
	var (
		err           error
		shutdownTimer *time.Timer
		kernsimConfig *KernsimConfig
	)

	if !flag.Parsed() {
		flag.Parse()
	}

	if *versionArg {
		fmt.Fprintf(os.Stderr, "Version: %s, GitInfo: %s\n", Version, GitInfo)
		return 0
	}

	configFile := *configFileArg
	kernsimConfig, err = LoadConfig(configFile, workloadsConfig, nil)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
			return 1
		}
		// No config file: run with the built-in defaults.
		fmt.Fprintf(os.Stderr, "Config file %q not found, using defaults\n", configFile)
		kernsimConfig = DefaultKernsimConfig()
	}

	// Override the config with command line args:
	if *instanceArg != "" {
		kernsimConfig.Instance = *instanceArg
	}
	if *runTicksArg > 0 {
		kernsimConfig.MachineConfig.RunTicks = *runTicksArg
	}
	if *turboArg {
		kernsimConfig.MachineConfig.Turbo = true
	}
	logrusx.ApplySetLoggerArgs((*logrusx.LoggerConfig)(kernsimConfig.LoggerConfig))

	// Set the logger level and file:
	err = SetLogger(kernsimConfig.LoggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting the logger: %v\n", err)
		return 1
	}

	// Set the globals:
	Instance = kernsimConfig.Instance
	if *hostnameArg != "" {
		Hostname = *hostnameArg
	} else {
		Hostname, err = os.Hostname()
		if err != nil {
			runnerLog.Errorf("Error getting hostname: %v", err)
			return 1
		}
		if i := strings.Index(Hostname, "."); i > 0 {
			Hostname = Hostname[:i]
		}
	}

	// Boot banner:
	runnerLog.Infof("Instance: %s, Hostname: %s", Instance, Hostname)
	runnerLog.Infof(
		"Host: %s %s (%s), %d CPU(s), clk_tck=%d, booted %s",
		HostOsInfo["name"], HostOsInfo["release"], HostOsInfo["machine"],
		AvailableCPUCount, Clktck, HostBootTime.Format(time.RFC3339),
	)
	if pretty := HostOsRelease["pretty_name"]; pretty != "" {
		runnerLog.Infof("Host distro: %s", pretty)
	}
	if AvailableCPUCount > 1 {
		runnerLog.Warnf("host has %d CPUs, simulating a single one", AvailableCPUCount)
	}

	// Create a stopped timer to provide timeout support at shutdown. It is
	// armed as a watchdog right before the machine shutdown below.
	if kernsimConfig.ShutdownMaxWait > 0 {
		shutdownTimer = time.NewTimer(1 * time.Hour)
		shutdownTimer.Stop()
		defer shutdownTimer.Stop()
	}

	// Boot the simulated kernel, preemption disabled throughout:
	kernelStackSize, err := ParseKthreadStackSize(kernsimConfig.MachineConfig)
	if err != nil {
		runnerLog.Fatal(err)
	}
	arch := NewSimArch(kernelStackSize)

	kernel := NewKernel(kernsimConfig.SchedulerConfig, arch)
	kernel.CreateKernelProcess()
	kernel.InitSched()

	machine, err := NewMachine(kernel, kernsimConfig.MachineConfig)
	if err != nil {
		runnerLog.Fatal(err)
	}

	if err = SpawnWorkloads(kernel, machine, workloadsConfig); err != nil {
		runnerLog.Fatal(err)
	}

	// Boot complete:
	kernel.EnablePreemption()
	machine.Start()

	// Block until a signal is received or the machine runs out of ticks:
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		if kernsimConfig.ShutdownMaxWait == 0 {
			runnerLog.Fatalf("%s signal received, force exit", sig)
		} else {
			runnerLog.Warnf("%s signal received, shutting down", sig)
		}
	case <-machine.Done():
	}

	if shutdownTimer != nil {
		// Trigger timeout watchdog: if it fires, it will forcibly exit the
		// program.
		go func() {
			shutdownTimer.Reset(kernsimConfig.ShutdownMaxWait)
			<-shutdownTimer.C
			runnerLog.Fatalf("shutdown timed out after %s, force exit", kernsimConfig.ShutdownMaxWait)
		}()
	}

	machine.Shutdown()
	logRunReport(kernel, arch, machine)
	return 0
}

func logRunReport(kernel *Kernel, arch *SimArch, machine *Machine) {
	stats := kernel.SnapStats(nil)
	runnerLog.Infof(
		"ticks=%d, context_switches=%d, preemptions=%d, keep_current=%d, idle_switches=%d, tasklet_switches=%d",
		stats.Uint64Stats[SCHED_STATS_TICK_COUNT],
		stats.Uint64Stats[SCHED_STATS_CONTEXT_SWITCH_COUNT],
		stats.Uint64Stats[SCHED_STATS_PREEMPTION_COUNT],
		stats.Uint64Stats[SCHED_STATS_KEEP_CURRENT_COUNT],
		stats.Uint64Stats[SCHED_STATS_IDLE_SWITCH_COUNT],
		stats.Uint64Stats[SCHED_STATS_TASKLET_SWITCH_COUNT],
	)
	runnerLog.Infof(
		"idle_ticks=%d, irq_acks=%d, halts=%d, stacks_reserved=%s, sim_time=%s",
		kernel.IdleTicks(), arch.IrqAckCount(), arch.HaltCount(),
		units.BytesSize(float64(arch.StackBytesReserved())),
		machine.SimTime().Format(time.RFC3339),
	)
	if cpuTime, err := GetHostCpuTime(); err == nil {
		runnerLog.Infof("host CPU time used: %.3fs", cpuTime)
	}
}
