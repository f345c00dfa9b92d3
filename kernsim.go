// The public face of the simulator for the users of this package

package kernsim

import (
	"flag"

	"github.com/sirupsen/logrus"

	kernsim_internal "github.com/bgp59/kernsim/internal"
)

// Core types:
type Kernel = kernsim_internal.Kernel
type TaskInfo = kernsim_internal.TaskInfo
type ProcessInfo = kernsim_internal.ProcessInfo
type TaskState = kernsim_internal.TaskState
type WaitObj = kernsim_internal.WaitObj
type KthreadBody = kernsim_internal.KthreadBody
type SchedStats = kernsim_internal.SchedStats

// Architecture and machine:
type Arch = kernsim_internal.Arch
type SimArch = kernsim_internal.SimArch
type Machine = kernsim_internal.Machine
type TaskletSubsystem = kernsim_internal.TaskletSubsystem

// Configuration:
type KernsimConfig = kernsim_internal.KernsimConfig
type SchedulerConfig = kernsim_internal.SchedulerConfig
type MachineConfig = kernsim_internal.MachineConfig
type WorkloadsConfig = kernsim_internal.WorkloadsConfig

const (
	TaskStateInvalid  = kernsim_internal.TaskStateInvalid
	TaskStateRunnable = kernsim_internal.TaskStateRunnable
	TaskStateRunning  = kernsim_internal.TaskStateRunning
	TaskStateSleeping = kernsim_internal.TaskStateSleeping
	TaskStateZombie   = kernsim_internal.TaskStateZombie

	NoIrq    = kernsim_internal.NoIrq
	TimerIrq = kernsim_internal.TimerIrq
)

func NewKernel(schedulerCfg *SchedulerConfig, arch Arch) *Kernel {
	return kernsim_internal.NewKernel(schedulerCfg, arch)
}

func NewSimArch(kernelStackSize int64) *SimArch {
	return kernsim_internal.NewSimArch(kernelStackSize)
}

func NewMachine(kernel *Kernel, machineCfg *MachineConfig) (*Machine, error) {
	return kernsim_internal.NewMachine(kernel, machineCfg)
}

func DefaultKernsimConfig() *KernsimConfig {
	return kernsim_internal.DefaultKernsimConfig()
}

func DefaultWorkloadsConfig() *WorkloadsConfig {
	return kernsim_internal.DefaultWorkloadsConfig()
}

// The instance should be primed w/ the desired default *before* invoking
// the runner, typically from an init(). Its value may be modified via
// config and command line args.
func SetDefaultInstance(instance string) {
	kernsim_internal.Instance = instance
}

// Set the config flag default value, typically to
// <default_instance>-config.yaml:
func SetDefaultConfigFile(filePath string) {
	if configFlag := flag.Lookup(kernsim_internal.CONFIG_FLAG_NAME); configFlag != nil {
		if err := configFlag.Value.Set(filePath); err == nil {
			configFlag.DefValue = filePath
		}
	}
}

// Update build info: version (semver) and git info. This function should be
// called *before* the runner is invoked, typically from an init() function.
func UpdateBuildInfo(version, gitInfo string) {
	kernsim_internal.Version = version
	kernsim_internal.GitInfo = gitInfo
}

// Get the instance, which is typically set from the command line or config.
func GetInstance() string {
	return kernsim_internal.Instance
}

// Get the hostname, based on OS and/or command line arg.
func GetHostname() string {
	return kernsim_internal.Hostname
}

// The root logger, with its actual type obscured. The only use case is
// tests where the logger output is captured:
//
//	tlc := kernsim_testutils.NewTestLogCollect(t, kernsim.GetRootLogger(), nil)
//	defer tlc.RestoreLog()
func GetRootLogger() any { return kernsim_internal.RootLogger }

// Create new component logger w/ comp=compName field:
func NewCompLogger(comp string) *logrus.Entry {
	return kernsim_internal.NewCompLogger(comp)
}

// When logging files, the file name is typically made relative to the
// module root dir. The following sets the caller's module path, inferred
// from the caller's file path going up N dirs, as the prefix to strip; it
// replaces any prefix set before.
func AddCallerSrcPathPrefixToLogger(upNDirs int) {
	// skip = 1 below to base the caller's path on the caller of this
	// function.
	kernsim_internal.AddCallerSrcPathPrefixToLogger(upNDirs, 1)
}

// The runner boots the simulated kernel and runs the machine. It takes the
// workloads config primed with default values; the config file may alter
// some of those. Normally it returns when the machine runs out of ticks or
// when the process is interrupted via a signal. Its return value should be
// used as the process exit status.
func Run(workloadsConfig *WorkloadsConfig) int {
	return kernsim_internal.Run(workloadsConfig)
}
