// Simulator configuration

// The configuration is loaded from a YAML file, with the following
// structure:
//
//  kernsim_config:
//    instance: kernsim
//    shutdown_max_wait: 5s
//    log_config:
//      ...
//    scheduler_config:
//      ...
//    machine_config:
//      ...
//  workloads:
//     ...
//
// The "kernsim_config" section maps to the KernsimConfig structure defined
// in this package. The "workloads" section describes the demo kernel
// threads and is owned by the runner's caller: it is decoded into the
// structure passed in, primed with default values.

package kernsim_internal

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	KERNSIM_CONFIG_SECTION_NAME = "kernsim_config"
	WORKLOADS_SECTION_NAME      = "workloads"

	KERNSIM_CONFIG_SHUTDOWN_MAX_WAIT_DEFAULT = 5 * time.Second
)

type KernsimConfig struct {
	// The instance name, default "kernsim". It may be overridden by
	// --instance command line arg.
	Instance string `yaml:"instance"`

	// How long to wait for a graceful shutdown. A negative value signifies
	// indefinite wait and 0 stands for no wait at all (exit abruptly).
	ShutdownMaxWait time.Duration `yaml:"shutdown_max_wait"`

	// Specific components configuration.
	LoggerConfig    *LoggerConfig    `yaml:"log_config"`
	SchedulerConfig *SchedulerConfig `yaml:"scheduler_config"`
	MachineConfig   *MachineConfig   `yaml:"machine_config"`
}

func DefaultKernsimConfig() *KernsimConfig {
	return &KernsimConfig{
		Instance:        Instance,
		ShutdownMaxWait: KERNSIM_CONFIG_SHUTDOWN_MAX_WAIT_DEFAULT,
		LoggerConfig:    DefaultLoggerConfig(),
		SchedulerConfig: DefaultSchedulerConfig(),
		MachineConfig:   DefaultMachineConfig(),
	}
}

// LoadConfig loads the configuration from the specified YAML file (or
// buffer, for testing) as follows:
//   - the kernsim_config section is returned as a *KernsimConfig structure
//   - the workloads section is loaded into the provided workloadsConfig
//     structure, which is expected to have been primed with default values.
//
// Additionally an error is returned if the configuration could not be
// loaded or parsed.
func LoadConfig(cfgFile string, workloadsConfig any, buf []byte) (*KernsimConfig, error) {
	if buf == nil {
		// Normal case, buf is pre-populated only for testing.
		f, err := os.Open(cfgFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf, err = io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
		}
	}

	docNode := yaml.Node{}
	err := yaml.Unmarshal(buf, &docNode)
	if err != nil {
		return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
	}

	kernsimConfig := DefaultKernsimConfig()
	if docNode.Kind == yaml.DocumentNode && len(docNode.Content) > 0 {
		rootNode := docNode.Content[0]
		if rootNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("file: %q: invalid YAML root node %q", cfgFile, rootNode.Tag)
		}
		var toCfg any = nil
		for _, n := range rootNode.Content {
			if n.Kind == yaml.ScalarNode {
				switch n.Value {
				case KERNSIM_CONFIG_SECTION_NAME:
					toCfg = kernsimConfig
				case WORKLOADS_SECTION_NAME:
					toCfg = workloadsConfig
				}
				continue
			}
			if n.Kind == yaml.MappingNode && toCfg != nil {
				if err = n.Decode(toCfg); err != nil {
					return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
				}
			}
			toCfg = nil
		}
	}

	return kernsimConfig, nil
}
