// Host probes, collected once at startup. The simulator borrows a few
// facts from the machine it runs on: the clock tick frequency seeds the
// default timer HZ, the boot time seeds the simulated wall clock and the
// CPU count goes into the boot banner (only one CPU is ever simulated).

package kernsim_internal

import (
	"fmt"
	"os"
	"time"
)

var (
	AvailableCPUCount = GetAvailableCPUCount()
	HostBootTime      = time.Now()
	Clktck            int64
	ClktckSec         float64
	HostOsInfo        = make(map[string]string)
	HostOsRelease     = make(map[string]string)
)

func init() {
	bootTime, err := GetHostBootTime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "GetHostBootTime(): %v\n", err)
	} else {
		HostBootTime = bootTime
	}

	clktck, err := GetSysClktck()
	if err != nil {
		fmt.Fprintf(os.Stderr, "GetSysClktck(): %v\n", err)
	} else {
		Clktck = clktck
		ClktckSec = float64(1) / float64(Clktck)
	}

	osInfo, err := GetHostOsInfo()
	if err != nil {
		fmt.Fprintf(os.Stderr, "GetHostOsInfo(): %v\n", err)
	} else {
		HostOsInfo = osInfo
	}

	osRelease, err := GetHostOsReleaseInfo()
	if err != nil {
		fmt.Fprintf(os.Stderr, "GetHostOsReleaseInfo(): %v\n", err)
	} else {
		HostOsRelease = osRelease
	}
}
