//go:build unix

package kernsim_internal

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

func GetHostOsInfo() (map[string]string, error) {
	zeroSuffixBufToString := func(buf []byte) string {
		i := bytes.IndexByte(buf, 0)
		if i < 0 {
			i = len(buf)
		}
		return string(buf[:i])
	}

	uname := unix.Utsname{}
	err := unix.Uname(&uname)
	if err != nil {
		return nil, fmt.Errorf("unix.Uname(): %v", err)
	}

	osInfo := make(map[string]string)
	osInfo["name"] = zeroSuffixBufToString(uname.Sysname[:])
	osInfo["release"] = zeroSuffixBufToString(uname.Release[:])
	osInfo["machine"] = zeroSuffixBufToString(uname.Machine[:])
	return osInfo, nil
}

// GetHostCpuTime returns the CPU seconds consumed by the simulator process
// itself, logged at shutdown.
func GetHostCpuTime() (float64, error) {
	rusage := &unix.Rusage{}
	err := unix.Getrusage(unix.RUSAGE_SELF, rusage)
	if err != nil {
		return 0, err
	}
	return (float64(rusage.Utime.Sec+rusage.Stime.Sec) +
		float64(rusage.Utime.Usec+rusage.Stime.Usec)/1e6), nil
}
