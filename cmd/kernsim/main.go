// Demo simulator instance with the stock workloads.

package main

import (
	"flag"
	"os"

	"github.com/bgp59/kernsim"
)

const Version = "0.1.0"

func init() {
	kernsim.UpdateBuildInfo(Version, "")
	kernsim.AddCallerSrcPathPrefixToLogger(2)
}

func main() {
	flag.Parse()
	os.Exit(kernsim.Run(kernsim.DefaultWorkloadsConfig()))
}
