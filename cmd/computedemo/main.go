// Command computedemo drives the compute runtime from many goroutines and
// reports the batching and pool statistics.
//
//	computedemo run --backend noop --goroutines 8 --dispatches 100
//	computedemo run --backend vulkan --verify
//	computedemo config --config demo.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "computedemo:", err)
		os.Exit(1)
	}
}
