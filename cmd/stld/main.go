// Command stld links SMOF relocatable object files into a linked SMOF
// artifact or a raw flat binary image.
//
// Usage: stld [flags] file1.smof file2.smof ...
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stld: %v\n", err)
		os.Exit(1)
	}
}
