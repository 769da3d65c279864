// Command star creates, extracts, updates, lists, and deletes members of
// a STAR archive.
//
// Usage: star -f ARCHIVE {-c|-x|-u|-t|-d} [flags] [file|member ...]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "star: %v\n", err)
		os.Exit(1)
	}
}
