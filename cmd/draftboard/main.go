// Command draftboard serves ranked fantasy player data with tiering, caching
// and a refresh pipeline.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
