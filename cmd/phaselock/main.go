// Command phaselock runs problems locally and converts their phase maps into
// modulator drive tables.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
