// Command eplus runs EnergyPlus simulations and manages the models and
// weather files they need.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
