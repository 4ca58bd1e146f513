// Command wasmvm decodes and runs WebAssembly MVP modules.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("wasmvm: command failed")
		os.Exit(1)
	}
}
