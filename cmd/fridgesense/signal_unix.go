//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals are the signals that begin a graceful shutdown.
// Process managers (systemd, kubernetes) deliver SIGTERM; interactive
// runs send os.Interrupt.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
