//go:build !windows

package main

import (
	"os"
	"syscall"
)

// terminationSignals triggers graceful shutdown. SIGTERM covers systemd and
// container runtimes, os.Interrupt covers Ctrl+C.
var terminationSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
