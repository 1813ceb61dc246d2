//go:build windows

package main

import (
	"os"
)

// terminationSignals triggers graceful shutdown. Windows only delivers
// os.Interrupt (Ctrl+C), there is no SIGTERM equivalent.
var terminationSignals = []os.Signal{os.Interrupt}
