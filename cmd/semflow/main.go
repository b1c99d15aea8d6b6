// Package main implements the semflow command: a flow runtime serving
// editors over websocket and an optional automation bridge.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Build information
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "semflow"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := newRootCommand().Execute(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}
