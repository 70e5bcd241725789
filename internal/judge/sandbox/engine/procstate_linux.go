//go:build linux

package engine

import (
	"io"
	"os"
	"syscall"
	"time"
)

// exitSummary is what the helper's wait status tells us about the jailed program.
type exitSummary struct {
	exitCode int
	signaled bool
	cpu      time.Duration
}

func summarizeExit(state *os.ProcessState) exitSummary {
	if state == nil {
		return exitSummary{exitCode: -1}
	}
	sum := exitSummary{exitCode: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok {
		sum.signaled = ws.Signaled()
	}
	if ru, ok := state.SysUsage().(*syscall.Rusage); ok {
		sum.cpu = time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
	}
	return sum
}

// readCapturedFile returns at most maxBytes of a capture file. A missing file reads as empty.
func readCapturedFile(path string, maxBytes int64) string {
	if path == "" || maxBytes <= 0 {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := newCappedBuffer(maxBytes)
	_, _ = io.Copy(buf, f)
	return buf.String()
}
