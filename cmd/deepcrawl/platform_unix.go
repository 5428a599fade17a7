//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// enableANSI is a no-op: Unix terminals render escape codes on stderr natively.
func enableANSI() {}

// registerSignals routes Ctrl+C and SIGTERM to ch. The crawl command treats
// the first as a graceful stop and the second as an abort.
func registerSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
}
