// Command scribe runs the consultation scribe service and its tooling.
//
// Usage:
//
//	scribe [--config path] <command> [subcommand] [args]
//
// Commands:
//
//	serve     - HTTP API, websocket capture and Prometheus metrics
//	record    - record the default microphone into a 16 kHz WAV file
//	section   - render or parse one section of a clinical record
//	queue     - patient queue bookkeeping (add, list, start, complete)
//	finish    - archive a consultation and complete its queue entry
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
