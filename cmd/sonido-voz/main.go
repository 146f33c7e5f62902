// Package main is the entry point for the sonido-voz CLI.
//
// Usage:
//
//	sonido-voz [flags] <command> [args]
//
// Commands:
//
//	serve      - Run the HTTP detection API
//	detect     - Classify a local file or URL
//	features   - Print the feature vector of a file
//	normalize  - Decode, resample and peak-normalize a file to WAV
//	train      - Fit a model artifact from labelled recordings
package main

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/sonido-voz/cmd/sonido-voz/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
