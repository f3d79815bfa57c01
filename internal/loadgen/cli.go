package loadgen

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/leadrank/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging points the global logger at stdout and, when logFile is set,
// at that file too. The returned func closes the file.
func SetupLogging(logFile string) (func() error, error) {
	if logFile == "" {
		if err := logger.Init(); err != nil {
			return nil, fmt.Errorf("initialize logger: %w", err)
		}
		return func() error { return nil }, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file.Close, nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `LeadRank Load Generator
=======================

Generates synthetic leads, imports them into a running service across several
owners, waits for each owner's ranks to settle and verifies they are dense and
ordered by score.

Usage:
  go run ./cmd/loadgen [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -owners int
        Number of owner scopes (default 4)
  -leads int
        Leads generated per owner (default 500)
  -batch int
        Leads per import request (default 50)
  -workers int
        Concurrent import submitters (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        How long to wait for ranks to settle (default 2m)
  -seed uint
        Generator seed, 0 for a random one
  -output string
        Write the generated imports to this JSON file
  -log string
        Also write logs to this file
  -verbose
        Log each owner's top leads
  -help
        Show this help message

Examples:
  go run ./cmd/loadgen -owners 10 -leads 2000 -batch 100
  go run ./cmd/loadgen -seed 42 -output leads.json -verbose
`)
}
