package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/leadrank/internal/loadgen"
	"github.com/okian/leadrank/pkg/logger"
)

const (
	defaultOwners     = 4
	defaultLeads      = 500
	defaultBatch      = 50
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 30 * time.Second
	defaultSettle     = 2 * time.Minute
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		owners     = flag.Int("owners", defaultOwners, "Number of owner scopes")
		leads      = flag.Int("leads", defaultLeads, "Leads generated per owner")
		batch      = flag.Int("batch", defaultBatch, "Leads per import request")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent import submitters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettle, "How long to wait for ranks to settle")
		seed       = flag.Uint64("seed", 0, "Generator seed, 0 for a random one")
		outputFile = flag.String("output", "", "Write the generated imports to this JSON file")
		logFile    = flag.String("log", "", "Also write logs to this file")
		verbose    = flag.Bool("verbose", false, "Log each owner's top leads")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp(os.Stdout)
		return
	}

	closeLog, err := loadgen.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)

	_, err = loadgen.Run(ctx, &loadgen.Config{
		BaseURL:     *baseURL,
		Owners:      *owners,
		NumLeads:    *leads,
		BatchSize:   *batch,
		Workers:     *workers,
		Timeout:     *timeout,
		SettleAfter: *settle,
		Seed:        *seed,
		OutputFile:  *outputFile,
		LogFile:     *logFile,
		Verbose:     *verbose,
	})
	cancel()
	stop()
	if err != nil {
		logger.Get().Error(context.Background(), "load run failed", logger.Error(err))
	}
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}
