// demitasse sits between an ACP client and an agent, coalescing the
// word-by-word agent_message_chunk flood into one chunk per flush.
//
// The client runs demitasse in place of the agent; demitasse spawns the
// real agent as a subprocess and bridges the two stdio streams:
//
//	client <-> demitasse(stdin/stdout) <-> agent(subprocess stdin/stdout)
//
// Chains compose by nesting: demitasse -- other-proxy -- agent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/HyphaGroup/demitasse/internal/config"
	"github.com/HyphaGroup/demitasse/internal/debounce"
	"github.com/HyphaGroup/demitasse/internal/inspect"
	"github.com/HyphaGroup/demitasse/internal/janitor"
	"github.com/HyphaGroup/demitasse/internal/journal"
	"github.com/HyphaGroup/demitasse/internal/logger"
	"github.com/HyphaGroup/demitasse/internal/metrics"
	"github.com/HyphaGroup/demitasse/internal/transport"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	configPath := flag.String("config", "", "Path to demitasse.jsonc")
	intervalMS := flag.Int("interval", 0, "Flush interval in milliseconds (overrides config)")
	logDir := flag.String("log-dir", "", "Directory for log files (overrides config)")
	logJSON := flag.Bool("log-json", false, "Log as JSON (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (overrides config)")
	inspectAddr := flag.String("inspect-addr", "", "Inspection MCP server listen address (overrides config)")
	journalPath := flag.String("journal", "", "Path to the flush journal database (overrides config)")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("demitasse %s\n", Version)
		return
	}

	agentArgs := flag.Args()
	if len(agentArgs) == 0 {
		fmt.Fprintln(os.Stderr, "demitasse: no agent command given")
		printUsage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "demitasse: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags given on the command line win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interval":
			cfg.IntervalMS = *intervalMS
		case "log-dir":
			cfg.Log.Dir = *logDir
		case "log-json":
			cfg.Log.JSON = *logJSON
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "inspect-addr":
			cfg.InspectAddr = *inspectAddr
		case "journal":
			cfg.Journal.Path = *journalPath
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "demitasse: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, agentArgs); err != nil {
		logger.Error("proxy terminated", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `demitasse %s - debouncing proxy for ACP agent chunk streams

Usage: demitasse [options] -- <agent command> [agent args...]

Options:
  --interval <ms>        Flush interval in milliseconds (default %d)
  --config <path>        Load settings from a JSONC file
  --log-dir <path>       Mirror logs to a dated file under this directory
  --log-json             Log as JSON
  --metrics-addr <addr>  Serve Prometheus metrics (e.g. :9306)
  --inspect-addr <addr>  Serve the read-only inspection MCP server
  --journal <path>       Record flush activity to a SQLite database
  --version              Print version and exit

Examples:
  demitasse -- my-agent --acp
  demitasse --interval 250 --journal flushes.db -- my-agent --acp
`, Version, config.DefaultIntervalMS)
}

func run(cfg config.Config, agentArgs []string) error {
	if err := logger.Init(cfg.Log.Dir, cfg.Log.JSON); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Close() }()

	proxy := debounce.NewProxy(cfg.Interval())

	var jnl *journal.Journal
	if cfg.Journal.Path != "" {
		var err error
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer func() { _ = jnl.Close() }()
		proxy.SetFlushLog(jnl)
		logger.Info("flush journal enabled", "path", cfg.Journal.Path)
	}

	jan := janitor.New(janitor.Config{
		Spec:      cfg.MaintenanceCron,
		Store:     proxy.Store(),
		Journal:   jnl,
		Retention: cfg.Retention(),
	})
	if err := jan.Start(); err != nil {
		return err
	}
	defer jan.Stop()

	if cfg.MetricsAddr != "" {
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if cfg.InspectAddr != "" {
		srv := inspect.NewServer(proxy.Store(), jnl, cfg.Interval(), Version)
		go func() {
			logger.Info("inspection server listening", "addr", cfg.InspectAddr)
			if err := srv.Serve(cfg.InspectAddr); err != nil {
				logger.Error("inspection server failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := exec.CommandContext(ctx, agentArgs[0], agentArgs[1:]...)
	cmd.Stderr = os.Stderr

	agentStdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open agent stdin: %w", err)
	}
	agentStdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open agent stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}
	logger.Info("agent started", "command", agentArgs[0], "interval", cfg.Interval())

	agentStream := transport.New(agentStdout, agentStdin)
	clientStream := transport.New(os.Stdin, os.Stdout)

	runErr := proxy.Run(ctx, agentStream, clientStream)

	// Closing the agent's stdin tells it the session is over; then reap it.
	_ = agentStdin.Close()
	waitErr := cmd.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if waitErr != nil && ctx.Err() == nil {
		return fmt.Errorf("agent exited: %w", waitErr)
	}

	logger.Info("session ended")
	return nil
}
