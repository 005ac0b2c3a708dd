package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/parkwatch-mcp/internal/config"
	"github.com/ironsheep/parkwatch-mcp/internal/logger"
	"github.com/ironsheep/parkwatch-mcp/internal/monitor"
	"github.com/ironsheep/parkwatch-mcp/internal/occupancy"
	"github.com/ironsheep/parkwatch-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("parkwatch-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	mode, args := "serve", os.Args[1:]
	if len(args) > 0 && (args[0] == "serve" || args[0] == "process") {
		mode, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("parkwatch-mcp "+mode, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("PARKWATCH_CONFIG"), "Path to the YAML configuration file")
	fs.Parse(args)

	// Logging goes to stderr; stdout is for MCP protocol
	log := logger.New(logger.INFO, os.Stderr)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	log.SetLevel(cfg.Level())
	log.Debugf("parkwatch-mcp %s (built %s, commit %s)", Version, BuildTime, GitCommit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "process":
		err = runProcess(ctx, cfg, log)
	default:
		err = runServe(ctx, cfg, log)
	}
	if err != nil {
		log.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("parkwatch-mcp - MCP server for parking lot occupancy")
	fmt.Println()
	fmt.Println("Usage: parkwatch-mcp [serve|process] [--config path]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve            Run the MCP server over stdin/stdout (default).")
	fmt.Println("                   A configured video or frame directory is processed in the background.")
	fmt.Println("  process          Process the configured video or frame directory to the end,")
	fmt.Println("                   write annotated frames to output_dir and print the final statistics.")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config path    YAML configuration file (default $PARKWATCH_CONFIG)")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  PARKWATCH_LOG_LEVEL=debug    Enable debug logging")
	fmt.Println("  PARKWATCH_MASK_PATH, PARKWATCH_VIDEO_PATH, PARKWATCH_DATABASE_PATH, ...")
	fmt.Println("                               Override the matching configuration keys")
}

// runServe answers MCP requests until stdin closes. The frame loop, if a
// source is configured, runs alongside.
func runServe(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	a, err := buildApp(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.VideoPath != "" || cfg.FramesDir != "" {
		loopCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			err := a.mon.Run(loopCtx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, occupancy.ErrReleased) {
				log.Errorf("frame loop: %v", err)
			}
		}()
	}

	srv := server.New(a.mon, log.With("server"))
	done := make(chan error, 1)
	go func() { done <- srv.Run() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		// stdin reads cannot be interrupted; leave the reader to process exit.
		log.Infof("shutting down: %v", context.Cause(ctx))
	}
	return nil
}

// processReport is printed by the process command.
type processReport struct {
	Status     monitor.Status       `json:"status"`
	Statistics occupancy.Statistics `json:"statistics"`
}

// runProcess drains the configured source and prints the final state.
func runProcess(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	a, err := buildApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.mon.Run(ctx); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(processReport{Status: a.mon.Status(), Statistics: a.mon.Statistics()})
}
