package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/KevoDB/chunksort/pkg/common/log"
	"github.com/KevoDB/chunksort/pkg/config"
	"github.com/KevoDB/chunksort/pkg/telemetry"
)

const usageText = `chunksort - sort record files larger than memory

Usage:
  chunksort generate -out PATH -rows N [-seed S]
  chunksort sort -in PATH -out PATH [-chunk-size N] [-parallel P] [-chunk-dir DIR]
                 [-raw] [-compression C] [-strategy S] [-keep-chunks]
  chunksort verify -in PATH -out PATH [-compression C]
  chunksort inspect [PATH]
  chunksort serve [-address ADDR] [-data-root DIR] [-chunk-dir DIR] [-max-jobs N]
                  [-cert FILE -key FILE [-ca FILE]]

Settings are read from CHUNKSORT_* environment variables and an optional
.env file in the working directory; flags take precedence.
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		if err != errUsage {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		}
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches one subcommand. Output meant for the user goes to stdout;
// logs go to stderr through the default logger.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tel, err := setupTelemetry()
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown: %v", err)
		}
	}()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "generate":
		return runGenerate(ctx, rest, stdout)
	case "sort":
		return runSort(ctx, cfg, tel, rest, stdout)
	case "verify":
		return runVerify(ctx, cfg, rest, stdout)
	case "inspect":
		return runInspect(ctx, cfg, rest, stdout)
	case "serve":
		return runServe(ctx, cfg, tel, rest, stdout)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usageText)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// loadConfig builds the base configuration: defaults rooted at the current
// directory, then .env, then CHUNKSORT_* variables.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	cfg := config.NewDefaultConfig(wd)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetDefaultLogger(log.NewStandardLogger(log.WithLevel(level)))
	return cfg, nil
}

func setupTelemetry() (telemetry.Telemetry, error) {
	telCfg := telemetry.DefaultConfig()
	if err := telCfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	telCfg.Output = os.Stderr
	return telemetry.New(telCfg)
}
