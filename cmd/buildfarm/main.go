// buildfarm runs the build farm coordinator: it scans every registered
// builder on a fixed interval, cleaning idle builders, dispatching queued
// builds and collecting finished ones.
//
// Configuration is a YAML document on any afs supported URL; flags override
// individual settings.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/viant/buildfarm"
	"github.com/viant/buildfarm/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configURL string
	var once bool
	var logLevel string
	var logFormat string
	var pollIntervalMs int

	flagSet := pflag.NewFlagSet("buildfarm", pflag.ContinueOnError)
	flagSet.StringVarP(&configURL, "config", "c", "", "configuration URL (file path, mem://, s3:// ...)")
	flagSet.BoolVar(&once, "once", false, "scan every builder once and exit")
	flagSet.StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flagSet.StringVar(&logFormat, "log-format", "", "override logging.format (text, json)")
	flagSet.IntVar(&pollIntervalMs, "poll-interval-ms", 0, "override scanner.pollIntervalMs")
	flagSet.Bool("version", false, "print version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if version, _ := flagSet.GetBool("version"); version {
		fmt.Println("buildfarm", buildfarm.Version)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config := buildfarm.DefaultConfig()
	if configURL != "" {
		var err error
		if config, err = buildfarm.LoadConfig(ctx, configURL); err != nil {
			return err
		}
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if logFormat != "" {
		config.Logging.Format = logFormat
	}
	if pollIntervalMs > 0 {
		config.Scanner.PollIntervalMs = pollIntervalMs
		config.Pool.IdleTimeoutMs = pollIntervalMs
	}
	logger := logging.New(config.Logging.Level, config.Logging.Format, os.Stderr)

	srv, err := buildfarm.New(ctx, config, buildfarm.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			logger.Warn("shutdown incomplete", "error", closeErr)
		}
	}()

	if once {
		return srv.Scan(ctx)
	}
	if err = srv.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("buildfarm stopped")
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `buildfarm coordinates a fleet of remote build agents.

Usage:
  buildfarm [flags]

Examples:
  # Run with a local configuration
  buildfarm --config /etc/buildfarm/buildfarm.yaml

  # Run a single scan with debug logging
  buildfarm -c /etc/buildfarm/buildfarm.yaml --once --log-level debug

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
