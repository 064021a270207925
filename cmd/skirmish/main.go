package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/quickrts/skirmish/internal/config"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "skirmish"
)

const usage = `usage: skirmish <host|mirror|demo> [flags]

  host    run the authority and accept mirrors over websocket
  mirror  connect to a host and replicate its units
  demo    run a host and a mirror in one process
`

var errUsage = errors.New("missing or unknown mode")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	mode := strings.ToLower(args[0])
	switch mode {
	case modeHost, modeMirror, modeDemo:
	default:
		return fmt.Errorf("%w: %q", errUsage, args[0])
	}

	hostname, _ := os.Hostname()
	fs := pflag.NewFlagSet(mode, pflag.ContinueOnError)
	configDir := fs.String("config", ".", "directory containing "+config.FileName)
	node := fs.String("node", hostname, "name reported to the host and in telemetry")
	duration := fs.Duration("duration", 0, "stop after this long; 0 runs until interrupted")
	fs.String("scenario", "", "scenario file spawned by the authority")
	fs.String("log-level", "", "override logLevel")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	configErr := config.Load(*configDir)
	if f := fs.Lookup("scenario"); f.Changed {
		viper.Set("scenario", f.Value.String())
	}
	if f := fs.Lookup("log-level"); f.Changed {
		viper.Set("logLevel", f.Value.String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	a, err := newApp(mode, *node)
	if err != nil {
		return err
	}
	defer a.close()

	if configErr != nil {
		a.logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		a.logger.Info("Loaded config", "dir", *configDir)
	}
	a.logger.Info("Starting up...", "mode", mode, "version", CurrentVersion, "build", BuildDate)

	start := time.Now()
	err = a.run(ctx)
	a.logger.Info("Shut down", "uptime", time.Since(start).Round(time.Second))
	return err
}
