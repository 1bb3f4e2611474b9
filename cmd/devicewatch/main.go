// devicewatch watches devices through the cached iot service and logs every
// availability change.
//
// Usage:
//
//	devicewatch [--config FILE] <command> [flags]
//
// Commands:
//
//	watch --device NAME   follow one device, pinging it when its last ping goes stale
//	list  [--name NAME]   print known devices
//
// Settings come from the config file (YAML or JSON) with DEVICEWATCH_*
// environment overrides, e.g. DEVICEWATCH_API__BASE_URL.
//
// Exit codes:
//
//	0: success
//	1: runtime failure
//	2: bad arguments or configuration
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/unkn0wn-root/livecache/internal/config"
)

const defaultInterval = 10 * time.Second

// Set with -ldflags "-X main.Version=...".
var Version = "0.1.0-dev"

// usageError maps to exit code 2.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "devicewatch",
		Usage:   "watch device availability through a live cache",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file (.yaml, .yml or .json)",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG"),
			},
		},
		Commands: []*cli.Command{
			createWatchCommand(),
			createListCommand(),
		},
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func createWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "follow a device and log availability changes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "device",
				Aliases:  []string{"d"},
				Usage:    "device name",
				Required: true,
			},
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "how often to check the device",
				Value:   defaultInterval,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			interval := cmd.Duration("interval")
			if interval <= 0 {
				return &usageError{errors.New("--interval must be positive")}
			}
			a, err := setup(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			return a.watch(ctx, cmd.String("device"), interval)
		},
	}
}

func createListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "print known devices",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "only devices with this name",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			return a.list(ctx, os.Stdout, cmd.String("name"))
		},
	}
}

func setup(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, config.ErrInvalid) || errors.Is(err, config.ErrUnsupportedFormat) {
			return nil, &usageError{err}
		}
		return nil, err
	}
	return newApp(ctx, cfg)
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, os.Args); err != nil {
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(os.Stderr, "usage: %v\n", ue)
		return 2
	}
	if errors.Is(err, context.Canceled) {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
