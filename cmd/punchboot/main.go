// Command punchboot controls devices running the punchboot bootloader.
//
// Usage:
//
//	punchboot [global flags] <command> [flags] [args]
//
// Run "punchboot --help" for the command list.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"

	"github.com/moffa90/go-punchboot/transport"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type globalOptions struct {
	config      string
	transport   string
	deviceUUID  string
	socket      string
	serialPort  string
	baud        int
	timeout     time.Duration
	journal     string
	verbose     bool
	showVersion bool
}

func newGlobalFlags(g *globalOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("punchboot", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.StringVar(&g.config, "config", "", "YAML configuration file")
	fs.StringVarP(&g.transport, "transport", "t", string(transport.USB), "transport: usb, socket or serial")
	fs.StringVarP(&g.deviceUUID, "device-uuid", "u", "", "device UUID (env PB_DEVICE_UUID)")
	fs.StringVarP(&g.socket, "socket", "s", transport.DefaultSocketPath, "unix socket of a device emulator")
	fs.StringVar(&g.serialPort, "serial", "", "serial port (serial transport)")
	fs.IntVar(&g.baud, "baud", transport.DefaultBaud, "serial link speed")
	fs.DurationVar(&g.timeout, "timeout", transport.DefaultTimeout, "timeout for each device I/O")
	fs.StringVar(&g.journal, "journal", "", "audit journal database for SLC operations")
	fs.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")
	fs.BoolVarP(&g.showVersion, "version", "V", false, "print the tool version")
	return fs
}

// run executes the command line and returns the process exit code:
// 0 on success, 1 on failure and 2 on a usage error.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var g globalOptions
	fs := newGlobalFlags(&g)
	fs.SetOutput(io.Discard)

	root := newRootCommand(nil)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			root.printHelp(stdout)
			return 0
		}
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 2
	}
	if g.showVersion {
		fmt.Fprintf(stdout, "Punchboot tool %s\n", version)
		return 0
	}

	cfg, err := loadConfig(g.config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return 1
	}
	applyFlags(cfg, fs, &g)
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(stderr, "Error: invalid configuration: %s\n", err)
		return 2
	}

	logger := newLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	a := newApp(ctx, cfg, logger, stdin, stdout, stderr)
	return a.execute(fs.Args())
}

// applyFlags lets explicitly set flags and the environment override cfg.
func applyFlags(cfg *Config, fs *pflag.FlagSet, g *globalOptions) {
	if fs.Changed("transport") {
		cfg.Transport.Kind = g.transport
	}
	switch {
	case fs.Changed("device-uuid"):
		cfg.Transport.DeviceUUID = g.deviceUUID
	case os.Getenv("PB_DEVICE_UUID") != "":
		cfg.Transport.DeviceUUID = os.Getenv("PB_DEVICE_UUID")
	}
	if fs.Changed("socket") {
		cfg.Transport.Socket = g.socket
	}
	if fs.Changed("serial") {
		cfg.Transport.SerialPort = g.serialPort
	}
	if fs.Changed("baud") {
		cfg.Transport.Baud = g.baud
	}
	if fs.Changed("timeout") {
		cfg.Transport.Timeout = g.timeout
	}
	if fs.Changed("journal") {
		cfg.Journal.Path = g.journal
	}
	if g.verbose {
		cfg.Log.Level = "debug"
	}
}

func (a *app) execute(args []string) int {
	root := newRootCommand(a)
	err := root.execute(args, a.stdout)
	if err == nil {
		return 0
	}

	a.logger.Debug("command failed", "error", err)
	if errors.Is(err, errUsage) {
		fmt.Fprintf(a.stderr, "Error: %s\n", trimUsage(err))
		return 2
	}
	fmt.Fprintf(a.stderr, "Error: %s\n", errorMessage(err))
	return 1
}
