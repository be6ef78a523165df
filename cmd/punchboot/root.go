package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/moffa90/go-punchboot/session"
	"github.com/moffa90/go-punchboot/transport"
)

func newRootCommand(a *app) *command {
	return &command{
		name:    "punchboot",
		summary: "Punchboot bootloader control tool",
		flags: func() *pflag.FlagSet {
			return newGlobalFlags(&globalOptions{})
		},
		subcommands: []*command{
			listCommand(a),
			devCommand(a),
			partCommand(a),
			authCommand(a),
			boardCommand(a),
			bootCommand(a),
			slcCommand(a),
			journalCommand(a),
		},
	}
}

func listCommand(a *app) *command {
	return &command{
		name:    "list",
		summary: "List punchboot devices attached over USB",
		run: func(args []string) error {
			if err := exactArgs(args, 0, "no arguments"); err != nil {
				return err
			}
			devices, err := a.listUSB()
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Fprintf(a.stdout, "%s -- %s\n", d.UUID, a.boardName(d))
			}
			return nil
		},
	}
}

func devCommand(a *app) *command {
	var wait time.Duration

	return &command{
		name:    "dev",
		summary: "Device commands",
		subcommands: []*command{
			{
				name:    "show",
				summary: "Show device info",
				run: func(args []string) error {
					if err := exactArgs(args, 0, "no arguments"); err != nil {
						return err
					}
					return a.withSession(a.showDevice)
				},
			},
			{
				name:    "reset",
				summary: "Reset the device",
				flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("reset", pflag.ContinueOnError)
					fs.DurationVar(&wait, "wait", 0, "wait this long for the device to come back (usb only)")
					return fs
				},
				run: func(args []string) error {
					if err := exactArgs(args, 0, "no arguments"); err != nil {
						return err
					}
					opts, err := a.transportOptions()
					if err != nil {
						return err
					}
					if wait > 0 && opts.Kind != transport.USB && opts.Kind != "" {
						return fmt.Errorf("%w: --wait requires the usb transport", errUsage)
					}

					err = a.withSession(func(s *session.Session) error {
						return s.Reset(a.ctx)
					})
					if err != nil || wait <= 0 {
						return err
					}
					return a.waitForDevice(opts.DeviceUUID, wait)
				},
			},
		},
	}
}
