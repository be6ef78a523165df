package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/moffa90/go-punchboot/session"
)

func bootCommand(a *app) *command {
	var (
		verbose bool
		pretend string
	)
	verboseFlag := func(fs *pflag.FlagSet) {
		fs.BoolVar(&verbose, "verbose-boot", false, "ask the device for a verbose boot")
	}

	return &command{
		name:    "boot",
		summary: "Boot commands",
		subcommands: []*command{
			{
				name:    "partition",
				summary: "Boot a partition",
				usage:   "<partition>",
				flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("partition", pflag.ContinueOnError)
					verboseFlag(fs)
					return fs
				},
				run: func(args []string) error {
					if err := exactArgs(args, 1, "<partition>"); err != nil {
						return err
					}
					part, err := session.ParsePartition(args[0])
					if err != nil {
						return err
					}
					return a.withSession(func(s *session.Session) error {
						return s.Boot(a.ctx, part, verbose)
					})
				},
			},
			{
				name:    "bpak",
				summary: "Load a BPAK image into RAM and boot it",
				usage:   "<file>",
				flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("bpak", pflag.ContinueOnError)
					fs.StringVar(&pretend, "pretend-part", "", "partition the image pretends to be booted from")
					verboseFlag(fs)
					return fs
				},
				run: func(args []string) error {
					if err := exactArgs(args, 1, "<file>"); err != nil {
						return err
					}
					pretendPart := uuid.Nil
					if pretend != "" {
						p, err := session.ParsePartition(pretend)
						if err != nil {
							return err
						}
						pretendPart = p
					}
					image, err := readInput(args[0])
					if err != nil {
						return err
					}
					return a.withSession(func(s *session.Session) error {
						return s.BootImage(a.ctx, image, pretendPart, verbose)
					})
				},
			},
			{
				name:    "status",
				summary: "Show the active boot partition",
				run: func(args []string) error {
					if err := exactArgs(args, 0, "no arguments"); err != nil {
						return err
					}
					return a.withSession(a.showBootStatus)
				},
			},
			{
				name:    "enable",
				summary: "Enable a boot partition; no argument disables boot",
				usage:   "[partition]",
				run: func(args []string) error {
					if len(args) > 1 {
						return exactArgs(args, 1, "[partition]")
					}
					part := uuid.Nil
					if len(args) == 1 {
						p, err := session.ParseBootTarget(args[0])
						if err != nil {
							return err
						}
						part = p
					}
					return a.withSession(func(s *session.Session) error {
						return s.SetBootPartition(a.ctx, part)
					})
				},
			},
			{
				name:    "disable",
				summary: "Disable boot",
				run: func(args []string) error {
					if err := exactArgs(args, 0, "no arguments"); err != nil {
						return err
					}
					return a.withSession(func(s *session.Session) error {
						return s.SetBootPartition(a.ctx, uuid.Nil)
					})
				},
			},
		},
	}
}

func (a *app) showBootStatus(s *session.Session) error {
	status, err := s.BootStatus(a.ctx)
	if err != nil {
		return err
	}
	if !status.Enabled() {
		fmt.Fprintln(a.stdout, "No boot partition is enabled.")
	} else {
		fmt.Fprintf(a.stdout, "Active boot partition: %s\n", status.UUID)
	}
	if status.Message != "" {
		fmt.Fprintf(a.stdout, "Status message: %s\n", status.Message)
	}
	return nil
}
