package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/moffa90/go-punchboot/session"
)

func boardCommand(a *app) *command {
	var outputFmt, argsFile string

	return &command{
		name:    "board",
		summary: "Board specific commands",
		subcommands: []*command{
			{
				name:    "command",
				summary: "Execute a board specific command",
				usage:   "<command> [args]",
				flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("command", pflag.ContinueOnError)
					fs.StringVar(&outputFmt, "output-fmt", "str", "print the result as str or binary")
					fs.StringVar(&argsFile, "args-from-file", "", "pass the contents of a file as arguments")
					return fs
				},
				run: func(args []string) error {
					if len(args) < 1 || len(args) > 2 {
						return exactArgs(args, 1, "<command> [args]")
					}
					if outputFmt != "str" && outputFmt != "binary" {
						return fmt.Errorf("%w: --output-fmt must be str or binary", errUsage)
					}
					if len(args) == 2 && argsFile != "" {
						return fmt.Errorf("%w: Use either --args or --args-from-file", errUsage)
					}

					cmd, err := session.ParseIdentifier(args[0])
					if err != nil {
						return err
					}
					var cmdArgs []byte
					switch {
					case len(args) == 2:
						cmdArgs = []byte(args[1])
					case argsFile != "":
						if cmdArgs, err = os.ReadFile(argsFile); err != nil {
							return err
						}
					}

					return a.withSession(func(s *session.Session) error {
						result, err := s.RunCommand(a.ctx, cmd, cmdArgs)
						if err != nil {
							return err
						}
						if outputFmt == "binary" {
							_, err := a.stdout.Write(result)
							return err
						}
						fmt.Fprintln(a.stdout, strings.TrimSpace(string(result)))
						return nil
					})
				},
			},
			{
				name:    "status",
				summary: "Read board status",
				run: func(args []string) error {
					if err := exactArgs(args, 0, "no arguments"); err != nil {
						return err
					}
					return a.withSession(func(s *session.Session) error {
						status, err := s.ReadStatus(a.ctx)
						if err != nil {
							return err
						}
						fmt.Fprintln(a.stdout, status)
						return nil
					})
				},
			},
		},
	}
}
