package main

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/moffa90/go-punchboot/session"
)

func authCommand(a *app) *command {
	var set, force bool

	return &command{
		name:    "auth",
		summary: "Authentication",
		subcommands: []*command{
			{
				name:    "password",
				summary: "Authenticate with a password, or set it with --set",
				usage:   "[password]",
				flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("password", pflag.ContinueOnError)
					fs.BoolVar(&set, "set", false, "set the password instead of authenticating")
					fs.BoolVar(&force, "force", false, "do not ask for confirmation")
					return fs
				},
				run: func(args []string) error {
					if len(args) > 1 {
						return exactArgs(args, 1, "[password]")
					}
					var password string
					if len(args) == 1 {
						password = args[0]
					} else {
						p, err := a.readPassword()
						if err != nil {
							return err
						}
						password = p
					}

					if !set {
						return a.withSession(func(s *session.Session) error {
							return s.Authenticate(a.ctx, password)
						})
					}
					if !force {
						ok, err := a.ask("Are you sure?")
						if err != nil {
							return err
						}
						if !ok {
							return session.ErrNotConfirmed
						}
					}
					return a.withSession(func(s *session.Session) error {
						return s.SetPassword(a.ctx, password)
					})
				},
			},
			{
				name:    "token",
				summary: "Authenticate with a signed token",
				usage:   "<token-file> <key-id>",
				run: func(args []string) error {
					if err := exactArgs(args, 2, "<token-file> <key-id>"); err != nil {
						return err
					}
					key, err := session.ParseIdentifier(args[1])
					if err != nil {
						return err
					}
					token, err := os.ReadFile(args[0])
					if err != nil {
						return err
					}
					return a.withSession(func(s *session.Session) error {
						return s.AuthenticateToken(a.ctx, token, key)
					})
				},
			},
		},
	}
}
