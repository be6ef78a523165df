package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/moffa90/go-punchboot/session"
)

func slcCommand(a *app) *command {
	var force bool
	forceFlags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("slc", pflag.ContinueOnError)
		fs.BoolVar(&force, "force", false, "do not ask for confirmation")
		return fs
	}
	transition := func(name, summary string, op func(*session.Session, context.Context, bool) error) *command {
		return &command{
			name:    name,
			summary: summary,
			flags:   forceFlags,
			run: func(args []string) error {
				if err := exactArgs(args, 0, "no arguments"); err != nil {
					return err
				}
				return a.withAuditedSession(func(s *session.Session) error {
					return op(s, a.ctx, force)
				})
			},
		}
	}

	return &command{
		name:    "slc",
		summary: "Security life cycle management",
		subcommands: []*command{
			{
				name:    "show",
				summary: "Show security life cycle state and keys",
				run: func(args []string) error {
					if err := exactArgs(args, 0, "no arguments"); err != nil {
						return err
					}
					return a.withSession(a.showSLC)
				},
			},
			transition("configure", "Write fuses and move to the configuration state", (*session.Session).Configure),
			transition("lock", "Lock the configuration", (*session.Session).Lock),
			transition("eol", "Move the device to end of life", (*session.Session).EndOfLife),
			{
				name:    "revoke-key",
				summary: "Revoke a key",
				usage:   "<key-id>",
				flags:   forceFlags,
				run: func(args []string) error {
					if err := exactArgs(args, 1, "<key-id>"); err != nil {
						return err
					}
					key, err := session.ParseIdentifier(args[0])
					if err != nil {
						return err
					}
					return a.withAuditedSession(func(s *session.Session) error {
						return s.RevokeKey(a.ctx, key, force)
					})
				},
			},
		},
	}
}

func (a *app) showSLC(s *session.Session) error {
	status, err := s.SLCStatus(a.ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Status: %s\n", status.State)
	fmt.Fprintf(a.stdout, "Active keys: %s\n", keyList(status.Active))
	fmt.Fprintf(a.stdout, "Revoked keys: %s\n", keyList(status.Revoked))
	return nil
}

func keyList(keys []uint32) string {
	s := make([]string, len(keys))
	for i, k := range keys {
		s[i] = fmt.Sprintf("0x%08x", k)
	}
	return strings.Join(s, ", ")
}
