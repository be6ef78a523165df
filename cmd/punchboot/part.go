package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/moffa90/go-punchboot/session"
)

func partCommand(a *app) *command {
	var variant uint8

	return &command{
		name:    "part",
		summary: "Partition management",
		subcommands: []*command{
			{
				name:    "list",
				summary: "List partitions",
				run: func(args []string) error {
					if err := exactArgs(args, 0, "no arguments"); err != nil {
						return err
					}
					return a.withSession(a.listPartitions)
				},
			},
			{
				name:    "install",
				summary: "Install partition table",
				usage:   "<table-uuid>",
				flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("install", pflag.ContinueOnError)
					fs.Uint8Var(&variant, "variant", 0, "partition table variant to install")
					return fs
				},
				run: func(args []string) error {
					if err := exactArgs(args, 1, "<table-uuid>"); err != nil {
						return err
					}
					table, err := session.ParsePartition(args[0])
					if err != nil {
						return err
					}
					return a.withSession(func(s *session.Session) error {
						return s.InstallPartitionTable(a.ctx, table, variant)
					})
				},
			},
			{
				name:    "erase",
				summary: "Erase partition",
				usage:   "<partition>",
				run: func(args []string) error {
					if err := exactArgs(args, 1, "<partition>"); err != nil {
						return err
					}
					part, err := session.ParsePartition(args[0])
					if err != nil {
						return err
					}
					return a.withSession(func(s *session.Session) error {
						err := s.Erase(a.ctx, part, func(total, remaining uint64) {
							fmt.Fprintf(a.stdout, "\rErasing %d/%d", total-remaining, total)
						})
						fmt.Fprintln(a.stdout)
						return err
					})
				},
			},
			{
				name:    "write",
				summary: "Write file to partition",
				usage:   "<file> <partition>",
				run: func(args []string) error {
					if err := exactArgs(args, 2, "<file> <partition>"); err != nil {
						return err
					}
					part, err := session.ParsePartition(args[1])
					if err != nil {
						return err
					}
					src, err := openInput(args[0])
					if err != nil {
						return err
					}
					defer src.Close()
					return a.withSession(func(s *session.Session) error {
						return s.Write(a.ctx, src, part)
					})
				},
			},
			{
				name:    "read",
				summary: "Read partition to file",
				usage:   "<partition> <file>",
				run: func(args []string) error {
					if err := exactArgs(args, 2, "<partition> <file>"); err != nil {
						return err
					}
					part, err := session.ParsePartition(args[0])
					if err != nil {
						return err
					}
					return a.withSession(func(s *session.Session) error {
						dst, err := createOutput(args[1])
						if err != nil {
							return err
						}
						if err := s.Read(a.ctx, dst, part); err != nil {
							dst.Close()
							return err
						}
						return dst.Close()
					})
				},
			},
			{
				name:    "verify",
				summary: "Verify partition contents against a file",
				usage:   "<file> <partition>",
				run: func(args []string) error {
					if err := exactArgs(args, 2, "<file> <partition>"); err != nil {
						return err
					}
					part, err := session.ParsePartition(args[1])
					if err != nil {
						return err
					}
					src, err := openInput(args[0])
					if err != nil {
						return err
					}
					defer src.Close()
					return a.withSession(func(s *session.Session) error {
						return s.Verify(a.ctx, src, part)
					})
				},
			},
			{
				name:    "header",
				summary: "Show the BPAK header stored in a partition",
				usage:   "<partition>",
				run: func(args []string) error {
					if err := exactArgs(args, 1, "<partition>"); err != nil {
						return err
					}
					part, err := session.ParsePartition(args[0])
					if err != nil {
						return err
					}
					return a.withSession(func(s *session.Session) error {
						return a.showHeader(s, part)
					})
				},
			},
		},
	}
}

func (a *app) listPartitions(s *session.Session) error {
	parts, err := s.ListPartitions(a.ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "Partition UUID\tFlags\tSize\tName")
	fmt.Fprintln(tw, "--------------\t-----\t----\t----")
	for _, p := range parts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.UUID, p.Flags, humanize.IBytes(p.Size()), p.Description)
	}
	return tw.Flush()
}
