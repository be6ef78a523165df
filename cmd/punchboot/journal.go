package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/moffa90/go-punchboot/internal/journal"
)

func journalCommand(a *app) *command {
	var limit int

	return &command{
		name:    "journal",
		summary: "Audit journal of SLC operations",
		subcommands: []*command{
			{
				name:    "list",
				summary: "List journal records, oldest first",
				flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
					fs.IntVarP(&limit, "limit", "n", 0, "show only the newest n records")
					return fs
				},
				run: func(args []string) error {
					if err := exactArgs(args, 0, "no arguments"); err != nil {
						return err
					}
					if a.cfg.Journal.Path == "" {
						return fmt.Errorf("%w: no journal configured, use --journal or journal.path", errUsage)
					}
					return a.listJournal(limit)
				},
			},
		},
	}
}

func (a *app) listJournal(limit int) error {
	j, err := journal.Open(a.cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	records, err := j.List(limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "Seq\tTime\tDevice\tAction\tKey\tResult")
	for _, r := range records {
		key := "-"
		if r.Key != 0 {
			key = fmt.Sprintf("0x%08x", r.Key)
		}
		fmt.Fprintf(tw, "%d\t%s (%s)\t%s\t%s\t%s\t%s\n",
			r.Seq, r.Time.Local().Format(time.DateTime), humanize.Time(r.Time),
			r.Device, r.Action, key, r.Result)
	}
	return tw.Flush()
}
