package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/moffa90/go-punchboot/session"
)

func (a *app) showHeader(s *session.Session, part uuid.UUID) error {
	h, err := s.ReadPartitionHeader(a.ctx, part)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "%-20s%s\n", "Hash:", h.HashKind)
	fmt.Fprintf(a.stdout, "%-20s%s\n", "Signature:", h.SignatureKind)
	fmt.Fprintf(a.stdout, "%-20s%s\n", "Key ID:", session.ID(h.KeyID))
	fmt.Fprintf(a.stdout, "%-20s%s\n", "Keystore ID:", session.ID(h.KeystoreID))
	fmt.Fprintf(a.stdout, "%-20s%s\n", "Image size:", humanize.IBytes(h.ImageSize()))

	if len(h.Parts) == 0 {
		return nil
	}
	fmt.Fprintln(a.stdout)
	tw := tabwriter.NewWriter(a.stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "Part ID\tSize\tOffset")
	for _, p := range h.Parts {
		fmt.Fprintf(tw, "0x%08x\t%s\t%d\n", p.ID, humanize.IBytes(p.Size), p.Offset)
	}
	return tw.Flush()
}
