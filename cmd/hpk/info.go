package main

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/meigma/hpk"
)

func (c *cli) newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info ARCHIVE",
		Short: "Describe an archive's layout and contents",
		Args:  cobra.ExactArgs(1),
		RunE:  c.runInfo,
	}
	addReadFlags(cmd.Flags())
	return cmd
}

type codecTotals struct {
	files  int
	size   uint64
	stored uint64
}

func (c *cli) runInfo(cmd *cobra.Command, args []string) error {
	a, err := c.openArchive(args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	var folders int
	totals := make(map[hpk.Compression]*codecTotals)
	err = a.Walk(func(_ string, n hpk.Node) error {
		f, ok := n.(*hpk.File)
		if !ok {
			folders++
			return nil
		}
		t := totals[f.Compression]
		if t == nil {
			t = &codecTotals{}
			totals[f.Compression] = t
		}
		t.files++
		t.size += f.Size
		t.stored += f.CompressedSize
		return nil
	})
	if err != nil {
		return err
	}

	v := a.Variant()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "archive:     %s\n", a.Name())
	fmt.Fprintf(out, "variant:     %s (%d-bit fields, filedates=%t, checksums=%t)\n",
		v.Name, v.FieldWidth*8, v.FileDates, v.Checksums)
	fmt.Fprintf(out, "size:        %d\n", a.Size())
	fmt.Fprintf(out, "files:       %d\n", a.Len())
	fmt.Fprintf(out, "folders:     %d\n", folders)
	fmt.Fprintf(out, "fragments:   %d\n", a.Fragments())
	if len(totals) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Compression", "Files", "Size", "Stored"})
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, tag := range hpk.Compressions() {
		t, ok := totals[tag]
		if !ok {
			continue
		}
		tw.Append([]string{
			tag.String(),
			strconv.Itoa(t.files),
			strconv.FormatUint(t.size, 10),
			strconv.FormatUint(t.stored, 10),
		})
	}
	tw.Render()
	return nil
}
