package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const keyPathsOnly = "paths"

func (c *cli) newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list ARCHIVE",
		Aliases: []string{"ls"},
		Short:   "List the files in an archive",
		Args:    cobra.ExactArgs(1),
		RunE:    c.runList,
	}
	addReadFlags(cmd.Flags())
	cmd.Flags().Bool(keyPathsOnly, false, "print only entry paths, one per line")
	return cmd
}

func (c *cli) runList(cmd *cobra.Command, args []string) error {
	a, err := c.openArchive(args[0])
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if c.v.GetBool(keyPathsOnly) {
		for p := range a.Entries() {
			if _, err := fmt.Fprintln(out, p); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"Path", "Size", "Stored", "Compression", "Modified"})
	tw.SetAutoWrapText(false)
	tw.SetBorder(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	for p, f := range a.Entries() {
		tw.Append([]string{
			p,
			strconv.FormatUint(f.Size, 10),
			strconv.FormatUint(f.CompressedSize, 10),
			f.Compression.String(),
			formatTime(f.ModTime),
		})
	}
	tw.Render()
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
