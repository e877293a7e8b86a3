package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/meigma/hpk"
)

func (c *cli) newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract ARCHIVE [DEST]",
		Short: "Extract an archive into a directory",
		Long: `Extract writes every file of ARCHIVE below DEST (default: the current
directory), creating folders as needed. Existing files are left alone unless
--overwrite is given.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: c.runExtract,
	}
	addReadFlags(cmd.Flags())
	cmd.Flags().Int(keyWorkers, runtime.GOMAXPROCS(0), "number of entries decoded in parallel")
	cmd.Flags().Bool(keyOverwrite, false, "replace files that already exist")
	cmd.Flags().Bool(keyPreserveTimes, true, "apply recorded modification times")
	cmd.Flags().Bool(keyProgress, false, "show a progress bar on stderr")
	cmd.Flags().Int(keyCache, 0, "keep up to N decoded files in memory")
	return cmd
}

func (c *cli) runExtract(cmd *cobra.Command, args []string) error {
	dest := "."
	if len(args) == 2 {
		dest = args[1]
	}

	var archiveOpts []hpk.Option
	if n := c.v.GetInt(keyCache); n > 0 {
		archiveOpts = append(archiveOpts, hpk.WithContentCache(n))
	}
	a, err := c.openArchive(args[0], archiveOpts...)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []hpk.ExtractOption{
		hpk.ExtractWithContext(cmd.Context()),
		hpk.ExtractWithWorkers(c.v.GetInt(keyWorkers)),
		hpk.ExtractWithOverwrite(c.v.GetBool(keyOverwrite)),
		hpk.ExtractWithPreserveTimes(c.v.GetBool(keyPreserveTimes)),
	}
	if bar := c.progressBar(cmd.ErrOrStderr()); bar != nil {
		defer bar.finish()
		opts = append(opts, hpk.ExtractWithProgress(bar.update))
	}

	c.logger.Info("extracting", "archive", a.Name(), "dest", dest, "files", a.Len())
	return a.ExtractToDir(dest, opts...)
}
