package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/hpk"
)

func (c *cli) newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create DIR ARCHIVE",
		Short: "Pack a directory into a new archive",
		Long: `Create packs every regular file below DIR into ARCHIVE. Entries are
sorted by name. Unless --compress-all is given, only the file types the
engines expect compressed (.lua, .xml, .dds and friends) are compressed.`,
		Args: cobra.ExactArgs(2),
		RunE: c.runCreate,
	}
	cmd.Flags().String(keyCompression, hpk.CompressionDeflate.String(), "codec: none, deflate, lz4, lz4frame, zstd")
	cmd.Flags().String(keyVariant, hpk.VariantClassic.Name, "archive layout: "+variantNames())
	cmd.Flags().Uint32(keyChunkSize, 0, "uncompressed chunk length (0 uses the variant default)")
	cmd.Flags().Bool(keyFileDates, false, "record modification times in a _filedates entry")
	cmd.Flags().Bool(keyCompressAll, false, "compress every file regardless of extension")
	cmd.Flags().Bool(keyStoreIfLarger, true, "store entries raw when compression does not help")
	cmd.Flags().Bool(keyCaseSensitive, false, "treat names differing only in case as distinct")
	cmd.Flags().Bool(keyProgress, false, "show a progress bar on stderr")
	return cmd
}

func (c *cli) buildOptions() ([]hpk.BuildOption, error) {
	name := c.v.GetString(keyCompression)
	tag, ok := hpk.ParseCompression(name)
	if !ok {
		return nil, fmt.Errorf("unknown compression %q", name)
	}
	v, ok := hpk.LookupVariant(c.v.GetString(keyVariant))
	if !ok {
		return nil, fmt.Errorf("unknown variant %q (want %s)", c.v.GetString(keyVariant), variantNames())
	}
	// Every variant but classic already records dates.
	if c.v.GetBool(keyFileDates) && !v.FileDates {
		v = hpk.VariantFileDates
	}

	opts := []hpk.BuildOption{
		hpk.BuildWithCompression(tag),
		hpk.BuildWithVariant(v),
		hpk.BuildWithStoreIfLarger(c.v.GetBool(keyStoreIfLarger)),
		hpk.BuildWithCaseSensitive(c.v.GetBool(keyCaseSensitive)),
		hpk.BuildWithLogger(c.logger),
	}
	if n := c.v.GetUint32(keyChunkSize); n > 0 {
		opts = append(opts, hpk.BuildWithChunkSize(n))
	}
	if c.v.GetBool(keyCompressAll) {
		opts = append(opts, hpk.BuildWithSkipCompression())
	}
	return opts, nil
}

func (c *cli) runCreate(cmd *cobra.Command, args []string) (err error) {
	dir, dest := args[0], args[1]
	opts, err := c.buildOptions()
	if err != nil {
		return err
	}
	if bar := c.progressBar(cmd.ErrOrStderr()); bar != nil {
		defer bar.finish()
		opts = append(opts, hpk.BuildWithProgress(bar.update))
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	return hpk.CreateFromDir(cmd.Context(), dir, out, opts...)
}
