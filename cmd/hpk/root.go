package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meigma/hpk"
)

const envPrefix = "HPK"

// Flag and configuration keys. Every key can also be set through the
// environment as HPK_<KEY> with dashes replaced by underscores.
const (
	keyVerbose       = "verbose"
	keyVariant       = "variant"
	keyCompression   = "compression"
	keyChunkSize     = "chunk-size"
	keyFileDates     = "filedates"
	keyCompressAll   = "compress-all"
	keyStoreIfLarger = "store-if-larger"
	keyWorkers       = "workers"
	keyProgress      = "progress"
	keyOverwrite     = "overwrite"
	keyPreserveTimes = "preserve-times"
	keyCaseSensitive = "case-sensitive"
	keyCache         = "cache"
)

const variantAuto = "auto"

// cli holds state shared by all subcommands.
type cli struct {
	v      *viper.Viper
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "hpk",
		Short: "Read and write HPK archives",
		Long: `hpk works with the BPUL archives used by several game engines to bundle
their assets.

Flags may also be set through the environment: --chunk-size becomes
HPK_CHUNK_SIZE, --verbose becomes HPK_VERBOSE, and so on.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			c.logger = newLogger(cmd.ErrOrStderr(), c.v.GetInt(keyVerbose))
			return nil
		},
	}
	root.PersistentFlags().CountP(keyVerbose, "v", "increase log verbosity (-v info, -vv debug)")

	root.AddCommand(
		c.newListCmd(),
		c.newInfoCmd(),
		c.newExtractCmd(),
		c.newCreateCmd(),
	)
	return root
}

func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// addReadFlags registers the flags shared by commands that open archives.
func addReadFlags(fs *pflag.FlagSet) {
	fs.String(keyVariant, variantAuto, "archive layout: auto, "+variantNames())
	fs.Bool(keyCaseSensitive, false, "match entry names case-sensitively")
}

// openArchive opens path with the read flags applied.
func (c *cli) openArchive(path string, extra ...hpk.Option) (*hpk.ArchiveFile, error) {
	opts := []hpk.Option{
		hpk.WithLogger(c.logger),
		hpk.WithCaseSensitive(c.v.GetBool(keyCaseSensitive)),
	}
	if name := c.v.GetString(keyVariant); name != "" && name != variantAuto {
		v, ok := hpk.LookupVariant(name)
		if !ok {
			return nil, fmt.Errorf("unknown variant %q (want auto, %s)", name, variantNames())
		}
		opts = append(opts, hpk.WithVariant(v))
	}
	return hpk.OpenFile(path, append(opts, extra...)...)
}

func variantNames() string {
	vs := hpk.Variants()
	names := make([]string, 0, len(vs))
	for _, v := range vs {
		names = append(names, v.Name)
	}
	return strings.Join(names, ", ")
}
