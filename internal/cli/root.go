// Package cli implements the firereport command: offline interpretation of
// analysis text and the upload, analyze, export workflow against a running
// fire-detection service.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

const envPrefix = "FIREREPORT"

// options carries the settings shared by every subcommand.
type options struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCmd builds the command tree. Settings resolve from flags, then
// FIREREPORT_* environment variables, then the optional YAML config file.
func NewRootCmd() *cobra.Command {
	opts := &options{v: viper.New()}

	root := &cobra.Command{
		Use:   "firereport",
		Short: "Satellite image fire detection reports",
		Long: `firereport interprets satellite fire analyses into a fire verdict and an
exportable report.

It can interpret analysis text offline, or drive a running fire-detection
service through upload, analysis and report export.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose logging to stderr")
	_ = opts.v.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(
		newInterpretCmd(opts),
		newAnalyzeCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *options) load(cmd *cobra.Command) error {
	o.v.SetEnvPrefix(envPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()

	if err := o.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if o.cfgFile == "" {
		return nil
	}
	o.v.SetConfigFile(o.cfgFile)
	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", o.cfgFile, err)
	}
	return nil
}

func (o *options) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "firereport %s\n", Version)
		},
	}
}
