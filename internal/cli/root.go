package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/roach88/chronicle/internal/config"
	"github.com/roach88/chronicle/internal/logging"
	"github.com/roach88/chronicle/internal/metrics"
	"github.com/roach88/chronicle/internal/store"
)

// RootOptions holds global flags and the state loaded from them.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Populated by PersistentPreRunE.
	Config config.Config
	Logger *zap.Logger

	viper *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// flagBindings maps persistent flags onto config keys so they win over
// files and environment.
var flagBindings = map[string]string{
	"driver":       "storage.driver",
	"db":           "storage.dsn",
	"log-level":    "log.level",
	"metrics-file": "metrics.textfile",
}

// NewRootCommand creates the root command for the chronicle CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{viper: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "chronicle",
		Short: "chronicle - versioned entity history",
		Long: `Store time-stamped entity snapshots once, deduplicated by content, and
query both the raw observation log and the derived version history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd.Root().PersistentFlags())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.finish()
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	flags.String("driver", "", fmt.Sprintf("database driver %v", store.Drivers()))
	flags.String("db", "", "database DSN or SQLite path")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("metrics-file", "", "write Prometheus metrics here on exit")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewAppendCommand(opts))
	cmd.AddCommand(NewRebuildCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewObservationsCommand(opts))
	cmd.AddCommand(NewVersionsCommand(opts))
	cmd.AddCommand(NewObjectCommand(opts))

	return cmd
}

// load binds flags, reads configuration and builds the logger.
func (o *RootOptions) load(flags *pflag.FlagSet) error {
	for name, key := range flagBindings {
		if err := o.viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return WrapExitError(ExitCommandError, "bind flag "+name, err)
		}
	}

	cfg, err := config.Load(o.viper, o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build logger", err)
	}

	o.Config = cfg
	o.Logger = logger
	return nil
}

// finish exports metrics and flushes the logger.
func (o *RootOptions) finish() error {
	if o.Logger != nil {
		_ = o.Logger.Sync()
	}
	if path := o.Config.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			return WrapExitError(ExitFailure, "failed to write metrics", err)
		}
	}
	return nil
}

// openStore opens the configured database.
func (o *RootOptions) openStore(ctx context.Context) (*store.Store, error) {
	opts, err := o.Config.StoreOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, store.WithLogger(o.Logger))
	return store.OpenDriver(ctx, o.Config.Storage.Driver, o.Config.Storage.DSN, opts...)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
