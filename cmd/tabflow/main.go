// tabflow - typed reading and validation of tabular data
// Casts CSV, TSV, XLSX and storage-backed tables against a schema descriptor.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tabflow/tabflow/pkg/config"
	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
	jsonLog    bool
)

var (
	cfg              = config.Default()
	shutdownTracing  telemetry.ShutdownFunc
	errInvalidTables = errors.New("validation failed")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(os.Stderr, err, verbose)
		os.Exit(1)
	}
}

// reportError prints a command failure. Invalid tables were already reported per table,
// so only their details are logged. With stack set the origin of a coded error follows.
func reportError(w io.Writer, err error, stack bool) {
	if errors.Is(err, errInvalidTables) {
		log.Debug().Err(err).Msg("invalid tables")
		return
	}
	fmt.Fprintln(w, "Error:", err)
	var tfErr *tferrors.Error
	if stack && errors.As(err, &tfErr) && len(tfErr.StackTrace) > 0 {
		fmt.Fprint(w, tfErr.FormatStack())
	}
}

var rootCmd = &cobra.Command{
	Use:   "tabflow",
	Short: "tabflow - cast and validate tabular data against a schema",
	Long: `tabflow reads tables (CSV, TSV, XLSX, SQL, Redis, MongoDB), infers or loads a schema
descriptor, casts every row and checks unique, primary key and foreign key constraints.

Locations may be local paths, globs, "-" for stdin, http(s):// or s3:// URLs.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: layered /etc, ~/.tabflow, ./.tabflow.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "log-json", false, "Log as JSON instead of console output")

	rootCmd.AddCommand(inferCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(driftCmd)
	rootCmd.AddCommand(jsonschemaCmd)
	rootCmd.AddCommand(processorsCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	setupLogger()

	m := config.NewManager()
	if err := m.Load(); err != nil {
		return err
	}
	if configFile != "" {
		if err := m.LoadFile(configFile); err != nil {
			return err
		}
	}
	cfg = m.Get()
	log.Debug().Strs("paths", m.GetPaths()).Str("storage", cfg.Storage.Backend).Msg("configuration loaded")

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Start(cmd.Context(), telemetry.FromConfig(cfg.Telemetry, version))
		if err != nil {
			log.Warn().Err(err).Msg("tracing disabled")
			return nil
		}
		shutdownTracing = shutdown
		log.Debug().Str("endpoint", cfg.Telemetry.Endpoint).Msg("tracing enabled")
	}
	return nil
}

func teardown(ctx context.Context) error {
	if shutdownTracing == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to flush traces")
	}
	return nil
}

func setupLogger() {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if !jsonLog && isTerminal(os.Stderr) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		return
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice != 0
}
