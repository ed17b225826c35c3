package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	tferrors "github.com/tabflow/tabflow/pkg/errors"
	"github.com/tabflow/tabflow/pkg/ingest/sources"
	"github.com/tabflow/tabflow/pkg/processors"
	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/table"
	"github.com/tabflow/tabflow/pkg/tui"
	"github.com/tabflow/tabflow/pkg/watch"
)

var (
	validateFlags   tableFlags
	validateJobs    int
	validateProfile bool

	watchFlags    tableFlags
	watchDebounce time.Duration
)

var validateCmd = &cobra.Command{
	Use:   "validate <locations...>",
	Short: "Validate tables against their schemas",
	Long: `Cast every row of each table and check unique, primary key and foreign key
constraints. Locations are validated concurrently; glob patterns are expanded.
Tables without a schema share inferred descriptors by header layout.

Exits with status 1 when any table is invalid.

Examples:
  tabflow validate data/*.csv --schema people.schema.json
  tabflow validate orders.csv --relations customers.json --profile
  tabflow validate --storage sql --resource people`,
	RunE: runValidate,
}

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Re-validate a file whenever it or its schema changes",
	Long: `Validate a local file, then watch it (and its --schema descriptor) and validate
again after every change. Stop with Ctrl-C.

Examples:
  tabflow watch people.csv --schema people.schema.json`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	validateFlags.register(validateCmd)
	validateCmd.Flags().IntVarP(&validateJobs, "jobs", "j", 4, "Number of tables validated in parallel")
	validateCmd.Flags().BoolVar(&validateProfile, "profile", false, "Print a field profile of each valid table")

	watchFlags.register(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Wait this long after the last write before validating")
}

// validation is the outcome of one table plus its optional profile.
type validation struct {
	result  tui.Result
	profile *processors.QualityReport
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	locations := []string{""}
	if validateFlags.storageName == "" {
		if len(args) == 0 {
			return fmt.Errorf("expected at least one location")
		}
		expanded, err := sources.Expand(args)
		if err != nil {
			return err
		}
		locations = expanded
	} else if len(args) > 0 {
		return fmt.Errorf("locations cannot be combined with --storage")
	}

	ropts, err := validateFlags.readOptions()
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if len(locations) > 1 && isTerminal(os.Stderr) {
		bar = tui.ShowProgress(os.Stderr, int64(len(locations)), "validating")
	}

	cache := schema.NewCache()
	validations := make([]validation, len(locations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(validateJobs, 1))
	for i, location := range locations {
		g.Go(func() error {
			validations[i] = validateOne(gctx, &validateFlags, location, cache, validateProfile, ropts)
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if bar != nil {
		_ = bar.Finish()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	results := make([]tui.Result, len(validations))
	for i, v := range validations {
		results[i] = v.result
	}
	tui.PrintHeader(out, version)
	tui.PrintResults(out, results)
	if validateProfile {
		printProfiles(out, validations)
	}
	return failures(validations)
}

// failures combines the errors of invalid tables, each tagged with its location, under
// errInvalidTables.
func failures(validations []validation) error {
	var failed tferrors.MultiError
	for _, v := range validations {
		if v.result.OK() {
			continue
		}
		failed.Add(tferrors.Wrapf(v.result.Err, tferrors.GetCode(v.result.Err), "%s", v.result.Location))
	}
	if !failed.HasErrors() {
		return nil
	}
	return fmt.Errorf("%w: %w", errInvalidTables, failed.Combined())
}

func validateOne(ctx context.Context, f *tableFlags, location string, cache *schema.Cache, profile bool, ropts []table.ReadOption) validation {
	start := time.Now()
	v := validation{result: tui.Result{Location: location}}

	var inspector *processors.QualityInspector
	var extra []table.Option
	if profile {
		inspector = processors.NewQualityInspector()
		extra = append(extra, table.WithPostCast(inspector.Processor()))
	}

	o, err := f.openTable(ctx, location, cache, extra...)
	if err != nil {
		v.result.Err = err
		return v
	}
	defer o.close()
	v.result.Location = o.location

	for _, err := range o.table.Iter(ctx, ropts...) {
		if err != nil {
			v.result.Err = err
			break
		}
		v.result.Rows++
	}
	v.result.Duration = time.Since(start)

	log.Debug().Str("location", v.result.Location).Int("rows", v.result.Rows).Dur("elapsed", v.result.Duration).
		AnErr("error", v.result.Err).Msg("validated")
	if inspector != nil && v.result.OK() {
		v.profile = inspector.Report()
	}
	return v
}

func printProfiles(w io.Writer, validations []validation) {
	for _, v := range validations {
		if v.profile == nil {
			continue
		}
		data, err := v.profile.ToJSON()
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "\n  %s  %s\n%s\n", v.result.Location, v.profile.String(), data)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	location := args[0]
	if sources.IsRemote(location) || location == "-" {
		return fmt.Errorf("watch needs a local file, got %q", location)
	}
	ropts, err := watchFlags.readOptions()
	if err != nil {
		return err
	}

	w, err := watch.New(watch.WithDebounce(watchDebounce), watch.WithLogger(log.Logger))
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Watch(location); err != nil {
		return err
	}
	if watchFlags.schemaFile != "" {
		if err := w.Watch(watchFlags.schemaFile); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	check := func(ctx context.Context) {
		v := validateOne(ctx, &watchFlags, location, nil, false, ropts)
		fmt.Fprintf(out, "\n[%s]\n", time.Now().Format("15:04:05"))
		tui.PrintResults(out, []tui.Result{v.result})
	}

	tui.PrintHeader(out, version)
	check(ctx)
	w.OnChange = func(ctx context.Context, path string) error {
		log.Debug().Str("path", path).Msg("change detected")
		check(ctx)
		return nil
	}
	w.OnError = func(path string, err error) {
		log.Warn().Err(err).Str("path", path).Msg("watch error")
	}

	fmt.Fprintln(out, "\nWatching for changes (Ctrl-C to stop)...")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
