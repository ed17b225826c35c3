package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	inferFlags = tableFlags{inferOnly: true}
	inferYAML  bool
	inferSave  bool
)

var inferCmd = &cobra.Command{
	Use:   "infer <location>",
	Short: "Infer and print the schema descriptor of a table",
	Long: `Infer field types from a sample of rows and print the normalized descriptor.

With --save the descriptor is written next to a local file as <name>.schema.json (or to
the schema cache directory for remote locations), where read, validate and watch pick
it up automatically.

Examples:
  tabflow infer people.csv
  tabflow infer --yaml --sheet Q1 report.xlsx
  tabflow infer --save https://example.com/data.csv
  tabflow infer --storage sql --resource people`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInfer,
}

func init() {
	inferFlags.registerSource(inferCmd)
	inferCmd.Flags().BoolVar(&inferYAML, "yaml", false, "Print YAML instead of JSON")
	inferCmd.Flags().BoolVar(&inferSave, "save", false, "Save the descriptor for later reads")
}

func runInfer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	location, err := inferFlags.location(args)
	if err != nil {
		return err
	}

	o, err := inferFlags.openTable(ctx, location, nil)
	if err != nil {
		return err
	}
	defer o.close()

	d, err := o.table.Infer(ctx)
	if err != nil {
		return err
	}

	data, err := d.JSON()
	if inferYAML {
		data, err = d.YAML()
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if !inferSave {
		return nil
	}
	path := savedSchemaPath(location)
	if path == "" {
		return fmt.Errorf("cannot save a descriptor for %q", o.location)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create schema directory: %w", err)
	}
	if err := d.Save(path); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("fields", len(d.Fields)).Msg("descriptor saved")
	return nil
}
