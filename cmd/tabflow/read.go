package main

import (
	"bufio"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tabflow/tabflow/pkg/schema"
	"github.com/tabflow/tabflow/pkg/table"
)

var (
	readFlags tableFlags
	readKeyed bool
	readLimit int
	readArrow bool
)

var readCmd = &cobra.Command{
	Use:   "read <location>",
	Short: "Cast a table and print its rows as JSON lines",
	Long: `Read a table, cast every row under its schema and print one JSON value per row.
Rows are arrays in field order, or objects with --keyed.

Processor specs are name:arg:arg, for example where:age:gte:30, sample:0.1:42,
rename:old=new or anonymize:email,phone:salt. Run "tabflow processors" for the list.

Examples:
  tabflow read people.csv --schema people.schema.json
  tabflow read people.csv --keyed --limit 10
  tabflow read orders.csv --relations customers.json
  tabflow read people.csv --post where:age:gte:30 --post head:5
  tabflow read --storage sql --resource people --keyed`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRead,
}

func init() {
	readFlags.register(readCmd)
	readCmd.Flags().BoolVarP(&readKeyed, "keyed", "k", false, "Emit rows as objects keyed by field name")
	readCmd.Flags().IntVarP(&readLimit, "limit", "n", 0, "Stop after n rows (0 = all)")
	readCmd.Flags().BoolVar(&readArrow, "arrow", false, "Materialize as an Arrow record and print its schema and row count")
}

func runRead(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	location, err := readFlags.location(args)
	if err != nil {
		return err
	}
	o, err := readFlags.openTable(ctx, location, nil)
	if err != nil {
		return err
	}
	defer o.close()

	ropts, err := readFlags.readOptions()
	if err != nil {
		return err
	}
	if readKeyed || cfg.Read.Keyed {
		ropts = append(ropts, table.Keyed())
	}
	limit := readLimit
	if !cmd.Flags().Changed("limit") {
		limit = cfg.Read.Limit
	}
	if limit > 0 {
		ropts = append(ropts, table.Limit(limit))
	}

	if readArrow {
		rec, err := o.table.ReadArrow(ctx, nil, ropts...)
		if err != nil {
			return err
		}
		defer rec.Release()
		fmt.Fprintln(cmd.OutOrStdout(), rec.Schema().String())
		fmt.Fprintf(cmd.OutOrStdout(), "rows: %d\n", rec.NumRows())
		return nil
	}

	w := bufio.NewWriter(cmd.OutOrStdout())
	defer w.Flush()
	enc := json.NewEncoder(w)

	var s *schema.Schema
	for row, err := range o.table.Iter(ctx, ropts...) {
		if err != nil {
			return err
		}
		if s == nil {
			s = o.table.Schema()
		}
		if err := enc.Encode(jsonRow(s, row)); err != nil {
			return err
		}
	}
	return nil
}
