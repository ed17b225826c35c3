package main

import (
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tabflow/tabflow/pkg/registry"
	"github.com/tabflow/tabflow/pkg/schema"
)

var (
	driftFlags  = tableFlags{inferOnly: true}
	driftSchema string
	driftPolicy string
	driftWrite  bool
)

var driftCmd = &cobra.Command{
	Use:   "drift <location>",
	Short: "Compare a declared schema with the schema inferred from data",
	Long: `Infer the schema of a table and compare it with a declared descriptor under a
drift policy:

  strict          any difference is rejected
  merge_optional  new fields are merged as optional; removals and narrowing are rejected
  evolving        new fields and type widening are accepted

With --write an accepted, merged descriptor replaces the declared one.

Examples:
  tabflow drift people.csv --schema people.schema.json
  tabflow drift people.csv --schema people.schema.json --policy evolving --write`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDrift,
}

var jsonschemaCmd = &cobra.Command{
	Use:   "jsonschema",
	Short: "Print the JSON Schema of the schema descriptor format",
	Args:  cobra.NoArgs,
	RunE:  runJSONSchema,
}

var processorsCmd = &cobra.Command{
	Use:   "processors",
	Short: "List registered processors and storage backends",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "processors: %s\n", strings.Join(registry.Default().ListProcessors(), ", "))
		fmt.Fprintf(out, "storages:   %s\n", strings.Join(registry.Default().ListStorages(), ", "))
	},
}

func init() {
	driftFlags.registerSource(driftCmd)
	driftCmd.Flags().StringVarP(&driftSchema, "schema", "s", "", "Declared schema descriptor (required)")
	driftCmd.Flags().StringVar(&driftPolicy, "policy", "strict", "Drift policy (strict, merge_optional, evolving)")
	driftCmd.Flags().BoolVar(&driftWrite, "write", false, "Replace the declared descriptor with the merged one")
	driftCmd.MarkFlagRequired("schema")
}

func runDrift(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	location, err := driftFlags.location(args)
	if err != nil {
		return err
	}

	declared, err := schema.Load(driftSchema)
	if err != nil {
		return err
	}
	o, err := driftFlags.openTable(ctx, location, nil)
	if err != nil {
		return err
	}
	defer o.close()
	observed, err := o.table.Infer(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	enforcer := schema.NewPolicyEnforcer(schema.ParsePolicy(driftPolicy)).
		OnChange(func(old, new schema.Descriptor, diff *schema.Diff, decision schema.PolicyDecision) {
			printDiff(out, diff)
			log.Debug().Str("policy", driftPolicy).Str("decision", decision.String()).Msg("drift checked")
		})

	merged, err := enforcer.Enforce(declared.Descriptor(), *observed)
	if err != nil {
		return err
	}
	if driftWrite {
		if err := merged.Save(driftSchema); err != nil {
			return err
		}
		log.Info().Str("path", driftSchema).Int("fields", len(merged.Fields)).Msg("descriptor updated")
	}
	return nil
}

func printDiff(w io.Writer, d *schema.Diff) {
	fmt.Fprintf(w, "changes: %s\n", d.Summary())
	for _, f := range d.AddedFields {
		fmt.Fprintf(w, "  + %s (%s)\n", f.Name, f.Type)
	}
	for _, f := range d.RemovedFields {
		fmt.Fprintf(w, "  - %s (%s)\n", f.Name, f.Type)
	}
	for _, c := range d.TypeChanges {
		kind := "narrowing"
		if c.IsWidening {
			kind = "widening"
		}
		fmt.Fprintf(w, "  ~ %s: %s -> %s (%s)\n", c.Field, c.OldType, c.NewType, kind)
	}
	for _, c := range d.RequiredChanges {
		fmt.Fprintf(w, "  ~ %s: required %t -> %t\n", c.Field, c.WasRequired, c.IsRequired)
	}
	if !d.IsCompatible {
		fmt.Fprintf(w, "incompatible: %s\n", d.CompatibilityReason)
	}
}

func runJSONSchema(cmd *cobra.Command, args []string) error {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := r.Reflect(&schema.Descriptor{})
	s.Title = "tabflow schema descriptor"
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
