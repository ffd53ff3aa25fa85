// Command genschema writes the JSON Schema for an import profile document
// to a file (or stdout). Grounded on original_source/src/bin/build_schema.rs
// (a schemars::schema_for! dump binary) and, for the cobra CLI shape, on
// MacroPower-x's cmd/magicschema/main.go.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
	"github.com/spf13/cobra"
)

func main() {
	var output string

	rootCmd := &cobra.Command{
		Use:           "genschema [flags]",
		Short:         "Generate the JSON Schema for a sql-bulk-import-profile document",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(output)
		},
	}
	rootCmd.Flags().StringVarP(&output, "output", "o", "sql_bulk_import_profile.schema.json", "output path, or \"-\" for stdout")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(output string) error {
	schema, err := profile.Schema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}

	out, err := json.MarshalIndent(schema, "", "\t")
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	out = append(out, '\n')

	if output == "" || output == "-" {
		_, err = os.Stdout.Write(out)
		return err
	}

	if err := os.WriteFile(output, out, 0o644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	fmt.Printf("Schema written to %s.\n", output)
	return nil
}
