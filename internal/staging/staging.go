// Package staging provisions and tears down the per-import staging table
// (C5): one column per non-transient column-graph node, typed and
// nullability-decided from attached server metadata and topological group
// position. Grounded on original_source/src/temporary_table.rs.
package staging

import (
	"context"
	"fmt"
	"strings"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/columngraph"
	"github.com/etylermoss/sql-bulk-import-profile/internal/dbdriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
)

const component = "staging"

// Schema is the fixed schema every staging table is created under.
const Schema = "[import]"

// Table describes one provisioned staging table: its identifier and the
// ordered, non-transient columns it was created with.
type Table struct {
	Identifier identifier.Table
	Columns    []columngraph.IndexedNode
}

// Create drops any existing staging table for target, then creates a fresh
// one under Schema named after target's unescaped base name, with one
// column per non-transient node in graph. Returns NoNonTransientColumns if
// every node is transient (there would be nothing to stage).
func Create(ctx context.Context, driver dbdriver.Driver, target identifier.Table, graph *columngraph.Graph) (*Table, error) {
	columns := graph.NonTransientColumns()
	if len(columns) == 0 {
		return nil, apperr.New(apperr.CodeNoNonTransientColumns, component, "Create", fmt.Sprintf("table mapper for %s has no non-transient columns to stage", target.Full()))
	}

	schema, err := identifier.ParseSchema(Schema)
	if err != nil {
		panic(fmt.Sprintf("staging: fixed schema literal should always parse: %v", err))
	}
	stagingTable, err := identifier.TableWithSchema(schema, target.PartUnescaped())
	if err != nil {
		return nil, apperr.New(apperr.CodeDBStaging, component, "Create", fmt.Sprintf("could not build staging table identifier for %s", target.Full())).Wrap(err)
	}

	if _, err := driver.Exec(ctx, dropStatement(stagingTable)); err != nil {
		return nil, apperr.New(apperr.CodeDBStaging, component, "Create", "could not drop prior staging table").Wrap(err)
	}

	createStmt := createStatement(stagingTable, columns, graph)
	if _, err := driver.Exec(ctx, createStmt); err != nil {
		return nil, apperr.New(apperr.CodeDBStaging, component, "Create", "could not create staging table").Wrap(err)
	}

	return &Table{Identifier: stagingTable, Columns: columns}, nil
}

// Finalize drops the staging table unless noDrop is set. Cleanup errors are
// reported but are always subordinate to any error already in hand; callers
// follow the pattern in SPEC_FULL.md §4.9 of preferring the first error.
func Finalize(ctx context.Context, driver dbdriver.Driver, table *Table, noDrop bool) error {
	if noDrop {
		return nil
	}
	if _, err := driver.Exec(ctx, dropStatement(table.Identifier)); err != nil {
		return apperr.New(apperr.CodeDBFinalize, component, "Finalize", fmt.Sprintf("could not drop staging table %s", table.Identifier.Full())).Wrap(err)
	}
	return nil
}

func dropStatement(table identifier.Table) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s;", table.Full(), table.Full())
}

func createStatement(table identifier.Table, columns []columngraph.IndexedNode, graph *columngraph.Graph) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table.Full())

	for i, column := range columns {
		nullable := column.Metadata.Nullable || graph.GroupIndexOf(column.Index) > 0
		nullability := "NOT NULL"
		if nullable {
			nullability = "NULL"
		}

		fmt.Fprintf(&b, "  %s %s %s", column.UniqueName.Part(), column.Metadata.Type.DDL(column.Metadata.Size), nullability)
		if i < len(columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}

	b.WriteString(");")
	return b.String()
}
