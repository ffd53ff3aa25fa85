// Package update resolves Lookup columns within one topological group by
// issuing a single UPDATE...OUTER APPLY statement per group, driven by each
// Lookup node's effective dependencies. Grounded on
// original_source/src/update_processor.rs.
package update

import (
	"context"
	"fmt"
	"strings"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/columngraph"
	"github.com/etylermoss/sql-bulk-import-profile/internal/dbdriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/sqltype"
	"github.com/etylermoss/sql-bulk-import-profile/internal/staging"
)

const component = "update"

// Run issues one UPDATE statement covering every non-transient Lookup node
// in group, or does nothing if group has no Lookup nodes. Static dependency
// values are bound as positional parameters in emission order (one per
// occurrence — not deduplicated, matching the original engine); coercion
// failure for a static dependency is fatal, since it indicates profile or
// schema drift rather than bad input data.
func Run(ctx context.Context, driver dbdriver.Driver, table *staging.Table, graph *columngraph.Graph, group []columngraph.IndexedNode) error {
	var setClauses []string
	var applyClauses []string
	var args []any
	applyIndex := 0

	for _, node := range group {
		if node.Node.Kind != columngraph.LookupNode {
			continue
		}

		lookup := node.Node.Lookup
		applyIndex++
		alias := fmt.Sprintf("oa%d", applyIndex)
		innerAlias := fmt.Sprintf("l_inner%d", applyIndex)

		var conditions []string
		for _, keyNode := range graph.ColumnDependencies(node.Index) {
			deps := graph.ColumnDependencies(keyNode.Index)
			if len(deps) == 0 {
				return apperr.New(apperr.CodeKeyColumnUnknown, component, "Run", fmt.Sprintf("key column %s has no resolved dependency", keyNode.Node))
			}
			dependency := deps[0]

			var keyColumnIdentifier string
			switch keyNode.Node.Kind {
			case columngraph.ParserKeyNode:
				keyColumnIdentifier = keyNode.Node.ParserKey.KeyColumnIdentifier.Part()
			case columngraph.ProcessedKeyNode:
				keyColumnIdentifier = keyNode.Node.ProcessedKey.KeyColumnIdentifier.Part()
			default:
				return apperr.New(apperr.CodeKeyColumnUnknown, component, "Run", fmt.Sprintf("unexpected key node kind for %s", keyNode.Node))
			}

			if dependency.Node.Kind == columngraph.StaticNode {
				value, ok, err := sqltype.Coerce(dependency.Metadata.Type, dependency.Node.Static.Value)
				if err != nil || !ok {
					return apperr.New(apperr.CodeStaticParamCoercion, component, "Run", fmt.Sprintf("static value for %s does not fit its staging column type %s", dependency.Node.Static.ColumnIdentifier.Full(), dependency.Metadata.Type))
				}
				args = append(args, value)
				conditions = append(conditions, fmt.Sprintf("%s.%s = @p%d", innerAlias, keyColumnIdentifier, len(args)))
			} else {
				conditions = append(conditions, fmt.Sprintf("%s.%s = t.%s", innerAlias, keyColumnIdentifier, dependency.UniqueName.Part()))
			}
		}

		setClauses = append(setClauses, fmt.Sprintf("t.%s = %s.val", node.UniqueName.Part(), alias))
		applyClauses = append(applyClauses, fmt.Sprintf(
			"OUTER APPLY (SELECT TOP 1 %s.%s AS val FROM %s AS %s WHERE %s) AS %s",
			innerAlias, lookup.OutputColumnIdentifier.Part(), lookup.TableIdentifier.Full(), innerAlias,
			strings.Join(conditions, " AND "), alias,
		))
	}

	if len(setClauses) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(
		"UPDATE t SET %s FROM %s AS t %s;",
		strings.Join(setClauses, ", "),
		table.Identifier.Full(),
		strings.Join(applyClauses, " "),
	)

	if len(args) != countParams(stmt) {
		// assert parameter count equals placeholder count, mirroring
		// update_processor.rs's assert_eq! before execution.
		return apperr.New(apperr.CodeDBUpdate, component, "Run", "parameter count does not match placeholder count")
	}

	if _, err := driver.Exec(ctx, stmt, args...); err != nil {
		return apperr.New(apperr.CodeDBUpdate, component, "Run", "update statement failed").Wrap(err)
	}
	return nil
}

// countParams counts "@pN" placeholders in stmt.
func countParams(stmt string) int {
	count := 0
	for i := 0; i < len(stmt); i++ {
		if stmt[i] == '@' && i+1 < len(stmt) && stmt[i+1] == 'p' {
			count++
		}
	}
	return count
}
