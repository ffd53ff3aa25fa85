// Package merge reconciles the staging table into the target table with a
// single MERGE statement (C8): matched rows are updated, unmatched rows are
// inserted. Grounded on original_source/src/merge_processor.rs.
package merge

import (
	"context"
	"fmt"
	"strings"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/columngraph"
	"github.com/etylermoss/sql-bulk-import-profile/internal/dbdriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/staging"
)

const component = "merge"

// Run issues one MERGE INTO target USING staging ON keyColumns statement,
// covering every mappable column in graph. Identity columns are never
// written on either side. Transient columns have no staging column, so they
// are left out of the UPDATE SET list and of the INSERT lists on both the
// target and staging sides — the original engine's
// insert_columns_temporary list filtered only on identity, which could
// produce a column-count mismatch against insert_columns_target whenever a
// transient column was independently mappable; this implementation applies
// the same transient filter to both lists so they always stay in lockstep.
func Run(ctx context.Context, driver dbdriver.Driver, target identifier.Table, table *staging.Table, graph *columngraph.Graph, keyColumns []identifier.Column) error {
	columns := graph.TargetColumns()

	keySet := make(map[string]columngraph.IndexedNode, len(keyColumns))
	var onConditions []string
	for _, keyColumn := range keyColumns {
		var found *columngraph.IndexedNode
		for i := range columns {
			if columns[i].Node.Identifier().Full() == keyColumn.Full() {
				found = &columns[i]
				break
			}
		}
		if found == nil {
			return apperr.New(apperr.CodeKeyColumnUnknown, component, "Run", fmt.Sprintf("could not find column target for key column: %s", keyColumn.Full()))
		}
		keySet[keyColumn.Full()] = *found
		onConditions = append(onConditions, fmt.Sprintf("T.%s = S.%s", keyColumn.Part(), found.UniqueName.Part()))
	}

	var setClauses []string
	var insertTarget []string
	var insertStaging []string
	for _, column := range columns {
		_, isKey := keySet[column.Node.Identifier().Full()]

		if !column.Metadata.Identity && !isKey && !column.Node.IsTransient() {
			setClauses = append(setClauses, fmt.Sprintf("T.%s = S.%s", column.Node.Identifier().Part(), column.UniqueName.Part()))
		}

		if !column.Metadata.Identity && !column.Node.IsTransient() {
			insertTarget = append(insertTarget, column.Node.Identifier().Part())
			insertStaging = append(insertStaging, column.UniqueName.Part())
		}
	}

	stmt := fmt.Sprintf(
		"MERGE INTO %s AS T USING %s AS S ON %s WHEN MATCHED THEN UPDATE SET %s WHEN NOT MATCHED BY TARGET THEN INSERT (%s) VALUES (%s);",
		target.Full(), table.Identifier.Full(),
		strings.Join(onConditions, " AND "),
		strings.Join(setClauses, ", "),
		strings.Join(insertTarget, ", "),
		strings.Join(insertStaging, ", "),
	)

	if _, err := driver.Exec(ctx, stmt); err != nil {
		return apperr.New(apperr.CodeDBMerge, component, "Run", "merge statement failed").Wrap(err)
	}
	return nil
}
