// Package insert streams source records through the group-0 (Parser-only)
// staging columns and bulk-inserts them, per SPEC_FULL.md §4.6. Grounded on
// original_source/src/insert_processor.rs.
package insert

import (
	"context"
	"fmt"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/columngraph"
	"github.com/etylermoss/sql-bulk-import-profile/internal/datasource"
	"github.com/etylermoss/sql-bulk-import-profile/internal/dbdriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/sqltype"
	"github.com/etylermoss/sql-bulk-import-profile/internal/staging"
	"github.com/sirupsen/logrus"
)

const component = "insert"

// Result reports how many records were read, how many rows landed in the
// staging table, and how many records were dropped by a row-level error
// (logged as a warning, not fatal to the run).
type Result struct {
	RecordsRead    uint64
	RowsInserted   int64
	RecordsSkipped uint64
}

// Run reads every record from src, coerces each group-0 Parser column's
// source field into the staging column's declared SQL type, and bulk-
// inserts the resulting row. A record missing a declared field is logged
// as a warning and dropped, not treated as fatal (SPEC_FULL.md §9). Coercion
// failures at insert time are non-fatal: the slot becomes NULL.
func Run(ctx context.Context, driver dbdriver.Driver, src datasource.Source, table *staging.Table, group []columngraph.IndexedNode, profileName, mapperName string, log *logrus.Logger) (*Result, error) {
	// Static nodes also land in group 0 (they have no dependencies), but they
	// are transient and have no staging column, so they are not inserted.
	var targets []columngraph.IndexedNode
	for _, node := range group {
		if !node.Node.IsTransient() {
			targets = append(targets, node)
		}
	}

	columns := make([]identifier.Column, len(targets))
	for i, node := range targets {
		columns[i] = node.UniqueName
	}

	sink, err := driver.BulkInsert(ctx, table.Identifier, columns)
	if err != nil {
		return nil, apperr.New(apperr.CodeDBBulkInsert, component, "Run", "could not open bulk-insert channel").Wrap(err)
	}

	result := &Result{}
	var firstErr error

	for {
		record, err := src.Next(ctx)
		if err == datasource.ErrDone {
			break
		}
		if err != nil {
			firstErr = apperr.New(apperr.CodeDBBulkInsert, component, "Run", "source read failed").Wrap(err)
			break
		}
		result.RecordsRead++

		row, skip, rowErr := buildRow(targets, record)
		if rowErr != nil {
			firstErr = rowErr
			break
		}
		if skip != "" {
			result.RecordsSkipped++
			if log != nil {
				recordNumber := record.Index.RecordNumber
				log.WithFields(logrus.Fields{
					"profile": profileName, "table_mapper": mapperName, "record": recordNumber,
				}).Warn(skip)
			}
			continue
		}

		if err := sink.Send(ctx, row); err != nil {
			firstErr = apperr.New(apperr.CodeDBBulkInsert, component, "Run", "bulk-insert send failed").Wrap(err)
			break
		}
	}

	rowsInserted, finalizeErr := sink.Finalize(ctx)
	result.RowsInserted = rowsInserted
	if firstErr != nil {
		return result, firstErr
	}
	if finalizeErr != nil {
		return result, apperr.New(apperr.CodeDBBulkInsert, component, "Run", "bulk-insert finalize failed").Wrap(finalizeErr)
	}
	return result, nil
}

// buildRow produces one staging row for record, in group's column order.
// skip is non-empty when the record is missing a declared field (a warning,
// not a fatal error); rowErr is non-nil only for a genuinely unsupported
// column type, which is fatal.
func buildRow(group []columngraph.IndexedNode, record *datasource.Record) (row []any, skip string, rowErr error) {
	row = make([]any, len(group))

	for i, node := range group {
		if node.Node.Kind != columngraph.ParserNode {
			return nil, "", apperr.New(apperr.CodeUnsupportedColumn, component, "buildRow", fmt.Sprintf("group 0 contains a non-Parser node: %s", node.Node))
		}

		raw, ok := record.Field(node.Node.Parser.FieldName)
		if !ok {
			return nil, fmt.Sprintf("record missing field %q for column %s", node.Node.Parser.FieldName, node.Node.Parser.ColumnIdentifier.Full()), nil
		}

		value, coerced, err := sqltype.Coerce(node.Metadata.Type, raw)
		if err != nil {
			return nil, "", apperr.New(apperr.CodeUnsupportedColumn, component, "buildRow", fmt.Sprintf("column %s has unsupported type %s", node.UniqueName.Full(), node.Metadata.Type)).Wrap(err)
		}
		if !coerced {
			row[i] = nil
			continue
		}
		row[i] = value
	}

	return row, "", nil
}
