// Package dbdriver declares the wire contract the import engine requires of
// a SQL Server driver: per-table column metadata retrieval, parameterized
// statement execution, and a bulk-insert channel. internal/mssqldriver is
// the concrete implementation; the core (internal/columngraph,
// internal/staging, internal/insert, internal/update, internal/merge,
// internal/executor) depends only on these interfaces, mirroring the
// driver collaborator boundary described in SPEC_FULL.md §4.9/§5.
package dbdriver

import (
	"context"

	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/sqltype"
)

// ColumnMetadata is the server-reported shape of one column: its SQL type
// tag, size/precision, and nullability. Callers that can't find metadata
// for a column fall back to DefaultColumnMetadata (nullable NVARCHAR(max)).
type ColumnMetadata struct {
	Type     sqltype.Tag
	Size     sqltype.Size
	Nullable bool

	// Identity reports whether the server defined this column IDENTITY.
	// The merge processor (C8) never writes to an identity column, on
	// either side of a MERGE's UPDATE SET or INSERT list.
	Identity bool
}

// DefaultColumnMetadata is substituted for any table+column the server's
// metadata query doesn't return, per SPEC_FULL.md §4.4/§4.5.
var DefaultColumnMetadata = ColumnMetadata{
	Type:     sqltype.NVarChar,
	Size:     sqltype.Size{MaxLength: true},
	Nullable: true,
}

// Driver is the full wire contract the executor (C9) opens once per run and
// threads down to the staging/insert/update/merge processors.
type Driver interface {
	// TableMetadata returns column metadata for every column of table.
	// Implementations query sys.columns/sys.types (or equivalent); a table
	// with no columns returned is not an error — callers treat a missing
	// column as DefaultColumnMetadata.
	TableMetadata(ctx context.Context, table identifier.Table) (map[identifier.Column]ColumnMetadata, error)

	// Exec runs a non-bulk statement (CREATE/DROP/UPDATE/MERGE) with
	// positional parameters bound in order, returning the affected row
	// count where the statement reports one.
	Exec(ctx context.Context, statement string, args ...any) (rowsAffected int64, err error)

	// BulkInsert opens a bulk-insert channel targeting table's columns (in
	// the given order). Callers send one row per record via the returned
	// BulkInsertSink, then call Finalize to flush and obtain the affected
	// row count.
	BulkInsert(ctx context.Context, table identifier.Table, columns []identifier.Column) (BulkInsertSink, error)

	// Close releases the underlying connection.
	Close() error
}

// BulkInsertSink accepts rows for one bulk-insert operation, in the column
// order given to Driver.BulkInsert.
type BulkInsertSink interface {
	// Send pushes one row. row must have the same length and order as the
	// columns passed to BulkInsert.
	Send(ctx context.Context, row []any) error

	// Finalize flushes remaining buffered rows and returns the total
	// affected row count. It is safe (and required, per SPEC_FULL.md §4.6)
	// to call Finalize after a mid-stream Send error, to preserve
	// best-effort cleanup semantics; Finalize's own error is subordinate to
	// any error already in hand.
	Finalize(ctx context.Context) (rowsAffected int64, err error)
}
