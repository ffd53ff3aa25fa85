// Package mssqldriver implements internal/dbdriver's interfaces against a
// real SQL Server connection via database/sql and
// github.com/microsoft/go-mssqldb (A7). Grounded on the sys.columns
// metadata query shape in other_examples/.../xaas-cloud-genai-toolbox's
// mssqllisttables.go, and on the transaction/IDENTITY_INSERT pattern in
// other_examples/.../tdtp-framework's pkg/adapters/mssql/import.go.
package mssqldriver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/dbdriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/sqltype"
	mssql "github.com/microsoft/go-mssqldb"
)

const component = "mssqldriver"

// Driver implements dbdriver.Driver over a single *sql.DB opened with the
// "sqlserver" driver name.
type Driver struct {
	db *sql.DB
}

// Open establishes a connection pool against connectionString, verifying it
// with a ping before returning.
func Open(ctx context.Context, connectionString string) (*Driver, error) {
	db, err := sql.Open("sqlserver", connectionString)
	if err != nil {
		return nil, apperr.New(apperr.CodeDBMetadata, component, "Open", "could not open connection").Wrap(err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperr.New(apperr.CodeDBMetadata, component, "Open", "could not reach server").Wrap(err)
	}
	return &Driver{db: db}, nil
}

// Close releases the underlying connection pool.
func (d *Driver) Close() error {
	return d.db.Close()
}

const tableMetadataStatement = `
SELECT
	c.name AS column_name,
	ty.name AS type_name,
	c.max_length,
	c.precision,
	c.scale,
	c.is_nullable,
	c.is_identity
FROM sys.columns c
JOIN sys.tables t ON c.object_id = t.object_id
JOIN sys.schemas s ON t.schema_id = s.schema_id
JOIN sys.types ty ON c.user_type_id = ty.user_type_id
WHERE s.name = @p1 AND t.name = @p2;
`

// TableMetadata queries sys.columns/sys.types for table's schema-qualified
// name and returns one dbdriver.ColumnMetadata per column, keyed by its
// fully schema/table-qualified identifier.
func (d *Driver) TableMetadata(ctx context.Context, table identifier.Table) (map[identifier.Column]dbdriver.ColumnMetadata, error) {
	rows, err := d.db.QueryContext(ctx, tableMetadataStatement, table.AsSchema().PartUnescaped(), table.PartUnescaped())
	if err != nil {
		return nil, apperr.New(apperr.CodeDBMetadata, component, "TableMetadata", fmt.Sprintf("could not query column metadata for %s", table.Full())).Wrap(err)
	}
	defer rows.Close()

	out := make(map[identifier.Column]dbdriver.ColumnMetadata)
	for rows.Next() {
		var (
			columnName           string
			typeName             string
			maxLength, precision int
			scale                int
			isNullable           bool
			isIdentity           bool
		)
		if err := rows.Scan(&columnName, &typeName, &maxLength, &precision, &scale, &isNullable, &isIdentity); err != nil {
			return nil, apperr.New(apperr.CodeDBMetadata, component, "TableMetadata", "could not scan column metadata row").Wrap(err)
		}

		column, err := identifier.ColumnWithTable(table, columnName)
		if err != nil {
			return nil, apperr.New(apperr.CodeDBMetadata, component, "TableMetadata", fmt.Sprintf("server returned an unparsable column name %q", columnName)).Wrap(err)
		}

		out[column] = dbdriver.ColumnMetadata{
			Type:     mapServerType(typeName),
			Size:     sizeForType(typeName, maxLength, precision, scale),
			Nullable: isNullable,
			Identity: isIdentity,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.New(apperr.CodeDBMetadata, component, "TableMetadata", "error iterating column metadata rows").Wrap(err)
	}
	return out, nil
}

// Exec runs a non-bulk statement with positional @p1, @p2, ... parameters.
func (d *Driver) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	result, err := d.db.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, apperr.New(apperr.CodeDBUpdate, component, "Exec", "statement execution failed").Wrap(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		// Some statements (DDL) don't report an affected row count; that's
		// not itself an error condition.
		return 0, nil
	}
	return rows, nil
}

// bulkInsertSink wraps the go-mssqldb bulk-copy prepared statement pattern:
// mssql.CopyIn produces a pseudo-statement that, once prepared inside a
// transaction, accepts one Exec call per row and flushes on a final,
// argument-less Exec.
type bulkInsertSink struct {
	tx    *sql.Tx
	stmt  *sql.Stmt
	count int64
}

// BulkInsert opens a bulk-copy channel into table's columns inside a fresh
// transaction, using mssql.CopyIn.
func (d *Driver) BulkInsert(ctx context.Context, table identifier.Table, columns []identifier.Column) (dbdriver.BulkInsertSink, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.New(apperr.CodeDBBulkInsert, component, "BulkInsert", "could not begin transaction").Wrap(err)
	}

	columnNames := make([]string, len(columns))
	for i, column := range columns {
		columnNames[i] = column.PartUnescaped()
	}

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(bulkTableName(table), mssql.BulkOptions{}, columnNames...))
	if err != nil {
		tx.Rollback()
		return nil, apperr.New(apperr.CodeDBBulkInsert, component, "BulkInsert", "could not prepare bulk-copy statement").Wrap(err)
	}

	return &bulkInsertSink{tx: tx, stmt: stmt}, nil
}

// bulkTableName renders a schema-qualified name the way go-mssqldb's
// CopyIn expects it: unescaped, dot-separated parts (it applies its own
// quoting internally).
func bulkTableName(table identifier.Table) string {
	return fmt.Sprintf("%s.%s", table.AsSchema().PartUnescaped(), table.PartUnescaped())
}

func (s *bulkInsertSink) Send(ctx context.Context, row []any) error {
	if _, err := s.stmt.ExecContext(ctx, row...); err != nil {
		return apperr.New(apperr.CodeDBBulkInsert, component, "Send", "bulk-copy row send failed").Wrap(err)
	}
	s.count++
	return nil
}

func (s *bulkInsertSink) Finalize(ctx context.Context) (int64, error) {
	_, err := s.stmt.ExecContext(ctx)
	closeErr := s.stmt.Close()

	if err != nil {
		s.tx.Rollback()
		return 0, apperr.New(apperr.CodeDBBulkInsert, component, "Finalize", "bulk-copy flush failed").Wrap(err)
	}
	if closeErr != nil {
		s.tx.Rollback()
		return 0, apperr.New(apperr.CodeDBBulkInsert, component, "Finalize", "could not close bulk-copy statement").Wrap(closeErr)
	}
	if err := s.tx.Commit(); err != nil {
		return 0, apperr.New(apperr.CodeDBBulkInsert, component, "Finalize", "could not commit bulk-copy transaction").Wrap(err)
	}
	return s.count, nil
}

// mapServerType translates a sys.types name to the coercion tag the engine
// understands. Anything outside this set degrades to Unsupported rather
// than failing metadata retrieval outright, so that an import profile that
// never touches the column is unaffected.
func mapServerType(typeName string) sqltype.Tag {
	switch strings.ToLower(typeName) {
	case "bit":
		return sqltype.Bit
	case "tinyint":
		return sqltype.Int1
	case "smallint":
		return sqltype.Int2
	case "int":
		return sqltype.Int4
	case "bigint":
		return sqltype.Int8
	case "real":
		return sqltype.Float4
	case "float":
		return sqltype.Float8
	case "varchar", "char", "text":
		return sqltype.BigVarChar
	case "nvarchar", "nchar", "ntext":
		return sqltype.NVarChar
	case "decimal", "numeric", "money", "smallmoney":
		return sqltype.Decimal
	default:
		return sqltype.Unsupported
	}
}

func sizeForType(typeName string, maxLength, precision, scale int) sqltype.Size {
	switch strings.ToLower(typeName) {
	case "nvarchar", "nchar":
		if maxLength < 0 {
			return sqltype.Size{MaxLength: true}
		}
		return sqltype.Size{Length: maxLength / 2}
	case "varchar", "char", "text", "ntext":
		if maxLength < 0 {
			return sqltype.Size{MaxLength: true}
		}
		return sqltype.Size{Length: maxLength}
	case "decimal", "numeric", "money", "smallmoney":
		return sqltype.Size{Precision: precision, Scale: scale}
	default:
		return sqltype.Size{}
	}
}
