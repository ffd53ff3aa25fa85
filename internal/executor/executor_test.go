package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/etylermoss/sql-bulk-import-profile/internal/dbdriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain verifies a full Run leaves no goroutines behind: every data
// source and staging table opened by the executor must be torn down on
// every exit path, including error paths.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDriver is an in-memory dbdriver.Driver: Exec records every statement
// issued (for shape assertions), BulkInsert accepts rows into a slice.
type fakeDriver struct {
	metadata   map[identifier.Table]map[identifier.Column]dbdriver.ColumnMetadata
	statements []string
	inserted   [][]any
}

func (f *fakeDriver) TableMetadata(ctx context.Context, table identifier.Table) (map[identifier.Column]dbdriver.ColumnMetadata, error) {
	return f.metadata[table], nil
}

func (f *fakeDriver) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	f.statements = append(f.statements, statement)
	return 0, nil
}

func (f *fakeDriver) BulkInsert(ctx context.Context, table identifier.Table, columns []identifier.Column) (dbdriver.BulkInsertSink, error) {
	return &fakeSink{driver: f}, nil
}

func (f *fakeDriver) Close() error { return nil }

type fakeSink struct {
	driver *fakeDriver
	count  int64
}

func (s *fakeSink) Send(ctx context.Context, row []any) error {
	s.driver.inserted = append(s.driver.inserted, row)
	s.count++
	return nil
}

func (s *fakeSink) Finalize(ctx context.Context) (int64, error) {
	return s.count, nil
}

func mustColumn(t *testing.T, s string) identifier.Column {
	t.Helper()
	col, err := identifier.ParseColumn(s)
	require.NoError(t, err)
	return col
}

func mustTable(t *testing.T, s string) identifier.Table {
	t.Helper()
	tbl, err := identifier.ParseTable(s)
	require.NoError(t, err)
	return tbl
}

func buildProfile(t *testing.T, path string) *profile.ImportProfile {
	t.Helper()
	idCol := mustColumn(t, "Customer.Id")
	nameCol := mustColumn(t, "Customer.Name")

	mapper := &profile.TableMapper{
		Name:            "customers",
		FieldGroup:      "default",
		TableIdentifier: mustTable(t, "Customer"),
		KeyColumns:      []identifier.Column{idCol},
		Columns: []profile.TableMapperColumn{
			{Parser: &profile.ParserColumn{ColumnIdentifier: idCol, MapColumn: true, FieldName: "id"}},
			{Parser: &profile.ParserColumn{ColumnIdentifier: nameCol, MapColumn: true, FieldName: "name"}},
		},
	}

	return &profile.ImportProfile{
		Name: "customers-profile",
		DataSourceConfig: profile.DataSourceConfig{
			Delimited: &profile.DelimitedDataSourceConfig{
				Path: path,
				FieldGroups: map[string][]profile.Field{
					"default": {{Name: "id"}, {Name: "name"}},
				},
				ReaderConfig: profile.ReaderConfig{Kind: profile.ReaderConfigCsv},
			},
		},
		TableMappers: []*profile.TableMapper{mapper},
	}
}

func writeTempCSV(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "customers.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\r\n1,Ada\r\n2,Grace\r\n"), 0o644))
	return path
}

func TestRunExecutesInsertAndMergeForEachTableMapper(t *testing.T) {
	path := writeTempCSV(t)
	prof := buildProfile(t, path)

	driver := &fakeDriver{
		metadata: map[identifier.Table]map[identifier.Column]dbdriver.ColumnMetadata{
			mustTable(t, "Customer"): {
				mustColumn(t, "Customer.Id"):   {Identity: true},
				mustColumn(t, "Customer.Name"): {},
			},
		},
	}

	exec := New(driver, nil)
	err := exec.Run(context.Background(), prof, profile.DefaultImportOptions())
	require.NoError(t, err)

	require.Len(t, driver.inserted, 2)

	var sawMerge, sawCreate bool
	dropCount := 0
	for _, stmt := range driver.statements {
		switch {
		case strings.HasPrefix(stmt, "MERGE INTO"):
			sawMerge = true
		case strings.HasPrefix(stmt, "CREATE TABLE"):
			sawCreate = true
		case strings.Contains(stmt, "DROP TABLE"):
			dropCount++
		}
	}
	assert.True(t, sawCreate, "expected a staging table to be created")
	assert.True(t, sawMerge, "expected a merge statement once no-merge is unset")
	// One drop-if-exists before CREATE TABLE, one final drop (no_drop unset).
	assert.Equal(t, 2, dropCount, "expected the staging table to be dropped by default (no_drop unset)")

	// Source file is untouched: default deletion policy is retain.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestRunSkipsMergeWhenNoMergeSet(t *testing.T) {
	path := writeTempCSV(t)
	prof := buildProfile(t, path)

	driver := &fakeDriver{
		metadata: map[identifier.Table]map[identifier.Column]dbdriver.ColumnMetadata{
			mustTable(t, "Customer"): {
				mustColumn(t, "Customer.Id"):   {Identity: true},
				mustColumn(t, "Customer.Name"): {},
			},
		},
	}

	options := profile.DefaultImportOptions()
	options.NoMerge = true
	options.NoDrop = true

	exec := New(driver, nil)
	require.NoError(t, exec.Run(context.Background(), prof, options))

	dropCount := 0
	for _, stmt := range driver.statements {
		assert.False(t, strings.HasPrefix(stmt, "MERGE INTO"), "no merge statement should be issued: %s", stmt)
		if strings.Contains(stmt, "DROP TABLE [import]") {
			dropCount++
		}
	}
	// Only the drop-if-exists issued before CREATE TABLE; no final drop.
	assert.Equal(t, 1, dropCount, "staging table should not be dropped under no_drop")
}

func TestRunDeletesSourceFileWhenDeletionPolicyIsDelete(t *testing.T) {
	path := writeTempCSV(t)
	prof := buildProfile(t, path)

	driver := &fakeDriver{
		metadata: map[identifier.Table]map[identifier.Column]dbdriver.ColumnMetadata{
			mustTable(t, "Customer"): {
				mustColumn(t, "Customer.Id"):   {Identity: true},
				mustColumn(t, "Customer.Name"): {},
			},
		},
	}

	options := profile.DefaultImportOptions()
	options.Deletion = profile.DataSourceDeletionDelete

	exec := New(driver, nil)
	require.NoError(t, exec.Run(context.Background(), prof, options))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "source file should have been deleted after a successful run")
}
