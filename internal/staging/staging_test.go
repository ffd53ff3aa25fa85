package staging

import (
	"context"
	"testing"

	"github.com/etylermoss/sql-bulk-import-profile/internal/columngraph"
	"github.com/etylermoss/sql-bulk-import-profile/internal/dbdriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	dbdriver.Driver
	execs []string
}

func (f *fakeDriver) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	f.execs = append(f.execs, statement)
	return 0, nil
}

func TestCreateDropsThenCreatesAndFinalizeDropsUnlessNoDrop(t *testing.T) {
	columnID, err := identifier.ParseColumn("T.A")
	require.NoError(t, err)
	tableID, err := identifier.ParseTable("T")
	require.NoError(t, err)

	mapper := &profile.TableMapper{
		Name:            "t",
		TableIdentifier: tableID,
		Columns: []profile.TableMapperColumn{
			{Parser: &profile.ParserColumn{ColumnIdentifier: columnID, MapColumn: true, FieldName: "a"}},
		},
	}

	graph, err := columngraph.Build(mapper, nil, profile.DefaultImportOptions(), nil)
	require.NoError(t, err)

	driver := &fakeDriver{}
	table, err := Create(context.Background(), driver, tableID, graph)
	require.NoError(t, err)
	assert.Equal(t, "[import].[T]", table.Identifier.Full())
	require.Len(t, driver.execs, 2)
	assert.Contains(t, driver.execs[0], "DROP TABLE")
	assert.Contains(t, driver.execs[1], "CREATE TABLE")

	require.NoError(t, Finalize(context.Background(), driver, table, false))
	require.Len(t, driver.execs, 3)
	assert.Contains(t, driver.execs[2], "DROP TABLE")

	require.NoError(t, Finalize(context.Background(), driver, table, true))
	assert.Len(t, driver.execs, 3) // no_drop: no additional DROP issued
}

func TestCreateErrorsWhenAllNodesTransient(t *testing.T) {
	columnID, err := identifier.ParseColumn("T.A")
	require.NoError(t, err)
	tableID, err := identifier.ParseTable("T")
	require.NoError(t, err)

	mapper := &profile.TableMapper{
		Name:            "t",
		TableIdentifier: tableID,
		Columns: []profile.TableMapperColumn{
			{Static: &profile.StaticColumn{ColumnIdentifier: columnID, MapColumn: false, Value: "x"}},
		},
	}
	graph, err := columngraph.Build(mapper, nil, profile.DefaultImportOptions(), nil)
	require.NoError(t, err)

	driver := &fakeDriver{}
	_, err = Create(context.Background(), driver, tableID, graph)
	require.Error(t, err)
}
