package update

import (
	"context"
	"testing"

	"github.com/etylermoss/sql-bulk-import-profile/internal/columngraph"
	"github.com/etylermoss/sql-bulk-import-profile/internal/dbdriver"
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
	"github.com/etylermoss/sql-bulk-import-profile/internal/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	dbdriver.Driver
	statement string
	args      []any
}

func (f *fakeDriver) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	f.statement = statement
	f.args = args
	return 0, nil
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

// buildMapper wires one Lookup column with two key columns: a
// ParserKeyColumn (its effective dependency is a column reference) and a
// ProcessedKeyColumn resolving to a Static column (its effective dependency
// is a static parameter).
func buildMapper(t *testing.T) *profile.TableMapper {
	t.Helper()
	return &profile.TableMapper{
		Name:            "t",
		TableIdentifier: mustTable(t, "T"),
		Columns: []profile.TableMapperColumn{
			{Static: &profile.StaticColumn{ColumnIdentifier: mustColumn(t, "T.Static"), Value: "7"}},
			{Lookup: &profile.LookupColumn{
				ColumnIdentifier:       mustColumn(t, "T.L"),
				MapColumn:              true,
				TableIdentifier:        mustTable(t, "Region"),
				OutputColumnIdentifier: mustColumn(t, "Region.Name"),
				KeyColumns: []profile.LookupKeyColumn{
					{ParserKeyColumn: &profile.ParserKeyColumn{
						KeyColumnIdentifier: mustColumn(t, "Region.AId"), FieldName: "a",
					}},
					{ProcessedKeyColumn: &profile.ProcessedKeyColumn{
						KeyColumnIdentifier: mustColumn(t, "Region.BId"), ColumnIdentifier: mustColumn(t, "T.Static"),
					}},
				},
			}},
		},
	}
}

func TestRunBuildsAggregatedUpdateWithStaticAndColumnDependencies(t *testing.T) {
	mapper := buildMapper(t)
	graph, err := columngraph.Build(mapper, nil, profile.DefaultImportOptions(), nil)
	require.NoError(t, err)

	groups := graph.Groups()
	require.Len(t, groups, 3)

	// The Lookup node sits alone in the final group, once both its key
	// dependencies have been resolved in earlier groups.
	lookupGroup := groups[len(groups)-1]
	require.Len(t, lookupGroup, 1)
	require.Equal(t, columngraph.LookupNode, lookupGroup[0].Node.Kind)

	table := &staging.Table{Identifier: mustTable(t, "[import].[T]")}
	driver := &fakeDriver{}

	require.NoError(t, Run(context.Background(), driver, table, graph, lookupGroup))

	require.NotEmpty(t, driver.statement)
	assert.Contains(t, driver.statement, "UPDATE t SET")
	assert.Contains(t, driver.statement, "FROM [import].[T] AS t")
	assert.Contains(t, driver.statement, "OUTER APPLY")
	assert.Contains(t, driver.statement, "FROM [dbo].[Region] AS l_inner1")
	assert.Contains(t, driver.statement, "[AId] = t.")
	assert.Contains(t, driver.statement, "[BId] = @p1")

	require.Len(t, driver.args, 1)
	assert.Equal(t, "7", driver.args[0])
}

func TestRunIsNoopWithoutLookupNodes(t *testing.T) {
	mapper := &profile.TableMapper{
		Name:            "t",
		TableIdentifier: mustTable(t, "T"),
		Columns: []profile.TableMapperColumn{
			{Parser: &profile.ParserColumn{ColumnIdentifier: mustColumn(t, "T.A"), MapColumn: true, FieldName: "a"}},
		},
	}
	graph, err := columngraph.Build(mapper, nil, profile.DefaultImportOptions(), nil)
	require.NoError(t, err)

	driver := &fakeDriver{}
	table := &staging.Table{Identifier: mustTable(t, "[import].[T]")}
	require.NoError(t, Run(context.Background(), driver, table, graph, graph.Groups()[0]))
	assert.Empty(t, driver.statement)
}
