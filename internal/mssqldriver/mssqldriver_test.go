package mssqldriver

import (
	"testing"

	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/sqltype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapServerType(t *testing.T) {
	cases := map[string]sqltype.Tag{
		"bit": sqltype.Bit, "tinyint": sqltype.Int1, "smallint": sqltype.Int2,
		"int": sqltype.Int4, "bigint": sqltype.Int8, "real": sqltype.Float4,
		"float": sqltype.Float8, "varchar": sqltype.BigVarChar, "char": sqltype.BigVarChar,
		"nvarchar": sqltype.NVarChar, "nchar": sqltype.NVarChar,
		"decimal": sqltype.Decimal, "money": sqltype.Decimal,
		"xml": sqltype.Unsupported,
	}
	for serverType, want := range cases {
		assert.Equal(t, want, mapServerType(serverType), serverType)
	}
}

func TestSizeForTypeNVarcharMaxAndFixed(t *testing.T) {
	assert.Equal(t, sqltype.Size{MaxLength: true}, sizeForType("nvarchar", -1, 0, 0))
	assert.Equal(t, sqltype.Size{Length: 100}, sizeForType("nvarchar", 200, 0, 0))
	assert.Equal(t, sqltype.Size{Length: 100}, sizeForType("varchar", 100, 0, 0))
	assert.Equal(t, sqltype.Size{Precision: 18, Scale: 4}, sizeForType("decimal", 0, 18, 4))
}

func TestBulkTableNameUsesUnescapedSchemaAndTable(t *testing.T) {
	table, err := identifier.ParseTable("[import].[Customer]")
	require.NoError(t, err)
	assert.Equal(t, "import.Customer", bulkTableName(table))
}
