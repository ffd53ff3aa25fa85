package profile

import (
	"testing"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

func TestLoadDelimitedProfile(t *testing.T) {
	doc := []byte(`{
		"name": "customers",
		"data_source_config": {
			"DelimitedDataSourceConfig": {
				"path": "customers.csv",
				"field_groups": { "default": [{"name": "id"}, {"name": "email"}] },
				"reader_config": "Csv"
			}
		},
		"table_mappers": [
			{
				"name": "customers",
				"field_group": "default",
				"table_identifier": "Customer",
				"delete_mode": "Partial",
				"delete_action": "None",
				"duplicate_action": "NoCheck",
				"columns": [
					{"Static": {"column_identifier": "Customer.Source", "map_column": true, "value": "import"}},
					{"Parser": {"column_identifier": "Customer.Email", "map_column": true, "field_name": "email"}}
				],
				"key_columns": ["Customer.Email"]
			}
		]
	}`)

	profile, err := Load(doc, testLogger())
	require.NoError(t, err)
	require.Len(t, profile.TableMappers, 1)

	mapper := profile.TableMappers[0]
	assert.Equal(t, "customers", mapper.Name)
	assert.Equal(t, "[dbo].[Customer]", mapper.TableIdentifier.Full())
	require.Len(t, mapper.Columns, 2)
	assert.NotNil(t, mapper.Columns[0].Static)
	assert.NotNil(t, mapper.Columns[1].Parser)
	require.Len(t, mapper.KeyColumns, 1)
	assert.Equal(t, "[dbo].[Customer].[Email]", mapper.KeyColumns[0].Full())

	require.NotNil(t, profile.DataSourceConfig.Delimited)
	assert.Equal(t, ReaderConfigCsv, profile.DataSourceConfig.Delimited.ReaderConfig.Kind)
}

func TestLoadCustomReaderConfig(t *testing.T) {
	doc := []byte(`{
		"name": "pipe-delimited",
		"data_source_config": {
			"DelimitedDataSourceConfig": {
				"path": "orders.txt",
				"field_groups": { "default": [{"name": "order_id"}] },
				"reader_config": { "Custom": { "delimiter": "|", "quote": "'", "quoting": false, "escape": "\\" } }
			}
		},
		"table_mappers": [
			{
				"name": "orders",
				"field_group": "default",
				"table_identifier": "Orders",
				"delete_mode": "Full",
				"delete_action": "None",
				"duplicate_action": "Reject",
				"columns": [
					{"Parser": {"column_identifier": "Orders.OrderId", "map_column": true, "field_name": "order_id"}}
				],
				"key_columns": ["Orders.OrderId"]
			}
		]
	}`)

	profile, err := Load(doc, testLogger())
	require.NoError(t, err)

	rc := profile.DataSourceConfig.Delimited.ReaderConfig
	require.Equal(t, ReaderConfigCustom, rc.Kind)
	assert.Equal(t, '|', rc.Custom.Delimiter)
	assert.Equal(t, '\'', rc.Custom.Quote)
	assert.False(t, rc.Custom.Quoting)
	require.NotNil(t, rc.Custom.Escape)
	assert.Equal(t, '\\', *rc.Custom.Escape)
	assert.True(t, rc.Custom.DoubleQuote) // default not overridden
	assert.Equal(t, TerminatorCRLF, rc.Custom.Terminator.Kind)
}

func TestLoadRejectsEmptyTableMappers(t *testing.T) {
	doc := []byte(`{
		"name": "empty",
		"data_source_config": {
			"DelimitedDataSourceConfig": {
				"path": "x.csv",
				"field_groups": {},
				"reader_config": "Csv"
			}
		},
		"table_mappers": []
	}`)

	_, err := Load(doc, testLogger())
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "NO_TABLE_MAPPERS", appErr.Code)
}

func TestLoadRejectsUnknownPreprocessFunction(t *testing.T) {
	doc := []byte(`{
		"name": "scripted",
		"data_source_config": {
			"DelimitedDataSourceConfig": {
				"path": "x.csv",
				"field_groups": { "default": [{"name": "a"}] },
				"reader_config": "Csv"
			}
		},
		"table_mappers": [
			{
				"name": "scripted",
				"field_group": "default",
				"table_identifier": "T",
				"delete_mode": "Partial",
				"delete_action": "None",
				"duplicate_action": "NoCheck",
				"preprocess_function": "normalize",
				"columns": [
					{"Parser": {"column_identifier": "T.A", "map_column": true, "field_name": "a"}}
				],
				"key_columns": ["T.A"]
			}
		]
	}`)

	_, err := Load(doc, testLogger())
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "NO_PREPROCESS_RUNTIME", appErr.Code)
}

func TestLoadXMLProfileSplitsAndTrimsSelector(t *testing.T) {
	doc := []byte(`{
		"name": "catalog",
		"data_source_config": {
			"XmlDataSourceConfig": {
				"path": "catalog.xml",
				"field_groups": { "default": [{"name": "id"}] },
				"selector": " /catalog/ / item/ "
			}
		},
		"table_mappers": [
			{
				"name": "items",
				"field_group": "default",
				"table_identifier": "Item",
				"delete_mode": "Partial",
				"delete_action": "None",
				"duplicate_action": "NoCheck",
				"columns": [
					{"Parser": {"column_identifier": "Item.Id", "map_column": true, "field_name": "id"}}
				],
				"key_columns": ["Item.Id"]
			}
		]
	}`)

	profile, err := Load(doc, testLogger())
	require.NoError(t, err)
	require.NotNil(t, profile.DataSourceConfig.XML)
	assert.Equal(t, []string{"catalog", "item"}, profile.DataSourceConfig.XML.Selector)
}

func TestParseSelectorRejectsEmptyResult(t *testing.T) {
	_, err := parseSelector("  / / ")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "IDENTIFIER_PARSE", appErr.Code)
}

func TestParseSelectorRejectsMoreThanEightParts(t *testing.T) {
	_, err := parseSelector("/a/b/c/d/e/f/g/h/i")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "IDENTIFIER_PARSE", appErr.Code)
}

func TestLoadLookupColumn(t *testing.T) {
	doc := []byte(`{
		"name": "lookups",
		"data_source_config": {
			"DelimitedDataSourceConfig": {
				"path": "x.csv",
				"field_groups": { "default": [{"name": "code"}] },
				"reader_config": "Txt"
			}
		},
		"table_mappers": [
			{
				"name": "lookups",
				"field_group": "default",
				"table_identifier": "T",
				"delete_mode": "Partial",
				"delete_action": "None",
				"duplicate_action": "Retain",
				"columns": [
					{"Lookup": {
						"column_identifier": "T.RegionId",
						"map_column": true,
						"table_identifier": "Region",
						"output_column_identifier": "Region.Id",
						"key_columns": [
							{"ParserKeyColumn": {"key_column_identifier": "Region.Code", "field_name": "code"}}
						]
					}}
				],
				"key_columns": ["T.RegionId"]
			}
		]
	}`)

	profile, err := Load(doc, testLogger())
	require.NoError(t, err)

	lookup := profile.TableMappers[0].Columns[0].Lookup
	require.NotNil(t, lookup)
	assert.Equal(t, "[dbo].[Region]", lookup.TableIdentifier.Full())
	require.Len(t, lookup.KeyColumns, 1)
	require.NotNil(t, lookup.KeyColumns[0].ParserKeyColumn)
	assert.Equal(t, "code", lookup.KeyColumns[0].ParserKeyColumn.FieldName)
}
