// Package profile decodes and validates import profiles: the JSON
// documents that describe a data source and the table mappers that load it.
package profile

import "encoding/json"

// importProfileRaw is the direct JSON shape of a profile document, before
// identifiers are parsed and table mappers are validated against a
// preprocess runtime.
type importProfileRaw struct {
	Name             string              `json:"name"`
	Description      string              `json:"description,omitempty"`
	DataSourceConfig json.RawMessage     `json:"data_source_config"`
	PreprocessScript *preprocessScript   `json:"preprocess_script,omitempty"`
	TableMappers     []tableMapperRaw    `json:"table_mappers"`
}

// dataSourceConfigKind is the tagged union of data source configurations.
// The variant is discriminated by which of the two keys is present, matching
// the wire format produced by the original Rust implementation's
// externally-tagged (serde default) representation.
type dataSourceConfigKind struct {
	XML       *xmlDataSourceConfigRaw       `json:"XmlDataSourceConfig,omitempty"`
	Delimited *delimitedDataSourceConfigRaw `json:"DelimitedDataSourceConfig,omitempty"`
}

type xmlDataSourceConfigRaw struct {
	Path        string                `json:"path"`
	FieldGroups map[string][]fieldRaw `json:"field_groups"`
	Selector    string                `json:"selector"`
}

type delimitedDataSourceConfigRaw struct {
	Path         string                `json:"path"`
	FieldGroups  map[string][]fieldRaw `json:"field_groups"`
	ReaderConfig json.RawMessage       `json:"reader_config"`
}

type fieldRaw struct {
	Name       string          `json:"name"`
	Formatters []formatterRaw  `json:"formatters,omitempty"`
	Required   string          `json:"required,omitempty"`
}

// formatterRaw mirrors the Formatter tagged union. Regex uses Pattern and
// Replacement, Map uses Default and Mappings; the others are represented
// purely by Kind.
type formatterRaw struct {
	Kind        string            `json:"kind"`
	Pattern     string            `json:"pattern,omitempty"`
	Replacement string            `json:"replacement,omitempty"`
	Default     string            `json:"default,omitempty"`
	Mappings    map[string]string `json:"mappings,omitempty"`
}

// preprocessScript mirrors PreprocessScript::{File,Inline}. Exactly one of
// Path or Script is set, discriminated by which is present.
type preprocessScript struct {
	Path     string  `json:"path,omitempty"`
	Script   string  `json:"script,omitempty"`
	Language *string `json:"language,omitempty"`
}

type tableMapperRaw struct {
	Name                string             `json:"name"`
	FieldGroup          string             `json:"field_group"`
	TableIdentifier     string             `json:"table_identifier"`
	DeleteMode          string             `json:"delete_mode"`
	DeleteAction        string             `json:"delete_action"`
	DuplicateAction     string             `json:"duplicate_action"`
	PreprocessFunction  *string            `json:"preprocess_function,omitempty"`
	Columns             []tableMapperColumnRaw `json:"columns"`
	KeyColumns          []string           `json:"key_columns"`
}

// tableMapperColumnRaw is the tagged union of Static/Parser/Lookup columns,
// discriminated by which of the three keys is present.
type tableMapperColumnRaw struct {
	Static *staticColumnRaw `json:"Static,omitempty"`
	Parser *parserColumnRaw `json:"Parser,omitempty"`
	Lookup *lookupColumnRaw `json:"Lookup,omitempty"`
}

type staticColumnRaw struct {
	ColumnIdentifier string `json:"column_identifier"`
	MapColumn        bool   `json:"map_column"`
	Value            string `json:"value"`
}

type parserColumnRaw struct {
	ColumnIdentifier string `json:"column_identifier"`
	MapColumn        bool   `json:"map_column"`
	FieldName        string `json:"field_name"`
}

type lookupColumnRaw struct {
	ColumnIdentifier       string                  `json:"column_identifier"`
	MapColumn              bool                    `json:"map_column"`
	TableIdentifier        string                  `json:"table_identifier"`
	OutputColumnIdentifier string                  `json:"output_column_identifier"`
	KeyColumns             []lookupKeyColumnRaw    `json:"key_columns"`
}

// lookupKeyColumnRaw is the tagged union of ParserKeyColumn/ProcessedKeyColumn.
type lookupKeyColumnRaw struct {
	ParserKeyColumn    *parserKeyColumnRaw    `json:"ParserKeyColumn,omitempty"`
	ProcessedKeyColumn *processedKeyColumnRaw `json:"ProcessedKeyColumn,omitempty"`
}

type parserKeyColumnRaw struct {
	KeyColumnIdentifier string `json:"key_column_identifier"`
	FieldName           string `json:"field_name"`
}

type processedKeyColumnRaw struct {
	KeyColumnIdentifier string `json:"key_column_identifier"`
	ColumnIdentifier    string `json:"column_identifier"`
}
