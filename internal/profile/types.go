package profile

import (
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/preprocess"
)

// ImportProfile is a fully parsed and validated import profile: identifiers
// are resolved, table mappers are bound to columns, and (when a preprocess
// function is named) a runtime has been consulted.
type ImportProfile struct {
	Name             string
	Description      string
	DataSourceConfig DataSourceConfig
	PreprocessScript *PreprocessScript
	TableMappers     []*TableMapper
}

// DataSourceConfig is the tagged union of the two source kinds a profile
// can declare.
type DataSourceConfig struct {
	XML       *XMLDataSourceConfig
	Delimited *DelimitedDataSourceConfig
}

type XMLDataSourceConfig struct {
	Path        string
	FieldGroups map[string][]Field
	Selector    []string
}

type DelimitedDataSourceConfig struct {
	Path         string
	FieldGroups  map[string][]Field
	ReaderConfig ReaderConfig
}

// Field describes one named field of a field group: the raw value a parser
// column can bind, plus optional formatters applied before binding.
//
// Formatter application is not implemented by this engine; see DESIGN.md's
// Open Question decisions. The type is carried so profiles round-trip
// through JSON and the schema generator (A6) unchanged.
type Field struct {
	Name       string
	Formatters []Formatter
	Required   Required
}

type Required int

const (
	RequiredNone Required = iota
	RequiredDrop
	RequiredError
)

type FormatterKind int

const (
	FormatterTrim FormatterKind = iota
	FormatterUppercase
	FormatterLowercase
	FormatterRegex
	FormatterMap
)

// Formatter is a tagged union; only Pattern/Replacement (Regex) or
// Default/Mappings (Map) are populated, per Kind.
type Formatter struct {
	Kind        FormatterKind
	Pattern     string
	Replacement string
	Default     string
	Mappings    map[string]string
}

type ReaderConfigKind int

const (
	ReaderConfigCsv ReaderConfigKind = iota
	ReaderConfigTxt
	ReaderConfigCustom
)

// ReaderConfig selects how a delimited source is tokenized. Csv and Txt are
// fixed presets (comma- and tab-delimited respectively, both using
// encoding/csv's default quoting); Custom carries an explicit configuration.
type ReaderConfig struct {
	Kind   ReaderConfigKind
	Custom DelimitedReaderCustomConfig
}

type TerminatorKind int

const (
	TerminatorCRLF TerminatorKind = iota
	TerminatorAny
)

type Terminator struct {
	Kind TerminatorKind
	Any  rune
}

// DelimitedReaderCustomConfig configures a hand-tokenized delimited reader.
// Defaults (applied during parsing, not here): Quote='"', Quoting=true,
// DoubleQuote=true, Terminator=CRLF.
type DelimitedReaderCustomConfig struct {
	Delimiter   rune
	Terminator  Terminator
	Quote       rune
	Quoting     bool
	Comment     *rune
	Escape      *rune
	DoubleQuote bool
}

// PreprocessScript is the tagged union PreprocessScript::{File,Inline}. One
// of Path or Script is populated, discriminated by which field is zero.
type PreprocessScript struct {
	Path     string
	Script   string
	Language *preprocess.Language // nil on File means "infer from extension"
}

// DeleteMode, DeleteAction and DuplicateAction are carried verbatim from the
// profile onto the TableMapper; the core engine (C1-C9) does not consult
// them. They exist for downstream collaborators that the import planner and
// executor do not own.
type DeleteMode int

const (
	DeleteModePartial DeleteMode = iota
	DeleteModeFull
)

type DeleteAction int

const (
	DeleteActionNone DeleteAction = iota
)

type DuplicateAction int

const (
	DuplicateActionReject DuplicateAction = iota
	DuplicateActionRetain
	DuplicateActionDump
	DuplicateActionNoCheck
)

// TableMapper binds a field group to a target table: the ordered columns
// that populate it, the key columns used by the final MERGE, and the
// delete/duplicate policy carried through for downstream collaborators.
type TableMapper struct {
	Name               string
	FieldGroup         string
	TableIdentifier    identifier.Table
	DeleteMode         DeleteMode
	DeleteAction       DeleteAction
	DuplicateAction    DuplicateAction
	PreprocessFunction  *string
	PreprocessTransform preprocess.Transform // nil unless PreprocessFunction resolved against a runtime
	Columns             []TableMapperColumn
	KeyColumns         []identifier.Column
}

// TableMapperColumn is the tagged union Static|Parser|Lookup. Exactly one
// field is non-nil.
type TableMapperColumn struct {
	Static *StaticColumn
	Parser *ParserColumn
	Lookup *LookupColumn
}

type StaticColumn struct {
	ColumnIdentifier identifier.Column
	MapColumn        bool
	Value            string
}

type ParserColumn struct {
	ColumnIdentifier identifier.Column
	MapColumn        bool
	FieldName        string
}

type LookupColumn struct {
	ColumnIdentifier       identifier.Column
	MapColumn              bool
	TableIdentifier        identifier.Table
	OutputColumnIdentifier identifier.Column
	KeyColumns             []LookupKeyColumn
}

// LookupKeyColumn is the tagged union ParserKeyColumn|ProcessedKeyColumn.
type LookupKeyColumn struct {
	ParserKeyColumn    *ParserKeyColumn
	ProcessedKeyColumn *ProcessedKeyColumn
}

type ParserKeyColumn struct {
	KeyColumnIdentifier identifier.Column
	FieldName           string
}

type ProcessedKeyColumn struct {
	KeyColumnIdentifier identifier.Column
	ColumnIdentifier    identifier.Column
}
