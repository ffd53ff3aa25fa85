package profile

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/identifier"
	"github.com/etylermoss/sql-bulk-import-profile/internal/preprocess"
	"github.com/sirupsen/logrus"
)

const component = "profile"

// Load parses and validates an import profile document. log receives the
// "unused preprocess script" warning when the profile declares a script but
// no table mapper names a preprocess_function, matching the original
// engine's construction-time warning.
func Load(data []byte, log *logrus.Logger) (*ImportProfile, error) {
	var raw importProfileRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperr.New(apperr.CodeIdentifierParse, component, "Load", "malformed profile JSON").Wrap(err)
	}
	return build(&raw, log)
}

func build(raw *importProfileRaw, log *logrus.Logger) (*ImportProfile, error) {
	if len(raw.TableMappers) == 0 {
		return nil, apperr.New(apperr.CodeNoTableMappers, component, "build", "profile declares no table mappers")
	}

	dsConfig, err := parseDataSourceConfig(raw.DataSourceConfig)
	if err != nil {
		return nil, err
	}

	var script *PreprocessScript
	var runtime preprocess.Runtime
	if raw.PreprocessScript != nil {
		script, err = parsePreprocessScript(raw.PreprocessScript)
		if err != nil {
			return nil, err
		}
		language, err := resolvePreprocessLanguage(script)
		if err != nil {
			return nil, err
		}
		// LoadRuntime always fails in this build (no scripting backend);
		// table mappers that don't name a preprocess_function still load
		// successfully, matching the original engine's lazy resolution.
		runtime, _ = preprocess.LoadRuntime(language)
	}

	mappers := make([]*TableMapper, 0, len(raw.TableMappers))
	scriptUsed := false
	for i := range raw.TableMappers {
		mapper, err := buildTableMapper(&raw.TableMappers[i], runtime)
		if err != nil {
			return nil, err
		}
		if mapper.PreprocessFunction != nil {
			scriptUsed = true
		}
		mappers = append(mappers, mapper)
	}

	if script != nil && !scriptUsed && log != nil {
		log.WithFields(logrus.Fields{"profile": raw.Name}).Warn("profile declares a preprocess_script that no table mapper uses")
	}

	return &ImportProfile{
		Name:             raw.Name,
		Description:      raw.Description,
		DataSourceConfig: dsConfig,
		PreprocessScript: script,
		TableMappers:     mappers,
	}, nil
}

func parseDataSourceConfig(raw json.RawMessage) (DataSourceConfig, error) {
	var kind dataSourceConfigKind
	if err := json.Unmarshal(raw, &kind); err != nil {
		return DataSourceConfig{}, apperr.New(apperr.CodeIdentifierParse, component, "parseDataSourceConfig", "malformed data_source_config").Wrap(err)
	}

	switch {
	case kind.XML != nil:
		fieldGroups, err := parseFieldGroups(kind.XML.FieldGroups)
		if err != nil {
			return DataSourceConfig{}, err
		}
		selector, err := parseSelector(kind.XML.Selector)
		if err != nil {
			return DataSourceConfig{}, err
		}
		return DataSourceConfig{XML: &XMLDataSourceConfig{
			Path:        kind.XML.Path,
			FieldGroups: fieldGroups,
			Selector:    selector,
		}}, nil
	case kind.Delimited != nil:
		fieldGroups, err := parseFieldGroups(kind.Delimited.FieldGroups)
		if err != nil {
			return DataSourceConfig{}, err
		}
		readerConfig, err := parseReaderConfig(kind.Delimited.ReaderConfig)
		if err != nil {
			return DataSourceConfig{}, err
		}
		return DataSourceConfig{Delimited: &DelimitedDataSourceConfig{
			Path:         kind.Delimited.Path,
			FieldGroups:  fieldGroups,
			ReaderConfig: readerConfig,
		}}, nil
	default:
		return DataSourceConfig{}, apperr.New(apperr.CodeIdentifierParse, component, "parseDataSourceConfig", "data_source_config names neither XmlDataSourceConfig nor DelimitedDataSourceConfig")
	}
}

// maxSelectorParts bounds an XML selector to the depth the original
// engine's ArrayVec<Box<str>, 8> allows.
const maxSelectorParts = 8

// parseSelector decodes an XPath-like, "/"-separated selector
// ("/catalog/item") into its path parts: split on "/", trim whitespace,
// drop empty parts, and reject both an empty result and one deeper than
// maxSelectorParts.
func parseSelector(raw string) ([]string, error) {
	var parts []string
	for _, part := range strings.Split(raw, "/") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return nil, apperr.New(apperr.CodeIdentifierParse, component, "parseSelector", fmt.Sprintf("invalid selector %q: no non-empty path parts", raw))
	}
	if len(parts) > maxSelectorParts {
		return nil, apperr.New(apperr.CodeIdentifierParse, component, "parseSelector", fmt.Sprintf("invalid selector %q: exceeds maximum depth of %d", raw, maxSelectorParts))
	}
	return parts, nil
}

func parseFieldGroups(raw map[string][]fieldRaw) (map[string][]Field, error) {
	out := make(map[string][]Field, len(raw))
	for name, fields := range raw {
		parsed := make([]Field, 0, len(fields))
		for _, f := range fields {
			field, err := parseField(&f)
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, field)
		}
		out[name] = parsed
	}
	return out, nil
}

func parseField(raw *fieldRaw) (Field, error) {
	required, err := parseRequired(raw.Required)
	if err != nil {
		return Field{}, err
	}

	formatters := make([]Formatter, 0, len(raw.Formatters))
	for _, f := range raw.Formatters {
		formatter, err := parseFormatter(&f)
		if err != nil {
			return Field{}, err
		}
		formatters = append(formatters, formatter)
	}

	return Field{Name: raw.Name, Formatters: formatters, Required: required}, nil
}

func parseRequired(raw string) (Required, error) {
	switch raw {
	case "", "None":
		return RequiredNone, nil
	case "Drop":
		return RequiredDrop, nil
	case "Error":
		return RequiredError, nil
	default:
		return 0, apperr.New(apperr.CodeIdentifierParse, component, "parseRequired", fmt.Sprintf("unknown required policy %q", raw))
	}
}

func parseFormatter(raw *formatterRaw) (Formatter, error) {
	switch raw.Kind {
	case "Trim":
		return Formatter{Kind: FormatterTrim}, nil
	case "Uppercase":
		return Formatter{Kind: FormatterUppercase}, nil
	case "Lowercase":
		return Formatter{Kind: FormatterLowercase}, nil
	case "Regex":
		return Formatter{Kind: FormatterRegex, Pattern: raw.Pattern, Replacement: raw.Replacement}, nil
	case "Map":
		return Formatter{Kind: FormatterMap, Default: raw.Default, Mappings: raw.Mappings}, nil
	default:
		return Formatter{}, apperr.New(apperr.CodeIdentifierParse, component, "parseFormatter", fmt.Sprintf("unknown formatter kind %q", raw.Kind))
	}
}

// parseReaderConfig decodes the "Csv" | "Txt" | {"Custom": {...}} tagged
// value. A bare JSON string selects the Csv/Txt preset; an object selects
// Custom.
func parseReaderConfig(raw json.RawMessage) (ReaderConfig, error) {
	var preset string
	if err := json.Unmarshal(raw, &preset); err == nil {
		switch preset {
		case "Csv":
			return ReaderConfig{Kind: ReaderConfigCsv}, nil
		case "Txt":
			return ReaderConfig{Kind: ReaderConfigTxt}, nil
		default:
			return ReaderConfig{}, apperr.New(apperr.CodeIdentifierParse, component, "parseReaderConfig", fmt.Sprintf("unknown reader_config preset %q", preset))
		}
	}

	var wrapper struct {
		Custom *customReaderConfigRaw `json:"Custom"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Custom == nil {
		return ReaderConfig{}, apperr.New(apperr.CodeIdentifierParse, component, "parseReaderConfig", "reader_config is neither a preset string nor a Custom object")
	}

	custom, err := parseCustomReaderConfig(wrapper.Custom)
	if err != nil {
		return ReaderConfig{}, err
	}
	return ReaderConfig{Kind: ReaderConfigCustom, Custom: custom}, nil
}

type customReaderConfigRaw struct {
	Delimiter   string          `json:"delimiter"`
	Terminator  json.RawMessage `json:"terminator,omitempty"`
	Quote       *string         `json:"quote,omitempty"`
	Quoting     *bool           `json:"quoting,omitempty"`
	Comment     *string         `json:"comment,omitempty"`
	Escape      *string         `json:"escape,omitempty"`
	DoubleQuote *bool           `json:"double_quote,omitempty"`
}

func parseCustomReaderConfig(raw *customReaderConfigRaw) (DelimitedReaderCustomConfig, error) {
	delimiter, err := singleRune(raw.Delimiter, "delimiter")
	if err != nil {
		return DelimitedReaderCustomConfig{}, err
	}

	terminator := Terminator{Kind: TerminatorCRLF}
	if len(raw.Terminator) > 0 {
		terminator, err = parseTerminator(raw.Terminator)
		if err != nil {
			return DelimitedReaderCustomConfig{}, err
		}
	}

	quote := '"'
	if raw.Quote != nil {
		quote, err = singleRune(*raw.Quote, "quote")
		if err != nil {
			return DelimitedReaderCustomConfig{}, err
		}
	}

	quoting := true
	if raw.Quoting != nil {
		quoting = *raw.Quoting
	}

	doubleQuote := true
	if raw.DoubleQuote != nil {
		doubleQuote = *raw.DoubleQuote
	}

	var comment, escape *rune
	if raw.Comment != nil {
		r, err := singleRune(*raw.Comment, "comment")
		if err != nil {
			return DelimitedReaderCustomConfig{}, err
		}
		comment = &r
	}
	if raw.Escape != nil {
		r, err := singleRune(*raw.Escape, "escape")
		if err != nil {
			return DelimitedReaderCustomConfig{}, err
		}
		escape = &r
	}

	return DelimitedReaderCustomConfig{
		Delimiter:   delimiter,
		Terminator:  terminator,
		Quote:       quote,
		Quoting:     quoting,
		Comment:     comment,
		Escape:      escape,
		DoubleQuote: doubleQuote,
	}, nil
}

func parseTerminator(raw json.RawMessage) (Terminator, error) {
	var preset string
	if err := json.Unmarshal(raw, &preset); err == nil {
		if preset == "CRLF" {
			return Terminator{Kind: TerminatorCRLF}, nil
		}
		return Terminator{}, apperr.New(apperr.CodeIdentifierParse, component, "parseTerminator", fmt.Sprintf("unknown terminator preset %q", preset))
	}

	var wrapper struct {
		Any string `json:"Any"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return Terminator{}, apperr.New(apperr.CodeIdentifierParse, component, "parseTerminator", "terminator is neither \"CRLF\" nor an Any object").Wrap(err)
	}
	r, err := singleRune(wrapper.Any, "terminator.Any")
	if err != nil {
		return Terminator{}, err
	}
	return Terminator{Kind: TerminatorAny, Any: r}, nil
}

func singleRune(s, field string) (rune, error) {
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, apperr.New(apperr.CodeIdentifierParse, component, "singleRune", fmt.Sprintf("%s must be exactly one character, got %q", field, s))
	}
	if runes[0] > 0xFF {
		return 0, apperr.New(apperr.CodeIdentifierParse, component, "singleRune", fmt.Sprintf("%s must fit in a single byte, got %q", field, s))
	}
	return runes[0], nil
}

func parsePreprocessScript(raw *preprocessScript) (*PreprocessScript, error) {
	if raw.Path == "" && raw.Script == "" {
		return nil, apperr.New(apperr.CodeIdentifierParse, component, "parsePreprocessScript", "preprocess_script names neither a path nor an inline script")
	}

	var language *preprocess.Language
	if raw.Language != nil {
		l, err := parsePreprocessLanguage(*raw.Language)
		if err != nil {
			return nil, err
		}
		language = &l
	}

	return &PreprocessScript{Path: raw.Path, Script: raw.Script, Language: language}, nil
}

func parsePreprocessLanguage(raw string) (preprocess.Language, error) {
	switch raw {
	case "Lua":
		return preprocess.LanguageLua, nil
	case "Rhai":
		return preprocess.LanguageRhai, nil
	default:
		return 0, apperr.New(apperr.CodeIdentifierParse, component, "parsePreprocessLanguage", fmt.Sprintf("unknown preprocess language %q", raw))
	}
}

// resolvePreprocessLanguage mirrors PreprocessScript::language(): an inline
// script always carries an explicit language; a file script uses its
// explicit language if set, else infers one from its extension.
func resolvePreprocessLanguage(script *PreprocessScript) (preprocess.Language, error) {
	if script.Language != nil {
		return *script.Language, nil
	}
	if script.Path != "" {
		if language, ok := preprocess.LanguageFromExtension(filepath.Ext(script.Path)); ok {
			return language, nil
		}
	}
	return 0, apperr.New(apperr.CodeNoPreprocessRuntime, component, "resolvePreprocessLanguage", "could not determine preprocess script language")
}

func buildTableMapper(raw *tableMapperRaw, runtime preprocess.Runtime) (*TableMapper, error) {
	tableID, err := identifier.ParseTable(raw.TableIdentifier)
	if err != nil {
		return nil, apperr.New(apperr.CodeIdentifierParse, component, "buildTableMapper", fmt.Sprintf("table_identifier %q: %v", raw.TableIdentifier, err)).Wrap(err)
	}

	deleteMode, err := parseDeleteMode(raw.DeleteMode)
	if err != nil {
		return nil, err
	}
	deleteAction, err := parseDeleteAction(raw.DeleteAction)
	if err != nil {
		return nil, err
	}
	duplicateAction, err := parseDuplicateAction(raw.DuplicateAction)
	if err != nil {
		return nil, err
	}

	if len(raw.Columns) == 0 {
		return nil, apperr.New(apperr.CodeNoTableMappers, component, "buildTableMapper", fmt.Sprintf("table mapper %q declares no columns", raw.Name))
	}

	columns := make([]TableMapperColumn, 0, len(raw.Columns))
	for _, c := range raw.Columns {
		column, err := buildColumn(&c)
		if err != nil {
			return nil, err
		}
		columns = append(columns, column)
	}

	keyColumns := make([]identifier.Column, 0, len(raw.KeyColumns))
	for _, k := range raw.KeyColumns {
		col, err := identifier.ParseColumn(k)
		if err != nil {
			return nil, apperr.New(apperr.CodeIdentifierParse, component, "buildTableMapper", fmt.Sprintf("key_columns entry %q: %v", k, err)).Wrap(err)
		}
		keyColumns = append(keyColumns, col)
	}

	var transform preprocess.Transform
	if raw.PreprocessFunction != nil {
		if runtime == nil {
			return nil, apperr.New(apperr.CodeNoPreprocessRuntime, component, "buildTableMapper", fmt.Sprintf("table mapper %q names preprocess_function %q but no preprocess script is loaded", raw.Name, *raw.PreprocessFunction))
		}
		transform, err = runtime.Function(*raw.PreprocessFunction)
		if err != nil {
			return nil, apperr.New(apperr.CodeNoPreprocessRuntime, component, "buildTableMapper", fmt.Sprintf("could not find preprocess function %q", *raw.PreprocessFunction)).Wrap(err)
		}
	}

	return &TableMapper{
		Name:                raw.Name,
		FieldGroup:          raw.FieldGroup,
		TableIdentifier:     tableID,
		DeleteMode:          deleteMode,
		DeleteAction:        deleteAction,
		DuplicateAction:     duplicateAction,
		PreprocessFunction:  raw.PreprocessFunction,
		PreprocessTransform: transform,
		Columns:             columns,
		KeyColumns:          keyColumns,
	}, nil
}

func parseDeleteMode(raw string) (DeleteMode, error) {
	switch raw {
	case "Partial":
		return DeleteModePartial, nil
	case "Full":
		return DeleteModeFull, nil
	default:
		return 0, apperr.New(apperr.CodeIdentifierParse, component, "parseDeleteMode", fmt.Sprintf("unknown delete_mode %q", raw))
	}
}

func parseDeleteAction(raw string) (DeleteAction, error) {
	switch raw {
	case "None":
		return DeleteActionNone, nil
	default:
		return 0, apperr.New(apperr.CodeIdentifierParse, component, "parseDeleteAction", fmt.Sprintf("unknown delete_action %q", raw))
	}
}

func parseDuplicateAction(raw string) (DuplicateAction, error) {
	switch raw {
	case "Reject":
		return DuplicateActionReject, nil
	case "Retain":
		return DuplicateActionRetain, nil
	case "Dump":
		return DuplicateActionDump, nil
	case "NoCheck":
		return DuplicateActionNoCheck, nil
	default:
		return 0, apperr.New(apperr.CodeIdentifierParse, component, "parseDuplicateAction", fmt.Sprintf("unknown duplicate_action %q", raw))
	}
}

func buildColumn(raw *tableMapperColumnRaw) (TableMapperColumn, error) {
	switch {
	case raw.Static != nil:
		columnID, err := identifier.ParseColumn(raw.Static.ColumnIdentifier)
		if err != nil {
			return TableMapperColumn{}, apperr.New(apperr.CodeIdentifierParse, component, "buildColumn", fmt.Sprintf("Static.column_identifier %q: %v", raw.Static.ColumnIdentifier, err)).Wrap(err)
		}
		return TableMapperColumn{Static: &StaticColumn{
			ColumnIdentifier: columnID,
			MapColumn:        raw.Static.MapColumn,
			Value:            raw.Static.Value,
		}}, nil

	case raw.Parser != nil:
		columnID, err := identifier.ParseColumn(raw.Parser.ColumnIdentifier)
		if err != nil {
			return TableMapperColumn{}, apperr.New(apperr.CodeIdentifierParse, component, "buildColumn", fmt.Sprintf("Parser.column_identifier %q: %v", raw.Parser.ColumnIdentifier, err)).Wrap(err)
		}
		return TableMapperColumn{Parser: &ParserColumn{
			ColumnIdentifier: columnID,
			MapColumn:        raw.Parser.MapColumn,
			FieldName:        raw.Parser.FieldName,
		}}, nil

	case raw.Lookup != nil:
		return buildLookupColumn(raw.Lookup)

	default:
		return TableMapperColumn{}, apperr.New(apperr.CodeIdentifierParse, component, "buildColumn", "column names none of Static, Parser, or Lookup")
	}
}

func buildLookupColumn(raw *lookupColumnRaw) (TableMapperColumn, error) {
	columnID, err := identifier.ParseColumn(raw.ColumnIdentifier)
	if err != nil {
		return TableMapperColumn{}, apperr.New(apperr.CodeIdentifierParse, component, "buildLookupColumn", fmt.Sprintf("Lookup.column_identifier %q: %v", raw.ColumnIdentifier, err)).Wrap(err)
	}
	tableID, err := identifier.ParseTable(raw.TableIdentifier)
	if err != nil {
		return TableMapperColumn{}, apperr.New(apperr.CodeIdentifierParse, component, "buildLookupColumn", fmt.Sprintf("Lookup.table_identifier %q: %v", raw.TableIdentifier, err)).Wrap(err)
	}
	outputID, err := identifier.ParseColumn(raw.OutputColumnIdentifier)
	if err != nil {
		return TableMapperColumn{}, apperr.New(apperr.CodeIdentifierParse, component, "buildLookupColumn", fmt.Sprintf("Lookup.output_column_identifier %q: %v", raw.OutputColumnIdentifier, err)).Wrap(err)
	}

	keyColumns := make([]LookupKeyColumn, 0, len(raw.KeyColumns))
	for _, k := range raw.KeyColumns {
		key, err := buildLookupKeyColumn(&k)
		if err != nil {
			return TableMapperColumn{}, err
		}
		keyColumns = append(keyColumns, key)
	}

	return TableMapperColumn{Lookup: &LookupColumn{
		ColumnIdentifier:       columnID,
		MapColumn:              raw.MapColumn,
		TableIdentifier:        tableID,
		OutputColumnIdentifier: outputID,
		KeyColumns:             keyColumns,
	}}, nil
}

func buildLookupKeyColumn(raw *lookupKeyColumnRaw) (LookupKeyColumn, error) {
	switch {
	case raw.ParserKeyColumn != nil:
		keyID, err := identifier.ParseColumn(raw.ParserKeyColumn.KeyColumnIdentifier)
		if err != nil {
			return LookupKeyColumn{}, apperr.New(apperr.CodeIdentifierParse, component, "buildLookupKeyColumn", fmt.Sprintf("ParserKeyColumn.key_column_identifier %q: %v", raw.ParserKeyColumn.KeyColumnIdentifier, err)).Wrap(err)
		}
		return LookupKeyColumn{ParserKeyColumn: &ParserKeyColumn{
			KeyColumnIdentifier: keyID,
			FieldName:           raw.ParserKeyColumn.FieldName,
		}}, nil

	case raw.ProcessedKeyColumn != nil:
		keyID, err := identifier.ParseColumn(raw.ProcessedKeyColumn.KeyColumnIdentifier)
		if err != nil {
			return LookupKeyColumn{}, apperr.New(apperr.CodeIdentifierParse, component, "buildLookupKeyColumn", fmt.Sprintf("ProcessedKeyColumn.key_column_identifier %q: %v", raw.ProcessedKeyColumn.KeyColumnIdentifier, err)).Wrap(err)
		}
		columnID, err := identifier.ParseColumn(raw.ProcessedKeyColumn.ColumnIdentifier)
		if err != nil {
			return LookupKeyColumn{}, apperr.New(apperr.CodeIdentifierParse, component, "buildLookupKeyColumn", fmt.Sprintf("ProcessedKeyColumn.column_identifier %q: %v", raw.ProcessedKeyColumn.ColumnIdentifier, err)).Wrap(err)
		}
		return LookupKeyColumn{ProcessedKeyColumn: &ProcessedKeyColumn{
			KeyColumnIdentifier: keyID,
			ColumnIdentifier:    columnID,
		}}, nil

	default:
		return LookupKeyColumn{}, apperr.New(apperr.CodeIdentifierParse, component, "buildLookupKeyColumn", "key column names neither ParserKeyColumn nor ProcessedKeyColumn")
	}
}
