// Package apperr defines the application-wide structured error type used
// across the import engine, modeled on the teacher's own error package
// (component/operation/severity), adapted to this domain's error taxonomy.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Severity classifies how an Error should be treated by callers deciding
// whether to retry, abort the current table mapper, or abort the whole run.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // aborts the current table mapper run
	SeverityWarning Severity = "warning" // logged, does not abort
)

// Error codes, grouped by the taxonomy in SPEC_FULL.md §9.
const (
	CodeIdentifierParse       = "IDENTIFIER_PARSE"
	CodeUnknownFieldGroup     = "UNKNOWN_FIELD_GROUP"
	CodeNoTableMappers        = "NO_TABLE_MAPPERS"
	CodeProcessedKeyUnknown   = "PROCESSED_KEY_UNKNOWN_TARGET"
	CodeColumnCycle           = "COLUMN_CYCLE"
	CodeNoNonTransientColumns = "NO_NON_TRANSIENT_COLUMNS"
	CodeKeyColumnUnknown      = "KEY_COLUMN_UNKNOWN_TARGET"
	CodeNoPreprocessRuntime   = "NO_PREPROCESS_RUNTIME"
	CodePreprocessTransform   = "PREPROCESS_TRANSFORM_FAILED"

	CodeOpenSource       = "SOURCE_OPEN_FAILED"
	CodeReadSource       = "SOURCE_READ_FAILED"
	CodeDecodeUTF8       = "SOURCE_UTF8_DECODE_FAILED"
	CodeHeaderMissing    = "SOURCE_HEADER_MISSING_FIELDS"
	CodeTooFewFields     = "TOO_FEW_FIELDS"
	CodeTooManyFields    = "TOO_MANY_FIELDS"
	CodeXMLUnexpectedTag = "XML_UNEXPECTED_TAG"
	CodeXMLUnknownField  = "XML_UNKNOWN_FIELD"
	CodeUnsupportedGzip  = "SOURCE_GZIP_UNSUPPORTED"

	CodeRecordMissingField  = "RECORD_MISSING_FIELD"
	CodeUnsupportedColumn   = "UNSUPPORTED_COLUMN_TYPE"
	CodeStaticParamCoercion = "STATIC_PARAMETER_COERCION_FAILED"

	CodeDBMetadata    = "DB_METADATA_FAILED"
	CodeDBStaging     = "DB_STAGING_FAILED"
	CodeDBBulkInsert  = "DB_BULK_INSERT_FAILED"
	CodeDBUpdate      = "DB_UPDATE_FAILED"
	CodeDBMerge       = "DB_MERGE_FAILED"
	CodeDBFinalize    = "DB_FINALIZE_FAILED"
	CodeCLIValidation = "CLI_VALIDATION_FAILED"
	CodeConfigLoad    = "CONFIG_LOAD_FAILED"
)

// Error is a structured application error carrying enough context to log
// and to match on programmatically.
type Error struct {
	Code      string
	Component string
	Operation string
	Message   string
	Cause     error
	Severity  Severity
	Timestamp time.Time

	// ProfileName / MapperName / RecordNumber locate the error within a
	// run, when applicable. RecordNumber is nil when not record-scoped.
	ProfileName  string
	MapperName   string
	RecordNumber *uint64
}

// New creates a fatal application error.
func New(code, component, operation, message string) *Error {
	return &Error{
		Code:      code,
		Component: component,
		Operation: operation,
		Message:   message,
		Severity:  SeverityFatal,
		Timestamp: time.Now(),
	}
}

// NewWarning creates a non-fatal (warning-severity) application error.
func NewWarning(code, component, operation, message string) *Error {
	err := New(code, component, operation, message)
	err.Severity = SeverityWarning
	return err
}

// Wrap sets the underlying cause and returns the receiver for chaining.
func (e *Error) Wrap(cause error) *Error {
	e.Cause = cause
	return e
}

// WithContext attaches the profile/mapper/record context path described in
// SPEC_FULL.md §9.
func (e *Error) WithContext(profileName, mapperName string, recordNumber *uint64) *Error {
	e.ProfileName = profileName
	e.MapperName = mapperName
	e.RecordNumber = recordNumber
	return e
}

func (e *Error) Error() string {
	var location string
	switch {
	case e.ProfileName != "" && e.MapperName != "" && e.RecordNumber != nil:
		location = fmt.Sprintf("%s/%s#%d: ", e.ProfileName, e.MapperName, *e.RecordNumber)
	case e.ProfileName != "" && e.MapperName != "":
		location = fmt.Sprintf("%s/%s: ", e.ProfileName, e.MapperName)
	case e.ProfileName != "":
		location = e.ProfileName + ": "
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s[%s:%s] %s: %s: %v", location, e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s:%s] %s: %s", location, e.Component, e.Operation, e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error { return e.Cause }

// IsFatal reports whether the error should abort the current table mapper.
func (e *Error) IsFatal() bool { return e.Severity == SeverityFatal }

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}
