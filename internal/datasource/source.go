package datasource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/preprocess"
	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
	"github.com/klauspost/compress/gzip"
)

const component = "datasource"

// ErrDone is returned by Source.Next once the underlying file is exhausted.
var ErrDone = errors.New("datasource: no more records")

// Source streams decoded records from one table mapper's configured field
// group. Next returns ErrDone (wrapped by nothing) when the file is
// exhausted; any other error aborts the current table mapper.
type Source interface {
	Next(ctx context.Context) (*Record, error)
	Close() error
}

var gzipMagic = []byte{0x1f, 0x8b}

// ResolvedPath returns the on-disk path Open would read for config, after
// applying options.PathOverride. Used by the executor (C9) to act on the
// --deletion policy once a table mapper finishes successfully.
func ResolvedPath(config profile.DataSourceConfig, options profile.ImportOptions) (string, error) {
	switch {
	case config.Delimited != nil:
		if options.PathOverride != "" {
			return options.PathOverride, nil
		}
		return config.Delimited.Path, nil
	case config.XML != nil:
		if options.PathOverride != "" {
			return options.PathOverride, nil
		}
		return config.XML.Path, nil
	default:
		return "", apperr.New(apperr.CodeOpenSource, component, "ResolvedPath", "data_source_config names neither a delimited nor an XML source")
	}
}

// Open resolves path (or options.PathOverride, when set), transparently
// decompresses it if it begins with the gzip magic bytes (the supplemental
// gzip feature in SPEC_FULL.md §4.2), and returns a Source that yields the
// fields named in the given field group, filtered through transform (if
// any) per the Some/None/Err semantics in internal/preprocess.
func Open(config profile.DataSourceConfig, fieldGroup string, options profile.ImportOptions, transform preprocess.Transform) (Source, error) {
	path, err := ResolvedPath(config, options)
	if err != nil {
		return nil, err
	}

	switch {
	case config.Delimited != nil:
		fields, ok := config.Delimited.FieldGroups[fieldGroup]
		if !ok {
			return nil, apperr.New(apperr.CodeUnknownFieldGroup, component, "Open", fmt.Sprintf("unknown field group %q", fieldGroup))
		}
		reader, err := openMaybeGzip(path)
		if err != nil {
			return nil, err
		}
		return newDelimitedSource(reader, fields, config.Delimited.ReaderConfig, transform)

	case config.XML != nil:
		fields, ok := config.XML.FieldGroups[fieldGroup]
		if !ok {
			return nil, apperr.New(apperr.CodeUnknownFieldGroup, component, "Open", fmt.Sprintf("unknown field group %q", fieldGroup))
		}
		reader, err := openMaybeGzip(path)
		if err != nil {
			return nil, err
		}
		return newXMLSource(reader, fields, config.XML.Selector, transform)

	default:
		return nil, apperr.New(apperr.CodeOpenSource, component, "Open", "data_source_config names neither a delimited nor an XML source")
	}
}

// closerReader bundles the decoded stream with everything that must be
// closed when the source is done (the gzip reader and/or the file handle).
type closerReader struct {
	io.Reader
	closers []io.Closer
}

func (c *closerReader) Close() error {
	var err error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if cerr := c.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func openMaybeGzip(path string) (*closerReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperr.New(apperr.CodeOpenSource, component, "openMaybeGzip", fmt.Sprintf("could not open %q", path)).Wrap(err)
	}

	buffered := bufio.NewReader(file)
	magic, err := buffered.Peek(2)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, apperr.New(apperr.CodeReadSource, component, "openMaybeGzip", fmt.Sprintf("could not read %q", path)).Wrap(err)
	}

	if len(magic) == 2 && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			file.Close()
			return nil, apperr.New(apperr.CodeReadSource, component, "openMaybeGzip", fmt.Sprintf("could not open gzip stream %q", path)).Wrap(err)
		}
		return &closerReader{Reader: gz, closers: []io.Closer{gz, file}}, nil
	}

	return &closerReader{Reader: buffered, closers: []io.Closer{file}}, nil
}

// applyTransform runs transform.Transform on record, mapping the
// Some/None/Err contract onto (record, skip, error): nil transform passes
// the record through unchanged; a nil returned record means skip; an error
// aborts the stream.
func applyTransform(ctx context.Context, transform preprocess.Transform, record Record) (*Record, bool, error) {
	if transform == nil {
		return &record, false, nil
	}

	fields := make([]string, 0, len(record.Fields))
	values := make([]string, 0, len(record.Fields))
	for k, v := range record.Fields {
		fields = append(fields, k)
		values = append(values, v)
	}

	result, err := transform.Transform(ctx, preprocess.Record{Fields: fields, Values: values})
	if err != nil {
		return nil, false, apperr.New(apperr.CodePreprocessTransform, component, "applyTransform", "preprocess transform failed").Wrap(err)
	}
	if result == nil {
		return nil, true, nil
	}

	out := Record{Index: record.Index, Fields: make(map[string]string, len(result.Fields))}
	for i, name := range result.Fields {
		out.Fields[name] = result.Values[i]
	}
	return &out, false, nil
}
