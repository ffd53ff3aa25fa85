package datasource

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/etylermoss/sql-bulk-import-profile/internal/apperr"
	"github.com/etylermoss/sql-bulk-import-profile/internal/preprocess"
	"github.com/etylermoss/sql-bulk-import-profile/internal/profile"
)

// delimitedSource streams CSV/TSV (via encoding/csv) or a custom-configured
// delimited format (via a hand-rolled scanner; encoding/csv cannot express
// an arbitrary quote rune, escape character, or comment marker together).
// Grounded on original_source/src/delimited_data_source.rs, translated
// from its csv_core push-parser loop to Go's pull-based io.Reader model.
type delimitedSource struct {
	next         func() ([]string, error) // returns io.EOF at end of file
	header       []string
	recordNumber uint64
	lineNumber   uint64
	transform    preprocess.Transform
	closer       io.Closer
}

func newDelimitedSource(r *closerReader, fields []profile.Field, rc profile.ReaderConfig, transform preprocess.Transform) (Source, error) {
	var next func() ([]string, error)

	switch rc.Kind {
	case profile.ReaderConfigCsv:
		next = stdlibCSVReader(r, ',')
	case profile.ReaderConfigTxt:
		next = stdlibCSVReader(r, '\t')
	case profile.ReaderConfigCustom:
		next = customDelimitedReader(r, rc.Custom)
	default:
		return nil, apperr.New(apperr.CodeOpenSource, component, "newDelimitedSource", "unknown reader_config kind")
	}

	header, err := next()
	if err != nil {
		return nil, apperr.New(apperr.CodeReadSource, component, "newDelimitedSource", "could not read header row").Wrap(err)
	}

	var missing []string
	for _, f := range fields {
		if !containsString(header, f.Name) {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.New(apperr.CodeHeaderMissing, component, "newDelimitedSource", fmt.Sprintf("header is missing declared fields: %s", strings.Join(missing, ", ")))
	}

	return &delimitedSource{next: next, header: header, lineNumber: 1, transform: transform, closer: r}, nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func stdlibCSVReader(r io.Reader, comma rune) func() ([]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	return func() ([]string, error) { return reader.Read() }
}

func (s *delimitedSource) Next(ctx context.Context) (*Record, error) {
	for {
		row, err := s.next()
		if err == io.EOF {
			return nil, ErrDone
		}
		if err != nil {
			return nil, apperr.New(apperr.CodeReadSource, component, "Next", "could not read row").Wrap(err)
		}

		s.lineNumber++
		if len(row) < len(s.header) {
			return nil, apperr.New(apperr.CodeTooFewFields, component, "Next", fmt.Sprintf("row has %d fields, header declares %d", len(row), len(s.header)))
		}
		if len(row) > len(s.header) {
			return nil, apperr.New(apperr.CodeTooManyFields, component, "Next", fmt.Sprintf("row has %d fields, header declares %d", len(row), len(s.header)))
		}

		s.recordNumber++
		fields := make(map[string]string, len(s.header))
		for i, name := range s.header {
			fields[name] = row[i]
		}

		record := Record{
			Index:  RecordIndex{RecordNumber: s.recordNumber, LineStart: s.lineNumber, LineEnd: s.lineNumber},
			Fields: fields,
		}

		result, skip, err := applyTransform(ctx, s.transform, record)
		if err != nil {
			return nil, err
		}
		if skip {
			continue
		}
		return result, nil
	}
}

func (s *delimitedSource) Close() error { return s.closer.Close() }

// customDelimitedReader hand-tokenizes a byte stream against an arbitrary
// delimiter/terminator/quote/escape/comment configuration. It reads one
// logical record (a sequence of fields up to the configured terminator) per
// call, honoring quoted fields that may embed the delimiter or terminator.
func customDelimitedReader(r io.Reader, cfg profile.DelimitedReaderCustomConfig) func() ([]string, error) {
	br := bufio.NewReader(r)

	return func() ([]string, error) {
		var fields []string
		var field strings.Builder
		inQuotes := false
		sawAnyByte := false

		for {
			ru, _, err := br.ReadRune()
			if err != nil {
				if err == io.EOF {
					if !sawAnyByte && len(fields) == 0 {
						return nil, io.EOF
					}
					fields = append(fields, field.String())
					return fields, nil
				}
				return nil, err
			}
			sawAnyByte = true

			if cfg.Comment != nil && !inQuotes && len(fields) == 0 && field.Len() == 0 && ru == *cfg.Comment {
				if err := skipLine(br); err != nil && err != io.EOF {
					return nil, err
				}
				sawAnyByte = false
				continue
			}

			if cfg.Escape != nil && ru == *cfg.Escape {
				next, _, err := br.ReadRune()
				if err != nil {
					return nil, apperr.New(apperr.CodeReadSource, component, "customDelimitedReader", "dangling escape character at end of file")
				}
				field.WriteRune(next)
				continue
			}

			if cfg.Quoting && ru == cfg.Quote {
				if inQuotes && cfg.DoubleQuote {
					peek, _, err := br.ReadRune()
					if err == nil && peek == cfg.Quote {
						field.WriteRune(cfg.Quote)
						continue
					}
					if err == nil {
						br.UnreadRune()
					}
				}
				inQuotes = !inQuotes
				continue
			}

			if !inQuotes && ru == cfg.Delimiter {
				fields = append(fields, field.String())
				field.Reset()
				continue
			}

			if !inQuotes && isTerminatorRune(ru, cfg.Terminator, br) {
				fields = append(fields, field.String())
				return fields, nil
			}

			field.WriteRune(ru)
		}
	}
}

func skipLine(br *bufio.Reader) error {
	_, err := br.ReadString('\n')
	return err
}

// isTerminatorRune reports whether ru ends the current record. For CRLF it
// also consumes a following '\n' after a bare '\r' (and treats a bare '\n'
// as terminating too, matching common line-ending leniency).
func isTerminatorRune(ru rune, terminator profile.Terminator, br *bufio.Reader) bool {
	switch terminator.Kind {
	case profile.TerminatorCRLF:
		if ru == '\n' {
			return true
		}
		if ru == '\r' {
			if peek, _, err := br.ReadRune(); err == nil && peek != '\n' {
				br.UnreadRune()
			}
			return true
		}
		return false
	case profile.TerminatorAny:
		return ru == terminator.Any
	default:
		return false
	}
}
