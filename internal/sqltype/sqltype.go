// Package sqltype holds the shared SQL type tag and coercion table used by
// both the insert processor (C6, coercion failures become NULL) and the
// update processor (C7, coercion failures are fatal). Consolidating the two
// near-identical coercion blocks from the original insert_processor.rs and
// update_processor.rs into one table avoids drift between them.
package sqltype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Tag enumerates the server column types this engine knows how to coerce a
// source string into. Any metadata type outside this set is Unsupported.
type Tag int

const (
	Bit Tag = iota
	Int1
	Int2
	Int4
	Int8
	Float4
	Float8
	BigVarChar
	NVarChar
	Decimal
	Unsupported
)

// Size carries the declared length for variable-length string types and the
// precision/scale for Decimal. Staging column DDL (C5) reads this to emit
// e.g. NVARCHAR(200) or DECIMAL(18,4); Length <= 0 or MaxLength means "max".
type Size struct {
	Length    int
	MaxLength bool
	Precision int
	Scale     int
}

// Coerce parses raw against tag, returning the Go value to bind as a driver
// parameter (or insert into a bulk row). ok is false when raw could not be
// parsed as tag — callers decide what that means (NULL for inserts, a fatal
// error for update static parameters). Unsupported always returns an error.
func Coerce(tag Tag, raw string) (value any, ok bool, err error) {
	switch tag {
	case Bit:
		switch strings.TrimSpace(raw) {
		case "1", "true", "TRUE", "True":
			return true, true, nil
		case "0", "false", "FALSE", "False":
			return false, true, nil
		default:
			return nil, false, nil
		}
	case Int1:
		v, perr := strconv.ParseUint(strings.TrimSpace(raw), 10, 8)
		if perr != nil {
			return nil, false, nil
		}
		return uint8(v), true, nil
	case Int2:
		v, perr := strconv.ParseInt(strings.TrimSpace(raw), 10, 16)
		if perr != nil {
			return nil, false, nil
		}
		return int16(v), true, nil
	case Int4:
		v, perr := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
		if perr != nil {
			return nil, false, nil
		}
		return int32(v), true, nil
	case Int8:
		v, perr := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if perr != nil {
			return nil, false, nil
		}
		return v, true, nil
	case Float4:
		v, perr := strconv.ParseFloat(strings.TrimSpace(raw), 32)
		if perr != nil {
			return nil, false, nil
		}
		return float32(v), true, nil
	case Float8:
		v, perr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if perr != nil {
			return nil, false, nil
		}
		return v, true, nil
	case BigVarChar, NVarChar:
		return raw, true, nil
	case Decimal:
		d, perr := decimal.NewFromString(strings.TrimSpace(raw))
		if perr != nil {
			return nil, false, nil
		}
		return d, true, nil
	default:
		return nil, false, fmt.Errorf("sqltype: unsupported column type")
	}
}

// String names the tag for error messages and DDL generation.
func (t Tag) String() string {
	switch t {
	case Bit:
		return "BIT"
	case Int1:
		return "TINYINT"
	case Int2:
		return "SMALLINT"
	case Int4:
		return "INT"
	case Int8:
		return "BIGINT"
	case Float4:
		return "REAL"
	case Float8:
		return "FLOAT"
	case BigVarChar:
		return "VARCHAR"
	case NVarChar:
		return "NVARCHAR"
	case Decimal:
		return "DECIMAL"
	default:
		return "UNSUPPORTED"
	}
}

// DDL renders the column type clause used by the staging table CREATE
// statement, e.g. "NVARCHAR(200)", "NVARCHAR(max)", "DECIMAL(18,4)".
func (t Tag) DDL(size Size) string {
	switch t {
	case BigVarChar, NVarChar:
		if size.MaxLength || size.Length <= 0 {
			return t.String() + "(max)"
		}
		return fmt.Sprintf("%s(%d)", t, size.Length)
	case Decimal:
		precision, scale := size.Precision, size.Scale
		if precision == 0 {
			precision = 18
		}
		return fmt.Sprintf("DECIMAL(%d,%d)", precision, scale)
	default:
		return t.String()
	}
}
