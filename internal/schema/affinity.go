package schema

import (
	"math"
	"strconv"
	"strings"

	"github.com/maruel/insertd/internal/rows"
)

// Incoming values are coerced to the affinity of the column they land in,
// following https://www.sqlite.org/datatype3.html:
//
//	TEXT:    numbers → decimal string, bool → "0"/"1"
//	INTEGER: whole floats → int, bool → 0/1, numeric strings → int
//	REAL:    ints → float, numeric strings → float
//	NUMERIC: whole floats → int, numeric strings parsed
//	BLOB:    unchanged

// Affinity is the SQLite type affinity of a column.
type Affinity int

const (
	// AffinityBLOB has no type preference; values stored as-is.
	AffinityBLOB Affinity = iota
	// AffinityTEXT converts numeric values to string representation.
	AffinityTEXT
	// AffinityINTEGER forces integer representation when lossless.
	AffinityINTEGER
	// AffinityREAL forces floating point representation.
	AffinityREAL
	// AffinityNUMERIC stores as INTEGER if whole number, REAL otherwise.
	AffinityNUMERIC
)

func (a Affinity) String() string {
	switch a {
	case AffinityTEXT:
		return "TEXT"
	case AffinityINTEGER:
		return "INTEGER"
	case AffinityREAL:
		return "REAL"
	case AffinityNUMERIC:
		return "NUMERIC"
	default:
		return "BLOB"
	}
}

// DeclaredAffinity applies SQLite's rules (section 3.1) to a declared type.
func DeclaredAffinity(declType string) Affinity {
	t := strings.ToUpper(declType)
	switch {
	case strings.Contains(t, "INT"):
		return AffinityINTEGER
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return AffinityTEXT
	case t == "", strings.Contains(t, "BLOB"):
		return AffinityBLOB
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return AffinityREAL
	default:
		return AffinityNUMERIC
	}
}

// Affinity returns the affinity of the column's declared type.
func (c *Column) Affinity() Affinity {
	return DeclaredAffinity(string(c.Type))
}

// Coerce converts v the way SQLite would when storing it in a column of
// affinity a. Null passes through unchanged.
func Coerce(v rows.Value, a Affinity) rows.Value {
	if v.IsNull() {
		return v
	}
	switch a {
	case AffinityTEXT:
		return coerceToText(v)
	case AffinityINTEGER, AffinityNUMERIC:
		return coerceToNumeric(v)
	case AffinityREAL:
		return coerceToReal(v)
	default:
		return v
	}
}

func coerceToText(v rows.Value) rows.Value {
	switch v.Kind() {
	case rows.KindInt:
		return rows.String(strconv.FormatInt(v.AsInt(), 10))
	case rows.KindFloat:
		f := v.AsFloat()
		if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
			// SQLite renders whole REAL values with a trailing ".0".
			return rows.String(strconv.FormatFloat(f, 'f', 1, 64))
		}
		return rows.String(strconv.FormatFloat(f, 'g', 15, 64))
	case rows.KindBool:
		if v.AsBool() {
			return rows.String("1")
		}
		return rows.String("0")
	default:
		return v
	}
}

func coerceToNumeric(v rows.Value) rows.Value {
	switch v.Kind() {
	case rows.KindBool:
		if v.AsBool() {
			return rows.Int(1)
		}
		return rows.Int(0)
	case rows.KindFloat:
		if i, ok := wholeFloat(v.AsFloat()); ok {
			return rows.Int(i)
		}
		return v
	case rows.KindString:
		s := strings.TrimSpace(v.AsString())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return rows.Int(i)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			if i, ok := wholeFloat(f); ok {
				return rows.Int(i)
			}
			return rows.Float(f)
		}
		return v
	default:
		return v
	}
}

func coerceToReal(v rows.Value) rows.Value {
	switch v.Kind() {
	case rows.KindBool:
		if v.AsBool() {
			return rows.Float(1)
		}
		return rows.Float(0)
	case rows.KindInt:
		return rows.Float(float64(v.AsInt()))
	case rows.KindString:
		s := strings.TrimSpace(v.AsString())
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return rows.Float(f)
		}
		return v
	default:
		return v
	}
}

// wholeFloat returns f as int64 when the conversion is exact.
func wholeFloat(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	if f < -9.223372036854775808e18 || f >= 9.223372036854775808e18 {
		return 0, false
	}
	return int64(f), true
}
