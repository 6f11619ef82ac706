// Defines the tagged scalar value model for incoming rows.

// Package rows turns request bodies into ordered batches of scalar records.
//
// Values are an explicit tagged union so that schema inference and SQL
// parameter binding never inspect dynamically typed data:
//
//	null           → KindNull   → NULL
//	true/false     → KindBool   → INTEGER (0 or 1)
//	123            → KindInt    → INTEGER
//	3.14, 1e400    → KindFloat  → REAL
//	"text"         → KindString → TEXT
//	[...], {...}   → rejected
package rows

import (
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindNull is the JSON null literal.
	KindNull Kind = iota
	// KindBool is true or false.
	KindBool
	// KindInt is a number literal without fraction or exponent that fits in int64.
	KindInt
	// KindFloat is any other number literal.
	KindFloat
	// KindString is a JSON string.
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a JSON scalar.
//
// The zero value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the variant held.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload; false unless Kind is KindBool.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the integer payload; 0 unless Kind is KindInt.
func (v Value) AsInt() int64 { return v.i }

// AsFloat returns the float payload; 0 unless Kind is KindFloat.
func (v Value) AsFloat() float64 { return v.f }

// AsString returns the string payload; "" unless Kind is KindString.
func (v Value) AsString() string { return v.s }

// SQLArg returns the value as a database/sql argument.
//
// Booleans are stored as 0/1 since SQLite has no boolean storage class.
func (v Value) SQLArg() any {
	switch v.kind {
	case KindBool:
		if v.b {
			return int64(1)
		}
		return int64(0)
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return nil
	}
}

// Equal reports whether both values hold the same variant and payload.
func (v Value) Equal(o Value) bool {
	return v == o
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	default:
		return "null"
	}
}

// Field is one column of a Record.
type Field struct {
	Column string
	Value  Value
}

// Record is an ordered set of fields with unique column names.
type Record []Field

// Get returns the value of column and whether it was present.
func (r Record) Get(column string) (Value, bool) {
	if i := r.index(column); i >= 0 {
		return r[i].Value, true
	}
	return Value{}, false
}

// GetFold is Get ignoring case, the way SQLite matches column names.
func (r Record) GetFold(column string) (Value, bool) {
	for i := range r {
		if strings.EqualFold(r[i].Column, column) {
			return r[i].Value, true
		}
	}
	return Value{}, false
}

// Columns returns the column names in order.
func (r Record) Columns() []string {
	out := make([]string, len(r))
	for i, f := range r {
		out[i] = f.Column
	}
	return out
}

// set replaces column in place when present, else appends it.
func (r Record) set(column string, v Value) Record {
	if i := r.index(column); i >= 0 {
		r[i].Value = v
		return r
	}
	return append(r, Field{Column: column, Value: v})
}

func (r Record) index(column string) int {
	for i := range r {
		if r[i].Column == column {
			return i
		}
	}
	return -1
}

// Batch is an ordered sequence of records.
type Batch []Record

// Columns returns every column seen in b, in first-occurrence order.
func (b Batch) Columns() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range b {
		for _, f := range r {
			if _, ok := seen[f.Column]; ok {
				continue
			}
			seen[f.Column] = struct{}{}
			out = append(out, f.Column)
		}
	}
	return out
}
