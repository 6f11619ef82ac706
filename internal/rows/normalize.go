// Parses request bodies into batches of records.

package rows

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"
	"golang.org/x/text/unicode/norm"
)

// ErrMalformed is matched by every error returned from Normalize.
var ErrMalformed = errors.New("malformed payload")

// MalformedError describes why a body was rejected.
type MalformedError struct {
	msg string
}

func (e *MalformedError) Error() string { return e.msg }

// Unwrap returns ErrMalformed.
func (e *MalformedError) Unwrap() error { return ErrMalformed }

// Malformedf returns a *MalformedError with a formatted message.
func Malformedf(format string, args ...any) error {
	return &MalformedError{msg: fmt.Sprintf(format, args...)}
}

// Normalizer converts JSON bodies into batches.
type Normalizer struct {
	// MaxRows rejects arrays with more elements. 0 means unlimited.
	MaxRows int
}

// Normalize parses body with no row limit.
func Normalize(body []byte) (Batch, error) {
	return Normalizer{}.Normalize(body)
}

// Normalize parses body into a batch.
//
// An object becomes a one-record batch. An array must contain only objects and
// may be empty. Column values must be JSON scalars. Keys are NFC normalized; a
// key repeated within one object keeps its first position and its last value.
func (n Normalizer) Normalize(body []byte) (Batch, error) {
	if !json.Valid(body) {
		return nil, Malformedf("Invalid JSON")
	}
	root, typ, _, err := jsonparser.Get(body)
	if err != nil {
		return nil, Malformedf("Invalid JSON: %v", err)
	}
	switch typ {
	case jsonparser.Object:
		r, err := parseRecord(root)
		if err != nil {
			return nil, err
		}
		return Batch{r}, nil
	case jsonparser.Array:
		return n.parseArray(root)
	default:
		return nil, Malformedf("Invalid JSON: expected an object or an array of objects, got %s", typeName(typ))
	}
}

func (n Normalizer) parseArray(data []byte) (Batch, error) {
	var (
		b      Batch
		first  error
		index  int
		pushed int
	)
	_, err := jsonparser.ArrayEach(data, func(value []byte, typ jsonparser.ValueType, _ int, err error) {
		defer func() { index++ }()
		if first != nil {
			return
		}
		if err != nil {
			first = Malformedf("Invalid JSON: element %d: %v", index, err)
			return
		}
		if typ != jsonparser.Object {
			first = Malformedf("Invalid JSON: element %d is %s, expected an object", index, typeName(typ))
			return
		}
		if n.MaxRows > 0 && pushed >= n.MaxRows {
			first = Malformedf("Too many rows: limit is %d", n.MaxRows)
			return
		}
		r, err := parseRecord(value)
		if err != nil {
			first = Malformedf("Invalid JSON: element %d: %v", index, err)
			return
		}
		b = append(b, r)
		pushed++
	})
	if first != nil {
		return nil, first
	}
	if err != nil {
		return nil, Malformedf("Invalid JSON: %v", err)
	}
	if b == nil {
		b = Batch{}
	}
	return b, nil
}

func parseRecord(data []byte) (Record, error) {
	var r Record
	err := jsonparser.ObjectEach(data, func(rawKey, value []byte, typ jsonparser.ValueType, _ int) error {
		key := norm.NFC.String(string(rawKey))
		if key == "" {
			return Malformedf("empty column name")
		}
		v, err := parseScalar(value, typ)
		if err != nil {
			return Malformedf("column %q: %v", key, err)
		}
		r = r.set(key, v)
		return nil
	})
	if err != nil {
		var me *MalformedError
		if errors.As(err, &me) {
			return nil, me
		}
		return nil, Malformedf("%v", err)
	}
	if r == nil {
		r = Record{}
	}
	return r, nil
}

func parseScalar(raw []byte, typ jsonparser.ValueType) (Value, error) {
	switch typ {
	case jsonparser.Null:
		return Null(), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Value{}, err
		}
		return String(s), nil
	case jsonparser.Number:
		return parseNumber(raw)
	default:
		return Value{}, fmt.Errorf("%s is not a scalar", typeName(typ))
	}
}

func parseNumber(raw []byte) (Value, error) {
	integral := true
	for _, c := range raw {
		if c == '.' || c == 'e' || c == 'E' {
			integral = false
			break
		}
	}
	if integral {
		if i, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			return Int(i), nil
		}
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		var ne *strconv.NumError
		if !errors.As(err, &ne) || !errors.Is(ne.Err, strconv.ErrRange) {
			return Value{}, err
		}
	}
	return Float(f), nil
}

func typeName(t jsonparser.ValueType) string {
	switch t {
	case jsonparser.Object:
		return "an object"
	case jsonparser.Array:
		return "an array"
	case jsonparser.String:
		return "a string"
	case jsonparser.Number:
		return "a number"
	case jsonparser.Boolean:
		return "a boolean"
	case jsonparser.Null:
		return "null"
	default:
		return "unknown"
	}
}
