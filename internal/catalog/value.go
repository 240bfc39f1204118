package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/koustreak/ExprDB/internal/errs"
)

// Value is a typed scalar aligned to a Column. Null marks an absent value,
// e.g. a feature with no row in an outer-joined annotation table.
type Value struct {
	Type ColumnType
	Null bool
	Int  int64
	Real float64
	Text string
}

// Row is an ordered sequence of values aligned to a column list.
type Row []Value

func IntValue(v int64) Value       { return Value{Type: TypeInteger, Int: v} }
func RealValue(v float64) Value    { return Value{Type: TypeReal, Real: v} }
func TextValue(v string) Value     { return Value{Type: TypeText, Text: v} }
func NullValue(t ColumnType) Value { return Value{Type: t, Null: true} }

// Any returns nil, int64, float64 or string.
func (v Value) Any() any {
	if v.Null {
		return nil
	}
	switch v.Type {
	case TypeInteger:
		return v.Int
	case TypeReal:
		return v.Real
	default:
		return v.Text
	}
}

// Float returns the value as float64; ok is false for null and text values.
func (v Value) Float() (f float64, ok bool) {
	if v.Null {
		return 0, false
	}
	switch v.Type {
	case TypeInteger:
		return float64(v.Int), true
	case TypeReal:
		return v.Real, true
	}
	return 0, false
}

// Format renders the value losslessly: integers in base 10 and reals with the
// shortest representation that parses back to the same float64. ok is false
// for null.
func (v Value) Format() (s string, ok bool) {
	if v.Null {
		return "", false
	}
	switch v.Type {
	case TypeInteger:
		return strconv.FormatInt(v.Int, 10), true
	case TypeReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64), true
	default:
		return v.Text, true
	}
}

func (v Value) String() string {
	s, ok := v.Format()
	if !ok {
		return "NULL"
	}
	return s
}

// MarshalJSON emits the scalar itself. Non-finite reals have no JSON form
// and are emitted as their text spelling.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Null && v.Type == TypeReal && (math.IsNaN(v.Real) || math.IsInf(v.Real, 0)) {
		return json.Marshal(strconv.FormatFloat(v.Real, 'g', -1, 64))
	}
	return json.Marshal(v.Any())
}

// IsInteger reports whether s is an integer literal that fits in int64.
func IsInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// IsReal reports whether s is a finite decimal or exponential literal.
// Spellings such as "NaN" or "Inf" are not treated as numbers.
func IsReal(s string) bool {
	if s == "" {
		return false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	// ParseFloat accepts hex floats and underscores; data files don't use them.
	return !strings.ContainsAny(s, "xXpP_")
}

// ParseValue converts the text s to a value of type t.
func ParseValue(t ColumnType, s string) (Value, error) {
	switch t {
	case TypeInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, errs.Newf(errs.ErrKindTypeMismatch, "%q is not an integer", s)
		}
		return IntValue(n), nil
	case TypeReal:
		trimmed := strings.TrimSpace(s)
		if !IsReal(trimmed) {
			return Value{}, errs.Newf(errs.ErrKindTypeMismatch, "%q is not a number", s)
		}
		f, _ := strconv.ParseFloat(trimmed, 64)
		return RealValue(f), nil
	default:
		return TextValue(s), nil
	}
}

// FromDriver converts a value scanned into *any by a storage driver.
// Drivers disagree on representation (int64 vs int32, []byte vs string,
// float32 vs float64), so every case the supported drivers produce is
// normalised here.
func FromDriver(t ColumnType, raw any) (Value, error) {
	if raw == nil {
		return NullValue(t), nil
	}
	switch t {
	case TypeInteger:
		switch x := raw.(type) {
		case int64:
			return IntValue(x), nil
		case int32:
			return IntValue(int64(x)), nil
		case int:
			return IntValue(int64(x)), nil
		case int16:
			return IntValue(int64(x)), nil
		case int8:
			return IntValue(int64(x)), nil
		case uint32:
			return IntValue(int64(x)), nil
		case float64:
			if x == math.Trunc(x) {
				return IntValue(int64(x)), nil
			}
		case []byte:
			return ParseValue(t, string(x))
		case string:
			return ParseValue(t, x)
		}
	case TypeReal:
		switch x := raw.(type) {
		case float64:
			return RealValue(x), nil
		case float32:
			return RealValue(float64(x)), nil
		case int64:
			return RealValue(float64(x)), nil
		case int32:
			return RealValue(float64(x)), nil
		case int:
			return RealValue(float64(x)), nil
		case []byte:
			return ParseValue(t, string(x))
		case string:
			return ParseValue(t, x)
		}
	default:
		switch x := raw.(type) {
		case string:
			return TextValue(x), nil
		case []byte:
			return TextValue(string(x)), nil
		default:
			return TextValue(fmt.Sprint(x)), nil
		}
	}
	return Value{}, errs.Newf(errs.ErrKindQueryFailed, "cannot read %T as %s", raw, t)
}
