package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ConvertValue coerces a decoded value (from YAML, JSON or a SQL driver)
// into the Go type that matches a scalar type tag.
func ConvertValue(tag string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch tag {
	case TypeAny:
		return v, nil
	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		default:
			i, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			return i != 0, nil
		}
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		switch tag {
		case TypeInt8:
			if i < math.MinInt8 || i > math.MaxInt8 {
				return nil, outOfRange(v, tag)
			}
			return int8(i), nil
		case TypeInt16:
			if i < math.MinInt16 || i > math.MaxInt16 {
				return nil, outOfRange(v, tag)
			}
			return int16(i), nil
		case TypeInt32:
			if i < math.MinInt32 || i > math.MaxInt32 {
				return nil, outOfRange(v, tag)
			}
			return int32(i), nil
		}
		return i, nil
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		u, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		switch tag {
		case TypeUint8:
			if u > math.MaxUint8 {
				return nil, outOfRange(v, tag)
			}
			return uint8(u), nil
		case TypeUint16:
			if u > math.MaxUint16 {
				return nil, outOfRange(v, tag)
			}
			return uint16(u), nil
		case TypeUint32:
			if u > math.MaxUint32 {
				return nil, outOfRange(v, tag)
			}
			return uint32(u), nil
		}
		return u, nil
	case TypeFloat32, TypeFloat64:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		if tag == TypeFloat32 {
			return float32(f), nil
		}
		return f, nil
	case TypeComplex64, TypeComplex128:
		c, err := toComplex(v)
		if err != nil {
			return nil, err
		}
		if tag == TypeComplex64 {
			return complex64(c), nil
		}
		return c, nil
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
		return fmt.Sprint(v), nil
	case TypeBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, fmt.Errorf("cannot convert %T to bytes", v)
	case TypeTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			return time.Parse(time.RFC3339Nano, t)
		}
		return nil, fmt.Errorf("cannot convert %T to time", v)
	}
	return v, nil
}

// ConvertCell converts a full cell value according to its descriptor:
// scalars go through ConvertValue, arrays are converted element-wise.
// JSON text is accepted for arrays and complex numbers.
func ConvertCell(d ColumnDesc, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if d.IsScalar() && !d.IsComplex() {
		return ConvertValue(d.Type, v)
	}
	if s, ok := asText(v); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("column %s: %w", d.Name, err)
		}
		v = decoded
	}
	if d.IsScalar() {
		return ConvertValue(d.Type, v)
	}
	return convertArray(d.Type, v, len(d.Shape))
}

func convertArray(tag string, v any, depth int) (any, error) {
	if depth == 0 {
		return ConvertValue(tag, v)
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]any, len(items))
	for i, item := range items {
		c, err := convertArray(tag, item, depth-1)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// EncodeCell returns the storage form of a cell for SQL stores: scalars are
// passed through, complex numbers become [re, im] and arrays or nested
// values become JSON text.
func EncodeCell(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, []byte, time.Time,
		int, int8, int16, int32, int64, uint8, uint16, uint32,
		float32, float64:
		return x, nil
	case uint64:
		if x > math.MaxInt64 {
			return strconv.FormatUint(x, 10), nil
		}
		return int64(x), nil
	}
	b, err := json.Marshal(jsonable(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonable(v any) any {
	switch x := v.(type) {
	case complex128:
		return []float64{real(x), imag(x)}
	case complex64:
		return []float64{float64(real(x)), float64(imag(x))}
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = jsonable(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = jsonable(item)
		}
		return out
	}
	return v
}

func asText(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func outOfRange(v any, tag string) error {
	return fmt.Errorf("value %v out of range for %s", v, tag)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint, uint64:
		u, _ := toUint64(n)
		if u > math.MaxInt64 {
			return 0, outOfRange(v, TypeInt64)
		}
		return int64(u), nil
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("non-integral value %v", f)
	}
	if f < -(1<<63) || f >= 1<<63 {
		return 0, outOfRange(f, TypeInt64)
	}
	return int64(f), nil
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case float32:
		return floatToUint64(float64(n))
	case float64:
		return floatToUint64(n)
	case string:
		return strconv.ParseUint(n, 10, 64)
	case []byte:
		return strconv.ParseUint(string(n), 10, 64)
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("negative value %d for unsigned integer", i)
	}
	return uint64(i), nil
}

func floatToUint64(f float64) (uint64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("non-integral value %v", f)
	}
	if f < 0 || f >= 1<<64 {
		return 0, outOfRange(f, TypeUint64)
	}
	return uint64(f), nil
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %T to float", v)
	}
	return float64(i), nil
}

func toComplex(v any) (complex128, error) {
	switch c := v.(type) {
	case complex128:
		return c, nil
	case complex64:
		return complex128(c), nil
	case []any:
		if len(c) != 2 {
			return 0, fmt.Errorf("complex value needs [re, im], got %d items", len(c))
		}
		re, err := toFloat64(c[0])
		if err != nil {
			return 0, err
		}
		im, err := toFloat64(c[1])
		if err != nil {
			return 0, err
		}
		return complex(re, im), nil
	case string:
		return strconv.ParseComplex(c, 128)
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("cannot convert %T to complex", v)
	}
	return complex(f, 0), nil
}
