// Package starlark compiles and evaluates filter conditions with Starlark.
package starlark

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
)

// GoToStarlark converts a column value to a Starlark value.
// Supported types: nil, bool, string, []byte, signed and unsigned integers,
// float32, float64 and time.Time (exposed as an RFC 3339 string).
func GoToStarlark(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil

	case string:
		return starlark.String(val), nil

	case []byte:
		return starlark.Bytes(val), nil

	case int:
		return starlark.MakeInt(val), nil
	case int8:
		return starlark.MakeInt64(int64(val)), nil
	case int16:
		return starlark.MakeInt64(int64(val)), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil

	case uint:
		return starlark.MakeUint(val), nil
	case uint8:
		return starlark.MakeUint64(uint64(val)), nil
	case uint16:
		return starlark.MakeUint64(uint64(val)), nil
	case uint32:
		return starlark.MakeUint64(uint64(val)), nil
	case uint64:
		return starlark.MakeUint64(val), nil

	case float32:
		return starlark.Float(float64(val)), nil
	case float64:
		return starlark.Float(val), nil

	case time.Time:
		return starlark.String(val.Format(time.RFC3339Nano)), nil

	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
