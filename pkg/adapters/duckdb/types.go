package duckdb

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"

	"github.com/leapstack-labs/leapquery/pkg/core"
)

var arraySuffix = regexp.MustCompile(`\[(\d*)\]$`)

// columnDesc maps a DuckDB data type onto a flat descriptor. ok is false
// for nested types (STRUCT, MAP, UNION), which have no flat descriptor.
func columnDesc(name, dataType string) (core.ColumnDesc, bool) {
	t := strings.ToUpper(strings.TrimSpace(dataType))

	var shape []int
	for {
		m := arraySuffix.FindStringSubmatch(t)
		if m == nil {
			break
		}
		dim := -1
		if m[1] != "" {
			dim, _ = strconv.Atoi(m[1])
		}
		shape = append([]int{dim}, shape...)
		t = strings.TrimSpace(t[:len(t)-len(m[0])])
	}

	tag, ok := scalarType(t)
	if !ok {
		return core.ColumnDesc{}, false
	}
	return core.ColumnDesc{Name: name, Type: tag, Shape: shape}, true
}

func scalarType(t string) (string, bool) {
	if i := strings.IndexByte(t, '('); i >= 0 {
		switch base := strings.TrimSpace(t[:i]); base {
		case "STRUCT", "MAP", "UNION":
			return "", false
		case "DECIMAL", "NUMERIC":
			return core.TypeFloat64, true
		default:
			t = base
		}
	}
	switch t {
	case "BOOLEAN", "BOOL":
		return core.TypeBool, true
	case "TINYINT":
		return core.TypeInt8, true
	case "SMALLINT":
		return core.TypeInt16, true
	case "INTEGER", "INT":
		return core.TypeInt32, true
	case "BIGINT", "HUGEINT":
		return core.TypeInt64, true
	case "UTINYINT":
		return core.TypeUint8, true
	case "USMALLINT":
		return core.TypeUint16, true
	case "UINTEGER":
		return core.TypeUint32, true
	case "UBIGINT", "UHUGEINT":
		return core.TypeUint64, true
	case "FLOAT", "REAL":
		return core.TypeFloat32, true
	case "DOUBLE", "DECIMAL":
		return core.TypeFloat64, true
	case "BLOB", "BYTEA":
		return core.TypeBytes, true
	case "DATE", "TIME", "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE",
		"TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS":
		return core.TypeTime, true
	}
	return core.TypeString, true
}

// uuidText renders a UUID column value, which the driver returns as raw
// bytes.
func uuidText(v any) any {
	if b, ok := v.([]byte); ok && len(b) == 16 {
		if id, err := uuid.FromBytes(b); err == nil {
			return id.String()
		}
	}
	return v
}

// plain replaces driver specific values by ones core.ConvertCell accepts.
func plain(v any) any {
	switch x := v.(type) {
	case duckdb.Decimal:
		return x.Float64()
	case *big.Int:
		if x == nil {
			return nil
		}
		if x.IsInt64() {
			return x.Int64()
		}
		return x.String()
	case duckdb.Interval:
		return fmt.Sprintf("%d months %d days %d us", x.Months, x.Days, x.Micros)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = plain(item)
		}
		return out
	}
	return v
}
