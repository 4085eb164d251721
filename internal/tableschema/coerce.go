// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package tableschema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are the accepted input formats for timestamp columns,
// tried in order. Outputs are always normalized to UTC RFC3339.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CoerceRow converts a raw row to the descriptor's declared schema. Columns
// not present in the row come out as nil; columns the descriptor does not
// declare are dropped. A conversion failure on any declared column fails
// the whole row.
func (d *Descriptor) CoerceRow(row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(d.Columns))
	for _, col := range d.Columns {
		v, ok := row[col.Name]
		if !ok || v == nil {
			out[col.Name] = nil
			continue
		}
		cv, err := coerceValue(col.Type, v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		out[col.Name] = cv
	}
	return out, nil
}

func coerceValue(t ColumnType, v any) (any, error) {
	switch t {
	case TypeString:
		return coerceString(v), nil
	case TypeInt64:
		return coerceInt64(v)
	case TypeFloat64:
		return coerceFloat64(v)
	case TypeTimestamp:
		return coerceTimestamp(v)
	}
	return nil, fmt.Errorf("unsupported column type %q", t)
}

func coerceString(v any) any {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func coerceInt64(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return nil, fmt.Errorf("value %v is not integral", n)
		}
		return int64(n), nil
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return nil, nil
		}
		i, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not an integer", n)
		}
		return i, nil
	}
	return nil, fmt.Errorf("cannot convert %T to int64", v)
}

func coerceFloat64(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case string:
		trimmed := strings.TrimSpace(n)
		if trimmed == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", n)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %T to float64", v)
}

// coerceTimestamp normalizes to a UTC RFC3339 string. Integer inputs are
// treated as epoch seconds, or epoch milliseconds when large enough.
func coerceTimestamp(v any) (any, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC().Format(time.RFC3339), nil
	case int64:
		return epochToUTC(ts), nil
	case int:
		return epochToUTC(int64(ts)), nil
	case float64:
		return epochToUTC(int64(ts)), nil
	case string:
		trimmed := strings.TrimSpace(ts)
		if trimmed == "" {
			return nil, nil
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, trimmed); err == nil {
				return parsed.UTC().Format(time.RFC3339), nil
			}
		}
		return nil, fmt.Errorf("value %q is not a recognized timestamp", ts)
	}
	return nil, fmt.Errorf("cannot convert %T to timestamp", v)
}

func epochToUTC(n int64) string {
	// Heuristic: values past the year 33658 in seconds are milliseconds.
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n).UTC().Format(time.RFC3339)
	}
	return time.Unix(n, 0).UTC().Format(time.RFC3339)
}
