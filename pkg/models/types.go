// Package models contains domain models for crm-assistant.
package models

import (
	"database/sql/driver"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/lib/pq"
)

// JSONInt64Array holds an ordered list of ids stored either as a JSON array
// (json/jsonb columns) or as a PostgreSQL array literal (bigint[] columns).
type JSONInt64Array []int64

// Scan implements sql.Scanner for JSONInt64Array.
func (j *JSONInt64Array) Scan(src interface{}) error {
	data, err := scanBytes("JSONInt64Array", src)
	if err != nil {
		return err
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*j = nil
		return nil
	}

	// {1,2,3} is the PostgreSQL array text format
	if strings.HasPrefix(trimmed, "{") {
		var arr pq.Int64Array
		if err := arr.Scan(trimmed); err != nil {
			return fmt.Errorf("JSONInt64Array: %w", err)
		}
		*j = JSONInt64Array(arr)
		return nil
	}

	var ids []int64
	if err := json.Unmarshal([]byte(trimmed), &ids); err != nil {
		return fmt.Errorf("JSONInt64Array: %w", err)
	}
	*j = ids
	return nil
}

// Value implements driver.Valuer for JSONInt64Array.
func (j JSONInt64Array) Value() (driver.Value, error) {
	if j == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(j))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanBytes(typeName string, src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", typeName, src)
	}
}
