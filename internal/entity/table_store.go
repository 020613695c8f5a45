package entity

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var validColumnName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// tableStore is the shared Store implementation: rows keyed by
// (user_id, id), mutations built field-wise from the JSON payload, deletes
// soft via deleted_at.
type tableStore struct {
	table string
}

func (s *tableStore) Apply(tx *sql.Tx, userID, entityID, operation string, payload json.RawMessage, at time.Time) error {
	if entityID == "" {
		return fmt.Errorf("empty entity id for %q on %s", operation, s.table)
	}

	switch operation {
	case "create", "update":
		return s.upsert(tx, userID, entityID, payload)
	case "delete":
		return s.softDelete(tx, userID, entityID, at)
	default:
		return fmt.Errorf("unknown operation: %q", operation)
	}
}

// upsert inserts or replaces a row using the JSON payload fields as columns.
func (s *tableStore) upsert(tx *sql.Tx, userID, entityID string, payload json.RawMessage) error {
	if payload == nil {
		return fmt.Errorf("upsert %s/%s: nil payload", s.table, entityID)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("upsert %s/%s: unmarshal payload: %w", s.table, entityID, err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("upsert %s/%s: payload has no fields", s.table, entityID)
	}

	fields["id"] = entityID
	fields["user_id"] = userID
	normalizeFields(fields)

	cols, placeholders, vals, err := buildInsert(fields)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", s.table, entityID, err)
	}

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", s.table, cols, placeholders)
	if _, err := tx.Exec(query, vals...); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", s.table, entityID, err)
	}
	return nil
}

// softDelete sets deleted_at on the row. No-op if the row does not exist.
func (s *tableStore) softDelete(tx *sql.Tx, userID, entityID string, at time.Time) error {
	query := fmt.Sprintf("UPDATE %s SET deleted_at = ? WHERE user_id = ? AND id = ?", s.table)
	if _, err := tx.Exec(query, at, userID, entityID); err != nil {
		return fmt.Errorf("soft delete %s/%s: %w", s.table, entityID, err)
	}
	return nil
}

func (s *tableStore) Snapshot(tx *sql.Tx, userID, entityID string) (json.RawMessage, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE user_id = ? AND id = ? AND deleted_at IS NULL", s.table)
	rows, err := tx.Query(query, userID, entityID)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s/%s: %w", s.table, entityID, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s/%s: columns: %w", s.table, entityID, err)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("snapshot %s/%s: %w", s.table, entityID, err)
		}
		return nil, nil
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("snapshot %s/%s: scan: %w", s.table, entityID, err)
	}

	rowMap := make(map[string]any, len(cols))
	for i, c := range cols {
		if b, ok := vals[i].([]byte); ok {
			rowMap[c] = string(b)
		} else {
			rowMap[c] = vals[i]
		}
	}

	data, err := json.Marshal(rowMap)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s/%s: marshal: %w", s.table, entityID, err)
	}
	return data, nil
}

// buildInsert sorts fields alphabetically and returns column list,
// placeholders, and values. Rejects keys that are not valid column names.
func buildInsert(fields map[string]any) (cols string, placeholders string, vals []any, err error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !validColumnName.MatchString(k) {
			return "", "", nil, fmt.Errorf("invalid column name: %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ph := make([]string, len(keys))
	vals = make([]any, len(keys))
	for i, k := range keys {
		ph[i] = "?"
		vals[i] = fields[k]
	}

	cols = strings.Join(keys, ", ")
	placeholders = strings.Join(ph, ", ")
	return
}

// normalizeFields converts non-scalar payload values to JSON strings so they
// fit TEXT columns.
func normalizeFields(fields map[string]any) {
	for k, v := range fields {
		switch val := v.(type) {
		case []any, map[string]any:
			data, err := json.Marshal(val)
			if err != nil {
				fields[k] = "null"
			} else {
				fields[k] = string(data)
			}
		case json.RawMessage:
			fields[k] = string(val)
		}
	}
}
