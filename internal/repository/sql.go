package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"qmsgov/internal/database"

	"go.uber.org/zap"
)

// NewSQLStore creates repositories backed by a SQL database
func NewSQLStore(db database.Interface, logger *zap.Logger) *Store {
	return &Store{
		ChangeEvents: NewChangeEventRepository(db, logger),
		Approvals:    NewApprovalRepository(db, logger),
		Workflows:    NewWorkflowRepository(db, logger),
		Rules:        NewRuleRepository(db, logger),
		Users:        NewUserRepository(db, logger),
		Audit:        NewAuditRepository(db, logger),
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// jsonColumn encodes v for a JSON/JSONB column. Strings are used
// rather than []byte so lib/pq does not send them as bytea.
func jsonColumn(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", database.NewError(database.CodeEncode, "failed to encode column", "json", err)
	}
	return string(b), nil
}

// nullableJSON encodes v, or returns nil when empty is set
func nullableJSON(v any, empty bool) (any, error) {
	if empty {
		return nil, nil
	}
	return jsonColumn(v)
}

func decodeJSON(data []byte, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return database.NewError(database.CodeEncode, "failed to decode column", "json", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func stringArgs[T ~string](values []T) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = string(v)
	}
	return args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func checkAffected(result sql.Result, op string) (int64, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows for %s: %w", op, err)
	}
	return rows, nil
}
