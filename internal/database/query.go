package database

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	questionMark = regexp.MustCompile(`\?`)
	dollarParam  = regexp.MustCompile(`\$\d+`)
)

// ConvertPlaceholders converts "?" placeholders to "$1", "$2", ...
// With reverse set it converts "$n" back to "?".
func ConvertPlaceholders(query string, reverse ...bool) string {
	if len(reverse) > 0 && reverse[0] {
		return dollarParam.ReplaceAllString(query, "?")
	}

	count := 0
	return questionMark.ReplaceAllStringFunc(query, func(_ string) string {
		count++
		return fmt.Sprintf("$%d", count)
	})
}

// QueryBuilder provides SQL query building functionality
type QueryBuilder struct {
	sql      strings.Builder
	args     []any
	argIndex int
	dialect  string
	hasWhere bool
}

// NewQueryBuilder creates new query builder
func NewQueryBuilder(dialect string) *QueryBuilder {
	return &QueryBuilder{
		dialect: dialect,
		args:    make([]any, 0),
	}
}

// Reset resets the builder state
func (qb *QueryBuilder) Reset() {
	qb.sql.Reset()
	qb.args = qb.args[:0]
	qb.argIndex = 0
	qb.hasWhere = false
}

// SQL returns the built query string
func (qb *QueryBuilder) SQL() string {
	return qb.sql.String()
}

// Args returns query arguments
func (qb *QueryBuilder) Args() []any {
	return qb.args
}

// Select adds SELECT clause
func (qb *QueryBuilder) Select(cols ...string) *QueryBuilder {
	qb.sql.WriteString("SELECT ")
	qb.sql.WriteString(strings.Join(cols, ", "))
	return qb
}

// From adds FROM clause
func (qb *QueryBuilder) From(table string) *QueryBuilder {
	qb.sql.WriteString(" FROM ")
	qb.sql.WriteString(table)
	return qb
}

// Where adds WHERE condition
func (qb *QueryBuilder) Where(cond string, args ...any) *QueryBuilder {
	if !qb.hasWhere {
		qb.sql.WriteString(" WHERE ")
		qb.hasWhere = true
	} else {
		qb.sql.WriteString(" AND ")
	}

	qb.sql.WriteString(qb.bind(cond, len(args)))
	qb.args = append(qb.args, args...)
	return qb
}

// WhereIn adds a WHERE col IN (...) condition; empty values match nothing
func (qb *QueryBuilder) WhereIn(col string, values ...any) *QueryBuilder {
	if len(values) == 0 {
		return qb.Where("1 = 0")
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	return qb.Where(fmt.Sprintf("%s IN (%s)", col, marks), values...)
}

// OrderBy adds ORDER BY clause
func (qb *QueryBuilder) OrderBy(cols ...string) *QueryBuilder {
	qb.sql.WriteString(" ORDER BY ")
	qb.sql.WriteString(strings.Join(cols, ", "))
	return qb
}

// Limit adds LIMIT clause
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder {
	if limit > 0 {
		qb.sql.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}
	return qb
}

// Offset adds OFFSET clause
func (qb *QueryBuilder) Offset(offset int) *QueryBuilder {
	if offset > 0 {
		qb.sql.WriteString(fmt.Sprintf(" OFFSET %d", offset))
	}
	return qb
}

// Raw adds raw SQL
func (qb *QueryBuilder) Raw(sql string, args ...any) *QueryBuilder {
	qb.sql.WriteString(qb.bind(sql, len(args)))
	qb.args = append(qb.args, args...)
	return qb
}

// bind converts placeholders for postgres
func (qb *QueryBuilder) bind(cond string, n int) string {
	if qb.dialect != DialectPostgres {
		return cond
	}
	for i := 0; i < n; i++ {
		qb.argIndex++
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", qb.argIndex), 1)
	}
	return cond
}
