package store

import (
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// rowScanner abstracts pgx.Row and *sql.Row so both drivers share one set of
// scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

func newID() string {
	return uuid.New().String()
}

// paginate applies limit/offset with defaults and a hard cap.
func paginate(q sq.SelectBuilder, limit, offset int) sq.SelectBuilder {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	q = q.Limit(uint64(limit))
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	return q
}
