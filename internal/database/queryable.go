package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Queryable is the subset of sqlx operations shared by both *sqlx.DB and
// *sqlx.Tx. Store methods accept this interface so that callers can decide
// whether an operation participates in a wider transaction.
type Queryable interface {
	Exec(query string, args ...any) (sql.Result, error)
	NamedExec(query string, arg any) (sql.Result, error)
	Get(dest any, query string, args ...any) error
	Select(dest any, query string, args ...any) error
	Rebind(query string) string
}

// JsonColumn wraps an arbitrary Go value so that it can be scanned from, and
// stored to, a Postgres JSONB column via database/sql.
type JsonColumn[T any] struct {
	val *T
}

func NewJsonColumn[T any](val T) JsonColumn[T] {
	return JsonColumn[T]{val: &val}
}

func (j *JsonColumn[T]) Get() *T { return j.val }

func (j *JsonColumn[T]) Scan(src any) error {
	if src == nil {
		j.val = nil
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JsonColumn", src)
	}

	val := new(T)
	if err := json.Unmarshal(raw, val); err != nil {
		return err
	}

	j.val = val
	return nil
}

func (j JsonColumn[T]) Value() (driver.Value, error) {
	if j.val == nil {
		return []byte("null"), nil
	}

	return json.Marshal(j.val)
}
