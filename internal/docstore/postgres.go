package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PGCollection stores documents as JSONB rows:
//
//	CREATE TABLE <name> (id TEXT PRIMARY KEY, doc JSONB NOT NULL, created_at, updated_at)
type PGCollection[T any] struct {
	conn  *Conn
	table string
}

func NewPGCollection[T any](conn *Conn, name string) *PGCollection[T] {
	return &PGCollection[T]{
		conn:  conn,
		table: pq.QuoteIdentifier(name),
	}
}

func (c *PGCollection[T]) Insert(ctx context.Context, id string, doc *T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	db, err := c.conn.DB(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, doc, created_at, updated_at)
		VALUES ($1, $2::jsonb, NOW(), NOW())
	`, c.table), id, string(data))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w %q", ErrDuplicate, id)
	}
	return err
}

func (c *PGCollection[T]) Get(ctx context.Context, id string) (*T, error) {
	db, err := c.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT doc FROM %s WHERE id = $1
	`, c.table), id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return decode[T](data)
}

func (c *PGCollection[T]) List(ctx context.Context) ([]T, error) {
	return c.query(ctx, fmt.Sprintf(`
		SELECT doc FROM %s ORDER BY created_at DESC
	`, c.table))
}

func (c *PGCollection[T]) Find(ctx context.Context, field, value string) ([]T, error) {
	return c.query(ctx, fmt.Sprintf(`
		SELECT doc FROM %s WHERE doc->>$1 = $2 ORDER BY created_at DESC
	`, c.table), field, value)
}

func (c *PGCollection[T]) Replace(ctx context.Context, id string, doc *T) (bool, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshal document: %w", err)
	}

	db, err := c.conn.DB(ctx)
	if err != nil {
		return false, err
	}

	result, err := db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET doc = $2::jsonb, updated_at = NOW() WHERE id = $1
	`, c.table), id, string(data))
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (c *PGCollection[T]) Update(ctx context.Context, id string, fields map[string]any) (*T, error) {
	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal update: %w", err)
	}

	return c.queryOne(ctx, fmt.Sprintf(`
		UPDATE %s SET doc = doc || $2::jsonb, updated_at = NOW()
		WHERE id = $1
		RETURNING doc
	`, c.table), id, string(patch))
}

func (c *PGCollection[T]) AddInt(ctx context.Context, id, field string, delta int) (*T, error) {
	return c.queryOne(ctx, fmt.Sprintf(`
		UPDATE %s
		SET doc = jsonb_set(doc, ARRAY[$2::text], to_jsonb(GREATEST(COALESCE((doc->>$2)::int, 0) + $3, 0))),
			updated_at = NOW()
		WHERE id = $1
		RETURNING doc
	`, c.table), id, field, delta)
}

func (c *PGCollection[T]) Delete(ctx context.Context, id string) (bool, error) {
	db, err := c.conn.DB(ctx)
	if err != nil {
		return false, err
	}

	result, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, c.table), id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (c *PGCollection[T]) queryOne(ctx context.Context, query string, args ...any) (*T, error) {
	db, err := c.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	var data []byte
	if err := db.QueryRowContext(ctx, query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return decode[T](data)
}

func (c *PGCollection[T]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	db, err := c.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := []T{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		doc, err := decode[T](data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return docs, nil
}

func decode[T any](data []byte) (*T, error) {
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &doc, nil
}
