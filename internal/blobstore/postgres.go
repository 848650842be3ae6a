package blobstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/joao-fontenele/printstore/internal/docstore"
)

type PGStore struct {
	conn    *docstore.Conn
	baseURL string
}

func NewPGStore(conn *docstore.Conn, baseURL string) *PGStore {
	return &PGStore{conn: conn, baseURL: baseURL}
}

func (s *PGStore) Put(ctx context.Context, path, contentType string, data []byte) (string, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return "", err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO blobs (path, content_type, data, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (path) DO UPDATE
		SET content_type = EXCLUDED.content_type, data = EXCLUDED.data, created_at = NOW()
	`, path, contentType, data)
	if err != nil {
		return "", err
	}

	return PublicURL(s.baseURL, path), nil
}

func (s *PGStore) Get(ctx context.Context, path string) (*Object, error) {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return nil, err
	}

	obj := &Object{Path: path}
	err = db.QueryRowContext(ctx, `
		SELECT content_type, data FROM blobs WHERE path = $1
	`, path).Scan(&obj.ContentType, &obj.Data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return obj, nil
}

func (s *PGStore) Delete(ctx context.Context, path string) error {
	db, err := s.conn.DB(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `DELETE FROM blobs WHERE path = $1`, path)
	return err
}
