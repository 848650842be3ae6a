package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

type OpenFunc func(dsn string) (*sql.DB, error)

// Conn is a lazily opened database handle shared by all collections. It pings
// the pool before handing it out and replaces it when the ping fails.
type Conn struct {
	dsn    string
	open   OpenFunc
	logger *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

func NewConn(dsn string, open OpenFunc, logger *slog.Logger) *Conn {
	return &Conn{
		dsn:    dsn,
		open:   open,
		logger: logger,
	}
}

func (c *Conn) DB(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()

	if db != nil {
		err := db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		c.logger.Warn("database ping failed, reconnecting", "error", err)
	}

	return c.reconnect(ctx, db)
}

// Ping opens the connection if needed and checks it is alive.
func (c *Conn) Ping(ctx context.Context) error {
	_, err := c.DB(ctx)
	return err
}

// HandleHealth answers 200 while the database is reachable and 503 otherwise.
func (c *Conn) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.Ping(r.Context()); err != nil {
		c.logger.Warn("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (c *Conn) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	stale := c.db
	c.mu.Unlock()

	_, err := c.reconnect(ctx, stale)
	return err
}

func (c *Conn) reconnect(ctx context.Context, stale *sql.DB) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller already swapped the pool.
	if c.db != nil && c.db != stale {
		return c.db, nil
	}

	if c.db != nil {
		_ = c.db.Close()
		c.db = nil
	}

	db, err := c.open(c.dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	c.db = db
	c.logger.Info("database connection established")
	return db, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
