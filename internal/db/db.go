// Package db implements the AuditStore: a durable relational store for
// policies, users, group_policies, usage_logs, request_logs, and
// system_config. Grounded on shared/db/init.go's exists-check-then-create
// schema bootstrap and shared/db/operations.go's query/scan-into-struct
// shape.
package db

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaFS embed.FS

// Store wraps a *sql.DB with the AuditStore's CRUD and aggregate queries.
type Store struct {
	DB *sql.DB
}

// Open connects to Postgres using dsn and ensures the AuditStore schema
// exists, mirroring shared/db/init.go's InitDB/initializeSchema pair.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping audit store: %w", err)
	}
	s := &Store{DB: conn}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	var exists bool
	query := `SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name = 'policies'
	)`
	if err := s.DB.QueryRow(query).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(string(schemaSQL))
	return err
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping reports whether the store is reachable, used by the /admin/health
// check.
func (s *Store) Ping() error {
	return s.DB.Ping()
}
