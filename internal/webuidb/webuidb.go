// Package webuidb is a thin, read-only client over the external chat UI's
// own user/group tables, which the gateway never writes to. Grounded on
// internal/db's Store shape, narrowed to the three queries the gateway
// actually issues: resolve a caller identity to a user row, list that
// user's groups, and list every group name for the admin surface.
package webuidb

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// Store wraps a *sql.DB scoped to the external UI's schema.
type Store struct {
	DB *sql.DB
}

// Open connects to the external UI datastore at dsn. Unlike the AuditStore,
// no schema is bootstrapped here: these tables are owned and migrated by
// the chat UI, not the gateway.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open webui datastore: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping webui datastore: %w", err)
	}
	return &Store{DB: conn}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping reports whether the datastore is reachable, used by /admin/health.
func (s *Store) Ping() error {
	return s.DB.Ping()
}

// UserRow is a row from the external UI's user table.
type UserRow struct {
	ID    string
	Email string
}

// FindUser resolves an identity string against either the external user's
// id or email column, matching identity.Resolve's output which may be
// either depending on which header or claim produced it.
func (s *Store) FindUser(identity string) (*UserRow, error) {
	const q = `SELECT id, email FROM "user" u WHERE u.email = $1 OR u.id = $1`
	var row UserRow
	err := s.DB.QueryRow(q, identity).Scan(&row.ID, &row.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", identity, err)
	}
	return &row, nil
}

// GroupsForUser lists the group names the caller identified by identity (an
// email or external user id, matching FindUser's resolution) belongs to.
// group_member.user_id is keyed to the external UI's internal user id, not
// email, so the lookup must resolve identity through "user" the same way
// FindUser does rather than matching it directly against group_member.
func (s *Store) GroupsForUser(identity string) ([]string, error) {
	const q = `SELECT g.name FROM "group" g
		JOIN group_member gm ON gm.group_id = g.id
		JOIN "user" u ON u.id = gm.user_id
		WHERE u.email = $1 OR u.id = $1`
	rows, err := s.DB.Query(q, identity)
	if err != nil {
		return nil, fmt.Errorf("groups for user %s: %w", identity, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ListGroups returns every group name known to the external UI, used by
// GET /admin/openwebui-groups.
func (s *Store) ListGroups() ([]string, error) {
	rows, err := s.DB.Query(`SELECT name FROM "group" ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
