package db

import (
	"fmt"
	"time"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

// ListSystemConfig returns every persisted system_config row.
func (s *Store) ListSystemConfig() ([]models.SystemConfigRow, error) {
	const q = `SELECT key, value, updated_at FROM system_config ORDER BY key`
	rows, err := s.DB.Query(q)
	if err != nil {
		return nil, fmt.Errorf("list system config: %w", err)
	}
	defer rows.Close()

	var out []models.SystemConfigRow
	for rows.Next() {
		var r models.SystemConfigRow
		if err := rows.Scan(&r.Key, &r.Value, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertSystemConfig writes or replaces a single config key/value pair,
// stamping updated_at so GET /admin/config can report last-changed time.
func (s *Store) UpsertSystemConfig(key, value string) error {
	const q = `INSERT INTO system_config (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	_, err := s.DB.Exec(q, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert system config %s: %w", key, err)
	}
	return nil
}

// UpsertSystemConfigBatch writes multiple config keys atomically inside one
// transaction, used by the config POST handler to apply a whole update set
// or none of it.
func (s *Store) UpsertSystemConfigBatch(values map[string]string) error {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("begin system config batch: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	const q = `INSERT INTO system_config (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	for k, v := range values {
		if _, err := tx.Exec(q, k, v, now); err != nil {
			return fmt.Errorf("upsert system config %s: %w", k, err)
		}
	}
	return tx.Commit()
}
