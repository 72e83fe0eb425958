package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

// GetUser fetches a user row by id, returning (nil, nil) when absent.
func (s *Store) GetUser(id string) (*models.User, error) {
	const q = `SELECT id, is_active, policy_id, created_at FROM users WHERE id = $1`
	var u models.User
	var isActive int
	err := s.DB.QueryRow(q, id).Scan(&u.ID, &isActive, &u.PolicyID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	u.IsActive = isActive != 0
	return &u, nil
}

// ListUsers returns every user, ordered by id.
func (s *Store) ListUsers() ([]models.User, error) {
	const q = `SELECT id, is_active, policy_id, created_at FROM users ORDER BY id`
	rows, err := s.DB.Query(q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		var isActive int
		if err := rows.Scan(&u.ID, &isActive, &u.PolicyID, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.IsActive = isActive != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

// EnsureUser inserts a user row defaulted to the default policy and active
// status if one does not already exist, used to lazily auto-provision a
// caller identity resolved by the proxy on first contact.
func (s *Store) EnsureUser(id string) error {
	const q = `INSERT INTO users (id, is_active, policy_id)
		VALUES ($1, 1, $2)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.DB.Exec(q, id, models.DefaultPolicyID)
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", id, err)
	}
	return nil
}

// UpdateUser patches is_active and policy_id for an existing user.
func (s *Store) UpdateUser(id string, isActive bool, policyID string) error {
	active := 0
	if isActive {
		active = 1
	}
	const q = `UPDATE users SET is_active = $2, policy_id = $3 WHERE id = $1`
	res, err := s.DB.Exec(q, id, active, policyID)
	if err != nil {
		return fmt.Errorf("update user %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update user %s: %w", id, sql.ErrNoRows)
	}
	return nil
}
