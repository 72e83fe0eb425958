package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

// ErrDefaultPolicyImmutable is returned when a caller attempts to delete
// the "default" policy, which must always exist as the fallback policy.
var ErrDefaultPolicyImmutable = errors.New("default policy cannot be deleted")

// GetPolicy fetches a single policy by id.
func (s *Store) GetPolicy(id string) (*models.Policy, error) {
	const q = `SELECT id, name, daily_token_limit, monthly_token_limit, allowed_models, created_at
		FROM policies WHERE id = $1`
	var p models.Policy
	err := s.DB.QueryRow(q, id).Scan(&p.ID, &p.Name, &p.DailyTokenLimit, &p.MonthlyTokenLimit, &p.AllowedModels, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy %s: %w", id, err)
	}
	return &p, nil
}

// ListPolicies returns every policy, ordered by id.
func (s *Store) ListPolicies() ([]models.Policy, error) {
	const q = `SELECT id, name, daily_token_limit, monthly_token_limit, allowed_models, created_at
		FROM policies ORDER BY id`
	rows, err := s.DB.Query(q)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []models.Policy
	for rows.Next() {
		var p models.Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.DailyTokenLimit, &p.MonthlyTokenLimit, &p.AllowedModels, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPolicy inserts a new policy or updates it in place when the id
// already exists.
func (s *Store) UpsertPolicy(p models.Policy) error {
	const q = `INSERT INTO policies (id, name, daily_token_limit, monthly_token_limit, allowed_models)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			daily_token_limit = EXCLUDED.daily_token_limit,
			monthly_token_limit = EXCLUDED.monthly_token_limit,
			allowed_models = EXCLUDED.allowed_models`
	_, err := s.DB.Exec(q, p.ID, p.Name, p.DailyTokenLimit, p.MonthlyTokenLimit, p.AllowedModels)
	if err != nil {
		return fmt.Errorf("upsert policy %s: %w", p.ID, err)
	}
	return nil
}

// DeletePolicy removes a policy by id. Deleting "default" is a no-op
// reported to the caller via ErrDefaultPolicyImmutable.
func (s *Store) DeletePolicy(id string) error {
	if id == models.DefaultPolicyID {
		return ErrDefaultPolicyImmutable
	}
	_, err := s.DB.Exec(`DELETE FROM policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete policy %s: %w", id, err)
	}
	return nil
}
