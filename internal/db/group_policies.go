package db

import (
	"fmt"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

// ListGroupPolicies returns every group-to-policy binding, highest priority
// first with group_name as the lexicographic tiebreak so callers can apply
// PolicyEngine's resolution order directly off the returned slice.
func (s *Store) ListGroupPolicies() ([]models.GroupPolicy, error) {
	const q = `SELECT group_name, policy_id, priority, created_at
		FROM group_policies ORDER BY priority DESC, group_name ASC`
	rows, err := s.DB.Query(q)
	if err != nil {
		return nil, fmt.Errorf("list group policies: %w", err)
	}
	defer rows.Close()

	var out []models.GroupPolicy
	for rows.Next() {
		var g models.GroupPolicy
		if err := rows.Scan(&g.GroupName, &g.PolicyID, &g.Priority, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpsertGroupPolicy inserts or updates a group's policy binding and
// priority.
func (s *Store) UpsertGroupPolicy(g models.GroupPolicy) error {
	const q = `INSERT INTO group_policies (group_name, policy_id, priority)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_name) DO UPDATE SET
			policy_id = EXCLUDED.policy_id,
			priority = EXCLUDED.priority`
	_, err := s.DB.Exec(q, g.GroupName, g.PolicyID, g.Priority)
	if err != nil {
		return fmt.Errorf("upsert group policy %s: %w", g.GroupName, err)
	}
	return nil
}

// DeleteGroupPolicy removes a group's policy binding.
func (s *Store) DeleteGroupPolicy(groupName string) error {
	_, err := s.DB.Exec(`DELETE FROM group_policies WHERE group_name = $1`, groupName)
	if err != nil {
		return fmt.Errorf("delete group policy %s: %w", groupName, err)
	}
	return nil
}
