package db

import (
	"fmt"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

// InsertUsageLog persists one drained UsageEvent as a durable usage_logs row.
func (s *Store) InsertUsageLog(e models.UsageEvent) error {
	const q = `INSERT INTO usage_logs (user_id, model, prompt_tokens, completion_tokens, total_tokens, total_cost, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.DB.Exec(q, e.UserID, e.Model, e.PromptTokens, e.CompletionTokens, e.TotalTokens, e.TotalCost, e.Ts)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

// RecentUsageLogs returns the most recently recorded usage_logs rows, newest
// first, capped at limit.
func (s *Store) RecentUsageLogs(limit int) ([]models.UsageLog, error) {
	const q = `SELECT id, user_id, model, prompt_tokens, completion_tokens, total_tokens, total_cost, ts
		FROM usage_logs ORDER BY ts DESC LIMIT $1`
	rows, err := s.DB.Query(q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent usage logs: %w", err)
	}
	defer rows.Close()

	var out []models.UsageLog
	for rows.Next() {
		var u models.UsageLog
		if err := rows.Scan(&u.ID, &u.UserID, &u.Model, &u.PromptTokens, &u.CompletionTokens, &u.TotalTokens, &u.TotalCost, &u.Ts); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UsageTotals summarizes usage_logs, both all-time and in the trailing 24h.
type UsageTotals struct {
	TotalTokens     int64
	TotalCost       float64
	Last24hTokens   int64
	Last24hCost     float64
	TopModels       []ModelCount
	TopUsers        []UserCount
}

// ModelCount pairs a model name with an aggregate token count.
type ModelCount struct {
	Model  string
	Tokens int64
}

// UserCount pairs a user id with an aggregate token count.
type UserCount struct {
	UserID string
	Tokens int64
}

// UsageStats computes the aggregate figures GET /admin/stats reports.
func (s *Store) UsageStats() (UsageTotals, error) {
	var t UsageTotals

	err := s.DB.QueryRow(`SELECT COALESCE(SUM(total_tokens),0), COALESCE(SUM(total_cost),0) FROM usage_logs`).
		Scan(&t.TotalTokens, &t.TotalCost)
	if err != nil {
		return t, fmt.Errorf("usage stats totals: %w", err)
	}

	err = s.DB.QueryRow(`SELECT COALESCE(SUM(total_tokens),0), COALESCE(SUM(total_cost),0)
		FROM usage_logs WHERE ts >= now() - interval '24 hours'`).
		Scan(&t.Last24hTokens, &t.Last24hCost)
	if err != nil {
		return t, fmt.Errorf("usage stats 24h: %w", err)
	}

	modelRows, err := s.DB.Query(`SELECT model, SUM(total_tokens) AS tok FROM usage_logs
		WHERE ts >= now() - interval '24 hours'
		GROUP BY model ORDER BY tok DESC LIMIT 5`)
	if err != nil {
		return t, fmt.Errorf("usage stats top models: %w", err)
	}
	defer modelRows.Close()
	for modelRows.Next() {
		var m ModelCount
		if err := modelRows.Scan(&m.Model, &m.Tokens); err != nil {
			return t, err
		}
		t.TopModels = append(t.TopModels, m)
	}
	if err := modelRows.Err(); err != nil {
		return t, err
	}

	userRows, err := s.DB.Query(`SELECT user_id, SUM(total_tokens) AS tok FROM usage_logs
		WHERE ts >= now() - interval '24 hours'
		GROUP BY user_id ORDER BY tok DESC LIMIT 5`)
	if err != nil {
		return t, fmt.Errorf("usage stats top users: %w", err)
	}
	defer userRows.Close()
	for userRows.Next() {
		var u UserCount
		if err := userRows.Scan(&u.UserID, &u.Tokens); err != nil {
			return t, err
		}
		t.TopUsers = append(t.TopUsers, u)
	}
	return t, userRows.Err()
}
