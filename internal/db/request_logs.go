package db

import (
	"fmt"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

// InsertRequestLog persists one drained RequestPerfEvent as a durable
// request_logs row.
func (s *Store) InsertRequestLog(e models.RequestPerfEvent) error {
	const q = `INSERT INTO request_logs (user_id, model, path, method, status, is_stream, latency_ms, total_cost, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.DB.Exec(q, e.UserID, e.Model, e.Path, e.Method, e.Status, e.IsStream, e.LatencyMs, 0, e.StartedAt, e.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// RecentRequestLogs returns the most recent request_logs rows, newest first,
// capped at limit.
func (s *Store) RecentRequestLogs(limit int) ([]models.RequestLog, error) {
	const q = `SELECT id, user_id, model, path, method, status, is_stream, latency_ms, total_cost, started_at, completed_at
		FROM request_logs ORDER BY started_at DESC LIMIT $1`
	rows, err := s.DB.Query(q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent request logs: %w", err)
	}
	defer rows.Close()

	var out []models.RequestLog
	for rows.Next() {
		var r models.RequestLog
		if err := rows.Scan(&r.ID, &r.UserID, &r.Model, &r.Path, &r.Method, &r.Status, &r.IsStream, &r.LatencyMs, &r.TotalCost, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PerformanceStats summarizes request_logs latency over the trailing 24h.
type PerformanceStats struct {
	AvgLatencyMs int64
	P50LatencyMs int64
	P95LatencyMs int64
	P99LatencyMs int64
	MaxLatencyMs int64
	SampleCount  int64
}

// PerformanceStats computes latency percentiles by exact rank over the
// trailing 24h of request_logs, matching request_logs' (started_at DESC)
// index so the ordering scan stays cheap.
func (s *Store) PerformanceStats() (PerformanceStats, error) {
	var p PerformanceStats
	err := s.DB.QueryRow(`SELECT
			COUNT(*),
			COALESCE(AVG(latency_ms), 0)::bigint,
			COALESCE(MAX(latency_ms), 0),
			COALESCE(PERCENTILE_DISC(0.5) WITHIN GROUP (ORDER BY latency_ms), 0),
			COALESCE(PERCENTILE_DISC(0.95) WITHIN GROUP (ORDER BY latency_ms), 0),
			COALESCE(PERCENTILE_DISC(0.99) WITHIN GROUP (ORDER BY latency_ms), 0)
		FROM request_logs WHERE started_at >= now() - interval '24 hours'`).
		Scan(&p.SampleCount, &p.AvgLatencyMs, &p.MaxLatencyMs, &p.P50LatencyMs, &p.P95LatencyMs, &p.P99LatencyMs)
	if err != nil {
		return p, fmt.Errorf("performance stats: %w", err)
	}
	return p, nil
}
