// Package models contains the shared data-model structs for the gateway:
// policies, users, group policies, usage/request logs, and system config.
package models

import "time"

// UnlimitedLimit is the sentinel daily/monthly token limit meaning "no cap".
const UnlimitedLimit = -1

// AllModelsWildcard is the allowed_models value meaning "every model".
const AllModelsWildcard = "*"

// DefaultPolicyID is the id of the policy that must always exist and can
// never be deleted.
const DefaultPolicyID = "default"

// Policy is an administrator-defined quota and model-allowlist.
type Policy struct {
	ID                string    `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	DailyTokenLimit   int64     `json:"daily_token_limit" db:"daily_token_limit"`
	MonthlyTokenLimit int64     `json:"monthly_token_limit" db:"monthly_token_limit"`
	AllowedModels     string    `json:"allowed_models" db:"allowed_models"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// AllowsModel reports whether the policy's allowlist permits the given model.
func (p Policy) AllowsModel(model string) bool {
	if p.AllowedModels == "" || p.AllowedModels == AllModelsWildcard {
		return true
	}
	for _, m := range splitCSV(p.AllowedModels) {
		if m == model {
			return true
		}
	}
	return false
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, trimSpace(s[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

// User is an end user identified by a normalized email or opaque id.
type User struct {
	ID        string    `json:"id" db:"id"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	PolicyID  string    `json:"policy_id" db:"policy_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// GroupPolicy maps an external group name to a policy, with a priority used
// to break ties when a user belongs to more than one mapped group.
type GroupPolicy struct {
	GroupName string    `json:"group_name" db:"group_name"`
	PolicyID  string    `json:"policy_id" db:"policy_id"`
	Priority  int       `json:"priority" db:"priority"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UsageLog is one append-only row per completed inference.
type UsageLog struct {
	ID               int64     `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	Model            string    `json:"model" db:"model"`
	PromptTokens     int64     `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens" db:"total_tokens"`
	TotalCost        float64   `json:"total_cost" db:"total_cost"`
	Ts               time.Time `json:"ts" db:"ts"`
}

// RequestLog is one append-only row per proxied request.
type RequestLog struct {
	ID           int64     `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Model        string    `json:"model" db:"model"`
	Path         string    `json:"path" db:"path"`
	Method       string    `json:"method" db:"method"`
	Status       int       `json:"status" db:"status"`
	IsStream     bool      `json:"is_stream" db:"is_stream"`
	LatencyMs    int64     `json:"latency_ms" db:"latency_ms"`
	TotalCost    float64   `json:"total_cost" db:"total_cost"`
	StartedAt    time.Time `json:"started_at" db:"started_at"`
	CompletedAt  time.Time `json:"completed_at" db:"completed_at"`
}

// SystemConfigRow is one row of the durable runtime configuration table.
type SystemConfigRow struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UsageEvent is the payload pushed onto the durable usage_queue list.
type UsageEvent struct {
	UserID           string    `json:"user_id"`
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	TotalCost        float64   `json:"total_cost"`
	Ts               time.Time `json:"ts"`
}

// RequestPerfEvent is the payload pushed onto the durable
// request_perf_queue list.
type RequestPerfEvent struct {
	UserID      string    `json:"user_id"`
	Model       string    `json:"model"`
	Path        string    `json:"path"`
	Method      string    `json:"method"`
	Status      int       `json:"status"`
	IsStream    bool      `json:"is_stream"`
	LatencyMs   int64     `json:"latency_ms"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}
