package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/cache"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/config"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/db"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

type fakeAudit struct {
	users         map[string]*models.User
	policies      map[string]*models.Policy
	groupPolicies []models.GroupPolicy
	systemConfig  []models.SystemConfigRow
	deleteErr     error
	pingErr       error
	batchApplied  map[string]string
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{
		users:    map[string]*models.User{},
		policies: map[string]*models.Policy{"default": {ID: "default", Name: "Default Policy", DailyTokenLimit: -1, MonthlyTokenLimit: -1, AllowedModels: "*"}},
	}
}

func (f *fakeAudit) GetUser(id string) (*models.User, error) { return f.users[id], nil }
func (f *fakeAudit) ListUsers() ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}
func (f *fakeAudit) UpdateUser(id string, isActive bool, policyID string) error {
	u, ok := f.users[id]
	if !ok {
		return errors.New("not found")
	}
	u.IsActive = isActive
	u.PolicyID = policyID
	return nil
}

func (f *fakeAudit) GetPolicy(id string) (*models.Policy, error) { return f.policies[id], nil }
func (f *fakeAudit) ListPolicies() ([]models.Policy, error) {
	var out []models.Policy
	for _, p := range f.policies {
		out = append(out, *p)
	}
	return out, nil
}
func (f *fakeAudit) UpsertPolicy(p models.Policy) error {
	f.policies[p.ID] = &p
	return nil
}
func (f *fakeAudit) DeletePolicy(id string) error {
	if id == models.DefaultPolicyID {
		return db.ErrDefaultPolicyImmutable
	}
	delete(f.policies, id)
	return f.deleteErr
}

func (f *fakeAudit) ListGroupPolicies() ([]models.GroupPolicy, error) { return f.groupPolicies, nil }
func (f *fakeAudit) UpsertGroupPolicy(g models.GroupPolicy) error {
	f.groupPolicies = append(f.groupPolicies, g)
	return nil
}
func (f *fakeAudit) DeleteGroupPolicy(name string) error { return nil }

func (f *fakeAudit) RecentUsageLogs(limit int) ([]models.UsageLog, error) { return nil, nil }
func (f *fakeAudit) UsageStats() (db.UsageTotals, error)                 { return db.UsageTotals{}, nil }

func (f *fakeAudit) RecentRequestLogs(limit int) ([]models.RequestLog, error) { return nil, nil }
func (f *fakeAudit) PerformanceStats() (db.PerformanceStats, error)          { return db.PerformanceStats{}, nil }

func (f *fakeAudit) ListSystemConfig() ([]models.SystemConfigRow, error) { return f.systemConfig, nil }
func (f *fakeAudit) UpsertSystemConfigBatch(values map[string]string) error {
	f.batchApplied = values
	return nil
}

func (f *fakeAudit) Ping() error { return f.pingErr }

type fakeGroups struct {
	groups map[string][]string
	all    []string
	err    error
}

func (f *fakeGroups) GroupsForUser(userID string) ([]string, error) { return f.groups[userID], f.err }
func (f *fakeGroups) ListGroups() ([]string, error)                 { return f.all, f.err }
func (f *fakeGroups) Ping() error                                   { return f.err }

type fakeQueue struct{}

func (f *fakeQueue) Ping(ctx context.Context) error { return nil }
func (f *fakeQueue) QueueDepth(ctx context.Context, key string) (int64, error) { return 0, nil }

type fakeBus struct{ published []string }

func (f *fakeBus) Publish(ctx context.Context, changed []string) error {
	f.published = changed
	return nil
}

func newTestSurface() (*Surface, *fakeAudit, *fakeBus) {
	gin.SetMode(gin.TestMode)
	audit := newFakeAudit()
	groups := &fakeGroups{groups: map[string][]string{}}
	bus := &fakeBus{}
	runtime := config.NewRuntime()
	runtime.Reload(map[string]string{"ADMIN_API_KEY": "secret"})
	s := New(audit, groups, &fakeQueue{}, bus, cache.New(), runtime)
	return s, audit, bus
}

func TestDeleteDefaultPolicyIsNoOp(t *testing.T) {
	s, _, _ := newTestSurface()
	r := gin.New()
	grp := r.Group("/admin")
	s.Register(grp)

	req := httptest.NewRequest(http.MethodDelete, "/admin/policies/default", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] {
		t.Fatal("expected success=false for default policy deletion")
	}
}

func TestUpsertPolicyThenListReflectsChange(t *testing.T) {
	s, _, _ := newTestSurface()
	r := gin.New()
	grp := r.Group("/admin")
	s.Register(grp)

	body := `{"id":"premium","name":"Premium","daily_token_limit":1000,"monthly_token_limit":-1,"allowed_models":"*"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/policies", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from upsert, got %d body=%s", w.Code, w.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/admin/policies", nil)
	listW := httptest.NewRecorder()
	r.ServeHTTP(listW, listReq)

	var policies []models.Policy
	if err := json.Unmarshal(listW.Body.Bytes(), &policies); err != nil {
		t.Fatalf("decode policies: %v", err)
	}
	found := false
	for _, p := range policies {
		if p.ID == "premium" && p.DailyTokenLimit == 1000 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected premium policy in list, got %+v", policies)
	}
}

func TestPatchUserInvalidatesCache(t *testing.T) {
	s, audit, _ := newTestSurface()
	audit.users["a@x.com"] = &models.User{ID: "a@x.com", IsActive: true, PolicyID: "default"}
	s.Cache.PutUser("a@x.com", *audit.users["a@x.com"])

	r := gin.New()
	grp := r.Group("/admin")
	s.Register(grp)

	body := `{"is_active":false}`
	req := httptest.NewRequest(http.MethodPatch, "/admin/users/a@x.com", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if _, ok := s.Cache.GetUser("a@x.com"); ok {
		t.Fatal("expected cache entry invalidated after patch")
	}
	if audit.users["a@x.com"].IsActive {
		t.Fatal("expected user deactivated")
	}
}

func TestPostConfigRejectsBlankedRequiredKey(t *testing.T) {
	s, audit, _ := newTestSurface()
	for _, k := range config.RequiredKeys {
		audit.systemConfig = append(audit.systemConfig, models.SystemConfigRow{Key: k, Value: "v", UpdatedAt: time.Now()})
	}

	r := gin.New()
	grp := r.Group("/admin")
	s.Register(grp)

	body := `{"config":{"OPENROUTER_API_KEY":""}}`
	req := httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestPostConfigSuccessPublishesChangeAndPersists(t *testing.T) {
	s, audit, bus := newTestSurface()
	for _, k := range config.RequiredKeys {
		audit.systemConfig = append(audit.systemConfig, models.SystemConfigRow{Key: k, Value: "v", UpdatedAt: time.Now()})
	}

	r := gin.New()
	grp := r.Group("/admin")
	s.Register(grp)

	body := `{"config":{"LOG_MODE":"off"}}`
	req := httptest.NewRequest(http.MethodPost, "/admin/config", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if len(bus.published) != 1 || bus.published[0] != "LOG_MODE" {
		t.Fatalf("expected LOG_MODE published, got %v", bus.published)
	}
	if audit.batchApplied["LOG_MODE"] != "off" {
		t.Fatalf("expected LOG_MODE=off persisted, got %v", audit.batchApplied)
	}
	if v, _ := s.Runtime.Get("LOG_MODE"); v != "off" {
		t.Fatalf("expected runtime reloaded with LOG_MODE=off, got %q", v)
	}
}

func TestHealthDegradedWhenAuditStoreDown(t *testing.T) {
	s, audit, _ := newTestSurface()
	audit.pingErr = errors.New("connection refused")

	r := gin.New()
	grp := r.Group("/admin")
	s.Register(grp)

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp["status"] != "degraded" {
		t.Fatalf("expected degraded status, got %v", resp["status"])
	}
}

func TestSystemLogsReturnsRingBuffer(t *testing.T) {
	s, _, _ := newTestSurface()
	r := gin.New()
	grp := r.Group("/admin")
	s.Register(grp)

	req := httptest.NewRequest(http.MethodGet, "/admin/system-logs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
