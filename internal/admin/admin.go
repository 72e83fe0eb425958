// Package admin implements AdminSurface: the authenticated JSON API for
// CRUD on policies/users/group-policies, aggregate analytics, health, and
// runtime configuration writes. Grounded on gateway/middleware/auth.go's
// AbortWithStatusJSON error-response idiom and shared/db/analytics.go's
// aggregate-query shape, generalized from an organization-scoped dashboard
// to the single-tenant admin surface this gateway exposes.
package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/cache"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/config"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/db"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/gwerrors"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/obslog"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/policy"
)

// AuditStore is the subset of internal/db.Store the admin surface reads
// and writes.
type AuditStore interface {
	GetUser(id string) (*models.User, error)
	ListUsers() ([]models.User, error)
	UpdateUser(id string, isActive bool, policyID string) error

	GetPolicy(id string) (*models.Policy, error)
	ListPolicies() ([]models.Policy, error)
	UpsertPolicy(p models.Policy) error
	DeletePolicy(id string) error

	ListGroupPolicies() ([]models.GroupPolicy, error)
	UpsertGroupPolicy(g models.GroupPolicy) error
	DeleteGroupPolicy(groupName string) error

	RecentUsageLogs(limit int) ([]models.UsageLog, error)
	UsageStats() (db.UsageTotals, error)

	RecentRequestLogs(limit int) ([]models.RequestLog, error)
	PerformanceStats() (db.PerformanceStats, error)

	ListSystemConfig() ([]models.SystemConfigRow, error)
	UpsertSystemConfigBatch(values map[string]string) error

	Ping() error
}

// ExternalGroups is the subset of internal/webuidb.Store the admin surface
// uses.
type ExternalGroups interface {
	GroupsForUser(userID string) ([]string, error)
	ListGroups() ([]string, error)
	Ping() error
}

// QueueHealth is the subset of internal/quota.Store the health check uses.
type QueueHealth interface {
	Ping(ctx context.Context) error
	QueueDepth(ctx context.Context, key string) (int64, error)
}

// ConfigPublisher is the subset of internal/configbus.Bus the config
// handler uses to fan out a change.
type ConfigPublisher interface {
	Publish(ctx context.Context, changed []string) error
}

// Surface composes the backing stores and caches the admin handlers need.
type Surface struct {
	Audit   AuditStore
	Groups  ExternalGroups
	Queue   QueueHealth
	Bus     ConfigPublisher
	Cache   *cache.Layer
	Runtime *config.Runtime
}

// New constructs an admin Surface.
func New(audit AuditStore, groups ExternalGroups, queue QueueHealth, bus ConfigPublisher, c *cache.Layer, runtime *config.Runtime) *Surface {
	return &Surface{Audit: audit, Groups: groups, Queue: queue, Bus: bus, Cache: c, Runtime: runtime}
}

// Register mounts every /admin/* route onto r.
func (s *Surface) Register(r gin.IRouter) {
	r.GET("/users", s.listUsers)
	r.PATCH("/users/:id", s.patchUser)

	r.GET("/policies", s.listPolicies)
	r.POST("/policies", s.upsertPolicy)
	r.DELETE("/policies/:id", s.deletePolicy)

	r.GET("/group-policies", s.listGroupPolicies)
	r.POST("/group-policies", s.upsertGroupPolicy)
	r.DELETE("/group-policies/:name", s.deleteGroupPolicy)

	r.GET("/openwebui-groups", s.listOpenWebUIGroups)

	r.GET("/usage", s.listUsage)
	r.GET("/stats", s.stats)
	r.GET("/performance", s.performance)
	r.GET("/health", s.health)

	r.GET("/config", s.getConfig)
	r.POST("/config", s.postConfig)

	r.GET("/system-logs", s.systemLogs)
}

type augmentedUser struct {
	models.User
	Groups            []string `json:"groups"`
	EffectivePolicyID string   `json:"effective_policy_id"`
}

func (s *Surface) listUsers(c *gin.Context) {
	users, err := s.Audit.ListUsers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}

	groupPolicies, err := s.Audit.ListGroupPolicies()
	if err != nil {
		groupPolicies = nil
	}

	out := make([]augmentedUser, 0, len(users))
	for _, u := range users {
		groups, err := s.Groups.GroupsForUser(u.ID)
		if err != nil {
			groups = nil
		}
		effective := policy.ResolveEffectivePolicy(u, groups, groupPolicies)
		out = append(out, augmentedUser{User: u, Groups: groups, EffectivePolicyID: effective})
	}
	c.JSON(http.StatusOK, out)
}

type patchUserRequest struct {
	IsActive *bool   `json:"is_active"`
	PolicyID *string `json:"policy_id"`
}

func (s *Surface) patchUser(c *gin.Context) {
	id := c.Param("id")
	var req patchUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gwerrors.Reason(gwerrors.ErrBadRequest)})
		return
	}

	existing, err := s.Audit.GetUser(id)
	if err != nil || existing == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user not found"})
		return
	}

	isActive := existing.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	policyID := existing.PolicyID
	if req.PolicyID != nil {
		policyID = *req.PolicyID
	}

	if err := s.Audit.UpdateUser(id, isActive, policyID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	s.Cache.InvalidateUser(id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Surface) listPolicies(c *gin.Context) {
	policies, err := s.Audit.ListPolicies()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	c.JSON(http.StatusOK, policies)
}

func (s *Surface) upsertPolicy(c *gin.Context) {
	var p models.Policy
	if err := c.ShouldBindJSON(&p); err != nil || strings.TrimSpace(p.ID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gwerrors.Reason(gwerrors.ErrBadRequest)})
		return
	}
	if err := s.Audit.UpsertPolicy(p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	s.Cache.InvalidatePolicy(p.ID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Surface) deletePolicy(c *gin.Context) {
	id := c.Param("id")
	if err := s.Audit.DeletePolicy(id); err != nil {
		if err == db.ErrDefaultPolicyImmutable {
			c.JSON(http.StatusOK, gin.H{"success": false})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	s.Cache.InvalidatePolicy(id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Surface) listGroupPolicies(c *gin.Context) {
	gps, err := s.Audit.ListGroupPolicies()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	c.JSON(http.StatusOK, gps)
}

func (s *Surface) upsertGroupPolicy(c *gin.Context) {
	var g models.GroupPolicy
	if err := c.ShouldBindJSON(&g); err != nil || strings.TrimSpace(g.GroupName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gwerrors.Reason(gwerrors.ErrBadRequest)})
		return
	}
	if err := s.Audit.UpsertGroupPolicy(g); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Surface) deleteGroupPolicy(c *gin.Context) {
	name := c.Param("name")
	if err := s.Audit.DeleteGroupPolicy(name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Surface) listOpenWebUIGroups(c *gin.Context) {
	groups, err := s.Groups.ListGroups()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (s *Surface) listUsage(c *gin.Context) {
	rows, err := s.Audit.RecentUsageLogs(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Surface) stats(c *gin.Context) {
	totals, err := s.Audit.UsageStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	c.JSON(http.StatusOK, totals)
}

func (s *Surface) performance(c *gin.Context) {
	perf, err := s.Audit.PerformanceStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	recent, err := s.Audit.RecentRequestLogs(200)
	if err != nil {
		recent = nil
	}
	c.JSON(http.StatusOK, gin.H{"summary": perf, "recent": recent})
}

func (s *Surface) health(c *gin.Context) {
	checks := gin.H{}
	degraded := false

	if err := s.Audit.Ping(); err != nil {
		checks["audit_store"] = "error: " + err.Error()
		degraded = true
	} else {
		checks["audit_store"] = "ok"
	}

	if err := s.Groups.Ping(); err != nil {
		checks["external_ui_datastore"] = "error: " + err.Error()
		degraded = true
	} else {
		checks["external_ui_datastore"] = "ok"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.Queue.Ping(ctx); err != nil {
		checks["quota_store"] = "error: " + err.Error()
		degraded = true
	} else {
		usageDepth, _ := s.Queue.QueueDepth(ctx, "usage_queue")
		perfDepth, _ := s.Queue.QueueDepth(ctx, "request_perf_queue")
		checks["quota_store"] = gin.H{"status": "ok", "usage_queue_depth": usageDepth, "request_perf_queue_depth": perfDepth}
	}

	status := "ok"
	if degraded {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "checks": checks})
}

func (s *Surface) getConfig(c *gin.Context) {
	rows, err := s.Audit.ListSystemConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}

	raw := map[string]string{}
	var lastUpdated time.Time
	for _, r := range rows {
		raw[r.Key] = r.Value
		if r.UpdatedAt.After(lastUpdated) {
			lastUpdated = r.UpdatedAt
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"config":       raw,
		"masked":       config.MaskAll(raw),
		"last_updated": lastUpdated,
	})
}

type postConfigRequest struct {
	Config map[string]string `json:"config"`
}

func (s *Surface) postConfig(c *gin.Context) {
	var req postConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gwerrors.Reason(gwerrors.ErrBadRequest)})
		return
	}

	rows, err := s.Audit.ListSystemConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}
	merged := map[string]string{}
	for _, r := range rows {
		merged[r.Key] = r.Value
	}

	var changed []string
	for k, v := range req.Config {
		if !config.Recognized(k) {
			continue
		}
		merged[k] = v
		changed = append(changed, k)
	}

	if err := config.Validate(merged); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	changedValues := map[string]string{}
	for _, k := range changed {
		changedValues[k] = merged[k]
	}
	if err := s.Audit.UpsertSystemConfigBatch(changedValues); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gwerrors.Reason(gwerrors.ErrInternal)})
		return
	}

	s.Runtime.Reload(merged)

	if err := s.Bus.Publish(c.Request.Context(), changed); err != nil {
		obslog.Global().Warn("publish config change: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "changed": changed})
}

func (s *Surface) systemLogs(c *gin.Context) {
	c.JSON(http.StatusOK, obslog.Global().Entries())
}
