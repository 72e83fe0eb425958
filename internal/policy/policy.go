// Package policy implements PolicyEngine: effective-policy resolution and
// quota admission. Grounded on gateway/middleware/auth.go's
// resolve-then-check shape, generalized from a single-tenant API-key check
// into the user+group+policy+counter pipeline this gateway needs.
package policy

import (
	"context"
	"sort"
	"time"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/cache"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/gwerrors"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

// UserStore is the subset of the AuditStore the engine needs to resolve a
// user record.
type UserStore interface {
	GetUser(id string) (*models.User, error)
}

// PolicyStore is the subset of the AuditStore the engine needs to resolve
// policies and group-policy bindings.
type PolicyStore interface {
	GetPolicy(id string) (*models.Policy, error)
	ListGroupPolicies() ([]models.GroupPolicy, error)
}

// GroupLookup resolves the external groups a user id belongs to. Failure is
// tolerated by the caller, which treats it as an empty group set.
type GroupLookup interface {
	GroupsForUser(userID string) ([]string, error)
}

// CounterStore is the subset of QuotaStore the engine needs to evaluate
// admission.
type CounterStore interface {
	ReadCounters(ctx context.Context, userID string, at time.Time) (daily, monthly int64, err error)
}

// Engine resolves effective policies and evaluates quota admission,
// consulting CacheLayer before falling back to the backing stores.
type Engine struct {
	Users    UserStore
	Policies PolicyStore
	Groups   GroupLookup
	Counters CounterStore
	Cache    *cache.Layer
}

// New constructs a policy Engine wired to its backing stores and cache.
func New(users UserStore, policies PolicyStore, groups GroupLookup, counters CounterStore, c *cache.Layer) *Engine {
	return &Engine{Users: users, Policies: policies, Groups: groups, Counters: counters, Cache: c}
}

// ResolveEffectivePolicy returns the policy id that governs user: the
// user's own policy unless it is "default", in which case the
// highest-priority GroupPolicy matching any of groups wins (ties broken by
// group_name lexicographic order), falling back to "default" if no group
// maps.
func ResolveEffectivePolicy(user models.User, groups []string, groupPolicies []models.GroupPolicy) string {
	if user.PolicyID != models.DefaultPolicyID {
		return user.PolicyID
	}

	groupSet := make(map[string]bool, len(groups))
	for _, g := range groups {
		groupSet[g] = true
	}

	candidates := make([]models.GroupPolicy, 0, len(groupPolicies))
	for _, gp := range groupPolicies {
		if groupSet[gp.GroupName] {
			candidates = append(candidates, gp)
		}
	}
	if len(candidates) == 0 {
		return models.DefaultPolicyID
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].GroupName < candidates[j].GroupName
	})
	return candidates[0].PolicyID
}

// Decision is the outcome of CheckAccess.
type Decision struct {
	Allowed        bool
	Reason         string
	EffectivePolicy string
}

// CheckAccess resolves a user's effective policy and evaluates both token
// counters against it, following the user-then-groups-then-policy-then-
// counters order the engine's invariants require.
func (e *Engine) CheckAccess(ctx context.Context, userID string) (Decision, error) {
	user, err := e.resolveUser(userID)
	if err != nil {
		return Decision{}, err
	}
	if user == nil || !user.IsActive {
		return Decision{Allowed: false, Reason: gwerrors.Reason(gwerrors.ErrUserInactive)}, gwerrors.ErrUserInactive
	}

	groups := e.resolveGroups(userID)

	groupPolicies, err := e.Policies.ListGroupPolicies()
	if err != nil {
		groupPolicies = nil
	}
	effectiveID := ResolveEffectivePolicy(*user, groups, groupPolicies)

	effectivePolicy, err := e.resolvePolicy(effectiveID)
	if err != nil {
		return Decision{}, err
	}
	if effectivePolicy == nil {
		return Decision{Allowed: false, Reason: gwerrors.Reason(gwerrors.ErrPolicyMissing)}, gwerrors.ErrPolicyMissing
	}

	daily, monthly, err := e.Counters.ReadCounters(ctx, userID, time.Now().UTC())
	if err != nil {
		return Decision{}, err
	}

	if effectivePolicy.DailyTokenLimit > 0 && daily >= effectivePolicy.DailyTokenLimit {
		return Decision{Allowed: false, Reason: gwerrors.Reason(gwerrors.ErrDailyExceeded), EffectivePolicy: effectiveID}, gwerrors.ErrDailyExceeded
	}
	if effectivePolicy.MonthlyTokenLimit > 0 && monthly >= effectivePolicy.MonthlyTokenLimit {
		return Decision{Allowed: false, Reason: gwerrors.Reason(gwerrors.ErrMonthlyExceeded), EffectivePolicy: effectiveID}, gwerrors.ErrMonthlyExceeded
	}

	return Decision{Allowed: true, EffectivePolicy: effectiveID}, nil
}

func (e *Engine) resolveUser(id string) (*models.User, error) {
	if u, ok := e.Cache.GetUser(id); ok {
		return &u, nil
	}
	u, err := e.Users.GetUser(id)
	if err != nil {
		return nil, err
	}
	if u != nil {
		e.Cache.PutUser(id, *u)
	}
	return u, nil
}

func (e *Engine) resolveGroups(userID string) []string {
	if groups, ok := e.Cache.GetGroups(userID); ok {
		return groups
	}
	groups, err := e.Groups.GroupsForUser(userID)
	if err != nil {
		return nil
	}
	e.Cache.PutGroups(userID, groups)
	return groups
}

func (e *Engine) resolvePolicy(id string) (*models.Policy, error) {
	if p, ok := e.Cache.GetPolicy(id); ok {
		return &p, nil
	}
	p, err := e.Policies.GetPolicy(id)
	if err != nil {
		return nil, err
	}
	if p != nil {
		e.Cache.PutPolicy(id, *p)
	}
	return p, nil
}
