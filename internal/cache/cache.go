// Package cache implements CacheLayer: three independent short-TTL
// in-process maps (user, group list, policy) that memoize AuditStore and
// external-UI-datastore reads on the hot path. Grounded on
// HabrielStark-invariant/pkg/store/cache.go's expires_at-per-entry shape,
// narrowed from a generic LRU to three fixed, typed maps.
package cache

import (
	"sync"
	"time"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

// TTL is the lifetime of every cache entry before a fresh read is required.
const TTL = 60 * time.Second

type userEntry struct {
	value     models.User
	expiresAt time.Time
}

type groupsEntry struct {
	value     []string
	expiresAt time.Time
}

type policyEntry struct {
	value     models.Policy
	expiresAt time.Time
}

// Layer holds the three mutex-guarded maps.
type Layer struct {
	userMu sync.Mutex
	users  map[string]userEntry

	groupMu sync.Mutex
	groups  map[string]groupsEntry

	policyMu sync.Mutex
	policies map[string]policyEntry
}

// New constructs an empty CacheLayer.
func New() *Layer {
	return &Layer{
		users:    map[string]userEntry{},
		groups:   map[string]groupsEntry{},
		policies: map[string]policyEntry{},
	}
}

// GetUser returns a cached user and whether the entry is present and
// unexpired.
func (l *Layer) GetUser(id string) (models.User, bool) {
	l.userMu.Lock()
	defer l.userMu.Unlock()
	e, ok := l.users[id]
	if !ok || time.Now().After(e.expiresAt) {
		return models.User{}, false
	}
	return e.value, true
}

// PutUser populates the user cache entry for id.
func (l *Layer) PutUser(id string, u models.User) {
	l.userMu.Lock()
	defer l.userMu.Unlock()
	l.users[id] = userEntry{value: u, expiresAt: time.Now().Add(TTL)}
}

// InvalidateUser evicts id from the user cache, used after an admin PATCH.
func (l *Layer) InvalidateUser(id string) {
	l.userMu.Lock()
	defer l.userMu.Unlock()
	delete(l.users, id)
}

// GetGroups returns the cached group list for a user id.
func (l *Layer) GetGroups(userID string) ([]string, bool) {
	l.groupMu.Lock()
	defer l.groupMu.Unlock()
	e, ok := l.groups[userID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// PutGroups populates the group cache entry for a user id.
func (l *Layer) PutGroups(userID string, groups []string) {
	l.groupMu.Lock()
	defer l.groupMu.Unlock()
	l.groups[userID] = groupsEntry{value: groups, expiresAt: time.Now().Add(TTL)}
}

// InvalidateGroups evicts a user's cached group list.
func (l *Layer) InvalidateGroups(userID string) {
	l.groupMu.Lock()
	defer l.groupMu.Unlock()
	delete(l.groups, userID)
}

// GetPolicy returns the cached policy for an id.
func (l *Layer) GetPolicy(id string) (models.Policy, bool) {
	l.policyMu.Lock()
	defer l.policyMu.Unlock()
	e, ok := l.policies[id]
	if !ok || time.Now().After(e.expiresAt) {
		return models.Policy{}, false
	}
	return e.value, true
}

// PutPolicy populates the policy cache entry for an id.
func (l *Layer) PutPolicy(id string, p models.Policy) {
	l.policyMu.Lock()
	defer l.policyMu.Unlock()
	l.policies[id] = policyEntry{value: p, expiresAt: time.Now().Add(TTL)}
}

// InvalidatePolicy evicts a policy cache entry, used after an admin
// POST/DELETE on /policies.
func (l *Layer) InvalidatePolicy(id string) {
	l.policyMu.Lock()
	defer l.policyMu.Unlock()
	delete(l.policies, id)
}
