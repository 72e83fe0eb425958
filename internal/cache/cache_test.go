package cache

import (
	"testing"
	"time"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/models"
)

func TestUserCachePopulateAndHit(t *testing.T) {
	c := New()
	if _, ok := c.GetUser("a@x.com"); ok {
		t.Fatal("expected miss before populate")
	}
	c.PutUser("a@x.com", models.User{ID: "a@x.com", IsActive: true, PolicyID: "default"})
	u, ok := c.GetUser("a@x.com")
	if !ok || u.PolicyID != "default" {
		t.Fatalf("expected cached user with policy default, got %+v ok=%v", u, ok)
	}
}

func TestUserCacheInvalidate(t *testing.T) {
	c := New()
	c.PutUser("a@x.com", models.User{ID: "a@x.com"})
	c.InvalidateUser("a@x.com")
	if _, ok := c.GetUser("a@x.com"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestUserCacheExpiresAfterTTL(t *testing.T) {
	c := New()
	c.userMu.Lock()
	c.users["a@x.com"] = userEntry{value: models.User{ID: "a@x.com"}, expiresAt: time.Now().Add(-time.Second)}
	c.userMu.Unlock()
	if _, ok := c.GetUser("a@x.com"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestGroupsCachePopulateAndInvalidate(t *testing.T) {
	c := New()
	c.PutGroups("a@x.com", []string{"eng", "admins"})
	groups, ok := c.GetGroups("a@x.com")
	if !ok || len(groups) != 2 {
		t.Fatalf("expected 2 cached groups, got %v ok=%v", groups, ok)
	}
	c.InvalidateGroups("a@x.com")
	if _, ok := c.GetGroups("a@x.com"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestPolicyCachePopulateAndInvalidate(t *testing.T) {
	c := New()
	c.PutPolicy("default", models.Policy{ID: "default", DailyTokenLimit: -1})
	p, ok := c.GetPolicy("default")
	if !ok || p.DailyTokenLimit != -1 {
		t.Fatalf("expected cached default policy, got %+v ok=%v", p, ok)
	}
	c.InvalidatePolicy("default")
	if _, ok := c.GetPolicy("default"); ok {
		t.Fatal("expected miss after invalidate")
	}
}
