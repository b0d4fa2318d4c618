package enrich

import (
	"context"
	"strings"
	"sync"
	"time"

	"sharedauth/internal/auth/models"
)

// Subject identifies whose roles are being resolved.
type Subject struct {
	ID    string
	Email string
}

// RoleResolver looks up roles when the Identity Provider did not supply them.
type RoleResolver interface {
	Resolve(ctx context.Context, subject Subject, app models.AppType) ([]string, error)
}

// HeuristicResolver derives default roles from the email address. It only
// exists for legacy and demo environments without a roles-aware provider.
type HeuristicResolver struct{}

func (HeuristicResolver) Resolve(_ context.Context, subject Subject, app models.AppType) ([]string, error) {
	email := strings.ToLower(subject.Email)
	switch app {
	case models.AppAdmin:
		if strings.Contains(email, "admin") || strings.Contains(email, "support") {
			return []string{models.RoleAdmin, models.RoleUser}, nil
		}
		return []string{models.RoleViewer, models.RoleUser}, nil
	case models.AppPartner:
		if strings.Contains(email, "partner") || strings.Contains(email, "business") {
			return []string{models.RolePartner, models.RoleBusinessUser, models.RoleUser}, nil
		}
		return []string{models.RoleUser}, nil
	default:
		return []string{models.RoleUser}, nil
	}
}

type cacheEntry struct {
	roles     []string
	expiresAt time.Time
}

// CachedResolver memoizes another resolver per subject and app for ttl.
// Failed lookups are not cached.
type CachedResolver struct {
	next    RoleResolver
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCachedResolver(next RoleResolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(subject Subject, app models.AppType) string {
	id := subject.ID
	if id == "" {
		id = strings.ToLower(subject.Email)
	}
	return string(app) + ":" + id
}

func (c *CachedResolver) Resolve(ctx context.Context, subject Subject, app models.AppType) ([]string, error) {
	key := cacheKey(subject, app)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return append([]string(nil), entry.roles...), nil
	}

	roles, err := c.next.Resolve(ctx, subject, app)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[key] = cacheEntry{roles: append([]string(nil), roles...), expiresAt: now.Add(c.ttl)}
	c.cleanupExpiredLocked(now, 10)
	return roles, nil
}

// Invalidate drops every cached app entry for the subject id.
func (c *CachedResolver) Invalidate(subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, app := range models.AppTypes {
		delete(c.entries, cacheKey(Subject{ID: subjectID}, app))
	}
}

// cleanupExpiredLocked removes up to limit expired entries. Caller holds mu.
func (c *CachedResolver) cleanupExpiredLocked(now time.Time, limit int) {
	cleaned := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			cleaned++
			if cleaned >= limit {
				return
			}
		}
	}
}
