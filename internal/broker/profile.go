package broker

import (
	"log"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"gmbdash/server/internal/db"
)

// ProfileStore is the read side ProfileBroker needs.
type ProfileStore interface {
	GetProfile(userID string) (*db.ClientProfile, error)
	ListProviders(userID string) ([]string, error)
	CountActiveAccounts(userID string) (int64, error)
}

// TenantContext is what handlers and jobs need to know about a user.
type TenantContext struct {
	Profile        db.ClientProfile `json:"profile"`
	Providers      []string         `json:"providers"`
	ActiveAccounts int64            `json:"active_accounts"`
}

// HasProvider reports whether the user linked provider.
func (tc *TenantContext) HasProvider(provider string) bool {
	for _, p := range tc.Providers {
		if p == provider {
			return true
		}
	}
	return false
}

// ProfileBroker caches tenant context for a short TTL.
type ProfileBroker struct {
	store ProfileStore
	cache *tenantCache
}

type tenantCache struct {
	mu    sync.RWMutex
	items map[string]*tenantCacheItem
	ttl   time.Duration
}

type tenantCacheItem struct {
	context   *TenantContext
	expiresAt time.Time
}

func NewProfileBroker(store ProfileStore) *ProfileBroker {
	return &ProfileBroker{
		store: store,
		cache: &tenantCache{
			items: make(map[string]*tenantCacheItem),
			ttl:   30 * time.Second,
		},
	}
}

// Context returns the tenant context. On a store failure it serves the
// last cached value, even if expired.
func (p *ProfileBroker) Context(userID string) (*TenantContext, error) {
	if cached := p.cache.get(userID); cached != nil {
		return cached, nil
	}

	tc, err := p.fetch(userID)
	if err != nil {
		if stale := p.cache.getStale(userID); stale != nil {
			log.Printf("[broker] using stale tenant context for %s: %v", userID, err)
			p.cache.set(userID, stale)
			return stale, nil
		}
		return nil, err
	}

	p.cache.set(userID, tc)
	return tc, nil
}

func (p *ProfileBroker) fetch(userID string) (*TenantContext, error) {
	profile, err := p.store.GetProfile(userID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		def := db.DefaultProfile(userID)
		profile = &def
	case err != nil:
		return nil, errors.Wrap(err, "load profile")
	}

	providers, err := p.store.ListProviders(userID)
	if err != nil {
		return nil, errors.Wrap(err, "list providers")
	}
	accounts, err := p.store.CountActiveAccounts(userID)
	if err != nil {
		return nil, errors.Wrap(err, "count accounts")
	}

	return &TenantContext{
		Profile:        *profile,
		Providers:      providers,
		ActiveAccounts: accounts,
	}, nil
}

// Invalidate drops the cached context after a profile or connection change.
func (p *ProfileBroker) Invalidate(userID string) {
	p.cache.delete(userID)
}

func (c *tenantCache) get(userID string) *TenantContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[userID]
	if !ok || time.Now().After(item.expiresAt) {
		return nil
	}
	return item.context
}

func (c *tenantCache) getStale(userID string) *TenantContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if item, ok := c.items[userID]; ok {
		return item.context
	}
	return nil
}

func (c *tenantCache) set(userID string, tc *TenantContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[userID] = &tenantCacheItem{context: tc, expiresAt: time.Now().Add(c.ttl)}
}

func (c *tenantCache) delete(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, userID)
}
