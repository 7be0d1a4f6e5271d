package service

import (
	"context"
	"time"

	"screentime/internal/domain"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type AppLister interface {
	List(ctx context.Context) ([]domain.App, error)
}

// AppCatalog caches the app registry; it changes rarely and every
// create-task form reads it.
type AppCatalog struct {
	src   AppLister
	cache *expirable.LRU[string, []domain.App]
}

const appCatalogKey = "apps"

func NewAppCatalog(src AppLister, ttl time.Duration) *AppCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AppCatalog{
		src:   src,
		cache: expirable.NewLRU[string, []domain.App](1, nil, ttl),
	}
}

func (c *AppCatalog) List(ctx context.Context) ([]domain.App, error) {
	if apps, ok := c.cache.Get(appCatalogKey); ok {
		return apps, nil
	}
	apps, err := c.src.List(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Add(appCatalogKey, apps)
	return apps, nil
}

// Invalidate drops the cached registry.
func (c *AppCatalog) Invalidate() {
	c.cache.Purge()
}
