// Package tokencache implements the scope→Token mapping with expiry
// described in spec §4.3 (C3 Token Cache): refreshed on access, with
// concurrent acquires for the same scope collapsing to a single
// in-flight refresh.
package tokencache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/avery/pkg/metrics"
	"github.com/cuemby/avery/pkg/types"
)

// ObtainFunc fetches a brand-new Token for a scope that has none cached.
type ObtainFunc func(ctx context.Context, scope string) (types.Token, error)

// RefreshFunc refreshes an expired Token for scope.
type RefreshFunc func(ctx context.Context, scope string, expired types.Token) (types.Token, error)

// Cache is a single-writer/many-readers scope→Token map (spec §5).
type Cache struct {
	obtain  ObtainFunc
	refresh RefreshFunc
	now     func() time.Time

	mu     sync.Mutex
	tokens map[string]types.Token
	inFlight map[string]*call
}

type call struct {
	done  chan struct{}
	token types.Token
	err   error
}

func New(obtain ObtainFunc, refresh RefreshFunc) *Cache {
	return &Cache{
		obtain:   obtain,
		refresh:  refresh,
		now:      time.Now,
		tokens:   make(map[string]types.Token),
		inFlight: make(map[string]*call),
	}
}

// Acquire returns a valid token for scope, obtaining or refreshing it as
// needed. Concurrent Acquire calls for the same scope share one
// in-flight obtain/refresh.
func (c *Cache) Acquire(ctx context.Context, scope string) (types.Token, error) {
	c.mu.Lock()
	if tok, ok := c.tokens[scope]; ok && !tok.Expired(c.now()) {
		c.mu.Unlock()
		metrics.TokenCacheHitsTotal.Inc()
		return tok, nil
	}

	if existing, ok := c.inFlight[scope]; ok {
		c.mu.Unlock()
		return waitFor(ctx, existing)
	}

	cached, hadCached := c.tokens[scope]
	ours := &call{done: make(chan struct{})}
	c.inFlight[scope] = ours
	c.mu.Unlock()

	timer := metrics.NewTimer()
	var tok types.Token
	var err error
	if hadCached {
		tok, err = c.refresh(ctx, scope, cached)
	} else {
		tok, err = c.obtain(ctx, scope)
	}
	timer.ObserveDuration(metrics.TokenRefreshDuration)

	c.mu.Lock()
	delete(c.inFlight, scope)
	if err == nil {
		c.tokens[scope] = tok
	}
	c.mu.Unlock()

	ours.token, ours.err = tok, err
	close(ours.done)

	return tok, err
}

func waitFor(ctx context.Context, c *call) (types.Token, error) {
	select {
	case <-c.done:
		return c.token, c.err
	case <-ctx.Done():
		return types.Token{}, fmt.Errorf("tokencache: %w", ctx.Err())
	}
}
