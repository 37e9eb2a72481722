package authz

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/katello/lifecycle/pkg/cache"
)

// DefaultCacheTTL is the default time-to-live for cached decisions.
const DefaultCacheTTL = 10 * time.Second

const defaultCacheSize = 4096

// decision identifies an AuthzRequest. Groups are sorted so their order
// does not split the cache.
type decision struct {
	user, groups, resource, verb, organization, name string
}

func decisionFor(req AuthzRequest) decision {
	groups := slices.Clone(req.Groups)
	slices.Sort(groups)
	return decision{
		user:         req.User,
		groups:       strings.Join(groups, "\x00"),
		resource:     req.Resource,
		verb:         req.Verb,
		organization: req.Organization,
		name:         req.Name,
	}
}

// CachedAuthorizer memoizes another Authorizer's decisions for a short TTL,
// sparing the API server one SubjectAccessReview per request.
type CachedAuthorizer struct {
	inner     Authorizer
	decisions *cache.LRUCache[decision, bool]
}

// NewCachedAuthorizer wraps inner with a TTL cache.
func NewCachedAuthorizer(inner Authorizer, ttl time.Duration) *CachedAuthorizer {
	return &CachedAuthorizer{
		inner:     inner,
		decisions: cache.NewLRUCache[decision, bool](defaultCacheSize, ttl),
	}
}

// Authorize serves from the cache and falls back to the wrapped Authorizer.
// Errors are not cached.
func (c *CachedAuthorizer) Authorize(ctx context.Context, req AuthzRequest) (bool, error) {
	key := decisionFor(req)
	if allowed, ok := c.decisions.Get(key); ok {
		return allowed, nil
	}
	allowed, err := c.inner.Authorize(ctx, req)
	if err != nil {
		return false, err
	}
	c.decisions.Set(key, allowed)
	return allowed, nil
}
