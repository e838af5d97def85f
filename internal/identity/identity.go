// Package identity canonicalizes heterogeneous actor and organization
// references. Nothing here raises on malformed input; a reference that
// cannot be canonicalized resolves to absent and the caller decides what
// that means.
package identity

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"fieldline/internal/domain"
)

// globalOrgSentinel is the legacy claim value granting cross-tenant scope.
const globalOrgSentinel = "root"

// NormalizeID returns the canonical form of a raw identifier. Empty strings
// and the serialized null sentinels some older clients send are absent.
func NormalizeID(raw string) (string, bool) {
	id := strings.TrimSpace(raw)
	switch strings.ToLower(id) {
	case "", "null", "undefined":
		return "", false
	}
	return id, true
}

// OrgScopeFrom maps an org claim to a scope: the "root" sentinel
// (case-insensitive) is Global, a canonical id is Specific, and anything
// else is an empty scope rather than an error.
func OrgScopeFrom(claim string) domain.OrgScope {
	trimmed := strings.TrimSpace(claim)
	if strings.EqualFold(trimmed, globalOrgSentinel) {
		return domain.GlobalScope()
	}
	if id, ok := NormalizeID(trimmed); ok {
		return domain.OrgScopeFor(id)
	}
	return domain.OrgScope{}
}

// Ref is an unresolved actor reference: whichever identifying fields the
// token or payload carried.
type Ref struct {
	ID       string
	Sub      string
	Email    string
	Username string
}

// UserLookup finds a user id by an alternate key. Implemented by the repo.
type UserLookup interface {
	UserIDByEmail(ctx context.Context, email string) (string, error)
	UserIDByUsername(ctx context.Context, username string) (string, error)
}

// Resolver canonicalizes actor references, memoizing fallback lookups in a
// bounded LRU owned by the resolver (no package-level state). Entries are
// add-only; eviction only caps memory.
type Resolver struct {
	lookup  UserLookup
	cache   *lru.Cache[string, string]
	timeout time.Duration
}

// NewResolver builds a resolver with the given cache capacity and lookup
// timeout. Capacity and timeout fall back to sane defaults when zero.
func NewResolver(lookup UserLookup, cacheSize int, timeout time.Duration) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{lookup: lookup, cache: cache, timeout: timeout}, nil
}

// ActorID resolves a reference to a canonical actor id. Explicit id fields
// win in a fixed order; only when none canonicalize does the resolver fall
// back to the directory, by email then username, under the lookup timeout.
// A reference that resolves nowhere is absent, not an error; store errors
// propagate.
func (r *Resolver) ActorID(ctx context.Context, ref Ref) (string, bool, error) {
	if id, ok := NormalizeID(ref.ID); ok {
		return id, true, nil
	}
	if id, ok := NormalizeID(ref.Sub); ok {
		return id, true, nil
	}
	if r.lookup == nil {
		return "", false, nil
	}
	if email, ok := NormalizeID(ref.Email); ok {
		id, hit, err := r.cachedLookup(ctx, "email:"+strings.ToLower(email), func(ctx context.Context) (string, error) {
			return r.lookup.UserIDByEmail(ctx, strings.ToLower(email))
		})
		if err != nil {
			return "", false, err
		}
		if hit {
			return id, true, nil
		}
	}
	if username, ok := NormalizeID(ref.Username); ok {
		id, hit, err := r.cachedLookup(ctx, "username:"+username, func(ctx context.Context) (string, error) {
			return r.lookup.UserIDByUsername(ctx, username)
		})
		if err != nil {
			return "", false, err
		}
		if hit {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (r *Resolver) cachedLookup(ctx context.Context, key string, fn func(context.Context) (string, error)) (string, bool, error) {
	if id, ok := r.cache.Get(key); ok {
		return id, true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	id, err := fn(ctx)
	if err != nil {
		return "", false, err
	}
	if id, ok := NormalizeID(id); ok {
		r.cache.Add(key, id)
		return id, true, nil
	}
	return "", false, nil
}

// Invalidate drops a memoized lookup key. Identity-changing flows call this
// when an email or username moves between users.
func (r *Resolver) Invalidate(key string) {
	r.cache.Remove(key)
}

// NormalizeIDs canonicalizes a set, dropping absent entries and duplicates
// while preserving first-seen order.
func NormalizeIDs(raw []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range raw {
		id, ok := NormalizeID(v)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
