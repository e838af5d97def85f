package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/domain"
)

func TestNormalizeID(t *testing.T) {
	cases := map[string]struct {
		want string
		ok   bool
	}{
		"alice":       {"alice", true},
		"  alice  ":   {"alice", true},
		"":            {"", false},
		"   ":         {"", false},
		"null":        {"", false},
		"NULL":        {"", false},
		"undefined":   {"", false},
		"Undefined":   {"", false},
		"nullifier":   {"nullifier", true},
		"user-null-1": {"user-null-1", true},
	}
	for raw, c := range cases {
		got, ok := NormalizeID(raw)
		assert.Equal(t, c.ok, ok, "%q", raw)
		assert.Equal(t, c.want, got, "%q", raw)
	}
}

func TestNormalizeIDs(t *testing.T) {
	got := NormalizeIDs([]string{"alice", "null", " bob ", "alice", "", "undefined"})
	assert.Equal(t, []string{"alice", "bob"}, got)
	assert.Nil(t, NormalizeIDs(nil))
	assert.Nil(t, NormalizeIDs([]string{"null"}))
}

func TestOrgScopeFrom(t *testing.T) {
	assert.Equal(t, domain.GlobalScope(), OrgScopeFrom("root"))
	assert.Equal(t, domain.GlobalScope(), OrgScopeFrom("ROOT"))
	assert.Equal(t, domain.GlobalScope(), OrgScopeFrom(" Root "))
	assert.Equal(t, domain.OrgScopeFor("org-1"), OrgScopeFrom("org-1"))
	assert.Equal(t, domain.OrgScope{}, OrgScopeFrom(""))
	assert.Equal(t, domain.OrgScope{}, OrgScopeFrom("null"))
}

type fakeLookup struct {
	emails    map[string]string
	usernames map[string]string
	calls     int
	err       error
}

func (f *fakeLookup) UserIDByEmail(ctx context.Context, email string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.emails[email], nil
}

func (f *fakeLookup) UserIDByUsername(ctx context.Context, username string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.usernames[username], nil
}

func newTestResolver(t *testing.T, lookup UserLookup) *Resolver {
	t.Helper()
	r, err := NewResolver(lookup, 16, time.Second)
	require.NoError(t, err)
	return r
}

func TestActorID_ExplicitFieldsWin(t *testing.T) {
	lookup := &fakeLookup{}
	r := newTestResolver(t, lookup)
	ctx := context.Background()

	id, ok, err := r.ActorID(ctx, Ref{ID: "u-1", Sub: "u-2", Email: "a@b.c"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u-1", id)

	id, ok, err = r.ActorID(ctx, Ref{ID: "null", Sub: "u-2"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u-2", id)
	assert.Zero(t, lookup.calls)
}

func TestActorID_FallbackAndCache(t *testing.T) {
	lookup := &fakeLookup{
		emails:    map[string]string{"a@b.c": "u-9"},
		usernames: map[string]string{"alice": "u-9"},
	}
	r := newTestResolver(t, lookup)
	ctx := context.Background()

	id, ok, err := r.ActorID(ctx, Ref{Email: "A@B.C"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u-9", id)
	assert.Equal(t, 1, lookup.calls)

	// second resolution hits the cache
	_, _, err = r.ActorID(ctx, Ref{Email: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.calls)

	// email misses fall through to username
	id, ok, err = r.ActorID(ctx, Ref{Email: "nobody@b.c", Username: "alice"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u-9", id)

	// invalidation forces a re-lookup
	before := lookup.calls
	r.Invalidate("email:a@b.c")
	_, _, err = r.ActorID(ctx, Ref{Email: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, before+1, lookup.calls)
}

func TestActorID_Unresolvable(t *testing.T) {
	r := newTestResolver(t, &fakeLookup{})
	_, ok, err := r.ActorID(context.Background(), Ref{Email: "nobody@b.c", Username: "ghost"})
	require.NoError(t, err)
	assert.False(t, ok)

	// an empty reference resolves nowhere
	_, ok, err = r.ActorID(context.Background(), Ref{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActorID_LookupErrorPropagates(t *testing.T) {
	r := newTestResolver(t, &fakeLookup{err: errors.New("db down")})
	_, _, err := r.ActorID(context.Background(), Ref{Email: "a@b.c"})
	assert.Error(t, err)
}

func TestActorID_NilLookup(t *testing.T) {
	r := newTestResolver(t, nil)
	_, ok, err := r.ActorID(context.Background(), Ref{Email: "a@b.c"})
	require.NoError(t, err)
	assert.False(t, ok)
}
