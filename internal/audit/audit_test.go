package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/domain"
	"fieldline/internal/fault"
)

func TestDiff(t *testing.T) {
	before := Snapshot{"title": "Old", "assigned_user_ids": []string{"alice"}, "require_token": false}
	after := Snapshot{"title": "New", "assigned_user_ids": []string{"alice"}, "require_token": true}

	changes := Diff(before, after, []string{"title", "assigned_user_ids", "require_token"})
	require.Len(t, changes, 2)
	assert.Equal(t, domain.FieldChange{Field: "title", Before: `"Old"`, After: `"New"`}, changes[0])
	assert.Equal(t, domain.FieldChange{Field: "require_token", Before: "false", After: "true"}, changes[1])
}

func TestDiff_Identity(t *testing.T) {
	snap := Snapshot{"title": "Same", "geo_fences": []domain.GeoFence{domain.CircleFence(domain.LatLng{Lat: 1, Lng: 2}, 10)}}
	assert.Empty(t, Diff(snap, snap, []string{"title", "geo_fences"}))
}

func TestDiff_UntrackedFieldIgnored(t *testing.T) {
	changes := Diff(Snapshot{"title": "a"}, Snapshot{"title": "b"}, []string{"description"})
	assert.Empty(t, changes)
}

func TestDiff_NilValues(t *testing.T) {
	changes := Diff(Snapshot{"project_id": nil}, Snapshot{"project_id": "p1"}, []string{"project_id"})
	require.Len(t, changes, 1)
	assert.Equal(t, "null", changes[0].Before)
	assert.Equal(t, `"p1"`, changes[0].After)
}

func TestValidPolicy(t *testing.T) {
	assert.True(t, ValidPolicy(PolicyReject))
	assert.True(t, ValidPolicy(PolicySkip))
	assert.False(t, ValidPolicy(""))
	assert.False(t, ValidPolicy("maybe"))
}

func TestResolve(t *testing.T) {
	changes := []domain.FieldChange{{Field: "title", Before: `"a"`, After: `"b"`}}

	// resolved editors never consult the policy
	out, err := Resolve(PolicyReject, "alice", true, changes)
	require.NoError(t, err)
	assert.Equal(t, Outcome{EditorID: "alice"}, out)

	// empty diffs are always a silent no-op
	out, err = Resolve(PolicyReject, "", false, nil)
	require.NoError(t, err)
	assert.True(t, out.Skipped)

	// reject fails closed
	_, err = Resolve(PolicyReject, "", false, changes)
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	// skip fails open
	out, err = Resolve(PolicySkip, "", false, changes)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Empty(t, out.EditorID)

	// an unconfigured policy is a hard error, not a fault
	_, err = Resolve("", "", false, changes)
	require.Error(t, err)
	assert.Empty(t, fault.KindOf(err))
}

func TestTrailDelegates(t *testing.T) {
	changes := []domain.FieldChange{{Field: "title"}}
	_, err := Trail{Policy: PolicyReject}.Resolve("", false, changes)
	assert.Error(t, err)
	out, err := Trail{Policy: PolicySkip}.Resolve("", false, changes)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
}
