package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/domain"
	"fieldline/internal/fault"
)

func ev(id string, action domain.Action, at string) domain.ActionEvent {
	return domain.ActionEvent{ID: id, TaskID: "t1", Action: action, At: at}
}

func TestValidateAction(t *testing.T) {
	for _, a := range []domain.Action{domain.ActionStart, domain.ActionPause, domain.ActionResume, domain.ActionComplete, domain.ActionPhoto} {
		assert.NoError(t, ValidateAction(a))
	}
	err := ValidateAction("teleport")
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestDeriveStatus(t *testing.T) {
	log := []domain.ActionEvent{
		ev("1", domain.ActionStart, "2024-01-01T10:00:00Z"),
		ev("2", domain.ActionPause, "2024-01-01T11:00:00Z"),
		ev("3", domain.ActionResume, "2024-01-01T12:00:00Z"),
	}
	assert.Equal(t, domain.StatusInProgress, DeriveStatus(log, domain.StatusPending))
}

func TestDeriveStatus_OrderIndependent(t *testing.T) {
	a := ev("1", domain.ActionStart, "2024-01-01T10:00:00Z")
	b := ev("2", domain.ActionComplete, "2024-01-01T12:00:00Z")
	c := ev("3", domain.ActionPause, "2024-01-01T11:00:00Z")

	perms := [][]domain.ActionEvent{
		{a, b, c}, {a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a},
	}
	for _, p := range perms {
		assert.Equal(t, domain.StatusCompleted, DeriveStatus(p, domain.StatusPending))
	}
}

func TestDeriveStatus_PhotoIgnored(t *testing.T) {
	log := []domain.ActionEvent{
		ev("1", domain.ActionStart, "2024-01-01T10:00:00Z"),
		ev("2", domain.ActionPhoto, "2024-01-01T11:00:00Z"),
	}
	assert.Equal(t, domain.StatusInProgress, DeriveStatus(log, domain.StatusPending))

	onlyPhotos := []domain.ActionEvent{ev("1", domain.ActionPhoto, "2024-01-01T10:00:00Z")}
	assert.Equal(t, domain.StatusPaused, DeriveStatus(onlyPhotos, domain.StatusPaused))
}

func TestDeriveStatus_EmptyLogKeepsCurrent(t *testing.T) {
	assert.Equal(t, domain.StatusCompleted, DeriveStatus(nil, domain.StatusCompleted))
	assert.Equal(t, domain.StatusPending, DeriveStatus(nil, domain.StatusPending))
}

func TestElapsedMinutes(t *testing.T) {
	log := []domain.ActionEvent{
		ev("1", domain.ActionStart, "2024-01-01T10:00:00Z"),
		ev("2", domain.ActionPause, "2024-01-01T10:30:00Z"),
		ev("3", domain.ActionResume, "2024-01-01T11:00:00Z"),
		ev("4", domain.ActionComplete, "2024-01-01T11:45:00Z"),
	}
	assert.Equal(t, 75, ElapsedMinutes(log))
}

func TestElapsedMinutes_OpenIntervalExcluded(t *testing.T) {
	log := []domain.ActionEvent{
		ev("1", domain.ActionStart, "2024-01-01T10:00:00Z"),
		ev("2", domain.ActionPause, "2024-01-01T10:30:00Z"),
		ev("3", domain.ActionResume, "2024-01-01T11:00:00Z"),
	}
	assert.Equal(t, 30, ElapsedMinutes(log))
}

func TestElapsedMinutes_DoubleStart(t *testing.T) {
	// a second start inside an open interval does not reset the opener
	log := []domain.ActionEvent{
		ev("1", domain.ActionStart, "2024-01-01T10:00:00Z"),
		ev("2", domain.ActionStart, "2024-01-01T10:20:00Z"),
		ev("3", domain.ActionPause, "2024-01-01T10:30:00Z"),
	}
	assert.Equal(t, 30, ElapsedMinutes(log))
}

func TestElapsedMinutes_BadTimestampSkipped(t *testing.T) {
	log := []domain.ActionEvent{
		ev("1", domain.ActionStart, "2024-01-01T10:00:00Z"),
		ev("2", domain.ActionPause, "not-a-time"),
		ev("3", domain.ActionPause, "2024-01-01T10:10:00Z"),
	}
	assert.Equal(t, 10, ElapsedMinutes(log))
}

func TestNormalizeAt(t *testing.T) {
	got, err := NormalizeAt("2024-01-01T23:00:00+10:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T13:00:00Z", got)

	got, err = NormalizeAt("2024-01-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T10:00:00Z", got)

	_, err = NormalizeAt("yesterday")
	assert.Error(t, err)
}

func TestDeriveStatus_MixedOffsets(t *testing.T) {
	// 23:00+10:00 is 13:00Z, an hour before the start: the start is the
	// chronologically last event even though its string sorts first.
	log := []domain.ActionEvent{
		ev("1", domain.ActionComplete, "2024-01-01T23:00:00+10:00"),
		ev("2", domain.ActionStart, "2024-01-01T14:00:00Z"),
	}
	assert.Equal(t, domain.StatusInProgress, DeriveStatus(log, domain.StatusPending))
}

func TestElapsedMinutes_MixedOffsets(t *testing.T) {
	log := []domain.ActionEvent{
		ev("1", domain.ActionPause, "2024-01-01T20:30:00+10:00"), // 10:30Z
		ev("2", domain.ActionStart, "2024-01-01T10:00:00Z"),
	}
	assert.Equal(t, 30, ElapsedMinutes(log))
}

func TestApplyEdit(t *testing.T) {
	log := []domain.ActionEvent{
		ev("1", domain.ActionStart, "2024-01-01T10:00:00Z"),
		ev("2", domain.ActionComplete, "2024-01-01T11:00:00Z"),
	}
	pause := domain.ActionPause
	at := "2024-01-01T10:45:00Z"
	patched, updated, err := ApplyEdit(log, "2", EventPatch{Action: &pause, At: &at})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPause, updated.Action)
	assert.Equal(t, at, updated.At)
	// the input log is untouched
	assert.Equal(t, domain.ActionComplete, log[1].Action)
	assert.Equal(t, domain.StatusPaused, DeriveStatus(patched, domain.StatusPending))
}

func TestApplyEdit_NormalizesOffset(t *testing.T) {
	log := []domain.ActionEvent{ev("1", domain.ActionStart, "2024-01-01T10:00:00Z")}
	at := "2024-01-01T21:00:00+10:00"
	_, updated, err := ApplyEdit(log, "1", EventPatch{At: &at})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T11:00:00Z", updated.At)
}

func TestApplyEdit_Invalid(t *testing.T) {
	log := []domain.ActionEvent{ev("1", domain.ActionStart, "2024-01-01T10:00:00Z")}

	bad := domain.Action("warp")
	_, _, err := ApplyEdit(log, "1", EventPatch{Action: &bad})
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	badAt := "yesterday"
	_, _, err = ApplyEdit(log, "1", EventPatch{At: &badAt})
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	_, _, err = ApplyEdit(log, "missing", EventPatch{})
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}
