// Package lifecycle derives a task's status and accumulated work time from
// its append-only action log. Derivation sorts by event timestamp, never by
// insertion order: concurrent submitters with clock skew can append out of
// order, and the result must not depend on that.
package lifecycle

import (
	"sort"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/fault"
)

// ValidateAction checks the closed action enumeration.
func ValidateAction(a domain.Action) error {
	switch a {
	case domain.ActionStart, domain.ActionPause, domain.ActionResume, domain.ActionComplete, domain.ActionPhoto:
		return nil
	}
	return fault.New(fault.Validation, "invalid action %q", string(a)).
		WithDetail("field", "action")
}

// NormalizeAt parses an RFC3339 timestamp and re-renders it in UTC, so
// stored timestamps with mixed zone offsets still compare chronologically
// as strings.
func NormalizeAt(at string) (string, error) {
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return "", err
	}
	return t.UTC().Format(time.RFC3339), nil
}

func sortedByAt(events []domain.ActionEvent) []domain.ActionEvent {
	out := make([]domain.ActionEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		ti, erri := time.Parse(time.RFC3339, out[i].At)
		tj, errj := time.Parse(time.RFC3339, out[j].At)
		if erri != nil || errj != nil {
			return out[i].At < out[j].At
		}
		return ti.Before(tj)
	})
	return out
}

// DeriveStatus reduces the log to a status. Photo events are ignored; an
// empty filtered log leaves current unchanged, since nothing implicitly
// resets a task to pending.
func DeriveStatus(events []domain.ActionEvent, current domain.Status) domain.Status {
	var last *domain.ActionEvent
	for _, ev := range sortedByAt(events) {
		if ev.Action == domain.ActionPhoto {
			continue
		}
		e := ev
		last = &e
	}
	if last == nil {
		return current
	}
	switch last.Action {
	case domain.ActionStart, domain.ActionResume:
		return domain.StatusInProgress
	case domain.ActionPause:
		return domain.StatusPaused
	case domain.ActionComplete:
		return domain.StatusCompleted
	}
	return current
}

// ElapsedMinutes sums the closed work intervals in the log: start/resume
// opens an interval, pause/complete closes it. An interval still open at
// the end of the log contributes nothing. Unparseable timestamps close no
// interval.
func ElapsedMinutes(events []domain.ActionEvent) int {
	var total time.Duration
	var openedAt *time.Time
	for _, ev := range sortedByAt(events) {
		at, err := time.Parse(time.RFC3339, ev.At)
		if err != nil {
			continue
		}
		switch ev.Action {
		case domain.ActionStart, domain.ActionResume:
			if openedAt == nil {
				t := at
				openedAt = &t
			}
		case domain.ActionPause, domain.ActionComplete:
			if openedAt != nil && at.After(*openedAt) {
				total += at.Sub(*openedAt)
			}
			openedAt = nil
		}
	}
	return int(total / time.Minute)
}

// EventPatch rewrites a single log row. Nil fields are left untouched.
type EventPatch struct {
	Action *domain.Action
	At     *string
	Note   *string
}

// ApplyEdit patches exactly one event in the log, identified by id, and
// returns the updated copy. The action stays inside the closed enumeration
// and the timestamp must remain RFC3339.
func ApplyEdit(events []domain.ActionEvent, eventID string, patch EventPatch) ([]domain.ActionEvent, domain.ActionEvent, error) {
	out := make([]domain.ActionEvent, len(events))
	copy(out, events)
	for i := range out {
		if out[i].ID != eventID {
			continue
		}
		if patch.Action != nil {
			if err := ValidateAction(*patch.Action); err != nil {
				return nil, domain.ActionEvent{}, err
			}
			out[i].Action = *patch.Action
		}
		if patch.At != nil {
			at, err := NormalizeAt(*patch.At)
			if err != nil {
				return nil, domain.ActionEvent{}, fault.New(fault.Validation, "invalid timestamp %q", *patch.At).
					WithDetail("field", "at")
			}
			out[i].At = at
		}
		if patch.Note != nil {
			out[i].Note = *patch.Note
		}
		return out, out[i], nil
	}
	return nil, domain.ActionEvent{}, fault.New(fault.NotFound, "event %s not found", eventID)
}
