// Package audit computes structural diffs for entity edits and records them
// as immutable change entries. Whether an edit with an unresolvable editor
// is rejected or persisted without an entry is an explicit configuration
// decision, not a default.
package audit

import (
	"encoding/json"
	"fmt"

	"fieldline/internal/domain"
	"fieldline/internal/fault"
)

// Policy names the behavior when the editor identity cannot be resolved.
type Policy string

const (
	// PolicyReject fails the whole mutation (fail closed).
	PolicyReject Policy = "reject"

	// PolicySkip persists the edit without an audit entry and signals the
	// skip to the caller (fail open).
	PolicySkip Policy = "skip"
)

// ValidPolicy reports whether p is a recognized policy. The empty string is
// not valid: config must choose.
func ValidPolicy(p Policy) bool {
	return p == PolicyReject || p == PolicySkip
}

// Snapshot is a field-name to value view of an entity, with composite
// fields (fence lists, assignment sets) left as whole values.
type Snapshot map[string]any

// Diff compares canonical serialized forms of each tracked field and emits
// a change only where they differ. Diff(x, x, fields) is always empty.
func Diff(before, after Snapshot, trackedFields []string) []domain.FieldChange {
	var changes []domain.FieldChange
	for _, field := range trackedFields {
		b := canonical(before[field])
		a := canonical(after[field])
		if b == a {
			continue
		}
		changes = append(changes, domain.FieldChange{Field: field, Before: b, After: a})
	}
	return changes
}

func canonical(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Trail binds the configured policy so callers carry one value instead of
// threading the policy through every edit path.
type Trail struct {
	Policy Policy
}

// Resolve applies the trail's policy; see the package function.
func (t Trail) Resolve(editorID string, resolved bool, changes []domain.FieldChange) (Outcome, error) {
	return Resolve(t.Policy, editorID, resolved, changes)
}

// Outcome reports what Resolve decided for an edit.
type Outcome struct {
	// EditorID is the resolved editor, empty when skipped.
	EditorID string

	// Skipped is true when the edit proceeds without an audit entry.
	Skipped bool
}

// Resolve applies the configured policy to an editor resolution result.
// Empty change sets never need an entry and resolve to a silent no-op.
func Resolve(policy Policy, editorID string, resolved bool, changes []domain.FieldChange) (Outcome, error) {
	if len(changes) == 0 {
		return Outcome{Skipped: true}, nil
	}
	if resolved {
		return Outcome{EditorID: editorID}, nil
	}
	switch policy {
	case PolicyReject:
		return Outcome{}, fault.New(fault.Validation, "editor identity could not be resolved").
			WithDetail("reason", "unresolved_editor")
	case PolicySkip:
		return Outcome{Skipped: true}, nil
	}
	return Outcome{}, fmt.Errorf("audit policy not configured")
}
