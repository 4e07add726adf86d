package task

import (
	"encoding/json"
	"fmt"
	"strings"
)

// State is the resolution state of a Block.
type State int

const (
	StatePending State = iota
	StateResolved
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason names why a Block failed. Each reason serializes to its own
// bracketed tag, and consumers branch on the tag, so the strings are part of
// the persisted format.
type Reason string

const (
	ReasonTimeout Reason = "Timeout"       // agent produced no stable output in time
	ReasonJSON    Reason = "JSON Error"    // response could not be parsed
	ReasonMissing Reason = "Trans Missing" // response parsed but omitted the id
	ReasonError   Reason = "Error"         // anything else, e.g. dispatch failed
)

var knownReasons = map[Reason]bool{
	ReasonTimeout: true,
	ReasonJSON:    true,
	ReasonMissing: true,
	ReasonError:   true,
}

// Tag returns the compact error tag, e.g. "[Timeout]".
func (r Reason) Tag() string {
	return "[" + string(r) + "]"
}

// ParseTag reports whether s is one of the known error tags.
func ParseTag(s string) (Reason, bool) {
	if len(s) < 2 || !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return "", false
	}
	r := Reason(s[1 : len(s)-1])
	if !knownReasons[r] {
		return "", false
	}
	return r, true
}

// Translation is the tagged result stored on a Block: pending, resolved with
// text, or failed with a reason. The zero value is pending.
//
// On the wire it keeps the compact form other instances read: null while
// pending, the translated string once resolved, and the bracketed tag once
// failed.
type Translation struct {
	state  State
	text   string
	reason Reason
}

// Resolved returns a successful translation.
func Resolved(text string) Translation {
	return Translation{state: StateResolved, text: text}
}

// Failed returns a failed translation carrying reason.
func Failed(reason Reason) Translation {
	return Translation{state: StateFailed, reason: reason}
}

// FromCompact decodes the compact string form. Known tags decode to Failed,
// everything else is a resolved translation.
func FromCompact(s string) Translation {
	if r, ok := ParseTag(s); ok {
		return Failed(r)
	}
	return Resolved(s)
}

// State returns the resolution state.
func (t Translation) State() State { return t.state }

// IsPending reports whether the block still needs translating.
func (t Translation) IsPending() bool { return t.state == StatePending }

// IsResolved reports a successful translation.
func (t Translation) IsResolved() bool { return t.state == StateResolved }

// IsFailed reports a translation that ended with an error tag.
func (t Translation) IsFailed() bool { return t.state == StateFailed }

// Text returns the translated text, or "" unless resolved.
func (t Translation) Text() string { return t.text }

// Reason returns the failure reason, or "" unless failed.
func (t Translation) Reason() Reason { return t.reason }

// Compact returns the wire string and false when pending.
func (t Translation) Compact() (string, bool) {
	switch t.state {
	case StateResolved:
		return t.text, true
	case StateFailed:
		return t.reason.Tag(), true
	default:
		return "", false
	}
}

// String implements fmt.Stringer.
func (t Translation) String() string {
	if s, ok := t.Compact(); ok {
		return s
	}
	return "<pending>"
}

// MarshalJSON implements json.Marshaler.
func (t Translation) MarshalJSON() ([]byte, error) {
	s, ok := t.Compact()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Translation) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = Translation{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("task: translation must be a string or null: %w", err)
	}
	*t = FromCompact(s)
	return nil
}
