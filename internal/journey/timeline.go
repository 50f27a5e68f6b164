package journey

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one stage in a visit's timeline
type Entry struct {
	Stage     Status     `json:"stage"`
	EnteredAt time.Time  `json:"entered_at"`
	ExitedAt  *time.Time `json:"exited_at"`
	ActorID   string     `json:"actor_id"`
	ActorRole string     `json:"actor_role"`
	Notes     string     `json:"notes,omitempty"`

	// Annotation marks a note recorded against the visit; it never opens
	// or closes a stage
	Annotation bool `json:"annotation,omitempty"`
}

// Timeline is the ordered stage history stored in visits.journey_timeline
type Timeline []Entry

// Append closes the open entry at e.EnteredAt and adds e.
func (t Timeline) Append(e Entry) Timeline {
	out := make(Timeline, len(t), len(t)+1)
	copy(out, t)

	for i := len(out) - 1; i >= 0; i-- {
		if out[i].ExitedAt == nil && !out[i].Annotation {
			exited := e.EnteredAt
			out[i].ExitedAt = &exited
			break
		}
	}

	e.Annotation = false
	return append(out, e)
}

// Annotate adds e as a note. The open stage stays open.
func (t Timeline) Annotate(e Entry) Timeline {
	out := make(Timeline, len(t), len(t)+1)
	copy(out, t)

	at := e.EnteredAt
	e.ExitedAt = &at
	e.Annotation = true
	return append(out, e)
}

// Current returns the latest stage entry, skipping annotations, or nil
// when there is none
func (t Timeline) Current() *Entry {
	for i := len(t) - 1; i >= 0; i-- {
		if !t[i].Annotation {
			e := t[i]
			return &e
		}
	}
	return nil
}

// Value implements driver.Valuer
func (t Timeline) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner
func (t *Timeline) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = Timeline{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("journey timeline: unsupported type %T", src)
	}

	var out Timeline
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("journey timeline: %w", err)
	}
	if out == nil {
		out = Timeline{}
	}
	*t = out
	return nil
}
