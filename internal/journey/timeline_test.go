package journey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeline_AppendClosesOpenEntry(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(15 * time.Minute)

	var tl Timeline
	tl = tl.Append(Entry{Stage: StatusRegistered, EnteredAt: t0, ActorID: "u1", ActorRole: "receptionist"})
	tl2 := tl.Append(Entry{Stage: StatusAtTriage, EnteredAt: t1, ActorID: "u2", ActorRole: "nurse"})

	require.Len(t, tl2, 2)
	require.NotNil(t, tl2[0].ExitedAt)
	assert.Equal(t, t1, *tl2[0].ExitedAt)
	assert.Nil(t, tl2[1].ExitedAt)
	assert.Equal(t, StatusAtTriage, tl2.Current().Stage)

	assert.Nil(t, tl[0].ExitedAt, "append must not mutate the receiver")
}

func TestTimeline_AnnotateLeavesStageOpen(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(10 * time.Minute)
	t2 := t1.Add(20 * time.Minute)

	var tl Timeline
	tl = tl.Append(Entry{Stage: StatusPayingConsultation, EnteredAt: t0, ActorID: "u1", ActorRole: "receptionist"})
	tl = tl.Annotate(Entry{Stage: StatusPayingConsultation, EnteredAt: t1, ActorID: "u2", ActorRole: "cashier", Notes: "stepped out"})

	require.Len(t, tl, 2)
	assert.Nil(t, tl[0].ExitedAt)
	assert.True(t, tl[1].Annotation)
	require.NotNil(t, tl[1].ExitedAt)
	assert.Equal(t, t1, *tl[1].ExitedAt)

	current := tl.Current()
	require.NotNil(t, current)
	assert.Equal(t, t0, current.EnteredAt)
	assert.False(t, current.Annotation)

	// the next real stage closes the stage entry, not the note
	tl = tl.Append(Entry{Stage: StatusAtTriage, EnteredAt: t2, ActorID: "u2", ActorRole: "cashier", Annotation: true})
	require.Len(t, tl, 3)
	require.NotNil(t, tl[0].ExitedAt)
	assert.Equal(t, t2, *tl[0].ExitedAt)
	assert.Equal(t, t1, *tl[1].ExitedAt)
	assert.False(t, tl[2].Annotation)
	assert.Equal(t, StatusAtTriage, tl.Current().Stage)

	notesOnly := Timeline{}.Annotate(Entry{Stage: StatusRegistered, EnteredAt: t0})
	assert.Nil(t, notesOnly.Current())
}

func TestTimeline_ScanAndValue(t *testing.T) {
	var tl Timeline
	require.NoError(t, tl.Scan(nil))
	assert.Empty(t, tl)
	assert.Nil(t, tl.Current())

	raw := []byte(`[{"stage":"registered","entered_at":"2026-03-01T08:00:00Z","exited_at":null,"actor_id":"u1","actor_role":"receptionist"}]`)
	require.NoError(t, tl.Scan(raw))
	require.Len(t, tl, 1)
	assert.Equal(t, StatusRegistered, tl[0].Stage)

	v, err := tl.Value()
	require.NoError(t, err)
	assert.Contains(t, string(v.([]byte)), `"stage":"registered"`)
	assert.NotContains(t, string(v.([]byte)), `"annotation"`)

	require.NoError(t, tl.Scan([]byte(`[{"stage":"at_triage","entered_at":"2026-03-01T08:00:00Z","exited_at":"2026-03-01T08:00:00Z","actor_id":"u1","actor_role":"nurse","annotation":true}]`)))
	assert.True(t, tl[0].Annotation)
	assert.Nil(t, tl.Current())

	var empty Timeline
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)

	assert.Error(t, tl.Scan(42))
	assert.Error(t, tl.Scan([]byte("{not json")))
}
