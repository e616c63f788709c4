package model

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tpm/internal/errors"
)

func TestNewID(t *testing.T) {
	t.Parallel()

	pattern := regexp.MustCompile(`^TICK-[0-9a-f]{16}$`)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID(KindTicket)
		require.Regexp(t, pattern, id)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	assert.Equal(t, KindTicket, KindOfID(NewID(KindTicket)))
	assert.Equal(t, KindProject, KindOfID("PROJ-0123456789abcdef"))
	assert.Equal(t, EntityKind(""), KindOfID("FEAT-1"))
	assert.Equal(t, EntityKind(""), KindOfID("nodash"))
}

func TestTicketValidate(t *testing.T) {
	t.Parallel()

	valid := Ticket{ProjectID: "PROJ-1", Title: "t", Status: TicketBacklog, Priority: PriorityMedium}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*Ticket)
		field   string
		allowed []string
	}{
		{"empty title", func(tk *Ticket) { tk.Title = "  " }, "title", nil},
		{"missing project", func(tk *Ticket) { tk.ProjectID = "" }, "project_id", nil},
		{"bad status", func(tk *Ticket) { tk.Status = "finished" }, "status", TicketStatusValues()},
		{"bad priority", func(tk *Ticket) { tk.Priority = "urgent" }, "priority", PriorityValues()},
		{"bad metadata", func(tk *Ticket) { tk.Metadata = Metadata("{not json") }, "metadata", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := valid
			tt.mutate(&tk)
			err := tk.Validate()
			require.ErrorIs(t, err, errors.ErrValidation)
			te := errors.AsTrackerError(err)
			require.NotNil(t, te)
			assert.Equal(t, tt.field, te.Field)
			assert.Equal(t, tt.allowed, te.Allowed)
		})
	}
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()

	task := Task{TicketID: "TICK-1", Title: "x", Status: TaskPending, Priority: PriorityLow, Complexity: ComplexitySimple}
	require.NoError(t, task.Validate())

	task.Status = "backlog"
	err := task.Validate()
	require.ErrorIs(t, err, errors.ErrValidation)
	assert.Contains(t, err.Error(), "pending, in-progress, done, blocked")

	task.Status = TaskDone
	task.Complexity = "huge"
	require.ErrorIs(t, task.Validate(), errors.ErrValidation)
}

func TestNoteAndDependencyValidate(t *testing.T) {
	t.Parallel()

	n := Note{EntityType: KindTicket, EntityID: "TICK-1", Content: "hello"}
	require.NoError(t, n.Validate())

	n.EntityType = KindNote
	require.ErrorIs(t, n.Validate(), errors.ErrValidation)

	n.EntityType = KindTask
	n.Content = ""
	require.ErrorIs(t, n.Validate(), errors.ErrValidation)

	require.NoError(t, Dependency{TaskID: "TASK-1", DependsOnID: "TASK-2"}.Validate())
	require.ErrorIs(t, Dependency{TaskID: "TASK-1", DependsOnID: "TASK-1"}.Validate(), errors.ErrValidation)

	_, err := ParseNoteTargetKind("epic")
	require.ErrorIs(t, err, errors.ErrValidation)
	k, err := ParseNoteTargetKind("Project")
	require.NoError(t, err)
	assert.Equal(t, KindProject, k)
}

func TestPriorityRank(t *testing.T) {
	t.Parallel()

	assert.Greater(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.False(t, Priority("urgent").Valid())
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	m, err := ParseMetadata(`{ "a": [1, 2] }`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2]}`, m.String())

	m, err = ParseMetadata("")
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = ParseMetadata("null")
	require.NoError(t, err)
	assert.True(t, m.IsNull())

	_, err = ParseMetadata("{oops")
	require.ErrorIs(t, err, errors.ErrValidation)

	// Scalars and arrays are legal metadata values.
	m, err = ParseMetadata(`"plain"`)
	require.NoError(t, err)
	v, err := m.Decode()
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}

func TestTicketJSON(t *testing.T) {
	t.Parallel()

	in := Ticket{
		ID:        "TICK-1",
		ProjectID: "PROJ-1",
		Title:     "t",
		Status:    TicketDone,
		Priority:  PriorityHigh,
		Tags:      []string{"a"},
		Metadata:  MustMetadata(map[string]any{"k": "v"}),
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"metadata":{"k":"v"}`)
	assert.NotContains(t, string(data), "started_at")

	var out Ticket
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	var nullMeta Ticket
	require.NoError(t, json.Unmarshal([]byte(`{"metadata":null}`), &nullMeta))
	assert.Nil(t, nullMeta.Metadata)
}
