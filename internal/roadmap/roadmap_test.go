package roadmap

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

type fixture struct {
	org      *model.Org
	proj     *model.Project
	doneTick *model.Ticket
	openTick *model.Ticket
}

// seedRoadmap builds one project with a done ticket (2/2 tasks done) and an
// in-progress ticket (1/3 tasks done).
func seedRoadmap(t *testing.T, s *store.Store) fixture {
	t.Helper()
	ctx := context.Background()

	org, err := s.CreateOrg(ctx, "acme")
	require.NoError(t, err)
	proj, err := s.CreateProject(ctx, store.NewProject{OrgID: org.ID, Name: "api", Description: "Public API"})
	require.NoError(t, err)

	doneTick, err := s.CreateTicket(ctx, store.NewTicket{
		ProjectID: proj.ID, Title: "Auth", Status: model.TicketDone, Priority: model.PriorityLow,
	})
	require.NoError(t, err)
	for _, title := range []string{"Schema", "Handler"} {
		_, err := s.CreateTask(ctx, store.NewTask{TicketID: doneTick.ID, Title: title, Status: model.TaskDone})
		require.NoError(t, err)
	}

	openTick, err := s.CreateTicket(ctx, store.NewTicket{
		ProjectID: proj.ID, Title: "Billing", Status: model.TicketInProgress, Priority: model.PriorityHigh,
	})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, store.NewTask{TicketID: openTick.ID, Title: "Invoices", Status: model.TaskDone})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, store.NewTask{TicketID: openTick.ID, Title: "Refunds", Status: model.TaskInProgress})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, store.NewTask{TicketID: openTick.ID, Title: "Receipts"})
	require.NoError(t, err)

	return fixture{org: org, proj: proj, doneTick: doneTick, openTick: openTick}
}

func TestPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		done, total, want int
	}{
		{0, 0, 0},
		{0, 4, 0},
		{1, 2, 50},
		{3, 5, 60},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{4, 4, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percent(tt.done, tt.total), "%d/%d", tt.done, tt.total)
	}
}

func TestBuild_Rollup(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t)
	fx := seedRoadmap(t, s)

	r, err := Build(context.Background(), s, Scope{})
	require.NoError(t, err)

	assert.Equal(t, Completion{Done: 1, Total: 2, Percent: 50}, r.TicketCompletion)
	assert.Equal(t, Completion{Done: 3, Total: 5, Percent: 60}, r.TaskCompletion)

	require.Len(t, r.Orgs, 1)
	org := r.Orgs[0]
	assert.Equal(t, fx.org.ID, org.ID)
	assert.Equal(t, r.TicketCompletion, org.TicketCompletion)
	assert.Equal(t, r.TaskCompletion, org.TaskCompletion)

	require.Len(t, org.Projects, 1)
	proj := org.Projects[0]
	assert.Equal(t, "Public API", proj.Description)
	require.Len(t, proj.Tickets, 2)

	// High priority sorts ahead of the older low priority ticket.
	assert.Equal(t, fx.openTick.ID, proj.Tickets[0].ID)
	assert.Equal(t, Completion{Done: 1, Total: 3, Percent: 33}, proj.Tickets[0].TaskCompletion)
	assert.Equal(t, fx.doneTick.ID, proj.Tickets[1].ID)
	assert.Equal(t, Completion{Done: 2, Total: 2, Percent: 100}, proj.Tickets[1].TaskCompletion)

	titles := make([]string, 0, 3)
	for _, task := range proj.Tickets[0].Tasks {
		titles = append(titles, task.Title)
	}
	assert.Equal(t, []string{"Invoices", "Refunds", "Receipts"}, titles)
}

func TestBuild_Empty(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t)

	r, err := Build(context.Background(), s, Scope{})
	require.NoError(t, err)
	assert.Empty(t, r.Orgs)
	assert.Equal(t, Completion{}, r.TicketCompletion)

	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, r))
	assert.Contains(t, buf.String(), `"orgs": []`)
}

func TestBuild_Scope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t)
	fx := seedRoadmap(t, s)

	other, err := s.CreateOrg(ctx, "globex")
	require.NoError(t, err)
	otherProj, err := s.CreateProject(ctx, store.NewProject{OrgID: other.ID, Name: "web"})
	require.NoError(t, err)
	_, err = s.CreateTicket(ctx, store.NewTicket{ProjectID: otherProj.ID, Title: "Landing page"})
	require.NoError(t, err)

	t.Run("org", func(t *testing.T) {
		r, err := Build(ctx, s, Scope{OrgID: other.ID})
		require.NoError(t, err)
		require.Len(t, r.Orgs, 1)
		assert.Equal(t, other.ID, r.Orgs[0].ID)
		assert.Equal(t, Completion{Done: 0, Total: 1, Percent: 0}, r.TicketCompletion)
	})

	t.Run("project", func(t *testing.T) {
		r, err := Build(ctx, s, Scope{ProjectID: fx.proj.ID})
		require.NoError(t, err)
		require.Len(t, r.Orgs, 1)
		assert.Equal(t, fx.org.ID, r.Orgs[0].ID)
		require.Len(t, r.Orgs[0].Projects, 1)
		assert.Equal(t, Completion{Done: 1, Total: 2, Percent: 50}, r.TicketCompletion)
	})

	t.Run("unknown org", func(t *testing.T) {
		_, err := Build(ctx, s, Scope{OrgID: "ORG-missing"})
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("unknown project", func(t *testing.T) {
		_, err := Build(ctx, s, Scope{ProjectID: "PROJ-missing"})
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("project outside org", func(t *testing.T) {
		_, err := Build(ctx, s, Scope{OrgID: other.ID, ProjectID: fx.proj.ID})
		assert.ErrorIs(t, err, errors.ErrValidation)
	})
}

func TestRenderSummary(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t)
	fx := seedRoadmap(t, s)

	r, err := Build(context.Background(), s, Scope{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderSummary(&buf, r, SummaryOptions{}))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Roadmap Summary\n"))
	assert.Contains(t, out, "Tickets: 1/2 (50%) done | Tasks: 3/5 (60%) done")
	assert.Contains(t, out, "## acme ("+fx.org.ID+")")
	assert.Contains(t, out, "### api ("+fx.proj.ID+")")
	assert.Contains(t, out, "_Public API_")
	assert.Contains(t, out, "- [~] **"+fx.openTick.ID+"**: Billing (high)")
	assert.Contains(t, out, "- [x] **"+fx.doneTick.ID+"**: Auth\n")
	assert.Contains(t, out, "  Tasks: 1/3 (33%)")
	assert.Contains(t, out, ": Refunds")
	assert.Contains(t, out, ": Receipts")
	assert.NotContains(t, out, ": Invoices")
	assert.NotContains(t, out, "... and")

	t.Run("active only", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderSummary(&buf, r, SummaryOptions{ActiveOnly: true}))
		out := buf.String()
		assert.NotContains(t, out, fx.doneTick.ID)
		assert.Contains(t, out, fx.openTick.ID)
		assert.Contains(t, out, "Tickets: 1/2 (50%) done")
	})

	t.Run("collapsed tasks", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, RenderSummary(&buf, r, SummaryOptions{MaxOpenTasks: 1}))
		assert.Contains(t, buf.String(), "    - ... and 1 more")
	})

	t.Run("heading decorator", func(t *testing.T) {
		var buf bytes.Buffer
		opts := SummaryOptions{Heading: func(s string) string { return "<" + s + ">" }}
		require.NoError(t, RenderSummary(&buf, r, opts))
		assert.Contains(t, buf.String(), "<# Roadmap Summary>")
		assert.Contains(t, buf.String(), "<## acme ("+fx.org.ID+")>")
	})
}

func TestRenderJSON_MatchesTree(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t)
	seedRoadmap(t, s)

	r, err := Build(context.Background(), s, Scope{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, r))

	var decoded Roadmap
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.TicketCompletion, decoded.TicketCompletion)
	assert.Equal(t, r.TaskCompletion, decoded.TaskCompletion)
	require.Len(t, decoded.Orgs, 1)
	require.Len(t, decoded.Orgs[0].Projects, 1)
	assert.Len(t, decoded.Orgs[0].Projects[0].Tickets, 2)

	// Both renderings come from the same tree.
	var summary bytes.Buffer
	require.NoError(t, RenderSummary(&summary, r, SummaryOptions{MaxOpenTasks: 10}))
	for _, tick := range decoded.Orgs[0].Projects[0].Tickets {
		assert.Contains(t, summary.String(), "**"+tick.ID+"**")
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatSummary, f)

	f, err = ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, errors.ErrValidation)

	err = Render(&bytes.Buffer{}, &Roadmap{}, Format("xml"), SummaryOptions{})
	assert.ErrorIs(t, err, errors.ErrValidation)
}
