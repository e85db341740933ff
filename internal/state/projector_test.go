package state

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/noosphere/internal/apperr"
	"github.com/starford/noosphere/internal/markdown"
	"github.com/starford/noosphere/internal/models"
	"github.com/starford/noosphere/internal/testutil"
)

func newProjector(t *testing.T) *Projector {
	t.Helper()
	clock := testutil.NewClock()
	db := testutil.TestDB(t, clock)
	return NewProjector(db, clock.Now)
}

func TestApplyDeltas_ScalarUpsertIsIdempotent(t *testing.T) {
	p := newProjector(t)
	ctx := context.Background()

	require.NoError(t, p.ApplyDeltas(ctx, "p", "u", []models.Delta{models.Upsert("S", "K", "V1")}))
	require.NoError(t, p.ApplyDeltas(ctx, "p", "u", []models.Delta{models.Upsert("S", "K", "V2")}))

	doc, err := p.Reconstruct(ctx, "p", "u")
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, []models.DocumentLine{{Key: "K", Value: "V2"}}, doc.Sections[0].Lines)
}

func TestApplyDeltas_ListAppendNeverOverwrites(t *testing.T) {
	p := newProjector(t)
	ctx := context.Background()

	require.NoError(t, p.ApplyDeltas(ctx, "p", "u", []models.Delta{
		models.Append("Recent Activity", "one"),
		models.Append("Recent Activity", "two"),
		models.Append("Recent Activity", "three"),
	}))

	doc, err := p.Reconstruct(ctx, "p", "u")
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	var values []string
	for _, l := range doc.Sections[0].Lines {
		assert.True(t, l.IsListItem)
		assert.Empty(t, l.Key)
		values = append(values, l.Value)
	}
	assert.Equal(t, []string{"one", "two", "three"}, values)
}

func TestApplyDeltas_AppendsAcrossCallsKeepOrder(t *testing.T) {
	p := newProjector(t)
	ctx := context.Background()
	for _, v := range []string{"a", "a", "b"} {
		require.NoError(t, p.ApplyDeltas(ctx, "p", "u", []models.Delta{models.Append("L", v)}))
	}
	doc, err := p.Reconstruct(ctx, "p", "u")
	require.NoError(t, err)
	require.Len(t, doc.Sections[0].Lines, 3)
	assert.Equal(t, "b", doc.Sections[0].Lines[2].Value)
}

func TestApplyDeltas_BatchesOnStalledClockDoNotInterleave(t *testing.T) {
	clock := testutil.NewClock()
	clock.Step = 0
	p := NewProjector(testutil.TestDB(t, clock), clock.Now)
	ctx := context.Background()

	require.NoError(t, p.ApplyDeltas(ctx, "p", "u", []models.Delta{
		models.Append("Recent Activity", "a1"),
		models.Append("Recent Activity", "a2"),
	}))
	require.NoError(t, p.ApplyDeltas(ctx, "p", "u", []models.Delta{
		models.Append("Recent Activity", "b1"),
		models.Append("Recent Activity", "b2"),
	}))

	doc, err := p.Reconstruct(ctx, "p", "u")
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	var values []string
	for _, l := range doc.Sections[0].Lines {
		values = append(values, l.Value)
	}
	assert.Equal(t, []string{"a1", "a2", "b1", "b2"}, values)
}

func TestApplyDeltas_ClockSteppingBackKeepsOrder(t *testing.T) {
	clock := testutil.NewClock()
	p := NewProjector(testutil.TestDB(t, clock), clock.Now)
	ctx := context.Background()

	require.NoError(t, p.ApplyDeltas(ctx, "p", "u", []models.Delta{models.Append("L", "first")}))
	clock.Step = -time.Hour
	require.NoError(t, p.ApplyDeltas(ctx, "p", "u", []models.Delta{models.Append("L", "second")}))

	doc, err := p.Reconstruct(ctx, "p", "u")
	require.NoError(t, err)
	require.Len(t, doc.Sections[0].Lines, 2)
	assert.Equal(t, "first", doc.Sections[0].Lines[0].Value)
	assert.Equal(t, "second", doc.Sections[0].Lines[1].Value)
}

func TestApplyDeltas_InterleavesScalarsAndListItems(t *testing.T) {
	p := newProjector(t)
	ctx := context.Background()
	require.NoError(t, p.ApplyDeltas(ctx, "p", "u", []models.Delta{
		models.Upsert("Current State", "phase", "beta"),
		models.Append("Current State", "tests green"),
		models.Upsert("Current State", "owner", "sam"),
	}))
	doc, err := p.Reconstruct(ctx, "p", "u")
	require.NoError(t, err)
	assert.Equal(t, []models.DocumentLine{
		{Key: "phase", Value: "beta"},
		{Value: "tests green", IsListItem: true},
		{Key: "owner", Value: "sam"},
	}, doc.Sections[0].Lines)
}

func TestApplyDeltas_InvalidBatchTouchesNothing(t *testing.T) {
	p := newProjector(t)
	ctx := context.Background()

	err := p.ApplyDeltas(ctx, "p", "u", []models.Delta{
		models.Upsert("S", "K", "V"),
		models.Upsert("", "x", "y"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalid))

	_, err = p.Reconstruct(ctx, "p", "u")
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "project must not be created by a rejected batch")
}

func TestValidateDelta(t *testing.T) {
	add, value := "item", "V"
	cases := []struct {
		name  string
		delta models.Delta
		ok    bool
	}{
		{"scalar", models.Upsert("S", "K", "V"), true},
		{"scalar empty value", models.Upsert("S", "K", ""), true},
		{"append", models.Append("S", "v"), true},
		{"missing section", models.Upsert("", "K", "V"), false},
		{"missing key", models.Delta{Section: "S", Value: &value}, false},
		{"missing value", models.Delta{Section: "S", Key: "K"}, false},
		{"key with add", models.Delta{Section: "S", Key: "K", Add: &add}, false},
		{"value with add", models.Delta{Section: "S", Value: &value, Add: &add}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDelta(tc.delta)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateDeltas_DecodedValuePresence(t *testing.T) {
	var deltas []models.Delta
	require.NoError(t, json.Unmarshal([]byte(`[{"section":"S","key":"K","value":""}]`), &deltas))
	assert.NoError(t, ValidateDeltas(deltas), "an explicit empty value is allowed")

	deltas = nil
	require.NoError(t, json.Unmarshal([]byte(`[{"section":"S","key":"K"}]`), &deltas))
	err := ValidateDeltas(deltas)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalid))
	assert.Contains(t, err.Error(), "value")
}

func TestReconstruct_MissingProject(t *testing.T) {
	p := newProjector(t)
	_, err := p.Reconstruct(context.Background(), "nope", "u")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestReconstruct_OtherUserNotFound(t *testing.T) {
	p := newProjector(t)
	ctx := context.Background()
	require.NoError(t, p.ApplyDeltas(ctx, "p", "alice", []models.Delta{models.Upsert("S", "K", "V")}))
	_, err := p.Reconstruct(ctx, "p", "bob")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestReconstruct_EmptyProjectUsesCreationTime(t *testing.T) {
	p := newProjector(t)
	ctx := context.Background()
	require.NoError(t, p.EnsureProject(ctx, "p", "u"))
	doc, err := p.Reconstruct(ctx, "p", "u")
	require.NoError(t, err)
	assert.Empty(t, doc.Sections)
	assert.Equal(t, testutil.Epoch, doc.LastUpdated)
}

func TestReconstruct_Golden(t *testing.T) {
	p := newProjector(t)
	ctx := context.Background()

	require.NoError(t, p.ApplyDeltas(ctx, "acme", "u", []models.Delta{
		models.Upsert("Zebra", "stripes", "many"),
		models.Append("Continuation Hints", "run migrations first"),
		models.Upsert("Summary", "text", "Widget API"),
		models.Upsert("Active Decisions", "storage", "SQLite"),
		models.Upsert("Alpha", "first", "custom section"),
	}))
	require.NoError(t, p.ApplyDeltas(ctx, "acme", "u", []models.Delta{
		models.Upsert("Summary", "text", "Widget API, v2"),
		models.Append("Continuation Hints", "then deploy"),
	}))

	doc, err := p.Reconstruct(ctx, "acme", "u")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "reconstruct", []byte(markdown.RenderDocument(*doc)))
}

func TestProject_CanonicalOrderThenAlphabetical(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fields := []models.StateField{
		{Section: "Zebra", Key: "z", Value: "1", UpdatedAt: base},
		{Section: "Summary", Key: "s", Value: "2", UpdatedAt: base.Add(time.Second)},
		{Section: "Active Decisions", Key: "a", Value: "3", UpdatedAt: base.Add(2 * time.Second)},
		{Section: "Apple", Key: "b", Value: "4", UpdatedAt: base.Add(3 * time.Second)},
	}
	doc := Project(models.Project{ProjectID: "p", CreatedAt: base.Add(-time.Hour)}, fields)

	var names []string
	for _, s := range doc.Sections {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Summary", "Active Decisions", "Apple", "Zebra"}, names)
	assert.Equal(t, base.Add(3*time.Second), doc.LastUpdated)
}

func TestProject_IsDeterministic(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fields := []models.StateField{
		{Section: "B", Key: "k", Value: "v", UpdatedAt: base},
		{Section: "A", Value: "item", IsListItem: true, UpdatedAt: base},
	}
	first := markdown.RenderDocument(Project(models.Project{ProjectID: "p"}, fields))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, markdown.RenderDocument(Project(models.Project{ProjectID: "p"}, fields)))
	}
}

func TestKeyGen_Unique(t *testing.T) {
	var g KeyGen
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		k := g.Next(ts)
		_, dup := seen[k]
		require.False(t, dup, "duplicate key %s", k)
		seen[k] = struct{}{}
	}
}
