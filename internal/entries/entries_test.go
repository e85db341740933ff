package entries

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/noosphere/internal/apperr"
	"github.com/starford/noosphere/internal/markdown"
	"github.com/starford/noosphere/internal/models"
	"github.com/starford/noosphere/internal/testutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	clock := testutil.NewClock()
	return New(testutil.TestDB(t, clock), clock.Now)
}

func draft(title string, sections ...markdown.Section) Draft {
	return Draft{Title: title, Sections: sections}
}

func TestCreate_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "p", "u", draft("T", markdown.Section{Heading: "Context", Body: "hello"}))
	require.NoError(t, err)

	e, err := s.Get(ctx, id, "u")
	require.NoError(t, err)
	assert.Equal(t, "T", e.Title)
	assert.Contains(t, e.Content, "## Context\nhello")

	body, ok := ExtractSection(e.Content, "Context")
	require.True(t, ok)
	assert.Equal(t, "hello", body)
}

func TestCreate_PreservesSectionOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "p", "u", draft("T",
		markdown.Section{Heading: "Zulu", Body: "z"},
		markdown.Section{Heading: "Alpha", Body: "a"},
	))
	require.NoError(t, err)

	e, err := s.Get(ctx, id, "u")
	require.NoError(t, err)
	assert.Equal(t, "## Zulu\nz\n\n## Alpha\na", e.Content)
}

func TestCreate_Validation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	cases := map[string]Draft{
		"missing title":    draft("", markdown.Section{Heading: "A", Body: "b"}),
		"no sections":      draft("T"),
		"blank heading":    draft("T", markdown.Section{Heading: "  ", Body: "b"}),
		"multiline header": draft("T", markdown.Section{Heading: "A\nB", Body: "b"}),
		"unknown type": {
			Title: "T", Sections: markdown.Sections{{Heading: "A", Body: "b"}}, Type: "weekly",
		},
		"blank tag": {
			Title: "T", Sections: markdown.Sections{{Heading: "A", Body: "b"}}, Tags: []string{"ok", ""},
		},
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Create(ctx, "p", "u", d)
			assert.True(t, errors.Is(err, apperr.ErrInvalid), "got %v", err)
		})
	}

	_, err := s.Create(ctx, "", "u", draft("T", markdown.Section{Heading: "A", Body: "b"}))
	assert.True(t, errors.Is(err, apperr.ErrInvalid))

	n, err := s.Count(ctx, "p", "u")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreate_Metadata(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "p", "u", draft("Plain", markdown.Section{Heading: "A", Body: "b"}))
	require.NoError(t, err)
	e, err := s.Get(ctx, id, "u")
	require.NoError(t, err)
	assert.Equal(t, models.EntryTypeSession, e.Type)
	assert.Equal(t, models.DefaultSourceTool, e.SourceTool)
	assert.Empty(t, e.Tags)

	id, err = s.Create(ctx, "p", "u", Draft{
		Title:      "Architecture",
		Sections:   markdown.Sections{{Heading: "A", Body: "b"}},
		Type:       models.EntryTypeFoundational,
		SourceTool: "cursor",
		Tags:       []string{"auth", "storage"},
	})
	require.NoError(t, err)
	e, err = s.Get(ctx, id, "u")
	require.NoError(t, err)
	assert.Equal(t, models.EntryTypeFoundational, e.Type)
	assert.Equal(t, "cursor", e.SourceTool)
	assert.Equal(t, []string{"auth", "storage"}, e.Tags)
}

func TestGet_OtherUserIsNotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, "p", "alice", draft("secret", markdown.Section{Heading: "A", Body: "b"}))
	require.NoError(t, err)

	_, err = s.Get(ctx, id, "bob")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestRecentAndCount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, title := range []string{"one", "two", "three"} {
		_, err := s.Create(ctx, "p", "u", draft(title, markdown.Section{Heading: "A", Body: title}))
		require.NoError(t, err)
	}

	recent, err := s.Recent(ctx, "p", "u", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "three", recent[0].Title)
	assert.Equal(t, "two", recent[1].Title)

	n, err := s.Count(ctx, "p", "u")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := s.All(ctx, "p", "u")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Title)
}

func TestSearch_EmptyKeywords(t *testing.T) {
	s := newStore(t)
	res, err := s.Search(context.Background(), "p", "u", nil)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestSearch_ScopedToUser(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "p", "alice", draft("Auth", markdown.Section{Heading: "Notes", Body: "jwt rotation"}))
	require.NoError(t, err)

	res, err := s.Search(ctx, "p", "bob", []string{"jwt"})
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = s.Search(ctx, "p", "alice", []string{"jwt"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Auth", res[0].Title)
}

func TestNewID_Format(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	id := NewID(ts)
	assert.Regexp(t, regexp.MustCompile(`^e_20260304_050607_[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewID(ts))
}

func TestRender_Frontmatter(t *testing.T) {
	e := models.Entry{
		EntryID:    "e_1",
		ProjectID:  "acme/api",
		Title:      "Chose: SQLite",
		Type:       models.EntryTypeSession,
		SourceTool: "claude",
		Tags:       []string{"storage", "sqlite"},
		Timestamp:  time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Content:    "## Context\nhello",
	}
	out, err := Render(e)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "---\nentry_id: e_1\nproject_id: acme/api\n"))
	assert.Contains(t, out, "Chose: SQLite")
	assert.Contains(t, out, "source_tool: claude\n")
	assert.Contains(t, out, "2026-03-04T05:06:07Z")
	assert.Contains(t, out, "tags: [storage, sqlite]\n")
	assert.Contains(t, out, "type: session\n")
	assert.True(t, strings.HasSuffix(out, "---\n\n## Context\nhello"))
}
