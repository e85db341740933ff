package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/starford/noosphere/internal/models"
)

// snippetRadius is the number of bytes kept on each side of the first match.
const snippetRadius = 80

// searchLike scans entries with LIKE when FTS5 is not compiled in. Hits are
// ranked by the number of keyword occurrences.
func (db *DB) searchLike(ctx context.Context, projectID, userID string, keywords []string, limit int) ([]models.SearchResult, error) {
	var (
		conds []string
		args  = []any{projectID, userID}
	)
	for _, k := range keywords {
		like := "%" + escapeLike(k) + "%"
		conds = append(conds, `title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'`)
		args = append(args, like, like)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT entry_id, title, type, source_tool, tags, content, timestamp
		FROM entries
		WHERE project_id = ? AND user_id = ? AND (`+strings.Join(conds, " OR ")+`)
		ORDER BY timestamp DESC, entry_id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	type hit struct {
		result models.SearchResult
		score  int
	}
	var hits []hit
	for rows.Next() {
		var (
			r                 models.SearchResult
			tags, content, ts string
		)
		if err := rows.Scan(&r.EntryID, &r.Title, &r.Type, &r.SourceTool, &tags, &content, &ts); err != nil {
			return nil, fmt.Errorf("store: scan search result: %w", err)
		}
		if r.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		if r.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		r.Snippet = likeSnippet(content, keywords)
		hits = append(hits, hit{result: r, score: score(r.Title+"\n"+content, keywords)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	limit = clampLimit(limit)
	out := make([]models.SearchResult, 0, min(limit, len(hits)))
	for i := 0; i < len(hits) && i < limit; i++ {
		out = append(out, hits[i].result)
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func score(text string, keywords []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, k := range keywords {
		n += strings.Count(lower, strings.ToLower(k))
	}
	return n
}

// likeSnippet returns an excerpt around the first keyword occurrence with the
// match wrapped in brackets, mirroring the FTS5 snippet markers.
func likeSnippet(content string, keywords []string) string {
	lower := strings.ToLower(content)
	if len(lower) != len(content) {
		// Case folding changed byte offsets; fall back to a leading excerpt.
		return leadingExcerpt(content)
	}
	start, end := -1, -1
	for _, k := range keywords {
		if i := strings.Index(lower, strings.ToLower(k)); i >= 0 && (start < 0 || i < start) {
			start, end = i, i+len(k)
		}
	}
	if start < 0 {
		return leadingExcerpt(content)
	}

	from := max(0, start-snippetRadius)
	for from > 0 && !utf8.RuneStart(content[from]) {
		from--
	}
	to := min(len(content), end+snippetRadius)
	for to < len(content) && !utf8.RuneStart(content[to]) {
		to++
	}

	var b strings.Builder
	if from > 0 {
		b.WriteString("...")
	}
	b.WriteString(content[from:start])
	b.WriteString("[")
	b.WriteString(content[start:end])
	b.WriteString("]")
	b.WriteString(content[end:to])
	if to < len(content) {
		b.WriteString("...")
	}
	return b.String()
}

func leadingExcerpt(content string) string {
	if len(content) <= 2*snippetRadius {
		return content
	}
	cut := 2 * snippetRadius
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}
