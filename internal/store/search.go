package store

import (
	"context"
	"strings"

	"github.com/starford/noosphere/internal/models"
)

// MaxSearchResults caps every search.
const MaxSearchResults = 20

// SearchEntries matches any keyword against entry titles and bodies, scoped
// to one project and user, best match first. It uses the FTS5 index when
// available and LIKE scans otherwise.
func (db *DB) SearchEntries(ctx context.Context, projectID, userID string, keywords []string, limit int) ([]models.SearchResult, error) {
	keywords = normalizeKeywords(keywords)
	if len(keywords) == 0 {
		return nil, nil
	}
	if db.fullText {
		return db.searchFTS(ctx, projectID, userID, keywords, limit)
	}
	return db.searchLike(ctx, projectID, userID, keywords, limit)
}

// normalizeKeywords trims keywords and drops blanks and duplicates, keeping order.
func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// matchQuery builds a disjunctive FTS5 query where every keyword is a quoted
// string, so operators and column filters inside keywords are inert.
func matchQuery(keywords []string) string {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = `"` + strings.ReplaceAll(k, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxSearchResults {
		return MaxSearchResults
	}
	return limit
}
