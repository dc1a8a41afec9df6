package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/prospector/internal/model"
)

// ErrQuotaExceeded means the provider will refuse further requests for now.
// The run must stop searching when it sees this error.
var ErrQuotaExceeded = errors.New("search quota exceeded")

// PageSize is the most results a single provider request returns
const PageSize = 10

// Query is one page of a search
type Query struct {
	Text   string
	Offset int // 0-based index of the first result
	Limit  int // At most PageSize
}

// Provider returns result URLs for a query
type Provider interface {
	Search(ctx context.Context, q Query) ([]string, error)
}

// BuildQuery renders the query text for a task: "<keyword> <location> <suffix>"
func BuildQuery(task model.SearchTask, suffix string) string {
	parts := []string{strings.TrimSpace(task.Keyword), strings.TrimSpace(task.Location())}
	if s := strings.TrimSpace(suffix); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Collect pages through p until want unique URLs are gathered or results run out
func Collect(ctx context.Context, p Provider, text string, want int) ([]string, error) {
	if want <= 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, want)
	var urls []string
	for offset := 0; len(urls) < want; offset += PageSize {
		limit := min(PageSize, want-len(urls))
		page, err := p.Search(ctx, Query{Text: text, Offset: offset, Limit: limit})
		if err != nil {
			if len(urls) > 0 && !errors.Is(err, ErrQuotaExceeded) {
				return urls, nil
			}
			return urls, fmt.Errorf("search %q: %w", text, err)
		}
		for _, u := range page {
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
			if len(urls) == want {
				break
			}
		}
		if len(page) < limit {
			break
		}
	}
	return urls, nil
}
