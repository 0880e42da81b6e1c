// Package search provides web search augmentation for consultations. A
// Manager tries backends in a configurable preference order; a failing
// backend is logged and skipped, and search failure is never fatal to the
// caller.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quorum/internal/logging"
	"quorum/internal/types"
)

// Result represents a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Backend is a web search implementation.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Manager tries backends in preference order and formats results for prompt
// injection.
type Manager struct {
	backends   []Backend
	maxResults int
	timeout    time.Duration
}

// NewManager creates a manager over the given backends, tried in order.
func NewManager(backends []Backend, maxResults int, timeout time.Duration) *Manager {
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Manager{backends: backends, maxResults: maxResults, timeout: timeout}
}

// Search runs the query against the first backend that succeeds. Returns nil
// results and a SearchAugmentationError when every backend fails; callers
// treat that as absent context.
func (m *Manager) Search(ctx context.Context, query string) ([]Result, error) {
	if len(m.backends) == 0 {
		return nil, &types.SearchAugmentationError{Backend: "none", Err: fmt.Errorf("no backends configured")}
	}

	var lastErr error
	for _, b := range m.backends {
		sctx, cancel := context.WithTimeout(ctx, m.timeout)
		results, err := b.Search(sctx, query, m.maxResults)
		cancel()
		if err != nil {
			logging.SearchWarn("backend %s failed: %v", b.Name(), err)
			lastErr = &types.SearchAugmentationError{Backend: b.Name(), Err: err}
			continue
		}
		logging.Search("backend %s returned %d results for %q", b.Name(), len(results), query)
		return results, nil
	}
	return nil, lastErr
}

// Context runs a search and formats the results as prompt context. Failures
// yield an empty string; the caller proceeds without search context.
func (m *Manager) Context(ctx context.Context, query string) string {
	results, err := m.Search(ctx, query)
	if err != nil {
		logging.SearchWarn("search augmentation skipped: %v", err)
		return ""
	}
	return Format(results)
}

// Format renders results as compact markdown for prompt injection.
func Format(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
