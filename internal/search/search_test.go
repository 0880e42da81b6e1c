package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/types"
)

type stubBackend struct {
	name    string
	results []Result
	err     error
	calls   int
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func TestManagerSearch(t *testing.T) {
	t.Run("first success wins", func(t *testing.T) {
		first := &stubBackend{name: "one", results: []Result{{Title: "t", URL: "u"}}}
		second := &stubBackend{name: "two"}
		m := NewManager([]Backend{first, second}, 5, time.Second)

		got, err := m.Search(context.Background(), "q")
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Zero(t, second.calls, "second backend untouched when the first works")
	})

	t.Run("falls through failing backends", func(t *testing.T) {
		broken := &stubBackend{name: "broken", err: errors.New("captcha")}
		working := &stubBackend{name: "working", results: []Result{{Title: "t", URL: "u"}}}
		m := NewManager([]Backend{broken, working}, 5, time.Second)

		got, err := m.Search(context.Background(), "q")
		require.NoError(t, err)
		assert.Len(t, got, 1)
		assert.Equal(t, 1, broken.calls)
	})

	t.Run("all failing wraps the last error", func(t *testing.T) {
		m := NewManager([]Backend{&stubBackend{name: "b", err: errors.New("down")}}, 5, time.Second)

		_, err := m.Search(context.Background(), "q")
		var serr *types.SearchAugmentationError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "b", serr.Backend)
	})

	t.Run("no backends configured", func(t *testing.T) {
		_, err := NewManager(nil, 5, time.Second).Search(context.Background(), "q")
		var serr *types.SearchAugmentationError
		require.ErrorAs(t, err, &serr)
	})
}

func TestManagerContext(t *testing.T) {
	t.Run("failure yields empty context", func(t *testing.T) {
		m := NewManager([]Backend{&stubBackend{name: "b", err: errors.New("down")}}, 5, time.Second)
		assert.Empty(t, m.Context(context.Background(), "q"))
	})

	t.Run("results are formatted", func(t *testing.T) {
		m := NewManager([]Backend{&stubBackend{name: "b", results: []Result{
			{Title: "Title One", URL: "https://example.com", Snippet: "a snippet"},
		}}}, 5, time.Second)
		got := m.Context(context.Background(), "q")
		assert.Contains(t, got, "1. Title One (https://example.com)")
		assert.Contains(t, got, "a snippet")
	})
}

func TestFormat(t *testing.T) {
	assert.Empty(t, Format(nil))

	got := Format([]Result{
		{Title: "First", URL: "https://a.example"},
		{Title: "Second", URL: "https://b.example", Snippet: "details"},
	})
	assert.Contains(t, got, "1. First (https://a.example)")
	assert.Contains(t, got, "2. Second (https://b.example)")
	assert.Contains(t, got, "   details")
}

const fixtureHTML = `<html><body>
<div id="links">
  <div class="result results_links results_links_deep web-result">
    <h2 class="result__title">
      <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">Go Documentation</a>
    </h2>
    <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F">The official docs.</a>
  </div>
  <div class="result results_links web-result">
    <a class="result__a" href="https://example.com/page">Plain Link</a>
    <a class="result__snippet" href="https://example.com/page">No redirect here.</a>
  </div>
  <div class="result results_links web-result">
    <a class="result__a" href="https://example.com/third">Third</a>
  </div>
  <div class="some-other-div">
    <a class="result__a" href="https://ignored.example">Ignored</a>
  </div>
</div>
</body></html>`

func TestParseResults(t *testing.T) {
	results, err := parseResults(fixtureHTML, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Redirect URL unwrapped to the target.
	assert.Equal(t, "Go Documentation", results[0].Title)
	assert.Equal(t, "https://go.dev/doc/", results[0].URL)
	assert.Equal(t, "The official docs.", results[0].Snippet)

	assert.Equal(t, "Plain Link", results[1].Title)
	assert.Equal(t, "https://example.com/page", results[1].URL)

	assert.Equal(t, "Third", results[2].Title)
	assert.Empty(t, results[2].Snippet)
}

func TestParseResultsMaxCap(t *testing.T) {
	results, err := parseResults(fixtureHTML, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestParseResultsEmptyPage(t *testing.T) {
	results, err := parseResults("<html><body>No results.</body></html>", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
