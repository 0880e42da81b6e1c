package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(query string) *types.ConsultationResult {
	return &types.ConsultationResult{
		Request: types.ConsultationRequest{
			Query:   query,
			Context: "some background",
			Domain:  "engineering",
			Mode:    types.ModeSynthesis,
		},
		Responses: []types.MemberResult{
			{
				PersonaID: "rams",
				Content:   "less but better",
				Provider:  "anthropic",
				Model:     "claude-sonnet-4-20250514",
				Usage:     types.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
				Latency:   1200 * time.Millisecond,
			},
			{PersonaID: "taleb", Err: "timed out"},
		},
		Synthesis: "the panel leans toward simplicity",
		Analysis: &types.Analysis{
			ConsensusScore: 0.8,
			KeyAgreements:  []string{"keep it simple"},
		},
		Usage: types.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
}

func TestAppendAndGet(t *testing.T) {
	store := newTestStore(t)

	in := sampleResult("Should we rewrite the billing service?")
	id, err := store.Append(in)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, in.ID)
	assert.False(t, in.Timestamp.IsZero(), "append assigns a timestamp")

	out, err := store.Get(id)
	require.NoError(t, err)

	assert.Equal(t, in.Request.Query, out.Request.Query)
	assert.Equal(t, in.Request.Domain, out.Request.Domain)
	assert.Equal(t, in.Request.Mode, out.Request.Mode)
	assert.Equal(t, in.Synthesis, out.Synthesis)
	assert.Equal(t, in.Usage, out.Usage)

	require.NotNil(t, out.Analysis)
	assert.InDelta(t, 0.8, out.Analysis.ConsensusScore, 1e-9)

	require.Len(t, out.Responses, 2)
	assert.Equal(t, "rams", out.Responses[0].PersonaID)
	assert.Equal(t, "less but better", out.Responses[0].Content)
	assert.Equal(t, in.Responses[0].Usage, out.Responses[0].Usage)
	assert.Equal(t, 1200*time.Millisecond, out.Responses[0].Latency)
	assert.True(t, out.Responses[1].Failed())
	assert.Equal(t, "timed out", out.Responses[1].Err)
}

func TestAppendRequestRoundTrip(t *testing.T) {
	store := newTestStore(t)

	in := sampleResult("monolith or services?")
	in.Request = types.ConsultationRequest{
		Query:       "monolith or services?",
		Context:     "greenfield product",
		Domain:      "engineering",
		Members:     []string{"rams", "taleb"},
		Mode:        types.ModeDebate,
		Provider:    "openai",
		Model:       "gpt-4o",
		BaseURL:     "http://localhost:9099",
		APIKey:      "sk-should-never-persist",
		Temperature: 0.4,
		MaxTokens:   512,
		SessionID:   "",
		AutoRecall:  true,
	}

	id, err := store.Append(in)
	require.NoError(t, err)

	out, err := store.Get(id)
	require.NoError(t, err)

	want := in.Request
	want.APIKey = ""
	assert.Equal(t, want, out.Request)

	listed, err := store.List(Filters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, want, listed[0].Request)

	var stored string
	require.NoError(t, store.db.QueryRow("SELECT request FROM consultations WHERE id = ?", id).Scan(&stored))
	assert.NotContains(t, stored, "sk-should-never-persist")
}

func TestGetUnknown(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get("nope")
	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "consultation", nf.Kind)
}

func TestValidateOrderBy(t *testing.T) {
	t.Run("empty defaults to timestamp", func(t *testing.T) {
		col, err := ValidateOrderBy("")
		require.NoError(t, err)
		assert.Equal(t, "timestamp", col)
	})

	t.Run("whitelisted keys pass", func(t *testing.T) {
		for _, key := range []string{"timestamp", "query", "mode", "id"} {
			col, err := ValidateOrderBy(key)
			require.NoError(t, err)
			assert.Equal(t, key, col)
		}
	})

	t.Run("anything else is a validation error", func(t *testing.T) {
		for _, key := range []string{"latency", "QUERY", "query; DROP TABLE consultations"} {
			_, err := ValidateOrderBy(key)
			var verr *types.ValidationError
			require.ErrorAs(t, err, &verr, "key %q", key)
			assert.Equal(t, "order_by", verr.Field)
		}
	})
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)

	first := sampleResult("first about caching")
	first.Request.Domain = "engineering"
	first.Request.Mode = types.ModeIndividual
	second := sampleResult("second about pricing")
	second.Request.Domain = "product"
	third := sampleResult("third about caching layers")
	third.Request.Domain = "engineering"

	for _, r := range []*types.ConsultationResult{first, second, third} {
		_, err := store.Append(r)
		require.NoError(t, err)
	}

	t.Run("no filters returns everything", func(t *testing.T) {
		all, err := store.List(Filters{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
		// Members are attached on list results too.
		assert.Len(t, all[0].Responses, 2)
	})

	t.Run("domain filter", func(t *testing.T) {
		got, err := store.List(Filters{Domain: "product"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, second.ID, got[0].ID)
	})

	t.Run("mode filter", func(t *testing.T) {
		got, err := store.List(Filters{Mode: string(types.ModeIndividual)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, first.ID, got[0].ID)
	})

	t.Run("text filter matches query substring", func(t *testing.T) {
		got, err := store.List(Filters{TextQuery: "caching"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("text filter matches synthesis", func(t *testing.T) {
		got, err := store.List(Filters{TextQuery: "leans toward simplicity"})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("limit applies", func(t *testing.T) {
		got, err := store.List(Filters{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("order by query is ascending", func(t *testing.T) {
		got, err := store.List(Filters{OrderBy: "query"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "first about caching", got[0].Request.Query)
		assert.Equal(t, "third about caching layers", got[2].Request.Query)
	})

	t.Run("hostile order key is rejected", func(t *testing.T) {
		_, err := store.List(Filters{OrderBy: "query; DROP TABLE consultations"})
		var verr *types.ValidationError
		require.ErrorAs(t, err, &verr)
	})
}

func TestUpdateMetadata(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Append(sampleResult("tag me"))
	require.NoError(t, err)

	notes := "worth revisiting"
	require.NoError(t, store.UpdateMetadata(id, []string{"architecture", "q3"}, &notes))

	tags, err := store.Tags(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"architecture", "q3"}, tags)

	t.Run("idempotent under identical calls", func(t *testing.T) {
		require.NoError(t, store.UpdateMetadata(id, []string{"architecture", "q3"}, &notes))
		tags, err := store.Tags(id)
		require.NoError(t, err)
		assert.Equal(t, []string{"architecture", "q3"}, tags)
	})

	t.Run("nil tags leave tags untouched", func(t *testing.T) {
		other := "new notes only"
		require.NoError(t, store.UpdateMetadata(id, nil, &other))
		tags, err := store.Tags(id)
		require.NoError(t, err)
		assert.Equal(t, []string{"architecture", "q3"}, tags)
	})

	t.Run("both nil is a no-op", func(t *testing.T) {
		require.NoError(t, store.UpdateMetadata(id, nil, nil))
	})

	t.Run("unknown id", func(t *testing.T) {
		err := store.UpdateMetadata("missing", []string{"x"}, nil)
		var nf *types.NotFoundError
		require.ErrorAs(t, err, &nf)
	})
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	id, err := store.Append(sampleResult("delete me"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(id))

	_, err = store.Get(id)
	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)

	// Member rows go with the consultation.
	var count int
	require.NoError(t, store.db.QueryRow(
		"SELECT COUNT(*) FROM members WHERE consultation_id = ?", id).Scan(&count))
	assert.Zero(t, count)

	t.Run("deleting twice reports not found", func(t *testing.T) {
		err := store.Delete(id)
		require.ErrorAs(t, err, &nf)
	})
}

func TestAppendPreservesExplicitID(t *testing.T) {
	store := newTestStore(t)
	in := sampleResult("keep my id")
	in.ID = "fixed-id"
	in.Timestamp = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := store.Append(in)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	out, err := store.Get("fixed-id")
	require.NoError(t, err)
	assert.True(t, out.Timestamp.Equal(in.Timestamp))
}
