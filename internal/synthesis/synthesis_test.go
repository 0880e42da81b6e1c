package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/types"
)

func TestParseAnalysis(t *testing.T) {
	t.Run("bare json", func(t *testing.T) {
		a, err := ParseAnalysis(`{"consensus_score": 0.6, "key_agreements": ["a"], "key_tensions": ["t"], "recommendations": ["r"]}`)
		require.NoError(t, err)
		assert.InDelta(t, 0.6, a.ConsensusScore, 1e-9)
		assert.Equal(t, []string{"a"}, a.KeyAgreements)
		assert.Equal(t, []string{"t"}, a.KeyTensions)
		assert.Equal(t, []string{"r"}, a.Recommendations)
	})

	t.Run("json inside markdown fences and prose", func(t *testing.T) {
		content := "Here is my analysis:\n```json\n{\"consensus_score\": 0.4, \"key_agreements\": []}\n```\nHope that helps."
		a, err := ParseAnalysis(content)
		require.NoError(t, err)
		assert.InDelta(t, 0.4, a.ConsensusScore, 1e-9)
	})

	t.Run("braces inside strings do not confuse extraction", func(t *testing.T) {
		a, err := ParseAnalysis(`{"consensus_score": 1, "key_agreements": ["uses {braces} and \"quotes\""]}`)
		require.NoError(t, err)
		assert.Equal(t, []string{`uses {braces} and "quotes"`}, a.KeyAgreements)
	})

	t.Run("score clamped to unit interval", func(t *testing.T) {
		a, err := ParseAnalysis(`{"consensus_score": 7.5}`)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, a.ConsensusScore, 1e-9)

		a, err = ParseAnalysis(`{"consensus_score": -2}`)
		require.NoError(t, err)
		assert.Zero(t, a.ConsensusScore)
	})

	t.Run("no json at all", func(t *testing.T) {
		_, err := ParseAnalysis("the panel mostly agreed")
		require.Error(t, err)
	})

	t.Run("unbalanced json", func(t *testing.T) {
		_, err := ParseAnalysis(`{"consensus_score": 0.5`)
		require.Error(t, err)
	})
}

func TestBuildPrompt(t *testing.T) {
	got := buildPrompt("the question", "the backstory", []types.MemberResult{
		{PersonaID: "rams", Content: "simplify"},
		{PersonaID: "taleb", Err: "provider down"},
	})

	assert.Contains(t, got, "Background context:\nthe backstory")
	assert.Contains(t, got, "the question")
	assert.Contains(t, got, "--- rams ---\nsimplify")
	// A failed member is visible but marked, so the model cannot invent its view.
	assert.Contains(t, got, "--- taleb ---\n(did not respond: provider down)")
}

func TestFormatAnalysis(t *testing.T) {
	t.Run("nil analysis formats empty", func(t *testing.T) {
		assert.Empty(t, FormatAnalysis(nil))
	})

	t.Run("sections appear only when populated", func(t *testing.T) {
		got := FormatAnalysis(&types.Analysis{
			ConsensusScore:  0.75,
			KeyAgreements:   []string{"ship it"},
			Recommendations: []string{"start with a pilot"},
		})
		assert.Contains(t, got, "Consensus: 75%")
		assert.Contains(t, got, "+ ship it")
		assert.Contains(t, got, "> start with a pilot")
		assert.NotContains(t, got, "Tensions:")
	})
}
