package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/types"
)

func TestParseBallot(t *testing.T) {
	t.Run("full ballot", func(t *testing.T) {
		option, score, ok := parseBallot("Reasoning first.\nVOTE: Option A\nSCORE: 8")
		require.True(t, ok)
		assert.Equal(t, "Option A", option)
		assert.Equal(t, 8, score)
	})

	t.Run("missing score defaults to neutral", func(t *testing.T) {
		option, score, ok := parseBallot("VOTE: keep the monolith")
		require.True(t, ok)
		assert.Equal(t, "keep the monolith", option)
		assert.Equal(t, 5, score)
	})

	t.Run("score clamped high", func(t *testing.T) {
		_, score, ok := parseBallot("VOTE: x\nSCORE: 99")
		require.True(t, ok)
		assert.Equal(t, 10, score)
	})

	t.Run("score clamped low", func(t *testing.T) {
		_, score, ok := parseBallot("VOTE: x\nSCORE: 0")
		require.True(t, ok)
		assert.Equal(t, 1, score)
	})

	t.Run("no ballot", func(t *testing.T) {
		_, _, ok := parseBallot("I vote we discuss further, but no ballot here.")
		assert.False(t, ok)
	})

	t.Run("indented and lowercase lines", func(t *testing.T) {
		option, score, ok := parseBallot("text\n  vote: Option B  \n  score: 3")
		require.True(t, ok)
		assert.Equal(t, "Option B", option)
		assert.Equal(t, 3, score)
	})

	t.Run("vote must start its line", func(t *testing.T) {
		_, _, ok := parseBallot("my VOTE: something inline")
		assert.False(t, ok)
	})
}

func voteResult(id, content string) types.MemberResult {
	return types.MemberResult{PersonaID: id, Content: content}
}

func TestTallyVotes(t *testing.T) {
	t.Run("groups case-insensitively and sums scores", func(t *testing.T) {
		ranking := tallyVotes([]types.MemberResult{
			voteResult("a", "VOTE: Postgres\nSCORE: 7"),
			voteResult("b", "VOTE: postgres\nSCORE: 4"),
			voteResult("c", "VOTE: SQLite\nSCORE: 9"),
		}, TieBreakOrder)

		require.Len(t, ranking, 2)
		assert.Equal(t, "Postgres", ranking[0].Option)
		assert.Equal(t, float64(11), ranking[0].Score)
		assert.Equal(t, 2, ranking[0].Votes)
		assert.Equal(t, "SQLite", ranking[1].Option)
	})

	t.Run("skips failed members and missing ballots", func(t *testing.T) {
		ranking := tallyVotes([]types.MemberResult{
			{PersonaID: "a", Err: "timed out"},
			voteResult("b", "no ballot in this response"),
			voteResult("c", "VOTE: Only Option\nSCORE: 2"),
		}, TieBreakOrder)

		require.Len(t, ranking, 1)
		assert.Equal(t, "Only Option", ranking[0].Option)
		assert.Equal(t, 1, ranking[0].Votes)
	})

	t.Run("order tie-break favors the earliest voter", func(t *testing.T) {
		ranking := tallyVotes([]types.MemberResult{
			voteResult("a", "VOTE: Zebra\nSCORE: 5"),
			voteResult("b", "VOTE: Apple\nSCORE: 5"),
		}, TieBreakOrder)

		require.Len(t, ranking, 2)
		assert.Equal(t, "Zebra", ranking[0].Option)
	})

	t.Run("alpha tie-break favors the alphabetical option", func(t *testing.T) {
		ranking := tallyVotes([]types.MemberResult{
			voteResult("a", "VOTE: Zebra\nSCORE: 5"),
			voteResult("b", "VOTE: Apple\nSCORE: 5"),
		}, TieBreakAlpha)

		require.Len(t, ranking, 2)
		assert.Equal(t, "Apple", ranking[0].Option)
	})

	t.Run("empty input yields empty ranking", func(t *testing.T) {
		assert.Empty(t, tallyVotes(nil, TieBreakOrder))
	})
}
