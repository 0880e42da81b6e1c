package augment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"quorum/internal/types"
)

func TestSystemPrompt(t *testing.T) {
	t.Run("bare prompt still gets panel framing", func(t *testing.T) {
		got := SystemPrompt(types.PersonaSpec{Prompt: "You are terse."})
		assert.True(t, strings.HasPrefix(got, "You are terse."))
		assert.Contains(t, got, "one voice in a consultation panel")
	})

	t.Run("traits and focus areas are listed", func(t *testing.T) {
		got := SystemPrompt(types.PersonaSpec{
			Prompt: "p",
			Traits: []types.Trait{
				{Name: "skepticism", Weight: 2.0},
				{Name: "clarity", Weight: 1.5},
			},
			FocusAreas: []string{"risk", "pricing"},
		})
		assert.Contains(t, got, "- skepticism (2.0)")
		assert.Contains(t, got, "- clarity (1.5)")
		assert.Contains(t, got, "risk, pricing")
	})
}

func TestAugment(t *testing.T) {
	t.Run("standard mode with no search is a pass-through", func(t *testing.T) {
		assert.Equal(t, "the question", Augment("the question", types.ReasoningStandard, ""))
		assert.Equal(t, "the question", Augment("the question", "", ""))
	})

	t.Run("reasoning mode wraps the base", func(t *testing.T) {
		got := Augment("the question", types.ReasoningChainOfThought, "")
		assert.Contains(t, got, "step by step")
		assert.Contains(t, got, "the question")
		assert.Contains(t, got, "clearly marked conclusion")
		assert.Less(t, strings.Index(got, "step by step"), strings.Index(got, "the question"))
	})

	t.Run("search context is injected before the question", func(t *testing.T) {
		got := Augment("the question", "", "1. Some result")
		assert.Contains(t, got, "Relevant web search results:")
		assert.Less(t, strings.Index(got, "Some result"), strings.Index(got, "the question"))
	})

	t.Run("every reasoning mode has both halves", func(t *testing.T) {
		for _, mode := range []types.ReasoningMode{
			types.ReasoningChainOfThought,
			types.ReasoningTreeOfThought,
			types.ReasoningReflective,
			types.ReasoningAnalytical,
			types.ReasoningCreative,
		} {
			got := Augment("base", mode, "")
			assert.NotEqual(t, "base", got, "mode %s", mode)
			assert.Contains(t, got, "base")
		}
	})
}

func TestUserPrompt(t *testing.T) {
	assert.Equal(t, "just the query", UserPrompt("just the query", ""))

	got := UserPrompt("the query", "prior discussion")
	assert.Contains(t, got, "Background context:\nprior discussion")
	assert.Contains(t, got, "Question:\nthe query")
}

func TestWithPriorResponses(t *testing.T) {
	t.Run("no completed priors is a pass-through", func(t *testing.T) {
		assert.Equal(t, "base", WithPriorResponses("base", nil))
		assert.Equal(t, "base", WithPriorResponses("base", []types.MemberResult{
			{PersonaID: "x", Err: "failed"},
		}))
	})

	t.Run("completed priors are attributed, failures skipped", func(t *testing.T) {
		got := WithPriorResponses("base", []types.MemberResult{
			{PersonaID: "rams", Content: "remove the feature"},
			{PersonaID: "taleb", Err: "timed out"},
		})
		assert.Contains(t, got, "--- rams ---")
		assert.Contains(t, got, "remove the feature")
		assert.NotContains(t, got, "taleb")
	})
}

func TestWithDebateRound(t *testing.T) {
	got := WithDebateRound("base", 2, []types.MemberResult{
		{PersonaID: "self", Content: "my own view"},
		{PersonaID: "rival", Content: "the opposing view"},
		{PersonaID: "broken", Err: "boom"},
	}, "self")

	assert.Contains(t, got, "round 2")
	assert.Contains(t, got, "--- rival ---")
	assert.Contains(t, got, "the opposing view")
	assert.NotContains(t, got, "my own view")
	assert.NotContains(t, got, "broken")
}

func TestVoteInstructions(t *testing.T) {
	got := VoteInstructions("base")
	assert.Contains(t, got, "VOTE: <option>")
	assert.Contains(t, got, "SCORE: <1-10>")
	assert.True(t, strings.HasPrefix(got, "base"))
}
