// Package augment builds the prompts sent to consultation members: the
// persona system prompt, reasoning-mode instructions, optional search
// context, and the cross-member context used by sequential and debate modes.
package augment

import (
	"fmt"
	"strings"

	"quorum/internal/logging"
	"quorum/internal/types"
)

// Reasoning-mode instruction blocks. Standard injects nothing.
var reasoningPrefixes = map[types.ReasoningMode]string{
	types.ReasoningChainOfThought: "Think through this step by step. Lay out your reasoning " +
		"chain explicitly before stating your conclusion.",
	types.ReasoningTreeOfThought: "Consider at least three distinct approaches to this question. " +
		"Briefly explore each branch, prune the weak ones, and develop the strongest.",
	types.ReasoningReflective: "Give your initial answer, then critique it: what did you miss, " +
		"what assumptions are shaky? Revise your answer in light of the critique.",
	types.ReasoningAnalytical: "Break the question into its component parts. Address each part " +
		"with evidence or explicit uncertainty before combining them.",
	types.ReasoningCreative: "Favor unconventional angles. Include at least one idea that would " +
		"not survive a conventional review, and say why it might still be right.",
}

var reasoningSuffixes = map[types.ReasoningMode]string{
	types.ReasoningChainOfThought: "End with a single clearly marked conclusion.",
	types.ReasoningTreeOfThought:  "End by naming which branch you chose and why.",
	types.ReasoningReflective:     "End with your revised answer, clearly marked.",
	types.ReasoningAnalytical:     "End with a summary table or list of findings per component.",
	types.ReasoningCreative:       "End with your most promising unconventional idea.",
}

// SystemPrompt builds the system message for a resolved persona: its prompt,
// weighted traits, and focus areas.
func SystemPrompt(p types.PersonaSpec) string {
	var b strings.Builder
	b.WriteString(p.Prompt)

	if len(p.Traits) > 0 {
		b.WriteString("\n\nEmphasize these traits in your response (weight 1.0 is normal, 2.0 is dominant):")
		for _, t := range p.Traits {
			fmt.Fprintf(&b, "\n- %s (%.1f)", t.Name, t.Weight)
		}
	}
	if len(p.FocusAreas) > 0 {
		fmt.Fprintf(&b, "\n\nYour areas of focus: %s.", strings.Join(p.FocusAreas, ", "))
	}
	b.WriteString("\n\nYou are one voice in a consultation panel. Give your own view; do not hedge toward consensus.")
	return b.String()
}

// Augment applies reasoning-mode instructions and optional search context to
// a base user prompt. Standard mode with no search context returns the base
// unchanged.
func Augment(base string, mode types.ReasoningMode, searchContext string) string {
	prefix := reasoningPrefixes[mode]
	suffix := reasoningSuffixes[mode]

	if prefix == "" && searchContext == "" {
		return base
	}

	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteString("\n\n")
	}
	if searchContext != "" {
		b.WriteString("Relevant web search results:\n")
		b.WriteString(searchContext)
		b.WriteString("\n\n")
		logging.Augment("injected search context (%d bytes)", len(searchContext))
	}
	b.WriteString(base)
	if suffix != "" {
		b.WriteString("\n\n")
		b.WriteString(suffix)
	}
	return b.String()
}

// UserPrompt composes the base user prompt from query and optional caller
// context.
func UserPrompt(query, context string) string {
	if context == "" {
		return query
	}
	return fmt.Sprintf("Background context:\n%s\n\nQuestion:\n%s", context, query)
}

// WithPriorResponses appends earlier members' responses for sequential mode.
// Each prior response is attributed so the member can engage with it.
func WithPriorResponses(base string, prior []types.MemberResult) string {
	completed := make([]types.MemberResult, 0, len(prior))
	for _, r := range prior {
		if !r.Failed() {
			completed = append(completed, r)
		}
	}
	if len(completed) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nEarlier panel members have already responded:")
	for _, r := range completed {
		fmt.Fprintf(&b, "\n\n--- %s ---\n%s", r.PersonaID, r.Content)
	}
	b.WriteString("\n\nBuild on, refine, or challenge what came before. Do not repeat it.")
	return b.String()
}

// WithDebateRound appends the previous round's responses for debate mode,
// excluding the member's own so it argues against others, not itself.
func WithDebateRound(base string, round int, previous []types.MemberResult, selfID string) string {
	var b strings.Builder
	b.WriteString(base)
	fmt.Fprintf(&b, "\n\nThis is round %d of a structured debate.", round)
	b.WriteString(" The other panelists argued in the previous round:")
	for _, r := range previous {
		if r.PersonaID == selfID || r.Failed() {
			continue
		}
		fmt.Fprintf(&b, "\n\n--- %s ---\n%s", r.PersonaID, r.Content)
	}
	b.WriteString("\n\nRespond to their strongest points directly. Concede where they are right; rebut where they are wrong.")
	return b.String()
}

// VoteInstructions appends the structured ballot format vote mode parses.
func VoteInstructions(base string) string {
	return base + "\n\nAfter your reasoning, end your response with a ballot in exactly this format:\n" +
		"VOTE: <option>\nSCORE: <1-10>\n" +
		"where <option> is your preferred choice stated in a few words and <score> is your confidence."
}
