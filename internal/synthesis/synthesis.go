// Package synthesis combines completed member responses into a single
// answer, optionally streamed, plus a structured analysis pass.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"quorum/internal/logging"
	"quorum/internal/provider"
	"quorum/internal/types"
)

const synthesisSystemPrompt = "You are the moderator of an advisory panel. You have received " +
	"the panelists' responses to a question. Produce one combined answer: where they agree, " +
	"state the consensus plainly; where they disagree, name the tension and take a position. " +
	"Attribute notable points to the panelist who made them. Be decisive."

const analysisSystemPrompt = "You analyze a set of advisory panel responses. Respond with " +
	"ONLY a JSON object, no prose before or after, in exactly this shape:\n" +
	`{"consensus_score": 0.0, "key_agreements": [], "key_tensions": [], "recommendations": []}` + "\n" +
	"consensus_score is 0.0 (total disagreement) to 1.0 (full agreement). Each array holds " +
	"short strings."

// Synthesizer runs the combining pass over terminal member results.
type Synthesizer struct {
	client provider.Client
}

// New creates a synthesizer over the given provider client.
func New(client provider.Client) *Synthesizer {
	return &Synthesizer{client: client}
}

// buildPrompt assembles the synthesis user prompt from the query and every
// completed response. Failed members are noted so the synthesis does not
// invent their views.
func buildPrompt(query, qctx string, results []types.MemberResult) string {
	var b strings.Builder
	if qctx != "" {
		fmt.Fprintf(&b, "Background context:\n%s\n\n", qctx)
	}
	fmt.Fprintf(&b, "The question put to the panel:\n%s\n\nPanel responses:\n", query)
	for _, r := range results {
		if r.Failed() {
			fmt.Fprintf(&b, "\n--- %s ---\n(did not respond: %s)\n", r.PersonaID, r.Err)
			continue
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", r.PersonaID, r.Content)
	}
	return b.String()
}

// Synthesize produces the combined answer. Call only after every
// contributing MemberResult is terminal.
func (s *Synthesizer) Synthesize(ctx context.Context, query, qctx string, results []types.MemberResult) (string, *types.Usage, error) {
	timer := logging.StartTimer(logging.CategoryCouncil, "synthesize")
	defer timer.Stop()

	content, usage, err := s.client.CompleteWithSystem(ctx, synthesisSystemPrompt, buildPrompt(query, qctx, results))
	if err != nil {
		return "", nil, fmt.Errorf("synthesis call failed: %w", err)
	}
	return content, usage, nil
}

// SynthesizeStreaming streams the combined answer as content deltas.
func (s *Synthesizer) SynthesizeStreaming(ctx context.Context, query, qctx string, results []types.MemberResult) (<-chan string, <-chan error) {
	return s.client.CompleteWithStreaming(ctx, synthesisSystemPrompt, buildPrompt(query, qctx, results))
}

// Analyze produces the structured analysis of agreement across responses.
// The model is asked for bare JSON; markdown fences and surrounding prose
// are tolerated.
func (s *Synthesizer) Analyze(ctx context.Context, query string, results []types.MemberResult) (*types.Analysis, error) {
	content, _, err := s.client.CompleteWithSystem(ctx, analysisSystemPrompt, buildPrompt(query, "", results))
	if err != nil {
		return nil, fmt.Errorf("analysis call failed: %w", err)
	}
	return ParseAnalysis(content)
}

// ParseAnalysis extracts the analysis JSON from model output. Consensus
// score is clamped to [0, 1].
func ParseAnalysis(content string) (*types.Analysis, error) {
	jsonStr := extractJSON(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object found in analysis response")
	}

	var a types.Analysis
	if err := json.Unmarshal([]byte(jsonStr), &a); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	if a.ConsensusScore < 0 {
		a.ConsensusScore = 0
	}
	if a.ConsensusScore > 1 {
		a.ConsensusScore = 1
	}
	return &a, nil
}

// extractJSON finds the first balanced top-level JSON object in text,
// skipping markdown fences and prose.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

// FormatAnalysis flattens a structured analysis to display text. Pure
// formatting, no model call.
func FormatAnalysis(a *types.Analysis) string {
	if a == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Consensus: %.0f%%\n", a.ConsensusScore*100)
	if len(a.KeyAgreements) > 0 {
		b.WriteString("\nAgreements:\n")
		for _, s := range a.KeyAgreements {
			fmt.Fprintf(&b, "  + %s\n", s)
		}
	}
	if len(a.KeyTensions) > 0 {
		b.WriteString("\nTensions:\n")
		for _, s := range a.KeyTensions {
			fmt.Fprintf(&b, "  ~ %s\n", s)
		}
	}
	if len(a.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, s := range a.Recommendations {
			fmt.Fprintf(&b, "  > %s\n", s)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
