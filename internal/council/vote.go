package council

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"quorum/internal/types"
)

// Vote tie-break policies.
const (
	TieBreakOrder = "order" // earliest voter in requested member order wins
	TieBreakAlpha = "alpha" // alphabetical option name wins
)

var (
	voteRe  = regexp.MustCompile(`(?mi)^\s*VOTE:\s*(.+?)\s*$`)
	scoreRe = regexp.MustCompile(`(?mi)^\s*SCORE:\s*(\d+)\s*$`)
)

// parseBallot extracts the structured preference from a member response.
// A missing ballot means the response does not contribute to the ranking.
func parseBallot(content string) (option string, score int, ok bool) {
	m := voteRe.FindStringSubmatch(content)
	if m == nil {
		return "", 0, false
	}
	option = strings.TrimSpace(m[1])
	if option == "" {
		return "", 0, false
	}

	score = 5 // neutral default when the score line is missing or malformed
	if sm := scoreRe.FindStringSubmatch(content); sm != nil {
		if n, err := strconv.Atoi(sm[1]); err == nil {
			score = n
			if score < 1 {
				score = 1
			}
			if score > 10 {
				score = 10
			}
		}
	}
	return option, score, true
}

// tallyVotes aggregates ballots into a ranking. Options are grouped
// case-insensitively; ties on score are broken by the configured policy.
func tallyVotes(results []types.MemberResult, tieBreak string) []types.VoteTally {
	type entry struct {
		tally      types.VoteTally
		firstVoter int
	}
	byOption := make(map[string]*entry)

	for i, r := range results {
		if r.Failed() {
			continue
		}
		option, score, ok := parseBallot(r.Content)
		if !ok {
			continue
		}
		key := strings.ToLower(option)
		e, exists := byOption[key]
		if !exists {
			e = &entry{tally: types.VoteTally{Option: option}, firstVoter: i}
			byOption[key] = e
		}
		e.tally.Score += float64(score)
		e.tally.Votes++
	}

	entries := make([]*entry, 0, len(byOption))
	for _, e := range byOption {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.tally.Score != b.tally.Score {
			return a.tally.Score > b.tally.Score
		}
		if tieBreak == TieBreakAlpha {
			return strings.ToLower(a.tally.Option) < strings.ToLower(b.tally.Option)
		}
		return a.firstVoter < b.firstVoter
	})

	ranking := make([]types.VoteTally, len(entries))
	for i, e := range entries {
		ranking[i] = e.tally
	}
	return ranking
}
