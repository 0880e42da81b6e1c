// Package types holds the shared domain types for the consultation engine.
// It has no dependencies on other quorum packages so that every layer can
// import it without cycles.
package types

import "time"

// Mode is the aggregation/ordering strategy for a consultation.
type Mode string

const (
	ModeIndividual Mode = "individual"
	ModeSequential Mode = "sequential"
	ModeSynthesis  Mode = "synthesis"
	ModeDebate     Mode = "debate"
	ModeVote       Mode = "vote"
)

// ValidModes lists every supported consultation mode.
var ValidModes = []Mode{ModeIndividual, ModeSequential, ModeSynthesis, ModeDebate, ModeVote}

// IsValid reports whether m names a supported mode.
func (m Mode) IsValid() bool {
	for _, v := range ValidModes {
		if m == v {
			return true
		}
	}
	return false
}

// ReasoningMode selects the instructional framing injected into a persona's
// prompt by the augmenter.
type ReasoningMode string

const (
	ReasoningStandard       ReasoningMode = "standard"
	ReasoningChainOfThought ReasoningMode = "chain-of-thought"
	ReasoningTreeOfThought  ReasoningMode = "tree-of-thought"
	ReasoningReflective     ReasoningMode = "reflective"
	ReasoningAnalytical     ReasoningMode = "analytical"
	ReasoningCreative       ReasoningMode = "creative"
)

// ValidReasoningModes lists every supported reasoning mode.
var ValidReasoningModes = []ReasoningMode{
	ReasoningStandard, ReasoningChainOfThought, ReasoningTreeOfThought,
	ReasoningReflective, ReasoningAnalytical, ReasoningCreative,
}

// IsValid reports whether m names a supported reasoning mode.
func (m ReasoningMode) IsValid() bool {
	for _, v := range ValidReasoningModes {
		if m == v {
			return true
		}
	}
	return false
}

// Trait is a weighted behavioral dimension of a persona.
// Weights live in [1.0, 2.0]; the persona store rejects anything else at load.
type Trait struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Archetype is a reusable trait template personas may inherit from.
// Its fields are defaults; persona fields win on collision.
type Archetype struct {
	ID          string  `yaml:"id" json:"id"`
	Traits      []Trait `yaml:"traits" json:"traits"`
	Provider    string  `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model       string  `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

// PersonaSpec is a fully-resolved persona record: archetype defaults merged
// with persona overrides, resolved once at load.
type PersonaSpec struct {
	ID            string        `yaml:"id" json:"id"`
	Name          string        `yaml:"name,omitempty" json:"name,omitempty"`
	Prompt        string        `yaml:"prompt" json:"prompt"`
	Archetype     string        `yaml:"archetype,omitempty" json:"archetype,omitempty"`
	Traits        []Trait       `yaml:"traits,omitempty" json:"traits,omitempty"`
	Provider      string        `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model         string        `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature   float64       `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	ReasoningMode ReasoningMode `yaml:"reasoning_mode,omitempty" json:"reasoning_mode,omitempty"`
	WebSearch     bool          `yaml:"web_search,omitempty" json:"web_search,omitempty"`
	FocusAreas    []string      `yaml:"focus_areas,omitempty" json:"focus_areas,omitempty"`
}

// ConsultationRequest describes one query dispatched across a set of personas.
type ConsultationRequest struct {
	Query       string   `json:"query"`
	Context     string   `json:"context,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	Members     []string `json:"members,omitempty"` // explicit persona ids; empty = domain defaults
	Mode        Mode     `json:"mode"`
	Provider    string   `json:"provider,omitempty"` // council-wide default provider override
	Model       string   `json:"model,omitempty"`
	BaseURL     string   `json:"base_url,omitempty"`
	APIKey      string   `json:"api_key,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
	AutoRecall  bool     `json:"auto_recall,omitempty"`
}

// Usage counts tokens for a single call or a whole consultation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
	u.TotalTokens += u2.TotalTokens
}

// MemberResult is the terminal outcome for one persona in one consultation.
// Exactly one of Content or Err carries the outcome; Provider and Model record
// what was actually used after fallback substitution.
type MemberResult struct {
	PersonaID string        `json:"persona_id"`
	Content   string        `json:"content,omitempty"`
	Err       string        `json:"error,omitempty"`
	Provider  string        `json:"provider,omitempty"`
	Model     string        `json:"model,omitempty"`
	Usage     Usage         `json:"usage"`
	Latency   time.Duration `json:"latency_ns"`
}

// Failed reports whether the member terminated in error.
func (r MemberResult) Failed() bool { return r.Err != "" }

// Analysis is the structured synthesis variant.
type Analysis struct {
	ConsensusScore  float64  `json:"consensus_score"`
	KeyAgreements   []string `json:"key_agreements"`
	KeyTensions     []string `json:"key_tensions"`
	Recommendations []string `json:"recommendations"`
}

// VoteTally is the aggregate ranking computed in vote mode.
type VoteTally struct {
	Option string  `json:"option"`
	Score  float64 `json:"score"`
	Votes  int     `json:"votes"`
}

// ConsultationResult is the complete outcome of one consultation.
// Responses always has one entry per resolved member, in the originally
// requested member order, regardless of completion order or failures.
type ConsultationResult struct {
	ID        string              `json:"id"`
	Request   ConsultationRequest `json:"request"`
	Responses []MemberResult      `json:"responses"`
	Synthesis string              `json:"synthesis,omitempty"`
	Analysis  *Analysis           `json:"analysis,omitempty"`
	Ranking   []VoteTally         `json:"ranking,omitempty"`
	Usage     Usage               `json:"usage"`
	Timestamp time.Time           `json:"timestamp"`
	SessionID string              `json:"session_id,omitempty"`
}

// Succeeded returns the results that completed with content.
func (r *ConsultationResult) Succeeded() []MemberResult {
	var ok []MemberResult
	for _, m := range r.Responses {
		if !m.Failed() {
			ok = append(ok, m)
		}
	}
	return ok
}

// Session groups consultations for replay and recall.
type Session struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	ConsultationIDs []string  `json:"consultation_ids,omitempty"`
	Active          bool      `json:"active"`
	Tags            []string  `json:"tags,omitempty"`
}
