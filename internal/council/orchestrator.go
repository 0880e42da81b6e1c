// Package council is the dispatch orchestrator: it fans one query out to a
// resolved set of personas under a consultation mode, collects their
// responses, and emits progress events in completion order.
package council

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quorum/internal/augment"
	"quorum/internal/config"
	"quorum/internal/history"
	"quorum/internal/logging"
	"quorum/internal/persona"
	"quorum/internal/provider"
	"quorum/internal/search"
	"quorum/internal/synthesis"
	"quorum/internal/types"
)

// Rounds in debate mode. The first round is blind; later rounds see the
// previous round's responses.
const debateRounds = 2

// emitFunc delivers a stream event. Always non-nil inside the orchestrator;
// the non-streaming path uses a no-op.
type emitFunc func(types.StreamEvent)

// Options wires an Orchestrator. Search, History, and Recaller are
// optional.
type Orchestrator struct {
	personas *persona.Store
	factory  *provider.Factory
	resolver *provider.Resolver
	sched    *Scheduler
	searcher *search.Manager
	store    *history.Store
	recaller *history.Recaller

	callTimeout time.Duration
	maxTokens   int
	tieBreak    string
	defaultMode types.Mode
}

// Deps holds the orchestrator's collaborators.
type Deps struct {
	Personas *persona.Store
	Factory  *provider.Factory
	Resolver *provider.Resolver
	Search   *search.Manager   // nil disables search augmentation
	History  *history.Store    // nil disables persistence
	Recaller *history.Recaller // nil disables auto-recall
}

// New creates an orchestrator.
func New(deps Deps, cfg config.CouncilConfig) *Orchestrator {
	tieBreak := cfg.TieBreak
	if tieBreak != TieBreakAlpha {
		tieBreak = TieBreakOrder
	}
	defaultMode := types.Mode(cfg.DefaultMode)
	if !defaultMode.IsValid() {
		defaultMode = types.ModeIndividual
	}
	callTimeout := time.Duration(cfg.CallTimeoutSeconds) * time.Second
	if callTimeout <= 0 {
		callTimeout = 2 * time.Minute
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Orchestrator{
		personas:    deps.Personas,
		factory:     deps.Factory,
		resolver:    deps.Resolver,
		sched:       NewScheduler(cfg.MaxConcurrent),
		searcher:    deps.Search,
		store:       deps.History,
		recaller:    deps.Recaller,
		callTimeout: callTimeout,
		maxTokens:   maxTokens,
		tieBreak:    tieBreak,
		defaultMode: defaultMode,
	}
}

// Consult runs a consultation synchronously and returns the full result.
func (o *Orchestrator) Consult(ctx context.Context, req types.ConsultationRequest) (*types.ConsultationResult, error) {
	specs, err := o.validate(&req)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, req, specs, false, func(types.StreamEvent) {})
}

// ConsultStream runs a consultation and streams progress events. Validation
// errors are returned synchronously; everything after that arrives on the
// channel, ending with a complete or error event. The channel is closed when
// the consultation is over.
func (o *Orchestrator) ConsultStream(ctx context.Context, req types.ConsultationRequest) (<-chan types.StreamEvent, error) {
	specs, err := o.validate(&req)
	if err != nil {
		return nil, err
	}

	events := make(chan types.StreamEvent, 64)
	emit := func(ev types.StreamEvent) {
		// Buffered fast path first so terminal events still land after
		// cancellation, when the consumer may only drain what is queued.
		select {
		case events <- ev:
			return
		default:
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)
		result, err := o.run(ctx, req, specs, true, emit)
		if err != nil {
			emit(types.ErrorEvent(err.Error()))
			return
		}
		emit(types.CompleteEvent(result))
	}()
	return events, nil
}

// validate rejects malformed requests before any dispatch and resolves the
// member list.
func (o *Orchestrator) validate(req *types.ConsultationRequest) ([]types.PersonaSpec, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, types.NewValidationError("query", "query must not be empty")
	}
	if req.Mode == "" {
		req.Mode = o.defaultMode
	}
	if !req.Mode.IsValid() {
		return nil, types.NewValidationError("mode",
			"unknown mode %q, must be one of: %s", req.Mode, strings.Join(modeNames(), ", "))
	}

	members := req.Members
	if len(members) == 0 && req.Domain != "" {
		var err error
		members, err = o.personas.DomainMembers(req.Domain)
		if err != nil {
			return nil, types.NewValidationError("domain", "unknown domain %q", req.Domain)
		}
	}
	if len(members) == 0 {
		return nil, types.NewValidationError("members", "member list resolves to empty")
	}

	specs := make([]types.PersonaSpec, len(members))
	for i, id := range members {
		spec, err := o.personas.Resolve(id)
		if err != nil {
			return nil, types.NewValidationError("members", "unknown persona %q", id)
		}
		specs[i] = spec
	}
	req.Members = members
	return specs, nil
}

func modeNames() []string {
	modes := types.ValidModes
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return names
}

// run executes the consultation state machine for a validated request.
func (o *Orchestrator) run(ctx context.Context, req types.ConsultationRequest, specs []types.PersonaSpec, stream bool, emit emitFunc) (*types.ConsultationResult, error) {
	timer := logging.StartTimer(logging.CategoryCouncil, "consultation")
	defer timer.Stop()

	logging.Council("consultation start: mode=%s members=%v", req.Mode, req.Members)

	qctx := o.buildContext(ctx, req)
	userPrompt := augment.UserPrompt(req.Query, qctx)
	searchContext := o.searchOnce(ctx, req, specs)

	var results []types.MemberResult
	switch req.Mode {
	case types.ModeSequential:
		results = o.runSequential(ctx, req, specs, userPrompt, searchContext, stream, emit)
	case types.ModeDebate:
		results = o.runDebate(ctx, req, specs, userPrompt, searchContext, stream, emit)
	default:
		results = o.runConcurrent(ctx, req, specs, userPrompt, searchContext, stream, emit)
	}

	succeeded := 0
	for _, r := range results {
		if !r.Failed() {
			succeeded++
		}
	}
	if succeeded == 0 && ctx.Err() == nil {
		members := make([]string, len(specs))
		for i, s := range specs {
			members[i] = s.ID
		}
		return nil, &types.AllMembersFailedError{Members: members}
	}

	result := &types.ConsultationResult{
		ID:        uuid.NewString(),
		Request:   req,
		Responses: results,
		Timestamp: time.Now().UTC(),
		SessionID: req.SessionID,
	}
	for _, r := range results {
		result.Usage.Add(r.Usage)
	}

	// Synthesis and ranking run only with live context and at least one
	// completed response.
	if ctx.Err() == nil && succeeded > 0 {
		switch req.Mode {
		case types.ModeSynthesis:
			o.synthesize(ctx, req, result, stream, emit)
		case types.ModeVote:
			result.Ranking = tallyVotes(results, o.tieBreak)
		}
	}

	o.persist(ctx, result)
	logging.Council("consultation %s done: %d/%d members succeeded", result.ID, succeeded, len(results))
	return result, nil
}

// runConcurrent dispatches all members simultaneously. Used by individual,
// synthesis, and vote modes.
func (o *Orchestrator) runConcurrent(ctx context.Context, req types.ConsultationRequest, specs []types.PersonaSpec, userPrompt, searchContext string, stream bool, emit emitFunc) []types.MemberResult {
	results := make([]types.MemberResult, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			prompt := o.memberPrompt(req, spec, userPrompt, searchContext)
			emit(types.MemberStartEvent(spec.ID))
			r := o.dispatchMember(gctx, req, spec, augment.SystemPrompt(spec), prompt, stream, emit)
			results[i] = r
			o.emitTerminal(emit, r)
			return nil // member failures never abort siblings
		})
	}
	_ = g.Wait()
	return results
}

// runSequential dispatches members one at a time, each seeing prior
// completed responses.
func (o *Orchestrator) runSequential(ctx context.Context, req types.ConsultationRequest, specs []types.PersonaSpec, userPrompt, searchContext string, stream bool, emit emitFunc) []types.MemberResult {
	results := make([]types.MemberResult, 0, len(specs))
	for _, spec := range specs {
		if ctx.Err() != nil {
			results = append(results, cancelledResult(spec.ID, ctx.Err()))
			continue
		}
		prompt := o.memberPrompt(req, spec, userPrompt, searchContext)
		prompt = augment.WithPriorResponses(prompt, results)
		emit(types.MemberStartEvent(spec.ID))
		r := o.dispatchMember(ctx, req, spec, augment.SystemPrompt(spec), prompt, stream, emit)
		results = append(results, r)
		o.emitTerminal(emit, r)
	}
	return results
}

// runDebate runs fixed rounds; rounds after the first show each member the
// previous round's responses. The final round's results stand.
func (o *Orchestrator) runDebate(ctx context.Context, req types.ConsultationRequest, specs []types.PersonaSpec, userPrompt, searchContext string, stream bool, emit emitFunc) []types.MemberResult {
	var previous []types.MemberResult
	for round := 1; round <= debateRounds; round++ {
		results := make([]types.MemberResult, len(specs))
		g, gctx := errgroup.WithContext(ctx)
		for i, spec := range specs {
			i, spec := i, spec
			prev := previous
			r := round
			g.Go(func() error {
				prompt := o.memberPrompt(req, spec, userPrompt, searchContext)
				if r > 1 {
					prompt = augment.WithDebateRound(prompt, r, prev, spec.ID)
				}
				emit(types.MemberStartEvent(spec.ID))
				res := o.dispatchMember(gctx, req, spec, augment.SystemPrompt(spec), prompt, stream, emit)
				results[i] = res
				o.emitTerminal(emit, res)
				return nil
			})
		}
		_ = g.Wait()
		previous = results
		if ctx.Err() != nil {
			break
		}
	}
	return previous
}

// memberPrompt applies per-member augmentation: reasoning mode, search
// context, and the ballot format for vote mode.
func (o *Orchestrator) memberPrompt(req types.ConsultationRequest, spec types.PersonaSpec, userPrompt, searchContext string) string {
	sc := ""
	if spec.WebSearch {
		sc = searchContext
	}
	prompt := augment.Augment(userPrompt, spec.ReasoningMode, sc)
	if req.Mode == types.ModeVote {
		prompt = augment.VoteInstructions(prompt)
	}
	return prompt
}

func (o *Orchestrator) emitTerminal(emit emitFunc, r types.MemberResult) {
	if r.Failed() {
		emit(types.MemberErrorEvent(r.PersonaID, r.Err))
		return
	}
	emit(types.MemberCompleteEvent(r.PersonaID, r.Content, r.Usage))
}

func cancelledResult(personaID string, err error) types.MemberResult {
	return types.MemberResult{PersonaID: personaID, Err: "cancelled: " + err.Error()}
}

// searchOnce runs web search a single time per consultation when at least
// one dispatching persona has it enabled. Failure yields empty context.
func (o *Orchestrator) searchOnce(ctx context.Context, req types.ConsultationRequest, specs []types.PersonaSpec) string {
	if o.searcher == nil {
		return ""
	}
	wanted := false
	for _, s := range specs {
		if s.WebSearch {
			wanted = true
			break
		}
	}
	if !wanted {
		return ""
	}
	return o.searcher.Context(ctx, req.Query)
}

// buildContext combines caller context, session carryover, and auto-recall.
func (o *Orchestrator) buildContext(ctx context.Context, req types.ConsultationRequest) string {
	parts := make([]string, 0, 3)
	if req.Context != "" {
		parts = append(parts, req.Context)
	}

	if req.SessionID != "" && o.store != nil {
		if transcript, err := o.store.SessionTranscript(req.SessionID, 3); err == nil && len(transcript) > 0 {
			var b strings.Builder
			b.WriteString("Earlier in this session:")
			for _, c := range transcript {
				fmt.Fprintf(&b, "\nQ: %s", c.Request.Query)
				if c.Synthesis != "" {
					fmt.Fprintf(&b, "\nA: %s", c.Synthesis)
				}
			}
			parts = append(parts, b.String())
		}
	}

	if req.AutoRecall && o.recaller != nil {
		if recalled, err := o.recaller.Recall(ctx, req.Query, 3); err == nil && len(recalled) > 0 {
			var b strings.Builder
			b.WriteString("Relevant past consultations:")
			for _, c := range recalled {
				fmt.Fprintf(&b, "\nQ: %s", c.Request.Query)
				if c.Synthesis != "" {
					fmt.Fprintf(&b, "\nA: %s", c.Synthesis)
				}
			}
			parts = append(parts, b.String())
		}
	}
	return strings.Join(parts, "\n\n")
}

// synthesize runs the mandatory combining pass for synthesis mode, plus the
// structured analysis. Synthesis failure downgrades the result rather than
// failing the consultation.
func (o *Orchestrator) synthesize(ctx context.Context, req types.ConsultationRequest, result *types.ConsultationResult, stream bool, emit emitFunc) {
	client, err := o.synthesisClient(req)
	if err != nil {
		logging.CouncilError("synthesis skipped: %v", err)
		return
	}
	synth := synthesis.New(client)

	if stream {
		contentChan, errChan := synth.SynthesizeStreaming(ctx, req.Query, req.Context, result.Responses)
		var sb strings.Builder
		for delta := range contentChan {
			sb.WriteString(delta)
			emit(types.SynthesisDeltaEvent(delta))
		}
		if err := <-errChan; err != nil {
			logging.CouncilError("synthesis failed: %v", err)
			return
		}
		result.Synthesis = strings.TrimSpace(sb.String())
	} else {
		text, usage, err := synth.Synthesize(ctx, req.Query, req.Context, result.Responses)
		if err != nil {
			logging.CouncilError("synthesis failed: %v", err)
			return
		}
		result.Synthesis = text
		if usage != nil {
			result.Usage.Add(*usage)
		}
	}
	emit(types.SynthesisCompleteEvent(result.Synthesis))

	if analysis, err := synth.Analyze(ctx, req.Query, result.Responses); err == nil {
		result.Analysis = analysis
	} else {
		logging.CouncilWarn("analysis failed: %v", err)
	}
}

// synthesisClient picks the provider for the synthesis pass: the requested
// provider if usable, else the first usable in priority order.
func (o *Orchestrator) synthesisClient(req types.ConsultationRequest) (provider.Client, error) {
	prov, err := o.resolver.Primary(req.Provider)
	if err != nil {
		return nil, err
	}
	opts := provider.Options{MaxTokens: o.maxTokens, Timeout: o.callTimeout}
	if prov == req.Provider {
		opts.Model = req.Model
		opts.APIKey = req.APIKey
		opts.BaseURL = req.BaseURL
	}
	return o.factory.New(prov, opts)
}

// persist appends the result to history and indexes it for recall. Storage
// failure is logged, never surfaced; the caller already has the result.
func (o *Orchestrator) persist(ctx context.Context, result *types.ConsultationResult) {
	if o.store == nil {
		return
	}
	if _, err := o.store.Append(result); err != nil {
		logging.HistoryError("failed to persist consultation: %v", err)
		return
	}
	if o.recaller != nil {
		o.recaller.Index(ctx, result.ID, result.Request.Query)
	}
}
