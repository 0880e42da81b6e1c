package council

import (
	"context"
	"strings"
	"time"

	"quorum/internal/logging"
	"quorum/internal/provider"
	"quorum/internal/types"
)

// dispatchMember runs one persona's provider call through its fallback
// chain. A per-call timeout or call error advances to the next candidate
// immediately; exhausting the chain yields an error-only MemberResult. The
// member never fails the consultation by itself.
func (o *Orchestrator) dispatchMember(ctx context.Context, req types.ConsultationRequest, spec types.PersonaSpec, systemPrompt, userPrompt string, stream bool, emit emitFunc) types.MemberResult {
	result := types.MemberResult{PersonaID: spec.ID}
	start := time.Now()

	preferred := spec.Provider
	if preferred == "" {
		preferred = req.Provider
	}

	chain, err := o.resolver.Order(preferred)
	if err != nil {
		result.Err = err.Error()
		result.Latency = time.Since(start)
		return result
	}

	var lastErr error
	for _, prov := range chain {
		if ctx.Err() != nil {
			result.Err = "cancelled: " + ctx.Err().Error()
			result.Latency = time.Since(start)
			return result
		}

		client, err := o.factory.New(prov, o.clientOptions(req, spec, prov))
		if err != nil {
			lastErr = err
			continue
		}

		if err := o.sched.Acquire(ctx, spec.ID); err != nil {
			result.Err = "cancelled: " + err.Error()
			result.Latency = time.Since(start)
			return result
		}

		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		var content string
		var usage *types.Usage
		if stream {
			content, err = o.streamCall(callCtx, client, spec.ID, systemPrompt, userPrompt, emit)
		} else {
			content, usage, err = client.CompleteWithSystem(callCtx, systemPrompt, userPrompt)
		}
		cancel()
		o.sched.Release(spec.ID)

		if err == nil {
			result.Content = content
			result.Provider = prov
			result.Model = client.Model()
			if usage != nil {
				result.Usage = *usage
			}
			result.Latency = time.Since(start)
			logging.Council("member %s completed via %s in %v", spec.ID, prov, result.Latency)
			return result
		}

		// Parent cancellation is terminal; a per-call timeout is not, it
		// just advances the chain.
		if ctx.Err() != nil {
			result.Err = "cancelled: " + ctx.Err().Error()
			result.Latency = time.Since(start)
			return result
		}
		lastErr = err
		logging.CouncilWarn("member %s failed on %s, trying next candidate: %v", spec.ID, prov, err)
	}

	if lastErr != nil {
		result.Err = lastErr.Error()
	} else {
		result.Err = "no provider could serve this member"
	}
	result.Latency = time.Since(start)
	logging.CouncilError("member %s exhausted fallback chain: %s", spec.ID, result.Err)
	return result
}

// streamCall runs a streaming completion, forwarding deltas as events and
// returning the accumulated content.
func (o *Orchestrator) streamCall(ctx context.Context, client provider.Client, personaID, systemPrompt, userPrompt string, emit emitFunc) (string, error) {
	contentChan, errChan := client.CompleteWithStreaming(ctx, systemPrompt, userPrompt)

	var sb strings.Builder
	for delta := range contentChan {
		sb.WriteString(delta)
		emit(types.MemberDeltaEvent(personaID, delta))
	}
	if err := <-errChan; err != nil {
		return "", err
	}
	return strings.TrimSpace(sb.String()), nil
}

// clientOptions builds provider options for one member call. Persona-level
// settings apply only on the persona's own provider; request-level overrides
// apply only on the requested provider, so a fallback substitute runs with
// its configured defaults.
func (o *Orchestrator) clientOptions(req types.ConsultationRequest, spec types.PersonaSpec, prov string) provider.Options {
	opts := provider.Options{
		MaxTokens: o.maxTokens,
		Timeout:   o.callTimeout,
	}
	if req.MaxTokens > 0 {
		opts.MaxTokens = req.MaxTokens
	}

	if prov == spec.Provider && spec.Model != "" {
		opts.Model = spec.Model
	} else if prov == req.Provider && req.Model != "" {
		opts.Model = req.Model
	}

	switch {
	case spec.Temperature > 0:
		opts.Temperature = spec.Temperature
	case req.Temperature > 0:
		opts.Temperature = req.Temperature
	}

	if prov == req.Provider {
		opts.APIKey = req.APIKey
		opts.BaseURL = req.BaseURL
	}
	return opts
}
