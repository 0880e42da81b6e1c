package types

import "encoding/json"

// EventType discriminates the streamed event union.
type EventType string

const (
	EventMemberStart       EventType = "member_start"
	EventMemberDelta       EventType = "member_delta"
	EventMemberComplete    EventType = "member_complete"
	EventMemberError       EventType = "member_error"
	EventSynthesisDelta    EventType = "synthesis_delta"
	EventSynthesisComplete EventType = "synthesis_complete"
	EventComplete          EventType = "complete"
	EventError             EventType = "error"
)

// StreamEvent is one typed event on the consultation stream. Events are
// emitted in real completion order, one JSON object per event. Unused fields
// are omitted from the wire form.
type StreamEvent struct {
	Type      EventType           `json:"type"`
	PersonaID string              `json:"persona_id,omitempty"`
	Delta     string              `json:"delta,omitempty"`
	Content   string              `json:"content,omitempty"`
	Usage     *Usage              `json:"usage,omitempty"`
	Err       string              `json:"error,omitempty"`
	Synthesis string              `json:"synthesis,omitempty"`
	Result    *ConsultationResult `json:"result,omitempty"`
}

// JSON renders the event in the wire format. Marshal errors cannot occur for
// this type; the fallback keeps the stream well-formed regardless.
func (e StreamEvent) JSON() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return []byte(`{"type":"error","error":"event encoding failed"}`)
	}
	return b
}

// MemberStartEvent announces that a persona entered the responding state.
func MemberStartEvent(personaID string) StreamEvent {
	return StreamEvent{Type: EventMemberStart, PersonaID: personaID}
}

// MemberDeltaEvent carries one streamed content chunk from a persona.
func MemberDeltaEvent(personaID, delta string) StreamEvent {
	return StreamEvent{Type: EventMemberDelta, PersonaID: personaID, Delta: delta}
}

// MemberCompleteEvent carries a persona's terminal content and usage.
func MemberCompleteEvent(personaID, content string, usage Usage) StreamEvent {
	return StreamEvent{Type: EventMemberComplete, PersonaID: personaID, Content: content, Usage: &usage}
}

// MemberErrorEvent carries a persona's terminal failure.
func MemberErrorEvent(personaID, errMsg string) StreamEvent {
	return StreamEvent{Type: EventMemberError, PersonaID: personaID, Err: errMsg}
}

// SynthesisDeltaEvent carries one streamed synthesis chunk.
func SynthesisDeltaEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventSynthesisDelta, Delta: delta}
}

// SynthesisCompleteEvent carries the full synthesis text.
func SynthesisCompleteEvent(synthesis string) StreamEvent {
	return StreamEvent{Type: EventSynthesisComplete, Synthesis: synthesis}
}

// CompleteEvent closes a successful stream with the full result.
func CompleteEvent(result *ConsultationResult) StreamEvent {
	return StreamEvent{Type: EventComplete, Result: result}
}

// ErrorEvent closes a failed stream.
func ErrorEvent(errMsg string) StreamEvent {
	return StreamEvent{Type: EventError, Err: errMsg}
}
