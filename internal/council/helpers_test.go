package council

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"quorum/internal/config"
	"quorum/internal/persona"
	"quorum/internal/provider"
	"quorum/internal/types"
)

// chatRequest mirrors the OpenAI-compatible wire request the stub endpoint
// receives from the gateway client.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Stream bool `json:"stream"`
}

// stubReply configures how the panel server answers one caller, matched by a
// marker substring of the system prompt.
type stubReply struct {
	content string
	status  int  // 0 means 200
	block   bool // hold the request open until the client gives up
}

// panelServer is an OpenAI-compatible stub endpoint. Each test persona (and
// the synthesis/analysis passes) is told apart by its system prompt, so one
// server can play the whole panel.
type panelServer struct {
	t       *testing.T
	mu      sync.Mutex
	replies map[string]stubReply
	prompts map[string][]string // user prompts seen, keyed by marker
	served  chan string         // marker pushed after each completed reply
	server  *httptest.Server
}

func newPanelServer(t *testing.T, replies map[string]stubReply) *panelServer {
	t.Helper()
	ps := &panelServer{
		t:       t,
		replies: replies,
		prompts: make(map[string][]string),
		served:  make(chan string, 32),
	}
	ps.server = httptest.NewServer(http.HandlerFunc(ps.handle))
	t.Cleanup(ps.server.Close)
	return ps
}

func (p *panelServer) url() string { return p.server.URL }

// userPrompts returns the user prompts received for a marker, in order.
func (p *panelServer) userPrompts(marker string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.prompts[marker]))
	copy(out, p.prompts[marker])
	return out
}

func (p *panelServer) handle(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}

	var marker string
	var reply stubReply
	found := false
	p.mu.Lock()
	for k, v := range p.replies {
		if strings.Contains(system, k) {
			marker, reply, found = k, v, true
			break
		}
	}
	if found {
		p.prompts[marker] = append(p.prompts[marker], user)
	}
	p.mu.Unlock()
	if !found {
		p.t.Errorf("panel server got unmatched system prompt: %.80q", system)
		http.Error(w, "no stub reply", http.StatusBadRequest)
		return
	}

	if reply.block {
		<-r.Context().Done()
		return
	}
	if reply.status != 0 && reply.status != http.StatusOK {
		http.Error(w, "stub failure", reply.status)
		return
	}

	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, chunk := range splitChunks(reply.content) {
			data, _ := json.Marshal(map[string]interface{}{
				"choices": []map[string]interface{}{
					{"delta": map[string]string{"content": chunk}},
				},
			})
			fmt.Fprintf(w, "data: %s\n\n", data)
			fl.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		fl.Flush()
	} else {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply.content}},
			},
			"usage": map[string]int{"prompt_tokens": 7, "completion_tokens": 11, "total_tokens": 18},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}

	select {
	case p.served <- marker:
	default:
	}
}

// splitChunks breaks content into two pieces so streaming tests see more
// than one delta.
func splitChunks(content string) []string {
	if len(content) < 2 {
		return []string{content}
	}
	mid := len(content) / 2
	return []string{content[:mid], content[mid:]}
}

const testLibrary = `personas:
  - id: alpha
    prompt: "You are Alpha, a pragmatic engineer."
  - id: beta
    prompt: "You are Beta, a skeptical reviewer."
  - id: gamma
    prompt: "You are Gamma, a long-range strategist."
domains:
  review:
    - alpha
    - beta
`

func newTestPersonas(t *testing.T) *persona.Store {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "panel.yaml"), []byte(testLibrary), 0o644))
	store, err := persona.NewStore(dir)
	require.NoError(t, err)
	return store
}

// clearProviderEnv blanks every credential variable so ambient keys on the
// test machine cannot change which providers look usable.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "QUORUM_API_KEY", "QUORUM_GATEWAY_URL"} {
		t.Setenv(v, "")
	}
}

// newTestOrchestrator wires an orchestrator whose only usable provider is a
// gateway pointed at the stub server. No history, search, or recall.
func newTestOrchestrator(t *testing.T, url string) *Orchestrator {
	t.Helper()
	clearProviderEnv(t)

	cfg := config.Default()
	cfg.Providers.Priority = []string{provider.ProviderGateway}
	cfg.Providers.Gateway.BaseURL = url

	return New(Deps{
		Personas: newTestPersonas(t),
		Factory:  provider.NewFactory(&cfg.Providers),
		Resolver: provider.NewResolver(cfg.Providers.Priority, &cfg.Providers),
	}, config.CouncilConfig{
		MaxConcurrent:      4,
		CallTimeoutSeconds: 10,
		MaxTokens:          256,
		TieBreak:           TieBreakOrder,
		DefaultMode:        string(types.ModeIndividual),
	})
}
