package history

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"google.golang.org/genai"

	"quorum/internal/logging"
	"quorum/internal/types"
)

// Recaller finds past consultations relevant to a new query using Gemini
// embeddings over the history store. When no embedding client is available
// it degrades to substring search.
type Recaller struct {
	store  *Store
	client *genai.Client
	model  string
}

// NewRecaller creates a recaller. apiKey may be empty; recall then uses the
// substring fallback.
func NewRecaller(store *Store, apiKey, model string) (*Recaller, error) {
	if model == "" {
		model = "gemini-embedding-001"
	}
	r := &Recaller{store: store, model: model}
	if apiKey == "" {
		logging.History("recall: no embedding key, using substring fallback")
		return r, nil
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	r.client = client
	return r, nil
}

// embed generates an embedding for text. task is one of the API task type
// strings ("RETRIEVAL_DOCUMENT", "RETRIEVAL_QUERY").
func (r *Recaller) embed(ctx context.Context, text string, task string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}
	result, err := r.client.Models.EmbedContent(ctx, r.model, contents,
		&genai.EmbedContentConfig{TaskType: task})
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

// Index stores the embedding of a consultation's query for later recall.
// Failures are logged, not returned; recall is best-effort.
func (r *Recaller) Index(ctx context.Context, id, query string) {
	if r.client == nil {
		return
	}
	vec, err := r.embed(ctx, query, "RETRIEVAL_DOCUMENT")
	if err != nil {
		logging.HistoryError("recall: failed to embed consultation %s: %v", id, err)
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, err = r.store.db.Exec(`INSERT INTO recall_embeddings (consultation_id, embedding)
		VALUES (?, ?) ON CONFLICT(consultation_id) DO UPDATE SET embedding = excluded.embedding`,
		id, string(data))
	if err != nil {
		logging.HistoryError("recall: failed to store embedding for %s: %v", id, err)
	}
}

// Recall returns up to limit past consultations most relevant to query.
func (r *Recaller) Recall(ctx context.Context, query string, limit int) ([]*types.ConsultationResult, error) {
	if limit <= 0 {
		limit = 3
	}
	if r.client == nil {
		return r.store.List(Filters{TextQuery: query, Limit: limit})
	}

	queryVec, err := r.embed(ctx, query, "RETRIEVAL_QUERY")
	if err != nil {
		logging.HistoryError("recall: query embed failed, falling back to substring: %v", err)
		return r.store.List(Filters{TextQuery: query, Limit: limit})
	}

	type scored struct {
		id    string
		score float64
	}
	var candidates []scored

	r.store.mu.RLock()
	rows, err := r.store.db.Query("SELECT consultation_id, embedding FROM recall_embeddings")
	if err != nil {
		r.store.mu.RUnlock()
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(data), &vec); err != nil {
			continue
		}
		candidates = append(candidates, scored{id: id, score: cosineSimilarity(queryVec, vec)})
	}
	rows.Close()
	r.store.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]*types.ConsultationResult, 0, len(candidates))
	for _, c := range candidates {
		result, err := r.store.Get(c.id)
		if err != nil {
			continue
		}
		results = append(results, result)
	}
	logging.History("recall: %d relevant consultations for %q", len(results), query)
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
