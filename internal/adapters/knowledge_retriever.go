package adapters

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/solightly/capstan"
)

// VectorKnowledgeStore implements the capstan.KnowledgeStore interface over a
// Genkit vector retriever.
type VectorKnowledgeStore struct {
	retriever  ai.Retriever
	maxResults int
	minScore   float64
}

// KnowledgeStoreOption configures a VectorKnowledgeStore.
type KnowledgeStoreOption func(*VectorKnowledgeStore)

// WithMaxResults caps how many documents one search may return.
func WithMaxResults(max int) KnowledgeStoreOption {
	return func(s *VectorKnowledgeStore) {
		s.maxResults = max
	}
}

// WithMinScore sets the minimum similarity score for returned documents.
func WithMinScore(min float64) KnowledgeStoreOption {
	return func(s *VectorKnowledgeStore) {
		s.minScore = min
	}
}

// NewVectorKnowledgeStore creates a knowledge store around a Genkit retriever.
func NewVectorKnowledgeStore(retriever ai.Retriever, options ...KnowledgeStoreOption) *VectorKnowledgeStore {
	store := &VectorKnowledgeStore{
		retriever:  retriever,
		maxResults: 5,
		minScore:   0.7,
	}
	for _, option := range options {
		option(store)
	}
	return store
}

// Search implements capstan.KnowledgeStore. topK <= 0 falls back to the
// configured maximum.
func (s *VectorKnowledgeStore) Search(ctx context.Context, query string, topK int) ([]capstan.Hit, error) {
	if s.retriever == nil {
		return nil, fmt.Errorf("knowledge retriever is not configured")
	}
	if topK <= 0 || topK > s.maxResults {
		topK = s.maxResults
	}

	startTime := time.Now()
	resp, err := ai.Retrieve(ctx, s.retriever,
		ai.WithTextDocs(query),
		ai.WithConfig(map[string]interface{}{
			"k":            topK,
			"minScore":     s.minScore,
			"returnScores": true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("vector retrieval failed: %w", err)
	}

	hits := make([]capstan.Hit, 0, len(resp.Documents))
	for _, doc := range resp.Documents {
		score := 0.0
		if scoreVal, ok := doc.Metadata["score"]; ok {
			if v, ok := scoreVal.(float64); ok {
				score = v
			}
		}
		var text string
		for _, part := range doc.Content {
			if part != nil {
				text += part.Text
			}
		}
		hits = append(hits, capstan.Hit{
			Text:     text,
			Score:    score,
			Metadata: doc.Metadata,
		})
	}

	log.Printf("Vector retrieval complete (documents: %d, duration_ms: %d)",
		len(hits), time.Since(startTime).Milliseconds())
	return hits, nil
}
