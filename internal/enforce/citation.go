package enforce

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/BrightWayAI/grant-builder-sub003/internal/ai"
	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
)

// CitationStore persists the citation set for a section, replacing whatever
// was mapped before.
type CitationStore interface {
	ReplaceCitations(ctx context.Context, sectionID uuid.UUID, citations []models.Citation) error
}

// CitationMapper links generated sentences to the evidence chunks that
// support them. Scoring is lexical overlap, blended with embedding cosine
// when both an embedder and a chunk embedding are available. Given identical
// inputs the output is identical: span segmentation and scoring have no
// randomness, and ties break on chunk input order.
type CitationMapper struct {
	store    CitationStore
	embedder ai.Embedder // nil disables the semantic half
	cfg      Config
}

func NewCitationMapper(store CitationStore, embedder ai.Embedder, cfg Config) *CitationMapper {
	return &CitationMapper{store: store, embedder: embedder, cfg: cfg}
}

type MapRequest struct {
	SectionID      uuid.UUID
	GeneratedText  string
	Chunks         []models.EvidenceChunk
	OrganizationID uuid.UUID
}

type chunkScore struct {
	index int
	score float64
}

// MapAndPersist segments the section text into sentence spans, attaches every
// chunk scoring above the confidence threshold (best first, capped), and
// replaces the section's citations. Spans with no qualifying chunk are still
// recorded, with an empty evidence list: that is a gap the verifier and the
// gate need to see, not an error.
func (m *CitationMapper) MapAndPersist(ctx context.Context, req MapRequest) ([]models.Citation, error) {
	text := req.GeneratedText

	chunkTokens := make([][]string, len(req.Chunks))
	for i, ch := range req.Chunks {
		chunkTokens[i] = tokenize(ch.Content)
	}

	var citations []models.Citation
	embedderDown := false

	for _, sp := range segmentSentences(text) {
		sentence := sp.of(text)

		// Placeholder markers are not prose; the placeholder scan owns them.
		if ph := DetectPlaceholders(sentence); len(ph) == 1 && ph[0].Start == 0 && ph[0].End == len(sentence) {
			continue
		}

		spanTokens := tokenize(sentence)

		var spanVec []float32
		if m.embedder != nil && !embedderDown && hasEmbeddedChunk(req.Chunks) {
			vec, err := m.embedder.GenerateEmbedding(ctx, sentence)
			if err != nil {
				// Degrade to lexical-only for the rest of this pass, the way
				// search degrades to keywords when the embedder is down.
				log.Printf("citation mapping: embedder unavailable, lexical-only: %v", err)
				embedderDown = true
			} else {
				spanVec = vec
			}
		}

		var scored []chunkScore
		for i, ch := range req.Chunks {
			score := lexicalScore(spanTokens, chunkTokens[i])
			if spanVec != nil && len(ch.Embedding) > 0 {
				score = (score + cosine32(spanVec, ch.Embedding)) / 2
			}
			if score >= m.cfg.CitationConfidenceThreshold {
				scored = append(scored, chunkScore{index: i, score: score})
			}
		}

		sort.SliceStable(scored, func(a, b int) bool {
			return scored[a].score > scored[b].score
		})
		if len(scored) > m.cfg.MaxEvidencePerSpan {
			scored = scored[:m.cfg.MaxEvidencePerSpan]
		}

		cit := models.Citation{
			ID:               uuid.New(),
			SectionID:        req.SectionID,
			SpanStart:        sp.Start,
			SpanEnd:          sp.End,
			EvidenceChunkIDs: []uuid.UUID{},
		}
		for _, cs := range scored {
			cit.EvidenceChunkIDs = append(cit.EvidenceChunkIDs, req.Chunks[cs.index].ID)
		}
		if len(scored) > 0 {
			cit.Confidence = scored[0].score
		}
		citations = append(citations, cit)
	}

	if err := m.store.ReplaceCitations(ctx, req.SectionID, citations); err != nil {
		return nil, fmt.Errorf("replacing citations for section %s: %w", req.SectionID, err)
	}
	return citations, nil
}

func hasEmbeddedChunk(chunks []models.EvidenceChunk) bool {
	for _, ch := range chunks {
		if len(ch.Embedding) > 0 {
			return true
		}
	}
	return false
}
