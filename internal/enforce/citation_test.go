package enforce

import (
	"context"
	"reflect"
	"testing"

	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
)

type fakeCitationStore struct {
	saved map[uuid.UUID][]models.Citation
}

func newFakeCitationStore() *fakeCitationStore {
	return &fakeCitationStore{saved: map[uuid.UUID][]models.Citation{}}
}

func (f *fakeCitationStore) ReplaceCitations(_ context.Context, sectionID uuid.UUID, citations []models.Citation) error {
	f.saved[sectionID] = citations
	return nil
}

func TestMapAndPersistAttachesEvidence(t *testing.T) {
	store := newFakeCitationStore()
	mapper := NewCitationMapper(store, nil, DefaultConfig())

	matching := models.EvidenceChunk{ID: uuid.New(), Content: "Last year the food pantry served 500 families across the county."}
	unrelated := models.EvidenceChunk{ID: uuid.New(), Content: "Board meeting minutes from the quarterly governance review."}

	sectionID := uuid.New()
	citations, err := mapper.MapAndPersist(context.Background(), MapRequest{
		SectionID:     sectionID,
		GeneratedText: "Our food pantry served 500 families. We value community trust.",
		Chunks:        []models.EvidenceChunk{matching, unrelated},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(citations) != 2 {
		t.Fatalf("expected one citation per sentence, got %d", len(citations))
	}

	first := citations[0]
	if len(first.EvidenceChunkIDs) != 1 || first.EvidenceChunkIDs[0] != matching.ID {
		t.Fatalf("expected the matching chunk attached, got %+v", first)
	}
	if first.Confidence <= 0 {
		t.Fatal("expected positive confidence on supported span")
	}

	// The second sentence has no overlapping evidence: a recorded gap, not
	// an error.
	second := citations[1]
	if len(second.EvidenceChunkIDs) != 0 {
		t.Fatalf("expected an evidence gap, got %+v", second)
	}
	if second.Confidence != 0 {
		t.Fatalf("gap span should carry zero confidence, got %f", second.Confidence)
	}

	if !reflect.DeepEqual(store.saved[sectionID], citations) {
		t.Fatal("persisted citations differ from returned citations")
	}
}

func TestMapAndPersistDeterminism(t *testing.T) {
	store := newFakeCitationStore()
	mapper := NewCitationMapper(store, nil, DefaultConfig())

	chunks := []models.EvidenceChunk{
		{ID: uuid.New(), Content: "The after-school program enrolled 120 students in 2025."},
		{ID: uuid.New(), Content: "Enrollment in the after-school program grew to 120 students."},
	}
	req := MapRequest{
		SectionID:     uuid.New(),
		GeneratedText: "In 2025 the after-school program enrolled 120 students. Families reported higher attendance.",
		Chunks:        chunks,
	}

	first, err := mapper.MapAndPersist(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := mapper.MapAndPersist(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Fatalf("span counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].SpanStart != second[i].SpanStart || first[i].SpanEnd != second[i].SpanEnd {
			t.Errorf("span %d differs between runs", i)
		}
		if !reflect.DeepEqual(first[i].EvidenceChunkIDs, second[i].EvidenceChunkIDs) {
			t.Errorf("span %d evidence ordering differs between runs", i)
		}
		if first[i].Confidence != second[i].Confidence {
			t.Errorf("span %d confidence differs between runs", i)
		}
	}
}

func TestMapAndPersistSkipsBareMarkers(t *testing.T) {
	store := newFakeCitationStore()
	mapper := NewCitationMapper(store, nil, DefaultConfig())

	citations, err := mapper.MapAndPersist(context.Background(), MapRequest{
		SectionID:     uuid.New(),
		GeneratedText: "[[PLACEHOLDER:MISSING_DATA:Budget amount:b1]]\nWe request funding for outreach.",
		Chunks:        nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(citations) != 1 {
		t.Fatalf("bare marker line should not produce a citation span: %+v", citations)
	}
}
