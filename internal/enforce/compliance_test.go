package enforce

import (
	"context"
	"testing"

	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
)

type fakeComplianceStore struct {
	items    []models.ChecklistItem
	sections []models.Section
	updates  map[uuid.UUID]struct {
		sectionID *uuid.UUID
		satisfied bool
	}
}

func newFakeComplianceStore(items []models.ChecklistItem, sections []models.Section) *fakeComplianceStore {
	return &fakeComplianceStore{
		items:    items,
		sections: sections,
		updates: map[uuid.UUID]struct {
			sectionID *uuid.UUID
			satisfied bool
		}{},
	}
}

func (f *fakeComplianceStore) ListChecklistItems(_ context.Context, _ uuid.UUID) ([]models.ChecklistItem, error) {
	return f.items, nil
}

func (f *fakeComplianceStore) ListSections(_ context.Context, _ uuid.UUID) ([]models.Section, error) {
	return f.sections, nil
}

func (f *fakeComplianceStore) UpdateChecklistItem(_ context.Context, itemID uuid.UUID, sectionID *uuid.UUID, satisfied bool) error {
	f.updates[itemID] = struct {
		sectionID *uuid.UUID
		satisfied bool
	}{sectionID, satisfied}
	return nil
}

func TestCheckComplianceAutoMapsAndSatisfies(t *testing.T) {
	budget := models.Section{ID: uuid.New(), Title: "Budget Narrative", Content: "Our budget narrative details personnel and operating costs."}
	need := models.Section{ID: uuid.New(), Title: "Statement of Need", Content: "Food insecurity affects thousands of households locally."}

	item := models.ChecklistItem{ID: uuid.New(), Text: "Include a budget narrative with personnel costs"}
	store := newFakeComplianceStore([]models.ChecklistItem{item}, []models.Section{budget, need})

	report, err := NewComplianceChecker(store, DefaultConfig()).CheckCompliance(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}

	if report.UnmetCount != 0 {
		t.Fatalf("unmet = %d, want 0", report.UnmetCount)
	}
	got := report.Items[0]
	if got.SectionID == nil || *got.SectionID != budget.ID {
		t.Fatalf("item mapped to %v, want budget section", got.SectionID)
	}
	if !got.Satisfied {
		t.Fatal("item should be satisfied")
	}

	upd, ok := store.updates[item.ID]
	if !ok {
		t.Fatal("auto-mapping should persist the item")
	}
	if upd.sectionID == nil || *upd.sectionID != budget.ID || !upd.satisfied {
		t.Fatalf("persisted update = %+v", upd)
	}
}

func TestCheckComplianceUnmetCases(t *testing.T) {
	empty := models.Section{ID: uuid.New(), Title: "Evaluation Plan", Content: ""}
	blocked := models.Section{ID: uuid.New(), Title: "Timeline", Content: "Milestones start [[PLACEHOLDER:MISSING_DATA:Start date:d1]]."}

	evalID := empty.ID
	timelineID := blocked.ID
	items := []models.ChecklistItem{
		{ID: uuid.New(), Text: "Describe the evaluation plan", SectionID: &evalID},
		{ID: uuid.New(), Text: "Provide a project timeline", SectionID: &timelineID},
		{ID: uuid.New(), Text: "Attach letters of support from partner hospitals"},
	}
	store := newFakeComplianceStore(items, []models.Section{empty, blocked})

	report, err := NewComplianceChecker(store, DefaultConfig()).CheckCompliance(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}

	// Empty section, blocking placeholder, and no matching section at all:
	// all three stay unmet.
	if report.UnmetCount != 3 {
		t.Fatalf("unmet = %d, want 3", report.UnmetCount)
	}
	if report.Items[2].SectionID != nil {
		t.Errorf("unrelated item should stay unmapped, got %v", report.Items[2].SectionID)
	}
}

func TestCheckComplianceKeepsManualMapping(t *testing.T) {
	sec := models.Section{ID: uuid.New(), Title: "Appendix", Content: "Letters of support are attached here."}
	other := models.Section{ID: uuid.New(), Title: "Letters of Support", Content: "Letters of support from community partners."}

	secID := sec.ID
	item := models.ChecklistItem{ID: uuid.New(), Text: "Letters of support", SectionID: &secID}
	store := newFakeComplianceStore([]models.ChecklistItem{item}, []models.Section{sec, other})

	report, err := NewComplianceChecker(store, DefaultConfig()).CheckCompliance(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if got := report.Items[0].SectionID; got == nil || *got != sec.ID {
		t.Fatalf("manual mapping overridden: got %v, want %s", got, sec.ID)
	}
}

func TestComputeProposalCoverage(t *testing.T) {
	secA := uuid.New()
	secB := uuid.New()
	tests := []struct {
		name       string
		items      []models.ChecklistItem
		wantPct    int
		wantTotals int
	}{
		{
			name:       "empty checklist scores 100",
			items:      nil,
			wantPct:    100,
			wantTotals: 0,
		},
		{
			name: "two of three satisfied rounds to 67",
			items: []models.ChecklistItem{
				{ID: uuid.New(), SectionID: &secA, Satisfied: true},
				{ID: uuid.New(), SectionID: &secA, Satisfied: true},
				{ID: uuid.New(), SectionID: &secB, Satisfied: false},
			},
			wantPct:    67,
			wantTotals: 3,
		},
		{
			name: "all satisfied",
			items: []models.ChecklistItem{
				{ID: uuid.New(), SectionID: &secA, Satisfied: true},
			},
			wantPct:    100,
			wantTotals: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeComplianceStore(tt.items, nil)
			score, err := NewCoverageScorer(store).ComputeProposalCoverage(context.Background(), uuid.New())
			if err != nil {
				t.Fatal(err)
			}
			if score.OverallPct != tt.wantPct {
				t.Errorf("overall = %d, want %d", score.OverallPct, tt.wantPct)
			}
			if score.TotalItems != tt.wantTotals {
				t.Errorf("total items = %d, want %d", score.TotalItems, tt.wantTotals)
			}
		})
	}
}

func TestComputeProposalCoveragePerSection(t *testing.T) {
	secA := uuid.New()
	secB := uuid.New()
	store := newFakeComplianceStore([]models.ChecklistItem{
		{ID: uuid.New(), SectionID: &secA, Satisfied: true},
		{ID: uuid.New(), SectionID: &secA, Satisfied: false},
		{ID: uuid.New(), SectionID: &secB, Satisfied: true},
		{ID: uuid.New(), Satisfied: false}, // unmapped: overall only
	}, nil)

	score, err := NewCoverageScorer(store).ComputeProposalCoverage(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if score.OverallPct != 50 {
		t.Errorf("overall = %d, want 50", score.OverallPct)
	}
	if len(score.PerSection) != 2 {
		t.Fatalf("per-section entries = %d, want 2", len(score.PerSection))
	}
	if score.PerSection[0].SectionID != secA || score.PerSection[0].Pct != 50 {
		t.Errorf("section A coverage = %+v", score.PerSection[0])
	}
	if score.PerSection[1].SectionID != secB || score.PerSection[1].Pct != 100 {
		t.Errorf("section B coverage = %+v", score.PerSection[1])
	}
}
