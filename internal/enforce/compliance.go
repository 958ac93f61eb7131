package enforce

import (
	"context"
	"fmt"

	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
)

// ComplianceStore exposes checklist state. Mapping an item to a section can
// happen automatically (content similarity) or through the explicit manual
// override; both go through UpdateChecklistItem.
type ComplianceStore interface {
	ListChecklistItems(ctx context.Context, proposalID uuid.UUID) ([]models.ChecklistItem, error)
	ListSections(ctx context.Context, proposalID uuid.UUID) ([]models.Section, error)
	UpdateChecklistItem(ctx context.Context, itemID uuid.UUID, sectionID *uuid.UUID, satisfied bool) error
}

type ComplianceChecker struct {
	store ComplianceStore
	cfg   Config
}

func NewComplianceChecker(store ComplianceStore, cfg Config) *ComplianceChecker {
	return &ComplianceChecker{store: store, cfg: cfg}
}

type ComplianceReport struct {
	Items      []models.ComplianceItem `json:"items"`
	UnmetCount int                     `json:"unmet_count"`
}

// CheckCompliance evaluates every checklist item against the proposal's
// sections. Unmapped items are auto-mapped to the best-matching section when
// the match clears the threshold; manually mapped items keep their mapping.
// An item is satisfied when its section has real content and no blocking
// placeholder. Unmapped or unsatisfied items count toward UnmetCount.
func (c *ComplianceChecker) CheckCompliance(ctx context.Context, proposalID uuid.UUID) (ComplianceReport, error) {
	items, err := c.store.ListChecklistItems(ctx, proposalID)
	if err != nil {
		return ComplianceReport{}, fmt.Errorf("listing checklist items: %w", err)
	}
	sections, err := c.store.ListSections(ctx, proposalID)
	if err != nil {
		return ComplianceReport{}, fmt.Errorf("listing sections: %w", err)
	}

	sectionByID := make(map[uuid.UUID]models.Section, len(sections))
	sectionTokens := make([][]string, len(sections))
	for i, sec := range sections {
		sectionByID[sec.ID] = sec
		sectionTokens[i] = tokenize(sec.Title + " " + sec.Content)
	}

	report := ComplianceReport{}
	for _, item := range items {
		sectionID := item.SectionID

		if sectionID == nil {
			if idx := c.bestSection(item.Text, sections, sectionTokens); idx >= 0 {
				id := sections[idx].ID
				sectionID = &id
			}
		}

		satisfied := false
		if sectionID != nil {
			if sec, ok := sectionByID[*sectionID]; ok {
				satisfied = sec.Content != "" && CountBlockingPlaceholders(sec.Content) == 0
			}
		}

		if sectionID != item.SectionID || satisfied != item.Satisfied {
			if err := c.store.UpdateChecklistItem(ctx, item.ID, sectionID, satisfied); err != nil {
				return ComplianceReport{}, fmt.Errorf("updating checklist item %s: %w", item.ID, err)
			}
		}

		report.Items = append(report.Items, models.ComplianceItem{
			ID:              uuid.New(),
			ChecklistItemID: item.ID,
			SectionID:       sectionID,
			Satisfied:       satisfied,
		})
		if !satisfied {
			report.UnmetCount++
		}
	}
	return report, nil
}

func (c *ComplianceChecker) bestSection(itemText string, sections []models.Section, sectionTokens [][]string) int {
	itemTokens := tokenize(itemText)
	best := -1
	bestScore := c.cfg.ComplianceMatchThreshold
	for i := range sections {
		score := lexicalScore(itemTokens, sectionTokens[i])
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

// CoverageScorer derives coverage from checklist state on demand. Nothing is
// persisted.
type CoverageScorer struct {
	store ComplianceStore
}

func NewCoverageScorer(store ComplianceStore) *CoverageScorer {
	return &CoverageScorer{store: store}
}

// ComputeProposalCoverage scores satisfied/total * 100 rounded to nearest
// integer. A checklist with zero items scores 100 — the documented formula.
// Callers that care about the vacuous case must look at TotalItems.
func (s *CoverageScorer) ComputeProposalCoverage(ctx context.Context, proposalID uuid.UUID) (models.CoverageScore, error) {
	items, err := s.store.ListChecklistItems(ctx, proposalID)
	if err != nil {
		return models.CoverageScore{}, fmt.Errorf("listing checklist items: %w", err)
	}

	score := models.CoverageScore{ProposalID: proposalID, TotalItems: len(items)}

	type tally struct{ total, satisfied int }
	perSection := map[uuid.UUID]*tally{}
	var order []uuid.UUID

	for _, item := range items {
		if item.Satisfied {
			score.SatisfiedItems++
		}
		if item.SectionID == nil {
			continue
		}
		t, ok := perSection[*item.SectionID]
		if !ok {
			t = &tally{}
			perSection[*item.SectionID] = t
			order = append(order, *item.SectionID)
		}
		t.total++
		if item.Satisfied {
			t.satisfied++
		}
	}

	score.OverallPct = roundPct(score.SatisfiedItems, score.TotalItems)
	for _, id := range order {
		t := perSection[id]
		score.PerSection = append(score.PerSection, models.SectionCoverage{
			SectionID: id,
			Pct:       roundPct(t.satisfied, t.total),
		})
	}
	return score, nil
}

func roundPct(satisfied, total int) int {
	if total == 0 {
		return 100
	}
	return int(float64(satisfied)/float64(total)*100 + 0.5)
}
