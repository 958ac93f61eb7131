package enforce

import (
	"testing"

	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
)

func TestDetectAmbiguities(t *testing.T) {
	d := NewAmbiguityDetector()

	tests := []struct {
		name         string
		source       string
		wantTypes    []string
		wantBlocking int
	}{
		{
			name:      "clean requirements",
			source:    "Submit a budget of no more than $50,000. Applications close on March 1, 2026.",
			wantTypes: nil,
		},
		{
			name:         "vague term is advisory",
			source:       "Provide adequate staffing for the program.",
			wantTypes:    []string{"VAGUE_TERM"},
			wantBlocking: 0,
		},
		{
			name:         "unresolved reference blocks",
			source:       "Budget categories are listed in the guidance, TBD.",
			wantTypes:    []string{"UNRESOLVED_REFERENCE"},
			wantBlocking: 1,
		},
		{
			name:         "conflicting page limits block",
			source:       "The narrative may not exceed 10 pages. Submissions are limited to 15 pages total.",
			wantTypes:    []string{"CONFLICTING_LIMIT"},
			wantBlocking: 1,
		},
		{
			name:         "see appendix blocks",
			source:       "Eligibility criteria: see appendix B for details.",
			wantTypes:    []string{"UNRESOLVED_REFERENCE"},
			wantBlocking: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.DetectAmbiguities(tt.source, models.PendingProposalID)
			if len(got) != len(tt.wantTypes) {
				t.Fatalf("expected %d ambiguities, got %d: %+v", len(tt.wantTypes), len(got), got)
			}
			blocking := 0
			for i, a := range got {
				if a.Type != tt.wantTypes[i] {
					t.Errorf("ambiguity %d: expected type %s, got %s", i, tt.wantTypes[i], a.Type)
				}
				if a.ProposalID != models.PendingProposalID {
					t.Errorf("expected pending proposal id, got %q", a.ProposalID)
				}
				if len(a.SourceTexts) == 0 || len(a.SuggestedResolutions) == 0 {
					t.Errorf("ambiguity %d missing source text or resolutions", i)
				}
				if a.RequiresUserInput {
					blocking++
				}
			}
			if blocking != tt.wantBlocking {
				t.Errorf("expected %d blocking ambiguities, got %d", tt.wantBlocking, blocking)
			}
		})
	}
}

func TestDetectAmbiguitiesStripsMarkup(t *testing.T) {
	d := NewAmbiguityDetector()
	got := d.DetectAmbiguities("<p>Award amounts are <b>TBD</b> pending board approval.</p>", "")
	if len(got) != 1 || got[0].Type != "UNRESOLVED_REFERENCE" {
		t.Fatalf("markup hid the ambiguity: %+v", got)
	}
	if got[0].ProposalID != models.PendingProposalID {
		t.Fatalf("empty proposal id should default to pending, got %q", got[0].ProposalID)
	}
}
