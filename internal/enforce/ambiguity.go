package enforce

import (
	"fmt"
	"strings"

	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// AmbiguityDetector scans funder requirement text for clauses a drafter
// cannot act on without clarification. It runs on the original RFP text, not
// on generated sections, and may run before a proposal exists.
type AmbiguityDetector struct {
	sanitizer *bluemonday.Policy
}

func NewAmbiguityDetector() *AmbiguityDetector {
	// RFP text arrives pasted from portals and often carries markup.
	return &AmbiguityDetector{sanitizer: bluemonday.StrictPolicy()}
}

// Phrases that leave a requirement open-ended. Matched per sentence.
var vagueTerms = []string{
	"as appropriate",
	"as needed",
	"as applicable",
	"reasonable",
	"sufficient",
	"adequate",
	"various",
	"several",
	"and/or",
	"etc.",
}

// Phrases that defer a requirement to material the drafter does not have.
var unresolvedReferences = []string{
	"tbd",
	"tba",
	"to be determined",
	"to be announced",
	"to be confirmed",
	"see attachment",
	"see appendix",
	"forthcoming guidance",
}

// DetectAmbiguities returns the ambiguities found in sourceText, bound to
// proposalID (a proposal UUID, or models.PendingProposalID during the initial
// RFP parse). Output order follows sentence order.
func (d *AmbiguityDetector) DetectAmbiguities(sourceText, proposalID string) []models.Ambiguity {
	if proposalID == "" {
		proposalID = models.PendingProposalID
	}
	text := d.sanitizer.Sanitize(sourceText)

	var out []models.Ambiguity
	seenConflict := false
	var pageLimits []float64

	for _, sp := range segmentSentences(text) {
		sentence := sp.of(text)
		lower := strings.ToLower(sentence)

		for _, term := range vagueTerms {
			if strings.Contains(lower, term) {
				out = append(out, models.Ambiguity{
					ID:          uuid.New(),
					Type:        "VAGUE_TERM",
					Description: fmt.Sprintf("requirement uses the open-ended phrase %q", term),
					SourceTexts: []string{sentence},
					SuggestedResolutions: []string{
						fmt.Sprintf("Ask the funder what %q means concretely for this program", term),
						"Document your interpretation in the proposal narrative",
					},
					RequiresUserInput: false,
					ProposalID:        proposalID,
				})
				break
			}
		}

		for _, ref := range unresolvedReferences {
			if containsWordPhrase(lower, ref) {
				out = append(out, models.Ambiguity{
					ID:          uuid.New(),
					Type:        "UNRESOLVED_REFERENCE",
					Description: fmt.Sprintf("requirement depends on unavailable material (%q)", ref),
					SourceTexts: []string{sentence},
					SuggestedResolutions: []string{
						"Obtain the referenced material before drafting against it",
						"Confirm the detail with the program officer",
					},
					RequiresUserInput: true,
					ProposalID:        proposalID,
				})
				break
			}
		}

		// Conflicting page limits: more than one distinct "N pages" figure
		// across the document is a contradiction only the funder can resolve.
		if !seenConflict && strings.Contains(lower, "page") {
			for _, n := range extractNumbers(sentence) {
				if n.Kind != numberPlain || n.Value <= 0 || n.Value > 500 {
					continue
				}
				conflicting := false
				for _, prev := range pageLimits {
					if prev != n.Value {
						conflicting = true
					}
				}
				pageLimits = append(pageLimits, n.Value)
				if conflicting {
					seenConflict = true
					out = append(out, models.Ambiguity{
						ID:          uuid.New(),
						Type:        "CONFLICTING_LIMIT",
						Description: "the requirements state more than one page limit",
						SourceTexts: []string{sentence},
						SuggestedResolutions: []string{
							"Ask the funder which page limit governs",
						},
						RequiresUserInput: true,
						ProposalID:        proposalID,
					})
					break
				}
			}
		}
	}

	return out
}

// containsWordPhrase matches a phrase on word boundaries, so "tba" does not
// fire inside "tbar".
func containsWordPhrase(lower, phrase string) bool {
	idx := 0
	for {
		rel := strings.Index(lower[idx:], phrase)
		if rel < 0 {
			return false
		}
		start := idx + rel
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordByte(lower[start-1])
		afterOK := end >= len(lower) || !isWordByte(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}
