package enforce

import (
	"context"
	"fmt"

	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
)

// ClaimStore is what verification needs from storage: current sections and
// citations to read, chunk contents to check against, and a whole-proposal
// claim replace so re-runs never leave stale claim/citation pairs behind.
type ClaimStore interface {
	ListSections(ctx context.Context, proposalID uuid.UUID) ([]models.Section, error)
	ListCitations(ctx context.Context, sectionID uuid.UUID) ([]models.Citation, error)
	GetEvidenceChunks(ctx context.Context, ids []uuid.UUID) ([]models.EvidenceChunk, error)
	ReplaceClaims(ctx context.Context, proposalID uuid.UUID, claims []models.Claim) error
	ListClaims(ctx context.Context, proposalID uuid.UUID) ([]models.Claim, error)
}

type ClaimVerifier struct {
	store ClaimStore
	cfg   Config
}

func NewClaimVerifier(store ClaimStore, cfg Config) *ClaimVerifier {
	return &ClaimVerifier{store: store, cfg: cfg}
}

type VerificationSummary struct {
	Total        int `json:"total"`
	Verified     int `json:"verified"`
	Unverified   int `json:"unverified"`
	Contradicted int `json:"contradicted"`
}

// ExtractAndVerifyProposal recomputes every claim for the proposal from
// current section content and current citations. Full recompute, not
// incremental: edits invalidate old claim spans wholesale.
func (v *ClaimVerifier) ExtractAndVerifyProposal(ctx context.Context, proposalID uuid.UUID) error {
	sections, err := v.store.ListSections(ctx, proposalID)
	if err != nil {
		return fmt.Errorf("listing sections: %w", err)
	}

	var claims []models.Claim
	for _, sec := range sections {
		if sec.Content == "" {
			continue
		}

		citations, err := v.store.ListCitations(ctx, sec.ID)
		if err != nil {
			return fmt.Errorf("listing citations for section %s: %w", sec.ID, err)
		}

		for _, sp := range extractClaimSpans(sec.Content) {
			claim := models.Claim{
				ID:         uuid.New(),
				ProposalID: proposalID,
				SectionID:  sec.ID,
				Text:       sp.of(sec.Content),
				SpanStart:  sp.Start,
				SpanEnd:    sp.End,
			}
			if err := v.verify(ctx, &claim, citations); err != nil {
				return err
			}
			claims = append(claims, claim)
		}
	}

	if err := v.store.ReplaceClaims(ctx, proposalID, claims); err != nil {
		return fmt.Errorf("replacing claims: %w", err)
	}
	return nil
}

// extractClaimSpans returns the sentences carrying a factual assertion: a
// quantity, a date, or a named-entity statement. Placeholder markers are
// masked out before the sentence is inspected, not skipped with it: a factual
// sentence that merely carries an advisory marker still becomes a claim and
// must verify like any other. A sentence whose only factual token is the
// marker itself yields nothing, since masking removes it.
func extractClaimSpans(content string) []span {
	var out []span
	for _, sp := range segmentSentences(content) {
		sentence := maskMarkers(sp.of(content))
		if len(extractNumbers(sentence)) > 0 || containsDate(sentence) || containsNamedEntity(sentence) {
			out = append(out, sp)
		}
	}
	return out
}

// verify classifies one claim against the citations whose span overlaps it.
// CONTRADICTED beats VERIFIED: one conflicting evidence chunk is enough.
func (v *ClaimVerifier) verify(ctx context.Context, claim *models.Claim, citations []models.Citation) error {
	claim.Status = models.ClaimUnverified
	claim.SupportingCitationIDs = []uuid.UUID{}

	var chunkIDs []uuid.UUID
	var overlapping []models.Citation
	for _, cit := range citations {
		if cit.SpanEnd <= claim.SpanStart || cit.SpanStart >= claim.SpanEnd {
			continue
		}
		overlapping = append(overlapping, cit)
		chunkIDs = append(chunkIDs, cit.EvidenceChunkIDs...)
	}
	if len(overlapping) == 0 {
		return nil
	}

	chunks, err := v.store.GetEvidenceChunks(ctx, dedupeIDs(chunkIDs))
	if err != nil {
		return fmt.Errorf("loading evidence chunks: %w", err)
	}
	chunkByID := make(map[uuid.UUID]models.EvidenceChunk, len(chunks))
	for _, ch := range chunks {
		chunkByID[ch.ID] = ch
	}

	claimNums := extractNumbers(maskMarkers(claim.Text))
	contradicted := false

	for _, cit := range overlapping {
		supported := cit.Confidence >= v.cfg.CitationConfidenceThreshold && len(cit.EvidenceChunkIDs) > 0
		for _, id := range cit.EvidenceChunkIDs {
			ch, ok := chunkByID[id]
			if !ok {
				continue
			}
			if v.numbersConflict(claimNums, extractNumbers(ch.Content)) {
				contradicted = true
			}
		}
		if supported {
			claim.SupportingCitationIDs = append(claim.SupportingCitationIDs, cit.ID)
		}
	}

	switch {
	case contradicted:
		claim.Status = models.ClaimContradicted
	case len(claim.SupportingCitationIDs) > 0:
		claim.Status = models.ClaimVerified
	}
	return nil
}

// numbersConflict reports whether the evidence states a different figure for
// a kind of number the claim asserts. Same-kind comparison only: a money
// amount never contradicts a percentage. Evidence with no same-kind figure
// is silence, not conflict.
func (v *ClaimVerifier) numbersConflict(claimNums, evidenceNums []numberToken) bool {
	for _, cn := range claimNums {
		sameKind := false
		matched := false
		for _, en := range evidenceNums {
			if en.Kind != cn.Kind {
				continue
			}
			sameKind = true
			if numbersEqual(cn.Value, en.Value, v.cfg.NumericTolerance) {
				matched = true
				break
			}
		}
		if sameKind && !matched {
			return true
		}
	}
	return false
}

func numbersEqual(a, b, tol float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	scale := a
	if scale < 0 {
		scale = -scale
	}
	if scale < 1 {
		scale = 1
	}
	return diff <= tol*scale
}

// Summary recounts verification state from stored claims.
func (v *ClaimVerifier) Summary(ctx context.Context, proposalID uuid.UUID) (VerificationSummary, error) {
	claims, err := v.store.ListClaims(ctx, proposalID)
	if err != nil {
		return VerificationSummary{}, fmt.Errorf("listing claims: %w", err)
	}

	s := VerificationSummary{Total: len(claims)}
	for _, c := range claims {
		switch c.Status {
		case models.ClaimVerified:
			s.Verified++
		case models.ClaimContradicted:
			s.Contradicted++
		default:
			s.Unverified++
		}
	}
	return s, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	var out []uuid.UUID
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
