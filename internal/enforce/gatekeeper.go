package enforce

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// GateStore is the storage surface the orchestrator itself touches. The
// sub-checks carry their own narrower interfaces.
type GateStore interface {
	GetProposal(ctx context.Context, orgID, proposalID uuid.UUID) (models.Proposal, error)
	ListSections(ctx context.Context, proposalID uuid.UUID) ([]models.Section, error)
	ListEvidenceChunks(ctx context.Context, orgID uuid.UUID) ([]models.EvidenceChunk, error)
	ListAmbiguities(ctx context.Context, proposalID uuid.UUID) ([]models.Ambiguity, error)
	ReplaceAmbiguities(ctx context.Context, proposalID uuid.UUID, ambiguities []models.Ambiguity) error
	InsertAuditRecord(ctx context.Context, rec *models.AuditRecord) error
	GetAuditRecord(ctx context.Context, id uuid.UUID) (models.AuditRecord, error)
	// AttestAuditRecord applies the one-time attestation iff the record is a
	// WARN and not yet attested, reporting whether the update took effect.
	AttestAuditRecord(ctx context.Context, id uuid.UUID, text string) (bool, error)
}

// Gatekeeper computes the export gate decision. Every evaluation re-runs the
// pre-checks against current content; no decision survives a proposal edit
// except inside its audit record.
type Gatekeeper struct {
	store        GateStore
	placeholders *PlaceholderScanner
	ambiguities  *AmbiguityDetector
	citations    *CitationMapper
	claims       *ClaimVerifier
	compliance   *ComplianceChecker
	coverage     *CoverageScorer
}

func NewGatekeeper(
	store GateStore,
	placeholders *PlaceholderScanner,
	ambiguities *AmbiguityDetector,
	citations *CitationMapper,
	claims *ClaimVerifier,
	compliance *ComplianceChecker,
	coverage *CoverageScorer,
) *Gatekeeper {
	return &Gatekeeper{
		store:        store,
		placeholders: placeholders,
		ambiguities:  ambiguities,
		citations:    citations,
		claims:       claims,
		compliance:   compliance,
		coverage:     coverage,
	}
}

type EnforcementSnapshot struct {
	Compliance   ComplianceReport     `json:"compliance"`
	Placeholders []models.Placeholder `json:"placeholders"`
	Coverage     models.CoverageScore `json:"coverage"`
	Claims       VerificationSummary  `json:"claims"`
	Ambiguities  []models.Ambiguity   `json:"ambiguities"`
}

type Evaluation struct {
	GateResult  models.GateResult   `json:"gate_result"`
	AuditRecord models.AuditRecord  `json:"audit_record"`
	Enforcement EnforcementSnapshot `json:"enforcement"`
}

// Evaluate runs a full gate evaluation: recompute fan-out, join, decision,
// audit record. A failing sub-check never aborts the evaluation; its failure
// becomes a blocking reason, because missing state cannot be told apart from
// resolved state and the gate fails closed.
func (g *Gatekeeper) Evaluate(ctx context.Context, orgID, proposalID, userID uuid.UUID, format models.ExportFormat) (*Evaluation, error) {
	if !format.Valid() {
		return nil, NewValidationError("export_format", fmt.Sprintf("unknown format %q", format))
	}

	proposal, err := g.store.GetProposal(ctx, orgID, proposalID)
	if err != nil {
		return nil, err
	}
	sections, err := g.store.ListSections(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("listing sections: %w", err)
	}

	var (
		mu            sync.Mutex
		checkFailures []string
		placeholders  []models.Placeholder
		ambiguities   []models.Ambiguity
	)
	failed := func(check string, err error) {
		cerr := &CheckExecutionError{Check: check, Err: err}
		log.Printf("gate evaluation for %s: %v", proposalID, cerr)
		mu.Lock()
		checkFailures = append(checkFailures, cerr.Error())
		mu.Unlock()
	}

	// Recompute fan-out. The placeholder scan, the per-section citation
	// passes, and the ambiguity re-check have no data dependency on each
	// other. Errors are recorded, never returned: returning would cancel
	// sibling checks and the gate must see every signal it can still get.
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		found, err := g.placeholders.ScanAndPersist(groupCtx, proposalID)
		if err != nil {
			failed("placeholder", err)
			return nil
		}
		mu.Lock()
		placeholders = found
		mu.Unlock()
		return nil
	})

	group.Go(func() error {
		open, err := g.openAmbiguities(groupCtx, proposal, true)
		if err != nil {
			failed("ambiguity", err)
			return nil
		}
		mu.Lock()
		ambiguities = open
		mu.Unlock()
		return nil
	})

	chunks, chunksErr := g.store.ListEvidenceChunks(ctx, orgID)
	if chunksErr != nil {
		failed("evidence retrieval", chunksErr)
	}
	for _, sec := range sections {
		if sec.Content == "" {
			continue
		}
		sec := sec
		group.Go(func() error {
			if chunksErr != nil {
				return nil // already recorded, nothing to map against
			}
			_, err := g.citations.MapAndPersist(groupCtx, MapRequest{
				SectionID:      sec.ID,
				GeneratedText:  sec.Content,
				Chunks:         chunks,
				OrganizationID: orgID,
			})
			if err != nil {
				failed("citation mapping", err)
			}
			return nil
		})
	}

	_ = group.Wait()

	// Claim verification reads the citations written above, so it runs only
	// after the fan-out joins.
	if err := g.claims.ExtractAndVerifyProposal(ctx, proposalID); err != nil {
		failed("claim verification", err)
	}

	summary, err := g.claims.Summary(ctx, proposalID)
	if err != nil {
		failed("claim summary", err)
	}
	report, err := g.compliance.CheckCompliance(ctx, proposalID)
	if err != nil {
		failed("compliance", err)
	}
	coverage, err := g.coverage.ComputeProposalCoverage(ctx, proposalID)
	if err != nil {
		failed("coverage", err)
	}

	result := decide(placeholders, ambiguities, summary, report, coverage, checkFailures)

	rec := models.AuditRecord{
		ID:           uuid.New(),
		ProposalID:   proposalID,
		UserID:       userID,
		ExportFormat: format,
		Decision:     result.Decision,
		Reasons:      result.Reasons,
		CreatedAt:    time.Now().UTC(),
	}
	if err := g.store.InsertAuditRecord(ctx, &rec); err != nil {
		return nil, fmt.Errorf("persisting audit record: %w", err)
	}

	return &Evaluation{
		GateResult:  result,
		AuditRecord: rec,
		Enforcement: EnforcementSnapshot{
			Compliance:   report,
			Placeholders: placeholders,
			Coverage:     coverage,
			Claims:       summary,
			Ambiguities:  ambiguities,
		},
	}, nil
}

// openAmbiguities returns the proposal's unresolved ambiguities. The stored
// set is the system of record, so resolving one is the route out of its
// BLOCK. An empty stored set with non-empty RFP text means the save-time
// persist was skipped or lost; the gate re-detects, and (when persist is set)
// writes the detections back so later resolutions have rows to land on.
func (g *Gatekeeper) openAmbiguities(ctx context.Context, proposal models.Proposal, persist bool) ([]models.Ambiguity, error) {
	stored, err := g.store.ListAmbiguities(ctx, proposal.ID)
	if err != nil {
		return nil, fmt.Errorf("listing ambiguities: %w", err)
	}
	if len(stored) == 0 && proposal.RFPText != "" {
		stored = g.ambiguities.DetectAmbiguities(proposal.RFPText, proposal.ID.String())
		if persist && len(stored) > 0 {
			if err := g.store.ReplaceAmbiguities(ctx, proposal.ID, stored); err != nil {
				return nil, fmt.Errorf("persisting detected ambiguities: %w", err)
			}
		}
	}

	var open []models.Ambiguity
	for _, a := range stored {
		if !a.Resolved {
			open = append(open, a)
		}
	}
	return open, nil
}

// decide applies the precedence rule: blocking conditions first, then warn
// conditions, else allow. Reasons list every contributing condition so a
// WARN or BLOCK explains itself.
func decide(
	placeholders []models.Placeholder,
	ambiguities []models.Ambiguity,
	summary VerificationSummary,
	report ComplianceReport,
	coverage models.CoverageScore,
	checkFailures []string,
) models.GateResult {
	var blocks, warns []string

	blocking := 0
	for _, p := range placeholders {
		if p.Type.Blocking() {
			blocking++
		}
	}
	if blocking > 0 {
		blocks = append(blocks, fmt.Sprintf("%d blocking placeholder(s) unresolved", blocking))
	}

	required := 0
	for _, a := range ambiguities {
		if a.RequiresUserInput {
			required++
		}
	}
	if required > 0 {
		blocks = append(blocks, fmt.Sprintf("%d requirement ambiguity(ies) need user input", required))
	}

	if summary.Contradicted > 0 {
		blocks = append(blocks, fmt.Sprintf("%d claim(s) contradicted by evidence", summary.Contradicted))
	}

	// Fail-closed: a failed recompute check cannot be told apart from a
	// clean slate, so it blocks.
	blocks = append(blocks, checkFailures...)

	if summary.Unverified > 0 {
		warns = append(warns, fmt.Sprintf("%d claim(s) unverified", summary.Unverified))
	}
	if report.UnmetCount > 0 {
		warns = append(warns, fmt.Sprintf("%d checklist item(s) unmet", report.UnmetCount))
	}
	if coverage.OverallPct < 100 {
		warns = append(warns, fmt.Sprintf("checklist coverage at %d%%", coverage.OverallPct))
	}

	reasons := append(append([]string{}, blocks...), warns...)
	if coverage.TotalItems == 0 {
		// Vacuously covered; documented formula kept, flagged for callers.
		reasons = append(reasons, "note: checklist has no items, coverage is vacuous")
	}

	switch {
	case len(blocks) > 0:
		return models.GateResult{Decision: models.GateBlock, Reasons: reasons}
	case len(warns) > 0:
		return models.GateResult{Decision: models.GateWarn, Reasons: reasons}
	default:
		return models.GateResult{Decision: models.GateAllow, Reasons: reasons}
	}
}

// Snapshot returns the current enforcement state without re-running the
// recompute pass or writing an audit record. Placeholders are scanned from
// live content in memory only.
func (g *Gatekeeper) Snapshot(ctx context.Context, orgID, proposalID uuid.UUID) (*EnforcementSnapshot, error) {
	proposal, err := g.store.GetProposal(ctx, orgID, proposalID)
	if err != nil {
		return nil, err
	}
	sections, err := g.store.ListSections(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("listing sections: %w", err)
	}

	var placeholders []models.Placeholder
	for _, sec := range sections {
		for _, p := range DetectPlaceholders(sec.Content) {
			p.SectionID = sec.ID
			placeholders = append(placeholders, p)
		}
	}

	summary, err := g.claims.Summary(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	report, err := g.compliance.CheckCompliance(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	coverage, err := g.coverage.ComputeProposalCoverage(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	ambiguities, err := g.openAmbiguities(ctx, proposal, false)
	if err != nil {
		return nil, err
	}

	return &EnforcementSnapshot{
		Compliance:   report,
		Placeholders: placeholders,
		Coverage:     coverage,
		Claims:       summary,
		Ambiguities:  ambiguities,
	}, nil
}

// RecordAttestation appends a one-time human justification to a WARN audit
// record. The store applies it as a single conditional update, so two
// concurrent calls cannot both win.
func (g *Gatekeeper) RecordAttestation(ctx context.Context, auditRecordID uuid.UUID, attestationText string) error {
	if attestationText == "" {
		return NewValidationError("attestation_text", "must not be empty")
	}

	applied, err := g.store.AttestAuditRecord(ctx, auditRecordID, attestationText)
	if err != nil {
		return fmt.Errorf("attesting audit record: %w", err)
	}
	if applied {
		return nil
	}

	// Conditional update missed; explain why.
	rec, err := g.store.GetAuditRecord(ctx, auditRecordID)
	if errors.Is(err, ErrNotFound) {
		return NewValidationError("audit_record_id", "audit record not found")
	}
	if err != nil {
		return fmt.Errorf("loading audit record: %w", err)
	}
	switch {
	case rec.Decision == models.GateBlock:
		return NewValidationError("audit_record_id", "a BLOCK decision cannot be attested")
	case rec.AttestationText != nil:
		return NewValidationError("audit_record_id", "audit record is already attested")
	default:
		return NewValidationError("audit_record_id", "only WARN decisions accept an attestation")
	}
}
