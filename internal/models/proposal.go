package models

import (
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Proposal struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Title          string    `json:"title"`
	FunderName     string    `json:"funder_name"`
	RFPText        string    `json:"rfp_text"`
	Status         string    `json:"status"` // draft, in_review, exported
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Section struct {
	ID         uuid.UUID `json:"id"`
	ProposalID uuid.UUID `json:"proposal_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Position   int       `json:"position"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PlaceholderType classifies an unresolved marker embedded in section content.
type PlaceholderType string

const (
	PlaceholderMissingData        PlaceholderType = "MISSING_DATA"
	PlaceholderUserInputRequired  PlaceholderType = "USER_INPUT_REQUIRED"
	PlaceholderVerificationNeeded PlaceholderType = "VERIFICATION_NEEDED"
)

// Blocking reports whether the placeholder type must be resolved before any
// export. VERIFICATION_NEEDED is advisory only.
func (t PlaceholderType) Blocking() bool {
	return t == PlaceholderMissingData || t == PlaceholderUserInputRequired
}

func (t PlaceholderType) Valid() bool {
	switch t {
	case PlaceholderMissingData, PlaceholderUserInputRequired, PlaceholderVerificationNeeded:
		return true
	}
	return false
}

type Placeholder struct {
	ID          string          `json:"id"`
	Type        PlaceholderType `json:"type"`
	Description string          `json:"description"`
	Start       int             `json:"start"`
	End         int             `json:"end"`
	SectionID   uuid.UUID       `json:"section_id"`
}

// PendingProposalID is the sentinel bound to ambiguities detected during the
// initial RFP parse, before a proposal row exists.
const PendingProposalID = "pending"

type Ambiguity struct {
	ID                   uuid.UUID `json:"id"`
	Type                 string    `json:"type"`
	Description          string    `json:"description"`
	SourceTexts          []string  `json:"source_texts"`
	SuggestedResolutions []string  `json:"suggested_resolutions"`
	RequiresUserInput    bool      `json:"requires_user_input"`
	Resolved             bool      `json:"resolved"`
	ProposalID           string    `json:"proposal_id"` // proposal UUID or "pending"
}

type EvidenceChunk struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Source         string    `json:"source"`
	Content        string    `json:"content"`
	Embedding      []float32 `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// Citation links one generated span of a section to the evidence chunks that
// support it. An empty EvidenceChunkIDs list records a deliberate gap.
type Citation struct {
	ID               uuid.UUID   `json:"id"`
	SectionID        uuid.UUID   `json:"section_id"`
	SpanStart        int         `json:"span_start"`
	SpanEnd          int         `json:"span_end"`
	EvidenceChunkIDs []uuid.UUID `json:"evidence_chunk_ids"`
	Confidence       float64     `json:"confidence"`
}

type ClaimStatus string

const (
	ClaimVerified     ClaimStatus = "VERIFIED"
	ClaimUnverified   ClaimStatus = "UNVERIFIED"
	ClaimContradicted ClaimStatus = "CONTRADICTED"
)

type Claim struct {
	ID                    uuid.UUID   `json:"id"`
	ProposalID            uuid.UUID   `json:"proposal_id"`
	SectionID             uuid.UUID   `json:"section_id"`
	Text                  string      `json:"text"`
	SpanStart             int         `json:"span_start"`
	SpanEnd               int         `json:"span_end"`
	Status                ClaimStatus `json:"verification_status"`
	SupportingCitationIDs []uuid.UUID `json:"supporting_citation_ids"`
}

type ChecklistItem struct {
	ID         uuid.UUID  `json:"id"`
	ProposalID uuid.UUID  `json:"proposal_id"`
	Text       string     `json:"text"`
	Required   bool       `json:"required"`
	SectionID  *uuid.UUID `json:"section_id"` // nil = unmapped, a compliance gap
	Satisfied  bool       `json:"satisfied"`
}

// ComplianceItem is the evaluated view of one checklist item.
type ComplianceItem struct {
	ID              uuid.UUID  `json:"id"`
	ChecklistItemID uuid.UUID  `json:"checklist_item_id"`
	SectionID       *uuid.UUID `json:"section_id"`
	Satisfied       bool       `json:"satisfied"`
}

type SectionCoverage struct {
	SectionID uuid.UUID `json:"section_id"`
	Pct       int       `json:"pct"`
}

// CoverageScore is derived on demand from checklist state, never stored.
// TotalItems lets callers distinguish the vacuous empty-checklist case, which
// scores 100 by the documented formula.
type CoverageScore struct {
	ProposalID     uuid.UUID         `json:"proposal_id"`
	OverallPct     int               `json:"overall_pct"`
	PerSection     []SectionCoverage `json:"per_section"`
	TotalItems     int               `json:"total_items"`
	SatisfiedItems int               `json:"satisfied_items"`
}

type GateDecision string

const (
	GateAllow GateDecision = "ALLOW"
	GateWarn  GateDecision = "WARN"
	GateBlock GateDecision = "BLOCK"
)

type GateResult struct {
	Decision GateDecision `json:"decision"`
	Reasons  []string     `json:"reasons"`
}

type ExportFormat string

const (
	ExportDOCX      ExportFormat = "DOCX"
	ExportPDF       ExportFormat = "PDF"
	ExportClipboard ExportFormat = "CLIPBOARD"
)

func (f ExportFormat) Valid() bool {
	switch f {
	case ExportDOCX, ExportPDF, ExportClipboard:
		return true
	}
	return false
}

// AuditRecord is the immutable system of record for one gate evaluation. The
// only permitted mutation is the one-time addition of an attestation.
type AuditRecord struct {
	ID              uuid.UUID    `json:"id"`
	ProposalID      uuid.UUID    `json:"proposal_id"`
	UserID          uuid.UUID    `json:"user_id"`
	ExportFormat    ExportFormat `json:"export_format"`
	Decision        GateDecision `json:"decision"`
	Reasons         []string     `json:"reasons"`
	AttestationText *string      `json:"attestation_text"`
	AttestedAt      *time.Time   `json:"attested_at"`
	CreatedAt       time.Time    `json:"created_at"`
}
