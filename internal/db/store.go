package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/BrightWayAI/grant-builder-sub003/internal/enforce"
	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Store is the persistence layer for proposals and the enforcement pipeline.
// It satisfies the narrow store interfaces the enforce components declare.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Proposals

func (s *Store) CreateProposal(ctx context.Context, p *models.Proposal, sectionTitles []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO proposals (organization_id, title, funder_name, rfp_text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at, updated_at
	`, p.OrganizationID, p.Title, p.FunderName, p.RFPText).Scan(&p.ID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}

	for i, title := range sectionTitles {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sections (proposal_id, title, position) VALUES ($1, $2, $3)
		`, p.ID, title, i); err != nil {
			return fmt.Errorf("insert section %q: %w", title, err)
		}
	}

	return tx.Commit(ctx)
}

// GetProposal is org-scoped: a proposal owned by another organization is
// indistinguishable from an absent one.
func (s *Store) GetProposal(ctx context.Context, orgID, proposalID uuid.UUID) (models.Proposal, error) {
	var p models.Proposal
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, title, funder_name, rfp_text, status, created_at, updated_at
		FROM proposals WHERE id = $1 AND organization_id = $2
	`, proposalID, orgID).Scan(
		&p.ID, &p.OrganizationID, &p.Title, &p.FunderName, &p.RFPText, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, enforce.ErrNotFound
	}
	return p, err
}

// Sections

func (s *Store) ListSections(ctx context.Context, proposalID uuid.UUID) ([]models.Section, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, proposal_id, title, content, position, updated_at
		FROM sections WHERE proposal_id = $1 ORDER BY position
	`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []models.Section
	for rows.Next() {
		var sec models.Section
		if err := rows.Scan(&sec.ID, &sec.ProposalID, &sec.Title, &sec.Content, &sec.Position, &sec.UpdatedAt); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (s *Store) UpdateSectionContent(ctx context.Context, proposalID, sectionID uuid.UUID, content string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sections SET content = $3, updated_at = NOW()
		WHERE id = $2 AND proposal_id = $1
	`, proposalID, sectionID, content)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return enforce.ErrNotFound
	}
	return nil
}

// Placeholders: whole-proposal replace, old set discarded.

func (s *Store) ReplacePlaceholders(ctx context.Context, proposalID uuid.UUID, placeholders []models.Placeholder) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM placeholders WHERE proposal_id = $1`, proposalID); err != nil {
		return err
	}
	for _, p := range placeholders {
		if _, err := tx.Exec(ctx, `
			INSERT INTO placeholders (id, proposal_id, section_id, type, description, span_start, span_end)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, p.ID, proposalID, p.SectionID, string(p.Type), p.Description, p.Start, p.End); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListPlaceholders(ctx context.Context, proposalID uuid.UUID) ([]models.Placeholder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, section_id, type, description, span_start, span_end
		FROM placeholders WHERE proposal_id = $1 ORDER BY section_id, span_start
	`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Placeholder
	for rows.Next() {
		var p models.Placeholder
		var ptype string
		if err := rows.Scan(&p.ID, &p.SectionID, &ptype, &p.Description, &p.Start, &p.End); err != nil {
			return nil, err
		}
		p.Type = models.PlaceholderType(ptype)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Ambiguities: persisted when bound to a real proposal. The stored set is the
// system of record for the gate; the "pending" parse-phase results live only
// in the parse response. Resolution flips the resolved flag, never deletes.

func (s *Store) ReplaceAmbiguities(ctx context.Context, proposalID uuid.UUID, ambiguities []models.Ambiguity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM ambiguities WHERE proposal_id = $1`, proposalID); err != nil {
		return err
	}
	for _, a := range ambiguities {
		if _, err := tx.Exec(ctx, `
			INSERT INTO ambiguities (id, proposal_id, type, description, source_texts, suggested_resolutions, requires_user_input)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, a.ID, proposalID, a.Type, a.Description, a.SourceTexts, a.SuggestedResolutions, a.RequiresUserInput); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListAmbiguities(ctx context.Context, proposalID uuid.UUID) ([]models.Ambiguity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, proposal_id, type, description, source_texts, suggested_resolutions, requires_user_input, resolved
		FROM ambiguities WHERE proposal_id = $1 ORDER BY created_at, id
	`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Ambiguity
	for rows.Next() {
		var a models.Ambiguity
		var pid uuid.UUID
		if err := rows.Scan(&a.ID, &pid, &a.Type, &a.Description, &a.SourceTexts, &a.SuggestedResolutions, &a.RequiresUserInput, &a.Resolved); err != nil {
			return nil, err
		}
		a.ProposalID = pid.String()
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveAmbiguity marks one ambiguity as resolved. Scoped to the proposal so
// an id from another proposal reads as absent.
func (s *Store) ResolveAmbiguity(ctx context.Context, proposalID, ambiguityID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ambiguities SET resolved = TRUE
		WHERE id = $2 AND proposal_id = $1
	`, proposalID, ambiguityID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return enforce.ErrNotFound
	}
	return nil
}

// Evidence chunks

func (s *Store) InsertEvidenceChunks(ctx context.Context, chunks []models.EvidenceChunk) error {
	for i := range chunks {
		ch := &chunks[i]
		var emb any
		if len(ch.Embedding) > 0 {
			emb = pgvector.NewVector(ch.Embedding)
		}
		err := s.pool.QueryRow(ctx, `
			INSERT INTO evidence_chunks (organization_id, source, content, embedding)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, ch.OrganizationID, ch.Source, ch.Content, emb).Scan(&ch.ID, &ch.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert evidence chunk: %w", err)
		}
	}
	return nil
}

func (s *Store) ListEvidenceChunks(ctx context.Context, orgID uuid.UUID) ([]models.EvidenceChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, source, content, embedding, created_at
		FROM evidence_chunks WHERE organization_id = $1 ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvidenceChunks(rows)
}

func (s *Store) GetEvidenceChunks(ctx context.Context, ids []uuid.UUID) ([]models.EvidenceChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, source, content, embedding, created_at
		FROM evidence_chunks WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvidenceChunks(rows)
}

func scanEvidenceChunks(rows pgx.Rows) ([]models.EvidenceChunk, error) {
	var out []models.EvidenceChunk
	for rows.Next() {
		var ch models.EvidenceChunk
		var emb *pgvector.Vector
		if err := rows.Scan(&ch.ID, &ch.OrganizationID, &ch.Source, &ch.Content, &emb, &ch.CreatedAt); err != nil {
			return nil, err
		}
		if emb != nil {
			ch.Embedding = emb.Slice()
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Citations: replace-by-section.

func (s *Store) ReplaceCitations(ctx context.Context, sectionID uuid.UUID, citations []models.Citation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM citations WHERE section_id = $1`, sectionID); err != nil {
		return err
	}
	for _, c := range citations {
		if _, err := tx.Exec(ctx, `
			INSERT INTO citations (id, section_id, span_start, span_end, evidence_chunk_ids, confidence)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, sectionID, c.SpanStart, c.SpanEnd, c.EvidenceChunkIDs, c.Confidence); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListCitations(ctx context.Context, sectionID uuid.UUID) ([]models.Citation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, section_id, span_start, span_end, evidence_chunk_ids, confidence
		FROM citations WHERE section_id = $1 ORDER BY span_start
	`, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Citation
	for rows.Next() {
		var c models.Citation
		if err := rows.Scan(&c.ID, &c.SectionID, &c.SpanStart, &c.SpanEnd, &c.EvidenceChunkIDs, &c.Confidence); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Claims: replace-by-proposal.

func (s *Store) ReplaceClaims(ctx context.Context, proposalID uuid.UUID, claims []models.Claim) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM claims WHERE proposal_id = $1`, proposalID); err != nil {
		return err
	}
	for _, c := range claims {
		if _, err := tx.Exec(ctx, `
			INSERT INTO claims (id, proposal_id, section_id, text, span_start, span_end, verification_status, supporting_citation_ids)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, c.ID, proposalID, c.SectionID, c.Text, c.SpanStart, c.SpanEnd, string(c.Status), c.SupportingCitationIDs); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListClaims(ctx context.Context, proposalID uuid.UUID) ([]models.Claim, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, proposal_id, section_id, text, span_start, span_end, verification_status, supporting_citation_ids
		FROM claims WHERE proposal_id = $1 ORDER BY section_id, span_start
	`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Claim
	for rows.Next() {
		var c models.Claim
		var status string
		if err := rows.Scan(&c.ID, &c.ProposalID, &c.SectionID, &c.Text, &c.SpanStart, &c.SpanEnd, &status, &c.SupportingCitationIDs); err != nil {
			return nil, err
		}
		c.Status = models.ClaimStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Checklist

func (s *Store) CreateChecklistItems(ctx context.Context, proposalID uuid.UUID, texts []string) ([]models.ChecklistItem, error) {
	var out []models.ChecklistItem
	for _, text := range texts {
		item := models.ChecklistItem{ProposalID: proposalID, Text: text, Required: true}
		err := s.pool.QueryRow(ctx, `
			INSERT INTO checklist_items (proposal_id, text) VALUES ($1, $2) RETURNING id
		`, proposalID, text).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("insert checklist item: %w", err)
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) ListChecklistItems(ctx context.Context, proposalID uuid.UUID) ([]models.ChecklistItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, proposal_id, text, required, section_id, satisfied
		FROM checklist_items WHERE proposal_id = $1 ORDER BY id
	`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChecklistItem
	for rows.Next() {
		var item models.ChecklistItem
		if err := rows.Scan(&item.ID, &item.ProposalID, &item.Text, &item.Required, &item.SectionID, &item.Satisfied); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) UpdateChecklistItem(ctx context.Context, itemID uuid.UUID, sectionID *uuid.UUID, satisfied bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE checklist_items SET section_id = $2, satisfied = $3 WHERE id = $1
	`, itemID, sectionID, satisfied)
	return err
}

// MapSectionToChecklistItem is the manual override: explicit mappings stick
// even when the auto-matcher would disagree.
func (s *Store) MapSectionToChecklistItem(ctx context.Context, proposalID, itemID, sectionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE checklist_items SET section_id = $3
		WHERE id = $2 AND proposal_id = $1
	`, proposalID, itemID, sectionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return enforce.ErrNotFound
	}
	return nil
}

// Audit records

func (s *Store) InsertAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_records (id, proposal_id, user_id, export_format, decision, reasons, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.ProposalID, rec.UserID, string(rec.ExportFormat), string(rec.Decision), rec.Reasons, rec.CreatedAt)
	return err
}

func (s *Store) GetAuditRecord(ctx context.Context, id uuid.UUID) (models.AuditRecord, error) {
	var rec models.AuditRecord
	var format, decision string
	err := s.pool.QueryRow(ctx, `
		SELECT id, proposal_id, user_id, export_format, decision, reasons, attestation_text, attested_at, created_at
		FROM audit_records WHERE id = $1
	`, id).Scan(
		&rec.ID, &rec.ProposalID, &rec.UserID, &format, &decision, &rec.Reasons,
		&rec.AttestationText, &rec.AttestedAt, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, enforce.ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	rec.ExportFormat = models.ExportFormat(format)
	rec.Decision = models.GateDecision(decision)
	return rec, nil
}

// AttestAuditRecord is a single conditional update keyed on "WARN and not
// yet attested", so concurrent attempts cannot both apply.
func (s *Store) AttestAuditRecord(ctx context.Context, id uuid.UUID, text string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE audit_records SET attestation_text = $2, attested_at = NOW()
		WHERE id = $1 AND decision = 'WARN' AND attestation_text IS NULL
	`, id, text)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListAuditRecords(ctx context.Context, proposalID uuid.UUID, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, proposal_id, user_id, export_format, decision, reasons, attestation_text, attested_at, created_at
		FROM audit_records WHERE proposal_id = $1 ORDER BY created_at DESC LIMIT $2
	`, proposalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var rec models.AuditRecord
		var format, decision string
		if err := rows.Scan(
			&rec.ID, &rec.ProposalID, &rec.UserID, &format, &decision, &rec.Reasons,
			&rec.AttestationText, &rec.AttestedAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.ExportFormat = models.ExportFormat(format)
		rec.Decision = models.GateDecision(decision)
		out = append(out, rec)
	}
	return out, rows.Err()
}
