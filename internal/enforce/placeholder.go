package enforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
)

// Marker grammar: [[PLACEHOLDER:<TYPE>:<description>:<id>]]
//
// This exact textual form is the serialization contract between section
// content and every consumer; previously authored content must keep
// round-tripping. The description may contain ':' but never the literal
// "]]"; the id is whatever follows the last ':'. Malformed markers (unknown
// type, missing field, unterminated) are ordinary text.
const (
	markerPrefix = "[[PLACEHOLDER:"
	markerSuffix = "]]"
)

// DetectPlaceholders scans text in a single pass and returns every
// well-formed marker, position-sorted and non-overlapping. It never fails on
// malformed input.
func DetectPlaceholders(text string) []models.Placeholder {
	var out []models.Placeholder
	i := 0
	for {
		rel := strings.Index(text[i:], markerPrefix)
		if rel < 0 {
			break
		}
		start := i + rel
		body := start + len(markerPrefix)

		endRel := strings.Index(text[body:], markerSuffix)
		if endRel < 0 {
			// Unterminated: skip the prefix and keep scanning, a valid
			// marker may still start inside what follows.
			i = body
			continue
		}
		end := body + endRel + len(markerSuffix)

		p, ok := parseMarkerBody(text[body : body+endRel])
		if !ok {
			i = body
			continue
		}
		p.Start = start
		p.End = end
		out = append(out, p)
		i = end
	}
	return out
}

// parseMarkerBody parses "<TYPE>:<description>:<id>". The first colon ends
// the type and the last colon starts the id; colons in between belong to the
// description.
func parseMarkerBody(body string) (models.Placeholder, bool) {
	first := strings.IndexByte(body, ':')
	last := strings.LastIndexByte(body, ':')
	if first < 0 || last <= first {
		return models.Placeholder{}, false
	}

	ptype := models.PlaceholderType(body[:first])
	desc := body[first+1 : last]
	id := body[last+1:]

	if !ptype.Valid() || desc == "" || id == "" {
		return models.Placeholder{}, false
	}
	return models.Placeholder{ID: id, Type: ptype, Description: desc}, true
}

func HasPlaceholders(text string) bool {
	return len(DetectPlaceholders(text)) > 0
}

func CountBlockingPlaceholders(text string) int {
	n := 0
	for _, p := range DetectPlaceholders(text) {
		if p.Type.Blocking() {
			n++
		}
	}
	return n
}

// maskMarkers blanks every well-formed marker out of text, preserving length
// so offsets computed against the original still hold. Text analysis runs on
// the masked form so a marker's description or id never reads as a figure or
// a proper noun.
func maskMarkers(text string) string {
	found := DetectPlaceholders(text)
	if len(found) == 0 {
		return text
	}
	b := []byte(text)
	for _, p := range found {
		for i := p.Start; i < p.End; i++ {
			b[i] = ' '
		}
	}
	return string(b)
}

// CreateMarker renders a marker string. An empty id gets a short random
// token; uniqueness within a document is probabilistic, not guaranteed.
func CreateMarker(ptype models.PlaceholderType, description, id string) (string, error) {
	if !ptype.Valid() {
		return "", NewValidationError("type", fmt.Sprintf("unknown placeholder type %q", ptype))
	}
	if description == "" {
		return "", NewValidationError("description", "must not be empty")
	}
	if strings.Contains(description, markerSuffix) {
		return "", NewValidationError("description", `must not contain "]]"`)
	}
	if id == "" {
		id = strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	}
	return markerPrefix + string(ptype) + ":" + description + ":" + id + markerSuffix, nil
}

// PlaceholderStore is the storage the scanner needs. ReplacePlaceholders
// swaps the proposal's whole placeholder set atomically; the old set is
// discarded, not diffed, so re-scanning unchanged content is idempotent.
type PlaceholderStore interface {
	ListSections(ctx context.Context, proposalID uuid.UUID) ([]models.Section, error)
	ReplacePlaceholders(ctx context.Context, proposalID uuid.UUID, placeholders []models.Placeholder) error
}

type PlaceholderScanner struct {
	store PlaceholderStore
}

func NewPlaceholderScanner(store PlaceholderStore) *PlaceholderScanner {
	return &PlaceholderScanner{store: store}
}

// ScanAndPersist re-scans every section's current content and replaces the
// proposal's stored placeholder set.
func (s *PlaceholderScanner) ScanAndPersist(ctx context.Context, proposalID uuid.UUID) ([]models.Placeholder, error) {
	sections, err := s.store.ListSections(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("listing sections: %w", err)
	}

	var all []models.Placeholder
	for _, sec := range sections {
		for _, p := range DetectPlaceholders(sec.Content) {
			p.SectionID = sec.ID
			all = append(all, p)
		}
	}

	if err := s.store.ReplacePlaceholders(ctx, proposalID, all); err != nil {
		return nil, fmt.Errorf("replacing placeholders: %w", err)
	}
	return all, nil
}
