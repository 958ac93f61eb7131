package enforce

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/BrightWayAI/grant-builder-sub003/internal/models"
	"github.com/google/uuid"
)

func TestDetectPlaceholders(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantCount int
		wantTypes []models.PlaceholderType
	}{
		{
			name:      "no markers",
			text:      "We served 500 families last year.",
			wantCount: 0,
		},
		{
			name:      "single marker",
			text:      "Our budget is [[PLACEHOLDER:MISSING_DATA:Budget amount:ab12]] dollars.",
			wantCount: 1,
			wantTypes: []models.PlaceholderType{models.PlaceholderMissingData},
		},
		{
			name: "three markers in order",
			text: "[[PLACEHOLDER:MISSING_DATA:a:1]] then [[PLACEHOLDER:USER_INPUT_REQUIRED:b:2]] then [[PLACEHOLDER:VERIFICATION_NEEDED:c:3]]",
			wantCount: 3,
			wantTypes: []models.PlaceholderType{
				models.PlaceholderMissingData,
				models.PlaceholderUserInputRequired,
				models.PlaceholderVerificationNeeded,
			},
		},
		{
			name:      "unknown type is plain text",
			text:      "[[PLACEHOLDER:BOGUS_TYPE:desc:id]]",
			wantCount: 0,
		},
		{
			name:      "missing id field is plain text",
			text:      "[[PLACEHOLDER:MISSING_DATA:desc]]",
			wantCount: 0,
		},
		{
			name:      "unterminated marker is plain text",
			text:      "[[PLACEHOLDER:MISSING_DATA:desc:id",
			wantCount: 0,
		},
		{
			name:      "valid marker after malformed one",
			text:      "[[PLACEHOLDER:BAD [[PLACEHOLDER:MISSING_DATA:real:x9]] end",
			wantCount: 1,
			wantTypes: []models.PlaceholderType{models.PlaceholderMissingData},
		},
		{
			name:      "description with colon",
			text:      "[[PLACEHOLDER:USER_INPUT_REQUIRED:Ratio: staff to clients:r1]]",
			wantCount: 1,
			wantTypes: []models.PlaceholderType{models.PlaceholderUserInputRequired},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectPlaceholders(tt.text)
			if len(got) != tt.wantCount {
				t.Fatalf("expected %d placeholders, got %d: %+v", tt.wantCount, len(got), got)
			}
			for i, p := range got {
				if tt.wantTypes != nil && p.Type != tt.wantTypes[i] {
					t.Errorf("placeholder %d: expected type %s, got %s", i, tt.wantTypes[i], p.Type)
				}
				// Slicing the source at the reported span must reproduce
				// the exact marker substring.
				sub := tt.text[p.Start:p.End]
				if !strings.HasPrefix(sub, markerPrefix) || !strings.HasSuffix(sub, markerSuffix) {
					t.Errorf("span [%d,%d) does not delimit a marker: %q", p.Start, p.End, sub)
				}
				if i > 0 && got[i-1].End > p.Start {
					t.Errorf("placeholders overlap or are out of order at %d", i)
				}
			}
		})
	}
}

func TestCountBlockingPlaceholders(t *testing.T) {
	text := "[[PLACEHOLDER:MISSING_DATA:a:1]] [[PLACEHOLDER:USER_INPUT_REQUIRED:b:2]] [[PLACEHOLDER:VERIFICATION_NEEDED:c:3]]"
	if got := CountBlockingPlaceholders(text); got != 2 {
		t.Fatalf("expected 2 blocking placeholders, got %d", got)
	}
}

func TestCreateMarkerRoundTrip(t *testing.T) {
	marker, err := CreateMarker(models.PlaceholderMissingData, "Budget amount", "custom_id")
	if err != nil {
		t.Fatal(err)
	}
	want := "[[PLACEHOLDER:MISSING_DATA:Budget amount:custom_id]]"
	if marker != want {
		t.Fatalf("expected %q, got %q", want, marker)
	}

	found := DetectPlaceholders(marker)
	if len(found) != 1 {
		t.Fatalf("expected 1 placeholder, got %d", len(found))
	}
	p := found[0]
	if p.Type != models.PlaceholderMissingData || p.Description != "Budget amount" || p.ID != "custom_id" {
		t.Fatalf("round trip lost fields: %+v", p)
	}
}

func TestCreateMarkerGeneratedID(t *testing.T) {
	marker, err := CreateMarker(models.PlaceholderUserInputRequired, "Executive director name", "")
	if err != nil {
		t.Fatal(err)
	}
	found := DetectPlaceholders(marker)
	if len(found) != 1 {
		t.Fatalf("expected 1 placeholder, got %d", len(found))
	}
	id := found[0].ID
	if id == "" {
		t.Fatal("generated id is empty")
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			t.Fatalf("generated id %q is not lowercase alphanumeric", id)
		}
	}
}

func TestCreateMarkerRejectsBadInput(t *testing.T) {
	if _, err := CreateMarker("NOT_A_TYPE", "desc", "id"); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := CreateMarker(models.PlaceholderMissingData, "bad ]] desc", "id"); err == nil {
		t.Error(`expected error for description containing "]]"`)
	}
	if _, err := CreateMarker(models.PlaceholderMissingData, "", "id"); err == nil {
		t.Error("expected error for empty description")
	}
}

type fakePlaceholderStore struct {
	sections  []models.Section
	saved     []models.Placeholder
	saveCalls int
	failSave  bool
}

func (f *fakePlaceholderStore) ListSections(_ context.Context, _ uuid.UUID) ([]models.Section, error) {
	return f.sections, nil
}

func (f *fakePlaceholderStore) ReplacePlaceholders(_ context.Context, _ uuid.UUID, placeholders []models.Placeholder) error {
	if f.failSave {
		return context.DeadlineExceeded
	}
	f.saveCalls++
	f.saved = placeholders
	return nil
}

func TestScanAndPersistIdempotence(t *testing.T) {
	secID := uuid.New()
	store := &fakePlaceholderStore{
		sections: []models.Section{
			{ID: secID, Content: "Intro. [[PLACEHOLDER:MISSING_DATA:Budget amount:b1]] More text."},
		},
	}
	scanner := NewPlaceholderScanner(store)

	first, err := scanner.ScanAndPersist(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	second, err := scanner.ScanAndPersist(context.Background(), uuid.New())
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("re-scan of unchanged content differs:\n%+v\n%+v", first, second)
	}
	if len(first) != 1 || first[0].SectionID != secID {
		t.Fatalf("unexpected scan result: %+v", first)
	}
	if store.saveCalls != 2 {
		t.Fatalf("expected 2 replace calls, got %d", store.saveCalls)
	}
}
