package enforce

import (
	"testing"
)

func TestSegmentSentencesOffsets(t *testing.T) {
	text := "We serve 500 families. Our budget is $40,000!\nFinal line without period"
	spans := segmentSentences(text)
	if len(spans) != 3 {
		t.Fatalf("expected 3 sentences, got %d: %+v", len(spans), spans)
	}

	want := []string{
		"We serve 500 families.",
		"Our budget is $40,000!",
		"Final line without period",
	}
	for i, sp := range spans {
		if got := sp.of(text); got != want[i] {
			t.Errorf("sentence %d: expected %q, got %q", i, want[i], got)
		}
	}
}

func TestSegmentSentencesDecimals(t *testing.T) {
	text := "The rate improved by 3.5 points this year."
	spans := segmentSentences(text)
	if len(spans) != 1 {
		t.Fatalf("decimal point split the sentence: %+v", spans)
	}
}

func TestLexicalScore(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		zero bool
	}{
		{"identical", "served 500 families in the county", "served 500 families in the county", false},
		{"disjoint", "annual budget allocation", "volunteer training schedule", true},
		{"empty", "", "some words here", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := lexicalScore(tokenize(tt.a), tokenize(tt.b))
			if tt.zero && score != 0 {
				t.Errorf("expected zero score, got %f", score)
			}
			if !tt.zero && score <= 0 {
				t.Errorf("expected positive score, got %f", score)
			}
		})
	}

	same := lexicalScore(tokenize("served 500 families"), tokenize("served 500 families"))
	if same < 0.999 {
		t.Errorf("identical token sets should score ~1, got %f", same)
	}
}

func TestExtractNumbers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []numberToken
	}{
		{
			name: "plain count",
			text: "We served 500 families",
			want: []numberToken{{Kind: numberPlain, Value: 500}},
		},
		{
			name: "money with separator",
			text: "a budget of $40,000 total",
			want: []numberToken{{Kind: numberMoney, Value: 40000}},
		},
		{
			name: "percentage",
			text: "attendance rose 12%",
			want: []numberToken{{Kind: numberPercent, Value: 12}},
		},
		{
			name: "million multiplier",
			text: "an endowment of $2 million",
			want: []numberToken{{Kind: numberMoney, Value: 2000000}},
		},
		{
			name: "no numbers",
			text: "community outreach program",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractNumbers(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d numbers, got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("number %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestContainsDate(t *testing.T) {
	if !containsDate("The program launched in March") {
		t.Error("month name not detected")
	}
	if !containsDate("Founded in 1998") {
		t.Error("year not detected")
	}
	if containsDate("no temporal anchor here") {
		t.Error("false positive date")
	}
}

func TestContainsNamedEntity(t *testing.T) {
	if !containsNamedEntity("We partner with Harbor Light Shelter downtown.") {
		t.Error("multi-word proper noun not detected")
	}
	if containsNamedEntity("Sentence initial Words only count past position one? no") {
		// "Sentence" is position 0 and "initial" is lowercase, so the only
		// candidate pair is ("Words", "only") which fails.
		t.Error("false positive entity")
	}
}
