package slots

import (
	"testing"

	"github.com/voicelane/bookline/internal/models"
)

func TestCheckTimePlausibilityRejectsAddressShapedValues(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		storedAddr string
		wantReason string
	}{
		{name: "street suffix", value: "12155 Metro Parkway", wantReason: models.RejectReasonAddressLeak},
		{name: "abbreviated suffix", value: "42 Oak St", wantReason: models.RejectReasonAddressLeak},
		{name: "echo of stored address", value: "4521 Maple Drive", storedAddr: "4521 Maple Drive, Austin, TX", wantReason: models.RejectReasonAddressLeak},
		{name: "bare numeric", value: "12155", wantReason: models.RejectReasonBareNumeric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := checkTimePlausibility(tt.value, tt.storedAddr)
			if outcome.Valid {
				t.Fatalf("checkTimePlausibility(%q) accepted, want rejection", tt.value)
			}
			if outcome.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", outcome.Reason, tt.wantReason)
			}
			if outcome.RejectedBy != models.CheckTypePlausibility {
				t.Errorf("rejectedBy = %q, want %q", outcome.RejectedBy, models.CheckTypePlausibility)
			}
		})
	}
}

func TestCheckTimePlausibilityAcceptsTimeLanguage(t *testing.T) {
	values := []string{
		"tomorrow morning",
		"Friday afternoon",
		"as soon as possible",
		"3:30 pm",
		"next Tuesday",
		"12/14",
		"anytime this week",
	}
	for _, v := range values {
		if outcome := checkTimePlausibility(v, ""); !outcome.Valid {
			t.Errorf("checkTimePlausibility(%q) rejected with %q, want accept", v, outcome.Reason)
		}
	}
}

func TestLooksLikePhoneNumber(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"555-123-4567", true},
		{"5551234567", true},
		{"(239) 555-0144", true},
		{"Mark", false},
		{"42 Oak Street", false},
		{"1234", false}, // too few digits
	}
	for _, tt := range tests {
		if got := looksLikePhoneNumber(tt.value); got != tt.want {
			t.Errorf("looksLikePhoneNumber(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestCheckPhonePlausibility(t *testing.T) {
	if outcome := checkPhonePlausibility("no thanks"); outcome.Valid {
		t.Error("letters-only value accepted as phone")
	}
	if outcome := checkPhonePlausibility("239"); !outcome.Valid {
		t.Errorf("partial digits rejected with %q, want accept for sub-dialogue repair", outcome.Reason)
	}
	if outcome := checkPhonePlausibility("239-555-0144"); !outcome.Valid {
		t.Errorf("full number rejected with %q", outcome.Reason)
	}
}

func TestDigitsOf(t *testing.T) {
	if got := DigitsOf("(239) 555-0144"); got != "2395550144" {
		t.Errorf("DigitsOf = %q, want 2395550144", got)
	}
	if got := DigitsOf("none"); got != "" {
		t.Errorf("DigitsOf(none) = %q, want empty", got)
	}
}

func TestMergeStopWordsDoesNotMutateBase(t *testing.T) {
	before := len(baseStopWords)
	merged := MergeStopWords([]string{"speedy", "plumbing"})
	if len(baseStopWords) != before {
		t.Fatal("MergeStopWords mutated the base list")
	}
	if !merged["speedy"] || !merged["yeah"] {
		t.Error("merged set missing extra or base entries")
	}
	again := MergeStopWords(nil)
	if again["speedy"] {
		t.Error("extra word from a prior merge leaked into a fresh set")
	}
}

func TestStopWordCacheKeyedByTenant(t *testing.T) {
	cache := NewStopWordCache()
	a := cache.Get("tenant-a", []string{"brandword"})
	b := cache.Get("tenant-b", nil)
	if !a["brandword"] {
		t.Error("tenant-a set missing its extra word")
	}
	if b["brandword"] {
		t.Error("tenant-a extra leaked into tenant-b set")
	}
	if !cache.Get("tenant-a", []string{"brandword"})["brandword"] {
		t.Error("cached set lost extra word on second lookup")
	}
}
