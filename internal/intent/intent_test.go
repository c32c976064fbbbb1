package intent

import (
	"context"
	"testing"
)

func TestKeywordClassifierBookingLanguage(t *testing.T) {
	c := KeywordClassifier{}
	ctx := context.Background()

	positives := []string{
		"I'd like to book an appointment",
		"can you send someone out to look at my water heater",
		"I need to schedule a repair",
		"could I get an estimate",
	}
	for _, u := range positives {
		if res := c.Classify(ctx, u); !res.WantsBooking {
			t.Errorf("expected booking intent for %q, got %+v", u, res)
		}
	}

	negatives := []string{
		"what are your hours",
		"I'm returning a call from this number",
		"",
	}
	for _, u := range negatives {
		if res := c.Classify(ctx, u); res.WantsBooking {
			t.Errorf("expected no booking intent for %q, got %+v", u, res)
		}
	}
}

func TestKeywordClassifierMethod(t *testing.T) {
	res := KeywordClassifier{}.Classify(context.Background(), "book me in")
	if res.Method != "keyword" {
		t.Errorf("expected keyword method, got %q", res.Method)
	}
}

func TestNewWithoutAPIKeyUsesKeywords(t *testing.T) {
	c := New("")
	if _, ok := c.(KeywordClassifier); !ok {
		t.Errorf("expected keyword classifier without API key, got %T", c)
	}
}

func TestNewWithAPIKeyUsesModel(t *testing.T) {
	c := New("sk-test")
	if _, ok := c.(*ModelClassifier); !ok {
		t.Errorf("expected model classifier with API key, got %T", c)
	}
}
