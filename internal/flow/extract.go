package flow

import (
	"strings"

	"github.com/voicelane/bookline/internal/models"
)

// Callers wrap answers in spoken lead-ins: "my name is Mark", "it's
// 239-555-0144". The lead-in is stripped before the firewall write so the
// slot holds the bare fact, not the sentence around it.
var fieldLeadIns = map[models.FieldType][]string{
	models.FieldTypeName: {
		"my name is", "the name is", "name is", "this is", "i'm", "i am", "call me",
	},
	models.FieldTypePhone: {
		"my number is", "my phone number is", "the number is",
		"you can reach me at", "reach me at", "my phone is",
	},
	models.FieldTypeAddress: {
		"my address is", "the address is", "address is", "i live at",
		"i'm at", "we're at", "it's at",
	},
	models.FieldTypeTime: {
		"how about", "let's do", "i'd prefer", "i was thinking",
	},
}

// commonLeadIns apply to every field type, after any field-specific lead-in.
var commonLeadIns = []string{"yeah", "yes", "it's", "it is", "that's", "that would be"}

// extractFieldValue strips spoken lead-ins from an utterance so the stored
// value is the answer itself. Unrecognized phrasing passes through untouched.
func extractFieldValue(fieldType models.FieldType, utterance string) string {
	value := strings.TrimSpace(utterance)
	for {
		rest, ok := stripLeadIn(value, fieldLeadIns[fieldType])
		if !ok {
			rest, ok = stripLeadIn(value, commonLeadIns)
		}
		if !ok {
			break
		}
		value = rest
	}
	if trimmed := strings.TrimRight(value, " .,!"); trimmed != "" {
		value = trimmed
	}
	return value
}

// stripLeadIn removes the first matching lead-in phrase. A match must end at
// a word boundary and leave more words behind; a bare "yes" is an answer, not
// a lead-in, and "i'm" must not eat into a name like "Imani".
func stripLeadIn(value string, leadIns []string) (string, bool) {
	lower := strings.ToLower(value)
	for _, li := range leadIns {
		if !strings.HasPrefix(lower, li) || len(value) == len(li) {
			continue
		}
		if next := value[len(li)]; next != ' ' && next != ',' {
			continue
		}
		if rest := strings.TrimLeft(value[len(li):], " ,"); rest != "" {
			return rest, true
		}
	}
	return "", false
}
