// Package slots implements the canonical slot store and the write firewall
// that every slot mutation must pass through.
package slots

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/voicelane/bookline/internal/models"
)

// streetSuffixTokens are tokens that mark a value as street-address text.
// A time value containing one of these is a misrouted extraction.
var streetSuffixTokens = map[string]bool{
	"st": true, "street": true, "ave": true, "avenue": true,
	"blvd": true, "boulevard": true, "rd": true, "road": true,
	"dr": true, "drive": true, "ln": true, "lane": true,
	"ct": true, "court": true, "cir": true, "circle": true,
	"pkwy": true, "parkway": true, "hwy": true, "highway": true,
	"pl": true, "place": true, "ter": true, "terrace": true,
	"way": true, "loop": true, "trail": true,
}

// timeOfDayWords are accepted as time-of-day preferences.
var timeOfDayWords = map[string]bool{
	"morning": true, "afternoon": true, "evening": true, "night": true,
	"noon": true, "midday": true, "tonight": true, "daytime": true,
	"early": true, "late": true, "lunchtime": true,
}

// urgencyPhrases are accepted as scheduling urgency answers.
var urgencyPhrases = []string{
	"asap", "as soon as possible", "right away", "immediately",
	"urgent", "emergency", "whenever", "anytime", "any time",
	"first available", "earliest",
}

// weekdayWords are accepted as day-of-week or relative-day answers.
var weekdayWords = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
	"today": true, "tomorrow": true, "weekend": true, "weekday": true,
}

var (
	// clockTimeRegex matches explicit clock times: "3pm", "10:30", "9 am".
	clockTimeRegex = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(a\.?m\.?|p\.?m\.?|o'?clock)\b|\b\d{1,2}:\d{2}\b`)
	// calendarDateRegex matches numeric or month-name dates.
	calendarDateRegex = regexp.MustCompile(`(?i)\b\d{1,2}[/-]\d{1,2}([/-]\d{2,4})?\b|\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\b\.?\s*\d{0,2}`)
	// bareNumericRegex matches values that are nothing but digits and separators.
	bareNumericRegex = regexp.MustCompile(`^[\d\s\-().+]+$`)
	nonDigitRegex    = regexp.MustCompile(`\D`)
)

// tokenize lowercases and splits a value on non-alphanumeric boundaries.
func tokenize(value string) []string {
	return strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// digitCount returns the number of digit runes in a value.
func digitCount(value string) int {
	n := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// letterCount returns the number of letter runes in a value.
func letterCount(value string) int {
	n := 0
	for _, r := range value {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// digitRatio returns the fraction of non-space runes that are digits.
func digitRatio(value string) float64 {
	total := 0
	digits := 0
	for _, r := range value {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(digits) / float64(total)
}

// looksLikePhoneNumber reports whether a value is phone-number shaped:
// digit ratio above one half with at least seven digits.
func looksLikePhoneNumber(value string) bool {
	return digitCount(value) >= 7 && digitRatio(value) > 0.5
}

// containsStreetSuffix reports whether any token is a street-suffix marker.
func containsStreetSuffix(value string) bool {
	for _, tok := range tokenize(value) {
		if streetSuffixTokens[tok] {
			return true
		}
	}
	return false
}

// normalizeForOverlap collapses a value for loose address comparison.
func normalizeForOverlap(value string) string {
	return strings.Join(tokenize(value), " ")
}

// overlapsAddress reports whether the value matches or overlaps the stored
// address string. This blocks address text leaking into the time field when
// extraction runs on the wrong turn.
func overlapsAddress(value, storedAddress string) bool {
	if storedAddress == "" {
		return false
	}
	v := normalizeForOverlap(value)
	a := normalizeForOverlap(storedAddress)
	if v == "" || a == "" {
		return false
	}
	return v == a || strings.Contains(a, v) || strings.Contains(v, a)
}

// checkTimePlausibility applies the time-field allow/deny rules.
// A value is accepted only when it matches a known time shape and carries no
// address contamination markers.
func checkTimePlausibility(value, storedAddress string) models.ValidationOutcome {
	if containsStreetSuffix(value) {
		return models.Rejected(models.RejectReasonAddressLeak, models.CheckTypePlausibility)
	}
	if overlapsAddress(value, storedAddress) {
		return models.Rejected(models.RejectReasonAddressLeak, models.CheckTypePlausibility)
	}
	if bareNumericRegex.MatchString(value) && digitCount(value) >= 3 && !clockTimeRegex.MatchString(value) {
		return models.Rejected(models.RejectReasonBareNumeric, models.CheckTypePlausibility)
	}

	lower := strings.ToLower(value)
	for _, tok := range tokenize(value) {
		if timeOfDayWords[tok] || weekdayWords[tok] {
			return models.Accepted()
		}
	}
	for _, phrase := range urgencyPhrases {
		if strings.Contains(lower, phrase) {
			return models.Accepted()
		}
	}
	if clockTimeRegex.MatchString(value) || calendarDateRegex.MatchString(value) {
		return models.Accepted()
	}
	return models.Rejected(models.RejectReasonImplausibleValue, models.CheckTypePlausibility)
}

// checkPhonePlausibility requires a value that is mostly digits.
func checkPhonePlausibility(value string) models.ValidationOutcome {
	digits := digitCount(value)
	if digits < 3 {
		return models.Rejected(models.RejectReasonImplausibleValue, models.CheckTypePlausibility)
	}
	if letterCount(value) > digits {
		return models.Rejected(models.RejectReasonImplausibleValue, models.CheckTypePlausibility)
	}
	return models.Accepted()
}

// checkAddressPlausibility requires some letters; a bare number is not an address.
func checkAddressPlausibility(value string) models.ValidationOutcome {
	if letterCount(value) == 0 {
		return models.Rejected(models.RejectReasonImplausibleValue, models.CheckTypePlausibility)
	}
	return models.Accepted()
}

// checkTypePlausibility dispatches the per-type allow/deny rules.
// Name-specific checks live in the identity-protection step.
func checkTypePlausibility(fieldType models.FieldType, value, storedAddress string) models.ValidationOutcome {
	switch fieldType {
	case models.FieldTypeTime:
		return checkTimePlausibility(value, storedAddress)
	case models.FieldTypePhone:
		return checkPhonePlausibility(value)
	case models.FieldTypeAddress:
		return checkAddressPlausibility(value)
	default:
		return models.Accepted()
	}
}

// DigitsOf strips every non-digit rune from a value.
func DigitsOf(value string) string {
	return nonDigitRegex.ReplaceAllString(value, "")
}
