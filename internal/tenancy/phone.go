package tenancy

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// SanitizePhone strips everything except digits.
func SanitizePhone(value string) string {
	if value == "" {
		return ""
	}
	digits := phoneDigitsRe.FindAllString(value, -1)
	return strings.Join(digits, "")
}

// NormalizeE164 converts a phone number to +<digits> form. The "whatsapp:"
// channel prefix from Twilio is dropped first.
func NormalizeE164(value string) string {
	value = strings.TrimSpace(strings.TrimPrefix(value, "whatsapp:"))
	if value == "" {
		return ""
	}
	digits := SanitizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}
