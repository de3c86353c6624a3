package util

import (
	"regexp"
	"strings"
)

var nonPhone = regexp.MustCompile(`[^\d\+]+`)

// NormalizePhone tries to normalize user input into E.164-like format.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	s = nonPhone.ReplaceAllString(s, "")

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}

	return s
}

// NormalizeContact canonicalizes a recipient address for the channel it
// will be delivered on. Unknown channels pass through trimmed.
func NormalizeContact(channel, raw string) string {
	switch channel {
	case "sms", "whatsapp":
		return NormalizePhone(raw)
	case "email":
		return strings.ToLower(strings.TrimSpace(raw))
	default:
		return strings.TrimSpace(raw)
	}
}
