package utils

import "strings"

// MaskEmail obscures the local part of an address for user-facing messages,
// e.g. "john.doe@example.com" -> "jo******@example.com".
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return email
	}

	local, domain := email[:at], email[at:]
	visible := 2
	if len(local) <= visible {
		visible = 1
	}
	return local[:visible] + strings.Repeat("*", len(local)-visible) + domain
}
