package coupon

import "strings"

// NormalizeCode uppercases raw and drops everything outside A-Z and 0-9,
// so " summer-25 " and "SUMMER25" are the same code.
func NormalizeCode(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeScope lowercases and trims a scope key; spaces and dashes become
// underscores.
func NormalizeScope(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
