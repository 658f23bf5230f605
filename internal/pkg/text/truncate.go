// Package text trims broker payloads and notifications to a byte budget.
package text

// Truncate cuts s to max bytes and marks the cut with "...". A max of zero
// or less leaves s untouched.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
