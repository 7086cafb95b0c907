package utils

// Truncate clips s to at most maxLen bytes. Job records store errors
// truncated with this so a runaway LLM error body cannot bloat the status
// store; the ellipsis counts against the cap.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
