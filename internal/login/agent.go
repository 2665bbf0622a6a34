package login

import "strings"

// DetectAgent extracts a coarse client agent class from a User-Agent
// header. The match order is fixed: it mirrors how the classifier's
// training data was produced, so Chrome intentionally wins over Safari
// and Edge (both embed "Chrome" or "Safari" in their UA strings).
func DetectAgent(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Firefox"):
		return "Firefox"
	case strings.Contains(userAgent, "Chrome"):
		return "Chrome"
	case strings.Contains(userAgent, "Safari"):
		return "Safari"
	case strings.Contains(userAgent, "Edge"):
		return "Edge"
	case strings.Contains(userAgent, "Opera"):
		return "Opera"
	default:
		return "Unknown"
	}
}
