package sys

import (
	"fmt"
	"math"
	"time"
)

// ============================================================================
// String Utilities
// ============================================================================

// Truncate truncates a string to maxLen runes with an ellipsis at the end.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// TruncateCenter truncates a string keeping both the start and end.
func TruncateCenter(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	k := (maxLen - 3) / 2
	return string(r[:k]) + "..." + string(r[len(r)-k:])
}

// TruncateWithPreserve truncates text while preserving a prefix and suffix.
func TruncateWithPreserve(text string, maxLen int, prefix, suffix string) string {
	fixedLen := len([]rune(prefix)) + len([]rune(suffix))
	if fixedLen >= maxLen-10 {
		return TruncateCenter(prefix+text+suffix, maxLen)
	}
	return prefix + TruncateCenter(text, maxLen-fixedLen) + suffix
}

// ============================================================================
// Time Utilities
// ============================================================================

// FormatTrackDuration renders a track length as [DD:]HH:MM:SS, dropping
// leading zero units down to MM:SS. Zero renders as "LIVE".
func FormatTrackDuration(d time.Duration) string {
	if d <= 0 {
		return "LIVE"
	}
	total := int64(math.Ceil(d.Seconds()))
	minutes, seconds := total/60, total%60
	hours, minutes := minutes/60, minutes%60
	days, hours := hours/24, hours%24

	out := ""
	if days > 0 {
		out += fmt.Sprintf("%02d:", days)
	}
	if hours > 0 || days > 0 {
		out += fmt.Sprintf("%02d:", hours)
	}
	return out + fmt.Sprintf("%02d:%02d", minutes, seconds)
}
