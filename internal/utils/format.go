package utils

import "fmt"

// FormatUSD renders a USD amount compactly: $1.23B, $45.6M, $789K.
func FormatUSD(v float64) string {
	neg := ""
	if v < 0 {
		neg = "-"
		v = -v
	}
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%s$%.2fB", neg, v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%s$%.1fM", neg, v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%s$%.0fK", neg, v/1e3)
	default:
		return fmt.Sprintf("%s$%.0f", neg, v)
	}
}

// FormatPct renders a percentage with a leading sign for changes.
func FormatPct(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}
