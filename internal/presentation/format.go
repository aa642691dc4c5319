package presentation

import (
	"fmt"
	"strings"
	"time"
)

// FormatCurrency renders an amount with thousands separators and two decimal
// places, e.g. 1234567.5 -> "1,234,567.50".
func FormatCurrency(amount float64) string {
	negative := amount < 0
	rendered := fmt.Sprintf("%.2f", amount)
	if negative {
		rendered = rendered[1:]
	}

	parts := strings.SplitN(rendered, ".", 2)
	whole := parts[0]

	var grouped strings.Builder
	for index, digit := range whole {
		if index > 0 && (len(whole)-index)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}

	result := grouped.String() + "." + parts[1]
	if negative {
		return "-" + result
	}
	return result
}

// RelativeTime renders how long ago the timestamp was, relative to now.
// A nil timestamp reads "never".
func RelativeTime(now time.Time, at *time.Time) string {
	if at == nil {
		return "never"
	}
	elapsed := now.Sub(*at)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		minutes := int(elapsed.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case elapsed < 24*time.Hour:
		hours := int(elapsed.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(elapsed.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
