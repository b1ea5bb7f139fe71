package logger

import (
	"strings"
	"time"
	"unicode"
)

// Status maps err to the status value used across log lines.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RoundMS rounds d to whole milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins up to limit values and reports whether any were left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}

// SanitizeLimit drops control and format runes (keeping tab and newline) and
// truncates the result to max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 || s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(min(len(s), max*4))
	n := 0
	for _, r := range s {
		if r != '\n' && r != '\t' && (unicode.IsControl(r) || unicode.Is(unicode.Cf, r)) {
			continue
		}
		if n == max {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// MaskDigits keeps the last two digits of every run of more than four digits
// and replaces the rest with '*'. User text carries phone numbers and one-time
// passwords; the masked form is safe to log.
func MaskDigits(s string) string {
	r := []rune(s)
	for i := 0; i < len(r); {
		if !unicode.IsDigit(r[i]) {
			i++
			continue
		}
		j := i
		for j < len(r) && unicode.IsDigit(r[j]) {
			j++
		}
		if j-i > 4 {
			for k := i; k < j-2; k++ {
				r[k] = '*'
			}
		}
		i = j
	}
	return string(r)
}
