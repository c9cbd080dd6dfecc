package logger

import (
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Took returns the time since start rounded to milliseconds.
func Took(start time.Time) time.Duration {
	return RoundMS(time.Since(start))
}

// RoundMS rounds d to milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	return max(d, 0).Round(time.Millisecond)
}

// Preview joins up to limit values and reports whether some were left out.
func Preview(values []string, limit int) (string, bool) {
	if limit < 0 {
		limit = 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}

// Err renders err as a sanitized "err" attribute.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("err", "")
	}
	return slog.String("err", SanitizeLimit(err.Error(), 256))
}

// Sanitize drops control and format runes (tab and newline survive), so user
// text such as usernames or sticker titles cannot break a log line.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r), r == utf8.RuneError:
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and keeps at most n runes.
func SanitizeLimit(s string, n int) string {
	if n <= 0 {
		return ""
	}
	s = Sanitize(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
