package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format(consoleTimeLayout)
}

// attrString renders a value without quoting, for header fields.
func attrString(v slog.Value) string {
	return plainValue(v.Resolve())
}

// formatValue renders a value for a key/value line, quoting text that would
// otherwise be ambiguous when grepping the log.
func formatValue(v slog.Value) string {
	v = v.Resolve()
	text := plainValue(v)
	switch v.Kind() {
	case slog.KindString, slog.KindAny:
		return quoteIfNeeded(text)
	}
	return text
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case fmt.Stringer:
			return x.String()
		case []string:
			return strings.Join(x, ",")
		default:
			return fmt.Sprint(x)
		}
	}
	return v.String()
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
