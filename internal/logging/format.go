package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

const logTimestampLayout = "2006-01-02 15:04:05.000"

// maxListItems caps how many catalog ids a console line spells out.
const maxListItems = 20

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(logTimestampLayout)
}

// attrString renders a value without quoting, for the component prefix.
func attrString(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return plainValue(v)
}

// formatValue renders a value for key=value output, quoting when the result
// would otherwise be ambiguous.
func formatValue(v slog.Value) string {
	s := plainValue(v.Resolve())
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return formatTimestamp(v.Time())
	case slog.KindAny:
		switch value := v.Any().(type) {
		case error:
			return value.Error()
		case []int64:
			return formatIDs(value)
		default:
			return fmt.Sprint(value)
		}
	default:
		return v.String()
	}
}

// formatIDs prints "1,2,3" and elides the middle of long lists so a
// 100-row flush stays on one readable line. JSON output keeps every id.
func formatIDs(ids []int64) string {
	parts := make([]string, 0, min(len(ids), maxListItems)+1)
	if len(ids) <= maxListItems {
		for _, id := range ids {
			parts = append(parts, strconv.FormatInt(id, 10))
		}
		return strings.Join(parts, ",")
	}
	half := maxListItems / 2
	for _, id := range ids[:half] {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	parts = append(parts, fmt.Sprintf("...(%d more)", len(ids)-maxListItems))
	for _, id := range ids[len(ids)-half:] {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
