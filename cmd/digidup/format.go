package main

import (
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// printer groups digits in counts according to the user's locale.
var printer = message.NewPrinter(userLanguage())

func userLanguage() language.Tag {
	for _, env := range []string{"LC_ALL", "LC_NUMERIC", "LANG"} {
		value := strings.TrimSpace(os.Getenv(env))
		if value == "" || value == "C" || value == "POSIX" {
			continue
		}
		value, _, _ = strings.Cut(value, ".")
		value = strings.ReplaceAll(value, "_", "-")
		if tag, err := language.Parse(value); err == nil {
			return tag
		}
	}
	return language.English
}

func formatCount(n int64) string {
	return printer.Sprintf("%d", n)
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
