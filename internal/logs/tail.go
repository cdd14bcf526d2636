package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/afero"

	"digidup/internal/logging"
)

const (
	defaultPoll  = 250 * time.Millisecond
	maxLineBytes = 1024 * 1024
)

// TailOptions controls which lines Tail emits.
type TailOptions struct {
	// Lines limits the initial output to the last N matching lines. Zero or
	// negative emits every matching line.
	Lines int
	// RunID restricts output to records written by one invocation.
	RunID  string
	Follow bool
	Poll   time.Duration
}

// Tail emits the selected lines of path in file order. With Follow it keeps
// polling for appended lines until ctx is done, which is not an error. A
// missing file is treated as empty.
func Tail(ctx context.Context, fsys afero.Fs, path string, opts TailOptions, emit func(string) error) error {
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}

	lines, offset, err := lastLines(fsys, path, opts.Lines, opts.RunID)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if err := emit(line); err != nil {
			return err
		}
	}
	if !opts.Follow {
		return nil
	}

	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		lines, offset, err = readForward(fsys, path, offset, opts.RunID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := emit(line); err != nil {
				return err
			}
		}
	}
}

// LastRunID returns the run_id of the last record in path, or "" when the
// file is missing or holds no tagged records.
func LastRunID(fsys afero.Fs, path string) (string, error) {
	lines, _, err := lastLines(fsys, path, 0, "")
	if err != nil {
		return "", err
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if id := ParseRunID(lines[i]); id != "" {
			return id, nil
		}
	}
	return "", nil
}

// ParseRunID extracts the run_id attribute from a console or JSON record.
func ParseRunID(line string) string {
	if _, rest, ok := strings.Cut(line, `"`+logging.FieldRunID+`":"`); ok {
		id, _, _ := strings.Cut(rest, `"`)
		return id
	}
	key := logging.FieldRunID + "="
	for _, field := range strings.Fields(line) {
		if value, ok := strings.CutPrefix(field, key); ok {
			return strings.Trim(value, `"`)
		}
	}
	return ""
}

func matches(line, runID string) bool {
	return runID == "" || ParseRunID(line) == runID
}

// lastLines keeps a ring of the last limit matching lines and returns the
// offset the file was read up to.
func lastLines(fsys afero.Fs, path string, limit int, runID string) ([]string, int64, error) {
	file, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var (
		all   []string
		ring  []string
		count int
		next  int
	)
	if limit > 0 {
		ring = make([]string, limit)
	}
	offset, err := scanLines(file, func(line string) {
		if !matches(line, runID) {
			return
		}
		if limit <= 0 {
			all = append(all, line)
			return
		}
		ring[next] = line
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		return all, offset, nil
	}

	lines := make([]string, 0, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := 0; i < count; i++ {
		lines = append(lines, ring[(start+i)%limit])
	}
	return lines, offset, nil
}

// readForward returns complete lines appended after offset. A truncated
// file is read again from the start.
func readForward(fsys afero.Fs, path string, offset int64, runID string) ([]string, int64, error) {
	file, err := fsys.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	read, err := scanLines(file, func(line string) {
		if matches(line, runID) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return nil, offset, err
	}
	return lines, offset + read, nil
}

// scanLines calls fn for every newline-terminated line and returns the number
// of bytes consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			if len(line) <= maxLineBytes {
				fn(strings.TrimRight(line, "\r\n"))
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}
