package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"digidup/internal/logs"
)

const sample = `2026-01-02 10:00:00 INF resolve: moving image image_id=2 run_id=aaa
2026-01-02 10:00:01 INF resolve: removed catalog rows count=1 run_id=aaa
{"ts":"2026-01-02T11:00:00Z","level":"info","msg":"verifying staging tree","run_id":"bbb"}
2026-01-02 12:00:00 WRN verify: staging file matches several catalog images run_id=ccc
partial line without newline`

func writeLog(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func collect(t *testing.T, fsys afero.Fs, path string, opts logs.TailOptions) []string {
	t.Helper()
	var lines []string
	err := logs.Tail(context.Background(), fsys, path, opts, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	return lines
}

func TestTailLastLines(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeLog(t, fsys, "/digidup.log", sample)

	lines := collect(t, fsys, "/digidup.log", logs.TailOptions{Lines: 2})
	if len(lines) != 2 || !strings.Contains(lines[0], `"run_id":"bbb"`) || !strings.Contains(lines[1], "run_id=ccc") {
		t.Fatalf("unexpected lines: %#v", lines)
	}

	all := collect(t, fsys, "/digidup.log", logs.TailOptions{})
	if len(all) != 4 {
		t.Fatalf("expected 4 complete lines, got %#v", all)
	}
}

func TestTailFiltersByRun(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeLog(t, fsys, "/digidup.log", sample)

	lines := collect(t, fsys, "/digidup.log", logs.TailOptions{RunID: "aaa", Lines: 10})
	if len(lines) != 2 || !strings.Contains(lines[0], "moving image") {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestTailMissingFileIsEmpty(t *testing.T) {
	if lines := collect(t, afero.NewMemMapFs(), "/nope.log", logs.TailOptions{Lines: 5}); len(lines) != 0 {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestLastRunID(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeLog(t, fsys, "/digidup.log", sample)
	id, err := logs.LastRunID(fsys, "/digidup.log")
	if err != nil {
		t.Fatalf("LastRunID: %v", err)
	}
	if id != "ccc" {
		t.Fatalf("LastRunID = %q", id)
	}
}

func TestParseRunID(t *testing.T) {
	cases := map[string]string{
		`x run_id=abc y=1`:                 "abc",
		`x run_id="abc"`:                   "abc",
		`{"msg":"m","run_id":"abc","a":1}`: "abc",
		`no id here`:                       "",
	}
	for line, want := range cases {
		if got := logs.ParseRunID(line); got != want {
			t.Errorf("ParseRunID(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestTailFollowPicksUpAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digidup.log")
	fsys := afero.NewOsFs()
	writeLog(t, fsys, path, "start run_id=one\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- logs.Tail(ctx, fsys, path, logs.TailOptions{Lines: 1, Follow: true, Poll: 20 * time.Millisecond}, func(line string) error {
			got <- line
			return nil
		})
	}()

	if line := <-got; line != "start run_id=one" {
		t.Fatalf("initial line = %q", line)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later run_id=two\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case line := <-got:
		if line != "later run_id=two" {
			t.Fatalf("followed line = %q", line)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("follow did not pick up appended line")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Tail returned %v after cancel", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Tail did not stop after cancel")
	}
}
