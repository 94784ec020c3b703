package main

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rbncw/config"
)

func TestLogFileNameForDate(t *testing.T) {
	when := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if got := logFileNameForDate(when); got != "22-Jan-2026.log" {
		t.Fatalf("expected log filename to be 22-Jan-2026.log, got %q", got)
	}
}

func TestParseLogFileDate(t *testing.T) {
	parsed, ok := parseLogFileDate("22-Jan-2026.log")
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if parsed.Year() != 2026 || parsed.Month() != time.January || parsed.Day() != 22 {
		t.Fatalf("unexpected parsed date: %s", parsed.Format(time.RFC3339))
	}
	if _, ok := parseLogFileDate("notes.txt"); ok {
		t.Fatalf("expected non-log file to be rejected")
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"20-Jan-2026.log",
		"21-Jan-2026.log",
		"22-Jan-2026.log",
		"notes.txt",
	}
	for _, name := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	now := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if err := cleanupOldLogs(dir, now, 2); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	expectMissing := []string{"20-Jan-2026.log"}
	for _, name := range expectMissing {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			t.Fatalf("expected %s to be removed", name)
		} else if !os.IsNotExist(err) {
			t.Fatalf("stat %s: %v", name, err)
		}
	}
	expectPresent := []string{"21-Jan-2026.log", "22-Jan-2026.log", "notes.txt"}
	for _, name := range expectPresent {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to remain: %v", name, err)
		}
	}
}

func TestDailyFileSinkRotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	sink, err := newDailyFileSink(dir, 7)
	if err != nil {
		t.Fatalf("newDailyFileSink: %v", err)
	}
	defer sink.Close()

	day1 := time.Date(2026, time.January, 22, 23, 59, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Minute)
	sink.WriteLine("first", day1)
	sink.WriteLine("second", day2)

	first, err := os.ReadFile(filepath.Join(dir, "22-Jan-2026.log"))
	if err != nil {
		t.Fatalf("read first day: %v", err)
	}
	if string(first) != "2026/01/22 23:59:00 first\n" {
		t.Fatalf("unexpected first log %q", first)
	}
	second, err := os.ReadFile(filepath.Join(dir, "23-Jan-2026.log"))
	if err != nil {
		t.Fatalf("read second day: %v", err)
	}
	if !strings.HasSuffix(string(second), " second\n") {
		t.Fatalf("unexpected second log %q", second)
	}
}

type captureSink struct {
	lines []string
}

func (c *captureSink) WriteLine(line string, _ time.Time) { c.lines = append(c.lines, line) }
func (c *captureSink) Close() error                       { return nil }

func TestLogFanoutSplitsLines(t *testing.T) {
	console := &captureSink{}
	file := &captureSink{}
	fanout := newLogFanout(console, file)
	if _, err := fanout.Write([]byte("RBN: connecting\r\nRBN: conn")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := fanout.Write([]byte("ected\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "RBN: connecting|RBN: connected"
	if got := strings.Join(console.lines, "|"); got != want {
		t.Fatalf("console: expected %q, got %q", want, got)
	}
	if got := strings.Join(file.lines, "|"); got != want {
		t.Fatalf("file: expected %q, got %q", want, got)
	}
}

func TestLogFanoutFlushesOversizedPartialLine(t *testing.T) {
	console := &captureSink{}
	fanout := newLogFanout(console, nil)
	big := strings.Repeat("x", maxLogBufferBytes+1)
	if _, err := fanout.Write([]byte(big)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(console.lines) != 1 || len(console.lines[0]) != len(big) {
		t.Fatalf("expected the oversized partial line to be flushed")
	}
}

func TestSetupLoggingConsoleWithoutTTYHasNoTimestamp(t *testing.T) {
	var buf bytes.Buffer
	fanout, err := setupLogging(config.LoggingConfig{}, &buf)
	if err != nil {
		t.Fatalf("setupLogging: %v", err)
	}
	logger := log.New(fanout, "", 0)
	logger.Print("Logging in to RBN as N0CALL")
	if got := buf.String(); got != "Logging in to RBN as N0CALL\n" {
		t.Fatalf("expected plain line on a non-terminal, got %q", got)
	}
}

func TestSetupLoggingWritesFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	fanout, err := setupLogging(config.LoggingConfig{Enabled: true, Dir: dir, RetentionDays: 3}, &buf)
	if err != nil {
		t.Fatalf("setupLogging: %v", err)
	}
	fixed := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	fanout.now = func() time.Time { return fixed }
	log.New(fanout, "", 0).Print("hello")
	if err := fanout.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "01-Mar-2026.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if string(data) != "2026/03/01 08:00:00 hello\n" {
		t.Fatalf("unexpected file contents %q", data)
	}
}

func TestSetupLoggingRejectsEmptyDir(t *testing.T) {
	if _, err := setupLogging(config.LoggingConfig{Enabled: true, Dir: " "}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected empty log dir to fail")
	}
}
