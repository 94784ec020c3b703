package main

import (
	"bytes"
	"strings"
	"testing"

	"rbncw/filter"
)

func TestPrinterStopsAtLimit(t *testing.T) {
	var buf bytes.Buffer
	stopped := 0
	printLine := newPrinter(&buf, 2, false, func() { stopped++ })
	printLine("DX de MM0ZBH-#: 14050.9 IK3CSX CW 18 dB 20 WPM CQ 1928Z", filter.Emitted)
	if stopped != 0 {
		t.Fatalf("stopped too early")
	}
	printLine("Local users = 212", filter.NotSpot)
	if stopped != 1 {
		t.Fatalf("expected stop after 2 lines, got %d", stopped)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "not_spot") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestPrinterOnlyDropped(t *testing.T) {
	var buf bytes.Buffer
	printLine := newPrinter(&buf, 0, true, func() { t.Fatalf("limit 0 must never stop") })
	printLine("emitted line", filter.Emitted)
	printLine("slow line", filter.TooFast)
	if got := buf.String(); !strings.Contains(got, "too_fast") || strings.Contains(got, "emitted") {
		t.Fatalf("expected only the dropped line, got %q", got)
	}
}
