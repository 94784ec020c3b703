package stats

import (
	"strings"
	"sync"
	"testing"
)

func TestTrackerCountsVerdicts(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 3; i++ {
		tr.IncrementLines()
	}
	tr.IncrementVerdict("emitted")
	tr.IncrementVerdict("not_spot")
	tr.IncrementVerdict("not_spot")
	tr.IncrementVerdict("   ")
	tr.IncrementOverlong()

	snap := tr.Snapshot()
	if snap.Lines != 3 {
		t.Fatalf("expected 3 lines, got %d", snap.Lines)
	}
	if snap.Overlong != 1 {
		t.Fatalf("expected 1 overlong line, got %d", snap.Overlong)
	}
	if snap.Verdicts["emitted"] != 1 || snap.Verdicts["not_spot"] != 2 {
		t.Fatalf("unexpected verdict counts %v", snap.Verdicts)
	}
	if len(snap.Verdicts) != 2 {
		t.Fatalf("expected blank label to be ignored, got %v", snap.Verdicts)
	}
	if tr.Verdict("not_spot") != 2 || tr.Verdict("missing") != 0 {
		t.Fatalf("unexpected Verdict lookups")
	}
}

func TestTrackerConcurrentIncrements(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				tr.IncrementVerdict("emitted")
			}
		}()
	}
	wg.Wait()
	if got := tr.Verdict("emitted"); got != 8000 {
		t.Fatalf("expected 8000, got %d", got)
	}
}

func TestSummaryFormatsWithSeparators(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 1234; i++ {
		tr.IncrementLines()
	}
	tr.IncrementVerdict("too_fast")
	tr.IncrementVerdict("emitted")
	tr.IncrementSinkFailures()

	summary := tr.Summary()
	if !strings.Contains(summary, "lines=1,234") {
		t.Fatalf("expected comma separated line count, got %q", summary)
	}
	if !strings.Contains(summary, "emitted=1, too_fast=1") {
		t.Fatalf("expected sorted verdicts, got %q", summary)
	}
	if !strings.Contains(summary, "sink_failures=1") {
		t.Fatalf("expected sink failures in summary, got %q", summary)
	}
}

func TestSummaryWithoutVerdicts(t *testing.T) {
	summary := NewTracker().Summary()
	if !strings.Contains(summary, "(none)") {
		t.Fatalf("expected (none) placeholder, got %q", summary)
	}
	if strings.Contains(summary, "sink_failures") {
		t.Fatalf("did not expect sink failures in an empty summary, got %q", summary)
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tr *Tracker
	tr.IncrementLines()
	tr.IncrementVerdict("emitted")
	tr.IncrementOverlong()
	if snap := tr.Snapshot(); snap.Lines != 0 || len(snap.Verdicts) != 0 {
		t.Fatalf("expected empty snapshot from nil tracker, got %+v", snap)
	}
}
