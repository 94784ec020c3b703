// Package stats tracks per-run line and verdict counters for periodic and
// end-of-run console output.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Tracker counts lines read from the feed and how the filter classified them.
// The processing loop writes while a reporter goroutine may read, so every
// counter is atomic.
type Tracker struct {
	// verdict counters live in sync.Map + atomic.Uint64 so the hot path never takes a mutex
	verdictCounts sync.Map // string -> *atomic.Uint64
	lines         atomic.Uint64
	overlong      atomic.Uint64
	sinkFailures  atomic.Uint64
	start         atomic.Int64
}

// Snapshot is a point-in-time copy of the tracker counters.
type Snapshot struct {
	Lines        uint64
	Overlong     uint64
	SinkFailures uint64
	Verdicts     map[string]uint64
	Uptime       time.Duration
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// IncrementLines counts one complete line handed to the filter.
func (t *Tracker) IncrementLines() {
	if t == nil {
		return
	}
	t.lines.Add(1)
}

// IncrementOverlong counts one line discarded for exceeding the length cap.
func (t *Tracker) IncrementOverlong() {
	if t == nil {
		return
	}
	t.overlong.Add(1)
}

// IncrementSinkFailures counts one failed delivery to a secondary sink.
func (t *Tracker) IncrementSinkFailures() {
	if t == nil {
		return
	}
	t.sinkFailures.Add(1)
}

// IncrementVerdict increases the count for a filter verdict label
// (emitted, not_spot, wrong_mode, ...).
func (t *Tracker) IncrementVerdict(label string) {
	if t == nil {
		return
	}
	incrementCounter(&t.verdictCounts, label)
}

// Verdict returns the current count for one verdict label.
func (t *Tracker) Verdict(label string) uint64 {
	if t == nil {
		return 0
	}
	if value, ok := t.verdictCounts.Load(label); ok {
		return value.(*atomic.Uint64).Load()
	}
	return 0
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// Snapshot returns a copy of all counters.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{Verdicts: map[string]uint64{}}
	}
	counts := make(map[string]uint64)
	t.verdictCounts.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return Snapshot{
		Lines:        t.lines.Load(),
		Overlong:     t.overlong.Load(),
		SinkFailures: t.sinkFailures.Load(),
		Verdicts:     counts,
		Uptime:       t.GetUptime(),
	}
}

// Summary returns a single human-readable line ready for the log.
//
//	Stats: lines=12,345 overlong=0 | duplicate=3, emitted=41, not_cq=120 | up 1h2m3s
func (t *Tracker) Summary() string {
	return t.Snapshot().String()
}

func (s Snapshot) String() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Stats: lines=%s overlong=%s",
		humanize.Comma(int64(s.Lines)), humanize.Comma(int64(s.Overlong)))
	if s.SinkFailures > 0 {
		fmt.Fprintf(&builder, " sink_failures=%s", humanize.Comma(int64(s.SinkFailures)))
	}
	builder.WriteString(" | ")
	builder.WriteString(formatCounts(s.Verdicts))
	builder.WriteString(" | up ")
	builder.WriteString(s.Uptime.Truncate(time.Second).String())
	return builder.String()
}

func formatCounts(counts map[string]uint64) string {
	if len(counts) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	for i, key := range keys {
		if i > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%s", key, humanize.Comma(int64(counts[key])))
	}
	return builder.String()
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
