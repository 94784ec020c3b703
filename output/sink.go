// Package output delivers emitted spots: the stdout line stream consumed by
// the Discord bot, plus optional secondary sinks such as MQTT.
package output

import (
	"bufio"
	"errors"
	"io"
	"log"
	"time"

	"rbncw/internal/ratelimit"
	"rbncw/spot"
	"rbncw/stats"
)

// Sink receives each emitted spot in order.
type Sink interface {
	Emit(s spot.Spot) error
	Close() error
}

// LineWriter writes one `spotter_call_freq_wpm` line per spot and flushes
// after every line so a piped consumer sees it immediately.
type LineWriter struct {
	w *bufio.Writer
}

// NewLineWriter wraps w.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

func (l *LineWriter) Emit(s spot.Spot) error {
	if _, err := l.w.WriteString(s.Format()); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *LineWriter) Close() error {
	return l.w.Flush()
}

// Fanout emits to a primary sink and any number of secondary sinks.
//
// Only primary failures are returned. Secondary failures are counted on the
// tracker and logged at most once per interval; they never block the
// primary stream.
type Fanout struct {
	primary   Sink
	secondary []Sink
	tracker   *stats.Tracker
	failures  *ratelimit.Counter
}

// NewFanout builds a fanout. tracker may be nil; nil secondaries are skipped.
func NewFanout(primary Sink, tracker *stats.Tracker, secondary ...Sink) *Fanout {
	f := &Fanout{
		primary:  primary,
		tracker:  tracker,
		failures: ratelimit.NewCounter(time.Minute),
	}
	for _, s := range secondary {
		if s != nil {
			f.secondary = append(f.secondary, s)
		}
	}
	return f
}

func (f *Fanout) Emit(s spot.Spot) error {
	if err := f.primary.Emit(s); err != nil {
		return err
	}
	for _, sink := range f.secondary {
		if err := sink.Emit(s); err != nil {
			f.tracker.IncrementSinkFailures()
			if total, ok := f.failures.Inc(); ok {
				log.Printf("Output: secondary sink failed (%d total): %v", total, err)
			}
		}
	}
	return nil
}

// Close closes every sink and returns the joined errors.
func (f *Fanout) Close() error {
	errs := []error{f.primary.Close()}
	for _, sink := range f.secondary {
		errs = append(errs, sink.Close())
	}
	return errors.Join(errs...)
}
