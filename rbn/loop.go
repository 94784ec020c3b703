package rbn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"rbncw/filter"
	"rbncw/internal/ratelimit"
	"rbncw/spot"
	"rbncw/stats"
)

// Sink receives every emitted spot. Emit blocks the loop until it returns.
type Sink interface {
	Emit(s spot.Spot) error
}

// Loop is the single-threaded frame -> filter -> emit pipeline for one
// connection. It owns the filter state for the lifetime of the run.
type Loop struct {
	state    *filter.State
	sink     Sink
	tracker  *stats.Tracker
	overlong *ratelimit.Counter
	observe  func(line string, verdict filter.Verdict)
}

// NewLoop wires filter state to a sink. tracker may be nil.
func NewLoop(state *filter.State, sink Sink, tracker *stats.Tracker) *Loop {
	return &Loop{
		state:    state,
		sink:     sink,
		tracker:  tracker,
		overlong: ratelimit.NewCounter(time.Minute),
	}
}

// Observe registers fn to be called with every complete line and its verdict,
// before the spot (if any) reaches the sink. Used by diagnostics.
func (l *Loop) Observe(fn func(line string, verdict filter.Verdict)) {
	l.observe = fn
}

// Process pulls lines from the framer until the stream ends. Each line is
// filtered and, when accepted, emitted before the next line is read.
func (l *Loop) Process(ctx context.Context, framer *LineFramer) error {
	for {
		line, err := framer.Next()
		if err != nil {
			var tooLong *ErrLineTooLong
			switch {
			case errors.As(err, &tooLong):
				l.tracker.IncrementOverlong()
				if total, ok := l.overlong.Inc(); ok {
					log.Printf("RBN: dropped overlong line (%d bytes, %d total): %q", tooLong.Length, total, tooLong.Preview)
				}
				continue
			case errors.Is(err, ErrStreamEnded):
				log.Printf("RBN: %v", err)
				return nil
			case ctx.Err() != nil:
				log.Printf("RBN: stopping: %v", context.Cause(ctx))
				return nil
			default:
				return err
			}
		}

		l.tracker.IncrementLines()
		s, verdict := l.state.Apply(line)
		l.tracker.IncrementVerdict(verdict.String())
		if l.observe != nil {
			l.observe(line, verdict)
		}
		if verdict != filter.Emitted {
			continue
		}
		if err := l.sink.Emit(s); err != nil {
			return fmt.Errorf("emit %s: %w", s.Call, err)
		}
	}
}
