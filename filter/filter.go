// Package filter implements the fixed CW/CQ slow-speed spot filter applied to
// every line of the RBN feed.
//
// Filter Logic:
//   - Only "DX" lines with enough columns for the layout are spots
//   - Mode must be exactly "CW" and category exactly "CQ"
//   - Speed must be <= the configured maximum WPM (QRS filtering)
//   - A spot repeating the most recently emitted callsign is dropped; only the
//     last emission is remembered, not a history
//
// Malformed input is never an error: every line either yields a spot or a
// Verdict explaining why it was dropped.
package filter

import (
	"rbncw/spot"
)

const (
	kindDX     = "DX"
	modeCW     = "CW"
	categoryCQ = "CQ"

	// DefaultMaxWPM is the threshold used when none is configured.
	DefaultMaxWPM = 20
)

// Verdict records the outcome of filtering one line.
type Verdict uint8

const (
	Emitted   Verdict = iota // Spot accepted and recorded as the last emission
	NotSpot                  // Short line, kind other than DX, or unusable spotter
	WrongMode                // Spot for a mode other than CW
	NotCQ                    // CW spot that is not a CQ call (e.g., BEACON)
	TooFast                  // Speed above the configured maximum
	Duplicate                // Same callsign as the previous emission
)

var verdictLabels = [...]string{
	Emitted:   "emitted",
	NotSpot:   "not_spot",
	WrongMode: "wrong_mode",
	NotCQ:     "not_cq",
	TooFast:   "too_fast",
	Duplicate: "duplicate",
}

// Verdicts lists every verdict in display order.
var Verdicts = []Verdict{Emitted, NotSpot, WrongMode, NotCQ, TooFast, Duplicate}

// String returns a stable lowercase label suitable for stats keys.
func (v Verdict) String() string {
	if int(v) < len(verdictLabels) {
		return verdictLabels[v]
	}
	return "unknown"
}

// State holds the threshold and dedup memory for one connection. It is owned
// by a single processing loop and is not safe for concurrent use.
type State struct {
	maxWPM int
	layout spot.Layout
	last   string
}

// NewState creates filter state with a fixed threshold and column layout.
func NewState(maxWPM int, layout spot.Layout) *State {
	return &State{maxWPM: maxWPM, layout: layout}
}

// MaxWPM returns the configured speed threshold.
func (s *State) MaxWPM() int {
	return s.maxWPM
}

// LastCall returns the callsign of the most recent emission ("" before the first).
func (s *State) LastCall() string {
	return s.last
}

// Apply classifies one line (without its newline). The returned spot is only
// meaningful when the verdict is Emitted.
func (s *State) Apply(line string) (spot.Spot, Verdict) {
	fields, ok := s.layout.Project(spot.Tokenize(line))
	if !ok || fields.Kind != kindDX {
		return spot.Spot{}, NotSpot
	}
	if fields.Mode != modeCW {
		return spot.Spot{}, WrongMode
	}

	spotter := spot.TrimStatusSuffix(fields.Spotter, s.layout.SpotterSuffix)
	if spotter == "" {
		return spot.Spot{}, NotSpot
	}
	wpm := spot.ParseWPM(fields.WPM)

	switch {
	case fields.Category != categoryCQ:
		return spot.Spot{}, NotCQ
	case wpm > s.maxWPM:
		return spot.Spot{}, TooFast
	case fields.Call == s.last:
		return spot.Spot{}, Duplicate
	}

	s.last = fields.Call
	return spot.Spot{
		Spotter:   spotter,
		Call:      fields.Call,
		Frequency: fields.Frequency,
		WPM:       wpm,
	}, Emitted
}
