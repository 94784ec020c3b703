// Package spot defines the record emitted for each accepted RBN line and the
// positional column contract used to project raw feed lines onto named fields.
package spot

import (
	"strconv"
	"strings"
)

// Spot is one accepted CW CQ sighting in the compact form handed to sinks.
type Spot struct {
	Spotter   string // Reporting skimmer with the status suffix removed (e.g., "MM0ZBH")
	Call      string // Spotted station (e.g., "IK3CSX")
	Frequency string // Frequency in kHz exactly as sent by the feed (e.g., "14050.9")
	WPM       int    // Morse sending speed reported by the skimmer
}

// Format renders the spot as spotter_call_frequency_wpm without a trailing newline.
//
//	MM0ZBH_IK3CSX_14050.9_20
func (s Spot) Format() string {
	var b strings.Builder
	b.Grow(len(s.Spotter) + len(s.Call) + len(s.Frequency) + 8)
	b.WriteString(s.Spotter)
	b.WriteByte('_')
	b.WriteString(s.Call)
	b.WriteByte('_')
	b.WriteString(s.Frequency)
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(s.WPM))
	return b.String()
}

// String implements fmt.Stringer.
func (s Spot) String() string {
	return s.Format()
}
