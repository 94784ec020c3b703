package spot

import (
	"fmt"
	"math"
	"strings"
)

// Layout maps named spot fields onto token indices of a whitespace-split RBN
// line. The indices mirror the fixed column layout of the telnet feed:
//
//	DX de MM0ZBH-#:  14050.9  IK3CSX  CW  18 dB  20 WPM  CQ  1928Z
//	0  1  2          3        4       5   6  7   8  9    10  11
type Layout struct {
	Kind      int `yaml:"kind"`
	Spotter   int `yaml:"spotter"`
	Frequency int `yaml:"frequency"`
	Call      int `yaml:"call"`
	Mode      int `yaml:"mode"`
	WPM       int `yaml:"wpm"`
	Category  int `yaml:"category"`
	// SpotterSuffix is the length of the status tag RBN appends to skimmer
	// callsigns ("-#:" on the CW feed).
	SpotterSuffix int `yaml:"spotter_suffix"`
}

// DefaultLayout returns the column layout observed on telnet.reversebeacon.net:7000.
func DefaultLayout() Layout {
	return Layout{
		Kind:          0,
		Spotter:       2,
		Frequency:     3,
		Call:          4,
		Mode:          5,
		WPM:           8,
		Category:      10,
		SpotterSuffix: 3,
	}
}

// Fields is the named projection of one tokenized line. Values are the raw
// tokens; no trimming or numeric parsing has been applied yet.
type Fields struct {
	Kind      string
	Spotter   string
	Frequency string
	Call      string
	Mode      string
	WPM       string
	Category  string
}

var columnNames = [7]string{"kind", "spotter", "frequency", "call", "mode", "wpm", "category"}

func (l Layout) indices() [7]int {
	return [7]int{l.Kind, l.Spotter, l.Frequency, l.Call, l.Mode, l.WPM, l.Category}
}

// MinTokens reports how many tokens a line needs before every column can be read.
func (l Layout) MinTokens() int {
	highest := 0
	for _, idx := range l.indices() {
		if idx > highest {
			highest = idx
		}
	}
	return highest + 1
}

// Validate rejects layouts that could never address a token.
func (l Layout) Validate() error {
	for i, idx := range l.indices() {
		if idx < 0 {
			return fmt.Errorf("column %s: index %d must be >= 0", columnNames[i], idx)
		}
	}
	if l.SpotterSuffix < 0 {
		return fmt.Errorf("spotter_suffix %d must be >= 0", l.SpotterSuffix)
	}
	return nil
}

// Project assigns tokens to named fields. It returns false, without touching
// any index, when the line is too short for the layout.
func (l Layout) Project(tokens []string) (Fields, bool) {
	if len(tokens) < l.MinTokens() {
		return Fields{}, false
	}
	for _, idx := range l.indices() {
		if idx < 0 {
			return Fields{}, false
		}
	}
	return Fields{
		Kind:      tokens[l.Kind],
		Spotter:   tokens[l.Spotter],
		Frequency: tokens[l.Frequency],
		Call:      tokens[l.Call],
		Mode:      tokens[l.Mode],
		WPM:       tokens[l.WPM],
		Category:  tokens[l.Category],
	}, true
}

// Tokenize splits a line on runs of whitespace and drops empty tokens.
func Tokenize(line string) []string {
	return strings.Fields(line)
}

// TrimStatusSuffix removes the fixed-length status tag from a skimmer
// callsign. Tokens that are not longer than the tag yield "".
func TrimStatusSuffix(call string, n int) string {
	if n <= 0 {
		return call
	}
	if len(call) <= n {
		return ""
	}
	return call[:len(call)-n]
}

// ParseWPM parses the speed column the way atoi does: optional leading
// whitespace, an optional sign, then leading digits. Text without leading
// digits parses as 0. Out-of-range values saturate.
func ParseWPM(text string) int {
	i := 0
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	neg := false
	if i < len(text) && (text[i] == '+' || text[i] == '-') {
		neg = text[i] == '-'
		i++
	}
	var n int64
	for ; i < len(text) && text[i] >= '0' && text[i] <= '9'; i++ {
		n = n*10 + int64(text[i]-'0')
		if n > math.MaxInt32 {
			n = math.MaxInt32
		}
	}
	if neg {
		n = -n
	}
	return int(n)
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
