package rbn

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"rbncw/filter"
	"rbncw/spot"
	"rbncw/stats"
)

type collectSink struct {
	spots []spot.Spot
	err   error
	after func(spot.Spot)
}

func (c *collectSink) Emit(s spot.Spot) error {
	if c.err != nil {
		return c.err
	}
	c.spots = append(c.spots, s)
	if c.after != nil {
		c.after(s)
	}
	return nil
}

func (c *collectSink) formatted() []string {
	out := make([]string, 0, len(c.spots))
	for _, s := range c.spots {
		out = append(out, s.Format())
	}
	return out
}

const feedSample = "Hello, this is the RBN node telnet.reversebeacon.net\r\n" +
	"DX de MM0ZBH-#:    14050.9  IK3CSX       CW    18 dB  20 WPM  CQ      1928Z\r\n" +
	"DX de DL8LAS-#:    14051.0  IK3CSX       CW    14 dB  20 WPM  CQ      1928Z\r\n" +
	"DX de W3LPL-#:     7025.0   K1ABC        CW    22 dB  28 WPM  CQ      1928Z\r\n" +
	"DX de W3LPL-#:     7030.0   K1ABC        RTTY  22 dB  45 BPS  CQ      1928Z\r\n" +
	"DX de K3LR-#:      10105.0  W1AW/B       CW    22 dB  16 WPM  BEACON  1929Z\r\n" +
	"DX de VE2WU-#:     3535.5   OK1RR        CW    9 dB   12 WPM  CQ      1929Z\r\n" +
	"DX de VE2WU-#:     3535.6   IK3CSX       CW    9 dB   12 WPM  CQ      1929Z\r\n" +
	"DX de VE2WU-#:     3535.6   IK3CSX       CW    9 dB   12 WPM  CQ"

func TestProcessEndToEnd(t *testing.T) {
	for name, wrap := range map[string]func(string) *LineFramer{
		"whole":    func(s string) *LineFramer { return NewLineFramer(strings.NewReader(s), 0) },
		"one-byte": func(s string) *LineFramer { return NewLineFramer(iotest.OneByteReader(strings.NewReader(s)), 0) },
	} {
		sink := &collectSink{}
		tracker := stats.NewTracker()
		loop := NewLoop(filter.NewState(20, spot.DefaultLayout()), sink, tracker)
		if err := loop.Process(context.Background(), wrap(feedSample)); err != nil {
			t.Fatalf("%s: Process returned %v", name, err)
		}
		want := []string{
			"MM0ZBH_IK3CSX_14050.9_20",
			"VE2WU_OK1RR_3535.5_12",
			"VE2WU_IK3CSX_3535.6_12",
		}
		got := sink.formatted()
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Fatalf("%s: expected %q, got %q", name, want, got)
		}
		snap := tracker.Snapshot()
		if snap.Lines != 8 {
			t.Fatalf("%s: expected 8 complete lines, got %d", name, snap.Lines)
		}
		checks := map[string]uint64{
			"emitted":    3,
			"duplicate":  1,
			"too_fast":   1,
			"wrong_mode": 1,
			"not_cq":     1,
			"not_spot":   1,
		}
		for label, n := range checks {
			if snap.Verdicts[label] != n {
				t.Fatalf("%s: expected %s=%d, got %d (%v)", name, label, n, snap.Verdicts[label], snap.Verdicts)
			}
		}
	}
}

func TestProcessCountsOverlongLines(t *testing.T) {
	feed := strings.Repeat("Q", 300) + "\r\n" +
		"DX de MM0ZBH-#:    14050.9  IK3CSX       CW    18 dB  20 WPM  CQ      1928Z\r\n"
	sink := &collectSink{}
	tracker := stats.NewTracker()
	loop := NewLoop(filter.NewState(20, spot.DefaultLayout()), sink, tracker)
	if err := loop.Process(context.Background(), NewLineFramer(strings.NewReader(feed), 100)); err != nil {
		t.Fatalf("Process returned %v", err)
	}
	if len(sink.spots) != 1 {
		t.Fatalf("expected the spot after the overlong line, got %d spots", len(sink.spots))
	}
	if got := tracker.Snapshot().Overlong; got != 1 {
		t.Fatalf("expected 1 overlong line, got %d", got)
	}
}

func TestProcessReturnsSinkErrors(t *testing.T) {
	boom := errors.New("stdout closed")
	loop := NewLoop(filter.NewState(20, spot.DefaultLayout()), &collectSink{err: boom}, nil)
	err := loop.Process(context.Background(), NewLineFramer(strings.NewReader(feedSample), 0))
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestProcessReturnsTransportErrors(t *testing.T) {
	boom := errors.New("connection reset by peer")
	r := &timeoutReader{data: []byte("DX de MM0ZBH-#: 14050.9 IK3CSX CW 18 dB 20 WPM CQ 1928Z\n"), err: boom}
	sink := &collectSink{}
	loop := NewLoop(filter.NewState(20, spot.DefaultLayout()), sink, nil)
	if err := loop.Process(context.Background(), NewLineFramer(r, 0)); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if len(sink.spots) != 1 {
		t.Fatalf("expected the line before the failure to be emitted, got %d", len(sink.spots))
	}
}

func TestProcessTreatsErrorAfterCancelAsCleanStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &timeoutReader{err: errors.New("use of closed network connection")}
	loop := NewLoop(filter.NewState(20, spot.DefaultLayout()), &collectSink{}, nil)
	if err := loop.Process(ctx, NewLineFramer(r, 0)); err != nil {
		t.Fatalf("expected nil after cancellation, got %v", err)
	}
}

func TestProcessObserverSeesEveryLine(t *testing.T) {
	loop := NewLoop(filter.NewState(20, spot.DefaultLayout()), &collectSink{}, nil)
	var verdicts []string
	loop.Observe(func(_ string, v filter.Verdict) { verdicts = append(verdicts, v.String()) })
	if err := loop.Process(context.Background(), NewLineFramer(strings.NewReader(feedSample), 0)); err != nil {
		t.Fatalf("Process returned %v", err)
	}
	want := "not_spot|emitted|duplicate|too_fast|wrong_mode|not_cq|emitted|emitted"
	if got := strings.Join(verdicts, "|"); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
