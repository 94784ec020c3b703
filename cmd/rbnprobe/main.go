// Command rbnprobe logs in to the RBN feed and prints every raw line next to
// the verdict the filter gave it. It is a debugging aid for checking the
// column layout against the live feed; it shares the rbncw config directory
// but writes nothing to MQTT.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rbncw/config"
	"rbncw/filter"
	"rbncw/rbn"
	"rbncw/spot"

	"github.com/spf13/pflag"
)

type discardSink struct{}

func (discardSink) Emit(spot.Spot) error { return nil }

func main() {
	flags := pflag.NewFlagSet("rbnprobe", pflag.ExitOnError)
	configDir := flags.String("config", "data/config", "config directory")
	callsign := flags.String("call", "N0CALL", "callsign to log in with")
	maxLines := flags.Int("max-lines", 200, "stop after this many lines (0 = until the feed ends)")
	onlyDropped := flags.Bool("dropped", false, "print only lines the filter dropped")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Printf("rbnprobe: using built-in defaults: %v", err)
		cfg = config.Defaults()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := rbn.NewClient(rbn.Options{
		Host:          cfg.RBN.Host,
		Port:          cfg.RBN.Port,
		Callsign:      *callsign,
		DialTimeout:   cfg.RBN.DialTimeout(),
		IdleTimeout:   cfg.RBN.IdleTimeout(),
		LoginTimeout:  cfg.RBN.LoginTimeout(),
		LoginPrompt:   cfg.RBN.Prompt(),
		MaxLineLength: cfg.RBN.MaxLineLength,
	})
	if err := client.Connect(ctx); err != nil {
		log.Fatalf("rbnprobe: %v", err)
	}

	loop := rbn.NewLoop(filter.NewState(cfg.Filter.MaxWPM, cfg.Filter.Layout), discardSink{}, nil)
	loop.Observe(newPrinter(os.Stdout, *maxLines, *onlyDropped, cancel))

	start := time.Now()
	if err := client.Run(ctx, loop); err != nil {
		log.Fatalf("rbnprobe: %v", err)
	}
	log.Printf("rbnprobe: done after %s", time.Since(start).Truncate(time.Second))
}

// newPrinter returns an observer that writes "verdict<TAB>line" and calls
// stop once limit lines have been seen.
func newPrinter(w io.Writer, limit int, onlyDropped bool, stop func()) func(string, filter.Verdict) {
	seen := 0
	return func(line string, verdict filter.Verdict) {
		seen++
		if !onlyDropped || verdict != filter.Emitted {
			fmt.Fprintf(w, "%-10s\t%s\n", verdict, line)
		}
		if limit > 0 && seen >= limit {
			stop()
		}
	}
}
