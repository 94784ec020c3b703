// Command rbncw logs in to the Reverse Beacon Network telnet feed and prints
// one `spotter_call_freq_wpm` line per slow CW CQ spot on stdout.
//
// Usage:
//
//	rbncw [flags] CALLSIGN [maxWPM]
//
// Logs go to stderr (and optionally a daily file); stdout carries spots only.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"rbncw/config"
	"rbncw/cty"
	"rbncw/filter"
	"rbncw/output"
	"rbncw/rbn"
	"rbncw/stats"

	"github.com/spf13/pflag"
)

const (
	defaultConfigPath = "data/config"
	envConfigPath     = "RBNCW_CONFIG_PATH"

	exitOK        = 0
	exitTransport = 1
	exitUsage     = 2
)

type cliArgs struct {
	callsign  string
	maxWPM    int
	maxWPMSet bool
	configDir string
	host      string
	port      int
	timeout   time.Duration
	mqtt      bool
	changed   func(name string) bool
}

var errUsage = errors.New("usage")

func usage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: %s [flags] CALLSIGN [maxWPM]\n\n", flags.Name())
	fmt.Fprintf(w, "Prints CW CQ spots at or below maxWPM (default %d) as spotter_call_freq_wpm.\n\nFlags:\n", filter.DefaultMaxWPM)
	fmt.Fprint(w, flags.FlagUsages())
}

// parseArgs reads flags and the positional CALLSIGN [maxWPM]. A missing
// callsign or a maxWPM that is not a positive integer returns an error
// wrapping errUsage.
func parseArgs(name string, argv []string, stderr io.Writer) (cliArgs, error) {
	var args cliArgs
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&args.configDir, "config", "", "config directory (default $"+envConfigPath+" or "+defaultConfigPath+")")
	flags.StringVar(&args.host, "host", "", "RBN host (overrides rbn.host)")
	flags.IntVar(&args.port, "port", 0, "RBN port (overrides rbn.port)")
	flags.DurationVar(&args.timeout, "timeout", 0, "idle read timeout, e.g. 60s (overrides rbn.idle_timeout_seconds)")
	flags.BoolVar(&args.mqtt, "mqtt", false, "mirror spots to MQTT (overrides mqtt.enabled)")
	flags.Usage = func() { usage(stderr, flags) }

	if err := flags.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return args, err
		}
		return args, fmt.Errorf("%w: %v", errUsage, err)
	}
	args.changed = flags.Changed

	positional := flags.Args()
	if len(positional) < 1 || strings.TrimSpace(positional[0]) == "" {
		flags.Usage()
		return args, fmt.Errorf("%w: CALLSIGN is required", errUsage)
	}
	if len(positional) > 2 {
		flags.Usage()
		return args, fmt.Errorf("%w: unexpected argument %q", errUsage, positional[2])
	}
	args.callsign = strings.TrimSpace(positional[0])
	if len(positional) == 2 {
		n, err := strconv.Atoi(strings.TrimSpace(positional[1]))
		if err != nil || n < 1 {
			return args, fmt.Errorf("%w: maxWPM must be a positive integer, got %q", errUsage, positional[1])
		}
		args.maxWPM = n
		args.maxWPMSet = true
	}
	if args.changed("port") && (args.port < 1 || args.port > 65535) {
		return args, fmt.Errorf("%w: --port %d out of range", errUsage, args.port)
	}
	if args.changed("timeout") && args.timeout < time.Second {
		return args, fmt.Errorf("%w: --timeout must be at least 1s", errUsage)
	}
	return args, nil
}

// loadConfig tries the explicit directory, then $RBNCW_CONFIG_PATH, then the
// default. Only a missing implicit directory falls back to built-in defaults.
func loadConfig(explicit string) (*config.Config, error) {
	if explicit != "" {
		return config.Load(explicit)
	}
	candidates := make([]string, 0, 2)
	if envPath := strings.TrimSpace(os.Getenv(envConfigPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, defaultConfigPath)
	for _, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		return cfg, nil
	}
	return config.Defaults(), nil
}

// applyOverrides layers command-line values over the loaded config.
func applyOverrides(cfg *config.Config, args cliArgs) error {
	cfg.RBN.Callsign = args.callsign
	if args.maxWPMSet {
		cfg.Filter.MaxWPM = args.maxWPM
	}
	if args.changed != nil {
		if args.changed("host") {
			cfg.RBN.Host = args.host
		}
		if args.changed("port") {
			cfg.RBN.Port = args.port
		}
		if args.changed("timeout") {
			cfg.RBN.IdleTimeoutSeconds = int(args.timeout / time.Second)
		}
		if args.changed("mqtt") {
			cfg.MQTT.Enabled = args.mqtt
		}
	}
	return cfg.Validate()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Purpose: Wire config, logging, sinks, and the RBN client for one session.
// Key aspects: Returns the process exit code; stream end and signals are 0.
// Upstream: main.
// Downstream: rbn.Client.Connect/Run, output sinks, stats summary.
func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	args, err := parseArgs("rbncw", argv, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "rbncw: %v\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(args.configDir)
	if err != nil {
		fmt.Fprintf(stderr, "rbncw: error loading config: %v\n", err)
		return exitUsage
	}
	if err := applyOverrides(cfg, args); err != nil {
		fmt.Fprintf(stderr, "rbncw: %v\n", err)
		return exitUsage
	}

	fanout, err := setupLogging(cfg.Logging, stderr)
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer func() {
		log.SetOutput(stderr)
		_ = fanout.Close()
	}()
	if err != nil {
		log.Printf("Logging: file sink disabled: %v", err)
	}
	cfg.Print()

	tracker := stats.NewTracker()
	sink := buildSinks(cfg, stdout, tracker)
	defer func() {
		if err := sink.Close(); err != nil {
			log.Printf("Output: close: %v", err)
		}
	}()

	state := filter.NewState(cfg.Filter.MaxWPM, cfg.Filter.Layout)
	client := rbn.NewClient(rbn.Options{
		Host:          cfg.RBN.Host,
		Port:          cfg.RBN.Port,
		Callsign:      cfg.RBN.Callsign,
		DialTimeout:   cfg.RBN.DialTimeout(),
		IdleTimeout:   cfg.RBN.IdleTimeout(),
		LoginTimeout:  cfg.RBN.LoginTimeout(),
		LoginPrompt:   cfg.RBN.Prompt(),
		MaxLineLength: cfg.RBN.MaxLineLength,
	})

	if err := client.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			log.Printf("Interrupted before login: %v", err)
			return exitOK
		}
		log.Printf("RBN: %v", err)
		return exitTransport
	}

	stopStats := startStatsReporter(ctx, tracker, cfg.Stats.Interval())
	runErr := client.Run(ctx, rbn.NewLoop(state, sink, tracker))
	stopStats()

	if cfg.Stats.LogSummary {
		log.Print(tracker.Summary())
	}
	if runErr != nil {
		log.Printf("RBN: %v", runErr)
		return exitTransport
	}
	return exitOK
}

// buildSinks returns stdout plus whichever optional sinks could be started.
// Optional sink failures are logged and the run continues on stdout alone.
func buildSinks(cfg *config.Config, stdout io.Writer, tracker *stats.Tracker) output.Sink {
	primary := output.NewLineWriter(stdout)
	if !cfg.MQTT.Enabled {
		return output.NewFanout(primary, tracker)
	}

	var continents output.ContinentLookup
	if cfg.CTY.Enabled {
		db, err := cty.LoadDatabase(cfg.CTY.File)
		if err != nil {
			log.Printf("CTY: continent lookup disabled: %v", err)
		} else {
			log.Printf("CTY: loaded %d entries from %s", db.Len(), cfg.CTY.File)
			continents = db
		}
	}

	publisher := output.NewMQTTPublisher(output.MQTTOptions{
		Broker:         cfg.MQTT.Broker,
		Port:           cfg.MQTT.Port,
		Topic:          cfg.MQTT.Topic,
		ClientID:       cfg.MQTT.ClientID,
		QoS:            byte(cfg.MQTT.QoS),
		Retain:         cfg.MQTT.Retain,
		PublishTimeout: cfg.MQTT.PublishTimeout(),
	}, continents)
	if err := publisher.Connect(); err != nil {
		log.Printf("MQTT: disabled: %v", err)
		return output.NewFanout(primary, tracker)
	}
	return output.NewFanout(primary, tracker, publisher)
}

// startStatsReporter logs the tracker summary every interval until ctx ends
// or the returned stop func is called. A zero interval does nothing.
func startStatsReporter(ctx context.Context, tracker *stats.Tracker, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Print(tracker.Summary())
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
