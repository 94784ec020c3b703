// Package config loads rbncw settings from a directory of YAML files.
//
// Every *.yaml file in the directory is decoded and deep-merged in lexical
// filename order, so later files override keys set by earlier ones. The merged
// document is then decoded over the built-in defaults: keys a file omits keep
// their default value, and a key set explicitly to zero stays zero and is
// checked by Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rbncw/spot"

	"gopkg.in/yaml.v3"
)

// Config represents the complete client configuration.
type Config struct {
	RBN     RBNConfig     `yaml:"rbn"`
	Filter  FilterConfig  `yaml:"filter"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	CTY     CTYConfig     `yaml:"cty"`
	Logging LoggingConfig `yaml:"logging"`
	Stats   StatsConfig   `yaml:"stats"`

	// LoadedFrom is the directory the config came from, or "" for built-in defaults.
	LoadedFrom string `yaml:"-"`
}

// RBNConfig contains Reverse Beacon Network feed settings.
type RBNConfig struct {
	Host                string  `yaml:"host"`
	Port                int     `yaml:"port"`
	Callsign            string  `yaml:"callsign"`
	DialTimeoutSeconds  int     `yaml:"dial_timeout_seconds"`
	IdleTimeoutSeconds  int     `yaml:"idle_timeout_seconds"`
	LoginTimeoutSeconds int     `yaml:"login_timeout_seconds"`
	LoginPrompt         *string `yaml:"login_prompt"` // nil = default prompt; "" = send callsign immediately
	MaxLineLength       int     `yaml:"max_line_length"`
}

// FilterConfig holds the speed threshold and the column layout.
type FilterConfig struct {
	MaxWPM int         `yaml:"max_wpm"`
	Layout spot.Layout `yaml:"layout"`
}

// MQTTConfig controls the optional MQTT mirror of emitted spots.
type MQTTConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Broker                string `yaml:"broker"`
	Port                  int    `yaml:"port"`
	Topic                 string `yaml:"topic"`
	ClientID              string `yaml:"client_id"`
	QoS                   int    `yaml:"qos"`
	Retain                bool   `yaml:"retain"`
	PublishTimeoutSeconds int    `yaml:"publish_timeout_seconds"`
}

// CTYConfig points at the cty.plist used for spotter continent lookup.
type CTYConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// LoggingConfig controls the optional daily log file sink.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// StatsConfig controls counter reporting.
type StatsConfig struct {
	IntervalSeconds int  `yaml:"interval_seconds"` // 0 disables periodic stats lines
	LogSummary      bool `yaml:"log_summary"`
}

const (
	defaultRBNHost        = "telnet.reversebeacon.net"
	defaultRBNPort        = 7000
	DefaultLoginPrompt    = "call:"
	defaultMaxWPM         = 20
	defaultMaxLineLength  = 100
	defaultMQTTPort       = 1883
	defaultMQTTTopic      = "rbn/cw/slow"
	defaultCTYFile        = "data/cty/cty.plist"
	defaultLogDir         = "data/logs"
	defaultLogRetention   = 7
	defaultStatsInterval  = 0
	defaultDialTimeout    = 30
	defaultIdleTimeout    = 60
	defaultLoginTimeout   = 10
	defaultPublishTimeout = 5
)

// Defaults returns the built-in configuration used when no directory is found.
func Defaults() *Config {
	prompt := DefaultLoginPrompt
	return &Config{
		RBN: RBNConfig{
			Host:                defaultRBNHost,
			Port:                defaultRBNPort,
			DialTimeoutSeconds:  defaultDialTimeout,
			IdleTimeoutSeconds:  defaultIdleTimeout,
			LoginTimeoutSeconds: defaultLoginTimeout,
			LoginPrompt:         &prompt,
			MaxLineLength:       defaultMaxLineLength,
		},
		Filter: FilterConfig{
			MaxWPM: defaultMaxWPM,
			Layout: spot.DefaultLayout(),
		},
		MQTT: MQTTConfig{
			Port:                  defaultMQTTPort,
			Topic:                 defaultMQTTTopic,
			PublishTimeoutSeconds: defaultPublishTimeout,
		},
		CTY: CTYConfig{File: defaultCTYFile},
		Logging: LoggingConfig{
			Dir:           defaultLogDir,
			RetentionDays: defaultLogRetention,
		},
		Stats: StatsConfig{
			IntervalSeconds: defaultStatsInterval,
			LogSummary:      true,
		},
	}
}

// Load reads and merges every *.yaml file in dir. Single-file paths are
// rejected. A missing directory returns an error satisfying
// errors.Is(err, fs.ErrNotExist).
func Load(dir string) (*Config, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("config path %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config path %s must be a directory of YAML files", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list config files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no *.yaml files in %s", dir)
	}
	sort.Strings(files)

	merged := map[string]any{}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		mergeMaps(merged, doc)
	}

	combined, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("re-encode merged config: %w", err)
	}
	cfg := Defaults()
	decoder := yaml.NewDecoder(bytes.NewReader(combined))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config in %s: %w", dir, err)
	}
	cfg.LoadedFrom = dir
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeMaps deep-merges src into dst. Nested maps merge key by key; any other
// value in src replaces the value in dst.
func mergeMaps(dst, src map[string]any) {
	for key, value := range src {
		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeMaps(dstMap, srcMap)
			continue
		}
		dst[key] = value
	}
}

// Validate rejects values the client cannot run with, naming the offending key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RBN.Host) == "" {
		return errors.New("rbn.host must not be empty")
	}
	if c.RBN.Port < 1 || c.RBN.Port > 65535 {
		return fmt.Errorf("rbn.port %d out of range", c.RBN.Port)
	}
	if c.RBN.DialTimeoutSeconds <= 0 {
		return fmt.Errorf("rbn.dial_timeout_seconds must be > 0 (got %d)", c.RBN.DialTimeoutSeconds)
	}
	if c.RBN.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("rbn.idle_timeout_seconds must be > 0 (got %d)", c.RBN.IdleTimeoutSeconds)
	}
	if c.RBN.LoginTimeoutSeconds <= 0 {
		return fmt.Errorf("rbn.login_timeout_seconds must be > 0 (got %d)", c.RBN.LoginTimeoutSeconds)
	}
	if c.RBN.MaxLineLength <= 0 {
		return fmt.Errorf("rbn.max_line_length must be > 0 (got %d)", c.RBN.MaxLineLength)
	}
	if c.Filter.MaxWPM < 1 {
		return fmt.Errorf("filter.max_wpm must be >= 1 (got %d)", c.Filter.MaxWPM)
	}
	if err := c.Filter.Layout.Validate(); err != nil {
		return fmt.Errorf("filter.layout: %w", err)
	}
	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			return errors.New("mqtt.broker is required when mqtt.enabled is true")
		}
		if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
			return fmt.Errorf("mqtt.port %d out of range", c.MQTT.Port)
		}
		if strings.TrimSpace(c.MQTT.Topic) == "" {
			return errors.New("mqtt.topic must not be empty")
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2 (got %d)", c.MQTT.QoS)
	}
	if c.MQTT.PublishTimeoutSeconds <= 0 {
		return fmt.Errorf("mqtt.publish_timeout_seconds must be > 0 (got %d)", c.MQTT.PublishTimeoutSeconds)
	}
	if c.CTY.Enabled && strings.TrimSpace(c.CTY.File) == "" {
		return errors.New("cty.file is required when cty.enabled is true")
	}
	if c.Logging.RetentionDays < 0 {
		return fmt.Errorf("logging.retention_days must be >= 0 (got %d)", c.Logging.RetentionDays)
	}
	if c.Logging.Enabled && strings.TrimSpace(c.Logging.Dir) == "" {
		return errors.New("logging.dir is required when logging.enabled is true")
	}
	if c.Stats.IntervalSeconds < 0 {
		return fmt.Errorf("stats.interval_seconds must be >= 0 (got %d)", c.Stats.IntervalSeconds)
	}
	return nil
}

// Prompt returns the effective login prompt.
func (r RBNConfig) Prompt() string {
	if r.LoginPrompt == nil {
		return DefaultLoginPrompt
	}
	return *r.LoginPrompt
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (r RBNConfig) DialTimeout() time.Duration  { return seconds(r.DialTimeoutSeconds) }
func (r RBNConfig) IdleTimeout() time.Duration  { return seconds(r.IdleTimeoutSeconds) }
func (r RBNConfig) LoginTimeout() time.Duration { return seconds(r.LoginTimeoutSeconds) }

func (m MQTTConfig) PublishTimeout() time.Duration { return seconds(m.PublishTimeoutSeconds) }

func (s StatsConfig) Interval() time.Duration { return seconds(s.IntervalSeconds) }

// Print logs the effective configuration.
func (c *Config) Print() {
	source := c.LoadedFrom
	if source == "" {
		source = "built-in defaults"
	}
	log.Printf("Config: %s", source)
	log.Printf("RBN: %s:%d (idle timeout %ds, max line %d)", c.RBN.Host, c.RBN.Port, c.RBN.IdleTimeoutSeconds, c.RBN.MaxLineLength)
	log.Printf("Filter: CW CQ <= %d WPM", c.Filter.MaxWPM)
	if c.MQTT.Enabled {
		log.Printf("MQTT: %s:%d (topic: %s, qos %d)", c.MQTT.Broker, c.MQTT.Port, c.MQTT.Topic, c.MQTT.QoS)
	}
	if c.CTY.Enabled {
		log.Printf("CTY: %s", c.CTY.File)
	}
}
