// Package ops loads the JSON deployment config that pre-provisions a
// topic set before application processes attach.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vedarsh/kachow/internal/shmseg"
	"github.com/vedarsh/kachow/pkg/shmbus"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	App       string          `json:"app"`
	Dir       string          `json:"dir"`
	LogLevel  string          `json:"logLevel"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Topics    []TopicConfig   `json:"topics"`
}

// TopicConfig describes one topic entry.
type TopicConfig struct {
	Name           string `json:"name"`
	RingType       string `json:"ringType"`
	SlotCount      uint32 `json:"slotCount"`
	SlotSize       uint32 `json:"slotSize"`
	RateLimitHz    uint64 `json:"rateLimitHz"`
	BlockOnFull    bool   `json:"blockOnFull"`
	BlockTimeoutMs int    `json:"blockTimeoutMs"`
	Schema         string `json:"schema"`
}

// TelemetryConfig enables the PostgreSQL health sink.
type TelemetryConfig struct {
	Enabled    bool   `json:"enabled"`
	ConnString string `json:"connString"`
	IntervalMs int    `json:"intervalMs"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	App       string
	Dir       string
	LogLevel  int
	Telemetry TelemetryConfig
	Topics    []shmbus.Options
}

// Load reads a JSON config file and resolves every topic entry.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if len(cfg.Topics) == 0 {
		return Loaded{}, fmt.Errorf("config has no topics")
	}
	level, err := resolveLogLevel(cfg.LogLevel)
	if err != nil {
		return Loaded{}, err
	}
	loaded := Loaded{
		App:       cfg.App,
		Dir:       cfg.Dir,
		LogLevel:  level,
		Telemetry: cfg.Telemetry,
	}
	seen := make(map[string]struct{}, len(cfg.Topics))
	for _, t := range cfg.Topics {
		if _, err := shmseg.SanitizeTopic(t.Name); err != nil {
			return Loaded{}, fmt.Errorf("topic %q: %w", t.Name, err)
		}
		if _, dup := seen[t.Name]; dup {
			return Loaded{}, fmt.Errorf("topic %q listed twice", t.Name)
		}
		seen[t.Name] = struct{}{}
		rt, err := resolveRingType(t.RingType)
		if err != nil {
			return Loaded{}, fmt.Errorf("topic %q: %w", t.Name, err)
		}
		loaded.Topics = append(loaded.Topics, shmbus.Options{
			Topic:        t.Name,
			RingType:     rt,
			SlotCount:    t.SlotCount,
			SlotSize:     t.SlotSize,
			RateLimitHz:  t.RateLimitHz,
			BlockOnFull:  t.BlockOnFull,
			BlockTimeout: time.Duration(t.BlockTimeoutMs) * time.Millisecond,
			SchemaName:   t.Schema,
		})
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.ConnString == "" {
		return Loaded{}, fmt.Errorf("telemetry enabled without connString")
	}
	return loaded, nil
}

func resolveRingType(s string) (shmbus.RingType, error) {
	switch strings.ToLower(s) {
	case "", "swmr":
		return shmbus.SWMR, nil
	case "mwmr":
		return shmbus.MWMR, nil
	default:
		return 0, fmt.Errorf("unknown ring type %q", s)
	}
}

func resolveLogLevel(s string) (int, error) {
	switch strings.ToLower(s) {
	case "debug":
		return shmbus.LogDebug, nil
	case "", "info":
		return shmbus.LogInfo, nil
	case "warn":
		return shmbus.LogWarn, nil
	case "error":
		return shmbus.LogError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Provision creates one publisher per configured topic so the segments
// exist before other processes attach. The returned handles keep the
// rings alive; closing them (or the context) tears the topic set down.
func Provision(c *shmbus.Context, topics []shmbus.Options) ([]*shmbus.Publisher, error) {
	pubs := make([]*shmbus.Publisher, 0, len(topics))
	for _, opt := range topics {
		p, err := c.NewPublisher(opt)
		if err != nil {
			for _, created := range pubs {
				created.Close()
			}
			return nil, fmt.Errorf("provision topic %q: %w", opt.Topic, err)
		}
		pubs = append(pubs, p)
	}
	return pubs, nil
}
