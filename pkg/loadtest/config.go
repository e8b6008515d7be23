package loadtest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/informalsystems/wsproxy-load-test/pkg/timeutils"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultProxyURL       = "ws://localhost:8887"
	DefaultTargetURI      = "coap://localhost:5683/target"
	DefaultOutput         = "wsproxy.txt"
	DefaultWindow         = 10 * time.Second
	DefaultCoolDown       = 1 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultCloseTimeout   = 5 * time.Second
	DefaultWriteTimeout   = 10 * time.Second

	// Added on top of the connect, window, write and close durations when deriving
	// the maximum time to wait for a concurrency level's transactors.
	levelTimeoutSlack = 5 * time.Second
)

// Config represents the configuration for a whole load testing run.
type Config struct {
	Levels         []int                       `json:"levels" yaml:"levels"`                   // The concurrency levels to test, in order.
	Window         timeutils.ParseableDuration `json:"window" yaml:"window"`                   // How long each connection sends for, measured from when it opens.
	CoolDown       timeutils.ParseableDuration `json:"cool_down" yaml:"cool_down"`             // The pause between consecutive concurrency levels.
	ConnectTimeout timeutils.ParseableDuration `json:"connect_timeout" yaml:"connect_timeout"` // The maximum time to wait for a connection to open.
	CloseTimeout   timeutils.ParseableDuration `json:"close_timeout" yaml:"close_timeout"`     // The maximum time to wait for a close acknowledgment.
	WriteTimeout   timeutils.ParseableDuration `json:"write_timeout" yaml:"write_timeout"`     // The maximum time a single send may block.
	LevelTimeout   timeutils.ParseableDuration `json:"level_timeout" yaml:"level_timeout"`     // The maximum time to wait for all of a level's transactors. 0 derives it from the other timeouts.
	ProxyURL       string                      `json:"proxy_url" yaml:"proxy_url"`             // The ws:// or wss:// URL of the proxy under test.
	TargetURI      string                      `json:"target_uri" yaml:"target_uri"`           // The coap:// URI every request is addressed to.
	Output         string                      `json:"output" yaml:"output"`                   // The results log to which one line per level is appended.
	StatsOutput    string                      `json:"stats_output" yaml:"stats_output"`       // Optional CSV summary of the whole run.
	MetricsAddr    string                      `json:"metrics_addr" yaml:"metrics_addr"`       // Optional host:port on which to expose Prometheus metrics.
	LogFile        string                      `json:"log_file" yaml:"log_file"`               // Optional rotating file for diagnostic logs.
}

// DefaultConfig returns the configuration used when nothing else is specified.
func DefaultConfig() Config {
	return Config{
		Levels:         []int{10},
		Window:         timeutils.ParseableDuration(DefaultWindow),
		CoolDown:       timeutils.ParseableDuration(DefaultCoolDown),
		ConnectTimeout: timeutils.ParseableDuration(DefaultConnectTimeout),
		CloseTimeout:   timeutils.ParseableDuration(DefaultCloseTimeout),
		WriteTimeout:   timeutils.ParseableDuration(DefaultWriteTimeout),
		ProxyURL:       DefaultProxyURL,
		TargetURI:      DefaultTargetURI,
		Output:         DefaultOutput,
	}
}

// LoadConfigFile overlays the YAML configuration in the given file onto cfg.
// Keys absent from the file leave the corresponding fields untouched.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewError(ErrFailedToReadConfigFile, err, path)
	}
	return ParseConfig(data, cfg)
}

// ParseConfig overlays the given raw YAML onto cfg.
func ParseConfig(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return NewError(ErrFailedToDecodeConfig, err)
	}
	return nil
}

func (c Config) Validate() error {
	if len(c.Levels) == 0 {
		return fmt.Errorf("expected at least one concurrency level, but found none")
	}
	for _, level := range c.Levels {
		if level < 0 {
			return fmt.Errorf("expected concurrency levels to be >= 0, but found %d", level)
		}
	}
	if c.Window <= 0 {
		return fmt.Errorf("expected measurement window to be > 0, but was %s", c.Window)
	}
	if c.CoolDown < 0 {
		return fmt.Errorf("expected cool-down to be >= 0, but was %s", c.CoolDown)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("expected connect timeout to be > 0, but was %s", c.ConnectTimeout)
	}
	if c.CloseTimeout <= 0 {
		return fmt.Errorf("expected close timeout to be > 0, but was %s", c.CloseTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("expected write timeout to be > 0, but was %s", c.WriteTimeout)
	}
	if c.LevelTimeout < 0 {
		return fmt.Errorf("expected level timeout to be >= 0, but was %s", c.LevelTimeout)
	}
	if err := validateURL(c.ProxyURL, "proxy URL", "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL(c.TargetURI, "target URI", "coap"); err != nil {
		return err
	}
	if len(c.Output) == 0 {
		return fmt.Errorf("an output file for results must be specified")
	}
	return nil
}

func validateURL(raw, what string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %v", what, raw, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			if len(u.Host) == 0 {
				return fmt.Errorf("%s %q has no host", what, raw)
			}
			return nil
		}
	}
	return fmt.Errorf("unsupported %s scheme %q (expected one of %v)", what, u.Scheme, schemes)
}

// redactURL masks any password embedded in the given URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

// EffectiveLevelTimeout returns the configured level timeout, or derives one
// that leaves every transactor enough time to connect, send for the whole
// window, finish a send that was in progress at the end of it and close.
func (c Config) EffectiveLevelTimeout() time.Duration {
	if c.LevelTimeout > 0 {
		return c.LevelTimeout.Duration()
	}
	return c.ConnectTimeout.Duration() +
		c.Window.Duration() +
		c.WriteTimeout.Duration() +
		c.CloseTimeout.Duration() +
		levelTimeoutSlack
}

func (c Config) ToJSON() string {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%v", c)
	}
	return string(b)
}
