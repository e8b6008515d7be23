package loadtest_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/informalsystems/wsproxy-load-test/pkg/loadtest"
	"github.com/informalsystems/wsproxy-load-test/pkg/timeutils"
)

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(cfg *loadtest.Config)
		valid  bool
	}{
		{"defaults", func(cfg *loadtest.Config) {}, true},
		{"several levels including zero", func(cfg *loadtest.Config) { cfg.Levels = []int{0, 10, 100} }, true},
		{"wss proxy", func(cfg *loadtest.Config) { cfg.ProxyURL = "wss://proxy.example.com/ws" }, true},
		{"no levels", func(cfg *loadtest.Config) { cfg.Levels = nil }, false},
		{"negative level", func(cfg *loadtest.Config) { cfg.Levels = []int{10, -1} }, false},
		{"zero window", func(cfg *loadtest.Config) { cfg.Window = 0 }, false},
		{"negative cool-down", func(cfg *loadtest.Config) { cfg.CoolDown = timeutils.ParseableDuration(-time.Second) }, false},
		{"zero connect timeout", func(cfg *loadtest.Config) { cfg.ConnectTimeout = 0 }, false},
		{"zero close timeout", func(cfg *loadtest.Config) { cfg.CloseTimeout = 0 }, false},
		{"zero write timeout", func(cfg *loadtest.Config) { cfg.WriteTimeout = 0 }, false},
		{"negative level timeout", func(cfg *loadtest.Config) { cfg.LevelTimeout = timeutils.ParseableDuration(-time.Second) }, false},
		{"http proxy", func(cfg *loadtest.Config) { cfg.ProxyURL = "http://localhost:8887" }, false},
		{"proxy without host", func(cfg *loadtest.Config) { cfg.ProxyURL = "ws://" }, false},
		{"non-coap target", func(cfg *loadtest.Config) { cfg.TargetURI = "coaps://localhost/target" }, false},
		{"no output", func(cfg *loadtest.Config) { cfg.Output = "" }, false},
	}
	for _, tc := range testCases {
		cfg := loadtest.DefaultConfig()
		tc.modify(&cfg)
		err := cfg.Validate()
		if tc.valid && err != nil {
			t.Errorf("%s: Expected config to be valid, but got error: %s", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Errorf("%s: Expected config to be invalid, but it passed validation", tc.name)
		}
	}
}

func TestEffectiveLevelTimeout(t *testing.T) {
	cfg := loadtest.DefaultConfig()
	// 30s connect + 10s window + 10s write + 5s close + 5s slack
	expected := time.Minute
	if actual := cfg.EffectiveLevelTimeout(); actual != expected {
		t.Errorf("Expected derived level timeout of %s, but got %s", expected, actual)
	}
	cfg.LevelTimeout = timeutils.ParseableDuration(time.Minute)
	if actual := cfg.EffectiveLevelTimeout(); actual != time.Minute {
		t.Errorf("Expected explicit level timeout of 1m, but got %s", actual)
	}
}

const testConfigYAML = `levels: [10, 20, 50]
window: 5s
cool_down: 2s
proxy_url: ws://proxy.local:8887
output: results.txt
`

func TestParseConfigOverlaysDefaults(t *testing.T) {
	cfg := loadtest.DefaultConfig()
	if err := loadtest.ParseConfig([]byte(testConfigYAML), &cfg); err != nil {
		t.Fatalf("Failed to parse config: %s", err)
	}
	if len(cfg.Levels) != 3 || cfg.Levels[2] != 50 {
		t.Errorf("Expected levels [10 20 50], but got %v", cfg.Levels)
	}
	if cfg.Window.Duration() != 5*time.Second {
		t.Errorf("Expected window of 5s, but got %s", cfg.Window)
	}
	if cfg.CoolDown.Duration() != 2*time.Second {
		t.Errorf("Expected cool-down of 2s, but got %s", cfg.CoolDown)
	}
	if cfg.ProxyURL != "ws://proxy.local:8887" {
		t.Errorf("Expected proxy URL from file, but got %s", cfg.ProxyURL)
	}
	// untouched by the file
	if cfg.TargetURI != loadtest.DefaultTargetURI {
		t.Errorf("Expected default target URI, but got %s", cfg.TargetURI)
	}
	if cfg.ConnectTimeout.Duration() != loadtest.DefaultConnectTimeout {
		t.Errorf("Expected default connect timeout, but got %s", cfg.ConnectTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected parsed config to be valid, but got: %s", err)
	}
}

func TestConfigFileErrors(t *testing.T) {
	cfg := loadtest.DefaultConfig()
	err := loadtest.LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), &cfg)
	if !loadtest.IsErrorCode(err, loadtest.ErrFailedToReadConfigFile) {
		t.Errorf("Expected ErrFailedToReadConfigFile, but got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("window: forever\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err = loadtest.LoadConfigFile(path, &cfg)
	if !loadtest.IsErrorCode(err, loadtest.ErrFailedToDecodeConfig) {
		t.Errorf("Expected ErrFailedToDecodeConfig, but got %v", err)
	}
}

func TestConfigToJSON(t *testing.T) {
	cfg := loadtest.DefaultConfig()
	expected := `{"levels":[10],"window":"10s","cool_down":"1s","connect_timeout":"30s","close_timeout":"5s","write_timeout":"10s","level_timeout":"0s","proxy_url":"ws://localhost:8887","target_uri":"coap://localhost:5683/target","output":"wsproxy.txt","stats_output":"","metrics_addr":"","log_file":""}`
	if actual := cfg.ToJSON(); actual != expected {
		t.Errorf("Expected JSON:\n%s\nbut got:\n%s", expected, actual)
	}
}
