package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quietport/rft/config"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != (config.Config{}) {
		t.Fatalf("got %+v, want zero value", cfg)
	}
}

func TestLoadEmptyPathReturnsZeroValue(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != (config.Config{}) {
		t.Fatalf("got %+v, want zero value", cfg)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rft.yaml")
	contents := `
root: /srv/files
port: 9009
retransmit_timeout: 250ms
max_retries: 5
linger_window: 3s
burst_size: 32
metrics_addr: 127.0.0.1:9100
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != "/srv/files" || cfg.Port != 9009 || cfg.MaxRetries != 5 || cfg.BurstSize != 32 {
		t.Fatalf("got %+v, unexpected parse result", cfg)
	}
	if cfg.RetransmitTimeout.Duration() != 250*time.Millisecond {
		t.Fatalf("got %v, want 250ms", cfg.RetransmitTimeout)
	}
	if cfg.LingerWindow.Duration() != 3*time.Second {
		t.Fatalf("got %v, want 3s", cfg.LingerWindow)
	}
	if cfg.MetricsAddr != "127.0.0.1:9100" {
		t.Fatalf("got %q, want 127.0.0.1:9100", cfg.MetricsAddr)
	}
}

func TestSenderOptionsTranslation(t *testing.T) {
	cfg := config.Config{MaxRetries: 7, BurstSize: 16}
	opts := cfg.SenderOptions()
	if opts.MaxRetries != 7 || opts.BurstSize != 16 {
		t.Fatalf("got %+v, translation dropped fields", opts)
	}
}
