// Package config loads optional server tuning overrides from a YAML file.
// Absence of the file is not an error; every field has a compiled-in
// default matching package sender's. CLI flags always take precedence over
// whatever the file sets, per SPEC_FULL.md's ambient-stack configuration
// note.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quietport/rft/sender"
)

// Duration wraps time.Duration so the config file can write "250ms"/"5s"
// instead of a raw nanosecond count.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config holds the server's tunable knobs. Zero-valued fields fall back to
// package sender's defaults when SenderOptions is called.
type Config struct {
	Root string `yaml:"root"`
	Port int    `yaml:"port"`

	RetransmitTimeout Duration `yaml:"retransmit_timeout"`
	MaxRetries        int      `yaml:"max_retries"`
	LingerWindow      Duration `yaml:"linger_window"`
	BurstSize         int      `yaml:"burst_size"`

	// SocketRecvBuf and SocketSendBuf set SO_RCVBUF/SO_SNDBUF on the server's
	// UDP socket, best-effort (see cmd/rft-server). Zero leaves the kernel
	// default in place.
	SocketRecvBuf int `yaml:"socket_recv_buf"`
	SocketSendBuf int `yaml:"socket_send_buf"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads and parses path. A missing file returns a zero-valued Config
// and a nil error, since an absent config file means "use defaults," not a
// failure.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SenderOptions translates the file's overrides into sender.Options,
// leaving zero fields for sender.Options.withDefaults to fill in.
func (c Config) SenderOptions() sender.Options {
	return sender.Options{
		RetransmitTimeout: c.RetransmitTimeout.Duration(),
		MaxRetries:        c.MaxRetries,
		LingerWindow:      c.LingerWindow.Duration(),
		BurstSize:         c.BurstSize,
	}
}
