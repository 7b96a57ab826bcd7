// Package config loads the fnio configuration file and applies environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-fujibus/device"
	"github.com/arloliu/go-fujibus/logger"
	"github.com/arloliu/go-fujibus/transport"
)

// Environment variables overriding the file configuration.
const (
	EnvPort      = "FN_PORT"
	EnvBaud      = "FN_BAUD"
	EnvAddr      = "FN_ADDR"
	EnvTransport = "FN_TRANSPORT"
)

// Defaults used when neither the file nor the environment sets a value.
const (
	DefaultSerialPort = "/dev/ttyUSB0"
	DefaultListen     = "127.0.0.1:6502"
	DefaultLogLevel   = "info"
)

// ErrUnknownFormat is returned for configuration files that are neither
// YAML nor TOML.
var ErrUnknownFormat = errors.New("config: unknown file format")

// Config is the fnio configuration.
type Config struct {
	Transport Transport `yaml:"transport" toml:"transport"`
	Device    Device    `yaml:"device" toml:"device"`
	Log       Log       `yaml:"log" toml:"log"`
}

// Transport selects and tunes the medium the client talks to a device over.
// Zero durations and counts keep the transport defaults.
type Transport struct {
	// Kind is serial, tcp or websocket.
	Kind string `yaml:"kind" toml:"kind"`
	// Port is the serial device path.
	Port string `yaml:"port" toml:"port"`
	Baud int    `yaml:"baud" toml:"baud"`
	// Addr is a host:port for tcp or a ws:// URL for websocket.
	Addr         string        `yaml:"addr" toml:"addr"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	RetryLimit   int           `yaml:"retry_limit" toml:"retry_limit"`
}

// Device configures the emulator started by `fnio serve`.
type Device struct {
	Listen      string        `yaml:"listen" toml:"listen"`
	WebSocket   string        `yaml:"websocket" toml:"websocket"`
	MaxHandles  int           `yaml:"max_handles" toml:"max_handles"`
	MaxBodySize int           `yaml:"max_body_size" toml:"max_body_size"`
	ReadWait    time.Duration `yaml:"read_wait" toml:"read_wait"`
	IdleTimeout time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
}

// Log configures the process logger.
type Log struct {
	Level     string `yaml:"level" toml:"level"`
	AddSource bool   `yaml:"add_source" toml:"add_source"`
}

// Default returns the built-in configuration: a serial link on
// /dev/ttyUSB0 at 115200 baud.
func Default() *Config {
	return &Config{
		Transport: Transport{
			Kind: string(transport.KindSerial),
			Port: DefaultSerialPort,
			Baud: transport.DefaultBaudRate,
		},
		Device: Device{
			Listen:     DefaultListen,
			MaxHandles: device.DefaultMaxHandles,
		},
		Log: Log{Level: DefaultLogLevel},
	}
}

// DefaultPath returns ~/.fujinet/fnio.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".fujinet", "fnio.yaml")
	}

	return filepath.Join(home, ".fujinet", "fnio.yaml")
}

// Load reads the file at path over the defaults, then applies environment
// overrides and validates the result. An empty path loads DefaultPath when
// that file exists and the defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, c); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	return nil
}

// ApplyEnv applies FN_TRANSPORT, FN_PORT, FN_BAUD and FN_ADDR using lookup.
// FN_ADDR alone switches a serial configuration to tcp, or to websocket for
// ws:// and wss:// URLs.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		c.Transport.Port = v
	}

	if v, ok := lookup(EnvBaud); ok && v != "" {
		baud, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvBaud, err)
		}
		c.Transport.Baud = baud
	}

	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Transport.Addr = v
		if c.Transport.Kind == string(transport.KindSerial) {
			c.Transport.Kind = string(transport.KindTCP)
			if isWebSocketURL(v) {
				c.Transport.Kind = string(transport.KindWebSocket)
			}
		}
	}

	if v, ok := lookup(EnvTransport); ok && v != "" {
		c.Transport.Kind = v
	}

	return nil
}

// Validate checks the transport selection and the logger level.
func (c *Config) Validate() error {
	kind, err := transport.ParseKind(c.Transport.Kind)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if c.Target() == "" {
		return fmt.Errorf("config: %s transport needs a target (port or addr)", kind)
	}

	if c.Log.Level != "" {
		if _, err := logger.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	return nil
}

// Kind returns the parsed transport kind.
func (c *Config) Kind() transport.Kind {
	kind, _ := transport.ParseKind(c.Transport.Kind) // checked by Validate

	return kind
}

// Target returns the serial device path or network address of the transport.
func (c *Config) Target() string {
	if c.Kind() == transport.KindSerial {
		return c.Transport.Port
	}

	return c.Transport.Addr
}

// PortOptions converts the transport settings to port options.
func (c *Config) PortOptions(l logger.Logger) []transport.PortOption {
	t := c.Transport

	opts := []transport.PortOption{transport.WithLogger(l)}
	if t.Baud != 0 {
		opts = append(opts, transport.WithBaudRate(t.Baud))
	}
	if t.Timeout != 0 {
		opts = append(opts, transport.WithTimeout(t.Timeout))
	}
	if t.PollInterval != 0 {
		opts = append(opts, transport.WithPollInterval(t.PollInterval))
	}
	if t.RetryLimit != 0 {
		opts = append(opts, transport.WithRetryLimit(t.RetryLimit))
	}

	return opts
}

// DeviceOptions converts the emulator settings to device options.
func (c *Config) DeviceOptions(l logger.Logger) []device.Option {
	d := c.Device

	opts := []device.Option{device.WithLogger(l)}
	if d.MaxHandles != 0 {
		opts = append(opts, device.WithMaxHandles(d.MaxHandles))
	}
	if d.MaxBodySize != 0 {
		opts = append(opts, device.WithMaxBodySize(d.MaxBodySize))
	}
	if d.ReadWait != 0 {
		opts = append(opts, device.WithReadWait(d.ReadWait))
	}
	if d.IdleTimeout != 0 {
		opts = append(opts, device.WithIdleTimeout(d.IdleTimeout))
	}

	return opts
}

func isWebSocketURL(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://")
}
