package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/logger"
)

// Default port settings, matching the reference Linux transport.
const (
	DefaultTimeout      = 5 * time.Second        // overall wait for a response frame
	DefaultPollInterval = 100 * time.Millisecond // serial read poll granularity
	DefaultSettleDelay  = 10 * time.Millisecond  // pause between request and response read
	DefaultWriteTimeout = 1 * time.Second
	DefaultRetryLimit   = 0
	DefaultBaudRate     = 115200
	DefaultMaxFrameSize = fujibus.MaxFrameSize
)

// Range limits for port settings.
const (
	MinTimeout = 10 * time.Millisecond
	MaxTimeout = 120 * time.Second

	MinPollInterval = 1 * time.Millisecond
	MaxPollInterval = 1 * time.Second

	MaxSettleDelay = 1 * time.Second

	MaxRetryLimit = 31

	MinBaudRate = 9600
	MaxBaudRate = 230400

	MinFrameSize = fujibus.HeaderSize + 2
)

// PortConfig holds the configuration shared by all port implementations.
type PortConfig struct {
	timeout      time.Duration
	pollInterval time.Duration
	settleDelay  time.Duration
	writeTimeout time.Duration
	retryLimit   int
	baudRate     int
	maxFrameSize int

	logger logger.Logger
}

// NewPortConfig creates a port configuration with defaults overridden by opts.
func NewPortConfig(opts ...PortOption) (*PortConfig, error) {
	cfg := &PortConfig{
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		settleDelay:  DefaultSettleDelay,
		writeTimeout: DefaultWriteTimeout,
		retryLimit:   DefaultRetryLimit,
		baudRate:     DefaultBaudRate,
		maxFrameSize: DefaultMaxFrameSize,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// Timeout returns the maximum wait for a response frame.
func (cfg *PortConfig) Timeout() time.Duration { return cfg.timeout }

// PollInterval returns the serial read poll interval.
func (cfg *PortConfig) PollInterval() time.Duration { return cfg.pollInterval }

// SettleDelay returns the pause between sending a request and reading the response.
func (cfg *PortConfig) SettleDelay() time.Duration { return cfg.settleDelay }

// WriteTimeout returns the maximum time to write a request frame.
func (cfg *PortConfig) WriteTimeout() time.Duration { return cfg.writeTimeout }

// RetryLimit returns how many times a timed-out request is re-sent.
func (cfg *PortConfig) RetryLimit() int { return cfg.retryLimit }

// BaudRate returns the serial line speed.
func (cfg *PortConfig) BaudRate() int { return cfg.baudRate }

// MaxFrameSize returns the largest accepted response frame.
func (cfg *PortConfig) MaxFrameSize() int { return cfg.maxFrameSize }

// GetLogger returns the configured logger.
func (cfg *PortConfig) GetLogger() logger.Logger { return cfg.logger }

// --- PortOption ---

// PortOption is a functional option for configuring a PortConfig.
type PortOption interface {
	apply(*PortConfig) error
}

type portOptFunc func(*PortConfig) error

func (f portOptFunc) apply(cfg *PortConfig) error { return f(cfg) }

// WithTimeout sets the maximum wait for a response frame. Range: 10ms–120s.
func WithTimeout(d time.Duration) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("transport: timeout %v out of range [%v, %v]", d, MinTimeout, MaxTimeout)
		}
		cfg.timeout = d

		return nil
	})
}

// WithPollInterval sets the serial read poll interval. Range: 1ms–1s.
func WithPollInterval(d time.Duration) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("transport: poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithSettleDelay sets the pause between request and response. Range: 0–1s.
func WithSettleDelay(d time.Duration) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if d < 0 || d > MaxSettleDelay {
			return fmt.Errorf("transport: settle delay %v out of range [0, %v]", d, MaxSettleDelay)
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithWriteTimeout sets the maximum time to write a request frame.
func WithWriteTimeout(d time.Duration) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if d <= 0 {
			return errors.New("transport: write timeout must be positive")
		}
		cfg.writeTimeout = d

		return nil
	})
}

// WithRetryLimit sets how many times a timed-out request is re-sent. Range: 0–31.
func WithRetryLimit(n int) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("transport: retry limit %d out of range [0, %d]", n, MaxRetryLimit)
		}
		cfg.retryLimit = n

		return nil
	})
}

// WithBaudRate sets the serial line speed. Range: 9600–230400.
func WithBaudRate(baud int) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if baud < MinBaudRate || baud > MaxBaudRate {
			return fmt.Errorf("transport: baud rate %d out of range [%d, %d]", baud, MinBaudRate, MaxBaudRate)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithMaxFrameSize sets the largest accepted response frame.
func WithMaxFrameSize(n int) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if n < MinFrameSize || n > fujibus.MaxFrameSize {
			return fmt.Errorf("transport: max frame size %d out of range [%d, %d]", n, MinFrameSize, fujibus.MaxFrameSize)
		}
		cfg.maxFrameSize = n

		return nil
	})
}

// WithLogger sets the logger for the port.
func WithLogger(l logger.Logger) PortOption {
	return portOptFunc(func(cfg *PortConfig) error {
		if l == nil {
			return errors.New("transport: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
