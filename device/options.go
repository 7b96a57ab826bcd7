package device

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/arloliu/go-fujibus/logger"
)

// Defaults and limits for device options.
const (
	DefaultMaxHandles  = 8
	MaxMaxHandles      = 1024
	DefaultMaxBodySize = 1 << 20
	MaxMaxBodySize     = 64 << 20
	DefaultReadWait    = 50 * time.Millisecond
	MaxReadWait        = 5 * time.Second
	DefaultDialTimeout = 10 * time.Second
	DefaultHTTPTimeout = 30 * time.Second
)

type config struct {
	logger      logger.Logger
	maxHandles  int
	maxBodySize int
	readWait    time.Duration
	dialTimeout time.Duration
	idleTimeout time.Duration
	httpClient  *http.Client
	tlsConfig   *tls.Config
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		logger:      logger.GetLogger(),
		maxHandles:  DefaultMaxHandles,
		maxBodySize: DefaultMaxBodySize,
		readWait:    DefaultReadWait,
		dialTimeout: DefaultDialTimeout,
		httpClient:  &http.Client{Timeout: DefaultHTTPTimeout},
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option configures a Device.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithLogger sets the device logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("device: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithMaxHandles sets how many sessions may be open at once. Range: 1–1024.
func WithMaxHandles(n int) Option {
	return optFunc(func(cfg *config) error {
		if n < 1 || n > MaxMaxHandles {
			return fmt.Errorf("device: max handles %d out of range [1, %d]", n, MaxMaxHandles)
		}
		cfg.maxHandles = n

		return nil
	})
}

// WithMaxBodySize limits the request and response bodies buffered per HTTP
// session. Larger responses are cut and reported as truncated.
func WithMaxBodySize(n int) Option {
	return optFunc(func(cfg *config) error {
		if n < 1 || n > MaxMaxBodySize {
			return fmt.Errorf("device: max body size %d out of range [1, %d]", n, MaxMaxBodySize)
		}
		cfg.maxBodySize = n

		return nil
	})
}

// WithReadWait sets how long a TCP read waits for data before answering
// StatusNotReady. Range: 0–5s.
func WithReadWait(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 || d > MaxReadWait {
			return fmt.Errorf("device: read wait %v out of range [0, %v]", d, MaxReadWait)
		}
		cfg.readWait = d

		return nil
	})
}

// WithDialTimeout bounds connecting TCP sessions.
func WithDialTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return errors.New("device: dial timeout must be positive")
		}
		cfg.dialTimeout = d

		return nil
	})
}

// WithIdleTimeout closes sessions unused for d. Zero disables reaping.
func WithIdleTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 {
			return errors.New("device: idle timeout must not be negative")
		}
		cfg.idleTimeout = d

		return nil
	})
}

// WithHTTPClient sets the client used by HTTP sessions. Its redirect policy
// is overridden per session by the FollowRedirect open flag.
func WithHTTPClient(c *http.Client) Option {
	return optFunc(func(cfg *config) error {
		if c == nil {
			return errors.New("device: http client must not be nil")
		}
		cfg.httpClient = c

		return nil
	})
}

// WithTLSConfig sets the TLS configuration for TCP sessions opened with the
// TLS flag.
func WithTLSConfig(c *tls.Config) Option {
	return optFunc(func(cfg *config) error {
		cfg.tlsConfig = c
		return nil
	})
}
