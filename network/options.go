package network

import (
	"errors"

	"github.com/arloliu/go-fujibus/fujibus"
	"github.com/arloliu/go-fujibus/logger"
)

// OpenFlag selects optional behaviour of an Open call.
type OpenFlag uint8

const (
	// OpenTLS requests a TLS connection.
	OpenTLS OpenFlag = 0x01
	// OpenFollowRedirect asks the device to follow HTTP redirects.
	OpenFollowRedirect OpenFlag = 0x02
	// OpenAllowEvict permits the device to evict an idle session. No eviction
	// policy exists yet: a full table still yields StatusNoHandles.
	OpenAllowEvict OpenFlag = 0x08
)

// wire translates user flags to Open request flags. Bits without a user
// flag are dropped.
func (f OpenFlag) wire() fujibus.OpenFlags {
	var w fujibus.OpenFlags
	if f&OpenTLS != 0 {
		w |= fujibus.OpenTLS
	}
	if f&OpenFollowRedirect != 0 {
		w |= fujibus.OpenFollowRedirect
	}
	if f&OpenAllowEvict != 0 {
		w |= fujibus.OpenAllowEvict
	}

	return w
}

type clientConfig struct {
	logger            logger.Logger
	untrackedOverflow bool
}

// ClientOption is a functional option for configuring a Client.
type ClientOption interface {
	apply(*clientConfig) error
}

type clientOptFunc func(*clientConfig) error

func (f clientOptFunc) apply(cfg *clientConfig) error { return f(cfg) }

// WithLogger sets the logger for the client.
func WithLogger(l logger.Logger) ClientOption {
	return clientOptFunc(func(cfg *clientConfig) error {
		if l == nil {
			return errors.New("network: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithUntrackedOverflow controls what Open does when the session table is full.
//
// Disabled by default: Open fails with StatusNoHandles without contacting the
// device. When enabled, Open still exchanges with the device and returns the
// device-assigned handle without tracking it locally. Write, Read and Info
// reject untracked handles with StatusNotFound; Close still reaches the device.
func WithUntrackedOverflow(enabled bool) ClientOption {
	return clientOptFunc(func(cfg *clientConfig) error {
		cfg.untrackedOverflow = enabled
		return nil
	})
}
