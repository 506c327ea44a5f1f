package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/telegraph-dev/telegraph/pkg/protocol"
)

// ConnConfig holds configuration for individual connections.
type ConnConfig struct {
	// Timeouts

	// HandshakeTimeout bounds reading the upgrade request and writing the
	// upgrade response on raw TCP streams. Zero disables it.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// ReadTimeout is the maximum time to wait for the next frame.
	// Zero leaves idle detection to the transport.
	// Default: 0.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a packet.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// Limits

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Larger messages end the connection with a transport error.
	// Default: 1MB.
	MaxMessageSize int64

	// Behavior

	// StrictControlFrames delivers ping and pong frames to the driver, which
	// rejects them as unexpected messages. When false the WebSocket layer
	// answers pings itself.
	// Default: false.
	StrictControlFrames bool

	// HandlerErrors decides what a handler error does to the connection.
	// Default: HandlerErrorsLog.
	HandlerErrors HandlerErrorPolicy
}

// DefaultConnConfig returns a ConnConfig with sensible defaults.
func DefaultConnConfig() *ConnConfig {
	return &ConnConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      0,
		WriteTimeout:     10 * time.Second,
		MaxMessageSize:   protocol.DefaultMaxPacketSize,
		HandlerErrors:    HandlerErrorsLog,
	}
}

// Clone returns a copy of the ConnConfig.
func (c *ConnConfig) Clone() *ConnConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ServerConfig holds configuration for the WebSocket server.
type ServerConfig struct {
	// Address is the address ListenAndServe binds to.
	// Default: ":28015".
	Address string

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// EnableCompression negotiates permessage-deflate with clients that offer it.
	// Default: false.
	EnableCompression bool

	// ConnConfig is the configuration for individual connections.
	// Default: DefaultConnConfig().
	ConnConfig *ConnConfig
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":28015",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     SameOriginCheck,
		ConnConfig:      DefaultConnConfig(),
	}
}

// SameOriginCheck accepts requests without an Origin header and requests whose
// Origin host matches the request host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.ConnConfig = c.ConnConfig.Clone()
	return &clone
}

// WithAddress sets the listen address and returns the config for chaining.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithConnConfig sets the connection configuration and returns the config for chaining.
func (c *ServerConfig) WithConnConfig(cc *ConnConfig) *ServerConfig {
	c.ConnConfig = cc
	return c
}

// fillDefaults sets every unset field from DefaultServerConfig.
func (c *ServerConfig) fillDefaults() {
	defaults := DefaultServerConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
	if c.ConnConfig == nil {
		c.ConnConfig = defaults.ConnConfig
		return
	}
	if c.ConnConfig.WriteTimeout == 0 {
		c.ConnConfig.WriteTimeout = defaults.ConnConfig.WriteTimeout
	}
	c.ConnConfig.MaxMessageSize = protocol.ClampPacketSize(c.ConnConfig.MaxMessageSize)
}

// Validate reports configuration values that cannot work.
func (c *ServerConfig) Validate() error {
	var errs []error
	if c.ReadBufferSize < 0 {
		errs = append(errs, fmt.Errorf("ReadBufferSize must not be negative, got %d", c.ReadBufferSize))
	}
	if c.WriteBufferSize < 0 {
		errs = append(errs, fmt.Errorf("WriteBufferSize must not be negative, got %d", c.WriteBufferSize))
	}
	if cc := c.ConnConfig; cc != nil {
		if cc.HandshakeTimeout < 0 {
			errs = append(errs, fmt.Errorf("HandshakeTimeout must not be negative, got %s", cc.HandshakeTimeout))
		}
		if cc.ReadTimeout < 0 {
			errs = append(errs, fmt.Errorf("ReadTimeout must not be negative, got %s", cc.ReadTimeout))
		}
		if cc.WriteTimeout < 0 {
			errs = append(errs, fmt.Errorf("WriteTimeout must not be negative, got %s", cc.WriteTimeout))
		}
		if cc.HandlerErrors > HandlerErrorsClose {
			errs = append(errs, fmt.Errorf("unknown HandlerErrors policy %s", cc.HandlerErrors))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("server: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
