package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pbosetti/mads-plugin/metric"
)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithMaxReconnects sets the maximum number of reconnection attempts (-1 for infinite)
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("negative reconnect wait %v", d)
		}
		c.reconnectWait = d
		return nil
	}
}

// WithPingInterval sets the ping interval for connection health checks
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.pingInterval = d
		return nil
	}
}

// WithTimeout sets the connection timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout sets the timeout for draining on close
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return nil
	}
}

// WithLogger sets the logger; nil keeps slog.Default()
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithName sets the client name reported to the server
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithCredentials sets username and password for authentication
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets a token for authentication
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithCircuitBreakerThreshold sets the number of failures before opening circuit
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		if threshold < 1 {
			threshold = 5
		}
		c.circuitThreshold = threshold
		return nil
	}
}

// WithMaxBackoff sets the maximum backoff duration for circuit breaker
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < time.Second {
			d = time.Minute
		}
		c.maxBackoff = d
		return nil
	}
}

// WithDisconnectCallback sets a callback for disconnection events
func WithDisconnectCallback(fn func(error)) ClientOption {
	return func(c *Client) error {
		c.onDisconnect = fn
		return nil
	}
}

// WithReconnectCallback sets a callback for reconnection events
func WithReconnectCallback(fn func()) ClientOption {
	return func(c *Client) error {
		c.onReconnect = fn
		return nil
	}
}

// WithClosedCallback sets a callback run once the connection is closed for good
func WithClosedCallback(fn func()) ClientOption {
	return func(c *Client) error {
		c.onClosed = fn
		return nil
	}
}

// WithMetrics reports connection status and reconnects to the registry's core metrics
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		c.metrics = registry.CoreMetrics()
		return nil
	}
}

// ConnConfig holds the connection parameters shared by the NATS drivers. It is
// squashed into their configuration, so the keys sit beside url.
type ConnConfig struct {
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	Token        string        `mapstructure:"token"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

// ConnSchema is the JSON schema fragment of the ConnConfig keys
const ConnSchema = `"user": {"type": "string"},
    "password": {"type": "string"},
    "token": {"type": "string"},
    "ping_interval": {"type": ["string", "number"]},
    "drain_timeout": {"type": ["string", "number"]}`

// Options converts the configuration, leaving zero values at the client defaults
func (c ConnConfig) Options(name string) []ClientOption {
	opts := []ClientOption{WithName(name)}
	if c.User != "" {
		opts = append(opts, WithCredentials(c.User, c.Password))
	}
	if c.Token != "" {
		opts = append(opts, WithToken(c.Token))
	}
	if c.PingInterval > 0 {
		opts = append(opts, WithPingInterval(c.PingInterval))
	}
	if c.DrainTimeout > 0 {
		opts = append(opts, WithDrainTimeout(c.DrainTimeout))
	}
	return opts
}
