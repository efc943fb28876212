// Package websocket provides a Sink that streams documents to a WebSocket server.
//
// Each document is sent as a text message wrapped in an Envelope. The sink
// dials lazily and redials on the call after a failed write or a dropped
// connection. A server that closes the connection normally ends the instance.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/tlsutil"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the sink
const DriverName = "websocket"

// Envelope wraps every document sent
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	Topic     string          `json:"topic,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Config is the decoded configuration
type Config struct {
	URL          string               `mapstructure:"url"`
	WriteTimeout time.Duration        `mapstructure:"write_timeout"`
	Headers      map[string]string    `mapstructure:"headers"`
	Envelope     bool                 `mapstructure:"envelope"`
	TLS          tlsutil.ClientConfig `mapstructure:"tls"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "url": {"type": "string", "pattern": "^wss?://"},
    "write_timeout": {"type": ["string", "number"]},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "envelope": {"type": "boolean"},
    "tls": {"type": "object"}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"url":           "ws://localhost:8081/ws",
		"write_timeout": "10s",
		"headers":       map[string]any{},
		"envelope":      true,
	}
}

// connection is one dialed socket and the state its read loop reports
type connection struct {
	ws         *websocket.Conn
	broken     atomic.Bool
	peerClosed atomic.Bool
	done       chan struct{}
}

// readLoop consumes incoming frames so that control frames are handled, and
// records how the connection ended
func (c *connection) readLoop() {
	defer close(c.done)
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.peerClosed.Store(true)
			}
			c.broken.Store(true)
			return
		}
	}
}

// Sink sends one message per document
type Sink struct {
	plugin.Base
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	conn  *connection
	sent  int
	dials int
}

// New creates an unconfigured sink
func New() plugin.Sink[params.Params] {
	s := &Sink{logger: slog.Default().With("component", "sink", "driver", DriverName)}
	s.Init(DriverName)
	return s
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewSinkDriver(DriverName,
		"streams documents to a WebSocket server", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults. A new configuration redials on the
// next write.
func (s *Sink) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
		eff["write_timeout"] = cfg.WriteTimeout.String()
	}
	s.disconnect()
	s.dialer = nil
	if cfg.URL == "" {
		s.SetError(errors.WrapInvalid(errors.ErrMissingConfig, "Sink", "SetParams", "url is required").Error())
		return
	}
	tlsConfig, err := tlsutil.ClientOrNil(cfg.TLS)
	if err != nil {
		s.SetErrorf("tls: %v", err)
		return
	}

	s.cfg = cfg
	s.dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
		TLSClientConfig:  tlsConfig,
	}
	s.SetInfo("url", cfg.URL)
	s.MarkReady()
}

func (s *Sink) connect(ctx context.Context) error {
	if s.dialer == nil {
		return errors.WrapInvalid(errors.ErrNotConfigured, "Sink", "connect", "check configuration")
	}
	header := http.Header{}
	for k, v := range s.cfg.Headers {
		header.Set(k, v)
	}
	ws, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return errors.WrapTransient(err, "Sink", "connect", "dial "+s.cfg.URL)
	}

	s.conn = &connection{ws: ws, done: make(chan struct{})}
	go s.conn.readLoop()
	s.dials++
	s.SetInfo("dials", strconv.Itoa(s.dials))
	s.logger.Debug("WebSocket connected", "url", s.cfg.URL)
	return nil
}

// Connected reports whether a live connection is open
func (s *Sink) Connected() bool {
	return s.conn != nil && !s.conn.broken.Load()
}

// PeerClosed reports whether the server closed the connection normally
func (s *Sink) PeerClosed() bool {
	return s.conn != nil && s.conn.peerClosed.Load()
}

// LoadData sends in. A failed write is Error and the next call redials; a
// normal close by the server is Critical.
func (s *Sink) LoadData(ctx context.Context, in params.Params, topic string) plugin.ReturnType {
	if s.PeerClosed() {
		return s.Fail(errors.WrapFatal(errors.ErrConnectionLost, "Sink", "LoadData", "connection closed by peer"))
	}
	if s.conn != nil && s.conn.broken.Load() {
		s.disconnect()
	}
	if s.conn == nil {
		if err := s.connect(ctx); err != nil {
			return s.Fail(err)
		}
	}

	data, err := s.encode(in, topic)
	if err != nil {
		s.SetErrorf("encode: %v", err)
		return plugin.Error
	}

	_ = s.conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		if s.PeerClosed() {
			return s.Fail(errors.WrapFatal(err, "Sink", "LoadData", "write after close by peer"))
		}
		s.SetError(errors.Wrap(err, "Sink", "LoadData", "write").Error())
		s.disconnect()
		return plugin.Error
	}
	s.sent++
	s.SetInfo("sent", strconv.Itoa(s.sent))
	return plugin.Success
}

func (s *Sink) encode(in params.Params, topic string) ([]byte, error) {
	payload, err := json.Marshal(map[string]any(in))
	if err != nil || !s.cfg.Envelope {
		return payload, err
	}
	return json.Marshal(Envelope{
		Type:      "data",
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Topic:     topic,
		Payload:   payload,
	})
}

func (s *Sink) disconnect() {
	if s.conn == nil {
		return
	}
	c := s.conn
	s.conn = nil
	if !c.broken.Load() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	_ = c.ws.Close()
	<-c.done
}

// Close sends a close frame and releases the connection
func (s *Sink) Close() error {
	s.disconnect()
	s.logger.Debug("WebSocket sink closed", "sent", s.sent, "dials", s.dials)
	return nil
}
