// Package natspub provides a Sink that publishes documents to NATS.
//
// The topic of each document selects the subject, with slashes turned into
// dots, unless fixed_subject is set. Documents without a topic go to subject.
package natspub

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/natsclient"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the sink
const DriverName = "nats"

// Publisher is the part of natsclient.Client the sink needs
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Closed() bool
	Close(ctx context.Context) error
}

// newClient builds the connection used when no client is shared
var newClient = natsclient.NewClient

// Config is the decoded configuration
type Config struct {
	natsclient.ConnConfig `mapstructure:",squash"`

	URL          string `mapstructure:"url"`
	Subject      string `mapstructure:"subject"`
	FixedSubject bool   `mapstructure:"fixed_subject"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    ` + natsclient.ConnSchema + `,
    "subject": {"type": "string", "minLength": 1},
    "fixed_subject": {"type": "boolean"}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"url":           "nats://localhost:4222",
		"subject":       "mads.out",
		"fixed_subject": false,
	}
}

// Sink publishes each document as a JSON message
type Sink struct {
	plugin.Base
	cfg Config

	shared Publisher
	client Publisher

	published int
}

// New creates an unconfigured sink that connects to the configured url
func New() plugin.Sink[params.Params] {
	return NewWithClient(nil)()
}

// NewWithClient returns a factory whose instances publish through client
// instead of dialing url. The client is shared and never closed by the sink.
func NewWithClient(client Publisher) func() plugin.Sink[params.Params] {
	return func() plugin.Sink[params.Params] {
		s := &Sink{shared: client}
		s.Init(DriverName)
		return s
	}
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewSinkDriver(DriverName,
		"publishes documents as JSON messages on NATS subjects", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults. A new url reconnects on the next write.
func (s *Sink) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
	}
	if cfg.Subject == "" {
		s.SetError("subject is required, using mads.out")
		cfg.Subject = "mads.out"
		eff["subject"] = cfg.Subject
	}
	if cfg.URL != s.cfg.URL {
		s.disconnect()
	}
	s.cfg = cfg
	s.SetInfo("subject", cfg.Subject)
	s.MarkReady()
}

// Subject returns the subject a document with topic is published to
func (s *Sink) Subject(topic string) string {
	if s.cfg.FixedSubject || topic == "" {
		return s.cfg.Subject
	}
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (s *Sink) connect(ctx context.Context) error {
	if s.shared != nil {
		s.client = s.shared
		return nil
	}
	c, err := newClient(s.cfg.URL, s.cfg.Options("mads-"+DriverName+"-sink")...)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Close(ctx)
		return err
	}
	s.client = c
	return nil
}

// LoadData publishes in. A closed connection is Critical, any other publish
// failure Error.
func (s *Sink) LoadData(ctx context.Context, in params.Params, topic string) plugin.ReturnType {
	if s.client == nil {
		if err := s.connect(ctx); err != nil {
			return s.Fail(err)
		}
	}
	if s.client.Closed() {
		return s.Fail(errors.WrapFatal(errors.ErrConnectionLost, "natspub", "LoadData", "connection closed"))
	}

	data, err := json.Marshal(map[string]any(in))
	if err != nil {
		s.SetErrorf("encode: %v", err)
		return plugin.Error
	}
	subject := s.Subject(topic)
	if err := s.client.Publish(ctx, subject, data); err != nil {
		s.SetError(errors.Wrap(err, "natspub", "LoadData", "publish to "+subject).Error())
		return plugin.Error
	}
	s.published++
	s.SetInfo("published", strconv.Itoa(s.published))
	return plugin.Success
}

func (s *Sink) disconnect() {
	if s.client != nil && s.client != s.shared {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.client.Close(ctx)
	}
	s.client = nil
}

// Close releases an owned connection
func (s *Sink) Close() error {
	s.disconnect()
	return nil
}
