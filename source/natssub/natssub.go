// Package natssub provides a Source fed by a NATS subscription.
//
// Messages arrive on the client's callback goroutine and wait in a bounded
// buffer that drops the oldest message when full. GetOutput takes one message
// per call and records its subject in the _topic field of the output.
package natssub

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/natsclient"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/buffer"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the source
const DriverName = "nats"

// Subscriber is the part of natsclient.Client the source needs
type Subscriber interface {
	Subscribe(subject, queue string, handler natsclient.MessageHandler) (natsclient.Subscription, error)
	Closed() bool
	Close(ctx context.Context) error
}

// newClient builds the connection used when no client is shared
var newClient = natsclient.NewClient

// Config is the decoded configuration
type Config struct {
	natsclient.ConnConfig `mapstructure:",squash"`

	URL        string        `mapstructure:"url"`
	Subject    string        `mapstructure:"subject"`
	QueueGroup string        `mapstructure:"queue_group"`
	Buffer     int           `mapstructure:"buffer"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "required": ["subject"],
  "properties": {
    "url": {"type": "string"},
    ` + natsclient.ConnSchema + `,
    "subject": {"type": "string", "minLength": 1},
    "queue_group": {"type": "string"},
    "buffer": {"type": "integer", "minimum": 1},
    "timeout": {"type": ["string", "number"]}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"url":         "nats://localhost:4222",
		"subject":     "",
		"queue_group": "",
		"buffer":      100,
		"timeout":     "100ms",
	}
}

type message struct {
	subject string
	data    []byte
}

// Source emits the JSON messages received on a subject
type Source struct {
	plugin.Base
	cfg Config

	shared Subscriber
	client Subscriber
	owned  bool
	sub    natsclient.Subscription
	queue  buffer.Buffer[message]

	received int
	dropped  atomic.Int64
}

// New creates an unconfigured source that connects to the configured url
func New() plugin.Source[params.Params] {
	return NewWithClient(nil)()
}

// NewWithClient returns a factory whose instances subscribe through client
// instead of dialing url. The client is shared and never closed by the source.
func NewWithClient(client Subscriber) func() plugin.Source[params.Params] {
	return func() plugin.Source[params.Params] {
		s := &Source{shared: client}
		s.Init(DriverName)
		return s
	}
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewSourceDriver(DriverName,
		"receives JSON messages from a NATS subject", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults. A new subject or url takes effect on
// the next GetOutput.
func (s *Source) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 100 * time.Millisecond
	}
	if cfg.Subject == "" {
		s.SetError("subject is required")
	}
	if cfg != s.cfg {
		s.disconnect()
	}
	s.cfg = cfg
	s.SetInfo("subject", cfg.Subject)
	s.MarkReady()
}

func (s *Source) connect(ctx context.Context) error {
	if s.cfg.Subject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "natssub", "connect", "subject is required")
	}

	queue, err := buffer.NewCircularBuffer(s.cfg.Buffer,
		buffer.WithOverflowPolicy[message](buffer.DropOldest),
		buffer.WithDropCallback[message](func(message) { s.dropped.Add(1) }))
	if err != nil {
		return errors.WrapInvalid(err, "natssub", "connect", "allocate buffer")
	}

	client := s.shared
	if client == nil {
		c, err := newClient(s.cfg.URL, s.cfg.Options("mads-"+DriverName)...)
		if err != nil {
			return err
		}
		if err := c.Connect(ctx); err != nil {
			_ = c.Close(ctx)
			return err
		}
		client = c
	}

	handler := func(subject string, data []byte) {
		_ = queue.Write(message{subject: subject, data: data})
	}
	sub, err := client.Subscribe(s.cfg.Subject, s.cfg.QueueGroup, handler)
	if err != nil {
		if client != s.shared {
			_ = client.Close(ctx)
		}
		return err
	}

	s.client = client
	s.owned = client != s.shared
	s.sub = sub
	s.queue = queue
	return nil
}

// GetOutput waits up to the timeout for the next message. An empty buffer is
// Retry; a message that is not a JSON object is Error.
func (s *Source) GetOutput(ctx context.Context, out *params.Params, _ *plugin.Blob) plugin.ReturnType {
	*out = nil
	if s.client == nil {
		if err := s.connect(ctx); err != nil {
			return s.Fail(err)
		}
	}

	if s.queue.IsEmpty() && s.client.Closed() {
		return s.Fail(errors.WrapFatal(errors.ErrConnectionLost, "natssub", "GetOutput", "connection closed"))
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	msg, err := s.queue.ReadContext(waitCtx)
	if err != nil {
		return plugin.Retry
	}

	s.received++
	s.SetInfo("received", strconv.Itoa(s.received))
	s.SetInfo("dropped", strconv.FormatInt(s.dropped.Load(), 10))

	doc, err := params.FromJSON(msg.data)
	if err != nil {
		s.SetErrorf("message on %s is not a JSON object: %v", msg.subject, err)
		return plugin.Error
	}
	doc[params.TopicKey] = msg.subject
	*out = doc
	return plugin.Success
}

// Buffered returns the number of messages waiting
func (s *Source) Buffered() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.Size()
}

func (s *Source) disconnect() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.SetErrorf("unsubscribe from %s: %v", s.cfg.Subject, err)
		}
		s.sub = nil
	}
	if s.queue != nil {
		_ = s.queue.Close()
		s.queue = nil
	}
	if s.client != nil && s.owned {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.client.Close(ctx)
	}
	s.client = nil
	s.owned = false
}

// Close unsubscribes and releases an owned connection
func (s *Source) Close() error {
	s.disconnect()
	return nil
}
