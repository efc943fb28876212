// Package rest provides a Source that polls a REST endpoint and emits the JSON
// it answers with.
//
// Every GetOutput issues one GET on url with the page and size query
// parameters. The parsed body goes under "result" next to the request url and
// the HTTP status. With paginate set the page advances after every successful
// poll; with a delay the source waits between polls.
package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/timestamp"
	"github.com/pbosetti/mads-plugin/pkg/tlsutil"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the source
const DriverName = "rest"

// Config is the decoded configuration
type Config struct {
	URL      string               `mapstructure:"url"`
	Page     int                  `mapstructure:"page"`
	Size     int                  `mapstructure:"size"`
	Paginate bool                 `mapstructure:"paginate"`
	Delay    time.Duration        `mapstructure:"delay"`
	Timeout  int                  `mapstructure:"timeout"`
	Headers  map[string]string    `mapstructure:"headers"`
	TLS      tlsutil.ClientConfig `mapstructure:"tls"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if u, err := url.Parse(c.URL); err != nil || u.Host == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "invalid URL format")
	}
	if c.Page < 0 || c.Size < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "page and size cannot be negative")
	}
	return nil
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "url": {"type": "string", "pattern": "^https?://"},
    "page": {"type": "integer", "minimum": 0},
    "size": {"type": "integer", "minimum": 0},
    "paginate": {"type": "boolean"},
    "delay": {"type": ["string", "number"]},
    "timeout": {"type": "integer", "minimum": 1, "maximum": 300},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "tls": {"type": "object"}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"url":      "http://localhost:5443/",
		"page":     0,
		"size":     20,
		"paginate": false,
		"delay":    "0s",
		"timeout":  5,
		"headers":  map[string]any{},
	}
}

// Source polls the endpoint once per GetOutput
type Source struct {
	plugin.Base
	cfg    Config
	client *resty.Client
	clock  timestamp.Clock
	logger *slog.Logger

	page   int
	next   time.Time
	polled int
}

// New creates an unconfigured source
func New() plugin.Source[params.Params] {
	return NewWithClock(timestamp.System)()
}

// NewWithClock returns a factory whose instances pace their polls on clock
func NewWithClock(clock timestamp.Clock) func() plugin.Source[params.Params] {
	return func() plugin.Source[params.Params] {
		s := &Source{
			clock:  clock,
			logger: slog.Default().With("component", "source", "driver", DriverName),
		}
		s.Init(DriverName)
		return s
	}
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewSourceDriver(DriverName,
		"polls a REST endpoint and emits its JSON answer", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults, rebuilds the HTTP client and rewinds
// the page counter
func (s *Source) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5
		eff["timeout"] = cfg.Timeout
	}
	if cfg.Delay < 0 {
		s.SetErrorf("negative delay %s, not pacing", cfg.Delay)
		cfg.Delay = 0
		eff["delay"] = "0s"
	}
	if err := cfg.Validate(); err != nil {
		s.SetError(err.Error())
		s.client = nil
		return
	}
	tlsConfig, err := tlsutil.ClientOrNil(cfg.TLS)
	if err != nil {
		s.SetErrorf("tls: %v", err)
		s.client = nil
		return
	}

	client := resty.New().
		SetTimeout(time.Duration(cfg.Timeout)*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "mads/"+DriverName).
		SetHeaders(cfg.Headers).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(3))
	if tlsConfig != nil {
		client.SetTLSClientConfig(tlsConfig)
	}

	s.cfg = cfg
	s.client = client
	s.page = cfg.Page
	s.next = time.Time{}
	s.SetInfo("url", cfg.URL)
	s.SetInfo("page", strconv.Itoa(s.page))
	s.MarkReady()
}

// RequestURL returns the url of the next poll
func (s *Source) RequestURL() string {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return s.cfg.URL
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(s.page))
	q.Set("size", strconv.Itoa(s.cfg.Size))
	u.RawQuery = q.Encode()
	return u.String()
}

// GetOutput polls the endpoint. A status other than 200 or a transport failure
// is Error; a body that is not JSON is Warning with the raw text under "body".
func (s *Source) GetOutput(ctx context.Context, out *params.Params, _ *plugin.Blob) plugin.ReturnType {
	*out = nil
	if s.client == nil {
		s.SetError(errors.WrapInvalid(errors.ErrNotConfigured, "Source", "GetOutput", "check configuration").Error())
		return plugin.Error
	}
	if s.cfg.Delay > 0 {
		now := s.clock.Now()
		if s.next.IsZero() {
			s.next = now
		}
		if err := s.clock.Sleep(ctx, s.next.Sub(now)); err != nil {
			s.SetError("interrupted while waiting for the next poll")
			return plugin.Retry
		}
		s.next = s.next.Add(s.cfg.Delay)
	}

	target := s.RequestURL()
	resp, err := s.client.R().SetContext(ctx).Get(target)
	if err != nil {
		s.SetError(errors.WrapTransient(err, "Source", "GetOutput", "get "+target).Error())
		return plugin.Error
	}
	s.polled++
	s.SetInfo("polled", strconv.Itoa(s.polled))

	if code := resp.StatusCode(); code != http.StatusOK {
		s.SetErrorf("HTTP %d from %s", code, target)
		s.logger.Debug("Poll failed", "status", code, "url", target)
		return plugin.Error
	}

	doc := params.Params{
		"url":             target,
		"status":          resp.StatusCode(),
		params.AgentIDKey: s.AgentID(),
	}
	var result any
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		doc["body"] = string(resp.Body())
		*out = doc
		s.SetErrorf("response from %s is not JSON: %v", target, err)
		return plugin.Warning
	}
	doc["result"] = result
	*out = doc

	if s.cfg.Paginate {
		s.page++
		s.SetInfo("page", strconv.Itoa(s.page))
	}
	return plugin.Success
}

// Close releases idle connections
func (s *Source) Close() error {
	if s.client != nil {
		s.client.GetClient().CloseIdleConnections()
	}
	return nil
}
