// Package httppost provides a Sink that posts every document to an HTTP endpoint,
// acting as a gateway from the pipeline to a REST service.
package httppost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/tlsutil"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the sink
const DriverName = "httppost"

// TopicHeader carries the topic of the document, when there is one
const TopicHeader = "X-Mads-Topic"

// Config holds configuration for the HTTP POST sink
type Config struct {
	URL         string               `mapstructure:"url"`
	Headers     map[string]string    `mapstructure:"headers"`
	Timeout     int                  `mapstructure:"timeout"`
	RetryCount  int                  `mapstructure:"retry_count"`
	ContentType string               `mapstructure:"content_type"`
	RateLimit   float64              `mapstructure:"rate_limit"` // requests per second, zero is unlimited
	Burst       int                  `mapstructure:"burst"`
	TLS         tlsutil.ClientConfig `mapstructure:"tls"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "url is required")
	}
	if u, err := url.Parse(c.URL); err != nil || u.Host == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "invalid URL format")
	}
	if c.Timeout < 0 || c.Timeout > 300 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeout must be between 0 and 300 seconds")
	}
	if c.RetryCount < 0 || c.RetryCount > 10 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"retry_count must be between 0 and 10")
	}
	if c.RateLimit < 0 || c.Burst < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"rate_limit and burst cannot be negative")
	}
	return nil
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "url": {"type": "string"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "timeout": {"type": "integer", "minimum": 0, "maximum": 300},
    "retry_count": {"type": "integer", "minimum": 0, "maximum": 10},
    "content_type": {"type": "string"},
    "rate_limit": {"type": "number", "minimum": 0},
    "burst": {"type": "integer", "minimum": 0},
    "tls": {"type": "object"}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"url":          "http://localhost:8080/webhook",
		"headers":      map[string]any{},
		"timeout":      30,
		"retry_count":  3,
		"content_type": "application/json",
		"rate_limit":   0,
		"burst":        1,
	}
}

// Sink posts one request per document. Server errors and transport failures
// are retried up to retry_count times.
type Sink struct {
	plugin.Base
	cfg     Config
	client  *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	retryWait time.Duration
	sent      int
	rejected  int
}

// New creates an unconfigured sink
func New() plugin.Sink[params.Params] {
	return newSink(100 * time.Millisecond)
}

func newSink(retryWait time.Duration) *Sink {
	s := &Sink{
		retryWait: retryWait,
		logger:    slog.Default().With("component", "sink", "driver", DriverName),
	}
	s.Init(DriverName)
	return s
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewSinkDriver(DriverName,
		"posts documents to an HTTP endpoint", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults and rebuilds the HTTP client
func (s *Sink) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
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

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(s.retryWait).
		SetRetryMaxWaitTime(20 * s.retryWait).
		SetHeader("Content-Type", cfg.ContentType).
		SetHeaders(cfg.Headers).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= 500)
		})
	if tlsConfig != nil {
		client.SetTLSClientConfig(tlsConfig)
	}

	s.limiter = nil
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	s.cfg = cfg
	s.client = client
	s.SetInfo("url", cfg.URL)
	s.MarkReady()
}

// LoadData posts in, waiting for the rate limiter first. A 4xx answer is a
// Warning, a 5xx answer or a transport failure an Error.
func (s *Sink) LoadData(ctx context.Context, in params.Params, topic string) plugin.ReturnType {
	if s.client == nil {
		s.SetError(errors.WrapInvalid(errors.ErrNotConfigured, "Sink", "LoadData", "check configuration").Error())
		return plugin.Error
	}
	body, err := json.Marshal(map[string]any(in))
	if err != nil {
		s.SetErrorf("encode: %v", err)
		return plugin.Error
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.SetError(errors.Wrap(fmt.Errorf("%w: %v", errors.ErrRateLimited, err), "Sink", "LoadData", "rate limit wait").Error())
			return plugin.Error
		}
	}

	req := s.client.R().SetContext(ctx).SetBody(body)
	if topic != "" {
		req.SetHeader(TopicHeader, topic)
	}
	resp, err := req.Post(s.cfg.URL)
	if err != nil {
		s.SetError(errors.WrapTransient(err, "Sink", "LoadData", "post").Error())
		return plugin.Error
	}

	switch code := resp.StatusCode(); {
	case code >= 500:
		s.SetErrorf("HTTP %d: %s", code, resp.Status())
		return plugin.Error
	case code >= 400:
		s.rejected++
		s.SetInfo("rejected", strconv.Itoa(s.rejected))
		s.SetErrorf("HTTP %d: %s", code, resp.Status())
		s.logger.Debug("Request rejected", "status", code, "url", s.cfg.URL)
		return plugin.Warning
	}
	s.sent++
	s.SetInfo("sent", strconv.Itoa(s.sent))
	return plugin.Success
}

// Close releases idle connections
func (s *Sink) Close() error {
	if s.client != nil {
		s.client.GetClient().CloseIdleConnections()
	}
	s.logger.Debug("HTTP sink closed", "sent", s.sent, "rejected", s.rejected)
	return nil
}
