// Package lines provides a Source that reads a line-oriented file, optionally
// following it as it grows (logs, serial device captures, FIFOs).
package lines

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nxadm/tail"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the source
const DriverName = "lines"

// Config is the decoded configuration
type Config struct {
	Path      string        `mapstructure:"path"`
	Follow    bool          `mapstructure:"follow"`
	Poll      bool          `mapstructure:"poll"`
	FromStart bool          `mapstructure:"from_start"`
	Timeout   time.Duration `mapstructure:"timeout"`
	ParseJSON bool          `mapstructure:"parse_json"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "required": ["path"],
  "properties": {
    "path": {"type": "string", "minLength": 1},
    "follow": {"type": "boolean"},
    "poll": {"type": "boolean"},
    "from_start": {"type": "boolean"},
    "timeout": {"type": ["string", "number"]},
    "parse_json": {"type": "boolean"}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"path":       "",
		"follow":     false,
		"poll":       false,
		"from_start": true,
		"timeout":    "100ms",
		"parse_json": true,
	}
}

// Source emits one line per GetOutput.
//
// The file is opened on the first GetOutput. Without follow the end of the file
// is reported as Retry for good; with follow a tail that stops is Critical.
type Source struct {
	plugin.Base
	cfg Config

	handle *tail.Tail
	eof    bool
	count  int
}

// New creates an unconfigured source
func New() plugin.Source[params.Params] {
	s := &Source{}
	s.Init(DriverName)
	return s
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewSourceDriver(DriverName,
		"reads lines from a file, optionally following it", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults. Changing the path reopens the file on
// the next GetOutput.
func (s *Source) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 100 * time.Millisecond
	}
	if cfg.Path == "" {
		s.SetError("path is required")
	}
	if cfg != s.cfg {
		s.stop()
		s.eof = false
	}
	s.cfg = cfg
	s.SetInfo("path", cfg.Path)
	s.SetInfo("follow", strconv.FormatBool(cfg.Follow))
	s.MarkReady()
}

func (s *Source) open() error {
	if s.cfg.Path == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "lines", "open", "path is required")
	}
	handle, err := tail.TailFile(s.cfg.Path, tail.Config{
		Follow:    s.cfg.Follow,
		ReOpen:    s.cfg.Follow,
		MustExist: true,
		Poll:      s.cfg.Poll,
		Location:  seekInfo(s.cfg.Path, s.cfg.FromStart),
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return errors.WrapFatal(err, "lines", "open", "tail "+s.cfg.Path)
	}
	s.handle = handle
	return nil
}

// seekInfo positions a regular file at its start or end. Devices and FIFOs
// cannot seek and are read from wherever the stream is.
func seekInfo(path string, fromStart bool) *tail.SeekInfo {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	whence := io.SeekEnd
	if fromStart {
		whence = io.SeekStart
	}
	return &tail.SeekInfo{Whence: whence}
}

// GetOutput waits up to the timeout for the next line
func (s *Source) GetOutput(ctx context.Context, out *params.Params, _ *plugin.Blob) plugin.ReturnType {
	*out = nil
	if s.eof {
		return plugin.Retry
	}
	if s.handle == nil {
		if err := s.open(); err != nil {
			return s.Fail(err)
		}
	}

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return plugin.Retry
	case <-timer.C:
		return plugin.Retry
	case line, ok := <-s.handle.Lines:
		if !ok {
			return s.closed()
		}
		if line.Err != nil {
			s.SetErrorf("read %s: %v", s.cfg.Path, line.Err)
			return plugin.Error
		}
		return s.emit(strings.TrimRight(line.Text, "\r"), out)
	}
}

func (s *Source) closed() plugin.ReturnType {
	err := s.handle.Err()
	s.stop()
	if !s.cfg.Follow {
		s.eof = true
		s.SetInfo("eof", "true")
		return plugin.Retry
	}
	if err == nil {
		err = errors.ErrConnectionLost
	}
	return s.Fail(errors.WrapFatal(err, "lines", "GetOutput", "tail "+s.cfg.Path+" stopped"))
}

func (s *Source) emit(text string, out *params.Params) plugin.ReturnType {
	s.count++
	s.SetInfo("lines", strconv.Itoa(s.count))
	if !s.cfg.ParseJSON {
		*out = params.Params{"line": text}
		return plugin.Success
	}
	doc, err := params.FromJSON([]byte(text))
	if err != nil {
		*out = params.Params{"line": text}
		s.SetErrorf("line %d is not a JSON object: %v", s.count, err)
		return plugin.Warning
	}
	*out = doc
	return plugin.Success
}

func (s *Source) stop() {
	if s.handle == nil {
		return
	}
	_ = s.handle.Stop()
	s.handle.Cleanup()
	s.handle = nil
}

// Close stops reading the file
func (s *Source) Close() error {
	s.stop()
	return nil
}
