// Package frames provides a Source that replays a directory of image files,
// one frame per GetOutput. The structured output describes the frame; the
// encoded image travels in the blob.
package frames

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the source
const DriverName = "frames"

// Config is the decoded configuration
type Config struct {
	Dir     string `mapstructure:"dir"`
	Pattern string `mapstructure:"pattern"`
	Loop    bool   `mapstructure:"loop"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "required": ["dir"],
  "properties": {
    "dir": {"type": "string", "minLength": 1},
    "pattern": {"type": "string", "minLength": 1},
    "loop": {"type": "boolean"}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"dir":     "",
		"pattern": "*",
		"loop":    false,
	}
}

// Source emits {file, format, width, height, size, seq} with the raw file in the blob
type Source struct {
	plugin.Base
	cfg Config

	files []string
	index int
	seq   int
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
		"replays image files from a directory with the encoded frame as blob", New,
		plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults and restarts the sequence
func (s *Source) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "*"
	}
	if _, err := filepath.Match(cfg.Pattern, ""); err != nil {
		s.SetErrorf("invalid pattern %q, using *", cfg.Pattern)
		cfg.Pattern = "*"
	}
	s.cfg = cfg
	s.files = nil
	s.index = 0
	s.SetInfo("dir", cfg.Dir)
	s.SetInfo("blob_format", "image/*")
	s.MarkReady()
}

func (s *Source) scan() error {
	if s.cfg.Dir == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "frames", "scan", "dir is required")
	}
	matches, err := filepath.Glob(filepath.Join(s.cfg.Dir, s.cfg.Pattern))
	if err != nil {
		return errors.WrapInvalid(err, "frames", "scan", "glob "+s.cfg.Pattern)
	}
	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return errors.WrapTransient(errors.ErrNoData, "frames", "scan", "no files in "+s.cfg.Dir)
	}
	sort.Strings(files)
	s.files = files
	s.SetInfo("frames", strconv.Itoa(len(files)))
	return nil
}

// GetOutput emits the next frame. The end of the sequence without loop is Retry.
func (s *Source) GetOutput(_ context.Context, out *params.Params, blob *plugin.Blob) plugin.ReturnType {
	*out = nil
	if blob != nil {
		blob.Reset()
	}
	if s.files == nil {
		if err := s.scan(); err != nil {
			return s.Fail(err)
		}
	}
	if s.index >= len(s.files) {
		if !s.cfg.Loop {
			return plugin.Retry
		}
		s.index = 0
	}

	path := s.files[s.index]
	s.index++

	data, err := os.ReadFile(path)
	if err != nil {
		s.SetErrorf("read %s: %v", path, err)
		return plugin.Error
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		s.SetErrorf("decode %s: %v", filepath.Base(path), err)
		return plugin.Error
	}

	s.seq++
	*out = params.Params{
		"file":   filepath.Base(path),
		"format": format,
		"width":  cfg.Width,
		"height": cfg.Height,
		"size":   len(data),
		"seq":    s.seq,
	}
	if blob != nil {
		blob.Set("image/"+format, data)
	}
	s.SetInfo("blob_format", "image/"+format)
	return plugin.Success
}
