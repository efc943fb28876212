// Package file provides a Sink that writes documents to disk as JSON Lines or
// pretty-printed JSON, with blobs stored as files beside the records.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the sink
const DriverName = "file"

// BlobKey is the record field naming the file that holds the blob of the record
const BlobKey = "_blob"

// Config holds configuration for the file sink
type Config struct {
	Directory  string `mapstructure:"directory"`
	FilePrefix string `mapstructure:"file_prefix"`
	Format     string `mapstructure:"format"`
	Append     bool   `mapstructure:"append"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Directory == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "directory is required")
	}
	if c.Format != "json" && c.Format != "jsonl" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"format must be one of: json, jsonl")
	}
	if c.BufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"buffer_size cannot be negative")
	}
	return nil
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "directory": {"type": "string", "minLength": 1},
    "file_prefix": {"type": "string", "minLength": 1},
    "format": {"enum": ["json", "jsonl"]},
    "append": {"type": "boolean"},
    "buffer_size": {"type": "integer", "minimum": 0}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"directory":   filepath.Join(os.TempDir(), "mads"),
		"file_prefix": "output",
		"format":      "jsonl",
		"append":      true,
		"buffer_size": 0,
	}
}

// Sink writes one record per LoadData. With buffer_size > 0 records are
// batched and flushed when the batch is full and on Close.
type Sink struct {
	plugin.Base
	cfg    Config
	logger *slog.Logger

	file    *os.File
	pending [][]byte
	blobs   int

	messagesWritten int
	bytesWritten    int
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
		"writes documents to JSON or JSON Lines files, blobs beside them", New,
		plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults. A new configuration reopens the file
// on the next write.
func (s *Sink) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
	}
	if cfg != s.cfg {
		s.closeFile()
	}
	s.cfg = cfg
	if err := cfg.Validate(); err != nil {
		s.SetError(err.Error())
		return
	}
	s.SetInfo("path", s.Path())
	s.MarkReady()
}

// Path returns the file records are written to
func (s *Sink) Path() string {
	return filepath.Join(s.cfg.Directory, fmt.Sprintf("%s.%s", s.cfg.FilePrefix, s.cfg.Format))
}

func (s *Sink) open() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.cfg.Directory, 0o755); err != nil {
		return errors.WrapFatal(err, "Sink", "open", "create output directory")
	}

	flags := os.O_CREATE | os.O_WRONLY
	if s.cfg.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(s.Path(), flags, 0o644)
	if err != nil {
		return errors.WrapFatal(err, "Sink", "open", "open output file")
	}
	s.file = file
	s.logger.Debug("File sink opened", "path", s.Path(), "format", s.cfg.Format, "append", s.cfg.Append)
	return nil
}

// LoadData writes in as one record
func (s *Sink) LoadData(_ context.Context, in params.Params, topic string) plugin.ReturnType {
	return s.write(in, nil, topic)
}

// LoadBlob stores the blob in its own file and writes in with a reference to it
func (s *Sink) LoadBlob(_ context.Context, in params.Params, blob plugin.Blob, topic string) plugin.ReturnType {
	return s.write(in, &blob, topic)
}

func (s *Sink) write(in params.Params, blob *plugin.Blob, topic string) plugin.ReturnType {
	if s.file == nil {
		if err := s.open(); err != nil {
			return s.Fail(err)
		}
	}

	record := in.Clone()
	if record == nil {
		record = params.New()
	}
	if topic != "" && !record.Has(params.TopicKey) {
		record[params.TopicKey] = topic
	}
	if !blob.Empty() {
		name, err := s.writeBlob(*blob)
		if err != nil {
			s.SetErrorf("write blob: %v", err)
			return plugin.Error
		}
		record[BlobKey] = name
	}

	data, err := s.encode(record)
	if err != nil {
		s.SetErrorf("encode record: %v", err)
		return plugin.Error
	}
	s.pending = append(s.pending, data)
	if len(s.pending) < s.cfg.BufferSize {
		return plugin.Success
	}
	if err := s.flush(); err != nil {
		s.SetErrorf("write %s: %v", s.Path(), err)
		return plugin.Error
	}
	return plugin.Success
}

func (s *Sink) encode(record params.Params) ([]byte, error) {
	var data []byte
	var err error
	if s.cfg.Format == "json" {
		data, err = json.MarshalIndent(map[string]any(record), "", "  ")
	} else {
		data, err = json.Marshal(map[string]any(record))
	}
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (s *Sink) writeBlob(blob plugin.Blob) (string, error) {
	s.blobs++
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(blob.Format); err == nil && slices.Contains(exts, "."+subtype(blob.Format)) {
		ext = "." + subtype(blob.Format)
	} else if err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	name := fmt.Sprintf("%s-%06d%s", s.cfg.FilePrefix, s.blobs, ext)
	if err := os.WriteFile(filepath.Join(s.cfg.Directory, name), blob.Data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// subtype returns "png" for "image/png"
func subtype(format string) string {
	_, sub, _ := strings.Cut(format, "/")
	return sub
}

// flush writes pending records. Records that could not be written are dropped.
func (s *Sink) flush() error {
	pending := s.pending
	s.pending = nil
	if s.file == nil {
		return errors.WrapInvalid(errors.ErrAlreadyClosed, "Sink", "flush", "file handle is nil")
	}
	for _, data := range pending {
		n, err := s.file.Write(data)
		if err != nil {
			return err
		}
		s.messagesWritten++
		s.bytesWritten += n
	}
	s.SetInfo("written", strconv.Itoa(s.messagesWritten))
	return nil
}

func (s *Sink) closeFile() {
	if s.file == nil {
		return
	}
	if len(s.pending) > 0 {
		if err := s.flush(); err != nil {
			s.logger.Warn("Failed to flush output file", "error", err, "path", s.file.Name())
		}
	}
	if err := s.file.Close(); err != nil {
		s.logger.Warn("Failed to close output file", "error", err, "path", s.file.Name())
	}
	s.file = nil
}

// Close flushes pending records and closes the file
func (s *Sink) Close() error {
	s.closeFile()
	s.logger.Debug("File sink closed", "records", s.messagesWritten, "bytes", s.bytesWritten)
	return nil
}
