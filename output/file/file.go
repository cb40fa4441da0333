package file

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/c360/mqtt2influxdb/errors"
	"github.com/c360/mqtt2influxdb/message"
	"github.com/c360/mqtt2influxdb/output"
)

// SinkName is the sink label in logs and metrics
const SinkName = "file"

// zstd frame magic number
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Config holds configuration for the file sink
type Config struct {
	Path string
	// Compress writes a zstd stream. Appending to an existing compressed file
	// adds a new frame, which decoders read as one stream.
	Compress bool
	// BufferSize is the number of lines kept before a flush (default 100)
	BufferSize int
	// FlushInterval bounds how long a line may stay buffered (default 1s)
	FlushInterval time.Duration
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "path is required")
	}
	if c.BufferSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", "buffer size cannot be negative")
	}
	return nil
}

// Sink appends records as JSON lines
type Sink struct {
	path       string
	compress   bool
	bufferSize int
	logger     *slog.Logger

	// File handling
	file   *os.File
	enc    *zstd.Encoder
	w      io.Writer
	fileMu sync.Mutex

	// Buffer for batching writes
	buffer   [][]byte
	bufferMu sync.Mutex

	// Lifecycle management
	shutdown  chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	wg        sync.WaitGroup

	// Metrics
	linesWritten atomic.Int64
	bytesWritten atomic.Int64
	errorCount   atomic.Int64
}

// New opens (or creates) the file and starts the periodic flush
func New(cfg Config, logger *slog.Logger) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WrapFatal(err, "Sink", "New", "create output directory")
		}
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WrapFatal(err, "Sink", "New", "open output file")
	}

	s := &Sink{
		path:       cfg.Path,
		compress:   cfg.Compress,
		bufferSize: cfg.BufferSize,
		logger:     logger.With("component", "output."+SinkName),
		file:       f,
		w:          f,
		buffer:     make([][]byte, 0, cfg.BufferSize),
		shutdown:   make(chan struct{}),
	}

	if cfg.Compress {
		enc, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, errors.WrapFatal(err, "Sink", "New", "create zstd encoder")
		}
		s.enc = enc
		s.w = enc
	}

	s.wg.Add(1)
	go s.flushLoop(cfg.FlushInterval)

	s.logger.Info("File sink started",
		"path", cfg.Path,
		"compress", cfg.Compress,
		"buffer_size", cfg.BufferSize)
	return s, nil
}

// Name implements output.Sink
func (s *Sink) Name() string { return SinkName }

// Path returns the output file path
func (s *Sink) Path() string { return s.path }

// Write buffers rec as one JSON line. A full buffer is flushed before Write
// returns.
func (s *Sink) Write(_ context.Context, rec output.Record) error {
	if s.closed.Load() {
		return errors.Wrap(errors.ErrShuttingDown, "Sink", "Write", "check state")
	}
	if rec.Record == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Sink", "Write", "nil record")
	}

	env := message.NewEnvelope(rec.Record, rec.Topic, rec.Time)
	if err := env.Validate(); err != nil {
		return err
	}
	line, err := env.Marshal()
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.bufferMu.Lock()
	s.buffer = append(s.buffer, line)
	shouldFlush := len(s.buffer) >= s.bufferSize
	s.bufferMu.Unlock()

	if shouldFlush {
		return s.flush()
	}
	return nil
}

// Flush writes buffered lines to the file
func (s *Sink) Flush() error {
	return s.flush()
}

// Stats returns lines and bytes written and write errors
func (s *Sink) Stats() (lines, written, failures int64) {
	return s.linesWritten.Load(), s.bytesWritten.Load(), s.errorCount.Load()
}

// Close flushes and closes the file. Safe to call more than once.
func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.shutdown)
		s.wg.Wait()

		err = s.flush()

		s.fileMu.Lock()
		defer s.fileMu.Unlock()
		if s.enc != nil {
			if cerr := s.enc.Close(); cerr != nil && err == nil {
				err = errors.WrapTransient(cerr, "Sink", "Close", "finish zstd frame")
			}
		}
		if cerr := s.file.Close(); cerr != nil && err == nil {
			err = errors.WrapTransient(cerr, "Sink", "Close", "close output file")
		}
		s.file = nil

		s.logger.Info("File sink closed",
			"path", s.path,
			"lines_written", s.linesWritten.Load(),
			"errors", s.errorCount.Load())
	})
	return err
}

// flushLoop periodically flushes the buffer
func (s *Sink) flushLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			if err := s.flush(); err != nil {
				s.logger.Error("Periodic flush failed", "error", err)
			}
		}
	}
}

func (s *Sink) flush() error {
	s.bufferMu.Lock()
	if len(s.buffer) == 0 {
		s.bufferMu.Unlock()
		return nil
	}
	lines := s.buffer
	s.buffer = make([][]byte, 0, s.bufferSize)
	s.bufferMu.Unlock()

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	if s.file == nil {
		s.errorCount.Add(int64(len(lines)))
		return errors.WrapFatal(fmt.Errorf("%w: file closed, %d lines lost", errors.ErrWriteFailed, len(lines)),
			"Sink", "flush", "write lines")
	}

	var failed int
	var lastErr error
	for _, line := range lines {
		n, err := s.w.Write(line)
		if err != nil {
			failed++
			lastErr = err
			continue
		}
		s.linesWritten.Add(1)
		s.bytesWritten.Add(int64(n))
	}

	// Push the pending zstd block to the file so a crash loses at most the
	// current frame tail
	if s.enc != nil && lastErr == nil {
		lastErr = s.enc.Flush()
	}

	if lastErr != nil {
		s.errorCount.Add(int64(max(failed, 1)))
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrWriteFailed, lastErr),
			"Sink", "flush", fmt.Sprintf("write %d lines", len(lines)))
	}

	s.logger.Debug("Flushed lines", "count", len(lines))
	return nil
}

// ReadEnvelopes reads every record from a file written by Sink. Compressed
// files are detected by the zstd magic number.
func ReadEnvelopes(path string) ([]message.RecordEnvelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "File", "ReadEnvelopes", "open file")
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br

	head, _ := br.Peek(len(zstdMagic))
	if bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "File", "ReadEnvelopes", "create zstd decoder")
		}
		defer dec.Close()
		r = dec
	}

	var out []message.RecordEnvelope
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		env, err := message.DecodeEnvelope(scanner.Bytes())
		if err != nil {
			return out, errors.Wrap(err, "File", "ReadEnvelopes", fmt.Sprintf("decode line %d", line))
		}
		out = append(out, env)
	}
	if err := scanner.Err(); err != nil {
		return out, errors.Wrap(err, "File", "ReadEnvelopes", "scan file")
	}
	return out, nil
}
