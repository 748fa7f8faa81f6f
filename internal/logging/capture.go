package logging

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// DefaultTailSize is the ring buffer capacity kept per captured stream.
const DefaultTailSize = 64 * 1024

// CaptureConfig configures output capture for one stream of one job.
type CaptureConfig struct {
	Job       string
	Stream    string // "stdout" or "stderr"
	Logfile   string // empty keeps the output in memory only
	StripAnsi bool
	MaxBytes  string // logfile size before rotation (e.g. "10MB"); empty is unlimited
	Backups   int    // rotated backup files to keep
	TailSize  int    // ring buffer capacity; 0 means DefaultTailSize
	Logger    *slog.Logger
}

// CaptureHandler observes captured data after ANSI stripping.
type CaptureHandler func(job, stream string, data []byte)

// CaptureWriter records a child's captured output: to a logfile when one
// is configured, to a tail ring buffer, and to any registered handlers.
type CaptureWriter struct {
	mu       sync.Mutex
	config   CaptureConfig
	maxBytes int64
	file     *os.File
	handlers []CaptureHandler
	tail     *RingBuffer
	total    int64
}

// NewCaptureWriter creates a capture writer for a job stream.
func NewCaptureWriter(cfg CaptureConfig) (*CaptureWriter, error) {
	size := cfg.TailSize
	if size <= 0 {
		size = DefaultTailSize
	}
	cw := &CaptureWriter{
		config:   cfg,
		maxBytes: ParseSize(cfg.MaxBytes),
		tail:     NewRingBuffer(size),
	}

	if cfg.Logfile != "" {
		f, err := openLogfile(cfg.Logfile)
		if err != nil {
			return nil, err
		}
		cw.file = f
	}

	return cw, nil
}

func openLogfile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file: %s: %w", path, err)
	}
	return f, nil
}

// Write implements io.Writer. Logfile failures are logged, not returned,
// so one broken destination does not lose the others.
func (cw *CaptureWriter) Write(p []byte) (int, error) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	data := p
	if cw.config.StripAnsi {
		data = StripANSI(data)
	}
	cw.total += int64(len(data))

	_, _ = cw.tail.Write(data)

	if cw.file != nil {
		if _, err := cw.file.Write(data); err != nil {
			cw.logger().Error("log write failed", "file", cw.config.Logfile, "error", err)
		}
		cw.rotateIfNeeded()
	}

	for _, h := range cw.handlers {
		h(cw.config.Job, cw.config.Stream, data)
	}

	return len(p), nil
}

// AddHandler adds a callback for captured data.
func (cw *CaptureWriter) AddHandler(h CaptureHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, h)
}

// ReadTail returns the last n bytes written.
func (cw *CaptureWriter) ReadTail(n int) []byte {
	return cw.tail.Read(n)
}

// Total returns the number of bytes recorded so far.
func (cw *CaptureWriter) Total() int64 {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.total
}

// Close closes the logfile if open.
func (cw *CaptureWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.file == nil {
		return nil
	}
	err := cw.file.Close()
	cw.file = nil
	return err
}

// rotateIfNeeded rotates the logfile once it reaches maxBytes.
// Must be called with mu held.
func (cw *CaptureWriter) rotateIfNeeded() {
	if cw.maxBytes == 0 {
		return
	}
	info, err := cw.file.Stat()
	if err != nil || info.Size() < cw.maxBytes {
		return
	}
	cw.file.Close()
	if err := rotateFile(cw.config.Logfile, cw.config.Backups); err != nil {
		cw.logger().Warn("log rotation failed", "file", cw.config.Logfile, "error", err)
	}
	f, err := openLogfile(cw.config.Logfile)
	if err != nil {
		cw.logger().Error("log reopen failed", "error", err)
		cw.file = nil
		return
	}
	cw.file = f
}

func (cw *CaptureWriter) logger() *slog.Logger {
	if cw.config.Logger != nil {
		return cw.config.Logger
	}
	return slog.New(slog.DiscardHandler)
}
