package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"keyguard/internal/utils"
)

// AccessEntry is one JSON line of the access log. It never carries
// credentials: the query string and auth headers are not recorded.
type AccessEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	ClientIP   string    `json:"client_ip"`
	UserAgent  string    `json:"user_agent,omitempty"`
	AuthMethod string    `json:"auth_method,omitempty"`
	OwnerID    string    `json:"owner_id,omitempty"`
	APIKeyID   string    `json:"api_key_id,omitempty"`
}

// AccessLogConfig configures file output and rotation
type AccessLogConfig struct {
	// FileTemplate contains one %s, replaced by the file's creation
	// timestamp, e.g. "/var/log/keyguard/access-%s.jsonl"
	FileTemplate  string
	MaxSize       int64 // bytes before rotation
	MaxFiles      int   // rotated files to keep
	BufferSize    int   // queued entries before new ones are dropped
	FlushInterval time.Duration
}

// AccessLogger writes entries asynchronously to size-rotated files
type AccessLogger struct {
	cfg AccessLogConfig

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64
	sequence    int

	entries chan AccessEntry
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
	dropped int64

	logger *utils.Logger
}

// NewAccessLogger opens the first file and starts the writer goroutine
func NewAccessLogger(cfg AccessLogConfig) (*AccessLogger, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}

	l := &AccessLogger{
		cfg:     cfg,
		entries: make(chan AccessEntry, cfg.BufferSize),
		done:    make(chan struct{}),
		logger:  utils.NewLogger("access-log"),
	}

	if err := l.openFile(); err != nil {
		return nil, err
	}

	l.wg.Add(1)
	go l.run()

	return l, nil
}

// Log queues an entry. If the queue is full the entry is dropped.
func (l *AccessLogger) Log(entry AccessEntry) {
	select {
	case l.entries <- entry:
	default:
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
	}
}

// Dropped returns the number of entries lost to a full queue
func (l *AccessLogger) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// CurrentFile returns the path entries are being written to
func (l *AccessLogger) CurrentFile() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentFile
}

// Shutdown drains queued entries, flushes and closes the file. It is safe
// to call more than once.
func (l *AccessLogger) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.wg.Wait()
}

// newFileName applies the current timestamp to the template. The sequence
// suffix keeps names unique when rotating more than once per second.
func (l *AccessLogger) newFileName() string {
	l.sequence++
	stamp := fmt.Sprintf("%s-%03d", time.Now().UTC().Format("20060102150405"), l.sequence)
	return fmt.Sprintf(l.cfg.FileTemplate, stamp)
}

// openFile must be called with mu held or before run starts
func (l *AccessLogger) openFile() error {
	name := l.newFileName()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}

	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open access log: %w", err)
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	l.currentFile = name
	l.currentSize = fi.Size()
	l.file = file
	l.writer = bufio.NewWriter(file)
	return nil
}

func (l *AccessLogger) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-l.entries:
			l.write(entry)
		case <-ticker.C:
			l.mu.Lock()
			_ = l.writer.Flush()
			l.mu.Unlock()
		case <-l.done:
			for {
				select {
				case entry := <-l.entries:
					l.write(entry)
				default:
					l.mu.Lock()
					_ = l.writer.Flush()
					_ = l.file.Close()
					l.mu.Unlock()
					return
				}
			}
		}
	}
}

func (l *AccessLogger) write(entry AccessEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cfg.MaxSize > 0 && l.currentSize > 0 && l.currentSize+int64(len(data)) > l.cfg.MaxSize {
		if err := l.rotate(); err != nil {
			l.logger.Error("Access log rotation failed", "file", l.currentFile, "error", err)
		}
	}

	n, _ := l.writer.Write(data)
	l.currentSize += int64(n)
}

// rotate must be called with mu held
func (l *AccessLogger) rotate() error {
	if err := l.writer.Flush(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := l.openFile(); err != nil {
		return err
	}
	return l.cleanupOldFiles()
}

// cleanupOldFiles removes the oldest files beyond MaxFiles
func (l *AccessLogger) cleanupOldFiles() error {
	matches, err := filepath.Glob(fmt.Sprintf(l.cfg.FileTemplate, "*"))
	if err != nil {
		return err
	}

	// Timestamped names sort chronologically
	sort.Strings(matches)

	for i := 0; i < len(matches)-l.cfg.MaxFiles; i++ {
		if matches[i] == l.currentFile {
			continue
		}
		_ = os.Remove(matches[i])
	}
	return nil
}
