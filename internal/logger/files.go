package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxLogLineSize = 1 << 20

// WorkerLogs keeps one JSON log file per worker under a directory and reads
// the newest entries back.
type WorkerLogs struct {
	dir     string
	maxLogs int
}

func NewWorkerLogs(dir string, maxLogs int) *WorkerLogs {
	return &WorkerLogs{dir: dir, maxLogs: maxLogs}
}

func (w *WorkerLogs) path(name string) string {
	return filepath.Join(w.dir, name+".log")
}

// Open returns a logger writing to base and to the worker's file. The
// returned func closes the file. Without a directory configured the base
// logger is returned as is.
func (w *WorkerLogs) Open(base Logger, name string) (Logger, func() error, error) {
	noop := func() error { return nil }
	if w == nil || w.dir == "" {
		return base, noop, nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", w.dir, err)
	}

	f, err := os.OpenFile(w.path(name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file for %s: %w", name, err)
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sl, ok := base.(*SugaredLogger)
	if ok {
		level = sl.level
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(f), level)
	if ok {
		core = zapcore.NewTee(sl.Desugar().Core(), core)
	}

	zl := zap.New(core, zap.AddCaller()).With(zap.String("worker", name))

	logger := &SugaredLogger{
		SugaredLogger: zl.Sugar(),
		level:         level,
	}
	if ok {
		logger.serviceName = sl.serviceName
	}

	return logger, func() error {
		_ = zl.Sync()
		return f.Close()
	}, nil
}

// AllLogs asks Read for as many entries as the configured maximum allows.
const AllLogs = -1

// Read returns up to min(n, maxLogs) of the worker's most recent entries,
// newest first. A negative n means maxLogs and zero means none. A worker
// that never logged has no entries.
func (w *WorkerLogs) Read(name string, n int) ([]map[string]interface{}, error) {
	if n < 0 || n > w.maxLogs {
		n = w.maxLogs
	}
	entries := make([]map[string]interface{}, 0)
	if w.dir == "" || n <= 0 {
		return entries, nil
	}

	f, err := os.Open(w.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to open log file for %s: %w", name, err)
	}
	defer f.Close()

	ring := make([]string, n)
	count := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		ring[count%n] = line
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file for %s: %w", name, err)
	}

	kept := count
	if kept > n {
		kept = n
	}

	for i := 0; i < kept; i++ {
		line := ring[(count-1-i)%n]
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
