// Package corelog is the structured logger shared by every provider crate
// and the retry/transport engine. Grounded on logger/logger.go's
// sync.Once-built zerolog.Logger plus console/daily-rotating-file
// MultiLevelWriter; generalized here to log only structural
// retry/stream-lifecycle events (driver name, attempt count, backoff,
// stop reason) and never headers or request/response bodies, preserving
// the redaction discipline sdkerr.RedactHeaders enforces elsewhere.
package corelog

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var once sync.Once
var log zerolog.Logger

// EnvStateDir names the environment variable pointing at the directory
// daily-rotating log files are written under. Unset or unusable means
// logging falls back to stdout only.
const EnvStateDir = "INFERENCECORE_LOG_DIR"

func levelFromEnv() zerolog.Level {
	n, err := strconv.Atoi(os.Getenv("INFERENCECORE_LOG_LEVEL"))
	if err != nil {
		return zerolog.InfoLevel
	}
	return zerolog.Level(n)
}

// Get returns the process-wide logger, building it on first use.
func Get() zerolog.Logger {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		var output io.Writer = consoleWriter

		if stateDir := os.Getenv(EnvStateDir); stateDir != "" {
			if fileWriter, err := newDailyRotatingLogWriter(stateDir); err == nil {
				output = zerolog.MultiLevelWriter(consoleWriter, fileWriter)
			}
		}

		log = zerolog.New(output).Level(levelFromEnv()).With().Timestamp().Logger()
	})
	return log
}

// WithDriver scopes the logger to a single driver name, the way every
// adapter and the transport package tag their log lines.
func WithDriver(driver string) zerolog.Logger {
	return Get().With().Str("driver", driver).Logger()
}

// LogRetryDecision records a single retry/timeout decision. It never logs
// err.Error() verbatim for an *sdkerr.SdkError carrying raw provider
// response bytes — callers pass a short outcome label instead, keeping
// this call site decoupled from sdkerr to avoid an import cycle.
// correlationID ties every attempt of the same call together across log
// lines; pass "" to omit it.
func LogRetryDecision(logger zerolog.Logger, correlationID string, attempt int, outcome string, wait time.Duration) {
	event := logger.Debug().
		Int("attempt", attempt).
		Str("outcome", outcome).
		Dur("wait", wait)
	if correlationID != "" {
		event = event.Str("correlation_id", correlationID)
	}
	event.Msg("retry decision")
}

// LogStreamLifecycle records a stream start/end transition (never the
// message content itself).
func LogStreamLifecycle(logger zerolog.Logger, phase string, stopReason string) {
	event := logger.Debug().Str("phase", phase)
	if stopReason != "" {
		event = event.Str("stop_reason", stopReason)
	}
	event.Msg("stream lifecycle")
}

const (
	logFilePrefix   = "inferencecore-"
	logFileSuffix   = ".log"
	maxLogFileCount = 7
)

type dailyRotatingLogWriter struct {
	mu          sync.Mutex
	stateDir    string
	currentDate string
	file        *os.File
}

func newDailyRotatingLogWriter(stateDir string) (*dailyRotatingLogWriter, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, err
	}
	w := &dailyRotatingLogWriter{stateDir: stateDir}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *dailyRotatingLogWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateIfNeeded(); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

func (w *dailyRotatingLogWriter) rotateIfNeeded() error {
	today := time.Now().Format("2006-01-02")
	if w.currentDate == today && w.file != nil {
		return nil
	}
	if w.file != nil {
		w.file.Close()
	}

	name := logFilePrefix + today + logFileSuffix
	file, err := os.OpenFile(filepath.Join(w.stateDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w.file = file
	w.currentDate = today
	cleanupOldLogFiles(w.stateDir)
	return nil
}

func (w *dailyRotatingLogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}

var _ io.WriteCloser = (*dailyRotatingLogWriter)(nil)

func cleanupOldLogFiles(stateDir string) {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		return
	}

	var logFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, logFilePrefix) && strings.HasSuffix(name, logFileSuffix) {
			logFiles = append(logFiles, name)
		}
	}
	if len(logFiles) <= maxLogFileCount {
		return
	}

	sort.Strings(logFiles)
	for i := 0; i < len(logFiles)-maxLogFileCount; i++ {
		os.Remove(filepath.Join(stateDir, logFiles[i]))
	}
}
