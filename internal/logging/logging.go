package logging

import (
	"bufio"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	logFile *os.File
	logPath string
	mu      sync.Mutex
)

// Init sets up dual logging to stdout and the log file at path, and routes
// the standard library logger and chi's request logger through zerolog.
// When the file cannot be opened, logging continues on stdout only.
func Init(path, level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	mu.Lock()
	logPath = path
	if f, ferr := openLogFile(path); ferr != nil {
		defer log.Warn().Err(ferr).Str("path", path).Msg("cannot open log file, logging to stdout only")
	} else {
		logFile = f
		out = zerolog.MultiLevelWriter(os.Stdout, f)
	}
	mu.Unlock()

	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)

	reqLogger := log.With().Str("component", "http").Logger()
	chimw.DefaultLogger = chimw.RequestLogger(&chimw.DefaultLogFormatter{Logger: &reqLogger, NoColor: true})

	if logFile != nil {
		log.Info().Str("path", path).Msg("logging to file")
	}
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("no log path configured")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// Close flushes and closes the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// ReadTail returns the last n lines from the log file.
func ReadTail(n int) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if logPath == "" {
		return "", nil
	}
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	// Increase buffer for potentially long lines
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan log file: %w", err)
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return strings.Join(lines, "\n"), nil
}

// Clear truncates the log file.
func Clear() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		if err := logFile.Truncate(0); err != nil {
			return fmt.Errorf("truncate log file: %w", err)
		}
		if _, err := logFile.Seek(0, 0); err != nil {
			return fmt.Errorf("seek log file: %w", err)
		}
		return nil
	}
	if logPath == "" {
		return nil
	}
	return os.Truncate(logPath, 0)
}
