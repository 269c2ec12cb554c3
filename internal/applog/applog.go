package applog

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FilePrefix names every log file: <prefix>-YYYY-MM-DD.log.
const FilePrefix = "editor-companion"

const (
	dateLayout           = "2006-01-02"
	DefaultRetentionDays = 7
)

// DailyRotator writes to one file per calendar day and deletes files whose
// date is more than maxDays in the past.
type DailyRotator struct {
	mu      sync.Mutex
	dir     string
	maxDays int
	now     func() time.Time

	day  string
	file *os.File
}

func NewDailyRotator(dir string, maxDays int) *DailyRotator {
	return &DailyRotator{dir: dir, maxDays: max(maxDays, 1), now: time.Now}
}

// SetNow replaces the clock. Tests only.
func (r *DailyRotator) SetNow(fn func() time.Time) {
	r.mu.Lock()
	r.now = fn
	r.mu.Unlock()
}

func (r *DailyRotator) path(day string) string {
	return filepath.Join(r.dir, FilePrefix+"-"+day+".log")
}

func (r *DailyRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if day := now.Format(dateLayout); r.file == nil || day != r.day {
		if err := r.openLocked(day); err != nil {
			return 0, err
		}
		r.pruneLocked(now)
	}
	return r.file.Write(p)
}

func (r *DailyRotator) openLocked(day string) error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	f, err := os.OpenFile(r.path(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	r.file, r.day = f, day
	return nil
}

func (r *DailyRotator) pruneLocked(now time.Time) {
	matches, err := filepath.Glob(filepath.Join(r.dir, FilePrefix+"-*.log"))
	if err != nil {
		return
	}
	today, _ := time.Parse(dateLayout, now.Format(dateLayout))
	cutoff := today.AddDate(0, 0, -(r.maxDays - 1))
	for _, name := range matches {
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(name), FilePrefix+"-"), ".log")
		day, err := time.Parse(dateLayout, stamp)
		if err != nil || !day.Before(cutoff) {
			continue
		}
		os.Remove(name)
	}
}

func (r *DailyRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

type InitConfig struct {
	LogDir        string
	LogLevel      string
	RetentionDays int
	// Format is "text" (default) or "json".
	Format string
	// Stderr also copies every record to standard error.
	Stderr bool
}

// Init points slog.Default and the log package at a DailyRotator in
// cfg.LogDir. The caller closes the returned io.Closer on exit.
func Init(cfg InitConfig) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	days := cfg.RetentionDays
	if days <= 0 {
		days = DefaultRetentionDays
	}
	rotator := NewDailyRotator(cfg.LogDir, days)

	var out io.Writer = rotator
	if cfg.Stderr {
		out = io.MultiWriter(rotator, os.Stderr)
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.LogLevel)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	log.SetOutput(out)
	log.SetFlags(0)
	return logger, rotator, nil
}

// ParseLevel maps a level name to slog.Level; unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
