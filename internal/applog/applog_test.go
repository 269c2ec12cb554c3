package applog_test

import (
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zsprackett/editor-companion/internal/applog"
)

func logName(dir, date string) string {
	return filepath.Join(dir, applog.FilePrefix+"-"+date+".log")
}

func TestDailyRotator_CreatesFileOnFirstWrite(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, 7)
	defer r.Close()

	if _, err := r.Write([]byte("hello\n")); err != nil {
		t.Fatal(err)
	}

	name := logName(dir, time.Now().Format("2006-01-02"))
	if _, err := os.Stat(name); err != nil {
		t.Errorf("expected log file %q to exist: %v", name, err)
	}
}

func TestDailyRotator_ReopensAfterClose(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, 7)
	r.Write([]byte("before\n"))
	r.Close()
	if _, err := r.Write([]byte("after\n")); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	r.Close()

	data, _ := os.ReadFile(logName(dir, time.Now().Format("2006-01-02")))
	if !strings.Contains(string(data), "after") {
		t.Errorf("expected second write in file, got %q", data)
	}
}

func TestDailyRotator_PrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, 3)

	for i := 1; i <= 5; i++ {
		day := i
		r.SetNow(func() time.Time { return time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC) })
		if _, err := r.Write([]byte("entry\n")); err != nil {
			t.Fatal(err)
		}
	}
	r.Close()

	matches, _ := filepath.Glob(filepath.Join(dir, applog.FilePrefix+"-*.log"))
	if len(matches) != 3 {
		t.Fatalf("expected 3 log files after pruning, got %d: %v", len(matches), matches)
	}
	for _, name := range matches {
		if strings.HasSuffix(name, "2026-03-01.log") || strings.HasSuffix(name, "2026-03-02.log") {
			t.Errorf("old file %q should have been pruned", filepath.Base(name))
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		level slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{" WARN ", slog.LevelWarn},
	}
	for _, tc := range cases {
		if got := applog.ParseLevel(tc.input); got != tc.level {
			t.Errorf("ParseLevel(%q): got %v want %v", tc.input, got, tc.level)
		}
	}
}

func TestInit_WritesSlogAndStdlibLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, closer, err := applog.Init(applog.InitConfig{LogDir: dir, LogLevel: "debug"})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	defer log.SetOutput(os.Stderr)

	logger.Debug("hub: subscriber connected", "session", "p1")
	log.Print("stdlib-log-test-marker")

	data, err := os.ReadFile(logName(dir, time.Now().Format("2006-01-02")))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"hub: subscriber connected", "session=p1", "stdlib-log-test-marker"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file missing %q; contents: %q", want, data)
		}
	}
}

func TestDailyRotator_KeepsFilesInsideWindow(t *testing.T) {
	dir := t.TempDir()
	r := applog.NewDailyRotator(dir, 7)
	for _, day := range []int{1, 3, 5} {
		d := day
		r.SetNow(func() time.Time { return time.Date(2026, 3, d, 9, 0, 0, 0, time.UTC) })
		r.Write([]byte("entry\n"))
	}
	r.Close()

	matches, _ := filepath.Glob(filepath.Join(dir, applog.FilePrefix+"-*.log"))
	if len(matches) != 3 {
		t.Errorf("expected all 3 files inside a 7 day window, got %v", matches)
	}
}

func TestInit_JSONFormat(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := applog.Init(applog.InitConfig{LogDir: dir, Format: "json"})
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	defer log.SetOutput(os.Stderr)

	logger.Info("monitor: editor reachable", "addr", "127.0.0.1:55557")

	data, err := os.ReadFile(logName(dir, time.Now().Format("2006-01-02")))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"monitor: editor reachable"`) {
		t.Errorf("expected a JSON record, got %q", data)
	}
}
