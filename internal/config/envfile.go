package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

var envKeyPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// ErrInvalidKey is returned for setting names that are not valid env keys.
var ErrInvalidKey = errors.New("invalid setting key")

// EnvFile persists settings such as provider API keys in a dotenv file.
type EnvFile struct {
	mu   sync.Mutex
	path string
}

func NewEnvFile(path string) *EnvFile {
	return &EnvFile{path: path}
}

func (f *EnvFile) Path() string { return f.path }

// Read returns every key in the file. A missing file reads as empty.
func (f *EnvFile) Read() (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readLocked()
}

func (f *EnvFile) readLocked() (map[string]string, error) {
	values, err := godotenv.Read(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	return values, nil
}

// Set stores key=value, keeping every other key in the file.
func (f *EnvFile) Set(key, value string) error {
	if !envKeyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.readLocked()
	if err != nil {
		return err
	}
	values[key] = value
	return f.writeLocked(values)
}

// Delete removes key. Deleting a missing key is not an error.
func (f *EnvFile) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.readLocked()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return f.writeLocked(values)
}

func (f *EnvFile) writeLocked(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return err
	}
	if err := godotenv.Write(values, f.path); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return os.Chmod(f.path, 0600)
}

// Apply exports the file into the process environment without overriding
// variables that are already set.
func (f *EnvFile) Apply() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := godotenv.Load(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Masked returns the settings with values reduced to their last four
// characters, for display.
func (f *EnvFile) Masked() (map[string]string, error) {
	values, err := f.Read()
	if err != nil {
		return nil, err
	}
	for k, v := range values {
		values[k] = Mask(v)
	}
	return values, nil
}

func Mask(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}
