package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment override, e.g. EC_WEB_PORT.
const EnvPrefix = "EC_"

type TLSConfig struct {
	Mode     string `json:"mode" env:"TLS_MODE"` // "self-signed", "manual", or "" (disabled)
	CertFile string `json:"certFile" env:"TLS_CERT_FILE"`
	KeyFile  string `json:"keyFile" env:"TLS_KEY_FILE"`
	CacheDir string `json:"cacheDir" env:"TLS_CACHE_DIR"` // self-signed only; defaults to ~/.editor-companion/certs
}

type AuthConfig struct {
	JWTSecret       string `json:"jwtSecret" env:"JWT_SECRET"`
	AccessTokenTTL  string `json:"accessTokenTTL" env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL string `json:"refreshTokenTTL" env:"REFRESH_TOKEN_TTL"`
}

type WebserverConfig struct {
	Enabled bool       `json:"enabled" env:"WEB_ENABLED"`
	Port    int        `json:"port" env:"WEB_PORT"`
	Host    string     `json:"host" env:"WEB_HOST"`
	TLS     TLSConfig  `json:"tls"`
	Auth    AuthConfig `json:"auth"`
}

type EditorConfig struct {
	Host    string `json:"host" env:"EDITOR_HOST"`
	Port    int    `json:"port" env:"EDITOR_PORT"`
	Timeout string `json:"timeout" env:"EDITOR_TIMEOUT"`
}

type BroadcastConfig struct {
	SendTimeout string `json:"sendTimeout" env:"BROADCAST_SEND_TIMEOUT"`
}

type MonitorConfig struct {
	Interval string `json:"interval" env:"MONITOR_INTERVAL"`
}

type NotificationsConfig struct {
	Enabled bool   `json:"enabled" env:"NOTIFY_ENABLED"`
	Webhook string `json:"webhook" env:"NOTIFY_WEBHOOK"`
	NtfyURL string `json:"ntfy" env:"NOTIFY_NTFY"`
}

type Config struct {
	Webserver        WebserverConfig     `json:"webserver"`
	Editor           EditorConfig        `json:"editor"`
	Broadcast        BroadcastConfig     `json:"broadcast"`
	Monitor          MonitorConfig       `json:"monitor"`
	Notifications    NotificationsConfig `json:"notifications"`
	LogDir           string              `json:"logDir" env:"LOG_DIR"`
	LogLevel         string              `json:"logLevel" env:"LOG_LEVEL"`
	LogFormat        string              `json:"logFormat" env:"LOG_FORMAT"`
	LogRetentionDays int                 `json:"logRetentionDays" env:"LOG_RETENTION_DAYS"`
	EnvFile          string              `json:"envFile" env:"ENV_FILE"`
}

func baseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".editor-companion")
}

func Defaults() Config {
	dir := baseDir()
	return Config{
		Webserver: WebserverConfig{
			Enabled: true,
			Port:    8080,
			Host:    "127.0.0.1",
			TLS:     TLSConfig{CacheDir: filepath.Join(dir, "certs")},
			Auth: AuthConfig{
				AccessTokenTTL:  "15m",
				RefreshTokenTTL: "168h",
			},
		},
		Editor: EditorConfig{
			Host:    "127.0.0.1",
			Port:    55557,
			Timeout: "10s",
		},
		Broadcast:        BroadcastConfig{SendTimeout: "5s"},
		Monitor:          MonitorConfig{Interval: "2s"},
		LogDir:           filepath.Join(dir, "logs"),
		LogLevel:         "info",
		LogFormat:        "text",
		LogRetentionDays: 7,
		EnvFile:          filepath.Join(dir, ".env"),
	}
}

func DefaultPath() string {
	return filepath.Join(baseDir(), "config.json")
}

func DBPath() string {
	return filepath.Join(baseDir(), "state.db")
}

// Load reads the config file at path over the defaults, then applies EC_*
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return cfg, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// readFile returns the defaults overlaid with the file at path, without env
// overrides.
func readFile(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as indented JSON, creating the parent directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// EnsureJWTSecret generates a signing secret on first run and persists it so
// issued tokens survive restarts. Only the secret is added to the file; env
// overrides already applied to cfg stay out of it.
func EnsureJWTSecret(path string, cfg *Config) error {
	if cfg.Webserver.Auth.JWTSecret != "" {
		return nil
	}
	onDisk, err := readFile(path)
	if err != nil {
		return err
	}
	if onDisk.Webserver.Auth.JWTSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		onDisk.Webserver.Auth.JWTSecret = hex.EncodeToString(b)
		if err := Save(path, onDisk); err != nil {
			return err
		}
	}
	cfg.Webserver.Auth.JWTSecret = onDisk.Webserver.Auth.JWTSecret
	return nil
}

// Duration parses s, falling back when s is empty or malformed.
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// EditorAddr is the host:port of the editor command listener.
func (c Config) EditorAddr() string {
	return fmt.Sprintf("%s:%d", c.Editor.Host, c.Editor.Port)
}
