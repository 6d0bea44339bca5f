package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Totarae/shortlink/internal/reaper"
	"github.com/spf13/viper"
)

// Режимы хранения ссылок.
const (
	ModeDatabase = "database"
	ModeRedis    = "redis"
	ModeFile     = "file"
	ModeMemory   = "memory"
)

// Config хранит конфигурацию сервера
type Config struct {
	ServerAddress   string        `json:"server_address"`
	BaseURL         string        `json:"base_url"`
	FileStoragePath string        `json:"file_storage_path"`
	DatabaseDSN     string        `json:"database_dsn"`
	RedisURL        string        `json:"redis_url"`
	RedisPrefix     string        `json:"redis_prefix"`
	GRPCAddress     string        `json:"grpc_address"`
	EnableHTTPS     bool          `json:"enable_https"`
	TLSCertPath     string        `json:"tls_cert_path"`
	TLSKeyPath      string        `json:"tls_key_path"`
	CodeLength      int           `json:"code_length"`
	CodeMaxAttempts int           `json:"code_max_attempts"`
	ReaperSchedule  string        `json:"reaper_schedule"`
	ReaperTimeout   time.Duration `json:"reaper_timeout"`
	PreviewTimeout  time.Duration `json:"preview_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	LogLevel        string        `json:"log_level"`
	LogFile         string        `json:"log_file"`
	Mode            string        `json:"-"`
}

var defaults = map[string]any{
	"server_address":    "localhost:8080",
	"base_url":          "http://localhost:8080",
	"file_storage_path": "",
	"database_dsn":      "",
	"redis_url":         "",
	"redis_prefix":      "shortlink:",
	"grpc_address":      "",
	"enable_https":      false,
	"tls_cert_path":     "cert.pem",
	"tls_key_path":      "key.pem",
	"code_length":       6,
	"code_max_attempts": 5,
	"reaper_schedule":   "0 0 0 * * *",
	"reaper_timeout":    "30s",
	"preview_timeout":   "5s",
	"shutdown_timeout":  "10s",
	"log_level":         "info",
	"log_file":          "",
}

// Load собирает конфигурацию. Приоритет по возрастанию: значения по умолчанию,
// JSON-файл (-c/-config/CONFIG), .env, переменные окружения, флаги.
func Load(args []string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	fs := flag.NewFlagSet("shortener", flag.ContinueOnError)
	flags := map[string]*string{
		"server_address":    fs.String("a", "", "server address"),
		"base_url":          fs.String("b", "", "base URL"),
		"file_storage_path": fs.String("f", "", "file storage path (JSON journal)"),
		"database_dsn":      fs.String("d", "", "PostgreSQL DSN"),
		"redis_url":         fs.String("r", "", "Redis URL"),
		"grpc_address":      fs.String("g", "", "gRPC listen address"),
		"tls_cert_path":     fs.String("cert", "", "path to TLS certificate"),
		"tls_key_path":      fs.String("key", "", "path to TLS key"),
	}
	flagNames := map[string]string{
		"a": "server_address", "b": "base_url", "f": "file_storage_path", "d": "database_dsn",
		"r": "redis_url", "g": "grpc_address", "cert": "tls_cert_path", "key": "tls_key_path",
	}
	enableHTTPS := fs.Bool("s", false, "enable HTTPS")
	configPath := fs.String("c", "", "path to JSON config file")
	fs.StringVar(configPath, "config", "", "path to JSON config file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath == "" {
		*configPath = os.Getenv("CONFIG")
	}
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("не удалось прочитать JSON-файл конфигурации %q: %w", *configPath, err)
		}
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("ошибка разбора JSON-файла конфигурации: %w", err)
		}
	}

	// .env не переопределяет переменные окружения
	if data, err := os.ReadFile(".env"); err == nil {
		v.SetConfigType("env")
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("ошибка разбора .env: %w", err)
		}
	}

	// флаги, переданные явно, имеют высший приоритет
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagNames[f.Name]; ok {
			v.Set(key, *flags[key])
		}
		if f.Name == "s" {
			v.Set("enable_https", *enableHTTPS)
		}
	})

	cfg := &Config{
		ServerAddress:   v.GetString("server_address"),
		BaseURL:         strings.TrimSuffix(v.GetString("base_url"), "/"),
		FileStoragePath: v.GetString("file_storage_path"),
		DatabaseDSN:     v.GetString("database_dsn"),
		RedisURL:        v.GetString("redis_url"),
		RedisPrefix:     v.GetString("redis_prefix"),
		GRPCAddress:     v.GetString("grpc_address"),
		EnableHTTPS:     v.GetBool("enable_https"),
		TLSCertPath:     v.GetString("tls_cert_path"),
		TLSKeyPath:      v.GetString("tls_key_path"),
		CodeLength:      v.GetInt("code_length"),
		CodeMaxAttempts: v.GetInt("code_max_attempts"),
		ReaperSchedule:  v.GetString("reaper_schedule"),
		ReaperTimeout:   v.GetDuration("reaper_timeout"),
		PreviewTimeout:  v.GetDuration("preview_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		LogLevel:        v.GetString("log_level"),
		LogFile:         v.GetString("log_file"),
	}
	cfg.Mode = cfg.resolveMode()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveMode выбирает хранилище: БД, затем Redis, затем файл, иначе память.
func (cfg *Config) resolveMode() string {
	switch {
	case cfg.DatabaseDSN != "":
		return ModeDatabase
	case cfg.RedisURL != "":
		return ModeRedis
	case cfg.FileStoragePath != "":
		return ModeFile
	default:
		return ModeMemory
	}
}

// Validate проверяет корректность конфигурации
func (cfg *Config) Validate() error {
	if cfg.ServerAddress == "" {
		return errors.New("адрес сервера не может быть пустым")
	}
	if cfg.BaseURL == "" {
		return errors.New("базовый URL не может быть пустым")
	}
	if cfg.CodeLength < 4 {
		return fmt.Errorf("длина кода должна быть не меньше 4, получено %d", cfg.CodeLength)
	}
	if cfg.CodeMaxAttempts < 1 {
		return fmt.Errorf("число попыток генерации кода должно быть положительным, получено %d", cfg.CodeMaxAttempts)
	}
	if cfg.ReaperTimeout <= 0 || cfg.PreviewTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return errors.New("таймауты должны быть положительными")
	}
	if err := reaper.ValidateSchedule(cfg.ReaperSchedule); err != nil {
		return fmt.Errorf("некорректное расписание чистки %q: %w", cfg.ReaperSchedule, err)
	}
	if cfg.EnableHTTPS && (cfg.TLSCertPath == "" || cfg.TLSKeyPath == "") {
		return errors.New("для HTTPS нужны пути к сертификату и ключу")
	}
	return nil
}
