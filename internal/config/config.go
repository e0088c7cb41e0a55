package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"webpool/internal/logger"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Pool   PoolConfig   `yaml:"pool" json:"pool"`
	Admin  AdminConfig  `yaml:"admin" json:"admin"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// ServerConfig はデモサーバー設定
type ServerConfig struct {
	Addr           string `yaml:"addr" json:"addr"`
	ContentDir     string `yaml:"content_dir" json:"content_dir"`
	SleepDelay     string `yaml:"sleep_delay" json:"sleep_delay"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

// PoolConfig はワーカープール設定
type PoolConfig struct {
	Workers int `yaml:"workers" json:"workers"`
}

// AdminConfig は管理用HTTPサーバー設定
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Settings は検証・変換済みの実行時設定
type Settings struct {
	Addr           string
	ContentDir     string
	SleepDelay     time.Duration
	MaxConnections int
	Workers        int
	AdminEnabled   bool
	AdminAddr      string
	LogLevel       logger.Level
}

// Default はデフォルト設定を返す
func Default() *FileConfig {
	return &FileConfig{
		Server: ServerConfig{
			Addr:       "127.0.0.1:7878",
			ContentDir: "examples/contents",
			SleepDelay: "5s",
		},
		Pool: PoolConfig{
			Workers: 4,
		},
		Admin: AdminConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFile は設定ファイルを読み込む。ファイルにない項目はデフォルト値のまま
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return config, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	var errs []error

	if f.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if f.Server.ContentDir == "" {
		errs = append(errs, errors.New("server.content_dir must not be empty"))
	}
	if f.Server.MaxConnections < 0 {
		errs = append(errs, errors.New("server.max_connections must be non-negative"))
	}
	if f.Server.SleepDelay != "" {
		d, err := time.ParseDuration(f.Server.SleepDelay)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid server.sleep_delay: %w", err))
		} else if d < 0 {
			errs = append(errs, errors.New("server.sleep_delay must be non-negative"))
		}
	}

	if f.Pool.Workers <= 0 {
		errs = append(errs, errors.New("pool.workers must be positive"))
	}

	if f.Admin.Enabled && f.Admin.Addr == "" {
		errs = append(errs, errors.New("admin.addr must not be empty when admin is enabled"))
	}

	if _, err := logger.ParseLevel(f.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid log.level: %w", err))
	}

	return errors.Join(errs...)
}

// ToSettings はFileConfigを実行時設定に変換する。Validate 済みであること
func (f *FileConfig) ToSettings() (Settings, error) {
	s := Settings{
		Addr:           f.Server.Addr,
		ContentDir:     f.Server.ContentDir,
		MaxConnections: f.Server.MaxConnections,
		Workers:        f.Pool.Workers,
		AdminEnabled:   f.Admin.Enabled,
		AdminAddr:      f.Admin.Addr,
	}

	if f.Server.SleepDelay != "" {
		d, err := time.ParseDuration(f.Server.SleepDelay)
		if err != nil {
			return s, fmt.Errorf("invalid sleep delay: %w", err)
		}
		s.SleepDelay = d
	}

	level, err := logger.ParseLevel(f.Log.Level)
	if err != nil {
		return s, err
	}
	s.LogLevel = level

	return s, nil
}
