package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Mode string `yaml:"mode"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Paper struct {
		TTL string `yaml:"ttl"`
	} `yaml:"paper"`
	Exam struct {
		StartLockTTL  string `yaml:"start_lock_ttl"`
		StartLockWait string `yaml:"start_lock_wait"`
		SeedFile      string `yaml:"seed_file"`
	} `yaml:"exam"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`
}

const envPrefix = "EXAMFLOW_"

// Load reads YAML config from path and applies EXAMFLOW_* overrides. A missing
// file is not an error; defaults and the environment still apply.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.Mode = "release"
	cfg.Paper.TTL = "10m"
	cfg.Exam.StartLockTTL = "10s"
	cfg.Exam.StartLockWait = "2s"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"
	return cfg
}

func applyEnv(cfg *Config) error {
	overrides := map[string]*string{
		"PORT":            &cfg.Server.Port,
		"SERVER_MODE":     &cfg.Server.Mode,
		"POSTGRES_URL":    &cfg.Postgres.URL,
		"REDIS_ADDR":      &cfg.Redis.Addr,
		"REDIS_PASSWORD":  &cfg.Redis.Password,
		"PAPER_TTL":       &cfg.Paper.TTL,
		"START_LOCK_TTL":  &cfg.Exam.StartLockTTL,
		"START_LOCK_WAIT": &cfg.Exam.StartLockWait,
		"SEED_FILE":       &cfg.Exam.SeedFile,
		"LOG_LEVEL":       &cfg.Logging.Level,
		"LOG_FORMAT":      &cfg.Logging.Format,
		"LOG_FILE":        &cfg.Logging.File,
	}
	for name, field := range overrides {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*field = v
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sREDIS_DB %q: %w", envPrefix, v, err)
		}
		cfg.Redis.DB = db
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
