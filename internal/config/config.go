package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		URL string `yaml:"url"`
	} `yaml:"server"`
	Session struct {
		AdvanceDelay         string `yaml:"advance_delay"`
		ResultNotification   string `yaml:"result_notification"`
		CompleteNotification string `yaml:"complete_notification"`
		ErrorNotification    string `yaml:"error_notification"`
	} `yaml:"session"`
	Connection struct {
		HandshakeTimeout string `yaml:"handshake_timeout"`
		WriteTimeout     string `yaml:"write_timeout"`
		ReadTimeout      string `yaml:"read_timeout"`
		PingInterval     string `yaml:"ping_interval"`
		MaxMessageSize   int64  `yaml:"max_message_size"`
	} `yaml:"connection"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Reconnect struct {
		MaxRetries      int    `yaml:"max_retries"`
		InitialInterval string `yaml:"initial_interval"`
		MaxInterval     string `yaml:"max_interval"`
	} `yaml:"reconnect"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.URL = "ws://localhost:8000"
	cfg.Session.AdvanceDelay = "1s"
	cfg.Session.ResultNotification = "2s"
	cfg.Session.CompleteNotification = "5s"
	cfg.Session.ErrorNotification = "5s"
	cfg.Connection.HandshakeTimeout = "10s"
	cfg.Connection.WriteTimeout = "10s"
	cfg.Connection.ReadTimeout = "60s"
	cfg.Connection.PingInterval = "30s"
	cfg.Connection.MaxMessageSize = 64 * 1024
	cfg.Redis.TTL = "24h"
	cfg.Reconnect.InitialInterval = "500ms"
	cfg.Reconnect.MaxInterval = "10s"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not an
// error. QUIZ_SERVER_URL, REDIS_ADDR and QUIZ_RECONNECT_RETRIES override the file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv("QUIZ_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("QUIZ_RECONNECT_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.New("QUIZ_RECONNECT_RETRIES must be an integer")
		}
		cfg.Reconnect.MaxRetries = n
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
