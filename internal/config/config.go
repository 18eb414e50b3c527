package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type AgentConfig struct {
	APIURL    string `yaml:"api_url"`
	UserEmail string `yaml:"user_email"`
	Timezone  string `yaml:"timezone"`

	DatabaseURL string `yaml:"database_url"`

	TelegramToken  string `yaml:"telegram_bot_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
	TelegramDebug  bool   `yaml:"telegram_debug"`

	HTTPAddr    string        `yaml:"http_addr"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	GeofenceRadiusMeters float64       `yaml:"geofence_radius_meters"`
	LocationTimeout      time.Duration `yaml:"location_timeout"`
	LocationMaxAge       time.Duration `yaml:"location_max_age"`

	MonitorInterval time.Duration `yaml:"monitor_interval"`
	SyncInterval    time.Duration `yaml:"sync_interval"`

	LogLevel string `yaml:"log_level"`
}

var instance *AgentConfig
var once sync.Once

// GetAgentConfig загружает конфигурацию один раз; ошибки конфигурации фатальны
func GetAgentConfig() *AgentConfig {
	once.Do(func() {
		if err := godotenv.Load(); err != nil {
			logrus.Debugf("no .env file loaded: %s", err.Error())
		}

		cfg, err := Load(getEnv("CONFIG_FILE", ""))
		if err != nil {
			logrus.Fatalf("error loading config: %s", err.Error())
		}
		instance = cfg
	})

	return instance
}

// Load собирает конфигурацию: значения по умолчанию, затем YAML-файл (если задан),
// затем переменные окружения
func Load(path string) (*AgentConfig, error) {
	cfg := defaults()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.APIURL = getEnv("API_URL", cfg.APIURL)
	cfg.UserEmail = getEnv("USER_EMAIL", cfg.UserEmail)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.TelegramToken)
	cfg.TelegramChatID = getEnvAsInt("TELEGRAM_CHAT_ID", cfg.TelegramChatID)
	cfg.TelegramDebug = getEnvAsBool("TELEGRAM_DEBUG", cfg.TelegramDebug)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.HTTPTimeout = getEnvAsDuration("HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.GeofenceRadiusMeters = getEnvAsFloat("GEOFENCE_RADIUS_METERS", cfg.GeofenceRadiusMeters)
	cfg.LocationTimeout = getEnvAsDuration("LOCATION_TIMEOUT", cfg.LocationTimeout)
	cfg.LocationMaxAge = getEnvAsDuration("LOCATION_MAX_AGE", cfg.LocationMaxAge)
	cfg.MonitorInterval = getEnvAsDuration("MONITOR_INTERVAL", cfg.MonitorInterval)
	cfg.SyncInterval = getEnvAsDuration("SYNC_INTERVAL", cfg.SyncInterval)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *AgentConfig) Validate() error {
	if c.APIURL == "" {
		return errors.New("could not get api url")
	}
	if c.DatabaseURL == "" {
		return errors.New("could not get db url")
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return errors.New("telegram chat id is required when bot token is set")
	}
	if c.GeofenceRadiusMeters <= 0 {
		return fmt.Errorf("invalid geofence radius %.1f", c.GeofenceRadiusMeters)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// TelegramEnabled true, если бот настроен
func (c *AgentConfig) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

func defaults() *AgentConfig {
	return &AgentConfig{
		Timezone:             time.Local.String(),
		DatabaseURL:          "attendance.db",
		HTTPAddr:             ":8080",
		HTTPTimeout:          20 * time.Second,
		GeofenceRadiusMeters: 10,
		LocationTimeout:      15 * time.Second,
		LocationMaxAge:       2 * time.Minute,
		MonitorInterval:      15 * time.Minute,
		SyncInterval:         15 * time.Minute,
		LogLevel:             "info",
	}
}

// loadFile читает YAML, подставляя ${VAR} из окружения
func loadFile(path string, cfg *AgentConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	content := os.Expand(string(data), func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		return "${" + key + "}"
	})

	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	return nil
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}

	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := getEnv(name, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}

	return defaultVal
}

func getEnvAsInt(name string, defaultVal int64) int64 {
	valStr := getEnv(name, "")
	if val, err := strconv.ParseInt(valStr, 10, 64); err == nil {
		return val
	}

	return defaultVal
}

func getEnvAsFloat(name string, defaultVal float64) float64 {
	valStr := getEnv(name, "")
	if val, err := strconv.ParseFloat(valStr, 64); err == nil {
		return val
	}

	return defaultVal
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valStr := getEnv(name, "")
	if val, err := time.ParseDuration(valStr); err == nil {
		return val
	}

	return defaultVal
}
