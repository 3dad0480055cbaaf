package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pmak99/trading-desk-public-sub000/pkg/models"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig                          `mapstructure:"server"`
	Database  DatabaseConfig                        `mapstructure:"database"`
	Budgets   map[string]models.BudgetLimits        `mapstructure:"budgets"`
	Cascade   map[string][]models.ProviderCandidate `mapstructure:"cascade"`
	Scheduler SchedulerConfig                       `mapstructure:"scheduler"`
	Batch     BatchConfig                           `mapstructure:"batch"`
	Research  ResearchConfig                        `mapstructure:"research"`
	Logging   LoggingConfig                         `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ScheduleEntry maps a time of day to a job name
type ScheduleEntry struct {
	At  string `mapstructure:"at"` // "15:04" in the business timezone
	Job string `mapstructure:"job"`
}

// WeeklySchedule holds the static time-of-day tables per day class
type WeeklySchedule struct {
	Weekday  []ScheduleEntry `mapstructure:"weekday"`
	Saturday []ScheduleEntry `mapstructure:"saturday"`
	Sunday   []ScheduleEntry `mapstructure:"sunday"`
}

// SchedulerConfig holds job scheduling configuration
type SchedulerConfig struct {
	Timezone     string              `mapstructure:"timezone"`
	Tolerance    time.Duration       `mapstructure:"tolerance"`
	PollInterval time.Duration       `mapstructure:"poll_interval"`
	Schedule     WeeklySchedule      `mapstructure:"schedule"`
	Dependencies map[string][]string `mapstructure:"dependencies"`
}

// BatchConfig holds fan-out defaults
type BatchConfig struct {
	Deadline    time.Duration `mapstructure:"deadline"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
	MaxParallel int           `mapstructure:"max_parallel"`
}

// ResearchConfig holds the research pipeline configuration
type ResearchConfig struct {
	// Tickers is the static universe used when no earnings-calendar
	// integration is wired.
	Tickers []string `mapstructure:"tickers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Config file is optional
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Database defaults
	v.SetDefault("database.path", "./data/trading-desk.db")

	// Scheduler defaults: the external trigger fires every 15 minutes,
	// so the tolerance window must absorb that granularity
	v.SetDefault("scheduler.timezone", "America/New_York")
	v.SetDefault("scheduler.tolerance", 8*time.Minute)
	v.SetDefault("scheduler.poll_interval", 15*time.Minute)

	// Batch defaults
	v.SetDefault("batch.deadline", 4*time.Minute)
	v.SetDefault("batch.grace_period", 5*time.Second)
	v.SetDefault("batch.max_parallel", 8)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	bindEnv := func(key string, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			slog.Warn("failed to bind environment variable",
				slog.String("key", key),
				slog.String("env_var", envVar),
				slog.String("error", err.Error()))
		}
	}

	bindEnv("database.path", "DATABASE_PATH")
	bindEnv("server.host", "SERVER_HOST")
	bindEnv("server.port", "SERVER_PORT")
	bindEnv("logging.level", "LOG_LEVEL")
	bindEnv("logging.format", "LOG_FORMAT")
	bindEnv("scheduler.timezone", "BUSINESS_TIMEZONE")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", c.Scheduler.Timezone, err)
	}

	if c.Scheduler.Tolerance <= 0 {
		return fmt.Errorf("scheduler tolerance must be positive")
	}

	for service, limits := range c.Budgets {
		if limits.DailyCallLimit < 0 || limits.MonthlyBudget < 0 || limits.HardCap < 0 {
			return fmt.Errorf("budget limits for %q must be non-negative", service)
		}
		if limits.HardCap > 0 && limits.HardCap < limits.MonthlyBudget {
			return fmt.Errorf("hard cap for %q is below its monthly budget", service)
		}
	}

	for capability, candidates := range c.Cascade {
		if len(candidates) == 0 {
			return fmt.Errorf("capability %q has no provider candidates", capability)
		}
		for _, cand := range candidates {
			if cand.Provider == "" || cand.Model == "" {
				return fmt.Errorf("capability %q has a candidate with empty provider or model", capability)
			}
			if cand.EstimatedCost < 0 {
				return fmt.Errorf("capability %q candidate %s has a negative cost estimate", capability, cand.Provider)
			}
			if _, ok := c.Budgets[cand.Provider]; !ok {
				return fmt.Errorf("capability %q candidate %s has no budget configured", capability, cand.Provider)
			}
		}
	}

	for _, entries := range [][]ScheduleEntry{c.Scheduler.Schedule.Weekday, c.Scheduler.Schedule.Saturday, c.Scheduler.Schedule.Sunday} {
		for _, entry := range entries {
			if _, err := time.Parse("15:04", entry.At); err != nil {
				return fmt.Errorf("invalid schedule time %q for job %q", entry.At, entry.Job)
			}
			if entry.Job == "" {
				return fmt.Errorf("schedule entry at %s has no job name", entry.At)
			}
		}
	}

	return nil
}
