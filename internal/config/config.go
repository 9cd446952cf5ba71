/**
 * @description
 * Configuration management for the accrual service. Settings load from
 * environment variables via viper, with defaults for schedules and
 * thresholds.
 */
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the accrual service.
type Config struct {
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	ServerPort             string `mapstructure:"SERVER_PORT"`
	InternalAPIKey         string `mapstructure:"INTERNAL_API_KEY"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	AccrualEventsExchange  string `mapstructure:"ACCRUAL_EVENTS_EXCHANGE"`
	DailyReturnsSchedule   string `mapstructure:"DAILY_RETURNS_SCHEDULE"`
	JobStaleThresholdHours int    `mapstructure:"JOB_STALE_THRESHOLD_HOURS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8087")
	viper.SetDefault("ACCRUAL_EVENTS_EXCHANGE", "accrual.events")
	viper.SetDefault("DAILY_RETURNS_SCHEDULE", "10 0 * * *") // At 00:10 UTC daily.
	viper.SetDefault("JOB_STALE_THRESHOLD_HOURS", 36)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("ACCRUAL_EVENTS_EXCHANGE")
	_ = viper.BindEnv("DAILY_RETURNS_SCHEDULE")
	_ = viper.BindEnv("JOB_STALE_THRESHOLD_HOURS")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if config.InternalAPIKey == "" {
		return nil, fmt.Errorf("INTERNAL_API_KEY is required")
	}

	return &config, nil
}
