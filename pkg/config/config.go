// Package config loads service settings from the environment and an optional
// .env.<APP_ENV> file
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings shared by the route tracker binaries
type Config struct {
	Port        string `mapstructure:"PORT"`
	NATSURL     string `mapstructure:"NATS_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	OSRMURL     string `mapstructure:"OSRM_URL"`
	OSRMProfile string `mapstructure:"OSRM_PROFILE"`
	OTELURL     string `mapstructure:"OTEL_URL"`

	// SigningSecret signs outgoing route updates and verifies position
	// reports. Empty disables both.
	SigningSecret string `mapstructure:"SIGNING_SECRET"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	RouteUpdateInterval time.Duration `mapstructure:"ROUTE_UPDATE_INTERVAL"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	WebSocketOrigins    []string      `mapstructure:"WS_ORIGINS"`

	// Unit simulator
	SimUnits    int           `mapstructure:"SIM_UNITS"`
	SimInterval time.Duration `mapstructure:"SIM_INTERVAL"`
	SimLat      float64       `mapstructure:"SIM_LAT"`
	SimLon      float64       `mapstructure:"SIM_LON"`
}

var defaults = map[string]interface{}{
	"PORT":                  ":8080",
	"NATS_URL":              "nats://localhost:4222",
	"REDIS_URL":             "",
	"POSTGRES_URL":          "",
	"OSRM_URL":              "http://localhost:5000",
	"OSRM_PROFILE":          "driving",
	"OTEL_URL":              "",
	"SIGNING_SECRET":        "",
	"LOG_LEVEL":             "info",
	"LOG_PRETTY":            false,
	"ROUTE_UPDATE_INTERVAL": "8s",
	"CORS_ORIGINS":          "http://localhost:3000,http://127.0.0.1:3000",
	"WS_ORIGINS":            "localhost:3000,127.0.0.1:3000",
	"SIM_UNITS":             5,
	"SIM_INTERVAL":          "2s",
	"SIM_LAT":               -18.0066,
	"SIM_LON":               -70.2463,
}

// Load reads defaults, then .env.<APP_ENV> from dir if present, then the
// environment, which takes precedence
func Load(dir string) (Config, error) {
	var c Config

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(fmt.Sprintf(".env.%s", env))
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("failed to decode config: %w", err)
	}

	if c.RouteUpdateInterval <= 0 {
		return c, fmt.Errorf("ROUTE_UPDATE_INTERVAL must be positive, got %s", c.RouteUpdateInterval)
	}
	return c, nil
}

// Secret returns the signing secret as bytes, or nil when unset
func (c Config) Secret() []byte {
	if c.SigningSecret == "" {
		return nil
	}
	return []byte(c.SigningSecret)
}
