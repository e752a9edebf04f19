// Package config loads panel settings from controlpanel.cfg.json, an
// optional .env file and CONTROLPANEL_* environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FileName  = "controlpanel.cfg.json"
	EnvPrefix = "CONTROLPANEL"
)

type ChannelConfig struct {
	Target         string        `json:"target" mapstructure:"target"`
	RequestTimeout time.Duration `json:"requestTimeout" mapstructure:"requestTimeout"`
}

type PanelConfig struct {
	RevealDelay time.Duration `json:"revealDelay" mapstructure:"revealDelay"`
	PulseDelay  time.Duration `json:"pulseDelay" mapstructure:"pulseDelay"`
}

// SensorConfig describes a fixed-position locator. Disabled means the host
// has no location capability.
type SensorConfig struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	Latitude  float64       `json:"latitude" mapstructure:"latitude"`
	Longitude float64       `json:"longitude" mapstructure:"longitude"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

type InfluxConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Protocol     string `json:"protocol" mapstructure:"protocol"`
	Host         string `json:"host" mapstructure:"host"`
	Port         string `json:"port" mapstructure:"port"`
	Token        string `json:"token" mapstructure:"token"`
	Org          string `json:"org" mapstructure:"org"`
	Bucket       string `json:"bucket" mapstructure:"bucket"`
	EnsureBucket bool   `json:"ensureBucket" mapstructure:"ensureBucket"`
	BackupPath   string `json:"backupPath" mapstructure:"backupPath"`
}

// URL joins protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("channel.target", "ws://localhost:4445")
	viper.SetDefault("channel.requestTimeout", 6*time.Second)

	viper.SetDefault("panel.revealDelay", 600*time.Millisecond)
	viper.SetDefault("panel.pulseDelay", time.Second)

	viper.SetDefault("sensor.enabled", false)
	viper.SetDefault("sensor.latitude", 0.0)
	viper.SetDefault("sensor.longitude", 0.0)
	viper.SetDefault("sensor.timeout", 10*time.Second)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "streamheart")
	viper.SetDefault("influx.bucket", "panel_events")
	viper.SetDefault("influx.ensureBucket", false)
	viper.SetDefault("influx.backupPath", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "controlpanel")
	viper.SetDefault("otel.batchTimeout", 5*time.Second)
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load sets defaults, loads configDir/.env and reads the JSON config file
// from configDir. A missing file or .env is not an error; a malformed one is.
func Load(configDir string) error {
	setDefaults()

	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error reading .env: %w", err)
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func GetString(key string) string {
	return viper.GetString(key)
}

func GetInt(key string) int {
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	return viper.GetBool(key)
}

func GetChannelConfig() ChannelConfig {
	return ChannelConfig{
		Target:         viper.GetString("channel.target"),
		RequestTimeout: viper.GetDuration("channel.requestTimeout"),
	}
}

func GetPanelConfig() PanelConfig {
	return PanelConfig{
		RevealDelay: viper.GetDuration("panel.revealDelay"),
		PulseDelay:  viper.GetDuration("panel.pulseDelay"),
	}
}

func GetSensorConfig() SensorConfig {
	return SensorConfig{
		Enabled:   viper.GetBool("sensor.enabled"),
		Latitude:  viper.GetFloat64("sensor.latitude"),
		Longitude: viper.GetFloat64("sensor.longitude"),
		Timeout:   viper.GetDuration("sensor.timeout"),
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:      viper.GetBool("influx.enabled"),
		Protocol:     viper.GetString("influx.protocol"),
		Host:         viper.GetString("influx.host"),
		Port:         viper.GetString("influx.port"),
		Token:        viper.GetString("influx.token"),
		Org:          viper.GetString("influx.org"),
		Bucket:       viper.GetString("influx.bucket"),
		EnsureBucket: viper.GetBool("influx.ensureBucket"),
		BackupPath:   viper.GetString("influx.backupPath"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
