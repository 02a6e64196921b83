package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "placer.cfg.json"

// EnvPrefix is the prefix of environment overrides, e.g. PLACER_SERVER_ADDR.
const EnvPrefix = "PLACER"

// SchedulerConfig holds visibility evaluation settings
type SchedulerConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// GeolocationConfig holds the position request policy and provider choice
type GeolocationConfig struct {
	// Provider is one of "feed", "static" or "none".
	Provider     string        `json:"provider" mapstructure:"provider"`
	Static       string        `json:"static" mapstructure:"static"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	MaximumAge   time.Duration `json:"maximumAge" mapstructure:"maximumAge"`
	HighAccuracy bool          `json:"highAccuracy" mapstructure:"highAccuracy"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr      string `json:"addr" mapstructure:"addr"`
	StaticDir string `json:"staticDir" mapstructure:"staticDir"`
}

// MemoryConfig holds JSON file export settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite export settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// DSN returns the Postgres connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// S3Config holds object store export settings
type S3Config struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"accessKey" mapstructure:"accessKey"`
	SecretKey string `json:"secretKey" mapstructure:"secretKey"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	Prefix    string `json:"prefix" mapstructure:"prefix"`
	UseSSL    bool   `json:"useSSL" mapstructure:"useSSL"`
}

// WebSocketConfig holds collector streaming settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the export backend
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Postgres  PostgresConfig  `json:"postgres" mapstructure:"postgres"`
	S3        S3Config        `json:"s3" mapstructure:"s3"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// InfluxConfig holds distance telemetry settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the InfluxDB server address.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./placerlogs")

	viper.SetDefault("scheduler.interval", "1s")

	viper.SetDefault("geolocation.provider", "feed")
	viper.SetDefault("geolocation.static", "")
	viper.SetDefault("geolocation.timeout", "5s")
	viper.SetDefault("geolocation.maximumAge", "10s")
	viper.SetDefault("geolocation.highAccuracy", true)

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.staticDir", "./web")

	viper.SetDefault("places.snapshot", "")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./exports")
	viper.SetDefault("storage.memory.compressOutput", false)
	viper.SetDefault("storage.sqlite.path", "./exports/placer.db")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "placer")
	viper.SetDefault("storage.s3.endpoint", "localhost:9000")
	viper.SetDefault("storage.s3.bucket", "placer")
	viper.SetDefault("storage.s3.prefix", "exports")
	viper.SetDefault("storage.s3.useSSL", false)
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "placer-metrics")
	viper.SetDefault("influx.bucket", "placer")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Environment
// variables prefixed with PLACER override file values.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// LoadDefaults sets default values without reading a file.
func LoadDefaults() {
	setDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSchedulerConfig returns the scheduler settings.
func GetSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: viper.GetDuration("scheduler.interval"),
	}
}

// GetGeolocationConfig returns the geolocation settings.
func GetGeolocationConfig() GeolocationConfig {
	return GeolocationConfig{
		Provider:     viper.GetString("geolocation.provider"),
		Static:       viper.GetString("geolocation.static"),
		Timeout:      viper.GetDuration("geolocation.timeout"),
		MaximumAge:   viper.GetDuration("geolocation.maximumAge"),
		HighAccuracy: viper.GetBool("geolocation.highAccuracy"),
	}
}

// GetServerConfig returns the HTTP listener settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      viper.GetString("server.addr"),
		StaticDir: viper.GetString("server.staticDir"),
	}
}

// GetStorageConfig returns the export backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
		S3: S3Config{
			Endpoint:  viper.GetString("storage.s3.endpoint"),
			AccessKey: viper.GetString("storage.s3.accessKey"),
			SecretKey: viper.GetString("storage.s3.secretKey"),
			Bucket:    viper.GetString("storage.s3.bucket"),
			Prefix:    viper.GetString("storage.s3.prefix"),
			UseSSL:    viper.GetBool("storage.s3.useSSL"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetInfluxConfig returns the telemetry settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}
