package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"server": { "addr": ":9090" },
		"geolocation": { "provider": "static", "static": "1.5,103.5" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, ":9090", viper.GetString("server.addr"))
	assert.Equal(t, "static", viper.GetString("geolocation.provider"))
	assert.Equal(t, "1.5,103.5", viper.GetString("geolocation.static"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./placerlogs", viper.GetString("logsDir"))
	assert.Equal(t, "1s", viper.GetString("scheduler.interval"))
	assert.Equal(t, "feed", viper.GetString("geolocation.provider"))
	assert.Equal(t, ":8080", viper.GetString("server.addr"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, "./exports", viper.GetString("storage.memory.outputDir"))
	assert.Equal(t, false, viper.GetBool("storage.memory.compressOutput"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "placer-metrics", viper.GetString("influx.org"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("PLACER_SERVER_ADDR", ":7070")
	t.Setenv("PLACER_STORAGE_TYPE", "sqlite")

	require.NoError(t, Load(writeConfig(t, `{"server": {"addr": ":9090"}}`)))

	assert.Equal(t, ":7070", GetServerConfig().Addr)
	assert.Equal(t, "sqlite", GetStorageConfig().Type)
}

func TestLoadDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	LoadDefaults()
	assert.Equal(t, time.Second, GetSchedulerConfig().Interval)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetGeolocationConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetGeolocationConfig()
	assert.Equal(t, "feed", cfg.Provider)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Second, cfg.MaximumAge)
	assert.True(t, cfg.HighAccuracy)
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./exports", cfg.Memory.OutputDir)
	assert.Equal(t, "./exports/placer.db", cfg.SQLite.Path)
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=placer sslmode=disable", cfg.Postgres.DSN())
	assert.Equal(t, "placer", cfg.S3.Bucket)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"storage": {
			"type": "s3",
			"memory": { "outputDir": "/tmp/out", "compressOutput": true },
			"s3": { "endpoint": "minio:9000", "bucket": "anchors", "useSSL": true }
		}
	}`)
	require.NoError(t, Load(dir))

	sc := GetStorageConfig()
	assert.Equal(t, "s3", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, true, sc.Memory.CompressOutput)
	assert.Equal(t, "minio:9000", sc.S3.Endpoint)
	assert.Equal(t, "anchors", sc.S3.Bucket)
	assert.Equal(t, true, sc.S3.UseSSL)
}

func TestGetSchedulerConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"scheduler": {"interval": "250ms"}}`)))

	assert.Equal(t, 250*time.Millisecond, GetSchedulerConfig().Interval)
}

func TestGetInfluxConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"influx": {"enabled": true, "host": "influx", "protocol": "https"}}`)))

	cfg := GetInfluxConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "https://influx:8086", cfg.URL())
	assert.Equal(t, "placer", cfg.Bucket)
}

func TestGetGraylogConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"graylog": {"enabled": true, "address": "graylog:12201"}}`)))

	cfg := GetGraylogConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "graylog:12201", cfg.Address)
}
