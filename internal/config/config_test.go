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

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"sim": { "tickRate": 30 },
		"transport": { "listen": ":9000" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 30, viper.GetInt("sim.tickRate"))
	assert.Equal(t, ":9000", viper.GetString("transport.listen"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./skirmishlogs", viper.GetString("logsDir"))
	assert.Equal(t, 20, viper.GetInt("sim.tickRate"))
	assert.Equal(t, 5, viper.GetInt("sim.catchupMaxTicks"))
	assert.Equal(t, 10, viper.GetInt("sim.maxLevels"))
	assert.Equal(t, "periodic", viper.GetString("replication.statusSync"))
	assert.Equal(t, "memory", viper.GetString("journal.type"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "skirmish-metrics", viper.GetString("influx.org"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, "skirmish", viper.GetString("otel.serviceName"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
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

func TestGetPerceptionConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := GetPerceptionConfig()
	assert.Equal(t, 8.0, cfg.SightRadius)
	assert.Equal(t, 2.0, cfg.AttackRadius)
}

func TestGetReplicationConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"replication": { "statusSync": "change", "inboxSize": 64, "maxMessagesPerTick": 500 }
	}`)))

	rc := GetReplicationConfig()
	assert.Equal(t, "change", rc.StatusSync)
	assert.Equal(t, 64, rc.InboxSize)
	assert.Equal(t, 500, rc.MaxMessagesPerTick)
}

func TestGetTransportConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	tc := GetTransportConfig()
	assert.Equal(t, ":7777", tc.Listen)
	assert.Equal(t, "/replication", tc.Path)
	assert.Equal(t, "ws://localhost:7777/replication", tc.URL)
	assert.Empty(t, tc.Secret)
	assert.Equal(t, time.Minute, tc.LeaveGrace)
}

func TestGetJournalConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"journal": { "type": "sqlite", "sqlite": { "name": "match42" } }
	}`)))

	jc := GetJournalConfig()
	assert.Equal(t, "sqlite", jc.Type)
	assert.Equal(t, "match42", jc.SQLite.Name)
}

func TestGetInfluxConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "localhost", ic.Host)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "http", ic.Protocol)
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "skirmish", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "my-service",
			"batchTimeout": "30s",
			"endpoint": "localhost:4317",
			"insecure": false
		}
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetMonitorConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()
	assert.Equal(t, 10*time.Second, GetMonitorConfig().Interval)

	viper.Set("monitor.interval", "1m")
	assert.Equal(t, time.Minute, GetMonitorConfig().Interval)
}
