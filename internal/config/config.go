package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the name of the config file looked up in the config dir.
const FileName = "skirmish.cfg.json"

// SimConfig holds tick loop settings.
type SimConfig struct {
	TickRate        int `json:"tickRate" mapstructure:"tickRate"`
	CatchupMaxTicks int `json:"catchupMaxTicks" mapstructure:"catchupMaxTicks"`
	MaxLevels       int `json:"maxLevels" mapstructure:"maxLevels"`
}

// PerceptionConfig holds the sight and attack radii.
type PerceptionConfig struct {
	SightRadius  float64 `json:"sightRadius" mapstructure:"sightRadius"`
	AttackRadius float64 `json:"attackRadius" mapstructure:"attackRadius"`
}

// ReplicationConfig holds replication node settings.
type ReplicationConfig struct {
	StatusSync         string `json:"statusSync" mapstructure:"statusSync"`
	InboxSize          int    `json:"inboxSize" mapstructure:"inboxSize"`
	MaxMessagesPerTick int    `json:"maxMessagesPerTick" mapstructure:"maxMessagesPerTick"`
}

// TransportConfig holds websocket settings. Listen is used by the host,
// URL by mirrors.
type TransportConfig struct {
	Listen string `json:"listen" mapstructure:"listen"`
	Path   string `json:"path" mapstructure:"path"`
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`

	// LeaveGrace is how long the host waits for a dropped mirror to come
	// back before destroying the units it spawned.
	LeaveGrace time.Duration `json:"leaveGrace" mapstructure:"leaveGrace"`
}

// JournalConfig selects the broadcast journal backend.
type JournalConfig struct {
	Type   string `json:"type" mapstructure:"type"`
	SQLite struct {
		Name string `json:"name" mapstructure:"name"`
	} `json:"sqlite" mapstructure:"sqlite"`
}

// InfluxConfig holds InfluxDB telemetry settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
}

// GraylogConfig holds GELF log shipping settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// MonitorConfig holds the status report settings.
type MonitorConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// SetDefaults registers the default of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./skirmishlogs")
	viper.SetDefault("scenario", "")

	viper.SetDefault("sim.tickRate", 20)
	viper.SetDefault("sim.catchupMaxTicks", 5)
	viper.SetDefault("sim.maxLevels", 10)

	viper.SetDefault("perception.sightRadius", 8.0)
	viper.SetDefault("perception.attackRadius", 2.0)

	viper.SetDefault("replication.statusSync", "periodic")
	viper.SetDefault("replication.inboxSize", 10_000)
	viper.SetDefault("replication.maxMessagesPerTick", 0)

	viper.SetDefault("transport.listen", ":7777")
	viper.SetDefault("transport.path", "/replication")
	viper.SetDefault("transport.url", "ws://localhost:7777/replication")
	viper.SetDefault("transport.secret", "")
	viper.SetDefault("transport.leaveGrace", "60s")

	viper.SetDefault("journal.type", "memory")
	viper.SetDefault("journal.sqlite.name", "skirmish_journal")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "skirmish-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "skirmish")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.interval", "10s")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
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

// GetSimConfig returns the tick loop configuration.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickRate:        viper.GetInt("sim.tickRate"),
		CatchupMaxTicks: viper.GetInt("sim.catchupMaxTicks"),
		MaxLevels:       viper.GetInt("sim.maxLevels"),
	}
}

// GetPerceptionConfig returns the perception radii.
func GetPerceptionConfig() PerceptionConfig {
	return PerceptionConfig{
		SightRadius:  viper.GetFloat64("perception.sightRadius"),
		AttackRadius: viper.GetFloat64("perception.attackRadius"),
	}
}

// GetReplicationConfig returns the replication node configuration.
func GetReplicationConfig() ReplicationConfig {
	return ReplicationConfig{
		StatusSync:         viper.GetString("replication.statusSync"),
		InboxSize:          viper.GetInt("replication.inboxSize"),
		MaxMessagesPerTick: viper.GetInt("replication.maxMessagesPerTick"),
	}
}

// GetTransportConfig returns the websocket configuration.
func GetTransportConfig() TransportConfig {
	return TransportConfig{
		Listen:     viper.GetString("transport.listen"),
		Path:       viper.GetString("transport.path"),
		URL:        viper.GetString("transport.url"),
		Secret:     viper.GetString("transport.secret"),
		LeaveGrace: viper.GetDuration("transport.leaveGrace"),
	}
}

// GetJournalConfig returns the journal configuration.
func GetJournalConfig() JournalConfig {
	var cfg JournalConfig
	cfg.Type = viper.GetString("journal.type")
	cfg.SQLite.Name = viper.GetString("journal.sqlite.name")
	return cfg
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}

// GetGraylogConfig returns the GELF configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetMonitorConfig returns the status report configuration.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval: viper.GetDuration("monitor.interval"),
	}
}
