package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of the gateway configuration tree, one field per
// config.yaml section. Environment variables override the file values.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	WiSUN     WiSUNConfig     `yaml:"wisun"`
	Meter     MeterConfig     `yaml:"meter"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GatewayConfig identifies this gateway instance.
type GatewayConfig struct {
	// ID is a stable identifier used in MQTT topics and discovery payloads.
	ID string `yaml:"id"`

	// Name is the human-readable gateway name.
	Name string `yaml:"name"`
}

// WiSUNConfig contains Wi-SUN module connection settings.
type WiSUNConfig struct {
	// Device is the connection URL for the Wi-SUN module.
	// Supported formats:
	//   - "serial:///dev/ttyUSB0" (local serial device)
	//   - "tcp://192.168.1.50:2001" (serial exposed via ser2net)
	Device string `yaml:"device"`

	// BaudRate is the serial line speed. Default: 115200.
	BaudRate int `yaml:"baud_rate"`

	// RouteBID is the 32-character B-route authentication ID issued by
	// the utility company.
	RouteBID string `yaml:"route_b_id"`

	// RouteBPassword is the B-route password issued with the ID.
	RouteBPassword string `yaml:"route_b_password"`

	// CommandTimeout is the per-command response timeout in seconds.
	CommandTimeout int `yaml:"command_timeout"`

	// ScanTimeout bounds one active scan attempt in seconds. The scan
	// retries with longer listen durations, so a full search can take
	// several attempts.
	ScanTimeout int `yaml:"scan_timeout"`

	// JoinTimeout bounds the PANA join handshake in seconds.
	JoinTimeout int `yaml:"join_timeout"`
}

// MeterConfig contains smart meter polling settings.
type MeterConfig struct {
	// PollInterval is how often the meter is polled, in seconds.
	PollInterval int `yaml:"poll_interval"`

	// RequestTimeout is how long to wait for a meter response, in seconds.
	RequestTimeout int `yaml:"request_timeout"`

	// Discovery enables Home Assistant MQTT discovery publication.
	Discovery bool `yaml:"discovery"`

	// DiscoveryPrefix is the discovery topic prefix. Default: "homeassistant".
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// MQTTConfig covers the broker connection, credentials, default QoS
// and reconnect backoff.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig identifies the broker and how to reach it.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig holds broker credentials. Empty username means
// anonymous access.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig configures the optional time-series sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig locates the SQLite reading history store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays is how long reading history is kept. 0 disables pruning.
	RetentionDays int `yaml:"retention_days"`
}

// APIConfig configures the HTTP listener and its auth secret.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// AuthSecret enables bearer-token authentication when non-empty.
	// Tokens are HMAC-signed JWTs; see the api package.
	AuthSecret string `yaml:"auth_secret"`
}

// TLSConfig points at the certificate pair when TLS is enabled.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains settings for the live readings stream.
type WebSocketConfig struct {
	Path         string `yaml:"path"`
	PingInterval int    `yaml:"ping_interval"`
	PongTimeout  int    `yaml:"pong_timeout"`
}

// LoggingConfig selects log level, format and destination.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the effective configuration: hardcoded defaults first,
// the YAML file on top, then WISUN_SECTION_KEY environment variables
// (WISUN_MQTT_PASSWORD, WISUN_ROUTE_B_ID, ...) over both. The result
// is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig is the baseline every deployment starts from.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ID:   "wisun-gateway",
			Name: "Wi-SUN Gateway",
		},
		WiSUN: WiSUNConfig{
			BaudRate:       115200,
			CommandTimeout: 10,
			ScanTimeout:    180,
			JoinTimeout:    60,
		},
		Meter: MeterConfig{
			PollInterval:    30,
			RequestTimeout:  15,
			Discovery:       true,
			DiscoveryPrefix: "homeassistant",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wisun-gateway",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:          "./data/wisun-gateway.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:         "/ws",
			PingInterval: 30,
			PongTimeout:  10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides layers WISUN_* environment variables over the
// file values, mainly so secrets can stay out of the file.
// Environment variables follow the pattern: WISUN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Wi-SUN module and B-route credentials
	if v := os.Getenv("WISUN_DEVICE"); v != "" {
		cfg.WiSUN.Device = v
	}
	if v := os.Getenv("WISUN_ROUTE_B_ID"); v != "" {
		cfg.WiSUN.RouteBID = v
	}
	if v := os.Getenv("WISUN_ROUTE_B_PASSWORD"); v != "" {
		cfg.WiSUN.RouteBPassword = v
	}

	// MQTT
	if v := os.Getenv("WISUN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WISUN_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("WISUN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WISUN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("WISUN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("WISUN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API auth secret (keep out of the config file in production)
	if v := os.Getenv("WISUN_API_AUTH_SECRET"); v != "" {
		cfg.API.AuthSecret = v
	}
}

// Validate collects every configuration problem into one error so an
// operator fixes a broken file in a single pass.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.ID == "" {
		errs = append(errs, "gateway.id is required")
	}

	// Wi-SUN validation: the module address and B-route credentials are
	// mandatory, nothing works without them.
	if c.WiSUN.Device == "" {
		errs = append(errs, "wisun.device is required (set WISUN_DEVICE)")
	}
	const routeBIDLength = 32
	if c.WiSUN.RouteBID == "" {
		errs = append(errs, "wisun.route_b_id is required (set WISUN_ROUTE_B_ID)")
	} else if len(c.WiSUN.RouteBID) != routeBIDLength {
		errs = append(errs, "wisun.route_b_id must be exactly 32 characters")
	}
	if c.WiSUN.RouteBPassword == "" {
		errs = append(errs, "wisun.route_b_password is required (set WISUN_ROUTE_B_PASSWORD)")
	}

	if c.Meter.PollInterval < 1 {
		errs = append(errs, "meter.poll_interval must be at least 1 second")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// A short HMAC secret is worse than none: it looks secure while
	// inviting brute-forced tokens.
	const minAuthSecretLength = 32
	if c.API.AuthSecret != "" && len(c.API.AuthSecret) < minAuthSecretLength {
		errs = append(errs, "api.auth_secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetCommandTimeout returns the Wi-SUN command timeout as a Duration.
func (c *WiSUNConfig) GetCommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Second
}

// GetScanTimeout returns the per-attempt PAN scan timeout as a Duration.
func (c *WiSUNConfig) GetScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeout) * time.Second
}

// GetJoinTimeout returns the PANA join timeout as a Duration.
func (c *WiSUNConfig) GetJoinTimeout() time.Duration {
	return time.Duration(c.JoinTimeout) * time.Second
}

// GetPollInterval returns the meter poll interval as a Duration.
func (c *MeterConfig) GetPollInterval() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// GetRequestTimeout returns the meter request timeout as a Duration.
func (c *MeterConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetReadTimeout converts the configured read timeout to a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout converts the configured write timeout to a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout converts the configured idle timeout to a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
