package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings coordinator. Components receive their
// section by injection; nothing reads the environment after startup.
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Database  *DatabaseConfig  `json:"database"`
	Auth      *AuthConfig      `json:"auth"`
	Heartbeat *HeartbeatConfig `json:"heartbeat"`
	Channel   *ChannelConfig   `json:"channel"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// AuthConfig holds the shared process password. An empty password disables
// the password authentication path entirely.
type AuthConfig struct {
	ProcessPassword string `json:"process_password"`
}

// HeartbeatConfig drives the aggregator. PollCommander gates the
// commander-poll loop; when disabled, Commander liveness only ever arrives
// through relayed producer traffic.
type HeartbeatConfig struct {
	Period        time.Duration `json:"period"`
	CommanderURL  string        `json:"commander_url"`
	PollCommander bool          `json:"poll_commander"`
	PollTimeout   time.Duration `json:"poll_timeout"`
}

// ChannelConfig selects the channel layer backend. An empty NATS URL means
// the in-process local layer.
type ChannelConfig struct {
	NATSURL string `json:"nats_url"`
}

// DefaultConfig returns production defaults: HTTP on 8080, 3-second
// heartbeat period, commander polling off, local channel layer.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Database: &DatabaseConfig{
			Path:    "./watchtower.db",
			Timeout: 30 * time.Second,
		},
		Auth: &AuthConfig{
			ProcessPassword: "",
		},
		Heartbeat: &HeartbeatConfig{
			Period:        3 * time.Second,
			CommanderURL:  "",
			PollCommander: false,
			PollTimeout:   5 * time.Second,
		},
		Channel: &ChannelConfig{
			NATSURL: "",
		},
	}
}

// Validate checks the configuration before any component is constructed.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket timeouts must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if c.Heartbeat == nil {
		return fmt.Errorf("heartbeat configuration is required")
	}
	if c.Heartbeat.Period <= 0 {
		return fmt.Errorf("heartbeat period must be positive")
	}
	if c.Heartbeat.PollTimeout <= 0 {
		return fmt.Errorf("heartbeat poll timeout must be positive")
	}
	if c.Heartbeat.PollCommander && c.Heartbeat.CommanderURL == "" {
		return fmt.Errorf("commander polling enabled but commander URL is empty")
	}
	if c.Channel == nil {
		return fmt.Errorf("channel configuration is required")
	}
	return nil
}

// LoadFromEnv overlays WATCHTOWER_* environment variables on the defaults.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if host := os.Getenv("WATCHTOWER_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if port := os.Getenv("WATCHTOWER_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if readTimeout := os.Getenv("WATCHTOWER_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("WATCHTOWER_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}
	if pingInterval := os.Getenv("WATCHTOWER_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if wsReadTimeout := os.Getenv("WATCHTOWER_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if timeout, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if wsWriteTimeout := os.Getenv("WATCHTOWER_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if bufferSize := os.Getenv("WATCHTOWER_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}
	if dbPath := os.Getenv("WATCHTOWER_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("WATCHTOWER_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}
	if password := os.Getenv("WATCHTOWER_PROCESS_PASSWORD"); password != "" {
		config.Auth.ProcessPassword = password
	}
	if period := os.Getenv("WATCHTOWER_HEARTBEAT_PERIOD"); period != "" {
		if d, err := time.ParseDuration(period); err == nil {
			config.Heartbeat.Period = d
		}
	}
	if url := os.Getenv("WATCHTOWER_COMMANDER_HEARTBEAT_URL"); url != "" {
		config.Heartbeat.CommanderURL = url
	}
	if poll := os.Getenv("WATCHTOWER_COMMANDER_POLL"); poll != "" {
		if enabled, err := strconv.ParseBool(poll); err == nil {
			config.Heartbeat.PollCommander = enabled
		}
	}
	if pollTimeout := os.Getenv("WATCHTOWER_COMMANDER_POLL_TIMEOUT"); pollTimeout != "" {
		if timeout, err := time.ParseDuration(pollTimeout); err == nil {
			config.Heartbeat.PollTimeout = timeout
		}
	}
	if natsURL := os.Getenv("WATCHTOWER_NATS_URL"); natsURL != "" {
		config.Channel.NATSURL = natsURL
	}

	return config
}

// ConfigFile is the JSON structure for file-based configuration. Durations
// are strings so operators can write "3s" rather than nanosecond counts.
type ConfigFile struct {
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Database  *DatabaseConfigFile  `json:"database"`
	Auth      *AuthConfig          `json:"auth"`
	Heartbeat *HeartbeatConfigFile `json:"heartbeat"`
	Channel   *ChannelConfig       `json:"channel"`
}

type HTTPConfigFile struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HeartbeatConfigFile struct {
	Period        string `json:"period"`
	CommanderURL  string `json:"commander_url"`
	PollCommander *bool  `json:"poll_commander"`
	PollTimeout   string `json:"poll_timeout"`
}

// LoadFromFile overlays a JSON configuration file on the defaults and
// validates the result.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.HTTP != nil {
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if timeout, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
		if timeout, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		if interval, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
		if timeout, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
		if timeout, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		if timeout, err := time.ParseDuration(configFile.Database.Timeout); err == nil {
			config.Database.Timeout = timeout
		}
	}

	if configFile.Auth != nil {
		config.Auth = configFile.Auth
	}

	if configFile.Heartbeat != nil {
		if d, err := time.ParseDuration(configFile.Heartbeat.Period); err == nil {
			config.Heartbeat.Period = d
		}
		if configFile.Heartbeat.CommanderURL != "" {
			config.Heartbeat.CommanderURL = configFile.Heartbeat.CommanderURL
		}
		if configFile.Heartbeat.PollCommander != nil {
			config.Heartbeat.PollCommander = *configFile.Heartbeat.PollCommander
		}
		if timeout, err := time.ParseDuration(configFile.Heartbeat.PollTimeout); err == nil {
			config.Heartbeat.PollTimeout = timeout
		}
	}

	if configFile.Channel != nil {
		config.Channel = configFile.Channel
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. File errors are ignored so environment and defaults still work.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
