package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/kleeedolinux/socketq/socket"
)

// Config is the CLI configuration stored in ~/.socketq/config.toml.
type Config struct {
	Client ClientConfig `toml:"client"`
	Server ServerConfig `toml:"server"`
}

// ClientConfig drives listen and emit. Durations use time.ParseDuration
// syntax ("25s", "500ms").
type ClientConfig struct {
	URI               string `toml:"uri"`
	Transport         string `toml:"transport"`
	Codec             string `toml:"codec"`
	PingInterval      string `toml:"ping_interval"`
	ReconnectDelay    string `toml:"reconnect_delay"`
	MaxReconnectDelay string `toml:"max_reconnect_delay"`
	ReconnectAttempts int    `toml:"reconnect_attempts"`
	DisconnectPolicy  string `toml:"disconnect_policy"`
}

// ServerConfig drives serve.
type ServerConfig struct {
	Addr         string `toml:"addr"`
	Path         string `toml:"path"`
	Codec        string `toml:"codec"`
	PingInterval string `toml:"ping_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			URI:               "ws://localhost:8080/socket",
			Codec:             "json",
			PingInterval:      "25s",
			ReconnectDelay:    "1s",
			MaxReconnectDelay: "30s",
			ReconnectAttempts: -1,
			DisconnectPolicy:  "discard",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			Path:         "/socket",
			Codec:        "json",
			PingInterval: "25s",
		},
	}
}

// defaultConfigPath returns ~/.socketq/config.toml.
func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".socketq", "config.toml"), nil
}

// loadConfig reads path over the defaults. A missing file yields the
// defaults unchanged.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return cfg, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &socket.ConfigurationError{Field: field, Reason: err.Error()}
	}
	return d, nil
}

func parsePolicy(raw string) (socket.DisconnectPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "discard":
		return socket.DiscardPending, nil
	case "retain":
		return socket.RetainPending, nil
	default:
		return 0, &socket.ConfigurationError{Field: "disconnect_policy", Reason: "expected discard or retain, got " + raw}
	}
}

// clientOptions translates the [client] section into Client options.
func (c ClientConfig) clientOptions() ([]socket.ClientOption, error) {
	codec, err := socket.CodecByName(c.Codec)
	if err != nil {
		return nil, err
	}
	ping, err := parseDuration("ping_interval", c.PingInterval)
	if err != nil {
		return nil, err
	}
	delay, err := parseDuration("reconnect_delay", c.ReconnectDelay)
	if err != nil {
		return nil, err
	}
	maxDelay, err := parseDuration("max_reconnect_delay", c.MaxReconnectDelay)
	if err != nil {
		return nil, err
	}

	opts := []socket.ClientOption{
		socket.WithCodec(codec),
		socket.WithHeartbeatInterval(ping),
		socket.WithReconnectAttempts(c.ReconnectAttempts),
	}
	if delay > 0 {
		opts = append(opts, socket.WithReconnectDelay(delay))
	}
	if maxDelay > 0 {
		opts = append(opts, socket.WithMaxReconnectDelay(maxDelay))
	}
	return opts, nil
}

// managerOptions translates the [client] section into Manager options.
func (c ClientConfig) managerOptions() ([]socket.ManagerOption, error) {
	kind, err := socket.ParseTransportKind(c.Transport)
	if err != nil {
		return nil, err
	}
	policy, err := parsePolicy(c.DisconnectPolicy)
	if err != nil {
		return nil, err
	}

	return []socket.ManagerOption{
		socket.WithDialer(socket.NewDialer(socket.DialConfig{Transport: kind})),
		socket.WithDisconnectPolicy(policy),
	}, nil
}

// serverOptions translates the [server] section into Server options.
func (s ServerConfig) serverOptions() ([]socket.ServerOption, error) {
	codec, err := socket.CodecByName(s.Codec)
	if err != nil {
		return nil, err
	}
	ping, err := parseDuration("ping_interval", s.PingInterval)
	if err != nil {
		return nil, err
	}

	return []socket.ServerOption{
		socket.WithServerCodec(codec),
		socket.WithPingInterval(ping),
	}, nil
}
