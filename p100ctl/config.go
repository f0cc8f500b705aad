package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/siegeld/steinway-lyngdorf/mediaapi"
	"github.com/siegeld/steinway-lyngdorf/mqttbridge"
	"github.com/siegeld/steinway-lyngdorf/p100protocol"
)

// Config is the p100ctl configuration file.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Media   MediaConfig   `yaml:"media"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Monitor MonitorConfig `yaml:"monitor"`
	Log     LogConfig     `yaml:"log"`
}

type DeviceConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Serial   string `yaml:"serial"`
	Baud     int    `yaml:"baud"`
	Timeout  string `yaml:"timeout"`
	Feedback *int   `yaml:"feedback"`
}

type MediaConfig struct {
	Host string `yaml:"host"` // defaults to device.host
	Port int    `yaml:"port"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

type MonitorConfig struct {
	WSAddr string `yaml:"ws_addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// defaultConfigPath returns $XDG_CONFIG_HOME/p100ctl/config.yaml.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "p100ctl", "config.yaml")
}

// Load reads and parses a config file. ${VAR} references are expanded from
// the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// loadConfig loads path, or the default path when empty, and applies
// environment overrides. A missing default file is not an error.
func loadConfig(path string, getenv func(string) string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	cfg := &Config{}
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
		case !explicit && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("STEINWAY_HOST"); v != "" {
		c.Device.Host = v
	}
	if v := getenv("STEINWAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STEINWAY_PORT: %w", err)
		}
		c.Device.Port = port
	}
	if v := getenv("STEINWAY_SERIAL"); v != "" {
		c.Device.Serial = v
	}
	if v := getenv("STEINWAY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// applyArguments lets command-line options override the file and
// environment.
func (c *Config) applyArguments(args arguments) {
	if args.host != "" {
		c.Device.Host = args.host
		c.Device.Serial = ""
	}
	if args.port != 0 {
		c.Device.Port = args.port
	}
	if args.serialPort != "" {
		c.Device.Serial = args.serialPort
	}
	if args.baudRate != 0 {
		c.Device.Baud = args.baudRate
	}
	if args.debug {
		c.Log.Level = "debug"
	}
}

func (c *Config) setDefaults() {
	if c.Device.Port == 0 {
		c.Device.Port = p100protocol.DefaultTCPPort
	}
	if c.Device.Baud == 0 {
		c.Device.Baud = p100protocol.DefaultBaudRate
	}
	if c.Device.Timeout == "" {
		c.Device.Timeout = p100protocol.DefaultTimeout.String()
	}
	if c.Media.Port == 0 {
		c.Media.Port = mediaapi.DefaultPort
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = mqttbridge.DefaultTopicPrefix
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// timeout parses device.timeout, falling back to the protocol default.
func (c *Config) timeout() time.Duration {
	d, err := time.ParseDuration(c.Device.Timeout)
	if err != nil || d <= 0 {
		return p100protocol.DefaultTimeout
	}
	return d
}

// feedbackLevel returns device.feedback when set.
func (c *Config) feedbackLevel() (*p100protocol.FeedbackLevel, error) {
	if c.Device.Feedback == nil {
		return nil, nil
	}
	level := p100protocol.FeedbackLevel(*c.Device.Feedback)
	if level < p100protocol.FeedbackMinimal || level > p100protocol.FeedbackEcho {
		return nil, fmt.Errorf("device.feedback must be 0, 1 or 2, got %d", *c.Device.Feedback)
	}
	return &level, nil
}

// mediaHost returns the HTTP side-channel host.
func (c *Config) mediaHost() string {
	if c.Media.Host != "" {
		return c.Media.Host
	}
	return c.Device.Host
}

func setupLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
