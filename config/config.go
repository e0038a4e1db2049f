package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Cluster     ClusterConfig     `json:"cluster" yaml:"cluster"`
	Coordinator CoordinatorConfig `json:"coordinator" yaml:"coordinator"`
	Peer        PeerConfig        `json:"peer" yaml:"peer"`
	Sessions    SessionsConfig    `json:"sessions" yaml:"sessions"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	NATS        NATSConfig        `json:"nats" yaml:"nats"`
	API         APIConfig         `json:"api" yaml:"api"`
	Logging     LogConfig         `json:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

type ClusterConfig struct {
	ID string `json:"id" yaml:"id"` // cluster identity served when none is given
}

type CoordinatorConfig struct {
	Workers       int    `json:"workers" yaml:"workers"`             // mailbox workers, 1 = strictly ordered
	QueueSize     int    `json:"queueSize" yaml:"queueSize"`         // mailbox capacity
	FlushDelay    string `json:"flushDelay" yaml:"flushDelay"`       // first flush after activation
	FlushInterval string `json:"flushInterval" yaml:"flushInterval"` // flush period afterwards
	IdleTimeout   string `json:"idleTimeout" yaml:"idleTimeout"`     // "0s" keeps coordinators until shutdown
}

type PeerConfig struct {
	ConnectTimeout    string    `json:"connectTimeout" yaml:"connectTimeout"` // "0s" waits forever
	PublishTimeout    string    `json:"publishTimeout" yaml:"publishTimeout"`
	DisconnectQuiesce uint      `json:"disconnectQuiesce" yaml:"disconnectQuiesce"` // milliseconds
	TLS               TLSConfig `json:"tls" yaml:"tls"`
}

type TLSConfig struct {
	CertFile           string `json:"certFile" yaml:"certFile"`
	KeyFile            string `json:"keyFile" yaml:"keyFile"`
	CAFile             string `json:"caFile" yaml:"caFile"`
	InsecureSkipVerify bool   `json:"insecureSkipVerify" yaml:"insecureSkipVerify"`
}

type SessionsConfig struct {
	PolicyDir string       `json:"policyDir" yaml:"policyDir"`
	Users     []UserConfig `json:"users" yaml:"users"`
}

// UserConfig describes one identity allowed to talk to the cluster.
type UserConfig struct {
	Username       string   `json:"username" yaml:"username"`
	Password       string   `json:"password,omitempty" yaml:"password,omitempty"`
	PasswordHash   string   `json:"passwordHash,omitempty" yaml:"passwordHash,omitempty"` // bcrypt
	ClientIDPrefix string   `json:"clientIdPrefix,omitempty" yaml:"clientIdPrefix,omitempty"`
	Publish        []string `json:"publish" yaml:"publish"`
	Subscribe      []string `json:"subscribe" yaml:"subscribe"`
	Replication    bool     `json:"replication" yaml:"replication"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"` // sqlite or bolt
	Path   string `json:"path" yaml:"path"`
}

type NATSConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	URLs          []string `json:"urls" yaml:"urls"`
	ClientID      string   `json:"clientId" yaml:"clientId"`
	Username      string   `json:"username" yaml:"username"`
	Password      string   `json:"password" yaml:"password"`
	SubjectPrefix string   `json:"subjectPrefix" yaml:"subjectPrefix"`
}

type APIConfig struct {
	Address string `json:"address" yaml:"address"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`           // debug, info, warn, error
	OutputPath string `json:"outputPath" yaml:"outputPath"` // file path, "stdout" or "stderr"
	Encoding   string `json:"encoding" yaml:"encoding"`     // json or console
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Address        string `json:"address" yaml:"address"`
	Path           string `json:"path" yaml:"path"`
	UpdateInterval string `json:"updateInterval" yaml:"updateInterval"` // Duration string
}

// Load reads and parses the configuration file. Files ending in .json are
// decoded as JSON, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &config)
	} else {
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults fills every unset field with its default value
func (c *Config) SetDefaults() {
	if c.Cluster.ID == "" {
		c.Cluster.ID = "default"
	}

	if c.Coordinator.Workers <= 0 {
		c.Coordinator.Workers = 1
	}
	if c.Coordinator.QueueSize <= 0 {
		c.Coordinator.QueueSize = 1000
	}
	if c.Coordinator.FlushDelay == "" {
		c.Coordinator.FlushDelay = "5s"
	}
	if c.Coordinator.FlushInterval == "" {
		c.Coordinator.FlushInterval = "20s"
	}
	if c.Coordinator.IdleTimeout == "" {
		c.Coordinator.IdleTimeout = "1h"
	}

	if c.Peer.ConnectTimeout == "" {
		c.Peer.ConnectTimeout = "10s"
	}
	if c.Peer.PublishTimeout == "" {
		c.Peer.PublishTimeout = "5s"
	}
	if c.Peer.DisconnectQuiesce == 0 {
		c.Peer.DisconnectQuiesce = 250
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "mqtt-cluster.db"
	}

	if c.NATS.ClientID == "" {
		c.NATS.ClientID = "mqtt-cluster"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "mqtt-cluster"
	}

	if c.API.Address == "" {
		c.API.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == "" {
		c.Metrics.UpdateInterval = "15s"
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	if cfg.Coordinator.Workers < 1 {
		return fmt.Errorf("coordinator workers must be greater than 0")
	}
	if cfg.Coordinator.QueueSize < 1 {
		return fmt.Errorf("coordinator queue size must be greater than 0")
	}
	if d, err := time.ParseDuration(cfg.Coordinator.FlushDelay); err != nil || d < 0 {
		return fmt.Errorf("invalid coordinator flush delay: %q", cfg.Coordinator.FlushDelay)
	}
	if d, err := time.ParseDuration(cfg.Coordinator.FlushInterval); err != nil || d <= 0 {
		return fmt.Errorf("invalid coordinator flush interval: %q", cfg.Coordinator.FlushInterval)
	}
	if d, err := time.ParseDuration(cfg.Coordinator.IdleTimeout); err != nil || d < 0 {
		return fmt.Errorf("invalid coordinator idle timeout: %q", cfg.Coordinator.IdleTimeout)
	}

	if d, err := time.ParseDuration(cfg.Peer.ConnectTimeout); err != nil || d < 0 {
		return fmt.Errorf("invalid peer connect timeout: %q", cfg.Peer.ConnectTimeout)
	}
	if d, err := time.ParseDuration(cfg.Peer.PublishTimeout); err != nil || d < 0 {
		return fmt.Errorf("invalid peer publish timeout: %q", cfg.Peer.PublishTimeout)
	}
	if (cfg.Peer.TLS.CertFile == "") != (cfg.Peer.TLS.KeyFile == "") {
		return fmt.Errorf("peer tls cert file and key file must be set together")
	}

	if err := validateUsers(cfg.Sessions.Users); err != nil {
		return err
	}

	switch cfg.Storage.Driver {
	case "sqlite", "bolt":
	default:
		return fmt.Errorf("invalid storage driver: %s", cfg.Storage.Driver)
	}

	if cfg.NATS.Enabled && len(cfg.NATS.URLs) == 0 {
		return fmt.Errorf("nats urls are required when nats is enabled")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	return nil
}

func validateUsers(users []UserConfig) error {
	seen := make(map[string]struct{}, len(users))
	for i, u := range users {
		if u.Username == "" {
			return fmt.Errorf("user %d: username is required", i)
		}
		if _, dup := seen[u.Username]; dup {
			return fmt.Errorf("user %s defined more than once", u.Username)
		}
		seen[u.Username] = struct{}{}
		if u.Password != "" && u.PasswordHash != "" {
			return fmt.Errorf("user %s: password and passwordHash are mutually exclusive", u.Username)
		}
	}
	return nil
}

// FlushDelayDuration returns the parsed delay before the first flush
func (c *CoordinatorConfig) FlushDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.FlushDelay)
	return d
}

// FlushIntervalDuration returns the parsed period between flushes
func (c *CoordinatorConfig) FlushIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.FlushInterval)
	return d
}

func (c *CoordinatorConfig) IdleTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	return d
}

func (c *PeerConfig) ConnectTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnectTimeout)
	return d
}

func (c *PeerConfig) PublishTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.PublishTimeout)
	return d
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(workers, queueSize int, apiAddr, metricsAddr, metricsPath string, metricsInterval time.Duration) {
	if workers > 0 {
		c.Coordinator.Workers = workers
	}
	if queueSize > 0 {
		c.Coordinator.QueueSize = queueSize
	}
	if apiAddr != "" {
		c.API.Address = apiAddr
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
	if metricsInterval > 0 {
		c.Metrics.UpdateInterval = metricsInterval.String()
	}
}
