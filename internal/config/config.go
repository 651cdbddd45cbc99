package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds client configuration values.
type Config struct {
	LogLevel string  `mapstructure:"log_level" yaml:"log_level"`
	Core     Core    `mapstructure:"core" yaml:"core"`
	Session  Session `mapstructure:"session" yaml:"session"`
	History  History `mapstructure:"history" yaml:"history"`
}

// Core describes where the core lives and how to log in.
type Core struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	User      string `mapstructure:"user" yaml:"user"`
	Pass      string `mapstructure:"pass" yaml:"pass"`
	Transport string `mapstructure:"transport" yaml:"transport"`
	Path      string `mapstructure:"path" yaml:"path"`
	TLS       bool   `mapstructure:"tls" yaml:"tls"`
}

// Session tunes the connection state machine.
type Session struct {
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" yaml:"keepalive_interval"`
	BackoffMin        time.Duration `mapstructure:"backoff_min" yaml:"backoff_min"`
	BackoffMax        time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	AuthRetries       int           `mapstructure:"auth_retries" yaml:"auth_retries"`
	CommandQueue      int           `mapstructure:"command_queue" yaml:"command_queue"`
	CommandRate       float64       `mapstructure:"command_rate" yaml:"command_rate"`
	CommandBurst      int           `mapstructure:"command_burst" yaml:"command_burst"`
}

// History configures the local scrollback archive. An empty path disables it.
type History struct {
	Path    string `mapstructure:"path" yaml:"path"`
	Restore int    `mapstructure:"restore" yaml:"restore"`
}

// Transports understood by the client.
const (
	TransportTCP = "tcp"
	TransportWS  = "ws"
	TransportWSS = "wss"
)

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Core: Core{
			Host:      "localhost",
			Port:      7777,
			Transport: TransportTCP,
			Path:      "/core",
		},
		Session: DefaultSession(),
		History: History{Restore: 200},
	}
}

// DefaultSession returns the default state machine tuning.
func DefaultSession() Session {
	return Session{
		ConnectTimeout:    10 * time.Second,
		ReadTimeout:       90 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		BackoffMin:        time.Second,
		BackoffMax:        time.Minute,
		AuthRetries:       2,
		CommandQueue:      64,
		CommandRate:       5,
		CommandBurst:      10,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Core.Host != "" {
		c.Core.Host = other.Core.Host
	}
	if other.Core.Port != 0 {
		c.Core.Port = other.Core.Port
	}
	if other.Core.User != "" {
		c.Core.User = other.Core.User
	}
	if other.Core.Pass != "" {
		c.Core.Pass = other.Core.Pass
	}
	if other.Core.Transport != "" {
		c.Core.Transport = other.Core.Transport
	}
	if other.History.Path != "" {
		c.History.Path = other.History.Path
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Core.Host == "" {
		return errors.New("core.host is required")
	}
	if c.Core.Port <= 0 || c.Core.Port > 65535 {
		return fmt.Errorf("core.port %d out of range", c.Core.Port)
	}
	switch c.Core.Transport {
	case TransportTCP, TransportWS, TransportWSS:
	default:
		return fmt.Errorf("unknown core.transport %q", c.Core.Transport)
	}
	s := c.Session
	if s.BackoffMin <= 0 || s.BackoffMax < s.BackoffMin {
		return fmt.Errorf("session backoff range %s..%s is invalid", s.BackoffMin, s.BackoffMax)
	}
	if s.AuthRetries < 0 {
		return errors.New("session.auth_retries must not be negative")
	}
	if s.CommandQueue <= 0 {
		return errors.New("session.command_queue must be positive")
	}
	if s.ConnectTimeout <= 0 || s.ReadTimeout <= 0 {
		return errors.New("session timeouts must be positive")
	}
	return nil
}

// Credentials returns the login data for the core.
func (c Core) Credentials() Credentials {
	return Credentials{Host: c.Host, Port: c.Port, User: c.User, Pass: c.Pass}
}

// Credentials are handed to the session worker as-is. String omits the password.
type Credentials struct {
	Host string
	Port int
	User string
	Pass string
}

// Addr returns host:port.
func (c Credentials) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Credentials) String() string {
	return c.User + "@" + c.Addr()
}

func (c Credentials) GoString() string {
	return "config.Credentials{" + c.String() + "}"
}
