package config

import (
	// Go Internal Packages
	"time"

	// Local Packages
	errors "termbridge/errors"
)

var DefaultConfig = []byte(`
application: "termbridge"

logger:
  level: "debug"

is_prod_mode: false

terminal:
  ip: "127.0.0.1"
  port: 9001
  alt_port: 9002
  ecr_id: "1"

timeouts:
  connect_ms: 5000
  read_ms: 180000
  idle_byte_ms: 25000

agent:
  http_port: 3000

emulator:
  port: 9001
  admin_port: 9100
  data_file: "verifone-transactions.json"
  min_delay_ms: 150
  max_delay_ms: 300
`)

type Config struct {
	Application string   `koanf:"application"`
	Logger      Logger   `koanf:"logger"`
	IsProdMode  bool     `koanf:"is_prod_mode"`
	Terminal    Terminal `koanf:"terminal"`
	Timeouts    Timeouts `koanf:"timeouts"`
	Agent       Agent    `koanf:"agent"`
	Emulator    Emulator `koanf:"emulator"`
}

type Logger struct {
	Level string `koanf:"level"`
}

// Terminal holds the default device the agent talks to when a request
// does not name one.
type Terminal struct {
	IP      string `koanf:"ip"`
	Port    int    `koanf:"port"`
	AltPort int    `koanf:"alt_port"`
	EcrID   string `koanf:"ecr_id"`
}

type Timeouts struct {
	ConnectMS  int `koanf:"connect_ms"`
	ReadMS     int `koanf:"read_ms"`
	IdleByteMS int `koanf:"idle_byte_ms"`
}

func (t Timeouts) Connect() time.Duration {
	return time.Duration(t.ConnectMS) * time.Millisecond
}

func (t Timeouts) Read() time.Duration {
	return time.Duration(t.ReadMS) * time.Millisecond
}

func (t Timeouts) IdleByte() time.Duration {
	return time.Duration(t.IdleByteMS) * time.Millisecond
}

type Agent struct {
	HTTPPort int `koanf:"http_port"`
}

type Emulator struct {
	Port       int    `koanf:"port"`
	AdminPort  int    `koanf:"admin_port"`
	DataFile   string `koanf:"data_file"`
	MinDelayMS int    `koanf:"min_delay_ms"`
	MaxDelayMS int    `koanf:"max_delay_ms"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ve := errors.ValidationErrs()

	if c.Application == "" {
		ve.Add("application", "cannot be empty")
	}
	if c.Logger.Level == "" {
		ve.Add("logger.level", "cannot be empty")
	}
	if c.Terminal.IP == "" {
		ve.Add("terminal.ip", "cannot be empty")
	}
	if c.Terminal.Port <= 0 {
		ve.Add("terminal.port", "must be positive")
	}
	if c.Terminal.EcrID == "" {
		ve.Add("terminal.ecr_id", "cannot be empty")
	}
	if c.Timeouts.ConnectMS <= 0 {
		ve.Add("timeouts.connect_ms", "must be positive")
	}
	if c.Timeouts.ReadMS <= 0 {
		ve.Add("timeouts.read_ms", "must be positive")
	}
	if c.Timeouts.IdleByteMS <= 0 {
		ve.Add("timeouts.idle_byte_ms", "must be positive")
	}
	if c.Agent.HTTPPort <= 0 {
		ve.Add("agent.http_port", "must be positive")
	}
	if c.Emulator.Port <= 0 {
		ve.Add("emulator.port", "must be positive")
	}
	if c.Emulator.DataFile == "" {
		ve.Add("emulator.data_file", "cannot be empty")
	}
	if c.Emulator.MinDelayMS < 0 || c.Emulator.MaxDelayMS < c.Emulator.MinDelayMS {
		ve.Add("emulator.max_delay_ms", "must be at least min_delay_ms")
	}

	return ve.Err()
}
