// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/ak8963/ak8963"
)

// Config holds all application configuration values.
type Config struct {
	// Bus
	BusDriver    string // "periph", "smbus" or "mcp2221"
	MCP2221Index byte
	MCP2221Baud  uint32

	// AK8963
	AK8963Bus          int
	AK8963Addr         uint16
	AK8963Sensitivity  ak8963.Sensitivity
	AK8963SampleRate   ak8963.SampleRate
	AK8963PollInterval int // milliseconds
	MagMock            bool

	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicMag      string
	TopicMagEvent string

	// Web Server
	WebServerPort     int
	RegisterDebugPort int

	// Display
	DisplayI2CBus         int
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Capture
	CaptureFile string
}

// Package-level singleton. External code must use InitGlobal() to set and
// Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value set.
func Default() *Config {
	return &Config{
		BusDriver:             "periph",
		MCP2221Baud:           100000,
		AK8963Bus:             -1,
		AK8963Addr:            ak8963.DefaultAddr,
		AK8963Sensitivity:     ak8963.Sensitivity16Bit,
		AK8963SampleRate:      ak8963.Rate100Hz,
		AK8963PollInterval:    10,
		MQTTClientIDProducer:  "ak8963-producer",
		MQTTClientIDConsole:   "ak8963-console",
		MQTTClientIDWeb:       "ak8963-web",
		MQTTClientIDDisplay:   "ak8963-display",
		TopicMag:              "inertial/mag/ak8963",
		TopicMagEvent:         "inertial/mag/ak8963/event",
		WebServerPort:         8080,
		RegisterDebugPort:     8081,
		DisplayI2CBus:         1,
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 200,
	}
}

// Load reads the configuration file and returns a Config struct.
// AK8963_I2C_BUS and AK8963_I2C_ADDR from the environment override the file.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg, err := Parse(file)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads KEY=VALUE lines on top of Default(). It does not validate.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Bus
	case "I2C_BUS_DRIVER":
		switch value {
		case "periph", "smbus", "mcp2221":
			c.BusDriver = value
		default:
			return fmt.Errorf("I2C_BUS_DRIVER must be periph, smbus or mcp2221, got %q", value)
		}
	case "MCP2221_INDEX":
		v, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return fmt.Errorf("invalid MCP2221_INDEX %q: %w", value, err)
		}
		c.MCP2221Index = byte(v)
	case "MCP2221_BAUD":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid MCP2221_BAUD %q: %w", value, err)
		}
		c.MCP2221Baud = uint32(v)

	// AK8963
	case "AK8963_I2C_BUS":
		bus, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid AK8963_I2C_BUS %q: %w", value, err)
		}
		c.AK8963Bus = bus
	case "AK8963_I2C_ADDR":
		addr, err := parseAddr(value)
		if err != nil {
			return fmt.Errorf("invalid AK8963_I2C_ADDR %q: %w", value, err)
		}
		c.AK8963Addr = addr
	case "AK8963_SENSITIVITY":
		switch value {
		case "14":
			c.AK8963Sensitivity = ak8963.Sensitivity14Bit
		case "16":
			c.AK8963Sensitivity = ak8963.Sensitivity16Bit
		default:
			return fmt.Errorf("AK8963_SENSITIVITY must be 14 or 16 (bits), got %q", value)
		}
	case "AK8963_SAMPLE_RATE":
		switch value {
		case "8":
			c.AK8963SampleRate = ak8963.Rate8Hz
		case "100":
			c.AK8963SampleRate = ak8963.Rate100Hz
		default:
			return fmt.Errorf("AK8963_SAMPLE_RATE must be 8 or 100 (Hz), got %q", value)
		}
	case "AK8963_POLL_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid AK8963_POLL_INTERVAL %q: %w", value, err)
		}
		c.AK8963PollInterval = interval
	case "MAG_MOCK":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_MOCK %q: %w", value, err)
		}
		c.MagMock = v

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_MAG":
		c.TopicMag = value
	case "TOPIC_MAG_EVENT":
		c.TopicMagEvent = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port
	case "REGISTER_DEBUG_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid REGISTER_DEBUG_PORT %q: %w", value, err)
		}
		c.RegisterDebugPort = port

	// Display
	case "DISPLAY_I2C_BUS":
		bus, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_BUS %q: %w", value, err)
		}
		c.DisplayI2CBus = bus
	case "DISPLAY_I2C_ADDR":
		addr, err := parseAddr(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = addr
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	// Capture
	case "CAPTURE_FILE":
		c.CaptureFile = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// applyEnv overrides AK8963_I2C_BUS and AK8963_I2C_ADDR from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, key := range []string{"AK8963_I2C_BUS", "AK8963_I2C_ADDR"} {
		if v, ok := lookup(key); ok && v != "" {
			if err := c.setValue(key, v); err != nil {
				return fmt.Errorf("environment: %w", err)
			}
		}
	}
	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.AK8963Bus < 0 && !c.MagMock {
		return fmt.Errorf("AK8963_I2C_BUS is required")
	}
	if c.AK8963Addr > 0x7F {
		return fmt.Errorf("AK8963_I2C_ADDR must be a 7-bit address, got 0x%X", c.AK8963Addr)
	}
	if c.AK8963PollInterval <= 0 {
		return fmt.Errorf("AK8963_POLL_INTERVAL must be positive")
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive")
	}
	return nil
}

// AK8963Opts returns the driver options selected by the configuration.
func (c *Config) AK8963Opts() ak8963.Opts {
	return ak8963.Opts{
		Addr:        c.AK8963Addr,
		Sensitivity: c.AK8963Sensitivity,
		SampleRate:  c.AK8963SampleRate,
	}
}

func parseAddr(value string) (uint16, error) {
	addr, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, err
	}
	return uint16(addr), nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
