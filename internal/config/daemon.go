package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/injector-bench/internal/logic"
)

// ErrInvalidDaemon is wrapped by every daemon option failure.
var ErrInvalidDaemon = errors.New("invalid daemon config")

// Daemon holds the process options that are not part of the bench settings
// record: hardware wiring, transports and loop timing.
type Daemon struct {
	SettingsPath string        `yaml:"settings_path"`
	Poll         time.Duration `yaml:"poll"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
	HTTPAddr     string        `yaml:"http_addr"`
	MQTT         MQTTConfig    `yaml:"mqtt"`
	Serial       SerialConfig  `yaml:"serial"`
	GPIO         GPIOConfig    `yaml:"gpio"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables MQTT
	ClientID string `yaml:"client_id"`
}

type SerialConfig struct {
	Port string `yaml:"port"` // empty disables the console
	Baud int    `yaml:"baud"`
}

type GPIOConfig struct {
	Chip    string `yaml:"chip"`
	Outputs []int  `yaml:"outputs"`  // line offsets for channels 0..3
	StopPin int    `yaml:"stop_pin"` // -1 disables the stop button
}

// Default GPIO wiring (BCM numbering on a Raspberry Pi header).
var DefaultOutputs = []int{5, 6, 13, 19}

const DefaultStopPin = 26

// DefaultDaemon returns the daemon options used when no file is present.
func DefaultDaemon() *Daemon {
	return &Daemon{
		SettingsPath: "/var/lib/injector-bench/settings.yaml",
		Poll:         250 * time.Microsecond,
		Heartbeat:    15 * time.Minute,
		HTTPAddr:     ":8080",
		MQTT: MQTTConfig{
			Broker:   "",
			ClientID: "injector-bench",
		},
		Serial: SerialConfig{
			Port: "",
			Baud: 115200,
		},
		GPIO: GPIOConfig{
			Chip:    "gpiochip0",
			Outputs: append([]int(nil), DefaultOutputs...),
			StopPin: DefaultStopPin,
		},
	}
}

// LoadDaemon reads daemon options from a YAML file, then applies environment
// variable overrides. Falls back to defaults if the file is missing or bad.
func LoadDaemon(path string) *Daemon {
	cfg := DefaultDaemon()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[config] no daemon config at %s, using defaults", path)
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Printf("[config] error parsing %s: %v, using defaults", path, err)
			cfg = DefaultDaemon()
		} else {
			log.Printf("[config] loaded daemon config from %s", path)
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate checks the options the control loop depends on. Every channel
// needs a wired output line, whatever NumInjectors is set to.
func (c *Daemon) Validate() error {
	if c.Poll <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %v", ErrInvalidDaemon, c.Poll)
	}
	if len(c.GPIO.Outputs) != logic.MaxChannels {
		return fmt.Errorf("%w: gpio.outputs needs %d lines, got %v", ErrInvalidDaemon, logic.MaxChannels, c.GPIO.Outputs)
	}
	seen := make(map[int]bool, len(c.GPIO.Outputs))
	for _, off := range c.GPIO.Outputs {
		if off < 0 {
			return fmt.Errorf("%w: negative output line %d", ErrInvalidDaemon, off)
		}
		if seen[off] {
			return fmt.Errorf("%w: output line %d listed twice", ErrInvalidDaemon, off)
		}
		if off == c.GPIO.StopPin {
			return fmt.Errorf("%w: line %d is both an output and the stop button", ErrInvalidDaemon, off)
		}
		seen[off] = true
	}
	return nil
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: INJBENCH_SETTINGS, INJBENCH_BROKER, INJBENCH_HTTP,
// INJBENCH_SERIAL_PORT, INJBENCH_SERIAL_BAUD, INJBENCH_GPIO_CHIP,
// INJBENCH_STOP_PIN
func (c *Daemon) applyEnvOverrides() {
	if v := os.Getenv("INJBENCH_SETTINGS"); v != "" {
		c.SettingsPath = v
	}
	if v := os.Getenv("INJBENCH_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("INJBENCH_HTTP"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("INJBENCH_SERIAL_PORT"); v != "" {
		c.Serial.Port = v
	}
	if v := os.Getenv("INJBENCH_SERIAL_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Serial.Baud = n
		}
	}
	if v := os.Getenv("INJBENCH_GPIO_CHIP"); v != "" {
		c.GPIO.Chip = v
	}
	if v := os.Getenv("INJBENCH_STOP_PIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GPIO.StopPin = n
		}
	}
}
