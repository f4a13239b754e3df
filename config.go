package main

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the results server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the vision module's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the module (e.g. 921600)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// InvokeInterval is the pause between inference rounds
	InvokeInterval time.Duration
	// BufferSize is the response buffer capacity in bytes
	BufferSize int
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 921600
		c.LogLevel = "info"
		c.InvokeInterval = 100 * time.Millisecond
		c.BufferSize = 8192
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if port := os.Getenv("SERIAL_PORT"); port != "" {
			c.SerialPort = port
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if interval := os.Getenv("INVOKE_INTERVAL"); interval != "" {
			if d, err := time.ParseDuration(interval); err == nil {
				c.InvokeInterval = d
			}
		}

		if size := os.Getenv("BUFFER_SIZE"); size != "" {
			if n, err := strconv.Atoi(size); err == nil {
				c.BufferSize = n
			}
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "invoke-interval":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.InvokeInterval = d
				}
			case "buffer-size":
				if n, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BufferSize = n
				}
			}
		})
		return nil
	}
}
