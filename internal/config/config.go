// Package config loads the appliance's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	GPS        GPSConfig        `yaml:"gps"`
	PPS        PPSConfig        `yaml:"pps"`
	SNTPClient SNTPClientConfig `yaml:"sntp_client"`
	SNTPServer SNTPServerConfig `yaml:"sntp_server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// GPSConfig controls the NMEA serial reader.
type GPSConfig struct {
	Enable bool   `yaml:"enable"`
	Device string `yaml:"gps_device"`
	Baud   int    `yaml:"gps_baud"`
}

// PPSConfig controls the PPS edge watcher.
type PPSConfig struct {
	Enable            bool          `yaml:"enable"`
	Chip              string        `yaml:"pps_chip"`
	Line              string        `yaml:"pps_line"`
	RisingEdge        bool          `yaml:"pps_edge_rising"`
	FixStalenessLimit time.Duration `yaml:"fix_staleness_limit"`
}

// SNTPClientConfig controls the outbound SNTP poller.
type SNTPClientConfig struct {
	Enable       bool          `yaml:"enable"`
	Server       string        `yaml:"ntp_server"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"udp_timeout"`
	Version      uint8         `yaml:"ntp_version"`
	MinVersionOK uint8         `yaml:"ntp_min_version_ok"`
}

// SNTPServerConfig controls the downstream SNTP responder.
type SNTPServerConfig struct {
	Enable     bool `yaml:"enable"`
	ListenPort int  `yaml:"listen_port"`
}

// TelemetryConfig controls the optional MQTT publisher.
type TelemetryConfig struct {
	Enable          bool          `yaml:"enable"`
	Broker          string        `yaml:"broker"`
	ClientID        string        `yaml:"client_id"`
	DisciplineTopic string        `yaml:"discipline_topic"`
	GPSTopic        string        `yaml:"gps_topic"`
	Period          time.Duration `yaml:"period"`
}

// Load reads and validates the configuration file at path, filling in
// defaults for anything left unset.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.GPS.Enable && cfg.GPS.Device == "" {
		return Config{}, fmt.Errorf("gps.gps_device is required when gps.enable is true")
	}
	if cfg.GPS.Baud <= 0 {
		cfg.GPS.Baud = 115200
	}

	if cfg.PPS.Enable {
		if cfg.PPS.Line == "" {
			return Config{}, fmt.Errorf("pps.pps_line is required when pps.enable is true")
		}
		if !cfg.GPS.Enable {
			return Config{}, fmt.Errorf("pps.enable requires gps.enable: the PPS edge has nothing to timestamp without the NMEA time-of-day")
		}
	}
	if cfg.PPS.FixStalenessLimit <= 0 {
		cfg.PPS.FixStalenessLimit = 1 * time.Second
	}

	if cfg.SNTPClient.Enable && cfg.SNTPClient.Server == "" {
		return Config{}, fmt.Errorf("sntp_client.ntp_server is required when sntp_client.enable is true")
	}
	if cfg.SNTPClient.PollInterval <= 0 {
		cfg.SNTPClient.PollInterval = 120 * time.Second
	}
	if cfg.SNTPClient.Timeout <= 0 {
		cfg.SNTPClient.Timeout = 5 * time.Second
	}
	if cfg.SNTPClient.Version == 0 {
		cfg.SNTPClient.Version = 4
	}
	if cfg.SNTPClient.MinVersionOK == 0 {
		cfg.SNTPClient.MinVersionOK = 3
	}

	if cfg.SNTPServer.ListenPort == 0 {
		cfg.SNTPServer.ListenPort = 123
	}

	if cfg.Telemetry.Enable {
		if cfg.Telemetry.Broker == "" {
			return Config{}, fmt.Errorf("telemetry.broker is required when telemetry.enable is true")
		}
		if cfg.Telemetry.ClientID == "" {
			cfg.Telemetry.ClientID = "gpstimed"
		}
		if cfg.Telemetry.Period <= 0 {
			cfg.Telemetry.Period = 5 * time.Second
		}
	}

	return cfg, nil
}
