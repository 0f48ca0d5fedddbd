package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "{}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Baud != 115200 {
		t.Errorf("gps.baud = %d, want 115200", cfg.GPS.Baud)
	}
	if cfg.PPS.FixStalenessLimit != 1*time.Second {
		t.Errorf("pps.fix_staleness_limit = %s, want 1s", cfg.PPS.FixStalenessLimit)
	}
	if cfg.SNTPClient.PollInterval != 120*time.Second {
		t.Errorf("sntp_client.poll_interval = %s, want 120s", cfg.SNTPClient.PollInterval)
	}
	if cfg.SNTPClient.Timeout != 5*time.Second {
		t.Errorf("sntp_client.udp_timeout = %s, want 5s", cfg.SNTPClient.Timeout)
	}
	if cfg.SNTPClient.Version != 4 {
		t.Errorf("sntp_client.ntp_version = %d, want 4", cfg.SNTPClient.Version)
	}
	if cfg.SNTPClient.MinVersionOK != 3 {
		t.Errorf("sntp_client.ntp_min_version_ok = %d, want 3", cfg.SNTPClient.MinVersionOK)
	}
	if cfg.SNTPServer.ListenPort != 123 {
		t.Errorf("sntp_server.listen_port = %d, want 123", cfg.SNTPServer.ListenPort)
	}
}

func TestLoad_GPSEnableRequiresDevice(t *testing.T) {
	path := writeTempConfig(t, "gps:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "gps.gps_device is required when gps.enable is true")
}

func TestLoad_PPSRequiresLine(t *testing.T) {
	path := writeTempConfig(t, "gps:\n  enable: true\n  gps_device: /dev/ttyACM0\npps:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "pps.pps_line is required when pps.enable is true")
}

func TestLoad_PPSRequiresGPS(t *testing.T) {
	path := writeTempConfig(t, "pps:\n  enable: true\n  pps_line: GPIO18\n")
	_, err := Load(path)
	requireErrEq(t, err, "pps.enable requires gps.enable: the PPS edge has nothing to timestamp without the NMEA time-of-day")
}

func TestLoad_SNTPClientRequiresServer(t *testing.T) {
	path := writeTempConfig(t, "sntp_client:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "sntp_client.ntp_server is required when sntp_client.enable is true")
}

func TestLoad_TelemetryRequiresBroker(t *testing.T) {
	path := writeTempConfig(t, "telemetry:\n  enable: true\n")
	_, err := Load(path)
	requireErrEq(t, err, "telemetry.broker is required when telemetry.enable is true")
}

func TestLoad_FullyWiredConfig(t *testing.T) {
	path := writeTempConfig(t, ""+
		"gps:\n  enable: true\n  gps_device: /dev/ttyACM0\n  gps_baud: 9600\n"+
		"pps:\n  enable: true\n  pps_chip: /dev/gpiochip0\n  pps_line: GPIO18\n  pps_edge_rising: true\n"+
		"sntp_client:\n  enable: true\n  ntp_server: time-b-g.nist.gov\n"+
		"sntp_server:\n  enable: true\n  listen_port: 1123\n"+
		"telemetry:\n  enable: true\n  broker: tcp://localhost:1883\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Baud != 9600 {
		t.Errorf("gps.baud = %d, want 9600", cfg.GPS.Baud)
	}
	if cfg.PPS.Line != "GPIO18" {
		t.Errorf("pps.pps_line = %q, want GPIO18", cfg.PPS.Line)
	}
	if cfg.SNTPServer.ListenPort != 1123 {
		t.Errorf("sntp_server.listen_port = %d, want 1123", cfg.SNTPServer.ListenPort)
	}
	if cfg.Telemetry.ClientID != "gpstimed" {
		t.Errorf("telemetry.client_id = %q, want gpstimed", cfg.Telemetry.ClientID)
	}
}
