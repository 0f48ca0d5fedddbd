package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gpstimed/internal/clock"
	"gpstimed/internal/config"
	"gpstimed/internal/discipline"
	"gpstimed/internal/nmea"
	"gpstimed/internal/pps"
	"gpstimed/internal/serialport"
	"gpstimed/internal/sntp"
	"gpstimed/internal/telemetry"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./gpstimed.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	clk := clock.New()
	parser := nmea.New(clk)
	engine := discipline.New(clk)

	log.Printf("gpstimed starting")

	var gpsCloser func()
	if cfg.GPS.Enable {
		gpsCloser = startGPSReader(ctx, cfg, parser)
		defer gpsCloser()
	}

	ppsWatcher := pps.New(pps.Config{
		Enable:               cfg.PPS.Enable,
		ChipPath:             cfg.PPS.Chip,
		Line:                 cfg.PPS.Line,
		RisingEdge:           cfg.PPS.RisingEdge,
		StalenessLimitMicros: uint64(cfg.PPS.FixStalenessLimit.Microseconds()),
	}, clk, engine, parser)
	if err := ppsWatcher.Start(); err != nil {
		log.Printf("pps watcher disabled: %v", err)
	}
	defer ppsWatcher.Close()

	sntpClient := sntp.NewClient(sntp.ClientConfig{
		Enable:       cfg.SNTPClient.Enable,
		Server:       cfg.SNTPClient.Server,
		PollInterval: cfg.SNTPClient.PollInterval,
		Timeout:      cfg.SNTPClient.Timeout,
		Version:      cfg.SNTPClient.Version,
		MinVersionOK: cfg.SNTPClient.MinVersionOK,
	}, clk, engine)
	if err := sntpClient.Start(ctx); err != nil {
		log.Printf("sntp client failed to start: %v", err)
	}
	defer sntpClient.Close()

	sntpServer := sntp.NewServer(sntp.ServerConfig{
		Enable:     cfg.SNTPServer.Enable,
		ListenPort: cfg.SNTPServer.ListenPort,
	}, clk, engine)
	if err := sntpServer.Start(ctx); err != nil {
		log.Printf("sntp server failed to start: %v", err)
	}
	defer sntpServer.Close()

	tel := telemetry.New(telemetry.Config{
		Enable:          cfg.Telemetry.Enable,
		Broker:          cfg.Telemetry.Broker,
		ClientID:        cfg.Telemetry.ClientID,
		DisciplineTopic: cfg.Telemetry.DisciplineTopic,
		GPSTopic:        cfg.Telemetry.GPSTopic,
		Period:          cfg.Telemetry.Period,
	}, clk, engine, parser)
	if err := tel.Start(); err != nil {
		log.Printf("telemetry failed to start: %v", err)
	}
	defer tel.Close()

	<-ctx.Done()
	log.Printf("gpstimed stopping")
}

// startGPSReader opens the configured serial device and feeds every byte
// it reads to parser until ctx is cancelled or the read loop fails. It
// returns a closer the caller should defer.
func startGPSReader(ctx context.Context, cfg config.Config, parser *nmea.Parser) func() {
	port, err := serialport.Open(cfg.GPS.Device, cfg.GPS.Baud)
	if err != nil {
		log.Printf("gps serial open failed device=%s baud=%d: %v", cfg.GPS.Device, cfg.GPS.Baud, err)
		return func() {}
	}

	go func() {
		defer port.Close()
		log.Printf("gps reading device=%s baud=%d", cfg.GPS.Device, cfg.GPS.Baud)

		r := bufio.NewReaderSize(port, 256)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			b, err := r.ReadByte()
			if err != nil {
				log.Printf("gps read stopped: %v", err)
				return
			}
			parser.Feed(b)
		}
	}()

	return func() { _ = port.Close() }
}
