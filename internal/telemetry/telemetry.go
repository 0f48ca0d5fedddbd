// Package telemetry optionally publishes discipline and GPS snapshots to
// an MQTT broker, for dashboards or logging to watch the appliance's sync
// state without polling its SNTP port directly. It is disabled by default
// and never gates any core timekeeping behavior.
package telemetry

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gpstimed/internal/clock"
	"gpstimed/internal/discipline"
	"gpstimed/internal/nmea"
)

// Config controls the optional MQTT publisher.
type Config struct {
	Enable bool

	// Broker is an MQTT broker URL, e.g. "tcp://localhost:1883".
	Broker   string
	ClientID string

	// DisciplineTopic and GPSTopic default to "gpstimed/discipline" and
	// "gpstimed/gps" when empty.
	DisciplineTopic string
	GPSTopic        string

	// Period is how often a snapshot is published.
	Period time.Duration
}

// DisciplineReport is the JSON payload published to DisciplineTopic.
type DisciplineReport struct {
	UTCMicros   uint64 `json:"utc_micros"`
	Stratum     uint8  `json:"stratum"`
	ReferenceID uint32 `json:"reference_id"`
}

// GPSReport is the JSON payload published to GPSTopic.
type GPSReport struct {
	PositionValid bool    `json:"position_valid"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
	Alt           float64 `json:"alt"`
	SatCount      uint8   `json:"sat_count"`
	FixAgeMicros  uint64  `json:"fix_age_micros"`
}

// Publisher periodically publishes discipline and GPS state to MQTT.
type Publisher struct {
	cfg    Config
	clock  clock.Source
	engine *discipline.Engine
	parser *nmea.Parser
	client mqtt.Client
	stop   chan struct{}
	done   chan struct{}
}

// New returns a Publisher wired to engine and parser, using clk for the
// monotonic readings GetLocation's fix-age calculation needs. Start
// connects to the broker and launches the publishing loop.
func New(cfg Config, clk clock.Source, engine *discipline.Engine, parser *nmea.Parser) *Publisher {
	if cfg.DisciplineTopic == "" {
		cfg.DisciplineTopic = "gpstimed/discipline"
	}
	if cfg.GPSTopic == "" {
		cfg.GPSTopic = "gpstimed/gps"
	}
	if cfg.Period <= 0 {
		cfg.Period = 5 * time.Second
	}
	return &Publisher{cfg: cfg, clock: clk, engine: engine, parser: parser, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start connects to the broker and launches the publishing loop. It is a
// no-op if telemetry is disabled.
func (p *Publisher) Start() error {
	if !p.cfg.Enable {
		close(p.done)
		return nil
	}

	opts := mqtt.NewClientOptions().AddBroker(p.cfg.Broker).SetClientID(p.cfg.ClientID)
	p.client = mqtt.NewClient(opts)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("telemetry connected to MQTT broker at %s", p.cfg.Broker)

	go p.run()
	return nil
}

func (p *Publisher) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.publishOnce()
		}
	}
}

func (p *Publisher) publishOnce() {
	dr := DisciplineReport{
		UTCMicros:   p.engine.GetUTCMicros(),
		Stratum:     p.engine.GetStratum(),
		ReferenceID: p.engine.GetReferenceID(),
	}
	if payload, err := json.Marshal(dr); err == nil {
		p.client.Publish(p.cfg.DisciplineTopic, 0, true, payload)
	}

	lat, lon, alt, age, ok := p.parser.GetLocation(p.clock.Micros())
	gr := GPSReport{
		PositionValid: ok,
		Lat:           lat,
		Lon:           lon,
		Alt:           alt,
		SatCount:      p.parser.GetSatCount(),
		FixAgeMicros:  age,
	}
	if payload, err := json.Marshal(gr); err == nil {
		p.client.Publish(p.cfg.GPSTopic, 0, true, payload)
	}
}

// Close stops the publishing loop and disconnects from the broker.
func (p *Publisher) Close() {
	if !p.cfg.Enable {
		return
	}
	close(p.stop)
	<-p.done
	if p.client != nil {
		p.client.Disconnect(250)
	}
}
