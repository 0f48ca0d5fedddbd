package sntp

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"gpstimed/internal/clock"
	"gpstimed/internal/discipline"
)

// serverPoll and serverPrecision are the poll exponent and precision
// advertised in every reply; 3 means "poll every 8s" and -6 means
// "accurate to about 16 milliseconds", both fixed values since this
// appliance never negotiates a client-specific poll rate.
const (
	serverPoll      int8 = 3
	serverPrecision int8 = -6
)

// ServerConfig controls the SNTP server.
type ServerConfig struct {
	Enable bool

	// ListenPort is the UDP port to serve on; defaults to 123.
	ListenPort int
}

// ServerSnapshot is the server's externally observable state.
type ServerSnapshot struct {
	Enabled         bool
	RequestsServed  uint64
	RequestsRefused uint64
	LastError       string
}

// Server answers SNTP requests using the discipline engine's current UTC,
// stratum, and reference id.
type Server struct {
	cfg    ServerConfig
	clock  clock.Source
	engine *discipline.Engine

	last atomic.Value // ServerSnapshot

	mu     sync.Mutex
	conn   *net.UDPConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer returns a Server that reports engine's state to requesters.
func NewServer(cfg ServerConfig, clk clock.Source, engine *discipline.Engine) *Server {
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 123
	}
	s := &Server{cfg: cfg, clock: clk, engine: engine}
	s.last.Store(ServerSnapshot{Enabled: cfg.Enable})
	return s
}

// Snapshot returns the server's last observed state.
func (s *Server) Snapshot() ServerSnapshot {
	return s.last.Load().(ServerSnapshot)
}

func (s *Server) setSnapshot(update func(*ServerSnapshot)) {
	v := s.Snapshot()
	update(&v)
	s.last.Store(v)
}

// Start binds the UDP listener and begins serving requests. It is a no-op
// if the server is disabled.
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enable {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.cfg.ListenPort})
	if err != nil {
		return fmt.Errorf("listen udp :%d: %w", s.cfg.ListenPort, err)
	}
	s.conn = conn

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.serve(childCtx, conn)
	log.Printf("sntp server listening on :%d", s.cfg.ListenPort)
	return nil
}

// Close stops the listener and waits for the serving goroutine to exit.
func (s *Server) Close() {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	s.cancel = nil
	s.conn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()
}

func (s *Server) serve(ctx context.Context, conn *net.UDPConn) {
	defer s.wg.Done()

	buf := make([]byte, MessageLen)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.setSnapshot(func(v *ServerSnapshot) { v.LastError = err.Error() })
			continue
		}
		// Sample the receive timestamp (T2) as close to arrival as
		// possible, before doing anything else with the packet.
		rxMicros := int64(s.engine.GetUTCMicros())

		if n < MessageLen {
			s.refuse()
			continue
		}
		req, err := Decode(buf[:n])
		if err != nil {
			s.refuse()
			continue
		}
		log.Printf("sntp server: request from %s: %v", raddr, req.LogFields())

		reply := s.buildReply(&req, rxMicros)
		if _, err := conn.WriteToUDP(reply.Encode(), raddr); err != nil {
			s.setSnapshot(func(v *ServerSnapshot) { v.LastError = err.Error() })
			continue
		}
		s.setSnapshot(func(v *ServerSnapshot) { v.RequestsServed++ })
	}
}

func (s *Server) refuse() {
	s.setSnapshot(func(v *ServerSnapshot) { v.RequestsRefused++ })
}

// buildReply assembles a server-mode response per the original firmware's
// ntp_server_recv_cb: root_delay, root_dispersion, and ref_ts are reported
// as zero (the appliance does not track its own dispersion against the
// upstream source it disciplines from), orig_ts echoes the request's
// tx_ts verbatim, rx_ts is the timestamp sampled on arrival, and tx_ts is
// sampled again just before the caller sends the reply.
func (s *Server) buildReply(req *Message, rxMicros int64) Message {
	var reply Message
	reply.Flags = Flags(0, Version, ModeServer)
	reply.Stratum = s.engine.GetStratum()
	reply.Poll = serverPoll
	reply.Precision = serverPrecision
	reply.RootDelay = 0
	reply.RootDispersion = 0
	reply.RefID = s.engine.GetReferenceID()
	reply.RefTimeSec, reply.RefTimeFrac = 0, 0
	reply.OrigTimeSec, reply.OrigTimeFrac = req.TxTimeSec, req.TxTimeFrac
	reply.RxTimeSec, reply.RxTimeFrac = MicrosToNTP(rxMicros)
	txMicros := int64(s.engine.GetUTCMicros())
	reply.TxTimeSec, reply.TxTimeFrac = MicrosToNTP(txMicros)
	return reply
}
