package sntp

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"gpstimed/internal/clock"
	"gpstimed/internal/discipline"
	"gpstimed/internal/netresolve"
)

// epsilonSeconds is the magnitude of soffset2 (twice the offset, in whole
// seconds) above which an offset is treated as too large to slew and is
// instead applied as an initial sync; that is, offsets beyond one second.
const epsilonSeconds = 2

// ClientConfig controls the SNTP client.
type ClientConfig struct {
	Enable bool

	// Server is the upstream SNTP server, "host" or "host:port"; port
	// defaults to 123 when omitted.
	Server string

	// PollInterval is the minimum spacing between sync attempts. A
	// successful GPS PPS discipline update resets this window too, since
	// both write the same lastSyncMonotonic field in the discipline engine.
	PollInterval time.Duration

	// Timeout bounds how long a single request waits for a reply.
	Timeout time.Duration

	// Version is the version this client advertises in outgoing requests.
	Version uint8

	// MinVersionOK is the minimum version accepted in a server reply.
	MinVersionOK uint8
}

// ClientSnapshot is the client's externally observable state.
type ClientSnapshot struct {
	Enabled      bool
	InProgress   bool
	LastSyncUnix int64
	LastError    string
}

// Client periodically queries an upstream SNTP server and disciplines a
// shared Engine from the response.
type Client struct {
	cfg    ClientConfig
	clock  clock.Source
	engine *discipline.Engine

	last atomic.Value // ClientSnapshot

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient returns a Client that disciplines engine using clk for
// poll-interval bookkeeping.
func NewClient(cfg ClientConfig, clk clock.Source, engine *discipline.Engine) *Client {
	if cfg.Version == 0 {
		cfg.Version = Version
	}
	if cfg.MinVersionOK == 0 {
		cfg.MinVersionOK = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 120 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	c := &Client{cfg: cfg, clock: clk, engine: engine}
	c.last.Store(ClientSnapshot{Enabled: cfg.Enable})
	return c
}

// Snapshot returns the client's last observed state.
func (c *Client) Snapshot() ClientSnapshot {
	return c.last.Load().(ClientSnapshot)
}

func (c *Client) setSnapshot(update func(*ClientSnapshot)) {
	s := c.Snapshot()
	update(&s)
	c.last.Store(s)
}

// Start launches the background polling loop. It is a no-op if the client
// is disabled.
func (c *Client) Start(ctx context.Context) error {
	if !c.cfg.Enable {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}
	childCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.run(childCtx)
	return nil
}

// Close stops the polling loop and waits for it to exit.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// run mirrors the original firmware's ntp_client_check_run poll loop: check
// a short tick interval, but only actually sync once PollInterval has
// elapsed since the engine's last accepted update of any kind.
func (c *Client) run(ctx context.Context) {
	defer c.wg.Done()

	pollMicros := uint64(c.cfg.PollInterval / time.Microsecond)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	// The first tick always fires immediately so startup does not wait a
	// full check interval for its first sync attempt.
	c.maybeSync(ctx, pollMicros)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.maybeSync(ctx, pollMicros)
		}
	}
}

func (c *Client) maybeSync(ctx context.Context, pollMicros uint64) {
	now := c.clock.Micros()
	lastSync := c.engine.GetLastSyncMonotonic()
	if now-lastSync < pollMicros && c.engine.GetStratum() != discipline.Unsynchronized {
		return
	}
	if err := c.sync(ctx); err != nil {
		log.Printf("sntp client: sync failed: %v", err)
		c.setSnapshot(func(s *ClientSnapshot) { s.LastError = err.Error() })
	}
}

// sync performs one complete request/response exchange and, on success,
// disciplines the engine.
func (c *Client) sync(ctx context.Context) error {
	c.setSnapshot(func(s *ClientSnapshot) { s.InProgress = true })
	defer c.setSnapshot(func(s *ClientSnapshot) { s.InProgress = false })

	host, port := c.cfg.Server, "123"
	if h, p, err := net.SplitHostPort(c.cfg.Server); err == nil {
		host, port = h, p
	}

	resolveCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	res := <-netresolve.Resolve(resolveCtx, nil, host)
	if res.Err != nil {
		return fmt.Errorf("resolve %s: %w", host, res.Err)
	}
	addr := &net.UDPAddr{IP: res.Addr, Port: mustAtoi(port)}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(c.cfg.Timeout)); err != nil {
		return err
	}

	req := Message{Flags: Flags(0, c.cfg.Version, ModeClient)}
	txSec, txFrac := MicrosToNTP(int64(c.engine.GetUTCMicros()))
	req.TxTimeSec, req.TxTimeFrac = txSec, txFrac

	if _, err := conn.Write(req.Encode()); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	buf := make([]byte, MessageLen)
	n, raddr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if n < MessageLen {
		return fmt.Errorf("short response: %d bytes", n)
	}
	// Sample the destination timestamp as close to receipt as possible.
	t4Micros := int64(c.engine.GetUTCMicros())

	resp, err := Decode(buf)
	if err != nil {
		return err
	}
	log.Printf("sntp client: received response from %s: %v", raddr, resp.LogFields())

	if resp.Stratum == 0 || FlagsMode(resp.Flags) != ModeServer || FlagsVersion(resp.Flags) < c.cfg.MinVersionOK {
		return fmt.Errorf("invalid or unsupported response: stratum=%d mode=%d version=%d",
			resp.Stratum, FlagsMode(resp.Flags), FlagsVersion(resp.Flags))
	}

	refID := RefIDFromIP(raddr.IP)
	t4Sec, t4Frac := MicrosToNTP(t4Micros)
	c.processResponse(&resp, t4Sec, t4Frac, resp.Stratum, refID)

	c.setSnapshot(func(s *ClientSnapshot) {
		s.LastSyncUnix = t4Micros / 1_000_000
		s.LastError = ""
	})
	return nil
}

// processResponse applies the RFC 5905 two-timestamp exchange formula:
//
//	offset = ((T2-T1) + (T3-T4)) / 2
//
// where T1 is this request's origin timestamp, T2/T3 are the server's
// receive/transmit timestamps, and T4 is this client's destination
// timestamp. soffset2/foffset2 below are twice the true offset in whole
// seconds and fractional-second units respectively; the division by two is
// deferred to integer arithmetic on the fractional part so no floating
// point is needed. epsilonSeconds is compared directly against soffset2
// (not doubled): a magnitude over epsilonSeconds means the clocks are too
// far apart to slew, so the engine is set outright instead.
func (c *Client) processResponse(resp *Message, t4Sec, t4Frac uint32, stratum uint8, refID uint32) {
	t1s, t2s, t3s, t4s := resp.OrigTimeSec, resp.RxTimeSec, resp.TxTimeSec, t4Sec
	t1f, t2f, t3f, t4f := resp.OrigTimeFrac, resp.RxTimeFrac, resp.TxTimeFrac, t4Frac

	soffset2 := int64(int32(t2s-t1s)) + int64(int32(t3s-t4s))
	if soffset2 > epsilonSeconds || soffset2 < -epsilonSeconds {
		log.Printf("sntp client: large offset %ds, assuming initial sync", soffset2/2)
		initialMicros := (int64(t3s)-NTPDelta)*1_000_000 + FracToMicros(t3f)
		c.engine.SetUTC(initialMicros, stratum, refID)
		return
	}

	foffset2 := int64(int32(t2f-t1f)) + int64(int32(t3f-t4f))
	// The extra shift (>>27 rather than >>26) halves the doubled fraction;
	// each unit of soffset2 is worth half a second of true offset.
	offsetMicros := (foffset2*15625)>>27 + soffset2*500_000
	c.engine.ApplyOffset(offsetMicros, stratum, refID)
}

// mustAtoi parses the decimal port string split off by net.SplitHostPort,
// falling back to the standard SNTP port when it contains a non-digit
// (net.SplitHostPort does not check that the port is numeric). An empty
// string yields 0.
func mustAtoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 123
		}
		n = n*10 + int(c-'0')
	}
	return n
}
