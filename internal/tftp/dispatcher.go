package tftp

import (
	"net"
	"time"

	"github.com/silopolis/tftpgui/internal/minilog"
)

// tick is the scheduler's poll granularity. The source uses roughly 10ms;
// spec section 5 asks implementations not to exceed 100ms.
const tick = 20 * time.Millisecond

// Notifier receives user-visible status lines the dispatcher and its
// sessions produce, mirroring ServerState.add_text (spec section 4.7).
// A nil Notifier is fine; lines are simply dropped.
type Notifier interface {
	AddText(line string, clear bool)
}

// Dispatcher owns the listening UDP socket and every in-flight session,
// per spec section 4.6. It is driven by a single goroutine; Run blocks
// until its stop channel is closed.
type Dispatcher struct {
	cfg   Config
	store Store
	conn  *net.UDPConn

	sessions map[string]Session // keyed by Peer.key()

	// round-robin send cursor: a snapshot list rebuilt whenever it is
	// exhausted, per spec section 4.6.
	cursor    []string
	cursorPos int

	notifier Notifier
}

// NewDispatcher binds the listening socket described by cfg. A bind
// failure is returned as a *BindError, per spec section 4.6.
func NewDispatcher(cfg Config, notifier Notifier) (*Dispatcher, error) {
	addr := &net.UDPAddr{Port: cfg.ListenPort}
	if cfg.ListenAddress != "" {
		ip := net.ParseIP(cfg.ListenAddress)
		if ip == nil {
			return nil, &BindError{Address: cfg.ListenAddress, Port: cfg.ListenPort, Err: net.InvalidAddrError("not an IP address")}
		}
		addr.IP = ip
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, &BindError{Address: cfg.ListenAddress, Port: cfg.ListenPort, Err: err}
	}

	d := &Dispatcher{
		cfg:      cfg,
		store:    Store{Root: cfg.TFTPRoot},
		conn:     conn,
		sessions: make(map[string]Session),
		notifier: notifier,
	}

	if notifier != nil {
		notifier.AddText("Listening on "+conn.LocalAddr().String(), true)
	}
	return d, nil
}

// Close shuts down every session and closes the listening socket, per
// the "serving=false" half of spec section 5's cancellation semantics.
func (d *Dispatcher) Close() {
	for _, s := range d.sessions {
		s.Terminate()
	}
	d.sessions = make(map[string]Session)
	d.cursor = nil
	d.conn.Close()
	if d.notifier != nil {
		d.notifier.AddText("Server stopped", true)
	}
}

// Run drives the cooperative scheduler until stop is closed, per spec
// section 5: receive, round-robin send, per-tick poll, reap.
func (d *Dispatcher) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	buf := make([]byte, MaxDatagramSize)

	for {
		select {
		case <-stop:
			return
		default:
		}

		d.conn.SetReadDeadline(time.Now().Add(tick))
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err == nil {
			d.receive(buf[:n], addr)
		}

		d.sendOne()

		select {
		case <-ticker.C:
			d.pollAndReap()
		default:
		}
	}
}

// receive handles one inbound datagram, per spec section 4.6's receive
// path.
func (d *Dispatcher) receive(data []byte, addr *net.UDPAddr) {
	if len(data) > MaxDatagramSize {
		return
	}

	peer := Peer{IP: addr.IP, Port: addr.Port}
	if s, ok := d.sessions[peer.key()]; ok {
		s.Incoming(data)
		return
	}

	if !d.cfg.allowed(addr.IP.String()) {
		return
	}

	isWriting := func(filename string) bool {
		for _, s := range d.sessions {
			if s.Writing() && s.Filename() == filename {
				return true
			}
		}
		return false
	}

	req, ok := parseRequest(data, isWriting)
	if !ok {
		return
	}

	notify := func(line string) {
		if d.notifier != nil {
			d.notifier.AddText(line, false)
		}
	}

	var s Session
	switch req.opcode {
	case OpRRQ:
		s = newRRQSession(peer, req, d.store, notify)
	case OpWRQ:
		s = newWRQSession(peer, req, d.store, notify)
	default:
		return
	}

	d.sessions[peer.key()] = s
}

// sendOne advances the round-robin cursor by exactly one send, per spec
// section 4.6's send path: pick the next session with pending output,
// invoke SendOne once, then move the cursor past it.
func (d *Dispatcher) sendOne() {
	if len(d.sessions) == 0 {
		return
	}

	for i := 0; i < len(d.sessions); i++ {
		if len(d.cursor) == 0 || d.cursorPos >= len(d.cursor) {
			d.rebuildCursor()
			if len(d.cursor) == 0 {
				return
			}
		}

		key := d.cursor[d.cursorPos]
		d.cursorPos++

		s, ok := d.sessions[key]
		if !ok || s.Expired() || len(s.PendingTx()) == 0 {
			continue
		}

		s.SendOne(func(b []byte, p Peer) (int, error) {
			return d.conn.WriteToUDP(b, &net.UDPAddr{IP: p.IP, Port: p.Port})
		})
		return
	}
}

func (d *Dispatcher) rebuildCursor() {
	d.cursor = d.cursor[:0]
	for k := range d.sessions {
		d.cursor = append(d.cursor, k)
	}
	d.cursorPos = 0
}

// pollAndReap drives every session's Poll and removes expired ones from
// the table, per spec section 4.6's tick step.
func (d *Dispatcher) pollAndReap() {
	now := time.Now()
	for key, s := range d.sessions {
		s.Poll(now)
		if s.Expired() && len(s.PendingTx()) == 0 {
			delete(d.sessions, key)
			minilog.Debug("reaped session %s", key)
		}
	}
}

// Connections returns a snapshot of every in-flight session's stats, per
// ServerState.get_connections (spec section 4.7).
func (d *Dispatcher) Connections() []Stats {
	out := make([]Stats, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s.Stats())
	}
	return out
}
