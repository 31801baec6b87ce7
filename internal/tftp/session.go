package tftp

import (
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/silopolis/tftpgui/internal/minilog"
	"github.com/silopolis/tftpgui/internal/rtt"
)

// sessionTimeout is the maximum time a session may go without sending or
// receiving a packet before it is considered stuck (spec section 4.3).
const sessionTimeout = 30 * time.Second

// maxTimeouts is the number of consecutive retransmits allowed before the
// session gives up and sends a terminal ERROR (spec section 4.3).
const maxTimeouts = 3

// Peer identifies a session's remote endpoint. It is immutable after
// creation and uniquely keys the session within the dispatcher's table.
type Peer struct {
	IP   net.IP
	Port int
}

func (p Peer) key() string {
	return p.IP.String() + ":" + strconv.Itoa(p.Port)
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(p.Port))
}

// Stats is a snapshot of a session's observable state, returned by
// Session.Stats for an external observer (spec section 4.7
// get_connections()).
type Stats struct {
	ID         uuid.UUID
	Peer       Peer
	Filename   string
	Mode       Mode
	BlockSize  int
	BlockTotal uint64
	Timeouts   int
	LastActive time.Time
}

// Session is the common interface the Dispatcher drives. rrqSession and
// wrqSession each embed sessionBase and implement Incoming and the
// opcode-specific payload production.
type Session interface {
	Peer() Peer
	Filename() string
	Writing() bool
	Expired() bool
	PendingTx() []byte
	Incoming(data []byte)
	SendOne(send func(b []byte, p Peer) (int, error))
	Poll(now time.Time)
	Terminate()
	Stats() Stats
}

// sessionBase holds all state common to RRQ and WRQ sessions, per spec
// section 4.3.
type sessionBase struct {
	id       uuid.UUID
	peer     Peer
	filename string
	mode     Mode
	options  map[string]string

	blockSize int
	block     blockCounter

	pendingTx []byte
	retxTx    []byte
	lastPacket bool

	file File

	lastActivity time.Time
	rttEst       *rtt.Estimator
	timeouts     int
	expired      bool

	now    func() time.Time
	notify func(line string)
}

func newSessionBase(peer Peer, r request, file File, notify func(string)) sessionBase {
	return sessionBase{
		id:           uuid.New(),
		peer:         peer,
		filename:     r.filename,
		mode:         r.mode,
		options:      r.options,
		blockSize:    r.blockSize(),
		file:         file,
		lastActivity: time.Now(),
		rttEst:       rtt.New(),
		now:          time.Now,
		notify:       notify,
	}
}

func (s *sessionBase) Peer() Peer       { return s.peer }
func (s *sessionBase) Filename() string { return s.filename }
func (s *sessionBase) Expired() bool    { return s.expired }
func (s *sessionBase) PendingTx() []byte {
	return s.pendingTx
}

func (s *sessionBase) Stats() Stats {
	return Stats{
		ID:         s.id,
		Peer:       s.peer,
		Filename:   s.filename,
		Mode:       s.mode,
		BlockSize:  s.blockSize,
		BlockTotal: s.block.total,
		Timeouts:   s.timeouts,
		LastActive: s.lastActivity,
	}
}

// SendOne hands the current pendingTx to send once. It advances pendingTx
// by however many bytes the caller reports sent; if that drains it and
// lastPacket is set, the session terminates; otherwise the RTT estimator
// starts timing the reply.
func (s *sessionBase) SendOne(send func(b []byte, p Peer) (int, error)) {
	if s.expired || len(s.pendingTx) == 0 {
		return
	}

	s.lastActivity = s.now()
	n, err := send(s.pendingTx, s.peer)
	if err != nil {
		minilog.Error("send to %v: %v", s.peer, err)
		s.terminateLocked()
		return
	}

	s.pendingTx = s.pendingTx[n:]
	if len(s.pendingTx) == 0 {
		if s.lastPacket {
			s.terminateLocked()
			return
		}
		s.rttEst.Start()
	}
}

// Poll is called on each dispatcher tick; it enforces the 30 second
// idle ceiling and drives retransmission off the RTT estimator.
func (s *sessionBase) Poll(now time.Time) {
	if s.expired {
		return
	}

	if now.Sub(s.lastActivity) > sessionTimeout {
		if s.notify != nil {
			s.notify("Connection from " + s.peer.String() + " timed out")
		}
		s.terminateLocked()
		return
	}

	if len(s.pendingTx) != 0 || !s.rttEst.Running() {
		return
	}

	within, err := s.rttEst.WithinTTL()
	if err != nil {
		// estimator wasn't running; nothing to time.
		return
	}
	if within {
		return
	}

	s.timeouts++
	if s.timeouts <= maxTimeouts {
		s.pendingTx = s.retxTx
		return
	}

	s.pendingTx = buildERROR(ErrNotDefined, "Terminated due to timeout")
	s.lastPacket = true
}

func (s *sessionBase) terminateLocked() {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	s.expired = true
	s.pendingTx = nil
}

func (s *sessionBase) Terminate() {
	s.terminateLocked()
}

// handlePeerError inspects an inbound datagram for an ERROR packet
// (opcode 5); if it is one, it logs the peer's code/message and
// terminates the session, returning true. Otherwise it returns false and
// the caller should continue its own opcode-specific handling.
func (s *sessionBase) handlePeerError(data []byte) bool {
	opcode, ok := opcodeOf(data)
	if !ok || opcode != OpERROR {
		return false
	}

	code, message, _ := parseErrorPacket(data[2:])
	minilog.Info("%s", formatPeerError(s.peer.IP.String(), s.peer.Port, code, message))
	s.terminateLocked()
	return true
}
