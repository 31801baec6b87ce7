package tftp

import "fmt"

// rrqSession serves a read request: it streams a file from the store to
// the client, sending DATA and waiting for ACK, one block at a time
// (spec section 4.4).
type rrqSession struct {
	sessionBase

	lastReceive bool // set once the final short block has been sent
	netascii    bool
	eof         bool
	encBuf      []byte // encoded bytes read but not yet placed on the wire
}

// newRRQSession constructs a session for an opening RRQ, per spec
// section 4.4. notify receives user-visible status lines.
func newRRQSession(peer Peer, r request, store Store, notify func(string)) *rrqSession {
	s := &rrqSession{}

	exists, isDir := store.Exists(r.filename)
	if !exists || isDir {
		if notify != nil {
			notify(fmt.Sprintf("%s requested %s: file not found", peer.IP, r.filename))
		}
		s.sessionBase = newSessionBase(peer, r, nil, notify)
		s.pendingTx = buildERROR(ErrFileNotFound, "File not found")
		s.lastPacket = true
		return s
	}

	f, err := store.OpenRead(r.filename)
	if err != nil {
		if notify != nil {
			notify(fmt.Sprintf("%s requested %s: unable to open file", peer.IP, r.filename))
		}
		s.sessionBase = newSessionBase(peer, r, nil, notify)
		s.pendingTx = buildERROR(ErrAccessViolation, "Unable to open file")
		s.lastPacket = true
		return s
	}

	s.sessionBase = newSessionBase(peer, r, f, notify)
	s.netascii = r.mode == ModeNetascii

	if notify != nil {
		notify(fmt.Sprintf("Sending %s to %s", r.filename, peer.IP))
	}

	if r.oack != nil {
		s.pendingTx = r.oack
		s.retxTx = r.oack
		return s
	}

	s.nextData()
	return s
}

// nextData reads the next block-sized payload from file and builds the
// DATA packet to send, per spec section 4.4's "DATA production step".
//
// In netascii mode, CR/LF translation can expand the bytes read from
// disk (a bare LF becomes CRLF), so a block's worth of wire payload may
// need fewer raw bytes than blockSize, or span more than one raw read.
// encBuf carries any encoded bytes produced but not yet placed on the
// wire across calls so no translated byte is ever dropped.
func (s *rrqSession) nextData() {
	payload := s.fillPayload()

	if len(payload) < s.blockSize {
		s.file.Close()
		s.file = nil
		bytesSent := uint64(s.blockSize)*s.block.total + uint64(len(payload))
		if s.notify != nil {
			s.notify(fmt.Sprintf("%d bytes of %s sent to %s", bytesSent, s.filename, s.peer.IP))
		}
		s.lastReceive = true
	}

	s.block.increment()
	s.retxTx = buildDATA(s.block.value, payload)
	s.pendingTx = s.retxTx
}

// fillPayload returns exactly blockSize bytes (or fewer, only at
// end-of-file) of wire payload, pulling and translating raw bytes from
// the file as needed to satisfy netascii expansion.
func (s *rrqSession) fillPayload() []byte {
	if !s.netascii {
		raw := make([]byte, s.blockSize)
		n, _ := s.file.Read(raw)
		return raw[:n]
	}

	raw := make([]byte, s.blockSize)
	for len(s.encBuf) < s.blockSize && !s.eof {
		n, _ := s.file.Read(raw)
		if n == 0 {
			s.eof = true
			break
		}
		s.encBuf = append(s.encBuf, encodeNetascii(raw[:n])...)
	}

	if len(s.encBuf) >= s.blockSize {
		payload := s.encBuf[:s.blockSize]
		s.encBuf = s.encBuf[s.blockSize:]
		return payload
	}

	payload := s.encBuf
	s.encBuf = nil
	return payload
}

// Writing reports whether this session currently holds filename open
// for writing -- always false for RRQ.
func (s *rrqSession) Writing() bool { return false }

// Incoming handles an inbound datagram for this RRQ session: only an
// ACK with the matching block number, or an ERROR, are meaningful
// (spec section 4.4).
func (s *rrqSession) Incoming(data []byte) {
	if s.expired || len(s.pendingTx) != 0 || !s.rttEst.Running() {
		return
	}

	if s.handlePeerError(data) {
		return
	}

	opcode, ok := opcodeOf(data)
	if !ok || opcode != OpACK {
		return
	}
	if len(data) < 4 {
		return
	}
	wire := s.block.wire()
	if data[2] != wire[0] || data[3] != wire[1] {
		return
	}

	s.lastActivity = s.now()
	s.timeouts = 0
	s.rttEst.Stop()

	if s.lastReceive {
		s.terminateLocked()
		return
	}
	s.nextData()
}
