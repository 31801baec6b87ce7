package tftp

import (
	"fmt"

	"github.com/silopolis/tftpgui/internal/minilog"
)

// wrqSession serves a write request: it accepts DATA blocks from the
// client and writes them to the store, ACKing each in turn, until a
// short block signals the end of the transfer (spec section 4.5).
type wrqSession struct {
	sessionBase

	netascii bool
	decoder  netasciiDecoder
}

// newWRQSession constructs a session for an opening WRQ, per spec
// section 4.5. notify receives user-visible status lines.
func newWRQSession(peer Peer, r request, store Store, notify func(string)) *wrqSession {
	s := &wrqSession{}

	exists, _ := store.Exists(r.filename)
	if exists {
		if notify != nil {
			notify(fmt.Sprintf("%s attempted to overwrite %s", peer.IP, r.filename))
		}
		s.sessionBase = newSessionBase(peer, r, nil, notify)
		s.pendingTx = buildERROR(ErrFileExists, "File already exists")
		s.lastPacket = true
		return s
	}

	f, err := store.OpenWrite(r.filename)
	if err != nil {
		if notify != nil {
			notify(fmt.Sprintf("%s requested to write %s: unable to create file", peer.IP, r.filename))
		}
		s.sessionBase = newSessionBase(peer, r, nil, notify)
		s.pendingTx = buildERROR(ErrAccessViolation, "Unable to create file")
		s.lastPacket = true
		return s
	}

	s.sessionBase = newSessionBase(peer, r, f, notify)
	s.netascii = r.mode == ModeNetascii

	if notify != nil {
		notify(fmt.Sprintf("Receiving %s from %s", r.filename, peer.IP))
	}

	if r.oack != nil {
		s.pendingTx = r.oack
		s.retxTx = r.oack
	} else {
		s.pendingTx = buildACK(s.block.value)
		s.retxTx = s.pendingTx
	}
	return s
}

// Writing reports that this session holds filename open for writing --
// always true for WRQ. The dispatcher consults this to reject a second
// WRQ for the same filename while this one is in flight (spec rule 6).
func (s *wrqSession) Writing() bool { return true }

// Incoming handles an inbound DATA datagram for this WRQ session (spec
// section 4.5). A block is only accepted if its number is exactly one
// past the last one written; anything else -- a duplicate retransmit
// or a genuinely out-of-order block -- is ignored identically, per
// spec section 4.5's "revert the counter and ignore" rule.
func (s *wrqSession) Incoming(data []byte) {
	if s.expired || len(s.pendingTx) != 0 || !s.rttEst.Running() {
		return
	}

	if s.handlePeerError(data) {
		return
	}

	opcode, ok := opcodeOf(data)
	if !ok || opcode != OpDATA {
		return
	}
	if len(data) < 4 {
		return
	}
	if len(data) > s.blockSize+4 {
		s.pendingTx = buildERROR(ErrIllegalOp, "Block size too long")
		s.lastPacket = true
		return
	}

	block := uint16(data[2])<<8 | uint16(data[3])
	payload := data[4:]

	if block != s.block.value+1 {
		// anything but the next block in sequence -- a duplicate of
		// the one we already wrote, or genuinely out of order -- is
		// ignored; the session's own retransmit timer, not this
		// handler, is what re-sends the last ACK.
		return
	}

	s.lastActivity = s.now()
	s.timeouts = 0
	s.rttEst.Stop()

	if err := s.writePayload(payload); err != nil {
		minilog.Error("write to %s: %v", s.filename, err)
		s.pendingTx = buildERROR(ErrNotDefined, "Write failed")
		s.lastPacket = true
		return
	}

	s.block.increment()

	if len(payload) < s.blockSize {
		if s.netascii {
			s.writeRaw(s.decoder.flush())
		}
		s.file.Close()
		s.file = nil
		if s.notify != nil {
			s.notify(fmt.Sprintf("%d bytes of %s received from %s", s.bytesWritten(len(payload)), s.filename, s.peer.IP))
		}
		s.pendingTx = buildACK(s.block.value)
		s.retxTx = s.pendingTx
		s.lastPacket = true
		return
	}

	s.pendingTx = buildACK(s.block.value)
	s.retxTx = s.pendingTx
}

// writePayload decodes (if netascii) and writes one DATA block's worth
// of payload to file.
func (s *wrqSession) writePayload(payload []byte) error {
	if !s.netascii {
		return s.writeRaw(payload)
	}
	return s.writeRaw(s.decoder.decode(payload))
}

func (s *wrqSession) writeRaw(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	_, err := s.file.Write(b)
	return err
}

// bytesWritten reports the total payload byte count across every block
// written so far, including the final short one. block.total has
// already been advanced past every full-size block plus this final
// short one, so every prior block contributed exactly blockSize bytes.
func (s *wrqSession) bytesWritten(lastLen int) uint64 {
	return uint64(s.blockSize)*(s.block.total-1) + uint64(lastLen)
}
