// Package server implements the public control surface described in
// spec section 4.7: a serving/engine-available pair of flags, a bounded
// status text buffer, and the connection registry an observer (the
// embedding UI or CLI) polls.
package server

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/silopolis/tftpgui/internal/minilog"
	"github.com/silopolis/tftpgui/internal/tftp"
)

const (
	maxStatusLines = 12
	maxLineLength  = 100
)

// State is the observer-facing surface. The engine goroutine is the
// sole writer of the status text and installs the connections source
// (Shutdown also clears it); an observer goroutine is the sole writer
// of serving and
// engineAvailable -- the single-writer-per-field discipline spec
// section 5 describes. The atomic flags and the mutex-guarded buffer
// are what make that safe without a broader lock.
type State struct {
	mu    sync.Mutex
	lines []string

	serving         atomic.Bool
	engineAvailable atomic.Bool

	connMu      sync.Mutex
	connections func() []tftp.Stats
}

// New returns a State with serving and engineAvailable both set, ready
// for an engine to begin a serving period.
func New() *State {
	s := &State{}
	s.serving.Store(true)
	s.engineAvailable.Store(true)
	return s
}

func (s *State) Serving() bool         { return s.serving.Load() }
func (s *State) SetServing(v bool)     { s.serving.Store(v) }
func (s *State) EngineAvailable() bool { return s.engineAvailable.Load() }

// AddText appends line to the status buffer (or replaces the whole
// buffer, when clear is true), truncating to 100 characters and
// stripping non-printable bytes first, per spec section 4.7. It also
// emits the line to the log sink.
func (s *State) AddText(line string, clear bool) {
	line = sanitizeLine(line)

	s.mu.Lock()
	if clear {
		s.lines = s.lines[:0]
	}
	s.lines = append(s.lines, line)
	if len(s.lines) > maxStatusLines {
		s.lines = s.lines[len(s.lines)-maxStatusLines:]
	}
	s.mu.Unlock()

	minilog.Info("%s", line)
}

func sanitizeLine(line string) string {
	var b strings.Builder
	for _, r := range line {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxLineLength {
		out = out[:maxLineLength]
	}
	return out
}

// Text returns the current status buffer as a single newline-joined
// string, the representation an observer polls (spec section 4.7).
func (s *State) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

// setConnections installs the function the engine uses to report the
// live session table each serving period; called once per bind.
func (s *State) setConnections(f func() []tftp.Stats) {
	s.connMu.Lock()
	s.connections = f
	s.connMu.Unlock()
}

// GetConnections snapshots the current session table, per
// ServerState.get_connections (spec section 4.7). Returns nil outside
// a serving period.
func (s *State) GetConnections() []tftp.Stats {
	s.connMu.Lock()
	f := s.connections
	s.connMu.Unlock()
	if f == nil {
		return nil
	}
	return f()
}

// Shutdown terminates the current serving period and clears both
// flags, causing the engine loop to exit (spec section 4.7). It does
// not itself close sockets or sessions; Engine.Run observes
// engineAvailable going false and tears those down on its own
// goroutine, preserving the single-writer discipline.
func (s *State) Shutdown() {
	s.SetServing(false)
	s.engineAvailable.Store(false)
	s.setConnections(nil)
}

// ConnectionSummaries renders the live session table as one
// human-readable line per session, for a text-only observer (a curses
// or terminal UI has nowhere else to get an at-a-glance connection
// list the way the Prometheus Collector's labeled series give a
// scraper). Returns nil outside a serving period.
func (s *State) ConnectionSummaries() []string {
	sessions := s.GetConnections()
	if sessions == nil {
		return nil
	}
	out := make([]string, len(sessions))
	for i, st := range sessions {
		out[i] = st.Peer.String() + " " + st.Filename + " " +
			strconv.FormatUint(st.BlockTotal, 10) + " blocks, active " + statUptime(st.LastActive) + " ago"
	}
	return out
}

// statUptime renders a human-readable LastActive age for
// ConnectionSummaries.
func statUptime(since time.Time) string {
	if since.IsZero() {
		return "-"
	}
	return strconv.FormatFloat(time.Since(since).Seconds(), 'f', 1, 64) + "s"
}
