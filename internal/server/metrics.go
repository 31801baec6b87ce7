package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/silopolis/tftpgui/internal/tftp"
)

// Collector exposes the same session-table state State.GetConnections
// hands an observer, in Prometheus form -- a structured counterpart to
// the 12-line status buffer (spec section 4.7). It is scraped on
// demand rather than pushed, mirroring runZeroInc-sockstats's
// TCPInfoCollector: Collect recomputes everything from a fresh
// snapshot instead of accumulating its own state.
type Collector struct {
	state *State

	activeSessions *prometheus.Desc
	bytesTotal     *prometheus.Desc
	blocksTotal    *prometheus.Desc
	timeouts       *prometheus.Desc
	oackNegotiated *prometheus.Desc
}

// NewCollector returns a Collector reading through state.
func NewCollector(state *State) *Collector {
	return &Collector{
		state: state,
		activeSessions: prometheus.NewDesc(
			"tftp_active_sessions", "Number of in-flight RRQ/WRQ sessions.", nil, nil),
		bytesTotal: prometheus.NewDesc(
			"tftp_session_bytes_total", "Bytes transferred so far on a session, counted as DATA blocks times block size.", []string{"peer", "filename", "mode"}, nil),
		blocksTotal: prometheus.NewDesc(
			"tftp_session_blocks_total", "DATA blocks transferred so far on a session.", []string{"peer", "filename", "mode"}, nil),
		timeouts: prometheus.NewDesc(
			"tftp_session_timeouts", "Consecutive timeouts observed on a session.", []string{"peer", "filename"}, nil),
		oackNegotiated: prometheus.NewDesc(
			"tftp_session_oack_negotiated", "1 if this session negotiated a non-default block size.", []string{"peer", "filename"}, nil),
	}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.activeSessions
	descs <- c.bytesTotal
	descs <- c.blocksTotal
	descs <- c.timeouts
	descs <- c.oackNegotiated
}

func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	sessions := c.state.GetConnections()

	metrics <- prometheus.MustNewConstMetric(c.activeSessions, prometheus.GaugeValue, float64(len(sessions)))

	for _, s := range sessions {
		peer := s.Peer.String()
		mode := "octet"
		if s.Mode == tftp.ModeNetascii {
			mode = "netascii"
		}

		metrics <- prometheus.MustNewConstMetric(c.bytesTotal, prometheus.CounterValue,
			float64(s.BlockTotal)*float64(s.BlockSize), peer, s.Filename, mode)
		metrics <- prometheus.MustNewConstMetric(c.blocksTotal, prometheus.CounterValue,
			float64(s.BlockTotal), peer, s.Filename, mode)
		metrics <- prometheus.MustNewConstMetric(c.timeouts, prometheus.GaugeValue,
			float64(s.Timeouts), peer, s.Filename)

		negotiated := 0.0
		if s.BlockSize != tftp.DefaultBlockSize {
			negotiated = 1.0
		}
		metrics <- prometheus.MustNewConstMetric(c.oackNegotiated, prometheus.GaugeValue,
			negotiated, peer, s.Filename)
	}
}
