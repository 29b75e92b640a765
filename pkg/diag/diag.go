// Package diag holds the daemon's event counters and the latG
// telemetry gauge. Everything here is advisory: counters record how
// often each recoverable failure class fired, and nothing in the
// control path reads them back.
package diag

import (
	"math"
	"sync/atomic"
)

// Counters is a flat set of monotonically increasing event counts,
// safe for concurrent increment from the session loop and the reader
// goroutines.
type Counters struct {
	// Transient I/O: swallowed pipe/socket errors, never surfaced.
	UDPReadErrors     atomic.Uint64
	BridgeWriteEAGAIN atomic.Uint64

	// Protocol drift: dropped datagrams, counted but session preserved.
	SigMismatch    atomic.Uint64
	ParseFailures  atomic.Uint64
	SeqRegressions atomic.Uint64
	PeerRejected   atomic.Uint64

	// Session lifecycle.
	SessionsStarted atomic.Uint64
	IdleTimeouts    atomic.Uint64
	Disconnects     atomic.Uint64

	// Sidecar health.
	BridgeRestarts      atomic.Uint64
	BridgeParseFailures atomic.Uint64

	// Audio helper health.
	AudioParseFailures atomic.Uint64

	// latG never drives a controller output; it is recorded here for
	// observers only. Stored as a bit pattern since atomic has no
	// native float64.
	latGBits atomic.Uint64
}

// New returns a zeroed Counters.
func New() *Counters { return &Counters{} }

// SetLatG records the most recent lateral-G reading from the phone.
func (c *Counters) SetLatG(g float64) {
	c.latGBits.Store(math.Float64bits(g))
}

// LatG returns the most recently recorded lateral-G reading.
func (c *Counters) LatG() float64 {
	return math.Float64frombits(c.latGBits.Load())
}

// Snapshot is a point-in-time copy of all counters, suitable for JSON
// serialization by pkg/diagserver.
type Snapshot struct {
	UDPReadErrors       uint64  `json:"udp_read_errors"`
	BridgeWriteEAGAIN   uint64  `json:"bridge_write_eagain"`
	SigMismatch         uint64  `json:"sig_mismatch"`
	ParseFailures       uint64  `json:"parse_failures"`
	SeqRegressions      uint64  `json:"seq_regressions"`
	PeerRejected        uint64  `json:"peer_rejected"`
	SessionsStarted     uint64  `json:"sessions_started"`
	IdleTimeouts        uint64  `json:"idle_timeouts"`
	Disconnects         uint64  `json:"disconnects"`
	BridgeRestarts      uint64  `json:"bridge_restarts"`
	BridgeParseFailures uint64  `json:"bridge_parse_failures"`
	AudioParseFailures  uint64  `json:"audio_parse_failures"`
	LatG                float64 `json:"lat_g"`
}

// Snapshot copies the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		UDPReadErrors:       c.UDPReadErrors.Load(),
		BridgeWriteEAGAIN:   c.BridgeWriteEAGAIN.Load(),
		SigMismatch:         c.SigMismatch.Load(),
		ParseFailures:       c.ParseFailures.Load(),
		SeqRegressions:      c.SeqRegressions.Load(),
		PeerRejected:        c.PeerRejected.Load(),
		SessionsStarted:     c.SessionsStarted.Load(),
		IdleTimeouts:        c.IdleTimeouts.Load(),
		Disconnects:         c.Disconnects.Load(),
		BridgeRestarts:      c.BridgeRestarts.Load(),
		BridgeParseFailures: c.BridgeParseFailures.Load(),
		AudioParseFailures:  c.AudioParseFailures.Load(),
		LatG:                c.LatG(),
	}
}
