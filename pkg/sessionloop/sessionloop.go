// Package sessionloop is the cooperative core that ties the UDP
// endpoint, protocol codec, input translator, bridge supervisor, and
// feedback mixer together: a context for cancellation and one ticker
// driving the tick, 60 Hz by default.
package sessionloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/Fooderapp/WheelerHost-V1/pkg/bridge"
	"github.com/Fooderapp/WheelerHost-V1/pkg/clock"
	"github.com/Fooderapp/WheelerHost-V1/pkg/codec"
	"github.com/Fooderapp/WheelerHost-V1/pkg/diag"
	"github.com/Fooderapp/WheelerHost-V1/pkg/feedback"
	"github.com/Fooderapp/WheelerHost-V1/pkg/translator"
	"github.com/Fooderapp/WheelerHost-V1/pkg/verbose"
	"github.com/Fooderapp/WheelerHost-V1/pkg/wire"
)

// ErrBridgeUnavailable is returned by Run when the bridge supervisor
// gives up after exhausting its respawn backoff; main maps it to a
// distinct process exit code.
var ErrBridgeUnavailable = errors.New("sessionloop: sidecar unavailable")

// UDPEndpoint is the subset of *udpendpoint.Endpoint the loop needs;
// declared here so tests can substitute a fake.
type UDPEndpoint interface {
	TryRecv() (payload []byte, peer *net.UDPAddr, ok bool)
	Send(payload []byte, peer *net.UDPAddr) error
	Pin(peer *net.UDPAddr)
	ReleasePeer()
	Peer() (*net.UDPAddr, bool)
	Close() error
}

// BridgeSupervisor is the subset of *bridge.Supervisor the loop needs.
type BridgeSupervisor interface {
	Push(state wire.GamepadState)
	PollFFB() []bridge.FFBEvent
	FatalCh() <-chan error
	Shutdown()
	Ready() bool
	RestartCount() int
}

// AudioSource is the subset of *audioingest.Ingestor the loop needs.
type AudioSource interface {
	Latest() wire.AudioFeatures
	Stop()
}

// Config tunes the loop's cadence and timeouts.
type Config struct {
	TickHz        int
	IdleTimeoutMs int
}

// Loop is the single-threaded session scheduler. All mutable state
// here is touched only from the tick goroutine; the only
// cross-goroutine traffic is the bridge's FFB queue and the audio
// ingestor's latest-value swap, both synchronized by their owning
// packages.
type Loop struct {
	cfg      Config
	endpoint UDPEndpoint
	br       BridgeSupervisor
	audio    AudioSource
	clk      clock.Clock
	diag     *diag.Counters

	codec      *codec.Codec
	translator *translator.Translator
	mixer      *feedback.Mixer

	sessionActive bool
	background    bool
	lastRecvAt    time.Time
	lastPacket    *wire.InputPacket
	lastAckSeq    uint32

	snapMu sync.Mutex
	snap   Snapshot
}

// Snapshot is a point-in-time copy of the loop's session state, safe
// to read from pkg/diagserver's HTTP/websocket goroutines while the
// tick goroutine keeps mutating the live state underneath.
type Snapshot struct {
	SessionActive bool
	Background    bool
	State         wire.GamepadState
	Feedback      wire.FeedbackState
	Audio         wire.AudioFeatures
}

// Snapshot returns the most recently published Snapshot.
func (l *Loop) Snapshot() Snapshot {
	l.snapMu.Lock()
	defer l.snapMu.Unlock()
	return l.snap
}

func (l *Loop) publishSnapshot(s Snapshot) {
	l.snapMu.Lock()
	l.snap = s
	l.snapMu.Unlock()
}

// New returns a Loop ready to Run.
func New(cfg Config, endpoint UDPEndpoint, br BridgeSupervisor, audio AudioSource, clk clock.Clock, tr translator.Config, fb feedback.Config, d *diag.Counters) *Loop {
	return &Loop{
		cfg:        cfg,
		endpoint:   endpoint,
		br:         br,
		audio:      audio,
		clk:        clk,
		diag:       d,
		codec:      codec.New(d),
		translator: translator.New(tr),
		mixer:      feedback.New(fb, clk, float64(cfg.TickHz)),
	}
}

// SetFFBMode reconfigures the mixer's arbitration mode; the change is
// picked up by the next tick's Compose.
func (l *Loop) SetFFBMode(mode feedback.Mode) {
	l.mixer.SetMode(mode)
}

// Run drives the tick loop until ctx is canceled or the bridge
// supervisor reports an unrecoverable failure.
func (l *Loop) Run(ctx context.Context) error {
	tickDuration := time.Second / time.Duration(l.cfg.TickHz)
	ticker := l.clk.NewTicker(tickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case err, ok := <-l.br.FatalCh():
			if !ok {
				continue
			}
			l.shutdown()
			return fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
		case <-ticker.C():
			l.tick()
		}
	}
}

// tick drains the socket, runs session bookkeeping, pushes state to
// the sidecar, and replies to the phone, in that order.
func (l *Loop) tick() {
	for {
		payload, peer, ok := l.endpoint.TryRecv()
		if !ok {
			break
		}
		l.dispatch(payload, peer)
	}

	idleTimeout := time.Duration(l.cfg.IdleTimeoutMs) * time.Millisecond
	if l.sessionActive && l.clk.Now().Sub(l.lastRecvAt) > idleTimeout {
		if l.diag != nil {
			l.diag.IdleTimeouts.Add(1)
		}
		log.Printf("Session idle for %s, tearing down", idleTimeout)
		l.teardownSession()
	}

	state := wire.Neutral
	if l.sessionActive && !l.background && l.lastPacket != nil {
		state = l.translator.Translate(l.lastPacket)
	}

	for _, ev := range l.br.PollFFB() {
		l.mixer.OnNativeFFB(ev.RumbleL, ev.RumbleR)
	}
	if !l.br.Ready() {
		l.mixer.OnSidecarLost()
	}

	l.br.Push(state)

	var feat wire.AudioFeatures
	if l.audio != nil {
		feat = l.audio.Latest()
	}
	fb := l.mixer.Compose(l.lastAckSeq, state.Lx, feat)

	l.publishSnapshot(Snapshot{
		SessionActive: l.sessionActive,
		Background:    l.background,
		State:         state,
		Feedback:      fb,
		Audio:         feat,
	})

	if l.sessionActive {
		l.sendReply(fb)
	}
}

func (l *Loop) sendReply(fb wire.FeedbackState) {
	peer, ok := l.endpoint.Peer()
	if !ok {
		return
	}
	data, err := codec.EncodeReply(fb)
	if err != nil {
		return
	}
	l.endpoint.Send(data, peer)
}

func (l *Loop) dispatch(payload []byte, peer *net.UDPAddr) {
	verbose.Payload("udp rx", payload)

	// A stray sender must not reach the codec: decoding mutates the
	// session's seq floor, and the pinned phone owns that state.
	if pinned, ok := l.endpoint.Peer(); ok && !sameAddr(pinned, peer) {
		if l.diag != nil {
			l.diag.PeerRejected.Add(1)
		}
		return
	}

	ev := l.codec.Decode(payload)

	switch ev.Kind {
	case codec.EventIgnore:
		return

	case codec.EventHelloOrInput:
		if !l.sessionActive {
			log.Printf("Session established with %s", peer)
			l.startSession()
		}
		l.endpoint.Pin(peer)
		l.lastRecvAt = l.clk.Now()
		l.background = false
		l.lastPacket = ev.Packet
		l.lastAckSeq = ev.Packet.Seq
		if l.diag != nil {
			l.diag.SetLatG(ev.Packet.Axes.LatG)
		}

	case codec.EventBackground:
		if l.sessionActive {
			l.background = true
			l.lastRecvAt = l.clk.Now()
		}

	case codec.EventDisconnect:
		if l.sessionActive {
			if l.diag != nil {
				l.diag.Disconnects.Add(1)
			}
			log.Printf("Session ended by phone")
			l.teardownSession()
		}
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

// startSession establishes a new session. It is only ever invoked
// while !sessionActive, so two consecutive hello packets yield one
// session.
func (l *Loop) startSession() {
	l.sessionActive = true
	l.background = false
	l.translator.Reset()
	l.mixer.Reset()
	if l.diag != nil {
		l.diag.SessionsStarted.Add(1)
	}
}

// teardownSession tears down the active session and unpins the UDP
// peer so a new sender can be adopted. The Push later in the same tick
// emits the one neutral state and reply sending stops with
// sessionActive.
func (l *Loop) teardownSession() {
	l.sessionActive = false
	l.background = false
	l.lastPacket = nil
	l.endpoint.ReleasePeer()
	l.codec.Reset()
}

// shutdown unwinds in a fixed order: the caller has already stopped
// ticking, so flush a neutral state, send one final reply, close the
// UDP socket, then tear down the sidecar and audio helper.
func (l *Loop) shutdown() {
	l.br.Push(wire.Neutral)
	if l.sessionActive {
		var feat wire.AudioFeatures
		if l.audio != nil {
			feat = l.audio.Latest()
		}
		l.sendReply(l.mixer.Compose(l.lastAckSeq, 0, feat))
	}
	l.endpoint.Close()
	l.br.Shutdown()
	if l.audio != nil {
		l.audio.Stop()
	}
}
