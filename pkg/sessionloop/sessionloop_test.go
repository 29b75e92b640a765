package sessionloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Fooderapp/WheelerHost-V1/pkg/bridge"
	"github.com/Fooderapp/WheelerHost-V1/pkg/clock"
	"github.com/Fooderapp/WheelerHost-V1/pkg/diag"
	"github.com/Fooderapp/WheelerHost-V1/pkg/feedback"
	"github.com/Fooderapp/WheelerHost-V1/pkg/translator"
	"github.com/Fooderapp/WheelerHost-V1/pkg/wire"
)

var testPeer = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 40000}

// fakeEndpoint is an in-memory stand-in for *udpendpoint.Endpoint.
type fakeEndpoint struct {
	inbound []struct {
		payload []byte
		peer    *net.UDPAddr
	}
	peer   *net.UDPAddr
	havePn bool
	sent   [][]byte
	closed bool
}

func (f *fakeEndpoint) deliver(peer *net.UDPAddr, payload []byte) {
	f.inbound = append(f.inbound, struct {
		payload []byte
		peer    *net.UDPAddr
	}{payload, peer})
}

func (f *fakeEndpoint) TryRecv() ([]byte, *net.UDPAddr, bool) {
	if len(f.inbound) == 0 {
		return nil, nil, false
	}
	next := f.inbound[0]
	f.inbound = f.inbound[1:]
	return next.payload, next.peer, true
}

func (f *fakeEndpoint) Pin(peer *net.UDPAddr) {
	if f.havePn && !sameAddr(peer, f.peer) {
		return
	}
	f.peer = peer
	f.havePn = true
}

func (f *fakeEndpoint) Send(payload []byte, peer *net.UDPAddr) error {
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeEndpoint) ReleasePeer() { f.havePn = false }

func (f *fakeEndpoint) Peer() (*net.UDPAddr, bool) { return f.peer, f.havePn }

func (f *fakeEndpoint) Close() error { f.closed = true; return nil }

// fakeBridge is an in-memory stand-in for *bridge.Supervisor.
type fakeBridge struct {
	pushed   []wire.GamepadState
	ffb      []bridge.FFBEvent
	fatalCh  chan error
	shutdown bool
	ready    bool
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{fatalCh: make(chan error, 1), ready: true}
}

func (f *fakeBridge) Push(state wire.GamepadState) { f.pushed = append(f.pushed, state) }
func (f *fakeBridge) PollFFB() []bridge.FFBEvent {
	out := f.ffb
	f.ffb = nil
	return out
}
func (f *fakeBridge) FatalCh() <-chan error { return f.fatalCh }
func (f *fakeBridge) Shutdown()             { f.shutdown = true }
func (f *fakeBridge) Ready() bool           { return f.ready }
func (f *fakeBridge) RestartCount() int     { return 0 }

func helloPayload(t *testing.T, seq uint32) []byte {
	t.Helper()
	return []byte(fmt.Sprintf(
		`{"sig":"WHEEL1","seq":%d,"t":0,"axis":{"steering_x":0.5},"meta":{"hello":true}}`,
		seq,
	))
}

func newTestLoop() (*Loop, *fakeEndpoint, *fakeBridge) {
	ep := &fakeEndpoint{}
	br := newFakeBridge()
	clk := clock.NewFake(time.Unix(0, 0))
	l := New(
		Config{TickHz: 60, IdleTimeoutMs: 500},
		ep, br, nil, clk,
		translator.Config{Expo: 0, Deadzone: 0, LatchTicks: 1},
		feedback.Config{},
		diag.New(),
	)
	return l, ep, br
}

func TestLoop_TickWithNoTrafficPushesNeutral(t *testing.T) {
	l, _, br := newTestLoop()
	l.tick()
	require.Len(t, br.pushed, 1)
	require.Equal(t, wire.Neutral, br.pushed[0])
}

func TestLoop_DispatchStartsSessionOnHello(t *testing.T) {
	l, ep, _ := newTestLoop()
	ep.deliver(testPeer, helloPayload(t, 1))

	l.tick()

	require.True(t, l.sessionActive)
	_, ok := ep.Peer()
	require.True(t, ok)
}

func lastReply(t *testing.T, ep *fakeEndpoint) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, ep.sent)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(ep.sent[len(ep.sent)-1], &m))
	return m
}

func TestLoop_SidecarLossForcesZeroRumbleReply(t *testing.T) {
	l, ep, br := newTestLoop()
	ep.deliver(testPeer, helloPayload(t, 1))
	br.ffb = []bridge.FFBEvent{{RumbleL: 0.5, RumbleR: 0.2}}
	l.tick()
	require.Equal(t, 0.5, lastReply(t, ep)["rumbleL"])

	br.ready = false
	l.tick()
	require.Equal(t, 0.0, lastReply(t, ep)["rumbleL"])
	require.Equal(t, 0.0, lastReply(t, ep)["rumbleR"])
}

func TestLoop_StraySenderDroppedWhileSessionActive(t *testing.T) {
	l, ep, _ := newTestLoop()
	ep.deliver(testPeer, helloPayload(t, 1))
	l.tick()
	require.True(t, l.sessionActive)

	stray := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 40001}
	ep.deliver(stray, helloPayload(t, 99))
	l.tick()

	require.Equal(t, uint64(1), l.diag.PeerRejected.Load())

	// the stray's seq must not have advanced the session's floor
	ep.deliver(testPeer, helloPayload(t, 2))
	l.tick()
	require.Equal(t, uint32(2), l.lastAckSeq)
}

func TestLoop_IdleTimeoutTearsDownSession(t *testing.T) {
	l, ep, _ := newTestLoop()
	clk := l.clk.(*clock.Fake)

	ep.deliver(testPeer, helloPayload(t, 1))
	l.tick()
	require.True(t, l.sessionActive)

	clk.Advance(600 * time.Millisecond)
	l.tick()

	require.False(t, l.sessionActive)
	_, ok := ep.Peer()
	require.False(t, ok)
}

func TestLoop_TickPublishesSnapshot(t *testing.T) {
	l, ep, _ := newTestLoop()
	ep.deliver(testPeer, helloPayload(t, 1))
	l.tick()

	snap := l.Snapshot()
	require.True(t, snap.SessionActive)
}

func TestLoop_ShutdownClosesEndpointAndBridge(t *testing.T) {
	l, ep, br := newTestLoop()
	l.shutdown()
	require.True(t, ep.closed)
	require.True(t, br.shutdown)
}

func TestLoop_RunReturnsErrBridgeUnavailableOnFatal(t *testing.T) {
	l, _, br := newTestLoop()
	br.fatalCh <- errors.New("sidecar spawn failed after backoff ceiling")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := l.Run(ctx)
	require.ErrorIs(t, err, ErrBridgeUnavailable)
}

func TestLoop_RunReturnsNilOnContextCancel(t *testing.T) {
	l, _, _ := newTestLoop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Run(ctx)
	require.NoError(t, err)
}
