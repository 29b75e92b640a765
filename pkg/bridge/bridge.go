// Package bridge owns the sidecar process that presents GamepadState
// to the platform's virtual-gamepad driver and reports native FFB
// back. The three platform targets share one process wrapper and
// differ only in the control-line payload sent at spawn time.
package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/Fooderapp/WheelerHost-V1/pkg/clock"
	"github.com/Fooderapp/WheelerHost-V1/pkg/diag"
	"github.com/Fooderapp/WheelerHost-V1/pkg/wire"
)

// Target is the sealed set of sidecar variants.
type Target int

const (
	TargetX360 Target = iota
	TargetDS4
	TargetDKBridge
)

// ParseTarget maps a config string to a Target.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "x360":
		return TargetX360, nil
	case "ds4":
		return TargetDS4, nil
	case "dkbridge":
		return TargetDKBridge, nil
	default:
		return 0, fmt.Errorf("bridge: unknown target %q", s)
	}
}

func (t Target) String() string {
	switch t {
	case TargetX360:
		return "x360"
	case TargetDS4:
		return "ds4"
	case TargetDKBridge:
		return "dkbridge"
	default:
		return "unknown"
	}
}

// controlValue returns the "value" field of the {"type":"target",...}
// control line, or "" when this target has no ViGEmBus-style
// emulated-class switch to send. The DriverKit-backed dkbridge
// sidecar owns a single fixed virtual device and never receives this
// line.
func (t Target) controlValue() string {
	switch t {
	case TargetX360:
		return "x360"
	case TargetDS4:
		return "ds4"
	default:
		return ""
	}
}

const (
	minAxisDelta    = 0.006
	minTriggerDelta = 1 // LSB
	maxBackoff      = 5 * time.Second
	startBackoff    = 100 * time.Millisecond
	stableUptime    = 5 * time.Second
	shutdownGrace   = 500 * time.Millisecond
	childSpawnGrace = 200 * time.Millisecond
	pendingTTL      = 250 * time.Millisecond
	garbageLimit    = 10 // consecutive bad lines before forced restart
	fatalAfter      = 5  // min consecutive spawn failures before a failure at the backoff ceiling is fatal
	ffbQueueCap     = 256
)

// Config tunes one Supervisor.
type Config struct {
	Exe         string
	Target      Target
	KeepaliveMs int
}

// stateLine is the sidecar stdin wire shape.
type stateLine struct {
	Lx      float64 `json:"lx"`
	Ly      float64 `json:"ly"`
	Rt      uint8   `json:"rt"`
	Lt      uint8   `json:"lt"`
	Buttons uint32  `json:"buttons"`
}

type controlLine struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// sidecarLine is the tolerant shape of one stdout line from the
// sidecar ("ready" and "ffb" messages).
type sidecarLine struct {
	Type    string  `json:"type"`
	RumbleL float64 `json:"rumbleL"`
	RumbleR float64 `json:"rumbleR"`
}

// FFBEvent is one native-FFB report from the sidecar, time-stamped by
// the Clock at receipt.
type FFBEvent struct {
	RumbleL, RumbleR float64
	At               time.Time
}

// Supervisor owns exactly one sidecar child process across its
// lifetime, respawning on crash with exponential backoff.
type Supervisor struct {
	cfg  Config
	clk  clock.Clock
	diag *diag.Counters

	ffbCh chan FFBEvent

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	ready       bool
	lastSent    wire.GamepadState
	haveSent    bool
	lastSentAt  time.Time
	pending     wire.GamepadState
	havePending bool
	pendingAt   time.Time
	restarts    int
	garbageRun  int

	childDone chan struct{}
	stopCh    chan struct{}
	fatalCh   chan error
	wg        sync.WaitGroup
}

// New returns a Supervisor that has not yet been started.
func New(cfg Config, clk clock.Clock, d *diag.Counters) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		clk:     clk,
		diag:    d,
		ffbCh:   make(chan FFBEvent, ffbQueueCap),
		stopCh:  make(chan struct{}),
		fatalCh: make(chan error, 1),
	}
}

// Start launches the supervisor's spawn/respawn goroutine. Spawn
// failure is asynchronous: watch FatalCh for the backoff-ceiling exit
// condition.
func (s *Supervisor) Start() {
	s.wg.Add(1)
	go s.run()
}

// FatalCh reports an unrecoverable sidecar failure: a spawn attempt
// made with the backoff at its ceiling has failed, after at least
// fatalAfter consecutive failed spawns.
func (s *Supervisor) FatalCh() <-chan error { return s.fatalCh }

// Ready reports whether the current child has signaled readiness.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// RestartCount returns the number of times the sidecar has been
// respawned since Start.
func (s *Supervisor) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// PollFFB drains all FFB events received since the last call.
func (s *Supervisor) PollFFB() []FFBEvent {
	var out []FFBEvent
	for {
		select {
		case e := <-s.ffbCh:
			out = append(out, e)
		default:
			return out
		}
	}
}

// Push stages state for delivery to the sidecar, writing it
// immediately if it differs from the last sent state by the delta
// thresholds, or if the keepalive interval has elapsed. When the
// child isn't ready, state is held as "pending" for at most
// pendingTTL before being superseded; a single latest-value slot
// suffices since only the newest state is ever worth delivering.
func (s *Supervisor) Push(state wire.GamepadState) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		s.pending = state
		s.havePending = true
		s.pendingAt = now
		return
	}

	keepaliveDue := s.haveSent && now.Sub(s.lastSentAt) >= time.Duration(s.cfg.KeepaliveMs)*time.Millisecond
	changed := !s.haveSent || stateDiffers(s.lastSent, state)
	if !changed && !keepaliveDue {
		return
	}

	s.writeStateLocked(state, now)
}

// writeStateLocked must be called with mu held.
func (s *Supervisor) writeStateLocked(state wire.GamepadState, now time.Time) {
	if s.stdin == nil {
		return
	}
	line := stateLine{
		Lx:      state.Lx,
		Ly:      state.Ly,
		Rt:      state.Rt,
		Lt:      state.Lt,
		Buttons: uint32(state.Buttons),
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	data = append(data, '\n')
	if _, err := s.stdin.Write(data); err != nil {
		if s.diag != nil {
			s.diag.BridgeWriteEAGAIN.Add(1)
		}
		return
	}
	s.lastSent = state
	s.haveSent = true
	s.lastSentAt = now
}

// Shutdown flushes a neutral state, closes the pipe, and waits up to
// shutdownGrace for the child to exit before hard-killing it.
func (s *Supervisor) Shutdown() {
	close(s.stopCh)

	s.mu.Lock()
	if s.stdin != nil {
		s.writeStateLocked(wire.Neutral, s.clk.Now())
	}
	cmd := s.cmd
	stdin := s.stdin
	s.mu.Unlock()

	if stdin != nil {
		stdin.Close()
	}

	if cmd != nil && cmd.Process != nil {
		done := make(chan struct{})
		go func() { cmd.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			cmd.Process.Kill()
			<-done
		}
	}

	s.wg.Wait()
}

func stateDiffers(a, b wire.GamepadState) bool {
	if absF(a.Lx-b.Lx) >= minAxisDelta || absF(a.Ly-b.Ly) >= minAxisDelta {
		return true
	}
	if absDelta8(a.Rt, b.Rt) >= minTriggerDelta || absDelta8(a.Lt, b.Lt) >= minTriggerDelta {
		return true
	}
	return a.Buttons != b.Buttons
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func absDelta8(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

// run is the spawn/respawn loop, one iteration per child lifetime.
func (s *Supervisor) run() {
	defer s.wg.Done()

	backoff := startBackoff
	consecutiveSpawnFailures := 0

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.spawnOnce(); err != nil {
			consecutiveSpawnFailures++
			log.Printf("Sidecar spawn failed: %v (retry in %s)", err, backoff)
			if backoff >= maxBackoff && consecutiveSpawnFailures >= fatalAfter {
				select {
				case s.fatalCh <- fmt.Errorf("bridge: no sidecar available after %d attempts: %w", consecutiveSpawnFailures, err):
				default:
				}
				return
			}
			if !s.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		consecutiveSpawnFailures = 0
		spawnedAt := s.clk.Now()

		<-s.childDone

		select {
		case <-s.stopCh:
			return
		default:
		}

		if s.diag != nil {
			s.diag.BridgeRestarts.Add(1)
		}
		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()

		// A crash-looping child must keep escalating the delay; only a
		// child that stayed up long enough to prove itself resets it.
		backoff = backoffAfterExit(s.clk.Now().Sub(spawnedAt), backoff)
		log.Printf("Sidecar %s exited, respawning in %s", s.cfg.Exe, backoff)

		if !s.sleep(backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// backoffAfterExit picks the respawn delay after a child exit: back to
// startBackoff when the child survived stableUptime, otherwise the
// current (still-escalating) delay.
func backoffAfterExit(uptime, current time.Duration) time.Duration {
	if uptime >= stableUptime {
		return startBackoff
	}
	return current
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// sleep waits for d or stopCh, reporting false if shutdown fired.
func (s *Supervisor) sleep(d time.Duration) bool {
	select {
	case <-s.clk.After(d):
		return true
	case <-s.stopCh:
		return false
	}
}

// spawnOnce starts exactly one child process and its reader goroutine.
func (s *Supervisor) spawnOnce() error {
	cmd := exec.Command(s.cfg.Exe)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("bridge: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("bridge: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("bridge: start %s: %w", s.cfg.Exe, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.ready = false
	s.haveSent = false
	s.garbageRun = 0
	s.childDone = make(chan struct{})
	childDone := s.childDone
	// Any state staged while the previous child was absent stays
	// pending across the respawn; it is flushed, or discarded if
	// stale, once the new child reports ready.
	s.mu.Unlock()

	if cv := s.cfg.Target.controlValue(); cv != "" {
		ctrl, _ := json.Marshal(controlLine{Type: "target", Value: cv})
		ctrl = append(ctrl, '\n')
		stdin.Write(ctrl)
	}

	go s.readChild(stdout, cmd, childDone)

	return nil
}

// readChild drains one child's stdout until EOF or a run of
// garbageLimit consecutive unparseable lines, then kills the process
// and signals childDone exactly once.
func (s *Supervisor) readChild(stdout io.ReadCloser, cmd *exec.Cmd, childDone chan struct{}) {
	defer close(childDone)
	defer s.markChildDown()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		var parsed sidecarLine
		if len(line) == 0 || line[0] != '{' {
			s.onGarbageLine()
		} else if err := json.Unmarshal(line, &parsed); err != nil {
			s.onGarbageLine()
		} else {
			s.onGoodLine(parsed)
		}

		if s.garbageExceeded() {
			break
		}
	}

	if cmd.Process != nil {
		cmd.Process.Kill()
	}
	cmd.Wait()
}

// markChildDown clears the ready flag the moment the child's stdout
// ends, so Ready reports the loss before the respawn delay elapses and
// the session loop can degrade FFB to zero right away.
func (s *Supervisor) markChildDown() {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
}

func (s *Supervisor) onGarbageLine() {
	s.mu.Lock()
	s.garbageRun++
	if s.diag != nil {
		s.diag.BridgeParseFailures.Add(1)
	}
	s.mu.Unlock()
}

func (s *Supervisor) garbageExceeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.garbageRun >= garbageLimit
}

func (s *Supervisor) onGoodLine(line sidecarLine) {
	s.mu.Lock()
	s.garbageRun = 0
	switch line.Type {
	case "ready":
		s.ready = true
		if s.havePending && s.clk.Now().Sub(s.pendingAt) <= pendingTTL {
			state := s.pending
			s.havePending = false
			s.mu.Unlock()
			s.Push(state)
			return
		}
		s.havePending = false
	case "ffb":
		ev := FFBEvent{RumbleL: line.RumbleL, RumbleR: line.RumbleR, At: s.clk.Now()}
		s.mu.Unlock()
		select {
		case s.ffbCh <- ev:
		default:
			select {
			case <-s.ffbCh:
			default:
			}
			select {
			case s.ffbCh <- ev:
			default:
			}
		}
		return
	}
	s.mu.Unlock()
}
