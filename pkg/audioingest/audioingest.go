// Package audioingest launches the platform audio helper and exposes
// its latest haptic feature report to pkg/feedback. The ingestor does
// no DSP of its own: it trusts the envelope values the helper process
// reports over one JSON line per sample.
package audioingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"

	"github.com/Fooderapp/WheelerHost-V1/pkg/diag"
	"github.com/Fooderapp/WheelerHost-V1/pkg/wire"
)

// lineQueueCap bounds the reader goroutine's raw-line queue; the
// oldest line is dropped on overflow. The ingestor only ever cares
// about the most recent features, but the queue is the seam between
// the blocking stdout read and the single consumer that parses it.
const lineQueueCap = 256

type rawLine struct {
	Status string  `json:"status"`
	BodyL  float64 `json:"bodyL"`
	BodyR  float64 `json:"bodyR"`
	Impact float64 `json:"impact"`
	Engine float64 `json:"engine"`
	Device string  `json:"device"`
}

// Ingestor spawns the configured helper binary and keeps the latest
// wire.AudioFeatures, updated from a dedicated reader goroutine and
// read by the session loop each tick.
type Ingestor struct {
	helperPath string
	diag       *diag.Counters

	cmd    *exec.Cmd
	stdout io.ReadCloser
	lines  chan string
	done   chan struct{}

	mu     sync.Mutex
	latest wire.AudioFeatures
	armed  bool
}

// New returns an Ingestor for helperPath. An empty path disables the
// ingestor entirely: Start becomes a no-op and Latest always reports
// the zero AudioFeatures.
func New(helperPath string, d *diag.Counters) *Ingestor {
	return &Ingestor{helperPath: helperPath, diag: d}
}

// Enabled reports whether a helper path was configured.
func (ing *Ingestor) Enabled() bool { return ing.helperPath != "" }

// Start spawns the helper process and begins reading its stdout. It
// is a no-op when no helper is configured.
func (ing *Ingestor) Start() error {
	if !ing.Enabled() {
		return nil
	}

	cmd := exec.Command(ing.helperPath)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audioingest: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audioingest: start helper: %w", err)
	}

	ing.cmd = cmd
	ing.stdout = stdout
	ing.lines = make(chan string, lineQueueCap)
	ing.done = make(chan struct{})

	go ing.readLoop()
	go ing.parseLoop()

	return nil
}

// Stop terminates the helper process and waits for its reader
// goroutines to exit. Safe to call even if Start was a no-op.
func (ing *Ingestor) Stop() {
	if ing.cmd == nil {
		return
	}
	if ing.stdout != nil {
		ing.stdout.Close()
	}
	if ing.cmd.Process != nil {
		ing.cmd.Process.Kill()
	}
	ing.cmd.Wait()
	<-ing.done

	ing.mu.Lock()
	ing.armed = false
	ing.latest = wire.AudioFeatures{}
	ing.mu.Unlock()
}

// readLoop drains the helper's stdout line-by-line into the bounded
// queue, dropping the oldest entry on overflow.
func (ing *Ingestor) readLoop() {
	scanner := bufio.NewScanner(ing.stdout)
	for scanner.Scan() {
		line := scanner.Text()
		select {
		case ing.lines <- line:
		default:
			select {
			case <-ing.lines:
			default:
			}
			select {
			case ing.lines <- line:
			default:
			}
		}
	}
	close(ing.lines)
}

// parseLoop is the single consumer of the line queue: it parses each
// line, updates the shared AudioFeatures snapshot, and tracks the
// arm/disarm status transitions. Lines that do not start with '{' are
// skipped uncounted; lines that start with '{' but fail to parse are
// counted. Neither is ever fatal.
func (ing *Ingestor) parseLoop() {
	defer close(ing.done)
	defer func() {
		ing.mu.Lock()
		ing.armed = false
		ing.latest = wire.AudioFeatures{}
		ing.mu.Unlock()
	}()

	for line := range ing.lines {
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var raw rawLine
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			if ing.diag != nil {
				ing.diag.AudioParseFailures.Add(1)
			}
			continue
		}

		switch raw.Status {
		case "started":
			log.Printf("Audio helper armed (device: %s)", raw.Device)
			ing.mu.Lock()
			ing.armed = true
			ing.mu.Unlock()
			continue
		case "stopped", "error":
			log.Printf("Audio helper disarmed (status: %s)", raw.Status)
			ing.mu.Lock()
			ing.armed = false
			ing.latest = wire.AudioFeatures{}
			ing.mu.Unlock()
			continue
		}

		ing.mu.Lock()
		if ing.armed {
			ing.latest = wire.AudioFeatures{
				BodyL:  clampF(raw.BodyL),
				BodyR:  clampF(raw.BodyR),
				Impact: clampF(raw.Impact),
				Engine: clampF(raw.Engine),
				Device: raw.Device,
			}
		}
		ing.mu.Unlock()
	}
}

// Latest returns the most recently parsed AudioFeatures, or the zero
// value when disarmed or no helper is configured.
func (ing *Ingestor) Latest() wire.AudioFeatures {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.latest
}

// Armed reports whether the helper has reported "started" without a
// subsequent "stopped"/"error" or EOF.
func (ing *Ingestor) Armed() bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.armed
}

func clampF(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
