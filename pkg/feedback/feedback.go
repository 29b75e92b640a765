// Package feedback arbitrates between game-reported and audio-derived
// rumble, producing the FeedbackState replied to the phone.
package feedback

import (
	"time"

	"github.com/Fooderapp/WheelerHost-V1/pkg/clock"
	"github.com/Fooderapp/WheelerHost-V1/pkg/haptics"
	"github.com/Fooderapp/WheelerHost-V1/pkg/wire"
)

// Mode selects the FFB arbitration strategy.
type Mode int

const (
	ModePassthrough Mode = iota
	ModeSynthetic
	ModeHybrid
)

// ParseMode maps a config string to a Mode; ModeHybrid is returned for
// anything unrecognized, matching the validated default in pkg/config.
func ParseMode(s string) Mode {
	switch s {
	case "passthrough":
		return ModePassthrough
	case "synthetic":
		return ModeSynthetic
	default:
		return ModeHybrid
	}
}

func (m Mode) String() string {
	switch m {
	case ModePassthrough:
		return "passthrough"
	case ModeSynthetic:
		return "synthetic"
	default:
		return "hybrid"
	}
}

// Config tunes the mixer.
type Config struct {
	Mode    Mode
	StaleMs int
	GainL   float64
	GainR   float64
}

const (
	emaAlpha       = 0.25
	impactAttack   = 30 * time.Millisecond
	impactDecay    = 180 * time.Millisecond
	centerBand     = 0.02
	centerHoldTime = 250 * time.Millisecond
)

// Mixer owns the FFB state machine fed by BridgeSupervisor (native
// FFB callbacks) and AudioIngestor (synthetic haptics). It persists
// across sidecar restarts; only session boundaries Reset it.
type Mixer struct {
	cfg    Config
	clk    clock.Clock
	tickHz float64

	// native FFB, last reported by the sidecar
	nativeL, nativeR float64
	nativeAt         time.Time
	haveNative       bool

	// smoothing state for hybrid mode
	emaL, emaR float64

	// impact envelope
	impactPeak float64
	impactAt   time.Time

	// center-event tracking
	sessionStart    bool
	withinCenter    bool
	centerEnteredAt time.Time
	lastCenterFired bool

	analyzerL *haptics.Analyzer
	analyzerR *haptics.Analyzer
}

// New returns a Mixer for one session. tickHz is the session loop's
// cadence, used to size the oscillation-detection window.
func New(cfg Config, clk clock.Clock, tickHz float64) *Mixer {
	return &Mixer{
		cfg:          cfg,
		clk:          clk,
		tickHz:       tickHz,
		sessionStart: true,
		analyzerL:    haptics.NewAnalyzer(tickHz),
		analyzerR:    haptics.NewAnalyzer(tickHz),
	}
}

// SetMode changes the arbitration mode; takes effect on the next
// Compose call.
func (m *Mixer) SetMode(mode Mode) {
	m.cfg.Mode = mode
}

// OnNativeFFB records a native FFB line received from the sidecar.
func (m *Mixer) OnNativeFFB(rumbleL, rumbleR float64) {
	m.nativeL = rumbleL
	m.nativeR = rumbleR
	m.nativeAt = m.clk.Now()
	m.haveNative = true
}

// OnSidecarLost forces native FFB to zero immediately so a dead
// sidecar cannot leave the phone buzzing on the last value while the
// supervisor is still backing off toward a respawn. The session loop
// calls it on every tick the supervisor reports not-ready.
func (m *Mixer) OnSidecarLost() {
	m.haveNative = false
}

// Compose produces the next FeedbackState for ack from steering and
// the latest AudioFeatures. steering is the translated Lx value, used
// only for center-event detection.
func (m *Mixer) Compose(ack uint32, steering float64, audio wire.AudioFeatures) wire.FeedbackState {
	var rl, rr float64

	switch m.cfg.Mode {
	case ModePassthrough:
		rl, rr = m.passthrough()
	case ModeSynthetic:
		rl, rr = m.synthetic(audio)
	default:
		pl, pr := m.passthrough()
		sl, sr := m.synthetic(audio)
		rl = maxF(pl, sl)
		rr = maxF(pr, sr)
		m.emaL = emaAlpha*rl + (1-emaAlpha)*m.emaL
		m.emaR = emaAlpha*rr + (1-emaAlpha)*m.emaR
		rl, rr = m.emaL, m.emaR
	}

	impact := m.composeImpact(audio.Impact)
	trigL, trigR := m.composeTriggers(audio)
	center := m.composeCenter(steering)

	return wire.FeedbackState{
		RumbleL: clampF(rl, 0, 1),
		RumbleR: clampF(rr, 0, 1),
		TrigL:   trigL,
		TrigR:   trigR,
		Impact:  impact,
		Center:  center,
		Ack:     ack,
	}
}

// Reset clears session-scoped state (center/impact history) for a new
// session, leaving config untouched.
func (m *Mixer) Reset() {
	m.haveNative = false
	m.emaL, m.emaR = 0, 0
	m.impactPeak = 0
	m.sessionStart = true
	m.withinCenter = false
	m.lastCenterFired = false
	m.analyzerL = haptics.NewAnalyzer(m.tickHz)
	m.analyzerR = haptics.NewAnalyzer(m.tickHz)
}

func (m *Mixer) passthrough() (rl, rr float64) {
	if !m.haveNative {
		return 0, 0
	}
	if m.clk.Now().Sub(m.nativeAt) > time.Duration(m.cfg.StaleMs)*time.Millisecond {
		return 0, 0
	}
	return m.nativeL, m.nativeR
}

func (m *Mixer) synthetic(audio wire.AudioFeatures) (rl, rr float64) {
	rl = clampF(audio.BodyL*m.cfg.GainL, 0, 1)
	rr = clampF(audio.BodyR*m.cfg.GainR, 0, 1)
	return rl, rr
}

// composeImpact applies a one-shot attack/decay envelope on top of
// the raw impact feature so the phone can trigger a distinct haptic
// burst.
func (m *Mixer) composeImpact(raw float64) float64 {
	now := m.clk.Now()
	if raw > m.impactPeak {
		m.impactPeak = raw
		m.impactAt = now
	}
	if m.impactPeak <= 0 {
		return 0
	}

	elapsed := now.Sub(m.impactAt)
	switch {
	case elapsed < impactAttack:
		return m.impactPeak * float64(elapsed) / float64(impactAttack)
	case elapsed < impactAttack+impactDecay:
		decayElapsed := elapsed - impactAttack
		remaining := 1 - float64(decayElapsed)/float64(impactDecay)
		v := m.impactPeak * remaining
		if v < 0 {
			v = 0
		}
		return v
	default:
		m.impactPeak = 0
		return 0
	}
}

// composeTriggers sets trigL/trigR only when the audio engine/bodyR
// channel shows ABS/slip-like oscillation.
func (m *Mixer) composeTriggers(audio wire.AudioFeatures) (trigL, trigR float64) {
	m.analyzerL.Feed(audio.Engine)
	m.analyzerR.Feed(audio.BodyR)

	if _, ok := m.analyzerL.Detect(); ok {
		trigL = clampF(audio.Engine, 0, 1)
	}
	if _, ok := m.analyzerR.Detect(); ok {
		trigR = clampF(audio.BodyR, 0, 1)
	}
	return trigL, trigR
}

// composeCenter is an edge event, not a level: true once on session
// start, then again after an excursion settles back within the center
// band for centerHoldTime.
func (m *Mixer) composeCenter(steering float64) bool {
	if m.sessionStart {
		m.sessionStart = false
		// The session-start event counts as this band entry's firing,
		// so resting at center afterwards does not fire it again.
		m.withinCenter = absF(steering) <= centerBand
		m.lastCenterFired = true
		return true
	}

	now := m.clk.Now()
	inBand := absF(steering) <= centerBand

	if !inBand {
		m.withinCenter = false
		m.lastCenterFired = false
		return false
	}

	if !m.withinCenter {
		m.withinCenter = true
		m.centerEnteredAt = now
		m.lastCenterFired = false
		return false
	}

	if !m.lastCenterFired && now.Sub(m.centerEnteredAt) >= centerHoldTime {
		m.lastCenterFired = true
		return true
	}
	return false
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
