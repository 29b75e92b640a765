// Package translator converts validated phone telemetry into the
// normalized GamepadState pushed to the sidecar.
package translator

import (
	"math"

	"github.com/Fooderapp/WheelerHost-V1/pkg/wire"
)

// Config tunes the steering and latch pipeline.
type Config struct {
	Expo       float64
	Deadzone   float64
	LatchTicks int
}

// latch tracks one button's hold-time state.
type latch struct {
	asserted  bool
	expiresAt int // tick index, valid only while asserted
}

// Translator holds per-session latch state across ticks; Reset is
// called whenever a new session begins.
type Translator struct {
	cfg     Config
	latches map[string]*latch
	tick    int
}

// New returns a Translator with empty latch state.
func New(cfg Config) *Translator {
	return &Translator{
		cfg:     cfg,
		latches: make(map[string]*latch, len(wire.ButtonNames)),
	}
}

// Reset clears latch state for a fresh session.
func (t *Translator) Reset() {
	t.latches = make(map[string]*latch, len(wire.ButtonNames))
	t.tick = 0
}

// Translate computes the GamepadState for one tick from the latest
// accepted InputPacket. It must be called exactly once per
// session-loop tick, in tick order, for latch timing to hold.
func (t *Translator) Translate(pkt *wire.InputPacket) wire.GamepadState {
	t.tick++

	steer := t.steering(pkt)

	dpadX, dpadY := dpadStick(pkt)
	// A D-pad press overrides both the packet's own ls_x/ls_y and the
	// wheel's steering axis; the two are mutually exclusive ways of
	// driving the same stick.
	lx := pick(dpadX, pick(pkt.Axes.LsX, steer))
	ly := pick(dpadY, pkt.Axes.LsY)

	rt := round255(pkt.Axes.Throttle)
	lt := round255(pkt.Axes.Brake)

	buttons := t.latchButtons(pkt)

	return wire.GamepadState{
		Lx:      clampF(lx, -1, 1),
		Ly:      clampF(ly, -1, 1),
		Rt:      rt,
		Lt:      lt,
		Buttons: buttons,
	}
}

// pick returns primary unless it is zero, in which case fallback is
// used.
func pick(primary, fallback float64) float64 {
	if primary != 0 {
		return primary
	}
	return fallback
}

// steering runs the deadzone/expo/clamp pipeline. The steering value
// is normally lock-normalized on the phone and arrives as steering_x;
// when that is absent and a raw gravity vector is present, the angle
// is derived on-host instead.
func (t *Translator) steering(pkt *wire.InputPacket) float64 {
	x := pkt.Axes.SteeringX
	if x == 0 {
		x = tiltSteering(pkt)
	}
	x = clampF(x, -1, 1)

	dead := t.cfg.Deadzone
	if pkt.Meta.TiltDead > 0 {
		dead = pkt.Meta.TiltDead
	}
	if math.Abs(x) < dead {
		x = 0
	}

	e := t.cfg.Expo
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	ax := math.Abs(x)
	x = sign * ((1-e)*ax + e*ax*ax*ax)

	return clampF(x, -1, 1)
}

// defaultTiltLockDeg bounds the steering range when the phone reports
// raw gravity without a lock angle.
const defaultTiltLockDeg = 60.0

// tiltSteering derives steering from the raw gravity vector:
// θ = atan2(g_y, g_z), scaled by the tilt lock angle and sign-flipped
// for a 270° screen rotation (the phone held the other way up).
func tiltSteering(pkt *wire.InputPacket) float64 {
	gy, gz := pkt.Axes.Gy, pkt.Axes.Gz
	if gy == 0 && gz == 0 {
		return 0
	}
	lock := pkt.Meta.TiltLockDeg
	if lock <= 0 {
		lock = defaultTiltLockDeg
	}
	theta := math.Atan2(gy, gz) * 180 / math.Pi
	x := theta / lock
	if pkt.Meta.ScreenDeg == 270 {
		x = -x
	}
	return x
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

func round255(v float64) uint8 {
	v = clampF(v, 0, 1)
	r := math.Round(v * 255)
	if r > 255 {
		r = 255
	}
	if r < 0 {
		r = 0
	}
	return uint8(r)
}

// dpadStick derives a left-stick vector from the D-pad buttons:
// ls_x = right-left, ls_y = down-up (up negative, the phone's
// convention).
func dpadStick(pkt *wire.InputPacket) (x, y float64) {
	if pkt.ButtonPressed("DPadRight") {
		x += 1
	}
	if pkt.ButtonPressed("DPadLeft") {
		x -= 1
	}
	if pkt.ButtonPressed("DPadDown") {
		y += 1
	}
	if pkt.ButtonPressed("DPadUp") {
		y -= 1
	}
	return x, y
}

// latchButtons applies the rising-edge hold rule per button bit: once
// pressed, the output bit stays asserted for at least LatchTicks ticks
// so a dropped datagram cannot flicker a button.
func (t *Translator) latchButtons(pkt *wire.InputPacket) uint16 {
	var mask uint16
	for i, name := range wire.ButtonNames {
		pressed := pkt.ButtonPressed(name)
		l, ok := t.latches[name]
		if !ok {
			l = &latch{}
			t.latches[name] = l
		}

		switch {
		case pressed && !l.asserted:
			l.asserted = true
			l.expiresAt = t.tick + t.cfg.LatchTicks
		case pressed && l.asserted:
			l.expiresAt = t.tick + t.cfg.LatchTicks
		case !pressed && l.asserted:
			if t.tick >= l.expiresAt {
				l.asserted = false
			}
		}

		if l.asserted {
			mask |= 1 << uint16(i)
		}
	}
	return mask
}
