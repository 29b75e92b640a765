package translator

import (
	"math"
	"testing"

	"github.com/Fooderapp/WheelerHost-V1/pkg/wire"
)

func cfg() Config {
	return Config{Expo: 0.22, Deadzone: 0.06, LatchTicks: 3}
}

func packet(steer, throttle, brake float64, buttons map[string]bool) *wire.InputPacket {
	return &wire.InputPacket{
		Axes:    wire.Axes{SteeringX: steer, Throttle: throttle, Brake: brake},
		Buttons: buttons,
	}
}

func TestTranslate_Neutral(t *testing.T) {
	tr := New(cfg())
	out := tr.Translate(packet(0, 1.0, 0.0, map[string]bool{"A": true}))

	if out.Lx != 0 {
		t.Errorf("expected lx 0, got %v", out.Lx)
	}
	if out.Rt != 255 {
		t.Errorf("expected rt 255, got %v", out.Rt)
	}
	if out.Lt != 0 {
		t.Errorf("expected lt 0, got %v", out.Lt)
	}
	if out.Buttons&(1<<wire.BitA) == 0 {
		t.Errorf("expected button A asserted")
	}
}

func TestTranslate_SteeringOddSymmetric(t *testing.T) {
	tr := New(cfg())
	pos := tr.Translate(packet(0.5, 0, 0, nil))
	tr2 := New(cfg())
	neg := tr2.Translate(packet(-0.5, 0, 0, nil))

	if pos.Lx != -neg.Lx {
		t.Errorf("expected odd symmetry, got %v and %v", pos.Lx, neg.Lx)
	}
}

func TestTranslate_Deadzone(t *testing.T) {
	tr := New(cfg())
	// just under the deadzone, from below
	out := tr.Translate(packet(0.05, 0, 0, nil))
	if out.Lx != 0 {
		t.Errorf("expected lx 0 within deadzone, got %v", out.Lx)
	}
}

func TestTranslate_FullLock(t *testing.T) {
	tr := New(cfg())
	out := tr.Translate(packet(1.0, 0, 0, nil))
	if out.Lx != 1.0 {
		t.Errorf("expected lx 1.0 at full lock, got %v", out.Lx)
	}
	tr2 := New(cfg())
	out2 := tr2.Translate(packet(-1.0, 0, 0, nil))
	if out2.Lx != -1.0 {
		t.Errorf("expected lx -1.0 at full lock, got %v", out2.Lx)
	}
}

func TestTranslate_ButtonLatch(t *testing.T) {
	tr := New(cfg())

	out := tr.Translate(packet(0, 0, 0, map[string]bool{"A": true}))
	if out.Buttons&(1<<wire.BitA) == 0 {
		t.Fatalf("expected A asserted on rising edge")
	}

	// release immediately; latch should hold through tick 3
	out = tr.Translate(packet(0, 0, 0, map[string]bool{"A": false}))
	if out.Buttons&(1<<wire.BitA) == 0 {
		t.Errorf("expected A still latched on tick 2")
	}
	out = tr.Translate(packet(0, 0, 0, map[string]bool{"A": false}))
	if out.Buttons&(1<<wire.BitA) == 0 {
		t.Errorf("expected A still latched on tick 3")
	}
	out = tr.Translate(packet(0, 0, 0, map[string]bool{"A": false}))
	if out.Buttons&(1<<wire.BitA) != 0 {
		t.Errorf("expected A released by tick 4")
	}
}

func TestTranslate_TiltFallback(t *testing.T) {
	// gy=1, gz=√3 is a 30° tilt; with a 60° lock that is half steering
	tr := New(Config{Expo: 0, Deadzone: 0.06, LatchTicks: 3})
	out := tr.Translate(&wire.InputPacket{
		Axes: wire.Axes{Gy: 1, Gz: math.Sqrt(3)},
		Meta: wire.Meta{TiltLockDeg: 60},
	})
	if math.Abs(out.Lx-0.5) > 1e-9 {
		t.Errorf("expected lx 0.5 from raw tilt, got %v", out.Lx)
	}
}

func TestTranslate_TiltParityInvertsAt270(t *testing.T) {
	tr := New(Config{Expo: 0, Deadzone: 0.06, LatchTicks: 3})
	out := tr.Translate(&wire.InputPacket{
		Axes: wire.Axes{Gy: 1, Gz: math.Sqrt(3)},
		Meta: wire.Meta{TiltLockDeg: 60, ScreenDeg: 270},
	})
	if math.Abs(out.Lx+0.5) > 1e-9 {
		t.Errorf("expected lx -0.5 with 270° screen rotation, got %v", out.Lx)
	}
}

func TestTranslate_PhoneSteeringWinsOverTilt(t *testing.T) {
	tr := New(Config{Expo: 0, Deadzone: 0.06, LatchTicks: 3})
	out := tr.Translate(&wire.InputPacket{
		Axes: wire.Axes{SteeringX: 0.8, Gy: 1, Gz: 1},
		Meta: wire.Meta{TiltLockDeg: 60},
	})
	if math.Abs(out.Lx-0.8) > 1e-9 {
		t.Errorf("expected phone-normalized steering to win, got %v", out.Lx)
	}
}

func TestTranslate_TiltDeadOverridesConfigDeadzone(t *testing.T) {
	tr := New(Config{Expo: 0, Deadzone: 0.06, LatchTicks: 3})
	out := tr.Translate(&wire.InputPacket{
		Axes: wire.Axes{SteeringX: 0.1},
		Meta: wire.Meta{TiltDead: 0.2},
	})
	if out.Lx != 0 {
		t.Errorf("expected lx 0 inside the phone-reported deadzone, got %v", out.Lx)
	}
}

func TestTranslate_DPadOverridesSteering(t *testing.T) {
	tr := New(cfg())
	out := tr.Translate(packet(0.5, 0, 0, map[string]bool{"DPadRight": true}))
	if out.Lx != 1.0 {
		t.Errorf("expected dpad right to override steering with lx=1.0, got %v", out.Lx)
	}
}

func TestTranslate_TriggerBoundaries(t *testing.T) {
	tr := New(cfg())
	out := tr.Translate(packet(0, 1.0, 0.0, nil))
	if out.Rt != 255 || out.Lt != 0 {
		t.Errorf("expected rt=255 lt=0, got rt=%d lt=%d", out.Rt, out.Lt)
	}
}
