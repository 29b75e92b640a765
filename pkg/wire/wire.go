// Package wire holds the data types that cross a process boundary in
// WheelerHost: the phone's UDP telemetry packet, the normalized
// gamepad state pushed to the sidecar, the FFB state replied to the
// phone, and the audio helper's feature stream.
package wire

// Bit positions of the 13 logical buttons in GamepadState.Buttons.
// The handbrake (bit 12) is a plain button bit, never stretched into
// the left trigger.
const (
	BitA uint16 = iota
	BitB
	BitX
	BitY
	BitLB
	BitRB
	BitStart
	BitBack
	BitDPadUp
	BitDPadDown
	BitDPadLeft
	BitDPadRight
	BitHB
)

// ButtonNames lists the 13 logical button names in bit order, matching
// the phone payload's buttons.* field names.
var ButtonNames = [13]string{
	"A", "B", "X", "Y", "LB", "RB", "Start", "Back",
	"DPadUp", "DPadDown", "DPadLeft", "DPadRight", "HB",
}

// Axes holds the phone's reported steering/pedal/stick telemetry.
// Gy/Gz are raw gravity components, sent only when the phone has not
// already lock-normalized steering into SteeringX.
type Axes struct {
	SteeringX float64 `json:"steering_x"`
	Throttle  float64 `json:"throttle"`
	Brake     float64 `json:"brake"`
	LatG      float64 `json:"latG"`
	LsX       float64 `json:"ls_x"`
	LsY       float64 `json:"ls_y"`
	Gy        float64 `json:"g_y"`
	Gz        float64 `json:"g_z"`
}

// Meta holds informational/tuning fields from the phone payload.
type Meta struct {
	Hello        bool    `json:"hello"`
	ScreenDeg    float64 `json:"screen_deg"`
	TiltLockDeg  float64 `json:"tiltLockDeg"`
	TiltDead     float64 `json:"tiltDead"`
	InBackground bool    `json:"inbackground"`
	Disconnect   bool    `json:"disconnect"`
}

// InputPacket is the validated, decoded form of a phone→host datagram.
// Seq is tracked per session for ordering.
type InputPacket struct {
	Sig     string          `json:"sig"`
	Seq     uint32          `json:"seq"`
	T       uint64          `json:"t"`
	Axes    Axes            `json:"axis"`
	Buttons map[string]bool `json:"buttons"`
	Meta    Meta            `json:"meta"`
	Type    string          `json:"type"`
}

// ButtonPressed reports whether the named logical button is asserted
// in the raw phone payload; missing entries default to false.
func (p *InputPacket) ButtonPressed(name string) bool {
	if p.Buttons == nil {
		return false
	}
	return p.Buttons[name]
}

// GamepadState is the normalized controller state pushed to the
// sidecar. Lx/Ly are left-stick axes, Rt/Lt are trigger magnitudes,
// and Buttons is the fixed 16-bit layout (bits 13-15 reserved, always
// zero).
type GamepadState struct {
	Lx      float64
	Ly      float64
	Rt      uint8
	Lt      uint8
	Buttons uint16
}

// Equal reports whether two states are identical in every field.
func (g GamepadState) Equal(o GamepadState) bool {
	return g.Lx == o.Lx && g.Ly == o.Ly && g.Rt == o.Rt && g.Lt == o.Lt && g.Buttons == o.Buttons
}

// Neutral is the all-zero GamepadState pushed on background/disconnect
// and as the final flush before sidecar shutdown.
var Neutral = GamepadState{}

// FeedbackState is the FFB reply sent back to the phone.
type FeedbackState struct {
	RumbleL float64
	RumbleR float64
	TrigL   float64
	TrigR   float64
	Impact  float64
	Center  bool
	Ack     uint32
}

// AudioFeatures is the audio helper's per-sample haptic envelope
// report. Device is a free-form identifier.
type AudioFeatures struct {
	BodyL  float64
	BodyR  float64
	Impact float64
	Engine float64
	Device string
}
