// Package codec implements the phone↔host wire protocol: parsing and
// validating inbound datagrams, classifying them into the session
// loop's event variants, and serializing FFB replies.
package codec

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Fooderapp/WheelerHost-V1/pkg/diag"
	"github.com/Fooderapp/WheelerHost-V1/pkg/wire"
)

// EventKind classifies a decoded datagram.
type EventKind int

const (
	// EventIgnore covers malformed, unsigned, late/duplicate, and
	// finetune datagrams. They are dropped without disturbing the
	// session; the diag counters record which drop class fired
	// (finetune datagrams are not counted).
	EventIgnore EventKind = iota
	// EventHelloOrInput carries a validated telemetry packet.
	EventHelloOrInput
	// EventDisconnect is an explicit phone-initiated teardown.
	EventDisconnect
	// EventBackground indicates the phone app is backgrounded.
	EventBackground
)

// Event is the decoded result of one datagram.
type Event struct {
	Kind   EventKind
	Packet *wire.InputPacket // non-nil only for EventHelloOrInput
}

const wheelSignature = "WHEEL1"

// rawPacket mirrors the phone's nested JSON shape; Codec flattens and
// clamps it into wire.InputPacket.
type rawPacket struct {
	Sig  string `json:"sig"`
	Seq  uint32 `json:"seq"`
	T    uint64 `json:"t"`
	Axis struct {
		SteeringX *float64 `json:"steering_x"`
		Throttle  *float64 `json:"throttle"`
		Brake     *float64 `json:"brake"`
		LatG      *float64 `json:"latG"`
		LsX       *float64 `json:"ls_x"`
		LsY       *float64 `json:"ls_y"`
		Gy        *float64 `json:"g_y"`
		Gz        *float64 `json:"g_z"`
	} `json:"axis"`
	Buttons map[string]bool `json:"buttons"`
	Meta    struct {
		Hello        bool    `json:"hello"`
		ScreenDeg    float64 `json:"screen_deg"`
		TiltLockDeg  float64 `json:"tiltLockDeg"`
		TiltDead     float64 `json:"tiltDead"`
		InBackground bool    `json:"inbackground"`
		Disconnect   bool    `json:"disconnect"`
	} `json:"meta"`
	Type string `json:"type"`
}

// Codec decodes datagrams for one active session. It tracks the last
// accepted sequence number; as the sole gate on acceptance it is where
// the strictly-increasing-seq rule is enforced.
type Codec struct {
	diag        *diag.Counters
	haveSession bool
	lastSeq     uint32
}

// New returns a Codec with no active session (no seq floor yet).
// d may be nil; drop counting is then skipped.
func New(d *diag.Counters) *Codec {
	return &Codec{diag: d}
}

// Reset clears session state, called on session teardown so the next
// peer's first packet is accepted regardless of its seq value.
func (c *Codec) Reset() {
	c.haveSession = false
	c.lastSeq = 0
}

// Decode classifies and, for telemetry packets, validates one
// datagram. The first byte must open a JSON object and the object must
// parse; control types bypass the signature and sequence checks.
func (c *Codec) Decode(data []byte) Event {
	if len(data) == 0 || data[0] != '{' {
		c.countParseFailure()
		return Event{Kind: EventIgnore}
	}

	var raw rawPacket
	if err := json.Unmarshal(data, &raw); err != nil {
		c.countParseFailure()
		return Event{Kind: EventIgnore}
	}

	switch raw.Type {
	case "disconnect":
		return Event{Kind: EventDisconnect}
	case "inbackground":
		return Event{Kind: EventBackground}
	case "finetune":
		return Event{Kind: EventIgnore}
	}

	if raw.Sig != wheelSignature {
		if c.diag != nil {
			c.diag.SigMismatch.Add(1)
		}
		return Event{Kind: EventIgnore}
	}

	if c.haveSession && raw.Seq <= c.lastSeq {
		if c.diag != nil {
			c.diag.SeqRegressions.Add(1)
		}
		return Event{Kind: EventIgnore}
	}

	pkt := &wire.InputPacket{
		Sig: raw.Sig,
		Seq: raw.Seq,
		T:   raw.T,
		Axes: wire.Axes{
			SteeringX: clamp(deref(raw.Axis.SteeringX), -1, 1),
			Throttle:  clamp(deref(raw.Axis.Throttle), 0, 1),
			Brake:     clamp(deref(raw.Axis.Brake), 0, 1),
			LatG:      deref(raw.Axis.LatG),
			LsX:       clamp(deref(raw.Axis.LsX), -1, 1),
			LsY:       clamp(deref(raw.Axis.LsY), -1, 1),
			Gy:        deref(raw.Axis.Gy),
			Gz:        deref(raw.Axis.Gz),
		},
		Buttons: raw.Buttons,
		Meta: wire.Meta{
			Hello:        raw.Meta.Hello,
			ScreenDeg:    raw.Meta.ScreenDeg,
			TiltLockDeg:  raw.Meta.TiltLockDeg,
			TiltDead:     raw.Meta.TiltDead,
			InBackground: raw.Meta.InBackground,
			Disconnect:   raw.Meta.Disconnect,
		},
		Type: raw.Type,
	}
	// ls_x/ls_y are only "present" (distinguishable from an
	// intentional zero) when the phone actually sent them; the wire
	// format has no null-vs-zero distinction beyond the pointer check
	// above, so a missing axis collapses to 0 and pkg/translator
	// treats 0 as "absent" when picking a stick source.

	c.haveSession = true
	c.lastSeq = raw.Seq

	return Event{Kind: EventHelloOrInput, Packet: pkt}
}

func (c *Codec) countParseFailure() {
	if c.diag != nil {
		c.diag.ParseFailures.Add(1)
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// replyWire is the compact on-wire FFB reply shape.
type replyWire struct {
	Ack     uint32  `json:"ack"`
	RumbleL float64 `json:"rumbleL"`
	RumbleR float64 `json:"rumbleR"`
	TrigL   float64 `json:"trigL,omitempty"`
	TrigR   float64 `json:"trigR,omitempty"`
	Impact  float64 `json:"impact,omitempty"`
	Center  bool    `json:"center,omitempty"`
}

// EncodeReply serializes a FeedbackState into the one-line JSON reply
// sent to the phone, rounding floats to three decimals to keep the
// datagram compact.
func EncodeReply(fb wire.FeedbackState) ([]byte, error) {
	w := replyWire{
		Ack:     fb.Ack,
		RumbleL: round3(fb.RumbleL),
		RumbleR: round3(fb.RumbleR),
		TrigL:   round3(fb.TrigL),
		TrigR:   round3(fb.TrigR),
		Impact:  round3(fb.Impact),
		Center:  fb.Center,
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return data, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
