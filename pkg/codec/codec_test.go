package codec

import (
	"strings"
	"testing"

	"github.com/Fooderapp/WheelerHost-V1/pkg/diag"
	"github.com/Fooderapp/WheelerHost-V1/pkg/wire"
)

func TestDecode_IgnoresNonJSON(t *testing.T) {
	c := New(nil)
	for _, data := range [][]byte{nil, {}, []byte("hello"), []byte("[1,2]"), []byte("{not json")} {
		if ev := c.Decode(data); ev.Kind != EventIgnore {
			t.Errorf("expected %q to be ignored, got kind %v", data, ev.Kind)
		}
	}
}

func TestDecode_ParseFailuresCounted(t *testing.T) {
	counters := diag.New()
	c := New(counters)
	c.Decode([]byte("garbage"))
	c.Decode([]byte("{broken"))
	if got := counters.ParseFailures.Load(); got != 2 {
		t.Errorf("expected 2 parse failures, got %d", got)
	}
}

func TestDecode_ControlTypes(t *testing.T) {
	c := New(nil)
	cases := []struct {
		payload string
		want    EventKind
	}{
		{`{"type":"disconnect"}`, EventDisconnect},
		{`{"type":"inbackground"}`, EventBackground},
		{`{"type":"finetune"}`, EventIgnore},
	}
	for _, tc := range cases {
		if ev := c.Decode([]byte(tc.payload)); ev.Kind != tc.want {
			t.Errorf("Decode(%s): got kind %v, want %v", tc.payload, ev.Kind, tc.want)
		}
	}
}

func TestDecode_SignatureRequired(t *testing.T) {
	counters := diag.New()
	c := New(counters)

	if ev := c.Decode([]byte(`{"sig":"WHEEL2","seq":1}`)); ev.Kind != EventIgnore {
		t.Fatalf("expected wrong signature to be ignored, got %v", ev.Kind)
	}
	if ev := c.Decode([]byte(`{"seq":1}`)); ev.Kind != EventIgnore {
		t.Fatalf("expected missing signature to be ignored, got %v", ev.Kind)
	}
	if got := counters.SigMismatch.Load(); got != 2 {
		t.Errorf("expected 2 signature mismatches counted, got %d", got)
	}
}

func TestDecode_SeqStrictlyIncreasing(t *testing.T) {
	counters := diag.New()
	c := New(counters)

	if ev := c.Decode([]byte(`{"sig":"WHEEL1","seq":5}`)); ev.Kind != EventHelloOrInput {
		t.Fatalf("expected first packet accepted, got %v", ev.Kind)
	}
	if ev := c.Decode([]byte(`{"sig":"WHEEL1","seq":5}`)); ev.Kind != EventIgnore {
		t.Fatal("expected duplicate seq to be ignored")
	}
	if ev := c.Decode([]byte(`{"sig":"WHEEL1","seq":4}`)); ev.Kind != EventIgnore {
		t.Fatal("expected older seq to be ignored")
	}
	if ev := c.Decode([]byte(`{"sig":"WHEEL1","seq":6}`)); ev.Kind != EventHelloOrInput {
		t.Fatal("expected newer seq to be accepted")
	}
	if got := counters.SeqRegressions.Load(); got != 2 {
		t.Errorf("expected 2 seq regressions counted, got %d", got)
	}
}

func TestDecode_ResetClearsSeqFloor(t *testing.T) {
	c := New(nil)
	if ev := c.Decode([]byte(`{"sig":"WHEEL1","seq":100}`)); ev.Kind != EventHelloOrInput {
		t.Fatal("expected first packet accepted")
	}
	c.Reset()
	if ev := c.Decode([]byte(`{"sig":"WHEEL1","seq":1}`)); ev.Kind != EventHelloOrInput {
		t.Fatal("expected low seq to be accepted after Reset")
	}
}

func TestDecode_FullPacket(t *testing.T) {
	c := New(nil)
	payload := `{"sig":"WHEEL1","seq":7,"t":1234,
		"axis":{"steering_x":-0.5,"throttle":0.9,"brake":0.1,"latG":0.3,"ls_x":0.2,"ls_y":-0.4,"g_y":0.7,"g_z":0.7},
		"buttons":{"A":true,"HB":true},
		"meta":{"hello":true,"screen_deg":270,"tiltLockDeg":60,"tiltDead":0.06}}`
	ev := c.Decode([]byte(payload))
	if ev.Kind != EventHelloOrInput {
		t.Fatalf("expected telemetry event, got %v", ev.Kind)
	}
	p := ev.Packet
	if p.Seq != 7 || p.T != 1234 {
		t.Errorf("header mismatch: %+v", p)
	}
	if p.Axes.SteeringX != -0.5 || p.Axes.Throttle != 0.9 || p.Axes.Brake != 0.1 {
		t.Errorf("axes mismatch: %+v", p.Axes)
	}
	if p.Axes.LatG != 0.3 || p.Axes.LsX != 0.2 || p.Axes.LsY != -0.4 {
		t.Errorf("axes mismatch: %+v", p.Axes)
	}
	if p.Axes.Gy != 0.7 || p.Axes.Gz != 0.7 {
		t.Errorf("gravity mismatch: %+v", p.Axes)
	}
	if !p.ButtonPressed("A") || !p.ButtonPressed("HB") || p.ButtonPressed("B") {
		t.Errorf("buttons mismatch: %+v", p.Buttons)
	}
	if !p.Meta.Hello || p.Meta.ScreenDeg != 270 || p.Meta.TiltLockDeg != 60 {
		t.Errorf("meta mismatch: %+v", p.Meta)
	}
}

func TestDecode_ClampsAxes(t *testing.T) {
	c := New(nil)
	ev := c.Decode([]byte(`{"sig":"WHEEL1","seq":1,"axis":{"steering_x":-3,"throttle":2,"brake":-1}}`))
	if ev.Kind != EventHelloOrInput {
		t.Fatalf("expected telemetry event, got %v", ev.Kind)
	}
	if ev.Packet.Axes.SteeringX != -1 {
		t.Errorf("expected steering clamped to -1, got %v", ev.Packet.Axes.SteeringX)
	}
	if ev.Packet.Axes.Throttle != 1 {
		t.Errorf("expected throttle clamped to 1, got %v", ev.Packet.Axes.Throttle)
	}
	if ev.Packet.Axes.Brake != 0 {
		t.Errorf("expected brake clamped to 0, got %v", ev.Packet.Axes.Brake)
	}
}

func TestDecode_UnknownFieldsIgnored(t *testing.T) {
	c := New(nil)
	ev := c.Decode([]byte(`{"sig":"WHEEL1","seq":1,"future":{"x":1},"axis":{"throttle":0.5}}`))
	if ev.Kind != EventHelloOrInput {
		t.Fatalf("expected unknown fields to be tolerated, got %v", ev.Kind)
	}
	if ev.Packet.Axes.Throttle != 0.5 {
		t.Errorf("expected throttle 0.5, got %v", ev.Packet.Axes.Throttle)
	}
}

func TestEncodeReply_CompactShape(t *testing.T) {
	data, err := EncodeReply(wire.FeedbackState{
		Ack:     42,
		RumbleL: 0.5004,
		RumbleR: 0.2,
		Impact:  0.1239,
		Center:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	want := `{"ack":42,"rumbleL":0.5,"rumbleR":0.2,"impact":0.124,"center":true}`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
	if strings.ContainsAny(got, "\n ") {
		t.Errorf("expected single-line compact JSON, got %q", got)
	}
}

func TestEncodeReply_OmitsInactiveChannels(t *testing.T) {
	data, err := EncodeReply(wire.FeedbackState{Ack: 1})
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if got != `{"ack":1,"rumbleL":0,"rumbleR":0}` {
		t.Errorf("expected zero triggers/impact/center to be omitted, got %s", got)
	}
}
