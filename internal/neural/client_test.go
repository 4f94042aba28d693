package neural

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"net"
	"testing"

	"github.com/basket/voxmind/internal/game"
)

// startCoprocessor runs a one-shot fake coprocessor that replies with the
// given decision and records the observation it received.
func startCoprocessor(t *testing.T, reply Decision) (addr string, got chan Observation) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	got = make(chan Observation, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var header [4]byte
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			return
		}
		payload := make([]byte, binary.BigEndian.Uint32(header[:]))
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		var obs Observation
		if err := json.Unmarshal(payload, &obs); err != nil {
			return
		}
		got <- obs

		out, _ := json.Marshal(reply)
		binary.BigEndian.PutUint32(header[:], uint32(len(out)))
		conn.Write(header[:])
		conn.Write(out)
	}()
	return ln.Addr().String(), got
}

func TestDecide_RoundTrip(t *testing.T) {
	addr, got := startCoprocessor(t, Decision{Action: ActionStrafeLeft, Confidence: 0.92})
	c := NewClient(addr)

	obs := Observation{
		Health:   14,
		Food:     18,
		Pos:      [3]float64{10, 64, -5},
		Hostile:  &Hostile{Name: "zombie", Distance: 4.2, RelativeAngle: -30},
		Entities: []string{"zombie", "skeleton"},
		HasSword: true,
	}
	dec, err := c.Decide(context.Background(), obs)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if dec.Action != ActionStrafeLeft || dec.Confidence != 0.92 {
		t.Fatalf("decision = %+v", dec)
	}

	sent := <-got
	if sent.Health != 14 || sent.Hostile == nil || sent.Hostile.Name != "zombie" {
		t.Fatalf("observation mangled: %+v", sent)
	}
}

func TestDecide_UnknownAction(t *testing.T) {
	addr, _ := startCoprocessor(t, Decision{Action: "backflip", Confidence: 1})
	c := NewClient(addr)
	if _, err := c.Decide(context.Background(), Observation{}); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestDecide_Unreachable(t *testing.T) {
	c := NewClient("127.0.0.1:1") // nothing listens here
	if _, err := c.Decide(context.Background(), Observation{}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestAvailable(t *testing.T) {
	if NewClient("").Available() {
		t.Fatal("empty address should not be available")
	}
	if !NewClient("localhost:7777").Available() {
		t.Fatal("configured address should be available")
	}
	var nilClient *Client
	if nilClient.Available() {
		t.Fatal("nil client should not be available")
	}
}

func TestRelativeAngle(t *testing.T) {
	agent := game.Vec3{X: 0, Y: 64, Z: 0}
	tests := []struct {
		name   string
		yaw    float64
		target game.Vec3
		want   float64
	}{
		{"dead ahead facing -Z", 0, game.Vec3{X: 0, Y: 64, Z: -10}, 0},
		{"directly behind", 0, game.Vec3{X: 0, Y: 64, Z: 10}, -180}, // wraps to the low end of the range
		{"to the right facing -Z", 0, game.Vec3{X: 10, Y: 64, Z: 0}, 90},
	}
	for _, tt := range tests {
		got := RelativeAngle(agent, tt.yaw, tt.target)
		if math.Abs(got-tt.want) > 0.01 {
			t.Errorf("%s: RelativeAngle = %.2f, want %.2f", tt.name, got, tt.want)
		}
	}
}
