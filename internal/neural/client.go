// Package neural talks to the optional combat coprocessor: a TCP service
// exchanging length-prefixed JSON frames. When the service is unreachable
// the caller falls back to the built-in PvP routine.
package neural

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"github.com/basket/voxmind/internal/game"
)

const (
	dialTimeout  = 2 * time.Second
	frameTimeout = 3 * time.Second
	maxFrameSize = 1 << 16
)

// Valid coprocessor actions.
const (
	ActionAttack      = "attack"
	ActionStrafeLeft  = "strafe_left"
	ActionStrafeRight = "strafe_right"
	ActionFlee        = "flee"
	ActionUseItem     = "use_item"
	ActionIdle        = "idle"
)

// Observation is the combat snapshot sent to the coprocessor.
type Observation struct {
	Health    int        `json:"health"`
	Food      int        `json:"food"`
	Pos       [3]float64 `json:"pos"`
	Hostile   *Hostile   `json:"hostile,omitempty"`
	Entities  []string   `json:"entities"`
	HasSword  bool       `json:"has_sword"`
	HasShield bool       `json:"has_shield"`
	HasBow    bool       `json:"has_bow"`
}

// Hostile describes the nearest threat. RelativeAngle is degrees from the
// agent's facing direction: 0 dead ahead, positive clockwise, in
// [-180, 180).
type Hostile struct {
	Name          string  `json:"name"`
	Distance      float64 `json:"distance"`
	RelativeAngle float64 `json:"relative_angle"`
}

// Decision is the coprocessor's reply.
type Decision struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
}

// RelativeAngle computes the hostile's bearing relative to the agent's
// yaw. Yaw convention: 0 faces -Z, increasing counterclockwise, radians.
func RelativeAngle(agentPos game.Vec3, yaw float64, targetPos game.Vec3) float64 {
	dx := targetPos.X - agentPos.X
	dz := targetPos.Z - agentPos.Z
	targetYaw := math.Atan2(-dx, -dz) // same convention as the game client
	diff := (yaw - targetYaw) * 180 / math.Pi
	for diff >= 180 {
		diff -= 360
	}
	for diff < -180 {
		diff += 360
	}
	return diff
}

// Client connects per-request; combat decisions are infrequent enough
// that holding a connection open buys nothing across agent restarts.
type Client struct {
	addr string
}

func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Available reports whether an address is configured.
func (c *Client) Available() bool { return c != nil && c.addr != "" }

// Decide sends the observation and returns the coprocessor's decision.
func (c *Client) Decide(ctx context.Context, obs Observation) (Decision, error) {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := d.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		return Decision{}, fmt.Errorf("dial coprocessor: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(frameTimeout))

	if err := writeFrame(conn, obs); err != nil {
		return Decision{}, fmt.Errorf("send observation: %w", err)
	}
	var dec Decision
	if err := readFrame(conn, &dec); err != nil {
		return Decision{}, fmt.Errorf("read decision: %w", err)
	}
	if !validAction(dec.Action) {
		return Decision{}, fmt.Errorf("coprocessor returned unknown action %q", dec.Action)
	}
	return dec, nil
}

func validAction(a string) bool {
	switch a {
	case ActionAttack, ActionStrafeLeft, ActionStrafeRight, ActionFlee, ActionUseItem, ActionIdle:
		return true
	}
	return false
}

func writeFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}
