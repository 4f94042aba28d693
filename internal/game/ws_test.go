package game

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// testBridge is a minimal in-process bot bridge. handle decides per op
// whether to reply at all, with what status, and after what delay.
type testBridge struct {
	srv *httptest.Server

	mu  sync.Mutex
	ops []string
}

func newTestBridge(t *testing.T, handle func(op string) (reply, ok bool, delay time.Duration)) *testBridge {
	t.Helper()
	b := &testBridge{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			b.mu.Lock()
			b.ops = append(b.ops, req.Op)
			b.mu.Unlock()

			reply, ok, delay := handle(req.Op)
			if !reply {
				continue
			}
			if delay > 0 {
				time.Sleep(delay)
			}
			resp, _ := json.Marshal(wsFrame{ID: req.ID, OK: ok})
			if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBridge) sawOp(op string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.ops {
		if o == op {
			return true
		}
	}
	return false
}

func (b *testBridge) dial(t *testing.T) *WSClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(b.srv.URL, "http")
	c := NewWSClient(url, slog.New(slog.DiscardHandler))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestGoTo_NavDeadlineOutlivesRPCTimeout(t *testing.T) {
	saved := rpcTimeout
	rpcTimeout = 50 * time.Millisecond
	defer func() { rpcTimeout = saved }()

	// The bridge takes longer than the RPC timeout to finish walking;
	// only the navigation deadline may cut a goto short.
	bridge := newTestBridge(t, func(op string) (bool, bool, time.Duration) {
		if op == "goto" {
			return true, true, 300 * time.Millisecond
		}
		return true, true, 0
	})
	c := bridge.dial(t)

	if err := c.GoTo(context.Background(), Vec3{X: 5, Y: 64, Z: 5}, 2*time.Second); err != nil {
		t.Fatalf("GoTo = %v, want nil", err)
	}
}

func TestGoTo_TimeoutMapsAndStopsPathfinder(t *testing.T) {
	bridge := newTestBridge(t, func(op string) (bool, bool, time.Duration) {
		if op == "goto" {
			return false, false, 0 // never answers; the deadline must fire
		}
		return true, true, 0
	})
	c := bridge.dial(t)

	err := c.GoTo(context.Background(), Vec3{X: 5, Y: 64, Z: 5}, 200*time.Millisecond)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("GoTo = %v, want ErrTimedOut", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !bridge.sawOp("stop") {
		if time.Now().After(deadline) {
			t.Fatal("pathfinder stop never sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCall_RPCTimeoutStillBoundsOtherOps(t *testing.T) {
	saved := rpcTimeout
	rpcTimeout = 50 * time.Millisecond
	defer func() { rpcTimeout = saved }()

	bridge := newTestBridge(t, func(op string) (bool, bool, time.Duration) {
		return false, false, 0 // black hole
	})
	c := bridge.dial(t)

	start := time.Now()
	err := c.Consume(context.Background())
	if err == nil {
		t.Fatal("expected timeout error from unanswered RPC")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("RPC took %v, want prompt timeout", elapsed)
	}
}
