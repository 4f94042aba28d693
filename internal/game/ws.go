package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// rpcTimeout bounds non-navigation RPCs. Navigation runs under its own
// deadline in GoTo. A var so tests can shrink it.
var rpcTimeout = 10 * time.Second

const (
	// Stall detection: no movement of at least stallMinMove for
	// stallChecks consecutive 1 s checks cancels the pathfinder.
	stallMinMove  = 0.3
	stallChecks   = 5
	stallInterval = time.Second
)

// WSClient implements Client over a websocket connection to a bot bridge.
// The bridge pushes state frames (position, vitals, inventory, entities)
// and answers request frames by id.
type WSClient struct {
	url    string
	logger *slog.Logger

	conn   *websocket.Conn
	nextID atomic.Int64

	mu        sync.RWMutex
	state     botState
	blocks    map[[3]int]Block
	entities  []Entity
	connected bool

	pendingMu sync.Mutex
	pending   map[int64]chan wsResponse

	events chan Event
}

type botState struct {
	Pos      Vec3   `json:"pos"`
	Yaw      float64 `json:"yaw"`
	Health   int    `json:"health"`
	Food     int    `json:"food"`
	Time     int    `json:"time"`
	Sleeping bool   `json:"sleeping"`
	Held     *Item  `json:"held"`
	Items    []Item `json:"inventory"`
}

type wsFrame struct {
	// Push frames.
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`

	// Response frames.
	ID     int64           `json:"id,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

type wsRequest struct {
	ID   int64 `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

type wsResponse struct {
	ok     bool
	err    string
	result json.RawMessage
}

// NewWSClient creates a client for the bridge at url. Connect must be
// called before use.
func NewWSClient(url string, logger *slog.Logger) *WSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{
		url:     url,
		logger:  logger,
		blocks:  make(map[[3]int]Block),
		pending: make(map[int64]chan wsResponse),
		events:  make(chan Event, 64),
	}
}

// Connect dials the bridge and starts the read loop. The events channel
// closes when the connection drops.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{})
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	conn.SetReadLimit(1 << 22) // world snapshots can be large
	c.conn = conn
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	go c.readLoop(ctx)
	return nil
}

// Close tears down the connection.
func (c *WSClient) Close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func (c *WSClient) readLoop(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.failPending("connection closed")
		close(c.events)
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.logger.Warn("bridge read failed", "error", err)
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("bridge sent malformed frame", "error", err)
			continue
		}
		if frame.ID != 0 {
			c.resolvePending(frame)
			continue
		}
		c.handlePush(frame)
	}
}

func (c *WSClient) handlePush(frame wsFrame) {
	switch frame.Event {
	case "state":
		var st botState
		if err := json.Unmarshal(frame.Data, &st); err != nil {
			return
		}
		c.mu.Lock()
		c.state = st
		c.mu.Unlock()
	case "entities":
		var ents []Entity
		if err := json.Unmarshal(frame.Data, &ents); err != nil {
			return
		}
		c.mu.Lock()
		c.entities = ents
		c.mu.Unlock()
	case "blocks":
		var blocks []Block
		if err := json.Unmarshal(frame.Data, &blocks); err != nil {
			return
		}
		c.mu.Lock()
		for _, b := range blocks {
			c.blocks[blockKey(b.Pos)] = b
		}
		c.mu.Unlock()
	case "spawn":
		c.emit(Event{Kind: EventSpawn})
	case "death":
		c.emit(Event{Kind: EventDeath})
	case "kicked":
		var d struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(frame.Data, &d)
		c.emit(Event{Kind: EventKicked, Reason: d.Reason})
	case "health":
		var d struct {
			Health int `json:"health"`
			Food   int `json:"food"`
		}
		_ = json.Unmarshal(frame.Data, &d)
		c.emit(Event{Kind: EventHealth, Health: d.Health, Food: d.Food})
	case "damage":
		c.emit(Event{Kind: EventDamage})
	case "chat":
		var d struct {
			From string `json:"from"`
			Text string `json:"text"`
		}
		_ = json.Unmarshal(frame.Data, &d)
		c.emit(Event{Kind: EventChat, From: d.From, Text: d.Text})
	}
}

func (c *WSClient) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event buffer full, dropping", "kind", ev.Kind)
	}
}

func (c *WSClient) resolvePending(frame wsFrame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[frame.ID]
	delete(c.pending, frame.ID)
	c.pendingMu.Unlock()
	if ok {
		ch <- wsResponse{ok: frame.OK, err: frame.Error, result: frame.Result}
	}
}

func (c *WSClient) failPending(reason string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- wsResponse{err: reason}
	}
}

// call issues an RPC to the bridge and waits for its response, bounded
// by the standard RPC timeout.
func (c *WSClient) call(ctx context.Context, op string, args any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	return c.roundTrip(ctx, op, args, out)
}

// roundTrip issues an RPC bounded only by ctx. GoTo uses it directly so
// the navigation deadline governs instead of the RPC timeout.
func (c *WSClient) roundTrip(ctx context.Context, op string, args any, out any) error {
	id := c.nextID.Add(1)
	req := wsRequest{ID: id, Op: op, Args: args}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", op, err)
	}

	ch := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("write %s: %w", op, err)
	}

	select {
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return ctx.Err()
	case resp := <-ch:
		if !resp.ok {
			return fmt.Errorf("%s: %s", op, resp.err)
		}
		if out != nil && len(resp.result) > 0 {
			if err := json.Unmarshal(resp.result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", op, err)
			}
		}
		return nil
	}
}

// --- snapshot accessors ---

func (c *WSClient) Position() Vec3 { c.mu.RLock(); defer c.mu.RUnlock(); return c.state.Pos }
func (c *WSClient) Yaw() float64   { c.mu.RLock(); defer c.mu.RUnlock(); return c.state.Yaw }
func (c *WSClient) Health() int    { c.mu.RLock(); defer c.mu.RUnlock(); return c.state.Health }
func (c *WSClient) Food() int      { c.mu.RLock(); defer c.mu.RUnlock(); return c.state.Food }
func (c *WSClient) TimeOfDay() int { c.mu.RLock(); defer c.mu.RUnlock(); return c.state.Time }
func (c *WSClient) IsSleeping() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Sleeping
}

func (c *WSClient) Inventory() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := make([]Item, len(c.state.Items))
	copy(items, c.state.Items)
	return items
}

func (c *WSClient) HeldItem() *Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.Held == nil {
		return nil
	}
	held := *c.state.Held
	return &held
}

func (c *WSClient) Entities() []Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ents := make([]Entity, len(c.entities))
	copy(ents, c.entities)
	return ents
}

// --- world queries ---

func (c *WSClient) BlockAt(pos Vec3) *Block {
	key := blockKey(pos)
	c.mu.RLock()
	if b, ok := c.blocks[key]; ok {
		c.mu.RUnlock()
		return &b
	}
	c.mu.RUnlock()

	var b Block
	if err := c.call(context.Background(), "block_at", pos.Floored(), &b); err != nil {
		return nil
	}
	if b.Name == "" {
		return nil
	}
	c.mu.Lock()
	c.blocks[key] = b
	c.mu.Unlock()
	return &b
}

func (c *WSClient) FindNearestBlock(pred func(Block) bool, maxDist float64) *Block {
	blocks := c.FindBlocks(pred, 1, maxDist)
	if len(blocks) == 0 {
		return nil
	}
	return &blocks[0]
}

func (c *WSClient) FindBlocks(pred func(Block) bool, maxCount int, maxDist float64) []Block {
	// The bridge streams a block snapshot around the bot; query the cache
	// and fall back to a scan RPC when the cache is empty.
	origin := c.Position()

	c.mu.RLock()
	var candidates []Block
	for _, b := range c.blocks {
		if b.Pos.DistanceTo(origin) <= maxDist && pred(b) {
			candidates = append(candidates, b)
		}
	}
	c.mu.RUnlock()

	if len(candidates) == 0 {
		var fetched []Block
		args := map[string]any{"origin": origin.Floored(), "max_dist": maxDist}
		if err := c.call(context.Background(), "scan_blocks", args, &fetched); err != nil {
			return nil
		}
		c.mu.Lock()
		for _, b := range fetched {
			c.blocks[blockKey(b.Pos)] = b
			if pred(b) {
				candidates = append(candidates, b)
			}
		}
		c.mu.Unlock()
	}

	sortBlocksByDistance(candidates, origin)
	if maxCount > 0 && len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	return candidates
}

// --- actions ---

// GoTo navigates to goal. It enforces a total timeout and a stall
// detector; either one cancels the bridge-side pathfinder.
func (c *WSClient) GoTo(ctx context.Context, goal Vec3, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultNavTimeout
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.roundTrip(navCtx, "goto", goal.Floored(), nil)
	}()

	ticker := time.NewTicker(stallInterval)
	defer ticker.Stop()

	last := c.Position()
	stalls := 0
	for {
		select {
		case err := <-done:
			if err != nil && navCtx.Err() == context.DeadlineExceeded {
				c.stopPathfinder()
				return ErrTimedOut
			}
			return err
		case <-navCtx.Done():
			c.stopPathfinder()
			if navCtx.Err() == context.DeadlineExceeded {
				return ErrTimedOut
			}
			return navCtx.Err()
		case <-ticker.C:
			now := c.Position()
			if now.DistanceTo(last) < stallMinMove {
				stalls++
				if stalls >= stallChecks {
					c.stopPathfinder()
					return ErrStuck
				}
			} else {
				stalls = 0
			}
			last = now
		}
	}
}

func (c *WSClient) stopPathfinder() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.call(ctx, "stop", nil, nil); err != nil {
		c.logger.Warn("pathfinder stop failed", "error", err)
	}
}

func (c *WSClient) Dig(ctx context.Context, block Block) error {
	err := c.call(ctx, "dig", block.Pos.Floored(), nil)
	if err == nil {
		c.mu.Lock()
		delete(c.blocks, blockKey(block.Pos))
		c.mu.Unlock()
	}
	return err
}

func (c *WSClient) PlaceBlock(ctx context.Context, ref Block, face Vec3, item string) error {
	args := map[string]any{"ref": ref.Pos.Floored(), "face": face, "item": item}
	return c.call(ctx, "place", args, nil)
}

func (c *WSClient) Craft(ctx context.Context, item string, count int, table *Block) error {
	args := map[string]any{"item": item, "count": count}
	if table != nil {
		args["table"] = table.Pos.Floored()
	}
	return c.call(ctx, "craft", args, nil)
}

func (c *WSClient) Equip(ctx context.Context, item string) error {
	return c.call(ctx, "equip", map[string]any{"item": item}, nil)
}

func (c *WSClient) Consume(ctx context.Context) error {
	return c.call(ctx, "consume", nil, nil)
}

func (c *WSClient) Attack(ctx context.Context, target Entity) error {
	return c.call(ctx, "attack", map[string]any{"id": target.ID}, nil)
}

func (c *WSClient) UseItem(ctx context.Context) error {
	return c.call(ctx, "use_item", nil, nil)
}

func (c *WSClient) Sleep(ctx context.Context, bed Block) error {
	return c.call(ctx, "sleep", bed.Pos.Floored(), nil)
}

func (c *WSClient) Wake(ctx context.Context) error {
	return c.call(ctx, "wake", nil, nil)
}

func (c *WSClient) SendChat(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.call(ctx, "chat", map[string]any{"text": text}, nil); err != nil {
		c.logger.Warn("send chat failed", "error", err)
	}
}

func (c *WSClient) Events() <-chan Event {
	return c.events
}

func blockKey(pos Vec3) [3]int {
	f := pos.Floored()
	return [3]int{int(f.X), int(f.Y), int(f.Z)}
}

func sortBlocksByDistance(blocks []Block, origin Vec3) {
	for i := 1; i < len(blocks); i++ {
		for j := i; j > 0 && blocks[j].Pos.DistanceTo(origin) < blocks[j-1].Pos.DistanceTo(origin); j-- {
			blocks[j], blocks[j-1] = blocks[j-1], blocks[j]
		}
	}
}
