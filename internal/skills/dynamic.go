package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/basket/voxmind/internal/game"
)

// API is the surface handed to interpreted skills. Function fields keep
// the interpreter boundary to basic types; generated source imports it
// as "voxmind/skillapi".
type API struct {
	GoTo      func(x, y, z float64) error
	DigAt     func(x, y, z float64) error
	Place     func(x, y, z float64, item string) error
	Craft     func(item string, count int) error
	Count     func(item string) int
	FindBlock func(name string, maxDist float64) (x, y, z float64, found bool)
	Chat      func(msg string)
	Progress  func(frac float64, msg string)
	Cancelled func() bool
}

// ExecuteFunc is the entry point every generated skill file must define.
type ExecuteFunc = func(api *API, params map[string]any) (bool, string)

// Loader scans a directory of generated skill source files, interprets
// them, and registers the resulting skills. Generated skills are
// trusted source: they get full game access, no sandbox.
type Loader struct {
	Dir      string
	Registry *Registry
	Log      *slog.Logger
}

// Scan loads every .go file in the directory. A file that fails to
// interpret is logged and skipped; one broken generated skill must not
// take down the rest.
func (l *Loader) Scan() (int, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read skill dir: %w", err)
	}
	loaded := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") {
			continue
		}
		path := filepath.Join(l.Dir, e.Name())
		skill, err := l.loadFile(path)
		if err != nil {
			l.logger().Warn("skipping generated skill", "file", e.Name(), "error", err)
			continue
		}
		if err := l.Registry.Register(skill); err != nil {
			l.logger().Warn("registering generated skill", "file", e.Name(), "error", err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// Write stores a new generated skill source file and loads it.
func (l *Loader) Write(name, source string) error {
	if !validSkillName(name) {
		return fmt.Errorf("invalid skill name %q", name)
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return fmt.Errorf("create skill dir: %w", err)
	}
	path := filepath.Join(l.Dir, name+".go")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		return fmt.Errorf("write skill source: %w", err)
	}
	skill, err := l.loadFile(path)
	if err != nil {
		// Leave the file for inspection but do not register it.
		return fmt.Errorf("interpret %s: %w", name, err)
	}
	return l.Registry.Register(skill)
}

// Watch rescans on file changes until ctx is done.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("create skill dir: %w", err)
	}
	if err := watcher.Add(l.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch skill dir: %w", err)
	}
	go func() {
		defer watcher.Close()
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				// Debounce bursts from editors and atomic renames.
				pending = time.After(300 * time.Millisecond)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger().Warn("skill watcher", "error", err)
			case <-pending:
				pending = nil
				if n, err := l.Scan(); err != nil {
					l.logger().Warn("rescan skills", "error", err)
				} else {
					l.logger().Info("rescanned generated skills", "loaded", n)
				}
			}
		}
	}()
	return nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Log != nil {
		return l.Log
	}
	return slog.Default()
}

func validSkillName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

func (l *Loader) loadFile(path string) (Skill, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(interp.Exports{
		"voxmind/skillapi/skillapi": {
			"API": reflect.ValueOf((*API)(nil)),
		},
	}); err != nil {
		return nil, fmt.Errorf("export skill api: %w", err)
	}
	if _, err := i.Eval(string(source)); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	name, err := evalString(i, "main.Name")
	if err != nil {
		return nil, err
	}
	desc, err := evalString(i, "main.Description")
	if err != nil {
		return nil, err
	}
	execV, err := i.Eval("main.Execute")
	if err != nil {
		return nil, fmt.Errorf("Execute not found: %w", err)
	}
	exec, ok := execV.Interface().(ExecuteFunc)
	if !ok {
		return nil, fmt.Errorf("Execute has wrong signature (want func(*skillapi.API, map[string]any) (bool, string))")
	}
	return &dynamicSkill{name: name, desc: desc, exec: exec}, nil
}

func evalString(i *interp.Interpreter, symbol string) (string, error) {
	v, err := i.Eval(symbol)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", symbol, err)
	}
	fn, ok := v.Interface().(func() string)
	if !ok {
		return "", fmt.Errorf("%s has wrong signature (want func() string)", symbol)
	}
	return fn(), nil
}

// dynamicSkill adapts an interpreted file to the Skill interface.
type dynamicSkill struct {
	name string
	desc string
	exec ExecuteFunc
}

func (d *dynamicSkill) Name() string                { return d.name }
func (d *dynamicSkill) Description() string         { return d.desc }
func (d *dynamicSkill) ParamSchema() map[string]any { return nil }

func (d *dynamicSkill) EstimateMaterials(game.Client, map[string]any) map[string]int { return nil }

func (d *dynamicSkill) Execute(ctx context.Context, rt *Runtime, params map[string]any) Result {
	api := bindAPI(ctx, rt)
	type outcome struct {
		ok  bool
		msg string
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{false, fmt.Sprintf("%s crashed: %v", d.name, r)}
			}
		}()
		ok, msg := d.exec(api, params)
		done <- outcome{ok, msg}
	}()
	select {
	case out := <-done:
		return Result{Success: out.ok, Message: out.msg}
	case <-ctx.Done():
		// The interpreted goroutine keeps polling Cancelled and exits
		// on its own; nothing here can force-kill it.
		return Result{Success: false, Message: d.name + " was interrupted"}
	}
}

func bindAPI(ctx context.Context, rt *Runtime) *API {
	c := rt.Client
	return &API{
		GoTo: func(x, y, z float64) error {
			return c.GoTo(ctx, game.Vec3{X: x, Y: y, Z: z}, game.DefaultNavTimeout)
		},
		DigAt: func(x, y, z float64) error {
			b := c.BlockAt(game.Vec3{X: x, Y: y, Z: z})
			if b == nil {
				return fmt.Errorf("no block at (%v, %v, %v)", x, y, z)
			}
			return c.Dig(ctx, *b)
		},
		Place: func(x, y, z float64, item string) error {
			ref := c.BlockAt(game.Vec3{X: x, Y: y - 1, Z: z})
			if ref == nil {
				return fmt.Errorf("no reference block below (%v, %v, %v)", x, y, z)
			}
			return c.PlaceBlock(ctx, *ref, game.Vec3{Y: 1}, item)
		},
		Craft: func(item string, count int) error {
			return c.Craft(ctx, item, count, nil)
		},
		Count: func(item string) int { return InventoryCount(c, item) },
		FindBlock: func(name string, maxDist float64) (float64, float64, float64, bool) {
			b := c.FindNearestBlock(func(b game.Block) bool { return b.Name == name }, maxDist)
			if b == nil {
				return 0, 0, 0, false
			}
			return b.Pos.X, b.Pos.Y, b.Pos.Z, true
		},
		Chat:      c.SendChat,
		Progress:  rt.Report,
		Cancelled: func() bool { return ctx.Err() != nil },
	}
}
