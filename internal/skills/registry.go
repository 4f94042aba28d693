package skills

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry holds all known skills, static and generated. Static skills
// are registered once at startup; generated skills arrive via the
// dynamic loader and may replace earlier versions of themselves.
type Registry struct {
	mu      sync.RWMutex
	skills  map[string]Skill
	schemas map[string]*jsonschema.Schema
	static  map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		skills:  make(map[string]Skill),
		schemas: make(map[string]*jsonschema.Schema),
		static:  make(map[string]bool),
	}
}

// RegisterStatic registers a skill shipped as source. Static skill
// names are healed from the broken ledger at startup.
func (r *Registry) RegisterStatic(s Skill) error {
	if err := r.Register(s); err != nil {
		return err
	}
	r.mu.Lock()
	r.static[s.Name()] = true
	r.mu.Unlock()
	return nil
}

// Register adds or replaces a skill, compiling its param schema.
func (r *Registry) Register(s Skill) error {
	name := s.Name()
	if name == "" {
		return fmt.Errorf("skill has empty name")
	}

	var compiled *jsonschema.Schema
	if raw := s.ParamSchema(); raw != nil {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("skill %s: marshal schema: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("skill %s: unmarshal schema: %w", name, err)
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("schema.json", doc); err != nil {
			return fmt.Errorf("skill %s: add schema resource: %w", name, err)
		}
		compiled, err = c.Compile("schema.json")
		if err != nil {
			return fmt.Errorf("skill %s: compile schema: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[name] = s
	if compiled != nil {
		r.schemas[name] = compiled
	} else {
		delete(r.schemas, name)
	}
	return nil
}

// Get looks up a skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// Names returns all registered skill names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.skills))
	for name := range r.skills {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// StaticNames returns the set of statically-registered skill names.
func (r *Registry) StaticNames() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.static))
	for name := range r.static {
		out[name] = true
	}
	return out
}

// ValidateParams checks params against the skill's compiled schema.
// Skills without a schema accept anything.
func (r *Registry) ValidateParams(name string, params map[string]any) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	// Round-trip through the schema library's decoder so numbers
	// validate as json.Number rather than float64.
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("params for %s: %w", name, err)
	}
	return nil
}

// Describe renders a one-line-per-skill list for the strategic prompt.
func (r *Registry) Describe(allowed []string) string {
	allowSet := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allowSet[name] = true
	}
	var b strings.Builder
	for _, name := range r.Names() {
		if len(allowed) > 0 && !allowSet[name] {
			continue
		}
		s, _ := r.Get(name)
		fmt.Fprintf(&b, "- %s: %s\n", name, s.Description())
	}
	return strings.TrimRight(b.String(), "\n")
}
