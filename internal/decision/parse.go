package decision

import (
	"encoding/json"
	"regexp"
	"strings"
)

// actionAliases normalises the names models actually emit to the canonical
// action set. Keys are matched after lowercasing and space-trimming.
var actionAliases = map[string]string{
	"go to":        "go_to",
	"goto":         "go_to",
	"go":           "go_to",
	"navigate":     "go_to",
	"mine":         "mine_block",
	"dig":          "mine_block",
	"chop":         "gather_wood",
	"chop_wood":    "gather_wood",
	"gather wood":  "gather_wood",
	"collect_wood": "gather_wood",
	"move":         "explore",
	"walk":         "explore",
	"travel":       "explore",
	"wander":       "explore",
	"craft_item":   "craft",
	"make":         "craft",
	"eat_food":     "eat",
	"fight":        "attack",
	"run":          "flee",
	"run_away":     "flee",
	"escape":       "flee",
	"wait":         "idle",
	"do_nothing":   "idle",
	"say":          "chat",
	"speak":        "chat",
	"talk":         "chat",
	"use_skill":    "invoke_skill",
	"run_skill":    "invoke_skill",
	"place":        "place_block",
	"build":        "build_shelter",
}

// buildHousePattern catches manual-building phrasings that should route to
// the build_house skill instead of a hallucinated primitive.
var buildHousePattern = regexp.MustCompile(`^manually(build|construct)|^build.*(shelter|hut)|^construct.*(shelter|house)`)

// shapeRepairKeys are top-level keys the model sometimes uses instead of
// {"action": ..., "params": {...}}.
var shapeRepairKeys = []string{"invoke_skill", "generate_skill", "neural_combat"}

// hoistKeys are top-level fields moved into params when the model flattens
// its reply.
var hoistKeys = []string{
	"direction", "item", "block", "blockType", "count", "skill", "task",
	"message", "x", "y", "z", "coordinates",
}

var (
	thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fenceRe      = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// Parse turns a raw model reply into a normalised Decision. It never
// fails: unusable input yields SafeIdle().
func Parse(raw string) Decision {
	text := thinkBlockRe.ReplaceAllString(raw, "")
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(text)

	obj := extractObject(text)
	if obj == nil {
		return SafeIdle()
	}
	return normalise(obj)
}

// ExtractObject pulls the first balanced JSON object out of a model
// reply, applying the same stripping and truncation repair as Parse.
// Used for replies with shapes other than a decision, like the critic's.
func ExtractObject(raw string) (map[string]any, bool) {
	text := thinkBlockRe.ReplaceAllString(raw, "")
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	obj := extractObject(strings.TrimSpace(text))
	return obj, obj != nil
}

// extractObject locates the first balanced JSON object, repairing
// truncation when the braces never close.
func extractObject(text string) map[string]any {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil
	}

	candidate := balancedFrom(text[start:])
	if candidate == "" {
		// Truncated reply: repair by stripping the trailing partial field
		// and closing the open braces.
		candidate = repairTruncated(text[start:])
		if candidate == "" {
			return nil
		}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil
	}
	return obj
}

// balancedFrom returns the first balanced {...} in s, honouring string
// quotes and escapes, or "" when the braces never balance.
func balancedFrom(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

// repairTruncated handles replies cut off mid-object: drop the dangling
// partial field, then append closing braces until the object parses.
func repairTruncated(s string) string {
	trimmed := strings.TrimRight(s, " \t\n\r")

	// Strip a trailing partial field: everything after the last comma or
	// opening brace that leaves the object well-formed.
	for cut := len(trimmed); cut > 0; {
		idx := strings.LastIndexAny(trimmed[:cut], ",{")
		if idx < 0 {
			return ""
		}
		head := trimmed[:idx]
		if trimmed[idx] == '{' {
			head = trimmed[:idx+1]
		}
		if fixed := closeBraces(head); fixed != "" {
			return fixed
		}
		cut = idx
	}
	return ""
}

// closeBraces appends '}' until the candidate parses as JSON, bounded by
// the number of unclosed braces.
func closeBraces(s string) string {
	open := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			open++
		case '}':
			open--
		}
	}
	if inString || open <= 0 {
		return ""
	}
	candidate := strings.TrimRight(s, ", \t\n\r") + strings.Repeat("}", open)
	var v map[string]any
	if json.Unmarshal([]byte(candidate), &v) == nil {
		return candidate
	}
	return ""
}

// normalise applies the shape repairs, alias table, param hoisting, and
// prefix rewrites to a decoded object.
func normalise(obj map[string]any) Decision {
	d := Decision{Params: map[string]any{}}

	if t, ok := obj["thought"].(string); ok {
		d.Thought = strings.TrimSpace(t)
	}
	if g, ok := obj["goal"].(string); ok {
		d.Goal = strings.TrimSpace(g)
	}
	if n, ok := obj["goal_steps"].(float64); ok {
		d.GoalSteps = int(n)
	}
	if p, ok := obj["params"].(map[string]any); ok {
		for k, v := range p {
			d.Params[k] = v
		}
	}

	action, _ := obj["action"].(string)
	if action == "" {
		if a, ok := obj["action_name"].(string); ok {
			action = a
		}
	}

	// Shape repair: {"invoke_skill": "craftBed"} and friends.
	if action == "" {
		for _, key := range shapeRepairKeys {
			if name, ok := obj[key].(string); ok {
				action = key
				if _, exists := d.Params["skill"]; !exists {
					d.Params["skill"] = name
				}
				break
			}
		}
	}

	// Hoist flattened fields into params.
	for _, key := range hoistKeys {
		if v, ok := obj[key]; ok {
			if _, exists := d.Params[key]; !exists {
				d.Params[key] = v
			}
		}
	}
	hoistCoordinates(d.Params)

	action = strings.ToLower(strings.TrimSpace(action))
	action = strings.Trim(action, `"'`)
	if alias, ok := actionAliases[action]; ok {
		action = alias
	}
	action = strings.ReplaceAll(action, " ", "_")
	if alias, ok := actionAliases[action]; ok {
		action = alias
	}

	// mine_<blockname> is the model inventing per-block actions.
	if strings.HasPrefix(action, "mine_") && action != "mine_block" {
		if _, exists := d.Params["blockType"]; !exists {
			d.Params["blockType"] = strings.TrimPrefix(action, "mine_")
		}
		action = "mine_block"
	}

	if buildHousePattern.MatchString(action) {
		action = "build_house"
	}

	if action == "" {
		return SafeIdle()
	}
	d.Action = action
	return d
}

// hoistCoordinates explodes a "coordinates" value into x/y/z when those
// are not already set. Models emit both [x,y,z] arrays and nested objects.
func hoistCoordinates(params map[string]any) {
	coords, ok := params["coordinates"]
	if !ok {
		return
	}
	setIfAbsent := func(key string, v any) {
		if _, exists := params[key]; !exists {
			params[key] = v
		}
	}
	switch c := coords.(type) {
	case []any:
		if len(c) == 3 {
			setIfAbsent("x", c[0])
			setIfAbsent("y", c[1])
			setIfAbsent("z", c[2])
		}
	case map[string]any:
		for _, key := range []string{"x", "y", "z"} {
			if v, ok := c[key]; ok {
				setIfAbsent(key, v)
			}
		}
	}
}
