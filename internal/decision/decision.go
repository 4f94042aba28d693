// Package decision parses language-model replies into dispatchable
// decisions. Models routinely emit fenced JSON, reasoning preambles,
// truncated objects, and hallucinated shapes; the parser repairs what it
// can and degrades to a safe idle decision otherwise.
package decision

// Decision is a parsed model reply.
type Decision struct {
	Thought   string
	Action    string
	Params    map[string]any
	Goal      string // non-empty sets a new goal
	GoalSteps int    // steps budget for a new goal
}

// SafeThought is the thought attached to fallback decisions when the model
// reply is unusable or the RPC timed out.
const SafeThought = "Brain buffering..."

// SafeIdle returns the fallback decision.
func SafeIdle() Decision {
	return Decision{Thought: SafeThought, Action: "idle", Params: map[string]any{}}
}
