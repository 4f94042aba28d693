package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/basket/voxmind/internal/llm"
)

// skillGenerator produces interpreted skill source with the strong
// model. Implements actions.SourceProvider.
type skillGenerator struct {
	llm *llm.Client
	log *slog.Logger
}

const generatorSystemPrompt = `You write Go source for a voxel-world game skill that runs under an interpreter.
The file must be package main and define exactly these symbols:

  func Name() string                                            // the skill name
  func Description() string                                     // one line
  func Execute(api *skillapi.API, params map[string]any) (bool, string)

Import the api as: import "voxmind/skillapi"

The api offers:
  api.GoTo(x, y, z float64) error
  api.DigAt(x, y, z float64) error
  api.Place(x, y, z float64, item string) error
  api.Craft(item string, count int) error
  api.Count(item string) int
  api.FindBlock(name string, maxDist float64) (x, y, z float64, found bool)
  api.Chat(msg string)
  api.Progress(frac float64, msg string)
  api.Cancelled() bool

Execute returns (success, message). Check api.Cancelled() inside loops and
return (false, "cancelled") when it reports true. Use only the standard
library and the api. Reply with the complete Go file and nothing else.`

func (g *skillGenerator) Generate(ctx context.Context, name, task string) (string, error) {
	reply, err := g.llm.Chat(ctx, g.llm.StrongModel(), []llm.Message{
		{Role: "system", Content: generatorSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Skill name: %s\nTask: %s", name, task)},
	}, llm.Options{Temperature: 0.3})
	if err != nil {
		return "", fmt.Errorf("generate skill source: %w", err)
	}
	source := extractSource(reply)
	if !strings.Contains(source, "package main") {
		return "", fmt.Errorf("model reply is not a Go file")
	}
	g.log.Info("generated skill source", "skill", name, "bytes", len(source))
	return source, nil
}

// extractSource strips a surrounding markdown code fence, if present.
func extractSource(reply string) string {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		// Drop the language tag on the fence line.
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			first := strings.TrimSpace(s[:nl])
			if first == "go" || first == "" {
				s = s[nl+1:]
			}
		}
		if j := strings.LastIndex(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}
