package providers

import (
	"context"
	"fmt"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/llm"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

// Assistant answers open-ended prompts. When the context carries a stored
// user name the prompt is addressed to that user.
type Assistant struct {
	gen llm.Generator
}

// NewAssistant wraps gen.
func NewAssistant(gen llm.Generator) *Assistant {
	return &Assistant{gen: gen}
}

// Generate answers prompt.
func (a *Assistant) Generate(ctx context.Context, prompt string) (string, error) {
	if a.gen == nil {
		return "", llm.ErrNoAPIKey
	}
	if name := router.UserName(ctx); name != router.DefaultUserName {
		prompt = fmt.Sprintf("The user's name is %s.\n\n%s", name, prompt)
	}
	return a.gen.Generate(ctx, prompt)
}

// Name returns the underlying generator's name.
func (a *Assistant) Name() string {
	if a.gen == nil {
		return "none"
	}
	return a.gen.Name()
}
