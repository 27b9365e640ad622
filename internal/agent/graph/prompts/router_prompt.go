package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/router_prompt.txt
var routerSystemPrompt string

// RenderRouterSystem renders the routing system prompt via the Eino prompt
// component. Rendering through the component triggers Prompt callbacks.
func RenderRouterSystem(ctx context.Context) (string, error) {
	// The template contains literal JSON braces, so render it through a
	// messages placeholder instead of FString substitution.
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(routerSystemPrompt)},
	})
	if err != nil {
		return "", fmt.Errorf("router prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("router prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}
