package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/tripwise/server/internal/agent/model"
	logx "github.com/tripwise/server/pkg/logger"
)

// ChatModelConfig holds the configuration for the routing oracle model.
type ChatModelConfig struct {
	APIKey       string
	BaseURL      string
	RouterConfig *model.RouterModelConfig
}

// NewRouterChatModel creates the Gemini chat model used for intent
// classification.
func NewRouterChatModel(ctx context.Context, config ChatModelConfig) (*gemini.ChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RouterConfig.Model,
		Temperature: &config.RouterConfig.Temperature,
		MaxTokens:   &config.RouterConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, fmt.Errorf("error creating router model: %w", err)
	}
	return chatModel, nil
}
