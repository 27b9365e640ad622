package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/tripwise/server/pkg/logger"
)

// newModelHandler builds a typed ModelCallbackHandler logging oracle calls.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().Str("component", "oracle").Str("node", info.Name)
			if input != nil && len(input.Messages) > 0 {
				if um := lastUserContent(input.Messages); um != "" {
					ev = ev.Str("user", um)
				}
				ev = ev.Int("context_messages", len(input.Messages))
			}
			ev.Msg("oracle call start")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			ev := logx.Debug().Str("component", "oracle").Str("node", info.Name)
			if output != nil && output.Message != nil {
				ev = ev.Str("output", strings.TrimSpace(output.Message.Content))
				if output.Message.ResponseMeta != nil && output.Message.ResponseMeta.Usage != nil {
					ev = ev.Int("total_tokens", output.Message.ResponseMeta.Usage.TotalTokens)
				}
			}
			ev.Msg("oracle call end")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Str("component", "oracle").Str("node", info.Name).Err(err).Msg("oracle call failed")
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}
