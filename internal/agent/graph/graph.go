// Package graph composes the routing pipeline: intake, the classification
// oracle, the specialist handlers, and the continuation loop for combined
// requests.
package graph

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/tripwise/server/internal/agent/graph/agents"
	"github.com/tripwise/server/internal/agent/graph/nodes"
	"github.com/tripwise/server/internal/agent/graph/observers"
	"github.com/tripwise/server/internal/agent/model"
	"github.com/tripwise/server/internal/agent/repo"
	"github.com/tripwise/server/internal/agent/stream"
	"github.com/tripwise/server/internal/interrupt"
	"github.com/tripwise/server/internal/travel"
	logx "github.com/tripwise/server/pkg/logger"
)

// Result is the final outcome of one pipeline run.
type Result struct {
	Content string
	// Terminal is the closing event name: complete, interrupted or
	// cancelled. Errors surface through the error return instead.
	Terminal string
	Reason   string
}

// Runner executes the compiled graph for one query.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (Result, error)
}

// Config holds everything needed to compose the pipeline end-to-end.
type Config struct {
	APIKey       string
	BaseURL      string
	RouterModel  model.RouterModelConfig
	Conversation model.ConversationConfig
	Defaults     model.RouteDefaults
	States       repo.StateRepository
	Travel       *travel.Client
	Interrupts   *interrupt.Registry
}

// GraphConfig is the lower-level wiring input used by BuildGraph.
type GraphConfig struct {
	Oracle       einomodel.BaseChatModel
	States       repo.StateRepository
	Interrupts   *interrupt.Registry
	Handlers     map[string]nodes.HandlerFunc
	HistoryTurns int
}

// GraphBuilder handles the construction of the pipeline graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (Result, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return Result{}, err
	}
	if out == nil {
		return Result{Terminal: string(stream.EventComplete)}, nil
	}
	res := Result{Content: out.Content, Terminal: string(stream.EventComplete)}
	if t, ok := out.Extra["terminal"].(string); ok && t != "" {
		res.Terminal = t
	}
	if reason, ok := out.Extra["reason"].(string); ok {
		res.Reason = reason
	}
	return res, nil
}

// BuildPipeline constructs the oracle model, the handler set, and the
// compiled graph from a full Config.
func BuildPipeline(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.States == nil {
		return nil, fmt.Errorf("state repository is nil")
	}
	if cfg.Travel == nil {
		return nil, fmt.Errorf("travel client is nil")
	}
	if cfg.Interrupts == nil {
		return nil, fmt.Errorf("interrupt registry is nil")
	}

	// Without a credential the router degrades to keyword classification
	// instead of refusing to start.
	var oracle einomodel.BaseChatModel
	if cfg.APIKey == "" {
		logx.Warn().Msg("No GEMINI_API_KEY configured, routing falls back to keywords")
	} else {
		var err error
		oracle, err = nodes.NewRouterChatModel(ctx, nodes.ChatModelConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			RouterConfig: &cfg.RouterModel,
		})
		if err != nil {
			return nil, err
		}
	}

	deps := agents.NewDeps(cfg.Travel, cfg.Interrupts, cfg.Defaults)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Oracle:       oracle,
		States:       cfg.States,
		Interrupts:   cfg.Interrupts,
		Handlers:     nodes.NewAgentHandlers(deps),
		HistoryTurns: cfg.Conversation.HistoryTurns,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Pipeline graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and compiles the pipeline graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.States == nil || config.Interrupts == nil {
		return nil, fmt.Errorf("graph services are not initialized")
	}
	for _, name := range []string{nodes.NodeFlightAgent, nodes.NodeHotelAgent, nodes.NodeAttractionAgent, nodes.NodeResearchAgent} {
		if config.Handlers[name] == nil {
			return nil, fmt.Errorf("missing handler for %s", name)
		}
	}
	if config.HistoryTurns <= 0 {
		config.HistoryTurns = 2
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.ConversationState {
				return &model.ConversationState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	cfg := b.config

	b.graph.AddLambdaNode(nodes.NodeIntake,
		nodes.NewIntakeNode(cfg.States, cfg.HistoryTurns),
		compose.WithStatePreHandler(nodes.NewIntakePreHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeRouter,
		nodes.NewRouterNode(cfg.Oracle, cfg.Interrupts, cfg.States),
	)

	for _, agentNode := range []struct {
		node  string
		agent string
	}{
		{nodes.NodeFlightAgent, model.AgentFlight},
		{nodes.NodeHotelAgent, model.AgentHotel},
		{nodes.NodeAttractionAgent, model.AgentAttractions},
		{nodes.NodeResearchAgent, model.AgentResearch},
	} {
		b.graph.AddLambdaNode(agentNode.node,
			nodes.NewAgentNode(agentNode.agent, cfg.Handlers[agentNode.node], cfg.States),
		)
	}

	b.graph.AddLambdaNode(nodes.NodeCancelled, nodes.NewCancelledNode(cfg.States))
	b.graph.AddLambdaNode(nodes.NodeContinue, nodes.NewContinueNode(cfg.HistoryTurns))
}

// addEdges creates the unconditional flow connections.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeIntake},
		{nodes.NodeIntake, nodes.NodeRouter},
		{nodes.NodeContinue, nodes.NodeRouter},
		{nodes.NodeCancelled, compose.END},
	}
	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the routing branch and the per-handler continuation
// branches.
func (b *GraphBuilder) addBranches() error {
	routeBranch := compose.NewGraphBranch(
		nodes.NewRouterCondition(),
		map[string]bool{
			nodes.NodeFlightAgent:     true,
			nodes.NodeHotelAgent:      true,
			nodes.NodeAttractionAgent: true,
			nodes.NodeResearchAgent:   true,
			nodes.NodeCancelled:       true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRouter, routeBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding router branch")
		return fmt.Errorf("error adding router branch: %w", err)
	}

	for _, node := range []string{nodes.NodeFlightAgent, nodes.NodeHotelAgent, nodes.NodeAttractionAgent, nodes.NodeResearchAgent} {
		continueBranch := compose.NewGraphBranch(
			nodes.NewContinueCondition(),
			map[string]bool{
				nodes.NodeContinue: true,
				compose.END:        true,
			},
		)
		if err := b.graph.AddBranch(node, continueBranch); err != nil {
			logx.Error().Err(err).Str("node", node).Msg("Error adding continuation branch")
			return fmt.Errorf("error adding continuation branch for %s: %w", node, err)
		}
	}
	return nil
}

// compile finalizes and compiles the graph. The step cap bounds the
// continuation loop.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(20))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
