package nodes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/tripwise/server/internal/agent/graph/agents"
	"github.com/tripwise/server/internal/agent/graph/parsers"
	"github.com/tripwise/server/internal/agent/graph/prompts"
	"github.com/tripwise/server/internal/agent/model"
	"github.com/tripwise/server/internal/agent/repo"
	"github.com/tripwise/server/internal/agent/stream"
	"github.com/tripwise/server/internal/interrupt"
	logx "github.com/tripwise/server/pkg/logger"
)

// Node names used in graph wiring.
const (
	NodeIntake          = "Intake"
	NodeRouter          = "Router"
	NodeFlightAgent     = "FlightAgent"
	NodeHotelAgent      = "HotelAgent"
	NodeAttractionAgent = "AttractionAgent"
	NodeResearchAgent   = "ResearchAgent"
	NodeCancelled       = "Cancelled"
	NodeContinue        = "Continue"
)

// terminalExtraKey carries the terminal outcome on the graph output message
// so the runner can emit the right closing event.
const terminalExtraKey = "terminal"

// HandlerFunc is the shape shared by all specialist handlers.
type HandlerFunc func(ctx context.Context, dec model.RouteDecision, state *model.ConversationState) (string, error)

// NewIntakePreHandler binds the public input onto fresh graph state.
func NewIntakePreHandler() func(context.Context, model.QueryInput, *model.ConversationState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.ConversationState) (model.QueryInput, error) {
		s.QueryID = in.QueryID
		s.ThreadID = in.ThreadID
		s.UserQuery = in.Query
		return in, nil
	}
}

// NewIntakeNode loads or creates the thread state, checkpoints it, and
// builds the oracle context messages.
func NewIntakeNode(states repo.StateRepository, historyTurns int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		var msgs []*schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			loaded, err := states.Load(ctx, input.ThreadID)
			switch {
			case err == nil:
				loaded.BeginTurn(input.QueryID, input.Query)
				*s = *loaded
			case errors.Is(err, repo.ErrStateNotFound):
				*s = *model.NewConversationState(input.QueryID, input.ThreadID, input.Query)
			default:
				return fmt.Errorf("load thread state: %w", err)
			}
			checkpoint(ctx, states, s)

			var berr error
			msgs, berr = buildRouterMessages(ctx, s, historyTurns)
			return berr
		})
		if err != nil {
			return nil, err
		}
		return msgs, nil
	})
}

// buildRouterMessages assembles system prompt plus trailing turns for the
// oracle.
func buildRouterMessages(ctx context.Context, s *model.ConversationState, historyTurns int) ([]*schema.Message, error) {
	sys, err := prompts.RenderRouterSystem(ctx)
	if err != nil {
		return nil, fmt.Errorf("render router system prompt: %w", err)
	}
	msgs := []*schema.Message{schema.SystemMessage(sys)}
	return append(msgs, s.LastTurns(historyTurns)...), nil
}

// checkpoint persists state after a pipeline step. Persistence failures are
// logged but never abort the query.
func checkpoint(ctx context.Context, states repo.StateRepository, s *model.ConversationState) {
	if err := states.Save(ctx, s); err != nil {
		logx.Warn().Err(err).Str("thread_id", s.ThreadID).Msg("state checkpoint failed")
	}
}

// errNoOracle marks routing runs made without a configured language model.
var errNoOracle = errors.New("no language model credential configured")

// NewRouterNode classifies the request. A pending handoff from a prior
// handler is consumed without consulting the oracle, and the cancellation
// registry is polled before any work. A nil oracle degrades to keyword
// classification with a credential hint in the coordinator message.
func NewRouterNode(oracle einomodel.BaseChatModel, registry *interrupt.Registry, states repo.StateRepository) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in []*schema.Message) (model.RouteDecision, error) {
		pub := stream.FromContext(ctx)
		var dec model.RouteDecision
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			if cancelled, reason := registry.ShouldInterrupt(s.QueryID); cancelled {
				s.ShouldInterrupt = true
				s.MarkInterrupted(reason)
				dec = model.RouteDecision{Cancelled: true}
				checkpoint(ctx, states, s)
				return nil
			}

			if s.NextAgent != "" {
				next := s.NextAgent
				s.NextAgent = ""
				s.NeedsContinuation = false
				dec = model.RouteDecision{
					Intent:     intentForAgent(next),
					Agent:      next,
					Confidence: 1,
					Reasoning:  "continuation of a combined request",
					Handoff:    true,
				}
				if s.CoordinatorContext != nil {
					dec.Details = s.CoordinatorContext.Details
				}
				s.RecordAgent(model.AgentCoordinator, "handoff:"+next)
				s.Status = model.StatusRouted
				checkpoint(ctx, states, s)
				return nil
			}

			var content string
			var oracleErr error
			if oracle == nil {
				oracleErr = errNoOracle
			} else {
				content, oracleErr = streamOracle(ctx, oracle, in, pub)
			}
			if oracleErr != nil {
				logx.Warn().Err(oracleErr).Str("query_id", s.QueryID).Msg("oracle unavailable, falling back to keywords")
				dec = parsers.KeywordRoute(s.UserQuery)
			} else {
				dec = parsers.ParseRouteResponse(content, s.UserQuery)
			}

			s.Status = model.StatusRouted
			s.DetectedIntents = append(s.DetectedIntents, dec.Intent)
			coord := &model.CoordinatorContext{
				LastRouting: dec.Agent,
				Details:     dec.Details,
				UpdatedAt:   time.Now().UTC(),
			}
			if oracleErr != nil {
				coord.Error = oracleErr.Error()
			}
			s.CoordinatorContext = coord
			s.RecordAgent(model.AgentCoordinator, "route:"+dec.Agent)

			msg := routingMessage(dec)
			if errors.Is(oracleErr, errNoOracle) {
				msg += " Note: no language model credential is configured (set GEMINI_API_KEY), so requests are classified by keywords only."
			}
			s.AppendAssistant(msg)
			pub.Emit(stream.Event{Type: stream.EventAgentMessage, Agent: model.AgentCoordinator, Content: msg})

			checkpoint(ctx, states, s)
			return nil
		})
		if err != nil {
			return model.RouteDecision{}, err
		}
		return dec, nil
	})
}

// streamOracle runs the classification model in streaming mode so the
// client sees token events while the oracle thinks.
func streamOracle(ctx context.Context, oracle einomodel.BaseChatModel, in []*schema.Message, pub *stream.Publisher) (string, error) {
	reader, err := oracle.Stream(ctx, in)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var b strings.Builder
	for {
		chunk, err := reader.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		b.WriteString(chunk.Content)
		pub.Emit(stream.Event{Type: stream.EventToken, Agent: model.AgentCoordinator, Content: chunk.Content})
	}
	return b.String(), nil
}

func routingMessage(dec model.RouteDecision) string {
	var what string
	switch dec.Agent {
	case model.AgentFlight:
		what = "the flight specialist"
	case model.AgentHotel:
		what = "the hotel specialist"
	case model.AgentAttractions:
		what = "the attractions specialist"
	default:
		what = "the research specialist"
	}
	msg := "Routing your request to " + what + "."
	if dec.Intent == model.IntentBoth {
		msg = "Routing your request to the flight specialist first; hotels will follow."
	}
	if dec.Fallback {
		msg += " (classified by keywords)"
	}
	return msg
}

func intentForAgent(agent string) string {
	switch agent {
	case model.AgentFlight:
		return model.IntentFlight
	case model.AgentHotel:
		return model.IntentHotel
	case model.AgentAttractions:
		return model.IntentAttraction
	}
	return model.IntentGeneral
}

// NewRouterCondition routes the decision to its specialist, or to the
// cancelled sink when the routing checkpoint observed a cancellation.
func NewRouterCondition() func(context.Context, model.RouteDecision) (string, error) {
	return func(ctx context.Context, dec model.RouteDecision) (string, error) {
		if dec.Cancelled {
			return NodeCancelled, nil
		}
		switch dec.Agent {
		case model.AgentFlight:
			return NodeFlightAgent, nil
		case model.AgentHotel:
			return NodeHotelAgent, nil
		case model.AgentAttractions:
			return NodeAttractionAgent, nil
		}
		return NodeResearchAgent, nil
	}
}

// NewAgentNode wraps one specialist handler as a graph node: it emits the
// agent lifecycle events, applies the summary to state, checkpoints, and
// tags the output with the terminal outcome.
func NewAgentNode(agent string, handler HandlerFunc, states repo.StateRepository) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, dec model.RouteDecision) (*schema.Message, error) {
		pub := stream.FromContext(ctx)
		pub.Emit(stream.Event{Type: stream.EventAgentStart, Agent: agent})

		var out *schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			s.RecordAgent(agent, "handle:"+dec.Intent)

			summary, herr := handler(ctx, dec, s)
			if herr != nil {
				s.Status = model.StatusError
				checkpoint(ctx, states, s)
				return herr
			}

			s.AppendAssistant(summary)
			switch {
			case s.IsInterrupted:
				// status already set by MarkInterrupted
			case s.NeedsContinuation:
				s.Status = model.StatusRouted
			default:
				s.Status = model.StatusComplete
			}
			checkpoint(ctx, states, s)

			pub.Emit(stream.Event{Type: stream.EventAgentMessage, Agent: agent, Content: summary})
			pub.Emit(stream.Event{Type: stream.EventAgentComplete, Agent: agent})

			out = schema.AssistantMessage(summary, nil)
			out.Extra = map[string]any{
				terminalExtraKey: terminalFor(s),
				"reason":         s.InterruptReason,
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// terminalFor maps final state to the closing event name.
func terminalFor(s *model.ConversationState) string {
	if !s.IsInterrupted {
		return string(stream.EventComplete)
	}
	// A cancellation observed before any provider work produced results is
	// a plain cancel; anything later is an interruption with partials.
	if len(s.PartialResults) == 0 {
		return string(stream.EventCancelled)
	}
	return string(stream.EventInterrupted)
}

// NewCancelledNode finalizes a query whose cancellation was observed at the
// routing checkpoint, before any specialist ran.
func NewCancelledNode(states repo.StateRepository) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, dec model.RouteDecision) (*schema.Message, error) {
		var out *schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			msg := "Request cancelled before any search started."
			s.AppendAssistant(msg)
			checkpoint(ctx, states, s)
			out = schema.AssistantMessage(msg, nil)
			out.Extra = map[string]any{
				terminalExtraKey: string(stream.EventCancelled),
				"reason":         s.InterruptReason,
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// NewContinueCondition decides whether a handler requested a follow-up
// routing pass.
func NewContinueCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, msg *schema.Message) (string, error) {
		var continuing bool
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			continuing = s.NeedsContinuation && !s.IsInterrupted
			return nil
		})
		if err != nil {
			return "", err
		}
		if continuing {
			logx.Debug().Msg("handler requested continuation, re-routing")
			return NodeContinue, nil
		}
		return compose.END, nil
	}
}

// NewContinueNode rebuilds the oracle context for the continuation pass.
func NewContinueNode(historyTurns int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) ([]*schema.Message, error) {
		var msgs []*schema.Message
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			var berr error
			msgs, berr = buildRouterMessages(ctx, s, historyTurns)
			return berr
		})
		if err != nil {
			return nil, err
		}
		return msgs, nil
	})
}

// NewAgentHandlers builds the node handler set from shared deps.
func NewAgentHandlers(deps *agents.Deps) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		NodeFlightAgent:     deps.Flight,
		NodeHotelAgent:      deps.Hotel,
		NodeAttractionAgent: deps.Attractions,
		NodeResearchAgent:   deps.Research,
	}
}
