package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/server/internal/agent/graph/nodes"
	"github.com/tripwise/server/internal/agent/model"
	"github.com/tripwise/server/internal/agent/repo"
	"github.com/tripwise/server/internal/interrupt"
)

func stubHandlers(handled *string) map[string]nodes.HandlerFunc {
	handler := func(name string) nodes.HandlerFunc {
		return func(ctx context.Context, dec model.RouteDecision, s *model.ConversationState) (string, error) {
			*handled = name
			return "handled by " + name, nil
		}
	}
	return map[string]nodes.HandlerFunc{
		nodes.NodeFlightAgent:     handler("flight"),
		nodes.NodeHotelAgent:      handler("hotel"),
		nodes.NodeAttractionAgent: handler("attractions"),
		nodes.NodeResearchAgent:   handler("research"),
	}
}

func TestGraphWithoutOracleRoutesByKeywords(t *testing.T) {
	states := repo.NewMemoryStateRepository()
	registry := interrupt.NewRegistry()

	var handled string
	runnable, err := BuildGraph(context.Background(), &GraphConfig{
		States:       states,
		Interrupts:   registry,
		Handlers:     stubHandlers(&handled),
		HistoryTurns: 2,
	})
	require.NoError(t, err)

	registry.Register("q1", "t1", "book a flight to Paris")
	out, err := runnable.Invoke(context.Background(), model.QueryInput{
		QueryID:  "q1",
		ThreadID: "t1",
		Query:    "book a flight to Paris",
	})
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, "flight", handled)
	assert.Equal(t, "complete", out.Extra["terminal"])

	// The coordinator message carries the credential hint.
	state, err := states.Load(context.Background(), "t1")
	require.NoError(t, err)
	var hinted bool
	for _, m := range state.Messages {
		if m != nil && strings.Contains(m.Content, "GEMINI_API_KEY") {
			hinted = true
		}
	}
	assert.True(t, hinted, "routing message should mention the missing credential")
}
