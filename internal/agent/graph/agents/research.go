package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tripwise/server/internal/agent/model"
	"github.com/tripwise/server/internal/travel"
	"github.com/tripwise/server/internal/travel/normalize"
	logx "github.com/tripwise/server/pkg/logger"
)

const webResultLimit = 3

var attractionKeywords = []string{"attraction", "things to do", "places to visit", "sightseeing"}

// Research answers open travel questions. Queries that are really about
// attractions are answered with live attraction data; everything else goes
// through web search.
func (d *Deps) Research(ctx context.Context, dec model.RouteDecision, state *model.ConversationState) (string, error) {
	if d.checkpoint(state) {
		return interruptionSummary(state), nil
	}

	q := strings.ToLower(state.UserQuery)
	for _, kw := range attractionKeywords {
		if strings.Contains(q, kw) {
			return d.Attractions(ctx, dec, state)
		}
	}

	state.ActiveToolCalls = append(state.ActiveToolCalls, travel.ToolWebSearch)
	payload, err := d.Travel.WebSearch(ctx, state.UserQuery, webResultLimit)
	state.RecordToolCall(travel.ToolWebSearch, model.AgentResearch)
	if err != nil {
		logx.Warn().Err(err).Str("query_id", state.QueryID).Msg("web search failed")
		return fmt.Sprintf("I couldn't search for that: %s. Please try again shortly.", searchFailure(err)), nil
	}

	if d.checkpoint(state) {
		state.PreservePartial("research", payload)
		return interruptionSummary(state), nil
	}

	results := normalize.WebResults(payload, webResultLimit)
	if len(results) == 0 {
		return fmt.Sprintf("I couldn't find anything useful for that query. Raw data: %s",
			normalize.Snippet(payload, 400)), nil
	}

	var b strings.Builder
	b.WriteString("Here's what I found about your travel query:")
	for _, r := range results {
		fmt.Fprintf(&b, "\n- %s", r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "\n  %s", r.Snippet)
		}
	}
	return b.String(), nil
}
