package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tripwise/server/internal/agent/model"
	"github.com/tripwise/server/internal/agent/stream"
	"github.com/tripwise/server/internal/travel"
	"github.com/tripwise/server/internal/travel/normalize"
	logx "github.com/tripwise/server/pkg/logger"
)

// attractionDetailLimit caps the per-item detail enrichment fan-out.
const attractionDetailLimit = 5

// Attractions lists things to do at the destination and enriches the top
// entries with descriptions. Detail failures are skipped, not fatal; the
// registry is polled between every detail call.
func (d *Deps) Attractions(ctx context.Context, dec model.RouteDecision, state *model.ConversationState) (string, error) {
	if d.checkpoint(state) {
		return interruptionSummary(state), nil
	}

	location := d.attractionLocation(dec, state)

	state.ActiveToolCalls = append(state.ActiveToolCalls, travel.ToolSearchAttractions)
	payload, err := d.Travel.SearchAttractions(ctx, location)
	state.RecordToolCall(travel.ToolSearchAttractions, model.AgentAttractions)
	if err != nil {
		logx.Warn().Err(err).Str("query_id", state.QueryID).Msg("attraction search failed")
		return fmt.Sprintf("I couldn't retrieve attractions for %s: %s. Please try again shortly.", location, searchFailure(err)), nil
	}

	if d.checkpoint(state) {
		state.PreservePartial("attractions", payload)
		return interruptionSummary(state), nil
	}

	options := normalize.Attractions(payload, location)
	if len(options) == 0 {
		return fmt.Sprintf("I couldn't find attractions for %s. Raw data: %s",
			location, normalize.Snippet(payload, 400)), nil
	}

	// Enrich the top entries with descriptions. Each lookup is best-effort
	// and bracketed by a cancellation check so a long fan-out stays
	// responsive.
	rawItems := rawAttractionItems(payload)
	for i := range options {
		if i >= attractionDetailLimit || i >= len(rawItems) {
			break
		}
		if d.checkpoint(state) {
			state.PreservePartial("attractions", options)
			return interruptionSummary(state), nil
		}
		if options[i].Description != "" {
			continue
		}
		id := normalize.AttractionID(rawItems[i])
		if id == "" {
			continue
		}
		state.ActiveToolCalls = append(state.ActiveToolCalls, travel.ToolAttractionDetails)
		detail, derr := d.Travel.AttractionDetails(ctx, id)
		state.RecordToolCall(travel.ToolAttractionDetails, model.AgentAttractions)
		if derr != nil {
			logx.Debug().Err(derr).Str("attraction_id", id).Msg("attraction detail lookup failed, skipping")
			continue
		}
		desc, duration := normalize.AttractionDescription(detail)
		if desc != "" {
			options[i].Description = desc
		}
		if duration != "" && options[i].Duration == "" {
			options[i].Duration = duration
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Things to do in %s:", location)
	for i, o := range options {
		if i >= attractionDetailLimit {
			break
		}
		fmt.Fprintf(&b, "\n- %s", o.DisplayName())
		if o.Rating != nil {
			fmt.Fprintf(&b, " (%.1f", *o.Rating)
			if o.Reviews != nil {
				fmt.Fprintf(&b, ", %d reviews", *o.Reviews)
			}
			b.WriteString(")")
		}
		if o.Description != "" {
			fmt.Fprintf(&b, ": %s", stream.Truncate(o.Description, 160))
		}
	}

	return withCards(b.String(), model.CardBlock{Attractions: options}), nil
}

// attractionLocation picks the place to search: oracle slot, text, prior
// contexts, then the configured default stay location.
func (d *Deps) attractionLocation(dec model.RouteDecision, state *model.ConversationState) string {
	if dec.Details.Destination != "" {
		return dec.Details.Destination
	}
	texts := state.UserTexts()
	for i := len(texts) - 1; i >= 0; i-- {
		if place := extractPlace(texts[i]); place != "" {
			return place
		}
	}
	if state.HotelContext != nil && state.HotelContext.Location != "" {
		return state.HotelContext.Location
	}
	if state.FlightContext != nil && state.FlightContext.Destination != "" {
		return placeLabel(state.FlightContext.Destination)
	}
	return d.Extractor.defaults.HotelLocation
}

// rawAttractionItems re-extracts the provider list entries so detail ids
// stay available after normalization.
func rawAttractionItems(payload map[string]any) []map[string]any {
	list, ok := normalize.ObjectList(payload, "products", "results", "attractions", "items")
	if !ok {
		return nil
	}
	return list
}
