package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tripwise/server/internal/agent/model"
	"github.com/tripwise/server/internal/travel"
	"github.com/tripwise/server/internal/travel/normalize"
	logx "github.com/tripwise/server/pkg/logger"
)

// Flight resolves the route, queries live availability, and summarizes the
// options. Every successful search is followed by a best-effort two-night
// hotel lookup at the destination; on a combined trip a failed lookup falls
// back to a hotel handoff so the stay leg still runs.
func (d *Deps) Flight(ctx context.Context, dec model.RouteDecision, state *model.ConversationState) (string, error) {
	if d.checkpoint(state) {
		return interruptionSummary(state), nil
	}

	p := d.Extractor.Flight(state.UserTexts(), dec.Details, state.FlightContext)
	logx.Debug().
		Str("query_id", state.QueryID).
		Str("origin", p.Origin).
		Str("destination", p.Destination).
		Str("depart_date", p.DepartDate).
		Msg("flight search resolved")

	state.ActiveToolCalls = append(state.ActiveToolCalls, travel.ToolSearchFlights)
	payload, err := d.Travel.SearchFlights(ctx, travel.FlightQuery{
		FromID:     p.Origin,
		ToID:       p.Destination,
		DepartDate: p.DepartDate,
		Adults:     p.Adults,
	})
	state.RecordToolCall(travel.ToolSearchFlights, model.AgentFlight)
	if err != nil {
		logx.Warn().Err(err).Str("query_id", state.QueryID).Msg("flight search failed")
		d.requestHotelContinuation(dec, state)
		return fmt.Sprintf("I couldn't retrieve flights from %s to %s: %s. Please try again shortly.%s",
			placeLabel(p.Origin), placeLabel(p.Destination), searchFailure(err), assumptionLines(p.Assumptions)), nil
	}

	if d.checkpoint(state) {
		state.PreservePartial("flights", payload)
		return interruptionSummary(state), nil
	}

	sum := normalize.Flights(payload, p.Origin, p.Destination)

	state.FlightContext = &model.FlightContext{
		Origin:      p.Origin,
		Destination: p.Destination,
		DepartDate:  p.DepartDate,
		Results:     payload,
		UpdatedAt:   time.Now().UTC(),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Flights from %s to %s on %s:", placeLabel(p.Origin), placeLabel(p.Destination), p.DepartDate)
	if len(sum.Lines) == 0 && len(sum.Options) == 0 {
		fmt.Fprintf(&b, "\nI couldn't read the provider response. Raw data: %s", normalize.Snippet(payload, 400))
	} else {
		for _, line := range sum.Lines {
			b.WriteString("\n")
			b.WriteString(line)
		}
	}
	hotelBlock, hotelOptions := d.hotelEnrichment(ctx, p, state)
	if state.IsInterrupted {
		state.PreservePartial("flights", payload)
		return interruptionSummary(state), nil
	}
	b.WriteString(hotelBlock)
	if hotelBlock == "" {
		d.requestHotelContinuation(dec, state)
	}
	b.WriteString(assumptionLines(p.Assumptions))

	return withCards(b.String(), model.CardBlock{Items: sum.Options, Hotels: hotelOptions}), nil
}

// hotelEnrichment runs the two-night hotel lookup that follows a flight
// search. Any failure returns an empty block without touching the flight
// summary.
func (d *Deps) hotelEnrichment(ctx context.Context, p FlightParams, state *model.ConversationState) (string, []model.Option) {
	if d.checkpoint(state) {
		return "", nil
	}
	location := placeLabel(p.Destination)

	state.ActiveToolCalls = append(state.ActiveToolCalls, travel.ToolSearchDestination)
	destPayload, err := d.Travel.SearchDestination(ctx, location)
	state.RecordToolCall(travel.ToolSearchDestination, model.AgentFlight)
	if err != nil {
		logx.Debug().Err(err).Str("query_id", state.QueryID).Msg("hotel enrichment lookup failed, skipping")
		return "", nil
	}
	dest, ok := normalize.FirstDestination(destPayload)
	if !ok {
		return "", nil
	}

	if d.checkpoint(state) {
		return "", nil
	}
	state.ActiveToolCalls = append(state.ActiveToolCalls, travel.ToolSearchHotels)
	payload, err := d.Travel.SearchHotels(ctx, travel.HotelQuery{
		DestID:        dest.ID,
		SearchType:    dest.SearchType,
		ArrivalDate:   p.DepartDate,
		DepartureDate: shiftDate(p.DepartDate, 2),
	})
	state.RecordToolCall(travel.ToolSearchHotels, model.AgentFlight)
	if err != nil {
		logx.Debug().Err(err).Str("query_id", state.QueryID).Msg("hotel enrichment search failed, skipping")
		return "", nil
	}

	options := normalize.Hotels(payload)
	if len(options) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n\nHotels in %s for your first two nights:", location)
	for i, o := range options {
		if i >= 3 {
			break
		}
		b.WriteString("\n")
		b.WriteString(hotelLine(o))
	}
	return b.String(), options
}

// requestHotelContinuation schedules the hotel leg of a combined trip.
func (d *Deps) requestHotelContinuation(dec model.RouteDecision, state *model.ConversationState) {
	if dec.Intent != model.IntentBoth {
		return
	}
	state.NextAgent = model.AgentHotel
	state.NeedsContinuation = true
}

// placeLabel strips provider token suffixes for prose.
func placeLabel(token string) string {
	if i := strings.IndexByte(token, '.'); i > 0 {
		return token[:i]
	}
	return token
}
