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

// Hotel resolves the stay, then runs the two-step provider flow: location
// lookup followed by availability search. An empty result set triggers one
// relaxed retry with the date window pushed a week out.
func (d *Deps) Hotel(ctx context.Context, dec model.RouteDecision, state *model.ConversationState) (string, error) {
	if d.checkpoint(state) {
		return interruptionSummary(state), nil
	}

	p := d.Extractor.Hotel(state.UserTexts(), dec.Details, state.HotelContext)
	logx.Debug().
		Str("query_id", state.QueryID).
		Str("location", p.Location).
		Str("arrival", p.ArrivalDate).
		Str("departure", p.DepartureDate).
		Msg("hotel search resolved")

	state.ActiveToolCalls = append(state.ActiveToolCalls, travel.ToolSearchDestination)
	destPayload, err := d.Travel.SearchDestination(ctx, p.Location)
	state.RecordToolCall(travel.ToolSearchDestination, model.AgentHotel)
	if err != nil {
		logx.Warn().Err(err).Str("query_id", state.QueryID).Msg("destination lookup failed")
		return fmt.Sprintf("I couldn't look up %s: %s. Please try again shortly.%s",
			p.Location, searchFailure(err), assumptionLines(p.Assumptions)), nil
	}

	dest, ok := normalize.FirstDestination(destPayload)
	if !ok {
		return fmt.Sprintf("I couldn't find a bookable destination matching %q. Could you try a nearby city name?%s",
			p.Location, assumptionLines(p.Assumptions)), nil
	}

	if d.checkpoint(state) {
		state.PreservePartial("hotels", destPayload)
		return interruptionSummary(state), nil
	}

	query := travel.HotelQuery{
		DestID:        dest.ID,
		SearchType:    dest.SearchType,
		ArrivalDate:   p.ArrivalDate,
		DepartureDate: p.DepartureDate,
	}
	state.ActiveToolCalls = append(state.ActiveToolCalls, travel.ToolSearchHotels)
	payload, err := d.Travel.SearchHotels(ctx, query)
	state.RecordToolCall(travel.ToolSearchHotels, model.AgentHotel)
	if err != nil {
		logx.Warn().Err(err).Str("query_id", state.QueryID).Msg("hotel search failed")
		return fmt.Sprintf("I couldn't retrieve hotels in %s: %s. Please try again shortly.%s",
			p.Location, searchFailure(err), assumptionLines(p.Assumptions)), nil
	}

	arrival, departure := p.ArrivalDate, p.DepartureDate
	if list, _ := normalize.HotelList(payload); len(list) == 0 {
		// Nothing available in the requested window; retry a week later
		// before reporting an empty result.
		if d.checkpoint(state) {
			state.PreservePartial("hotels", payload)
			return interruptionSummary(state), nil
		}
		arrival = shiftDate(p.ArrivalDate, 7)
		departure = shiftDate(p.DepartureDate, 7)
		query.ArrivalDate = arrival
		query.DepartureDate = departure
		logx.Debug().Str("query_id", state.QueryID).Str("arrival", arrival).Msg("empty hotel result, retrying with relaxed dates")

		state.ActiveToolCalls = append(state.ActiveToolCalls, travel.ToolSearchHotels)
		retryPayload, retryErr := d.Travel.SearchHotels(ctx, query)
		state.RecordToolCall(travel.ToolSearchHotels, model.AgentHotel)
		if retryErr == nil {
			payload = retryPayload
			p.Assumptions = append(p.Assumptions,
				fmt.Sprintf("no availability for the requested dates, showing %s to %s instead", arrival, departure))
		}
	}

	if d.checkpoint(state) {
		state.PreservePartial("hotels", payload)
		return interruptionSummary(state), nil
	}

	options := normalize.Hotels(payload)

	state.HotelContext = &model.HotelContext{
		Location:      p.Location,
		ArrivalDate:   arrival,
		DepartureDate: departure,
		ResultsCount:  len(options),
		Results:       payload,
		UpdatedAt:     time.Now().UTC(),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hotels in %s from %s to %s:", p.Location, arrival, departure)
	if len(options) == 0 {
		b.WriteString("\nNo hotels found for these dates. You could try a different date range or a nearby city.")
	} else {
		for i, o := range options {
			if i >= 3 {
				break
			}
			b.WriteString("\n")
			b.WriteString(hotelLine(o))
		}
	}
	b.WriteString(assumptionLines(p.Assumptions))

	return withCards(b.String(), model.CardBlock{Hotels: options}), nil
}

func hotelLine(o model.Option) string {
	line := "- " + o.DisplayName()
	if o.Rating != nil {
		line += fmt.Sprintf(" (%.1f", *o.Rating)
		if o.Reviews != nil {
			line += fmt.Sprintf(", %d reviews", *o.Reviews)
		}
		line += ")"
	}
	if o.Price != nil && o.Price.Amount != nil {
		cur := o.Price.Currency
		if cur == "" {
			cur = o.Currency
		}
		line += fmt.Sprintf(" from %.0f %s", *o.Price.Amount, cur)
	}
	return line
}
