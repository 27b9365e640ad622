package normalize

import (
	"fmt"

	"github.com/tripwise/server/internal/agent/model"
)

// flightListKeys is the prioritized set of well-known keys holding flight
// option lists, tried in order before the generic scan.
var flightListKeys = []string{"results", "itineraries", "itineraryList", "flights", "items"}

// FlightSummary is the normalized view of a flight-search payload.
type FlightSummary struct {
	Options []model.Option
	// Lines are short human-readable bullets (aggregation counts, top
	// options), capped small for chat display.
	Lines []string
}

// Flights normalizes a flight-search payload. It never fails: an
// unrecognizable payload yields empty Options and Lines, and the caller
// falls back to a raw snippet.
func Flights(payload map[string]any, from, to string) FlightSummary {
	var out FlightSummary
	if payload == nil {
		return out
	}
	obj := root(payload)

	// 1) Aggregation summary first: totals and min price per stop bucket.
	if agg, ok := asMap(obj["aggregation"]); ok {
		if total, ok := num(agg, "totalCount", "filteredTotalCount"); ok && total > 0 {
			out.Lines = append(out.Lines, fmt.Sprintf("Total options: %.0f", total))
		}
		if stops, ok := asList(agg["stops"]); ok {
			for i, s := range stops {
				if i >= 2 {
					break
				}
				bucket, ok := asMap(s)
				if !ok {
					continue
				}
				count, hasCount := num(bucket, "count")
				price := moneyFromAny(bucket["minPrice"])
				if !hasCount || price == nil || price.Amount == nil {
					continue
				}
				label := "Non-stop"
				if n, ok := num(bucket, "numberOfStops"); ok && n >= 1 {
					if n == 1 {
						label = "1-stop"
					} else {
						label = fmt.Sprintf("%.0f-stops", n)
					}
				}
				line := fmt.Sprintf("%s: %.0f from %.0f %s", label, count, *price.Amount, price.Currency)
				if cheap, ok := asMap(bucket["cheapestAirline"]); ok {
					if name := str(cheap, "name", "code"); name != "" {
						line += fmt.Sprintf(" (e.g., %s)", name)
					}
				}
				out.Lines = append(out.Lines, line)
			}
		}
	}

	// 2) Locate the option list: known keys at the top level, then nested
	// under data, then any non-empty object list.
	options := listUnder(payload, flightListKeys...)
	if options == nil {
		options = listUnder(obj, flightListKeys...)
	}
	if options == nil {
		if l, ok := asList(payload["data"]); ok && len(l) > 0 {
			options = l
		}
	}
	if options == nil {
		options = firstObjectList(obj)
	}

	for i, raw := range options {
		if i >= MaxOptions {
			break
		}
		opt, ok := asMap(raw)
		if !ok {
			continue
		}
		out.Options = append(out.Options, flightOption(opt, from, to))
	}

	// Concise bullets for the first few options.
	for i, opt := range out.Options {
		if len(out.Lines) >= 3 || i >= 3 {
			break
		}
		if line := flightLine(opt); line != "" {
			out.Lines = append(out.Lines, line)
		}
	}

	// 3) No structured list at all: synthesize options from the airline
	// aggregation block so the user still gets cards.
	if len(out.Options) == 0 {
		out.Options = airlineAggregation(obj, from, to)
	}

	return out
}

// flightOption probes one candidate object for plausible field names,
// tolerating any subset being absent.
func flightOption(opt map[string]any, from, to string) model.Option {
	o := model.Option{From: from, To: to}

	// Price: bare value, nested price object, or pricing.total.
	o.Price = moneyFromAny(opt["price"])
	if o.Price == nil {
		if pricing, ok := asMap(opt["pricing"]); ok {
			o.Price = moneyFromAny(pricing["total"])
			if o.Price != nil && o.Price.Currency == "" {
				o.Price.Currency = str(pricing, "currency")
			}
		}
	}
	o.Currency = str(opt, "currency")
	if o.Currency == "" && o.Price != nil {
		o.Currency = o.Price.Currency
	}

	// Carrier and timing come from the segment list when present.
	segments := listUnder(opt, "segments", "legs", "itinerarySegments")
	if len(segments) > 0 {
		if first, ok := asMap(segments[0]); ok {
			o.Airline = str(first, "carrier", "airline", "marketingCarrier")
			o.DepartTime = str(first, "departureTime", "departure", "departureDateTime")
		}
		if last, ok := asMap(segments[len(segments)-1]); ok {
			o.ArriveTime = str(last, "arrivalTime", "arrival", "arrivalDateTime")
		}
		o.Stops = intPtr(len(segments) - 1)
	}
	if o.Airline == "" {
		o.Airline = str(opt, "airline", "carrier")
	}
	if o.Airline == "" {
		o.Airline = "Flight"
	}
	if o.DepartTime == "" {
		o.DepartTime = str(opt, "departureTime", "departure_time")
	}
	if o.ArriveTime == "" {
		o.ArriveTime = str(opt, "arrivalTime", "arrival_time")
	}
	o.Duration = str(opt, "duration", "totalDuration")
	if o.Stops == nil {
		if n, ok := num(opt, "stops"); ok {
			o.Stops = intPtr(int(n))
		}
	}
	return o
}

func flightLine(o model.Option) string {
	line := "- " + o.DisplayName()
	if o.Price != nil && o.Price.Amount != nil {
		cur := o.Price.Currency
		if cur == "" {
			cur = o.Currency
		}
		if cur != "" {
			line += fmt.Sprintf(" %.0f %s", *o.Price.Amount, cur)
		} else {
			line += fmt.Sprintf(" %.0f", *o.Price.Amount)
		}
	}
	if o.DepartTime != "" || o.ArriveTime != "" {
		line += fmt.Sprintf(" | %s -> %s", o.DepartTime, o.ArriveTime)
	}
	if o.Duration != "" {
		line += " | " + o.Duration
	}
	if o.Stops != nil {
		line += fmt.Sprintf(" | Stops: %d", *o.Stops)
	}
	return line
}

// airlineAggregation derives synthetic options from the per-airline
// aggregation summary when no itinerary list exists.
func airlineAggregation(obj map[string]any, from, to string) []model.Option {
	agg, ok := asMap(obj["aggregation"])
	if !ok {
		return nil
	}
	airlines, ok := asList(agg["airlines"])
	if !ok {
		return nil
	}
	var out []model.Option
	for i, raw := range airlines {
		if i >= MaxOptions {
			break
		}
		al, ok := asMap(raw)
		if !ok {
			continue
		}
		name := str(al, "name", "iataCode")
		if name == "" {
			name = "Flight"
		}
		o := model.Option{
			Airline:     name,
			AirlineCode: str(al, "iataCode"),
			LogoURL:     str(al, "logoUrl"),
			From:        from,
			To:          to,
		}
		if count, ok := num(al, "count"); ok {
			o.Count = intPtr(int(count))
		}
		if price := moneyFromAny(al["minPricePerAdult"]); price != nil {
			o.Price = price
		} else if price := moneyFromAny(al["minPrice"]); price != nil {
			o.Price = price
		}
		if o.Price != nil {
			o.Currency = o.Price.Currency
		}
		out = append(out, o)
	}
	return out
}
