package agents

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tripwise/server/internal/agent/model"
)

// Extractor resolves search parameters from conversation text. Each slot is
// filled by the first layer that produces a value: explicit tokens, phrase
// patterns, bare IATA codes, known city names, prior-turn context, then the
// configured defaults. Every defaulted slot is reported as an assumption.
type Extractor struct {
	defaults model.RouteDefaults
	now      func() time.Time
}

func NewExtractor(defaults model.RouteDefaults) *Extractor {
	return &Extractor{defaults: defaults, now: time.Now}
}

// FlightParams is a fully resolved flight search request.
type FlightParams struct {
	Origin      string
	Destination string
	DepartDate  string
	Adults      int
	Assumptions []string
}

// HotelParams is a fully resolved hotel search request.
type HotelParams struct {
	Location      string
	ArrivalDate   string
	DepartureDate string
	Assumptions   []string
}

var (
	// Explicit provider location tokens, e.g. BOM.AIRPORT or NYC.CITY.
	tokenRe = regexp.MustCompile(`\b([A-Z]{3})\.(AIRPORT|CITY)\b`)
	// "from X to Y" with free-text place names.
	fromToRe = regexp.MustCompile(`(?i)\bfrom\s+([a-zA-Z][a-zA-Z .]{1,30}?)\s+to\s+([a-zA-Z][a-zA-Z .]{1,30}?)(?:\s+(?:on|in|for|next|this)\b|[,.!?]|$)`)
	// Bare uppercase IATA codes.
	iataRe = regexp.MustCompile(`\b([A-Z]{3})\b`)
	dateRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	// "in X" / "at X" for hotel locations.
	inPlaceRe = regexp.MustCompile(`(?i)\b(?:in|at|near)\s+([a-zA-Z][a-zA-Z .]{1,30}?)(?:\s+(?:on|for|from|next|this)\b|[,.!?]|$)`)
)

// iataStopWords are common three-letter uppercase words that are not codes.
var iataStopWords = map[string]bool{
	"USA": true, "THE": true, "AND": true,
}

// cityAliases maps well-known city names to provider location tokens.
// Longest names first so "new delhi" is not matched as "delhi".
var cityAliases = []struct {
	name  string
	token string
}{
	{"new delhi", "DEL.AIRPORT"},
	{"new york", "NYC.CITY"},
	{"mumbai", "BOM.AIRPORT"},
	{"bombay", "BOM.AIRPORT"},
	{"delhi", "DEL.AIRPORT"},
	{"london", "LON.CITY"},
	{"paris", "PAR.CITY"},
}

// Flight resolves origin, destination and departure date. texts are all
// user messages oldest first; later messages win. prior is the last flight
// context of the thread, if any.
func (e *Extractor) Flight(texts []string, details model.RouteDetails, prior *model.FlightContext) FlightParams {
	p := FlightParams{Adults: details.Passengers}
	if p.Adults <= 0 {
		p.Adults = 1
	}

	// Later messages take precedence, so scan newest first.
	for i := len(texts) - 1; i >= 0; i-- {
		origin, destination := extractRoute(texts[i])
		if p.Origin == "" {
			p.Origin = origin
		}
		if p.Destination == "" {
			p.Destination = destination
		}
		if p.DepartDate == "" {
			p.DepartDate = firstDate(texts[i])
		}
		if p.Origin != "" && p.Destination != "" && p.DepartDate != "" {
			break
		}
	}

	// Oracle slots fill remaining gaps.
	if p.Origin == "" {
		p.Origin = placeToken(details.Origin)
	}
	if p.Destination == "" {
		p.Destination = placeToken(details.Destination)
	}
	if p.DepartDate == "" {
		p.DepartDate = firstDate(details.Dates)
	}

	// Prior-turn context before defaults.
	if prior != nil {
		if p.Origin == "" && prior.Origin != "" {
			p.Origin = prior.Origin
			p.Assumptions = append(p.Assumptions, fmt.Sprintf("reused origin %s from the previous search", prior.Origin))
		}
		if p.Destination == "" && prior.Destination != "" {
			p.Destination = prior.Destination
			p.Assumptions = append(p.Assumptions, fmt.Sprintf("reused destination %s from the previous search", prior.Destination))
		}
		if p.DepartDate == "" && prior.DepartDate != "" {
			p.DepartDate = prior.DepartDate
			p.Assumptions = append(p.Assumptions, fmt.Sprintf("reused travel date %s from the previous search", prior.DepartDate))
		}
	}

	if p.Origin == "" {
		p.Origin = e.defaults.Origin + ".AIRPORT"
		p.Assumptions = append(p.Assumptions, fmt.Sprintf("assumed departure from %s", e.defaults.Origin))
	}
	if p.Destination == "" {
		p.Destination = e.defaults.Destination + ".AIRPORT"
		p.Assumptions = append(p.Assumptions, fmt.Sprintf("assumed destination %s", e.defaults.Destination))
	}
	if p.DepartDate == "" {
		d := e.now().UTC().AddDate(0, 0, e.defaults.LeadDays)
		p.DepartDate = d.Format("2006-01-02")
		p.Assumptions = append(p.Assumptions, fmt.Sprintf("assumed travel date %s (%d days out)", p.DepartDate, e.defaults.LeadDays))
	}
	return p
}

// Hotel resolves the stay location and date window.
func (e *Extractor) Hotel(texts []string, details model.RouteDetails, prior *model.HotelContext) HotelParams {
	var p HotelParams

	for i := len(texts) - 1; i >= 0; i-- {
		if p.Location == "" {
			p.Location = extractPlace(texts[i])
		}
		if p.ArrivalDate == "" {
			p.ArrivalDate = firstDate(texts[i])
		}
		if p.Location != "" && p.ArrivalDate != "" {
			break
		}
	}

	if p.Location == "" && details.Destination != "" {
		p.Location = details.Destination
	}
	if p.ArrivalDate == "" {
		p.ArrivalDate = firstDate(details.Dates)
	}

	if prior != nil {
		if p.Location == "" && prior.Location != "" {
			p.Location = prior.Location
			p.Assumptions = append(p.Assumptions, fmt.Sprintf("reused location %s from the previous search", prior.Location))
		}
		if p.ArrivalDate == "" && prior.ArrivalDate != "" {
			p.ArrivalDate = prior.ArrivalDate
			p.Assumptions = append(p.Assumptions, fmt.Sprintf("reused check-in %s from the previous search", prior.ArrivalDate))
		}
	}

	if p.Location == "" {
		p.Location = e.defaults.HotelLocation
		p.Assumptions = append(p.Assumptions, fmt.Sprintf("assumed stay in %s", e.defaults.HotelLocation))
	}
	if p.ArrivalDate == "" {
		d := e.now().UTC().AddDate(0, 0, e.defaults.LeadDays)
		p.ArrivalDate = d.Format("2006-01-02")
		p.Assumptions = append(p.Assumptions, fmt.Sprintf("assumed check-in %s (%d days out)", p.ArrivalDate, e.defaults.LeadDays))
	}
	if p.DepartureDate == "" {
		p.DepartureDate = shiftDate(p.ArrivalDate, e.defaults.HotelNights)
	}
	return p
}

// extractRoute finds origin and destination tokens in one message.
func extractRoute(text string) (origin, destination string) {
	// Explicit tokens win outright; first is origin, second destination.
	if tokens := tokenRe.FindAllString(text, 2); len(tokens) == 2 {
		return tokens[0], tokens[1]
	}

	if m := fromToRe.FindStringSubmatch(text); m != nil {
		origin = placeToken(m[1])
		destination = placeToken(m[2])
		if origin != "" && destination != "" {
			return origin, destination
		}
	}

	// Bare IATA pairs like "BOM to DEL".
	var codes []string
	for _, m := range iataRe.FindAllString(text, -1) {
		if !iataStopWords[m] {
			codes = append(codes, m)
		}
	}
	if len(codes) >= 2 {
		return codes[0] + ".AIRPORT", codes[1] + ".AIRPORT"
	}

	// A single alias match counts as destination.
	if destination == "" {
		lowered := strings.ToLower(text)
		for _, alias := range cityAliases {
			if strings.Contains(lowered, alias.name) {
				destination = alias.token
				break
			}
		}
	}
	return origin, destination
}

// placeToken converts one place expression to a provider token. It returns
// empty for text it cannot resolve rather than guessing.
func placeToken(place string) string {
	place = strings.TrimSpace(place)
	if place == "" {
		return ""
	}
	if tokenRe.MatchString(place) {
		return tokenRe.FindString(place)
	}
	lowered := strings.ToLower(place)
	for _, alias := range cityAliases {
		if lowered == alias.name {
			return alias.token
		}
	}
	upper := strings.ToUpper(place)
	if len(upper) == 3 && iataRe.MatchString(upper) && !iataStopWords[upper] {
		return upper + ".AIRPORT"
	}
	return ""
}

// extractPlace finds a free-text stay location in one message.
func extractPlace(text string) string {
	if m := inPlaceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	lowered := strings.ToLower(text)
	for _, alias := range cityAliases {
		if strings.Contains(lowered, alias.name) {
			return titleCase(alias.name)
		}
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func firstDate(text string) string {
	return dateRe.FindString(text)
}

// shiftDate adds days to an ISO date, returning the input on parse failure.
func shiftDate(date string, days int) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return d.AddDate(0, 0, days).Format("2006-01-02")
}
