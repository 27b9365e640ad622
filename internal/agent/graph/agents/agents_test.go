package agents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/server/internal/agent/model"
	errx "github.com/tripwise/server/internal/core/error"
	"github.com/tripwise/server/internal/interrupt"
	"github.com/tripwise/server/internal/travel"
)

// fakeProvider is a scripted travel backend keyed by URL path.
type fakeProvider struct {
	mu        chan struct{}
	hits      map[string]int
	responses map[string][]string
	statuses  map[string]int
	onRequest func(path string)
	server    *httptest.Server
}

func newFakeProvider() *fakeProvider {
	f := &fakeProvider{
		mu:        make(chan struct{}, 1),
		hits:      map[string]int{},
		responses: map[string][]string{},
		statuses:  map[string]int{},
	}
	f.mu <- struct{}{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-f.mu
		n := f.hits[r.URL.Path]
		f.hits[r.URL.Path] = n + 1
		queue := f.responses[r.URL.Path]
		code := f.statuses[r.URL.Path]
		hook := f.onRequest
		f.mu <- struct{}{}

		if hook != nil {
			hook(r.URL.Path)
		}
		if code != 0 {
			w.WriteHeader(code)
			w.Write([]byte(`{"message":"scripted failure"}`))
			return
		}
		if len(queue) == 0 {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"no scripted response"}`))
			return
		}
		idx := n
		if idx >= len(queue) {
			idx = len(queue) - 1
		}
		w.Write([]byte(queue[idx]))
	}))
	return f
}

func (f *fakeProvider) respond(path string, bodies ...string) {
	<-f.mu
	f.responses[path] = bodies
	f.mu <- struct{}{}
}

func (f *fakeProvider) failWith(path string, code int) {
	<-f.mu
	f.statuses[path] = code
	f.mu <- struct{}{}
}

func (f *fakeProvider) hook(fn func(path string)) {
	<-f.mu
	f.onRequest = fn
	f.mu <- struct{}{}
}

func (f *fakeProvider) hitCount(path string) int {
	<-f.mu
	defer func() { f.mu <- struct{}{} }()
	return f.hits[path]
}

func (f *fakeProvider) close() { f.server.Close() }

func newTestDeps(f *fakeProvider) (*Deps, *interrupt.Registry) {
	registry := interrupt.NewRegistry()
	client := travel.NewClient(travel.Config{
		BaseURL:        f.server.URL,
		SearchBaseURL:  f.server.URL,
		Keys:           []string{"test-key"},
		TimeoutSeconds: 5,
	}, nil)
	deps := NewDeps(client, registry, testDefaults())
	deps.Extractor.now = func() time.Time {
		return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	return deps, registry
}

func newQueryState(query string) *model.ConversationState {
	s := model.NewConversationState("q1", "t1", query)
	s.Status = model.StatusRouted
	return s
}

const flightsBody = `{
	"status": true,
	"data": {
		"aggregation": {"totalCount": 5},
		"flights": [
			{"segments": [{"carrier": "Air India", "departureTime": "08:00"}], "price": {"units": 120, "currencyCode": "USD"}}
		]
	}
}`

func TestFlightHandler(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/flights/searchFlights", flightsBody)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "flights")
	state := newQueryState("flights BOM.AIRPORT to DEL.AIRPORT on 2026-02-10")

	out, err := deps.Flight(context.Background(), model.RouteDecision{Intent: model.IntentFlight}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "Flights from BOM to DEL on 2026-02-10:")
	assert.Contains(t, out, "Total options: 5")
	assert.Contains(t, out, `"items"`)

	require.NotNil(t, state.FlightContext)
	assert.Equal(t, "BOM.AIRPORT", state.FlightContext.Origin)
	assert.Equal(t, "2026-02-10", state.FlightContext.DepartDate)
	// The hotel enrichment attempts a destination lookup even when the
	// backend has nothing for it.
	require.Len(t, state.CompletedToolCalls, 2)
	assert.Equal(t, travel.ToolSearchFlights, state.CompletedToolCalls[0].Tool)
	assert.Equal(t, travel.ToolSearchDestination, state.CompletedToolCalls[1].Tool)
	assert.Empty(t, state.ActiveToolCalls)
	assert.False(t, state.NeedsContinuation)
}

func TestFlightHandlerEnrichesWithTwoNightHotels(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/flights/searchFlights", flightsBody)
	f.respond("/api/v1/hotels/searchDestination", `{"data":[{"dest_id":"-210542","search_type":"city","name":"Delhi"}]}`)
	f.respond("/api/v1/hotels/searchHotels", hotelsBody)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "flights")
	state := newQueryState("flights BOM.AIRPORT to DEL.AIRPORT on 2026-02-10")

	out, err := deps.Flight(context.Background(), model.RouteDecision{Intent: model.IntentFlight}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "Flights from BOM to DEL on 2026-02-10:")
	assert.Contains(t, out, "Hotels in DEL for your first two nights:")
	assert.Contains(t, out, "Hotel Lumiere")
	assert.Contains(t, out, `"hotels"`)
	assert.False(t, state.NeedsContinuation)

	require.Equal(t, 1, f.hitCount("/api/v1/hotels/searchHotels"))
	require.Len(t, state.CompletedToolCalls, 3)
	assert.Equal(t, travel.ToolSearchHotels, state.CompletedToolCalls[2].Tool)
}

func TestFlightHandlerEnrichmentFailureKeepsFlightSummary(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/flights/searchFlights", flightsBody)
	f.failWith("/api/v1/hotels/searchDestination", http.StatusInternalServerError)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "flights")
	state := newQueryState("flights BOM.AIRPORT to DEL.AIRPORT on 2026-02-10")

	out, err := deps.Flight(context.Background(), model.RouteDecision{Intent: model.IntentFlight}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "Total options: 5")
	assert.NotContains(t, out, "first two nights")
	assert.False(t, state.NeedsContinuation)
	assert.Zero(t, f.hitCount("/api/v1/hotels/searchHotels"))
}

func TestFlightHandlerBothRequestsContinuation(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/flights/searchFlights", flightsBody)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "trip")
	state := newQueryState("flight and hotel BOM.AIRPORT to DEL.AIRPORT on 2026-02-10")

	_, err := deps.Flight(context.Background(), model.RouteDecision{Intent: model.IntentBoth}, state)
	require.NoError(t, err)

	assert.Equal(t, model.AgentHotel, state.NextAgent)
	assert.True(t, state.NeedsContinuation)
}

func TestFlightHandlerInterruptedBeforeSearch(t *testing.T) {
	f := newFakeProvider()
	defer f.close()

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "flights")
	registry.Cancel("q1", "changed my mind")
	state := newQueryState("flights BOM.AIRPORT to DEL.AIRPORT")

	out, err := deps.Flight(context.Background(), model.RouteDecision{Intent: model.IntentFlight}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "before any results were retrieved")
	assert.Contains(t, out, "changed my mind")
	assert.True(t, state.IsInterrupted)
	assert.Empty(t, state.PartialResults)
	assert.Zero(t, f.hitCount("/api/v1/flights/searchFlights"), "no provider call after cancellation")
}

func TestFlightHandlerInterruptedAfterSearchPreservesPartial(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/flights/searchFlights", flightsBody)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "flights")
	// Cancellation lands while the provider call is in flight.
	f.hook(func(string) { registry.Cancel("q1", "too slow") })
	state := newQueryState("flights BOM.AIRPORT to DEL.AIRPORT on 2026-02-10")

	out, err := deps.Flight(context.Background(), model.RouteDecision{Intent: model.IntentFlight}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "Partial results were preserved")
	assert.True(t, state.IsInterrupted)
	require.Contains(t, state.PartialResults, "flights")
	partial := state.PartialResults["flights"].(map[string]any)
	assert.Equal(t, true, partial["status"])
}

func TestFlightHandlerProviderFailureIsGraceful(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	// No scripted response produces a 404 from the backend.

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "flights")
	state := newQueryState("flights BOM.AIRPORT to DEL.AIRPORT on 2026-02-10")

	out, err := deps.Flight(context.Background(), model.RouteDecision{Intent: model.IntentBoth}, state)
	require.NoError(t, err, "provider failures become user messages, not errors")

	assert.Contains(t, out, "couldn't retrieve flights")
	assert.Contains(t, out, "search failed (code 404)")
	// The hotel leg of a combined trip still runs.
	assert.Equal(t, model.AgentHotel, state.NextAgent)
	assert.True(t, state.NeedsContinuation)
}

func TestFlightHandlerFailureReportsProviderCode(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	// 429 rotates through every pooled credential before giving up.
	f.failWith("/api/v1/flights/searchFlights", http.StatusTooManyRequests)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "flights")
	state := newQueryState("flights BOM.AIRPORT to DEL.AIRPORT on 2026-02-10")

	out, err := deps.Flight(context.Background(), model.RouteDecision{Intent: model.IntentFlight}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "search failed (code 429)")
	assert.Contains(t, out, errx.RateLimitMessage)
}

const destinationBody = `{"data":[{"dest_id":"-1456928","search_type":"city","name":"Paris"}]}`

const hotelsBody = `{
	"data": {
		"hotels": [
			{"property": {"name": "Hotel Lumiere", "reviewScore": 8.7, "reviewCount": 1543, "priceBreakdown": {"grossPrice": {"value": 210, "currency": "USD"}}}}
		]
	}
}`

func TestHotelHandler(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/hotels/searchDestination", destinationBody)
	f.respond("/api/v1/hotels/searchHotels", hotelsBody)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "hotels")
	state := newQueryState("find hotels in Paris from 2026-03-10")

	out, err := deps.Hotel(context.Background(), model.RouteDecision{Intent: model.IntentHotel}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "Hotels in Paris from 2026-03-10 to 2026-03-12:")
	assert.Contains(t, out, "Hotel Lumiere")
	assert.Contains(t, out, "8.7, 1543 reviews")
	assert.Contains(t, out, `"hotels"`)

	require.NotNil(t, state.HotelContext)
	assert.Equal(t, "Paris", state.HotelContext.Location)
	assert.Equal(t, 1, state.HotelContext.ResultsCount)
	assert.Equal(t, 1, f.hitCount("/api/v1/hotels/searchHotels"))
}

func TestHotelHandlerRelaxedDateRetry(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/hotels/searchDestination", destinationBody)
	f.respond("/api/v1/hotels/searchHotels", `{"data":{"hotels":[]}}`, hotelsBody)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "hotels")
	state := newQueryState("find hotels in Paris from 2026-03-10")

	out, err := deps.Hotel(context.Background(), model.RouteDecision{Intent: model.IntentHotel}, state)
	require.NoError(t, err)

	assert.Equal(t, 2, f.hitCount("/api/v1/hotels/searchHotels"))
	assert.Contains(t, out, "Hotels in Paris from 2026-03-17 to 2026-03-19:")
	assert.Contains(t, out, "no availability for the requested dates")
	assert.Contains(t, out, "Hotel Lumiere")
	assert.Equal(t, "2026-03-17", state.HotelContext.ArrivalDate)
}

func TestHotelHandlerNoDestinationMatch(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/hotels/searchDestination", `{"data":[]}`)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "hotels")
	state := newQueryState("find hotels in Atlantis")

	out, err := deps.Hotel(context.Background(), model.RouteDecision{Intent: model.IntentHotel}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "couldn't find a bookable destination")
	assert.Zero(t, f.hitCount("/api/v1/hotels/searchHotels"))
}

const attractionsBody = `{
	"data": {
		"products": [
			{"name": "Louvre Museum", "slug": "prlouvre", "reviewsStats": {"combinedNumericStats": {"average": 4.7, "total": 8123}}},
			{"name": "Eiffel Tower", "slug": "preiffel", "shortDescription": "Iconic iron tower."}
		]
	}
}`

func TestAttractionsHandlerEnrichesDetails(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/attraction/searchAttractions", attractionsBody)
	f.respond("/api/v1/attraction/getAttractionDetails", `{"data":{"description":"World's largest art museum.","typicalDuration":"3 hours"}}`)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "attractions")
	state := newQueryState("things to do in Paris")

	out, err := deps.Attractions(context.Background(), model.RouteDecision{Intent: model.IntentAttraction}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "Things to do in Paris:")
	assert.Contains(t, out, "Louvre Museum")
	assert.Contains(t, out, "World's largest art museum.")
	assert.Contains(t, out, "Eiffel Tower")
	assert.Contains(t, out, `"attractions"`)
	// Only the entry without a description needed a detail lookup.
	assert.Equal(t, 1, f.hitCount("/api/v1/attraction/getAttractionDetails"))
}

func TestAttractionsHandlerInterruptedDuringEnrichment(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/attraction/searchAttractions", `{
		"data": {"products": [
			{"name": "A", "slug": "pa"}, {"name": "B", "slug": "pb"}, {"name": "C", "slug": "pc"}
		]}
	}`)
	f.respond("/api/v1/attraction/getAttractionDetails", `{"data":{"description":"fine"}}`)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "attractions")
	f.hook(func(path string) {
		if strings.HasSuffix(path, "getAttractionDetails") {
			registry.Cancel("q1", "stop")
		}
	})
	state := newQueryState("things to do in Paris")

	out, err := deps.Attractions(context.Background(), model.RouteDecision{Intent: model.IntentAttraction}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "Partial results were preserved")
	assert.Contains(t, state.PartialResults, "attractions")
	// The cancellation was observed before the second detail call.
	assert.Equal(t, 1, f.hitCount("/api/v1/attraction/getAttractionDetails"))
}

func TestResearchHandlerWebSearch(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/search", `{"data":{"results":[
		{"title": "Best time to visit Japan", "url": "https://example.com", "snippet": "Spring and autumn."}
	]}}`)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "research")
	state := newQueryState("best time to visit Japan")

	out, err := deps.Research(context.Background(), model.RouteDecision{Intent: model.IntentGeneral}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "Here's what I found about your travel query:")
	assert.Contains(t, out, "Best time to visit Japan")
	assert.Contains(t, out, "Spring and autumn.")
}

func TestResearchHandlerDelegatesAttractionQueries(t *testing.T) {
	f := newFakeProvider()
	defer f.close()
	f.respond("/api/v1/attraction/searchAttractions", attractionsBody)
	f.respond("/api/v1/attraction/getAttractionDetails", `{"data":{"description":"fine"}}`)

	deps, registry := newTestDeps(f)
	registry.Register("q1", "t1", "research")
	state := newQueryState("what are the best sightseeing spots in Paris")

	out, err := deps.Research(context.Background(), model.RouteDecision{Intent: model.IntentGeneral}, state)
	require.NoError(t, err)

	assert.Contains(t, out, "Things to do in")
	assert.Zero(t, f.hitCount("/search"))
	assert.Equal(t, 1, f.hitCount("/api/v1/attraction/searchAttractions"))
}
