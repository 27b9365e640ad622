package agents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/server/internal/agent/model"
)

func testDefaults() model.RouteDefaults {
	return model.RouteDefaults{
		Origin:        "BOM",
		Destination:   "DEL",
		HotelLocation: "Mumbai",
		LeadDays:      21,
		HotelNights:   2,
	}
}

func fixedExtractor() *Extractor {
	e := NewExtractor(testDefaults())
	e.now = func() time.Time {
		return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	return e
}

func TestFlightExplicitTokensAndDate(t *testing.T) {
	e := fixedExtractor()
	p := e.Flight([]string{"Find flights BOM.AIRPORT to DEL.AIRPORT on 2026-02-10"}, model.RouteDetails{}, nil)

	assert.Equal(t, "BOM.AIRPORT", p.Origin)
	assert.Equal(t, "DEL.AIRPORT", p.Destination)
	assert.Equal(t, "2026-02-10", p.DepartDate)
	assert.Equal(t, 1, p.Adults)
	assert.Empty(t, p.Assumptions)
}

func TestFlightFromToPhrase(t *testing.T) {
	e := fixedExtractor()
	p := e.Flight([]string{"I want to fly from Mumbai to New Delhi on 2026-03-01"}, model.RouteDetails{}, nil)

	assert.Equal(t, "BOM.AIRPORT", p.Origin)
	assert.Equal(t, "DEL.AIRPORT", p.Destination)
	assert.Equal(t, "2026-03-01", p.DepartDate)
	assert.Empty(t, p.Assumptions)
}

func TestFlightBareIATAPair(t *testing.T) {
	e := fixedExtractor()
	p := e.Flight([]string{"BOM to DEL next week please"}, model.RouteDetails{}, nil)

	assert.Equal(t, "BOM.AIRPORT", p.Origin)
	assert.Equal(t, "DEL.AIRPORT", p.Destination)
}

func TestFlightLaterMessageWins(t *testing.T) {
	e := fixedExtractor()
	p := e.Flight([]string{
		"flights from Mumbai to Delhi on 2026-02-01",
		"actually make that from Paris to London on 2026-04-05",
	}, model.RouteDetails{}, nil)

	assert.Equal(t, "PAR.CITY", p.Origin)
	assert.Equal(t, "LON.CITY", p.Destination)
	assert.Equal(t, "2026-04-05", p.DepartDate)
}

func TestFlightOracleDetailsFillGaps(t *testing.T) {
	e := fixedExtractor()
	p := e.Flight([]string{"book me something"}, model.RouteDetails{
		Origin:      "mumbai",
		Destination: "london",
		Dates:       "2026-05-20",
		Passengers:  3,
	}, nil)

	assert.Equal(t, "BOM.AIRPORT", p.Origin)
	assert.Equal(t, "LON.CITY", p.Destination)
	assert.Equal(t, "2026-05-20", p.DepartDate)
	assert.Equal(t, 3, p.Adults)
}

func TestFlightPriorContextReuse(t *testing.T) {
	e := fixedExtractor()
	prior := &model.FlightContext{Origin: "BOM.AIRPORT", Destination: "DEL.AIRPORT", DepartDate: "2026-02-14"}
	p := e.Flight([]string{"any cheaper options?"}, model.RouteDetails{}, prior)

	assert.Equal(t, "BOM.AIRPORT", p.Origin)
	assert.Equal(t, "DEL.AIRPORT", p.Destination)
	assert.Equal(t, "2026-02-14", p.DepartDate)
	require.Len(t, p.Assumptions, 3)
	assert.Contains(t, p.Assumptions[0], "reused origin")
	assert.Contains(t, p.Assumptions[2], "reused travel date")
}

func TestFlightDefaults(t *testing.T) {
	e := fixedExtractor()
	p := e.Flight([]string{"I need a flight"}, model.RouteDetails{}, nil)

	assert.Equal(t, "BOM.AIRPORT", p.Origin)
	assert.Equal(t, "DEL.AIRPORT", p.Destination)
	// 2026-01-01 plus the 21 day lead.
	assert.Equal(t, "2026-01-22", p.DepartDate)
	require.Len(t, p.Assumptions, 3)
	assert.Contains(t, p.Assumptions[0], "assumed departure from BOM")
	assert.Contains(t, p.Assumptions[2], "21 days out")
}

func TestHotelExplicitLocation(t *testing.T) {
	e := fixedExtractor()
	p := e.Hotel([]string{"find hotels in Paris from 2026-03-10"}, model.RouteDetails{}, nil)

	assert.Equal(t, "Paris", p.Location)
	assert.Equal(t, "2026-03-10", p.ArrivalDate)
	assert.Equal(t, "2026-03-12", p.DepartureDate)
	assert.Empty(t, p.Assumptions)
}

func TestHotelCityAliasWithoutPreposition(t *testing.T) {
	e := fixedExtractor()
	p := e.Hotel([]string{"new york hotels please"}, model.RouteDetails{}, nil)
	assert.Equal(t, "New York", p.Location)
}

func TestHotelPriorContextReuse(t *testing.T) {
	e := fixedExtractor()
	prior := &model.HotelContext{Location: "Tokyo", ArrivalDate: "2026-04-01"}
	p := e.Hotel([]string{"show me more"}, model.RouteDetails{}, prior)

	assert.Equal(t, "Tokyo", p.Location)
	assert.Equal(t, "2026-04-01", p.ArrivalDate)
	assert.Equal(t, "2026-04-03", p.DepartureDate)
	require.Len(t, p.Assumptions, 2)
}

func TestHotelDefaults(t *testing.T) {
	e := fixedExtractor()
	p := e.Hotel([]string{"need somewhere to sleep"}, model.RouteDetails{}, nil)

	assert.Equal(t, "Mumbai", p.Location)
	assert.Equal(t, "2026-01-22", p.ArrivalDate)
	assert.Equal(t, "2026-01-24", p.DepartureDate)
	require.Len(t, p.Assumptions, 2)
	assert.Contains(t, p.Assumptions[0], "assumed stay in Mumbai")
}

func TestPlaceToken(t *testing.T) {
	assert.Equal(t, "BOM.AIRPORT", placeToken("mumbai"))
	assert.Equal(t, "NYC.CITY", placeToken("New York"))
	assert.Equal(t, "DEL.AIRPORT", placeToken("del"))
	assert.Equal(t, "LON.CITY", placeToken("prefer LON.CITY please"))
	assert.Empty(t, placeToken("USA"))
	assert.Empty(t, placeToken("somewhere warm"))
	assert.Empty(t, placeToken(""))
}

func TestExtractRouteStopWords(t *testing.T) {
	origin, destination := extractRoute("visiting THE USA AND JFK EWR")
	assert.Equal(t, "JFK.AIRPORT", origin)
	assert.Equal(t, "EWR.AIRPORT", destination)
}

func TestShiftDate(t *testing.T) {
	assert.Equal(t, "2026-01-31", shiftDate("2026-01-29", 2))
	assert.Equal(t, "not-a-date", shiftDate("not-a-date", 2))
}
