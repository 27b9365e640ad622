package travel

import (
	"context"
	"strconv"
)

// Tool names as surfaced in tool_start / tool_complete events and audit
// trails.
const (
	ToolSearchFlights     = "search_flights"
	ToolSearchDestination = "search_destination"
	ToolSearchHotels      = "search_hotels"
	ToolSearchAttractions = "search_attractions"
	ToolAttractionDetails = "get_attraction_details"
	ToolWebSearch         = "web_search"
)

// FlightQuery are the resolved parameters for one flight search.
type FlightQuery struct {
	FromID     string
	ToID       string
	DepartDate string
	Adults     int
}

// SearchFlights queries live flight availability between two endpoints.
func (c *Client) SearchFlights(ctx context.Context, q FlightQuery) (map[string]any, error) {
	adults := q.Adults
	if adults <= 0 {
		adults = 1
	}
	return c.call(ctx, ToolSearchFlights, c.baseURL, c.host, "/api/v1/flights/searchFlights", map[string]string{
		"fromId":        q.FromID,
		"toId":          q.ToID,
		"departDate":    q.DepartDate,
		"adults":        strconv.Itoa(adults),
		"currency_code": "USD",
	})
}

// SearchDestination resolves a free-text location to provider destination
// candidates (dest_id + search_type).
func (c *Client) SearchDestination(ctx context.Context, query string) (map[string]any, error) {
	return c.call(ctx, ToolSearchDestination, c.baseURL, c.host, "/api/v1/hotels/searchDestination", map[string]string{
		"query": query,
	})
}

// HotelQuery are the resolved parameters for one hotel search.
type HotelQuery struct {
	DestID        string
	SearchType    string
	ArrivalDate   string
	DepartureDate string
	Adults        int
	RoomQty       int
	PageNumber    int
	SortBy        string
}

// SearchHotels queries hotel availability for a resolved destination.
func (c *Client) SearchHotels(ctx context.Context, q HotelQuery) (map[string]any, error) {
	if q.Adults <= 0 {
		q.Adults = 1
	}
	if q.RoomQty <= 0 {
		q.RoomQty = 1
	}
	if q.PageNumber <= 0 {
		q.PageNumber = 1
	}
	if q.SearchType == "" {
		q.SearchType = "CITY"
	}
	params := map[string]string{
		"dest_id":          q.DestID,
		"search_type":      q.SearchType,
		"arrival_date":     q.ArrivalDate,
		"departure_date":   q.DepartureDate,
		"adults":           strconv.Itoa(q.Adults),
		"room_qty":         strconv.Itoa(q.RoomQty),
		"page_number":      strconv.Itoa(q.PageNumber),
		"units":            "metric",
		"temperature_unit": "c",
		"languagecode":     "en-us",
		"currency_code":    "USD",
	}
	if q.SortBy != "" {
		params["sort_by"] = q.SortBy
	}
	return c.call(ctx, ToolSearchHotels, c.baseURL, c.host, "/api/v1/hotels/searchHotels", params)
}

// SearchAttractions lists attractions for a location.
func (c *Client) SearchAttractions(ctx context.Context, location string) (map[string]any, error) {
	return c.call(ctx, ToolSearchAttractions, c.baseURL, c.host, "/api/v1/attraction/searchAttractions", map[string]string{
		"query":        location,
		"languagecode": "en-us",
	})
}

// AttractionDetails fetches descriptive detail for one attraction.
func (c *Client) AttractionDetails(ctx context.Context, id string) (map[string]any, error) {
	return c.call(ctx, ToolAttractionDetails, c.baseURL, c.host, "/api/v1/attraction/getAttractionDetails", map[string]string{
		"id":           id,
		"languagecode": "en-us",
	})
}

// WebSearch performs a generic web search for research queries.
func (c *Client) WebSearch(ctx context.Context, query string, maxResults int) (map[string]any, error) {
	if maxResults <= 0 {
		maxResults = 3
	}
	return c.call(ctx, ToolWebSearch, c.searchBaseURL, c.searchHost, "/search", map[string]string{
		"q":     query,
		"limit": strconv.Itoa(maxResults),
	})
}
