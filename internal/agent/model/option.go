package model

// Money is a price with an optional amount. Upstream payloads frequently
// carry a currency without an amount or vice versa.
type Money struct {
	Amount   *float64 `json:"amount,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

// Option is the canonical normalized record for one flight, hotel or
// attraction choice. Every field except the display name is optional
// because provider payloads are inconsistent.
type Option struct {
	// Flight fields.
	Airline     string `json:"airline,omitempty"`
	AirlineCode string `json:"airlineCode,omitempty"`
	LogoURL     string `json:"logoUrl,omitempty"`
	Count       *int   `json:"count,omitempty"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	DepartTime  string `json:"departTime,omitempty"`
	ArriveTime  string `json:"arriveTime,omitempty"`
	Duration    string `json:"duration,omitempty"`
	Stops       *int   `json:"stops,omitempty"`

	// Hotel / attraction fields.
	Name        string   `json:"name,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	Reviews     *int     `json:"reviews,omitempty"`
	Location    string   `json:"location,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Amenities   []string `json:"amenities,omitempty"`
	Description string   `json:"description,omitempty"`

	// Shared.
	Price    *Money `json:"price,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// DisplayName returns the guaranteed-present label for a card.
func (o Option) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	if o.Airline != "" {
		return o.Airline
	}
	return "Option"
}

// CardBlock is the machine-readable payload appended to handler summaries
// so a client can render result cards without re-parsing prose.
type CardBlock struct {
	Items       []Option `json:"items"`
	Hotels      []Option `json:"hotels,omitempty"`
	Attractions []Option `json:"attractions,omitempty"`
}
